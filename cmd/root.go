// Package cmd provides the command-line interface for devlens with
// configuration drawn from flags, environment and .devlens.yml.
//
// Environment Variables:
//
//	DEVLENS_CONFIG_FILE: Path to custom configuration file
//	DEVLENS_SERVER_PORT: Override server port
//	DEVLENS_STORE_BACKEND: Choose the data backend (fs, s3)
//	And the rest following the DEVLENS_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/devlens/internal/config"
	"github.com/conneroisu/devlens/internal/logging"
)

var cfgFile string

// flagBindings maps config keys to the flags that override them.
var flagBindings = map[string]*pflag.Flag{}

// bindFlag lets a flag override a config key when it is set.
func bindFlag(key string, flag *pflag.Flag) {
	flagBindings[key] = flag
	_ = viper.BindPFlag(key, flag)
}

// rebindFlags restores the flag bindings after viper.Reset.
func rebindFlags() {
	for key, flag := range flagBindings {
		_ = viper.BindPFlag(key, flag)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "devlens",
	Short: "Component overlay and live data editing for static site development",
	Long: `devlens instruments page templates so every data-driven component can be
found in the rendered page, then serves an overlay in front of your site's dev
server to inspect, select, reorder and edit those components' JSON data.

Quick Start:
  devlens transform               Instrument src/ into .devlens/src
  devlens serve --watch           Serve the overlay and keep the copy current
  devlens edit hero.json --site example.com
                                  Edit a data file in the terminal`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .devlens.yml, can also use DEVLENS_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	bindFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	bindFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig selects the config file: --config, then DEVLENS_CONFIG_FILE,
// then .devlens.yml in the working directory. A missing file is not an
// error; defaults and environment still apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("DEVLENS_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".devlens")
	}

	viper.SetEnvPrefix("DEVLENS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Warning: cannot read config file %s: %v\n", viper.ConfigFileUsed(), err)
	}
}

// loadConfig loads and validates the configuration, prints warnings, and
// builds the logger for a command.
func loadConfig(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	result := config.ValidateConfigWithDetails(cfg)
	if result.HasWarnings() {
		for _, w := range result.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w.Error())
		}
	}

	lc := cfg.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	return cfg, logging.NewLogger(lc).WithComponent(cmd.Name()), nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
