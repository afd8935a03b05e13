// Package config provides configuration management for devlens using Viper
// for flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files (.devlens.yml), environment
// variable overrides with the DEVLENS_ prefix, and validation. It manages the
// dev server, the transform pass, the overlay mode, the data store backend,
// the site table used for tenant resolution, and logging.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/transform"
	"github.com/conneroisu/devlens/internal/types"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Transform TransformConfig `mapstructure:"transform" yaml:"transform"`
	Overlay   OverlayConfig   `mapstructure:"overlay" yaml:"overlay"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Sites     []SiteConfig    `mapstructure:"sites" yaml:"sites"`
	Editor    EditorConfig    `mapstructure:"editor" yaml:"editor"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" yaml:"port"`
	Host           string   `mapstructure:"host" yaml:"host"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	// Upstream is the site's own dev server; everything devlens does not
	// handle itself is proxied there.
	Upstream string `mapstructure:"upstream" yaml:"upstream"`
}

type TransformConfig struct {
	SrcDir           string        `mapstructure:"src_dir" yaml:"src_dir"`
	OutDir           string        `mapstructure:"out_dir" yaml:"out_dir"`
	ComponentsDir    string        `mapstructure:"components_dir" yaml:"components_dir"`
	DataDir          string        `mapstructure:"data_dir" yaml:"data_dir"`
	DataExtensions   []string      `mapstructure:"data_extensions" yaml:"data_extensions"`
	OverlayImport    string        `mapstructure:"overlay_import" yaml:"overlay_import"`
	OverlayComponent string        `mapstructure:"overlay_component" yaml:"overlay_component"`
	DevFlag          string        `mapstructure:"dev_flag" yaml:"dev_flag"`
	Debounce         time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type OverlayConfig struct {
	// Mode is "standalone" or "embedded".
	Mode string `mapstructure:"mode" yaml:"mode"`
}

type StoreConfig struct {
	// Backend is "fs" or "s3".
	Backend   string   `mapstructure:"backend" yaml:"backend"`
	Root      string   `mapstructure:"root" yaml:"root"`
	HistoryDB string   `mapstructure:"history_db" yaml:"history_db"`
	PagesDir  string   `mapstructure:"pages_dir" yaml:"pages_dir"`
	S3        S3Config `mapstructure:"s3" yaml:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"-"`
}

// SiteConfig maps one tenant id to the hostnames it is served under.
type SiteConfig struct {
	ID    string   `mapstructure:"id" yaml:"id"`
	Hosts []string `mapstructure:"hosts" yaml:"hosts"`
}

type EditorConfig struct {
	// BaseURL points the terminal editor at a running devlens server. Empty
	// means the editor talks to the store directly.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers default values so environment overrides resolve for
// every key.
func SetDefaults(v *viper.Viper) {
	defaults := transform.DefaultOptions()

	v.SetDefault("server.port", 4322)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:4321", "http://localhost:4322"})
	v.SetDefault("server.upstream", "http://localhost:4321")

	v.SetDefault("transform.src_dir", "src")
	v.SetDefault("transform.out_dir", ".devlens/src")
	v.SetDefault("transform.components_dir", defaults.ComponentsDir)
	v.SetDefault("transform.data_dir", defaults.DataDir)
	v.SetDefault("transform.data_extensions", defaults.DataExtensions)
	v.SetDefault("transform.overlay_import", defaults.OverlayImport)
	v.SetDefault("transform.overlay_component", defaults.OverlayComponent)
	v.SetDefault("transform.dev_flag", defaults.DevFlag)
	v.SetDefault("transform.debounce", 100*time.Millisecond)

	v.SetDefault("overlay.mode", types.ModeStandalone.String())

	v.SetDefault("store.backend", "fs")
	v.SetDefault("store.root", "content")
	v.SetDefault("store.history_db", ".devlens/history.db")
	v.SetDefault("store.pages_dir", "src/pages")
	v.SetDefault("store.s3.region", "us-east-1")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the global viper instance into a validated Config.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads v into a validated Config.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "cannot decode configuration")
	}

	// Slices set through env vars arrive as one comma-separated string.
	config.Server.AllowedOrigins = normalizeList(config.Server.AllowedOrigins)
	config.Transform.DataExtensions = normalizeList(config.Transform.DataExtensions)

	if err := validateConfig(&config); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "invalid configuration")
	}

	return &config, nil
}

// validateConfig runs the detailed validation and reports the first error.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if !result.HasErrors() {
		return nil
	}
	first := result.Errors[0]
	if len(result.Errors) > 1 {
		return fmt.Errorf("%w (and %d more)", &first, len(result.Errors)-1)
	}
	return &first
}

// TransformOptions returns the transform pass options.
func (c *Config) TransformOptions() transform.Options {
	return transform.Options{
		ComponentsDir:    c.Transform.ComponentsDir,
		DataDir:          c.Transform.DataDir,
		DataExtensions:   c.Transform.DataExtensions,
		OverlayImport:    c.Transform.OverlayImport,
		OverlayComponent: c.Transform.OverlayComponent,
		DevFlag:          c.Transform.DevFlag,
	}
}

// Mode returns the overlay mode. Load has already validated it.
func (c *Config) Mode() types.Mode {
	mode, _ := types.ParseMode(c.Overlay.Mode)
	return mode
}

// LoggerConfig returns the logger configuration for the log section.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	lc := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		lc.Level = level
	}
	if c.Log.Format != "" {
		lc.Format = c.Log.Format
	}
	return lc
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func normalizeList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
