package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conneroisu/devlens/internal/types"
)

var outputFormats = []string{"table", "json", "yaml"}

// OutputFlags holds the output selection shared by listing commands.
type OutputFlags struct {
	Format string
}

// AddOutputFlags adds --output to a command.
func AddOutputFlags(cmd *cobra.Command) *OutputFlags {
	flags := &OutputFlags{}
	cmd.Flags().StringVarP(&flags.Format, "output", "o", "table", "Output format (table|json|yaml)")
	AddFlagValidation(cmd, "output", ValidateOutputFormat)
	return flags
}

// Validate checks the selected format.
func (f *OutputFlags) Validate() error {
	return ValidateOutputFormat(f.Format)
}

// ValidateOutputFormat accepts table, json or yaml.
func ValidateOutputFormat(format string) error {
	for _, valid := range outputFormats {
		if format == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %s, must be one of: %s",
		format, strings.Join(outputFormats, ", "))
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidatePort checks a port flag value.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}

	return nil
}

// ValidateMode checks an overlay mode flag value.
func ValidateMode(mode string) error {
	_, err := types.ParseMode(mode)
	return err
}
