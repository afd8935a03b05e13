package cmd

import (
	"fmt"

	"github.com/conneroisu/devlens/internal/validation"
)

// validateArgument checks a file path argument before it is read.
func validateArgument(arg string) error {
	if arg == "" {
		return fmt.Errorf("empty path")
	}
	return validation.ValidatePath(arg)
}

// validateArguments validates a slice of arguments
func validateArguments(args []string) error {
	for _, arg := range args {
		if err := validateArgument(arg); err != nil {
			return fmt.Errorf("invalid argument '%s': %w", arg, err)
		}
	}
	return nil
}
