package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/devlens/internal/watcher"
)

var transformCmd = &cobra.Command{
	Use:     "transform [file.astro...]",
	Aliases: []string{"t"},
	Short:   "Instrument page and layout templates",
	Long: `Mirror the source directory into the output directory, wrapping every
data-bound component invocation in pages with marker attributes and mounting
the overlay in layouts. Other files are copied unchanged.

With file arguments, each file is transformed and printed to stdout instead.

Examples:
  devlens transform                              # src/ -> .devlens/src
  devlens transform --src site/src --out build   # Custom directories
  devlens transform src/pages/index.astro        # Print one transformed page`,
	RunE: runTransform,
}

func init() {
	rootCmd.AddCommand(transformCmd)

	transformCmd.Flags().String("src", "", "Source directory (default src)")
	transformCmd.Flags().String("out", "", "Output directory (default .devlens/src)")

	bindFlag("transform.src_dir", transformCmd.Flags().Lookup("src"))
	bindFlag("transform.out_dir", transformCmd.Flags().Lookup("out"))
}

func runTransform(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pass := newPass(cfg, logger)

	if len(args) > 0 {
		if err := validateArguments(args); err != nil {
			return err
		}
		for _, path := range args {
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			res := pass.Transform(cmd.Context(), path, string(src))
			if !res.Changed {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: unchanged (%s)\n", path, res.Skipped)
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Source)
		}
		return nil
	}

	syncer, err := watcher.NewSyncer(pass, cfg.Transform.SrcDir, cfg.Transform.OutDir, logger)
	if err != nil {
		return err
	}
	stats, err := syncer.SyncAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("transform failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Transformed %d, copied %d, unchanged %d into %s\n",
		stats.Transformed, stats.Copied, stats.Unchanged, syncer.Output())
	if stats.Failed > 0 {
		return fmt.Errorf("%d file(s) could not be written", stats.Failed)
	}
	return nil
}
