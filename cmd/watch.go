package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/devlens/internal/config"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Re-run the transform whenever templates change",
	Long: `Run the transform once, then keep the output directory in step with the
source directory. Changes are debounced (transform.debounce) and only the
affected files are rewritten.

Examples:
  devlens watch                       # Watch src/
  devlens watch --verbose             # Print every changed file`,
	RunE: runWatch,
}

var watchVerbose bool

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Verbose output")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	stop, err := startWatching(ctx, cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer stop()

	fmt.Fprintln(cmd.OutOrStdout(), "Watching for changes. Press Ctrl+C to stop.")
	<-ctx.Done()
	fmt.Fprintln(cmd.OutOrStdout(), "Stopping watcher...")
	return nil
}

// startWatching syncs the source tree once and starts a watcher that keeps
// it synced. The returned function stops the watcher.
func startWatching(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger logging.Logger) (func(), error) {
	syncer, err := watcher.NewSyncer(newPass(cfg, logger), cfg.Transform.SrcDir, cfg.Transform.OutDir, logger)
	if err != nil {
		return nil, err
	}

	stats, err := syncer.SyncAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial transform failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Transformed %d, copied %d into %s\n", stats.Transformed, stats.Copied, syncer.Output())

	fileWatcher, err := watcher.NewFileWatcher(cfg.Transform.Debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	fileWatcher.AddFilter(watcher.NoHiddenFilter)
	fileWatcher.AddFilter(watcher.NoNodeModulesFilter)
	fileWatcher.SkipDir(syncer.Output())

	if watchVerbose {
		out := cmd.OutOrStdout()
		fileWatcher.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
			for _, event := range events {
				fmt.Fprintf(out, "  %s: %s\n", event.Type, event.Path)
			}
			return nil
		})
	}
	fileWatcher.AddHandler(syncer.Handler())

	if err := fileWatcher.AddRecursive(syncer.Source()); err != nil {
		fileWatcher.Stop()
		return nil, fmt.Errorf("failed to watch %s: %w", syncer.Source(), err)
	}
	if err := fileWatcher.Start(ctx); err != nil {
		fileWatcher.Stop()
		return nil, err
	}

	return func() {
		if err := fileWatcher.Stop(); err != nil {
			logger.Warn(context.Background(), err, "Failed to stop file watcher")
		}
	}, nil
}
