package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/conneroisu/devlens/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Run the overlay dev server",
	Long: `Start the devlens server in front of the site's dev server. Pages are
proxied from the upstream with the overlay mounted; the server also exposes
the data API, the overlay and host websockets, health and metrics.

Examples:
  devlens serve                                   # Proxy http://localhost:4321
  devlens serve --upstream http://localhost:3000  # Another upstream
  devlens serve --watch                           # Also keep templates instrumented
  devlens serve --mode embedded                   # Report selections to a host dashboard`,
	RunE: runServe,
}

var serveWatch bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 0, "Port to serve on (default 4322)")
	serveCmd.Flags().String("host", "", "Host to bind to (default localhost)")
	serveCmd.Flags().String("upstream", "", "Site dev server to proxy")
	serveCmd.Flags().String("mode", "", "Overlay mode (standalone, embedded)")
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "Also watch and transform templates")
	AddFlagValidation(serveCmd, "port", ValidatePort)
	AddFlagValidation(serveCmd, "mode", ValidateMode)

	bindFlag("server.port", serveCmd.Flags().Lookup("port"))
	bindFlag("server.host", serveCmd.Flags().Lookup("host"))
	bindFlag("server.upstream", serveCmd.Flags().Lookup("upstream"))
	bindFlag("overlay.mode", serveCmd.Flags().Lookup("mode"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, history, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer history.Close()

	resolver := newResolver(cfg)
	if resolver.Sites() == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: no sites configured; editing and selection will be refused")
	}

	srv, err := server.New(server.Options{
		Config:     cfg,
		Store:      st,
		Pages:      newPages(cfg, logger),
		Resolver:   resolver,
		Logger:     logger,
		Registerer: prometheus.DefaultRegisterer,
		Gatherer:   prometheus.DefaultGatherer,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if serveWatch {
		stop, err := startWatching(ctx, cmd, cfg, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Starting devlens at http://%s (upstream %s, %s mode)\n",
		cfg.Addr(), cfg.Server.Upstream, cfg.Mode())

	// Start shuts the server down itself once ctx is cancelled.
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
	return nil
}
