package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/conneroisu/devlens/internal/config"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/store"
	"github.com/conneroisu/devlens/internal/tenant"
	"github.com/conneroisu/devlens/internal/transform"
	"github.com/conneroisu/devlens/internal/validation"
)

// openStore builds the data store for the configured backend and opens the
// revision history. The caller closes the returned history.
func openStore(cfg *config.Config, logger logging.Logger) (*store.Store, *store.History, error) {
	var backend store.Backend
	switch cfg.Store.Backend {
	case "s3":
		s3Backend, err := store.NewS3Backend(store.S3Config{
			Bucket:          cfg.Store.S3.Bucket,
			Prefix:          cfg.Store.S3.Prefix,
			Region:          cfg.Store.S3.Region,
			Endpoint:        cfg.Store.S3.Endpoint,
			AccessKeyID:     cfg.Store.S3.AccessKeyID,
			SecretAccessKey: cfg.Store.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create s3 backend: %w", err)
		}
		backend = s3Backend
	default:
		backend = store.NewFileBackend(cfg.Store.Root)
	}

	history, err := openHistory(cfg)
	if err != nil {
		return nil, nil, err
	}
	return store.New(backend, history, logger), history, nil
}

func openHistory(cfg *config.Config) (*store.History, error) {
	dsn := cfg.Store.HistoryDB
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	history, err := store.OpenHistory(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return history, nil
}

// siteFor returns the --site flag, or the only configured site when the flag
// is empty. There is no default site otherwise.
func siteFor(cfg *config.Config, flag string) (string, error) {
	site := flag
	if site == "" {
		if len(cfg.Sites) != 1 {
			return "", fmt.Errorf("--site is required when %d sites are configured", len(cfg.Sites))
		}
		site = cfg.Sites[0].ID
	}
	if err := validation.ValidateSiteID(site); err != nil {
		return "", err
	}
	return site, nil
}

func newPass(cfg *config.Config, logger logging.Logger) *transform.Pass {
	return transform.NewPass(cfg.TransformOptions(), logger)
}

func newPages(cfg *config.Config, logger logging.Logger) *store.Pages {
	return store.NewPages(cfg.Store.PagesDir, newPass(cfg, logger), logger)
}

func newResolver(cfg *config.Config) *tenant.Resolver {
	sites := make([]tenant.Site, 0, len(cfg.Sites))
	for _, s := range cfg.Sites {
		sites = append(sites, tenant.Site{ID: s.ID, Hosts: s.Hosts})
	}
	return tenant.NewResolver(sites)
}
