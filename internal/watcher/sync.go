package watcher

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/transform"
)

// Stats counts what one sync did.
type Stats struct {
	Transformed int
	Copied      int
	Unchanged   int
	Removed     int
	Failed      int
}

func (s *Stats) add(o Stats) {
	s.Transformed += o.Transformed
	s.Copied += o.Copied
	s.Unchanged += o.Unchanged
	s.Removed += o.Removed
	s.Failed += o.Failed
}

// Syncer mirrors a source tree into an output tree. Pages and layouts are run
// through the transform pass; every other file is copied verbatim so the
// output is a complete source directory.
type Syncer struct {
	pass   *transform.Pass
	src    string
	out    string
	logger logging.Logger
}

// NewSyncer creates a syncer from src to out. out must not be inside src
// unless the watcher skips it.
func NewSyncer(pass *transform.Pass, src, out string, logger logging.Logger) (*Syncer, error) {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInternalError, "cannot resolve source directory")
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInternalError, "cannot resolve output directory")
	}
	if absSrc == absOut {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "source and output directories must differ")
	}
	return &Syncer{pass: pass, src: absSrc, out: absOut, logger: logger.WithComponent("sync")}, nil
}

// Source returns the absolute source directory.
func (s *Syncer) Source() string { return s.src }

// Output returns the absolute output directory.
func (s *Syncer) Output() string { return s.out }

// SyncAll mirrors the whole source tree.
func (s *Syncer) SyncAll(ctx context.Context) (Stats, error) {
	return s.syncDir(ctx, s.src)
}

func (s *Syncer) syncDir(ctx context.Context, dir string) (Stats, error) {
	var stats Stats
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.WrapIO(err, errors.ErrCodeNotFound, "cannot walk "+path)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path == s.out || strings.HasPrefix(path, s.out+string(filepath.Separator)) || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		stats.add(s.syncFile(ctx, path))
		return nil
	})
	return stats, err
}

// Apply handles one debounced batch from a FileWatcher.
func (s *Syncer) Apply(ctx context.Context, events []ChangeEvent) (Stats, error) {
	var stats Stats
	for _, ev := range events {
		path, err := filepath.Abs(ev.Path)
		if err != nil || !s.inSource(path) {
			continue
		}

		switch ev.Type {
		case EventTypeDeleted, EventTypeRenamed:
			// A rename reports the old name; the new one arrives as a create.
			stats.add(s.remove(ctx, path))
		default:
			info, err := os.Stat(path)
			if err != nil {
				stats.add(s.remove(ctx, path))
				continue
			}
			if info.IsDir() {
				sub, err := s.syncDir(ctx, path)
				stats.add(sub)
				if err != nil {
					return stats, err
				}
				continue
			}
			stats.add(s.syncFile(ctx, path))
		}
	}

	s.logger.Info(ctx, "Synced changes",
		"events", len(events),
		"transformed", stats.Transformed,
		"copied", stats.Copied,
		"removed", stats.Removed,
		"failed", stats.Failed)
	return stats, nil
}

// Handler adapts Apply to a ChangeHandler.
func (s *Syncer) Handler() ChangeHandler {
	return func(ctx context.Context, events []ChangeEvent) error {
		_, err := s.Apply(ctx, events)
		return err
	}
}

func (s *Syncer) inSource(path string) bool {
	if path == s.out || strings.HasPrefix(path, s.out+string(filepath.Separator)) {
		return false
	}
	return strings.HasPrefix(path, s.src+string(filepath.Separator))
}

func (s *Syncer) target(path string) (string, error) {
	rel, err := filepath.Rel(s.src, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.ErrPathTraversal(path)
	}
	return filepath.Join(s.out, rel), nil
}

func (s *Syncer) syncFile(ctx context.Context, path string) Stats {
	dest, err := s.target(path)
	if err != nil {
		s.logger.Warn(ctx, err, "Skipping file outside source", "path", path)
		return Stats{Failed: 1}
	}

	src, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn(ctx, err, "Cannot read source file", "path", path)
		return Stats{Failed: 1}
	}

	// Classify on the relative path so directories above the source root
	// cannot turn a component into a page.
	rel, _ := filepath.Rel(s.src, path)
	out := src
	transformed := false
	if transform.Classify(rel) != transform.KindOther && strings.EqualFold(filepath.Ext(path), ".astro") {
		res := s.pass.Transform(ctx, path, string(src))
		if res.Changed {
			out = []byte(res.Source)
			transformed = true
		}
	}

	if existing, err := os.ReadFile(dest); err == nil && bytes.Equal(existing, out) {
		return Stats{Unchanged: 1}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		s.logger.Warn(ctx, err, "Cannot create output directory", "path", dest)
		return Stats{Failed: 1}
	}
	if err := os.WriteFile(dest, out, 0644); err != nil {
		s.logger.Warn(ctx, err, "Cannot write output file", "path", dest)
		return Stats{Failed: 1}
	}

	if transformed {
		s.logger.Debug(ctx, "Transformed template", "path", path)
		return Stats{Transformed: 1}
	}
	return Stats{Copied: 1}
}

func (s *Syncer) remove(ctx context.Context, path string) Stats {
	dest, err := s.target(path)
	if err != nil {
		return Stats{}
	}
	if _, err := os.Lstat(dest); os.IsNotExist(err) {
		return Stats{}
	}
	if err := os.RemoveAll(dest); err != nil {
		s.logger.Warn(ctx, err, "Cannot remove output file", "path", dest)
		return Stats{Failed: 1}
	}
	return Stats{Removed: 1}
}
