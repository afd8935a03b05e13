package store

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/devlens/internal/errors"
)

// Backend reads and writes whole data files of a site.
type Backend interface {
	Read(ctx context.Context, site, file string) ([]byte, error)
	Write(ctx context.Context, site, file string, data []byte) error
}

var siteRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// checkSite rejects site ids that could escape the data root.
func checkSite(site string) error {
	if !siteRe.MatchString(site) || strings.Contains(site, "..") {
		return errors.NewValidationError(errors.ErrCodeInvalidDataPath,
			fmt.Sprintf("invalid site %q", site))
	}
	return nil
}

// FileBackend stores data files under Root/<site>/<file>.
type FileBackend struct {
	Root string
}

// NewFileBackend creates a file backend rooted at root.
func NewFileBackend(root string) *FileBackend {
	return &FileBackend{Root: root}
}

func (b *FileBackend) resolve(site, file string) (string, error) {
	if err := checkSite(site); err != nil {
		return "", err
	}
	clean := path.Clean("/" + file)[1:]
	if clean == "" || clean != file {
		return "", errors.ErrPathTraversal(file)
	}

	base, err := filepath.Abs(filepath.Join(b.Root, site))
	if err != nil {
		return "", errors.WrapIO(err, errors.ErrCodeInternalError, "cannot resolve data root")
	}
	full := filepath.Join(base, filepath.FromSlash(clean))
	if !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", errors.ErrPathTraversal(file)
	}
	return full, nil
}

// Read implements Backend.
func (b *FileBackend) Read(ctx context.Context, site, file string) ([]byte, error) {
	full, err := b.resolve(site, file)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, errors.NewIOError(errors.ErrCodeNotFound, fmt.Sprintf("data file %s not found", file), err)
	}
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInternalError, "cannot read data file")
	}
	return data, nil
}

// Write implements Backend. The file is replaced atomically.
func (b *FileBackend) Write(ctx context.Context, site, file string, data []byte) error {
	full, err := b.resolve(site, file)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "cannot create data directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".devlens-*")
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "cannot create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapIO(err, errors.ErrCodeInternalError, "cannot write data file")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "cannot write data file")
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "cannot replace data file")
	}
	return nil
}
