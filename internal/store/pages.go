package store

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/transform"
)

// SwapSide names one component of a swap by name and order.
type SwapSide struct {
	Name  string
	Order int
}

// Pages rewrites page sources to reorder components.
type Pages struct {
	dir    string
	ext    string
	pass   *transform.Pass
	logger logging.Logger
	mu     sync.Mutex
}

// NewPages creates a page rewriter over the pages directory dir.
func NewPages(dir string, pass *transform.Pass, logger logging.Logger) *Pages {
	return &Pages{dir: dir, ext: ".astro", pass: pass, logger: logger.WithComponent("pages")}
}

// Locate maps a URL path such as "/about" to its page source file.
func (p *Pages) Locate(urlPath string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(urlPath))
	if strings.Contains(urlPath, "..") {
		return "", errors.ErrPathTraversal(urlPath)
	}

	var candidates []string
	if clean == "/" {
		candidates = []string{"index" + p.ext}
	} else {
		rel := strings.TrimPrefix(clean, "/")
		candidates = []string{rel + p.ext, path.Join(rel, "index"+p.ext)}
	}
	for _, c := range candidates {
		full := filepath.Join(p.dir, filepath.FromSlash(c))
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			return full, nil
		}
	}
	return "", errors.NewIOError(errors.ErrCodeNotFound, fmt.Sprintf("no page source for %s", urlPath), nil)
}

// Swap exchanges two adjacent components of the page at urlPath. Both sides
// must match the page's invocations by name and order, and neither may be
// nested inside the other.
func (p *Pages) Swap(ctx context.Context, urlPath string, first, second SwapSide) error {
	if first.Order > second.Order {
		first, second = second, first
	}
	if second.Order != first.Order+1 {
		return errors.NewValidationError(errors.ErrCodeNotAdjacent,
			fmt.Sprintf("orders %d and %d are not adjacent", first.Order, second.Order))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := p.Locate(urlPath)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "cannot read page source")
	}
	src := string(raw)

	invocations, err := p.pass.Invocations(file, src)
	if err != nil {
		return err
	}
	a, err := match(invocations, first)
	if err != nil {
		return err
	}
	b, err := match(invocations, second)
	if err != nil {
		return err
	}

	if a.Start < b.End && b.Start < a.End {
		return errors.NewValidationError(errors.ErrCodeNotAdjacent,
			fmt.Sprintf("%s and %s are nested and cannot be swapped", first.Name, second.Name))
	}

	out := src[:a.Start] + src[b.Start:b.End] + src[a.End:b.Start] + src[a.Start:a.End] + src[b.End:]
	if err := writeAtomic(file, []byte(out)); err != nil {
		return err
	}

	p.logger.Info(ctx, "Swapped components",
		"page", urlPath, "file", file,
		"first", first.Name, "second", second.Name, "order", first.Order)
	return nil
}

func match(invocations []transform.Invocation, side SwapSide) (transform.Invocation, error) {
	for _, inv := range invocations {
		if inv.Order != side.Order {
			continue
		}
		if inv.Name != side.Name {
			return transform.Invocation{}, errors.NewValidationError(errors.ErrCodeInvalidState,
				fmt.Sprintf("component at order %d is %s, not %s", side.Order, inv.Name, side.Name))
		}
		return inv, nil
	}
	return transform.Invocation{}, errors.NewValidationError(errors.ErrCodeOutOfRange,
		fmt.Sprintf("no component at order %d", side.Order))
}

func writeAtomic(file string, data []byte) error {
	info, err := os.Stat(file)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "cannot stat page source")
	}
	tmp, err := os.CreateTemp(filepath.Dir(file), ".devlens-*")
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "cannot create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapIO(err, errors.ErrCodeInternalError, "cannot write page source")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "cannot write page source")
	}
	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "cannot set page permissions")
	}
	if err := os.Rename(tmp.Name(), file); err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "cannot replace page source")
	}
	return nil
}
