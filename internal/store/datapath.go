package store

import (
	"fmt"
	"path"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/conneroisu/devlens/internal/errors"
)

// DataPath is a parsed component data path such as "content/list.json[2]".
type DataPath struct {
	// File is the slash-separated file path relative to the site data root.
	File string
	// Index selects one element of a top-level array when Indexed is true.
	Index   int
	Indexed bool
}

// String formats the path back into its wire form.
func (p DataPath) String() string {
	if p.Indexed {
		return fmt.Sprintf("%s[%d]", p.File, p.Index)
	}
	return p.File
}

// ParseDataPath parses a data path. The optional selector suffix must be a
// single non-negative array index.
func ParseDataPath(raw string) (DataPath, error) {
	raw = strings.TrimSpace(raw)
	file, selector := raw, ""
	if i := strings.IndexByte(raw, '['); i >= 0 {
		file, selector = raw[:i], raw[i:]
	}

	if file == "" {
		return DataPath{}, errors.NewValidationError(errors.ErrCodeInvalidDataPath, "empty data path")
	}
	if strings.Contains(file, `\`) || path.IsAbs(file) {
		return DataPath{}, errors.ErrPathTraversal(raw)
	}
	clean := path.Clean(file)
	if clean == ".." || strings.HasPrefix(clean, "../") || clean != file {
		return DataPath{}, errors.ErrPathTraversal(raw)
	}
	if !strings.EqualFold(path.Ext(clean), ".json") {
		return DataPath{}, errors.NewValidationError(errors.ErrCodeInvalidDataPath,
			fmt.Sprintf("data path %q is not a JSON file", raw))
	}

	p := DataPath{File: clean}
	if selector == "" {
		return p, nil
	}

	x, err := jp.ParseString("$" + selector)
	if err != nil {
		return DataPath{}, errors.NewValidationError(errors.ErrCodeInvalidDataPath,
			fmt.Sprintf("invalid selector in %q: %v", raw, err))
	}
	var frags []jp.Frag
	for _, f := range x {
		if _, root := f.(jp.Root); !root {
			frags = append(frags, f)
		}
	}
	if len(frags) != 1 {
		return DataPath{}, errors.NewValidationError(errors.ErrCodeInvalidDataPath,
			fmt.Sprintf("selector in %q must be a single index", raw))
	}
	nth, ok := frags[0].(jp.Nth)
	if !ok || nth < 0 {
		return DataPath{}, errors.NewValidationError(errors.ErrCodeInvalidDataPath,
			fmt.Sprintf("selector in %q must be a non-negative index", raw))
	}

	p.Index = int(nth)
	p.Indexed = true
	return p, nil
}
