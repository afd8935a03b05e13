// Package transform implements the build-time pass that instruments page and
// layout templates for the development overlay.
//
// The pass parses the markup section of a template into a syntax tree, finds
// component invocations whose props are bound to imported structured data, and
// wraps each one in an element carrying the marker attributes defined in the
// marker package. Layout templates also get the overlay mount injected before
// the closing body tag, guarded by the development flag so production builds
// never render it.
//
// The pass is optional instrumentation. Anything it cannot understand is
// passed through unmodified and logged; it never fails a build.
package transform

import (
	"context"
	"fmt"
	"html"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/marker"
)

// Kind classifies a template file.
type Kind int

const (
	KindOther Kind = iota
	KindPage
	KindLayout
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindLayout:
		return "layout"
	default:
		return "other"
	}
}

// Classify decides from its path whether a template is a page, a layout, or
// neither.
func Classify(path string) Kind {
	segments := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
	for i := len(segments) - 2; i >= 0; i-- {
		switch segments[i] {
		case "pages":
			return KindPage
		case "layouts":
			return KindLayout
		}
	}
	return KindOther
}

// Options configures the transform pass.
type Options struct {
	// ComponentsDir is the path segment that identifies component imports.
	ComponentsDir string
	// DataDir is the path segment data paths are made relative to.
	DataDir string
	// DataExtensions lists the structured-data file extensions.
	DataExtensions []string
	// OverlayImport is the module specifier of the overlay mount component.
	OverlayImport string
	// OverlayComponent is the local name of the overlay mount component.
	OverlayComponent string
	// DevFlag is the expression guarding the overlay mount.
	DevFlag string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ComponentsDir:    "components",
		DataDir:          "data",
		DataExtensions:   []string{".json"},
		OverlayImport:    "@devlens/overlay/DevOverlay.astro",
		OverlayComponent: "DevOverlay",
		DevFlag:          "import.meta.env.DEV",
	}
}

// Invocation is one component call eligible for instrumentation.
type Invocation struct {
	Name     string
	DataPath string
	Prop     string
	ID       string
	Order    int
	Start    int
	End      int
}

// Result is the outcome of one transform.
type Result struct {
	Source      string
	Changed     bool
	Kind        Kind
	Invocations []Invocation
	Mounted     bool
	// Skipped explains why the source was passed through, if it was.
	Skipped string
}

// Pass rewrites template sources.
type Pass struct {
	opts   Options
	logger logging.Logger
}

// NewPass creates a transform pass.
func NewPass(opts Options, logger logging.Logger) *Pass {
	if opts.ComponentsDir == "" {
		opts.ComponentsDir = DefaultOptions().ComponentsDir
	}
	if len(opts.DataExtensions) == 0 {
		opts.DataExtensions = DefaultOptions().DataExtensions
	}
	if opts.OverlayComponent == "" {
		opts.OverlayComponent = DefaultOptions().OverlayComponent
	}
	if opts.OverlayImport == "" {
		opts.OverlayImport = DefaultOptions().OverlayImport
	}
	if opts.DevFlag == "" {
		opts.DevFlag = DefaultOptions().DevFlag
	}
	return &Pass{opts: opts, logger: logger.WithComponent("transform")}
}

// Options returns the pass configuration.
func (p *Pass) Options() Options {
	return p.opts
}

var (
	defaultImportRe = regexp.MustCompile(`(?m)^\s*import\s+([A-Za-z_$][\w$]*)\s+from\s+['"]([^'"]+)['"]`)
	propRefRe       = regexp.MustCompile(`^([A-Za-z_$][\w$]*)((?:\s*(?:\.[A-Za-z_$][\w$]*|\[\s*\d+\s*\]))*)`)
	leadingIndexRe  = regexp.MustCompile(`^\s*\[\s*(\d+)\s*\]`)
)

// HasMarker reports whether src was already instrumented.
func (p *Pass) HasMarker(src string) bool {
	return strings.Contains(src, marker.AttrName) || strings.Contains(src, "<"+p.opts.OverlayComponent)
}

// Transform instruments src. The returned Result always carries a usable
// Source; when Changed is false it is src unmodified.
func (p *Pass) Transform(ctx context.Context, path, src string) Result {
	kind := Classify(path)
	res := Result{Source: src, Kind: kind}

	if kind == KindOther {
		res.Skipped = "not a page or layout"
		return res
	}
	if p.HasMarker(src) {
		res.Skipped = "already instrumented"
		return res
	}

	doc, err := p.analyze(src)
	if err != nil {
		p.logger.Debug(ctx, "Passing template through unmodified", "path", path, "reason", err.Error())
		res.Skipped = err.Error()
		return res
	}

	invocations := p.collect(doc)

	type insertion struct {
		offset int
		text   string
		seq    int
	}
	var inserts []insertion
	for i, inv := range invocations {
		inserts = append(inserts,
			insertion{offset: inv.Start, text: p.openWrapper(inv), seq: i},
			insertion{offset: inv.End, text: "</div>", seq: -i},
		)
	}

	if kind == KindLayout {
		if bodyClose := lastIndexFold(src[doc.bodyStart:], "</body"); bodyClose >= 0 {
			inserts = append(inserts,
				insertion{
					offset: doc.frontmatterEnd,
					text:   fmt.Sprintf("import %s from '%s';\n", p.opts.OverlayComponent, p.opts.OverlayImport),
				},
				insertion{
					offset: doc.bodyStart + bodyClose,
					text:   fmt.Sprintf("{%s && <%s />}\n", p.opts.DevFlag, p.opts.OverlayComponent),
					seq:    math.MaxInt32,
				},
			)
			res.Mounted = true
		}
	}

	if len(inserts) == 0 {
		res.Skipped = "no eligible components"
		return res
	}

	// Apply from the end so earlier offsets stay valid. At equal offsets a
	// closing wrapper must land before the opening of a later sibling.
	sort.SliceStable(inserts, func(i, j int) bool {
		if inserts[i].offset != inserts[j].offset {
			return inserts[i].offset > inserts[j].offset
		}
		return inserts[i].seq > inserts[j].seq
	})
	out := src
	for _, ins := range inserts {
		out = out[:ins.offset] + ins.text + out[ins.offset:]
	}

	res.Source = out
	res.Changed = true
	res.Invocations = invocations

	p.logger.Debug(ctx, "Instrumented template",
		"path", path,
		"kind", kind.String(),
		"wrapped", len(invocations),
		"mounted", res.Mounted)

	return res
}

// Invocations lists the eligible component invocations of an uninstrumented
// template in source order.
func (p *Pass) Invocations(path, src string) ([]Invocation, error) {
	if Classify(path) == KindOther {
		return nil, errors.NewInstrumentationError(errors.ErrCodeInvalidState,
			"not a page or layout template", nil).WithLocation(path, 0, 0)
	}
	doc, err := p.analyze(src)
	if err != nil {
		return nil, err
	}
	return p.collect(doc), nil
}

func (p *Pass) openWrapper(inv Invocation) string {
	return fmt.Sprintf(`<div %s="%s" %s="%s" %s="%s" %s="%d" %s={JSON.stringify(%s)} style="display: contents">`,
		marker.AttrName, html.EscapeString(inv.Name),
		marker.AttrPath, html.EscapeString(inv.DataPath),
		marker.AttrID, html.EscapeString(inv.ID),
		marker.AttrOrder, inv.Order,
		marker.AttrProps, inv.Prop,
	)
}

type document struct {
	root           *Node
	frontmatterEnd int
	bodyStart      int
	components     map[string]bool
	data           map[string]string
}

func (p *Pass) analyze(src string) (*document, error) {
	fmStart, fmEnd, bodyStart, ok := splitFrontmatter(src)
	if !ok {
		return nil, errors.NewInstrumentationError(errors.ErrCodeNoFrontmatter,
			"no frontmatter boundary found", nil)
	}

	doc := &document{
		frontmatterEnd: fmEnd,
		bodyStart:      bodyStart,
		components:     make(map[string]bool),
		data:           make(map[string]string),
	}

	for _, m := range defaultImportRe.FindAllStringSubmatch(src[fmStart:fmEnd], -1) {
		ident, spec := m[1], m[2]
		switch {
		case p.isDataImport(spec):
			doc.data[ident] = p.dataPathFor(spec)
		case p.isComponentImport(spec):
			doc.components[ident] = true
		}
	}

	root, err := Parse(src, bodyStart)
	if err != nil {
		return nil, errors.NewInstrumentationError(errors.ErrCodeMarkupSyntax, "cannot parse markup", err)
	}
	doc.root = root
	return doc, nil
}

func (p *Pass) isDataImport(spec string) bool {
	for _, ext := range p.opts.DataExtensions {
		if strings.HasSuffix(spec, ext) {
			return true
		}
	}
	return false
}

func (p *Pass) isComponentImport(spec string) bool {
	for _, seg := range strings.Split(spec, "/") {
		if seg == p.opts.ComponentsDir {
			return true
		}
	}
	return false
}

// dataPathFor turns an import specifier such as "../data/site/hero.json" into
// a data path relative to the data directory ("site/hero.json").
func (p *Pass) dataPathFor(spec string) string {
	segments := strings.Split(spec, "/")
	if p.opts.DataDir != "" {
		for i := len(segments) - 1; i >= 0; i-- {
			if segments[i] == p.opts.DataDir && i+1 < len(segments) {
				return strings.Join(segments[i+1:], "/")
			}
		}
	}
	return segments[len(segments)-1]
}

// collect finds eligible invocations in document order and numbers them.
func (p *Pass) collect(doc *document) []Invocation {
	if len(doc.components) == 0 || len(doc.data) == 0 {
		return nil
	}

	var out []Invocation
	doc.root.Walk(func(n *Node) bool {
		if n.Kind == NodeExpression {
			// Anything below an expression renders conditionally.
			return false
		}
		if n.Kind != NodeElement || !doc.components[n.Name] || n.InExpression() {
			return true
		}
		dataPath, prop, ok := p.boundData(doc, n)
		if !ok {
			return true
		}
		order := len(out)
		out = append(out, Invocation{
			Name:     n.Name,
			DataPath: dataPath,
			Prop:     prop,
			ID:       fmt.Sprintf("%s-%d", Kebab(n.Name), order),
			Order:    order,
			Start:    n.Start,
			End:      n.End,
		})
		return true
	})
	return out
}

// boundData finds the first prop of n bound to structured data.
func (p *Pass) boundData(doc *document, n *Node) (string, string, bool) {
	for _, attr := range n.Attrs {
		if !attr.Expr {
			continue
		}
		expr := strings.TrimSpace(strings.TrimPrefix(attr.Value, "..."))
		m := propRefRe.FindStringSubmatch(expr)
		if m == nil || strings.TrimSpace(m[0]) != expr {
			continue
		}

		ident, rest := m[1], m[2]
		path, ok := doc.data[ident]
		if !ok {
			path, ok = DataFileName(ident, p.opts.DataExtensions[0])
		}
		if !ok {
			continue
		}
		if idx := leadingIndexRe.FindStringSubmatch(rest); idx != nil {
			path += "[" + idx[1] + "]"
		}
		return path, expr, true
	}
	return "", "", false
}

// splitFrontmatter locates the "---" fenced block at the top of a template.
// It returns the offsets of the block content and of the first markup byte.
func splitFrontmatter(src string) (start, end, body int, ok bool) {
	i := 0
	if strings.HasPrefix(src, "\ufeff") {
		i = len("\ufeff")
	}
	for i < len(src) && isSpace(src[i]) {
		i++
	}
	if !strings.HasPrefix(src[i:], "---") {
		return 0, 0, 0, false
	}
	nl := strings.IndexByte(src[i:], '\n')
	if nl < 0 || strings.TrimSpace(src[i:i+nl]) != "---" {
		return 0, 0, 0, false
	}
	start = i + nl + 1

	for pos := start; pos <= len(src); {
		lineEnd := strings.IndexByte(src[pos:], '\n')
		var line string
		next := len(src) + 1
		if lineEnd < 0 {
			line = src[pos:]
		} else {
			line = src[pos : pos+lineEnd]
			next = pos + lineEnd + 1
		}
		if strings.TrimRight(line, " \t\r") == "---" {
			body = next
			if body > len(src) {
				body = len(src)
			}
			return start, pos, body, true
		}
		pos = next
	}
	return 0, 0, 0, false
}

func lastIndexFold(s, substr string) int {
	return strings.LastIndex(strings.ToLower(s), strings.ToLower(substr))
}
