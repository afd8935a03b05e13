package transform

import (
	"fmt"
	"strings"
)

// NodeKind identifies the kind of a template syntax node.
type NodeKind int

const (
	NodeRoot NodeKind = iota
	NodeText
	NodeElement
	NodeExpression
	NodeComment
)

// String returns the string representation of the NodeKind
func (k NodeKind) String() string {
	switch k {
	case NodeRoot:
		return "root"
	case NodeText:
		return "text"
	case NodeElement:
		return "element"
	case NodeExpression:
		return "expression"
	case NodeComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Attr is one attribute of an element. Expression attributes keep the source
// between the braces in Value.
type Attr struct {
	Name   string
	Value  string
	Expr   bool
	Spread bool
}

// Node is a node of the template markup tree. Start and End are byte offsets
// into the full template source, End exclusive.
type Node struct {
	Kind        NodeKind
	Name        string
	Attrs       []Attr
	Start       int
	End         int
	SelfClosing bool
	Parent      *Node
	Children    []*Node
}

// InExpression reports whether the node is rendered from inside an
// expression, i.e. its output depends on a conditional or a loop.
func (n *Node) InExpression() bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Kind == NodeExpression {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// SyntaxError reports malformed markup at a byte offset.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("offset %d: %s", e.Offset, e.Msg)
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

var rawTextElements = map[string]bool{
	"script": true, "style": true,
}

type parser struct {
	src        string
	pos        int
	closeStart int
}

// Parse builds the markup tree of src starting at byte offset start, which is
// normally the first byte after the frontmatter block.
func Parse(src string, start int) (*Node, error) {
	p := &parser{src: src, pos: start}
	root := &Node{Kind: NodeRoot, Start: start}

	for {
		closing, err := p.parseChildren(root)
		if err != nil {
			return nil, err
		}
		if closing == "" {
			break
		}
		// Stray closing tag at top level; keep going.
	}

	root.End = len(src)
	return root, nil
}

func (p *parser) errorf(offset int, format string, args ...interface{}) error {
	return &SyntaxError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// parseChildren consumes markup into parent until a closing tag or EOF. It
// returns the closing tag name, or "" at EOF.
func (p *parser) parseChildren(parent *Node) (string, error) {
	textStart := p.pos
	flush := func(end int) {
		if end > textStart {
			parent.Children = append(parent.Children, &Node{
				Kind: NodeText, Start: textStart, End: end, Parent: parent,
			})
		}
	}

	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case strings.HasPrefix(p.src[p.pos:], "<!--"):
			flush(p.pos)
			start := p.pos
			end := strings.Index(p.src[p.pos+4:], "-->")
			if end < 0 {
				return "", p.errorf(start, "unterminated comment")
			}
			p.pos += 4 + end + 3
			parent.Children = append(parent.Children, &Node{
				Kind: NodeComment, Start: start, End: p.pos, Parent: parent,
			})
			textStart = p.pos

		case c == '<' && p.peek(1) == '/':
			flush(p.pos)
			p.closeStart = p.pos
			end := strings.IndexByte(p.src[p.pos:], '>')
			if end < 0 {
				return "", p.errorf(p.pos, "unterminated closing tag")
			}
			name := strings.TrimSpace(p.src[p.pos+2 : p.pos+end])
			p.pos += end + 1
			return name, nil

		case c == '<' && isTagStart(p.peek(1)):
			flush(p.pos)
			pending, err := p.parseElement(parent)
			if err != nil {
				return "", err
			}
			if pending != "" {
				return pending, nil
			}
			textStart = p.pos

		case c == '{':
			flush(p.pos)
			if _, err := p.parseExpression(parent, true); err != nil {
				return "", err
			}
			textStart = p.pos

		default:
			p.pos++
		}
	}

	flush(p.pos)
	return "", nil
}

func (p *parser) peek(n int) byte {
	if p.pos+n < len(p.src) {
		return p.src[p.pos+n]
	}
	return 0
}

func isTagStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '>'
}

func isNameChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == ':' || c == '@'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) readName() string {
	start := p.pos
	for p.pos < len(p.src) && isNameChar(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

// parseElement parses one element starting at '<'. When a closing tag for an
// ancestor implicitly ends the element, that tag name is returned so the
// ancestor can close too.
func (p *parser) parseElement(parent *Node) (string, error) {
	start := p.pos
	p.pos++
	el := &Node{Kind: NodeElement, Start: start, Parent: parent}
	el.Name = p.readName()
	parent.Children = append(parent.Children, el)

	if err := p.parseAttrs(el); err != nil {
		return "", err
	}
	if el.SelfClosing || voidElements[strings.ToLower(el.Name)] {
		el.End = p.pos
		return "", nil
	}

	if rawTextElements[strings.ToLower(el.Name)] {
		closeTag := "</" + strings.ToLower(el.Name)
		idx := strings.Index(strings.ToLower(p.src[p.pos:]), closeTag)
		if idx < 0 {
			return "", p.errorf(start, "unterminated <%s>", el.Name)
		}
		p.pos += idx
		end := strings.IndexByte(p.src[p.pos:], '>')
		if end < 0 {
			return "", p.errorf(p.pos, "unterminated closing tag")
		}
		p.pos += end + 1
		el.End = p.pos
		return "", nil
	}

	for {
		closing, err := p.parseChildren(el)
		if err != nil {
			return "", err
		}
		if closing == "" && p.pos >= len(p.src) {
			return "", p.errorf(start, "unterminated <%s>", el.Name)
		}
		if closing == el.Name {
			el.End = p.pos
			return "", nil
		}
		if hasAncestor(parent, closing) {
			el.End = p.closeStart
			return closing, nil
		}
		// A closing tag nobody opened is dropped.
	}
}

func hasAncestor(n *Node, name string) bool {
	for ; n != nil; n = n.Parent {
		if n.Kind == NodeElement && n.Name == name {
			return true
		}
		if n.Kind == NodeExpression {
			return false
		}
	}
	return false
}

func (p *parser) parseAttrs(el *Node) error {
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return p.errorf(el.Start, "unterminated <%s> tag", el.Name)
		}

		switch c := p.src[p.pos]; {
		case strings.HasPrefix(p.src[p.pos:], "/>"):
			p.pos += 2
			el.SelfClosing = true
			return nil

		case c == '>':
			p.pos++
			return nil

		case c == '{':
			expr, err := p.parseExpression(el, false)
			if err != nil {
				return err
			}
			inner := strings.TrimSpace(p.src[expr.Start+1 : expr.End-1])
			attr := Attr{Value: inner, Expr: true}
			if strings.HasPrefix(inner, "...") {
				attr.Spread = true
			} else {
				attr.Name = inner
			}
			el.Attrs = append(el.Attrs, attr)

		default:
			name := p.readName()
			if name == "" {
				return p.errorf(p.pos, "unexpected %q in <%s> tag", c, el.Name)
			}
			attr := Attr{Name: name}
			p.skipSpace()
			if p.pos < len(p.src) && p.src[p.pos] == '=' {
				p.pos++
				p.skipSpace()
				value, isExpr, err := p.parseAttrValue(el)
				if err != nil {
					return err
				}
				attr.Value = value
				attr.Expr = isExpr
			}
			el.Attrs = append(el.Attrs, attr)
		}
	}
}

func (p *parser) parseAttrValue(el *Node) (string, bool, error) {
	if p.pos >= len(p.src) {
		return "", false, p.errorf(p.pos, "missing attribute value")
	}
	switch q := p.src[p.pos]; q {
	case '"', '\'':
		end := strings.IndexByte(p.src[p.pos+1:], q)
		if end < 0 {
			return "", false, p.errorf(p.pos, "unterminated attribute value")
		}
		value := p.src[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return value, false, nil
	case '{':
		expr, err := p.parseExpression(el, false)
		if err != nil {
			return "", false, err
		}
		return strings.TrimSpace(p.src[expr.Start+1 : expr.End-1]), true, nil
	default:
		start := p.pos
		for p.pos < len(p.src) && !isSpace(p.src[p.pos]) && p.src[p.pos] != '>' &&
			!strings.HasPrefix(p.src[p.pos:], "/>") {
			p.pos++
		}
		return p.src[start:p.pos], false, nil
	}
}

// parseExpression parses a braced expression starting at '{'. Markup nested
// in the expression becomes children of the returned node. When attach is
// false the node is not added to parent's children.
func (p *parser) parseExpression(parent *Node, attach bool) (*Node, error) {
	start := p.pos
	p.pos++
	expr := &Node{Kind: NodeExpression, Start: start, Parent: parent}
	if attach {
		parent.Children = append(parent.Children, expr)
	}

	depth := 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '"' || c == '\'':
			if err := p.skipString(c); err != nil {
				return nil, err
			}
		case c == '`':
			if err := p.skipTemplateLiteral(expr); err != nil {
				return nil, err
			}
		case strings.HasPrefix(p.src[p.pos:], "//"):
			nl := strings.IndexByte(p.src[p.pos:], '\n')
			if nl < 0 {
				return nil, p.errorf(start, "unterminated expression")
			}
			p.pos += nl + 1
		case strings.HasPrefix(p.src[p.pos:], "/*"):
			end := strings.Index(p.src[p.pos+2:], "*/")
			if end < 0 {
				return nil, p.errorf(p.pos, "unterminated comment")
			}
			p.pos += end + 4
		case c == '<' && isTagStart(p.peek(1)) && p.markupAllowed(start):
			pending, err := p.parseElement(expr)
			if err != nil {
				return nil, err
			}
			if pending != "" {
				return nil, p.errorf(p.closeStart, "unexpected </%s> inside expression", pending)
			}
		case c == '{' || c == '(' || c == '[':
			depth++
			p.pos++
		case c == ')' || c == ']':
			depth--
			p.pos++
		case c == '}':
			p.pos++
			if depth == 0 {
				expr.End = p.pos
				return expr, nil
			}
			depth--
		default:
			p.pos++
		}
	}

	return nil, p.errorf(start, "unterminated expression")
}

// markupAllowed reports whether a '<' at the current position opens markup
// rather than being a comparison operator.
func (p *parser) markupAllowed(exprStart int) bool {
	i := p.pos - 1
	for i > exprStart && isSpace(p.src[i]) {
		i--
	}
	if i <= exprStart {
		return true
	}
	if strings.IndexByte("(,=&|?:{[!>;", p.src[i]) >= 0 {
		return true
	}
	return strings.HasSuffix(p.src[exprStart:i+1], "return")
}

func (p *parser) skipString(q byte) error {
	start := p.pos
	p.pos++
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '\\':
			p.pos += 2
		case q:
			p.pos++
			return nil
		case '\n':
			return p.errorf(start, "unterminated string literal")
		default:
			p.pos++
		}
	}
	return p.errorf(start, "unterminated string literal")
}

func (p *parser) skipTemplateLiteral(parent *Node) error {
	start := p.pos
	p.pos++
	for p.pos < len(p.src) {
		switch {
		case p.src[p.pos] == '\\':
			p.pos += 2
		case p.src[p.pos] == '`':
			p.pos++
			return nil
		case strings.HasPrefix(p.src[p.pos:], "${"):
			p.pos++
			if _, err := p.parseExpression(parent, false); err != nil {
				return err
			}
		default:
			p.pos++
		}
	}
	return p.errorf(start, "unterminated template literal")
}
