package script

import (
	"strconv"
	"strings"

	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// htmlNavigator implements xpath.NodeNavigator over x/net/html nodes.
// pos > 0 means the cursor sits on attribute pos-1 of node.
type htmlNavigator struct {
	root *html.Node
	node *html.Node
	pos  int
}

func newNavigator(root *html.Node) *htmlNavigator {
	return &htmlNavigator{root: root, node: root}
}

func (h *htmlNavigator) onAttr() bool {
	return h.node.Type == html.ElementNode && h.pos > 0 && h.pos <= len(h.node.Attr)
}

func (h *htmlNavigator) NodeType() xpath.NodeType {
	switch h.node.Type {
	case html.DocumentNode:
		return xpath.RootNode
	case html.ElementNode:
		if h.onAttr() {
			return xpath.AttributeNode
		}
		return xpath.ElementNode
	case html.TextNode:
		return xpath.TextNode
	case html.CommentNode, html.DoctypeNode:
		return xpath.CommentNode
	}
	return xpath.ElementNode
}

func (h *htmlNavigator) LocalName() string {
	if h.onAttr() {
		return h.node.Attr[h.pos-1].Key
	}
	if h.node.Type == html.ElementNode {
		return h.node.Data
	}
	return ""
}

func (h *htmlNavigator) Prefix() string { return "" }

// Value is the attribute value on attributes and the text content elsewhere.
func (h *htmlNavigator) Value() string {
	if h.onAttr() {
		return h.node.Attr[h.pos-1].Val
	}
	switch h.node.Type {
	case html.TextNode, html.CommentNode:
		return h.node.Data
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(h.node)
	return sb.String()
}

func (h *htmlNavigator) Copy() xpath.NodeNavigator {
	n := *h
	return &n
}

func (h *htmlNavigator) MoveToRoot() {
	h.node = h.root
	h.pos = 0
}

func (h *htmlNavigator) MoveToParent() bool {
	if h.pos > 0 {
		h.pos = 0
		return true
	}
	if h.node.Parent != nil {
		h.node = h.node.Parent
		return true
	}
	return false
}

func (h *htmlNavigator) MoveToNextAttribute() bool {
	if h.node.Type == html.ElementNode && h.pos < len(h.node.Attr) {
		h.pos++
		return true
	}
	return false
}

func (h *htmlNavigator) MoveToChild() bool {
	if h.pos > 0 || h.node.FirstChild == nil {
		return false
	}
	h.node = h.node.FirstChild
	return true
}

func (h *htmlNavigator) MoveToFirst() bool {
	if h.pos > 0 || h.node.PrevSibling == nil {
		return false
	}
	for h.node.PrevSibling != nil {
		h.node = h.node.PrevSibling
	}
	return true
}

func (h *htmlNavigator) MoveToNext() bool {
	if h.pos > 0 || h.node.NextSibling == nil {
		return false
	}
	h.node = h.node.NextSibling
	return true
}

func (h *htmlNavigator) MoveToPrevious() bool {
	if h.pos > 0 || h.node.PrevSibling == nil {
		return false
	}
	h.node = h.node.PrevSibling
	return true
}

func (h *htmlNavigator) MoveTo(other xpath.NodeNavigator) bool {
	o, ok := other.(*htmlNavigator)
	if !ok || o.root != h.root {
		return false
	}
	h.node = o.node
	h.pos = o.pos
	return true
}

func (h *htmlNavigator) String() string {
	return h.Value()
}

// evaluateXPath runs expr against document and flattens the result to strings.
// Node sets yield one string per node; scalar results yield one string.
func evaluateXPath(document, expr string) ([]string, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, err
	}
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, err
	}

	switch v := compiled.Evaluate(newNavigator(root)).(type) {
	case *xpath.NodeIterator:
		var out []string
		for v.MoveNext() {
			out = append(out, strings.TrimSpace(v.Current().Value()))
		}
		return out, nil
	case string:
		return []string{v}, nil
	case float64:
		return []string{strconv.FormatFloat(v, 'f', -1, 64)}, nil
	case bool:
		if v {
			return []string{"true"}, nil
		}
		return []string{"false"}, nil
	}
	return nil, nil
}
