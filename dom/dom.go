// Package dom exposes the small set of document queries the parsers need,
// independent of the parse tree implementation underneath.
package dom

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Node is an element of a parsed page. All multi-result queries walk the
// subtree in document order and include the receiver when it matches.
type Node interface {
	ID() string
	Tag() string
	Text() string
	Attr(name string) string
	HasAttr(name string) bool
	HasClass(class string) bool

	ByID(id string) (Node, bool)
	ByClass(class string) []Node
	ByTag(tag string) []Node
	ByAttr(name string) []Node
	ByAttrValue(name, value string) []Node
}

// First returns the first node of a query result.
func First(nodes []Node) (Node, bool) {
	if len(nodes) == 0 {
		return nil, false
	}
	return nodes[0], true
}

func Parse(r io.Reader) (Node, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &element{n: root}, nil
}

func ParseString(s string) (Node, error) {
	return Parse(strings.NewReader(s))
}

// Wrap adapts an already parsed tree.
func Wrap(n *html.Node) Node {
	return &element{n: n}
}

type element struct {
	n *html.Node
}

func (e *element) ID() string { return e.Attr("id") }

func (e *element) Tag() string {
	if e.n.Type != html.ElementNode {
		return ""
	}
	return e.n.Data
}

func (e *element) Attr(name string) string {
	v, _ := e.attr(name)
	return v
}

func (e *element) HasAttr(name string) bool {
	_, ok := e.attr(name)
	return ok
}

func (e *element) attr(name string) (string, bool) {
	for _, a := range e.n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func (e *element) HasClass(class string) bool {
	return hasClass(e.n, class)
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode || class == "" {
		return false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

// Text returns the text of all descendants, whitespace collapsed.
func (e *element) Text() string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Br:
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func (e *element) ByID(id string) (Node, bool) {
	if id == "" {
		return nil, false
	}
	var found *html.Node
	e.walk(func(n *html.Node) bool {
		if attrEquals(n, "id", id) {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil, false
	}
	return &element{n: found}, true
}

func (e *element) ByClass(class string) []Node {
	return e.collect(func(n *html.Node) bool { return hasClass(n, class) })
}

func (e *element) ByTag(tag string) []Node {
	return e.collect(func(n *html.Node) bool { return strings.EqualFold(n.Data, tag) })
}

func (e *element) ByAttr(name string) []Node {
	return e.collect(func(n *html.Node) bool {
		_, ok := (&element{n: n}).attr(name)
		return ok
	})
}

func (e *element) ByAttrValue(name, value string) []Node {
	return e.collect(func(n *html.Node) bool { return attrEquals(n, name, value) })
}

func attrEquals(n *html.Node, name, value string) bool {
	v, ok := (&element{n: n}).attr(name)
	return ok && v == value
}

func (e *element) collect(match func(*html.Node) bool) []Node {
	var nodes []Node
	e.walk(func(n *html.Node) bool {
		if match(n) {
			nodes = append(nodes, &element{n: n})
		}
		return true
	})
	return nodes
}

// walk visits element nodes in pre-order, starting at the receiver, until
// visit returns false.
func (e *element) walk(visit func(*html.Node) bool) {
	var rec func(*html.Node) bool
	rec = func(n *html.Node) bool {
		if n.Type == html.ElementNode && !visit(n) {
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !rec(c) {
				return false
			}
		}
		return true
	}
	rec(e.n)
}
