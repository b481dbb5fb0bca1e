// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dom builds a lenient element tree from publisher HTML and the
// JATS-flavoured XML some journals serve. Unlike full HTML5 tree
// construction it keeps elements where the document put them: captions
// outside tables and unknown XML tags survive intact. Unmatched end tags
// are ignored and unclosed elements end at their parent's end tag. The
// optional end tags of table cells, rows, row groups, paragraphs and list
// items are implied the way browsers imply them.
package dom

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// NodeType distinguishes element nodes from text nodes.
type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
)

// Node is an element or a run of text.
type Node struct {
	Type     NodeType
	Tag      string
	Attrs    []html.Attribute
	Data     string
	Parent   *Node
	Children []*Node
}

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

var hiddenTags = map[string]bool{"script": true, "style": true}

func tagSet(tags ...string) map[string]bool {
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return m
}

var (
	tableScope = tagSet("table")
	listScope  = tagSet("ul", "ol", "menu")

	// Elements whose start closes what is listed, up to the scope.
	impliedBy = map[string]struct{ closes, scope map[string]bool }{
		"td":    {tagSet("td", "th"), tableScope},
		"th":    {tagSet("td", "th"), tableScope},
		"tr":    {tagSet("tr", "td", "th"), tableScope},
		"thead": {tagSet("thead", "tbody", "tfoot", "tr", "td", "th"), tableScope},
		"tbody": {tagSet("thead", "tbody", "tfoot", "tr", "td", "th"), tableScope},
		"tfoot": {tagSet("thead", "tbody", "tfoot", "tr", "td", "th"), tableScope},
		"li":    {tagSet("li"), listScope},
	}

	// Block starts that end an open paragraph.
	closesP = tagSet("p", "div", "table", "ul", "ol", "dl", "pre", "blockquote",
		"h1", "h2", "h3", "h4", "h5", "h6", "hr", "section", "form")

	phrasingTags = tagSet("a", "abbr", "b", "cite", "code", "em", "font", "i",
		"small", "span", "strong", "sub", "sup", "u")
)

// closeImplied pops the elements a start tag implicitly ends.
func closeImplied(stack []*Node, tag string) []*Node {
	if closesP[tag] {
		for i := len(stack) - 1; i > 0; i-- {
			t := stack[i].Tag
			if t == "p" {
				stack = stack[:i]
				break
			}
			if !phrasingTags[t] {
				break
			}
		}
	}
	rule, ok := impliedBy[tag]
	if !ok {
		return stack
	}
	cut := -1
	for i := len(stack) - 1; i > 0; i-- {
		t := stack[i].Tag
		if rule.scope[t] {
			break
		}
		if rule.closes[t] {
			cut = i
		}
	}
	if cut < 0 {
		return stack
	}
	return stack[:cut]
}

// Parse reads a document and returns its root. The root is a synthetic
// element with an empty tag.
func Parse(r io.Reader) (*Node, error) {
	root := &Node{Type: ElementNode}
	if err := parseInto(root, r); err != nil {
		return nil, err
	}
	return root, nil
}

// ParseString parses s. Reading from a string cannot fail.
func ParseString(s string) *Node {
	root, _ := Parse(strings.NewReader(s))
	return root
}

func parseInto(root *Node, r io.Reader) error {
	z := html.NewTokenizer(r)
	stack := []*Node{root}
	top := func() *Node { return stack[len(stack)-1] }

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return err
			}
			return nil

		case html.TextToken:
			cur := top()
			raw := z.Raw()
			// The tokenizer reads <title> as raw text; JATS titles carry
			// inline markup, so parse it again as a fragment.
			if cur.Tag == "title" && bytes.ContainsRune(raw, '<') {
				if err := parseInto(cur, bytes.NewReader(append([]byte(nil), raw...))); err != nil {
					return err
				}
				continue
			}
			cur.appendChild(&Node{Type: TextNode, Data: string(z.Text())})

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			n := &Node{Type: ElementNode, Tag: string(name)}
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				n.Attrs = append(n.Attrs, html.Attribute{Key: string(k), Val: string(v)})
			}
			stack = closeImplied(stack, n.Tag)
			top().appendChild(n)
			if tt == html.StartTagToken && !voidTags[n.Tag] {
				stack = append(stack, n)
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			for i := len(stack) - 1; i > 0; i-- {
				if stack[i].Tag == tag {
					stack = stack[:i]
					break
				}
			}
		}
	}
}

func (n *Node) appendChild(c *Node) {
	c.Parent = n
	n.Children = append(n.Children, c)
}

// Attr returns the value of attribute key.
func (n *Node) Attr(key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// HasClass reports whether the class attribute lists cls.
func (n *Node) HasClass(cls string) bool {
	v, ok := n.Attr("class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == cls {
			return true
		}
	}
	return false
}

// Matcher selects nodes.
type Matcher func(*Node) bool

// Tag matches elements with any of the given tag names.
func Tag(names ...string) Matcher {
	return func(n *Node) bool {
		if n.Type != ElementNode {
			return false
		}
		for _, name := range names {
			if n.Tag == name {
				return true
			}
		}
		return false
	}
}

// Class matches tag elements carrying class cls. An empty tag matches any
// element.
func Class(tag, cls string) Matcher {
	return func(n *Node) bool {
		return n.Type == ElementNode && (tag == "" || n.Tag == tag) && n.HasClass(cls)
	}
}

// AttrEquals matches tag elements whose attribute key equals val.
func AttrEquals(tag, key, val string) Matcher {
	return func(n *Node) bool {
		if n.Type != ElementNode || (tag != "" && n.Tag != tag) {
			return false
		}
		v, ok := n.Attr(key)
		return ok && v == val
	}
}

// AttrMatches matches tag elements whose attribute key matches re.
func AttrMatches(tag, key string, re *regexp.Regexp) Matcher {
	return func(n *Node) bool {
		if n.Type != ElementNode || (tag != "" && n.Tag != tag) {
			return false
		}
		v, ok := n.Attr(key)
		return ok && re.MatchString(v)
	}
}

// Find returns the first descendant matching m in document order, or nil.
func (n *Node) Find(m Matcher) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if m(c) {
			return c
		}
		if f := c.Find(m); f != nil {
			return f
		}
	}
	return nil
}

// FindAll returns every descendant matching m in document order.
func (n *Node) FindAll(m Matcher) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	var walk func(*Node)
	walk = func(p *Node) {
		for _, c := range p.Children {
			if m(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// ChildElements returns the direct element children matching m.
func (n *Node) ChildElements(m Matcher) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if m(c) {
			out = append(out, c)
		}
	}
	return out
}

// Text returns the concatenated text beneath n, skipping scripts and styles.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	n.writeText(&sb)
	return sb.String()
}

func (n *Node) writeText(sb *strings.Builder) {
	if n.Type == TextNode {
		sb.WriteString(n.Data)
		return
	}
	if hiddenTags[n.Tag] {
		return
	}
	for _, c := range n.Children {
		c.writeText(sb)
	}
}

// Remove detaches n from its parent.
func (n *Node) Remove() {
	p := n.Parent
	if p == nil {
		return
	}
	for i, c := range p.Children {
		if c == n {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			break
		}
	}
	n.Parent = nil
}

// Render serializes n and its descendants back to markup.
func (n *Node) Render() string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	n.render(&sb)
	return sb.String()
}

func (n *Node) render(sb *strings.Builder) {
	if n.Type == TextNode {
		if n.Parent != nil && hiddenTags[n.Parent.Tag] {
			sb.WriteString(n.Data)
		} else {
			sb.WriteString(html.EscapeString(n.Data))
		}
		return
	}
	if n.Tag != "" {
		sb.WriteByte('<')
		sb.WriteString(n.Tag)
		for _, a := range n.Attrs {
			sb.WriteByte(' ')
			sb.WriteString(a.Key)
			sb.WriteString(`="`)
			sb.WriteString(html.EscapeString(a.Val))
			sb.WriteByte('"')
		}
		sb.WriteByte('>')
		if voidTags[n.Tag] {
			return
		}
	}
	for _, c := range n.Children {
		c.render(sb)
	}
	if n.Tag != "" {
		sb.WriteString("</")
		sb.WriteString(n.Tag)
		sb.WriteByte('>')
	}
}
