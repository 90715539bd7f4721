package note

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var mdRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// FromMarkdown renders Markdown to note markup. GFM task lists come out in the
// editor's task-list shape so they toggle like notes written in the editor.
func FromMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	nodes, err := parseFragment(buf.String())
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		convertTaskLists(n)
	}
	out, err := renderFragment(nodes)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func convertTaskLists(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		convertTaskLists(c)
	}
	if n.Type != html.ElementNode || n.DataAtom != atom.Ul {
		return
	}
	var items []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && isSpaceOnly(c.Data) {
			continue
		}
		if c.Type != html.ElementNode || c.DataAtom != atom.Li || leadingCheckbox(c) == nil {
			return
		}
		items = append(items, c)
	}
	if len(items) == 0 {
		return
	}
	setAttr(n, "data-type", "taskList")
	for _, li := range items {
		convertTaskItem(li)
	}
}

func convertTaskItem(li *html.Node) {
	input := leadingCheckbox(li)
	checked := hasAttr(input, "checked")
	input.Parent.RemoveChild(input)

	var kids []*html.Node
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		kids = append(kids, c)
	}
	for _, c := range kids {
		li.RemoveChild(c)
	}

	box := element(atom.Input, html.Attribute{Key: "type", Val: "checkbox"})
	if checked {
		setAttr(box, "checked", "checked")
	}
	label := element(atom.Label)
	label.AppendChild(box)
	label.AppendChild(element(atom.Span))

	div := element(atom.Div)
	var para *html.Node
	for _, c := range kids {
		if c.Type == html.ElementNode && blockAtoms[c.DataAtom] {
			para = nil
			div.AppendChild(c)
			continue
		}
		if c.Type == html.TextNode && isSpaceOnly(c.Data) && para == nil {
			continue
		}
		if para == nil {
			para = element(atom.P)
			div.AppendChild(para)
		}
		para.AppendChild(c)
	}
	trimLeadingSpace(div)

	li.Attr = []html.Attribute{
		{Key: "data-type", Val: "taskItem"},
		{Key: "data-checked", Val: fmt.Sprint(checked)},
	}
	li.AppendChild(label)
	li.AppendChild(div)
}

func trimLeadingSpace(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.FirstChild {
		if c.Type == html.TextNode {
			c.Data = strings.TrimLeft(c.Data, " \t\n")
			return
		}
	}
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}
