package note

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type TextOptions struct {
	// Code, when set, renders the body of a <pre><code> block; lang is taken
	// from a "language-*" class and may be empty.
	Code func(lang, code string) string
}

// Text renders content as readable plain text: one block per line, list items
// prefixed with "- ", task items with "[ ]" or "[x]".
func Text(content string, opts TextOptions) (string, error) {
	nodes, err := parseFragment(content)
	if err != nil {
		return "", err
	}
	w := &textWriter{opts: opts}
	for _, n := range nodes {
		w.node(n, 0)
	}
	w.flush()
	return strings.TrimRight(strings.Join(w.lines, "\n"), "\n") + "\n", nil
}

type textWriter struct {
	opts  TextOptions
	lines []string
	cur   strings.Builder
	pre   string
}

func (w *textWriter) flush() {
	line := strings.Join(strings.Fields(w.cur.String()), " ")
	w.cur.Reset()
	if line == "" && w.pre == "" {
		return
	}
	w.lines = append(w.lines, w.pre+line)
	w.pre = ""
}

func (w *textWriter) node(n *html.Node, depth int) {
	switch n.Type {
	case html.TextNode:
		w.cur.WriteString(n.Data)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.node(c, depth)
		}
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style:
		return
	case atom.Br:
		w.flush()
		return
	case atom.Pre:
		w.flush()
		w.code(n)
		return
	case atom.Input:
		return
	case atom.Ul, atom.Ol:
		w.flush()
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.node(c, depth+1)
		}
		return
	case atom.Li:
		w.flush()
		indent := strings.Repeat("  ", max(depth-1, 0))
		marker := "- "
		item := taskItem{node: n}
		if attr(n, "data-type") == "taskItem" || leadingCheckbox(n) != nil {
			item.gfm = attr(n, "data-type") != "taskItem"
			if item.checked() {
				marker = "[x] "
			} else {
				marker = "[ ] "
			}
		}
		w.pre = indent + marker
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.P || c.DataAtom == atom.Div || c.DataAtom == atom.Label) {
				w.inline(c, depth)
				continue
			}
			w.node(c, depth)
		}
		w.flush()
		return
	}

	block := blockAtoms[n.DataAtom]
	if block {
		w.flush()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c, depth)
	}
	if block {
		w.flush()
	}
}

// inline walks a wrapper inside a list item without breaking the line, so the
// item's marker stays on the same line as its text.
func (w *textWriter) inline(n *html.Node, depth int) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.P || c.DataAtom == atom.Div || c.DataAtom == atom.Label || c.DataAtom == atom.Span) {
			w.inline(c, depth)
			continue
		}
		w.node(c, depth)
	}
}

func (w *textWriter) code(pre *html.Node) {
	lang := ""
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Code && lang == "" {
			lang = codeLanguage(n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(pre)
	body := strings.TrimRight(b.String(), "\n")
	if w.opts.Code != nil {
		body = strings.TrimRight(w.opts.Code(lang, body), "\n")
	}
	w.lines = append(w.lines, strings.Split(body, "\n")...)
}

func codeLanguage(code *html.Node) string {
	for _, class := range strings.Fields(attr(code, "class")) {
		if lang, ok := strings.CutPrefix(class, "language-"); ok {
			return lang
		}
	}
	return ""
}

// CodeLanguage exposes the language hint of a <code> element for renderers.
func CodeLanguage(code *html.Node) string {
	return codeLanguage(code)
}
