package web

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"notefade/internal/note"
)

var (
	codeStyle     = styles.Get("github")
	codeFormatter = chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4))
)

// renderNoteHTML prepares stored content for display. Markup outside the
// editor's vocabulary is stripped first. Checkboxes get their task index and
// are enabled only when interactive. Code blocks are highlighted.
func renderNoteHTML(content string, interactive bool) (template.HTML, error) {
	annotated, err := note.AnnotateTasks(sanitizeNote(content), interactive)
	if err != nil {
		return "", err
	}
	highlighted, err := highlightCode(annotated)
	if err != nil {
		return "", err
	}
	return template.HTML(highlighted), nil
}

func highlightCode(content string) (string, error) {
	if !strings.Contains(content, "<pre") {
		return content, nil
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return "", fmt.Errorf("parse content: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	var blocks []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Pre {
			blocks = append(blocks, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
	for _, pre := range blocks {
		replaceCodeBlock(pre)
	}
	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render content: %w", err)
		}
	}
	return buf.String(), nil
}

// replaceCodeBlock swaps pre for chroma's output. Blocks that fail to
// highlight are left as they are.
func replaceCodeBlock(pre *html.Node) {
	code := pre.FirstChild
	for code != nil && !(code.Type == html.ElementNode && code.DataAtom == atom.Code) {
		code = code.NextSibling
	}
	if code == nil {
		return
	}
	lang := note.CodeLanguage(code)
	var src strings.Builder
	collectRaw(&src, code)

	highlighted, err := highlight(lang, src.String())
	if err != nil {
		return
	}
	parent := pre.Parent
	replacement, err := html.ParseFragment(strings.NewReader(highlighted), parent)
	if err != nil {
		return
	}
	for _, n := range replacement {
		parent.InsertBefore(n, pre)
	}
	parent.RemoveChild(pre)
}

func highlight(lang, src string) (string, error) {
	lexer := lexers.Get(lang)
	if lexer == nil && lang == "" {
		lexer = lexers.Analyse(src)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)
	iterator, err := lexer.Tokenise(nil, src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := codeFormatter.Format(&buf, codeStyle, iterator); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func collectRaw(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			continue
		}
		if c.Type == html.ElementNode && c.DataAtom == atom.Br {
			b.WriteString("\n")
			continue
		}
		collectRaw(b, c)
	}
}
