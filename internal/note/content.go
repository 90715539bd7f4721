package note

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	ErrTaskIndex       = errors.New("task index out of range")
	ErrNonCheckboxEdit = errors.New("content differs in more than checkbox state")
)

type Task struct {
	Index   int
	Text    string
	Checked bool
	Depth   int
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// IsEmpty reports whether content has no visible text once markup is removed.
// A task list whose items carry no text is empty.
func IsEmpty(content string) bool {
	nodes, err := parseFragment(content)
	if err != nil {
		return strings.TrimSpace(tagPattern.ReplaceAllString(content, "")) == ""
	}
	for _, n := range nodes {
		if hasVisibleText(n) {
			return false
		}
	}
	return true
}

func hasVisibleText(n *html.Node) bool {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data) != ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasVisibleText(c) {
			return true
		}
	}
	return false
}

// PlainText returns the visible text with runs of whitespace collapsed.
func PlainText(content string) string {
	nodes, err := parseFragment(content)
	if err != nil {
		return strings.Join(strings.Fields(tagPattern.ReplaceAllString(content, " ")), " ")
	}
	var b strings.Builder
	for _, n := range nodes {
		collectText(&b, n, false)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Preview cuts the plain text to at most limit runes and marks the cut.
func Preview(content string, limit int) string {
	text := PlainText(content)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

func Tasks(content string) ([]Task, error) {
	nodes, err := parseFragment(content)
	if err != nil {
		return nil, err
	}
	var tasks []Task
	for _, item := range taskItems(nodes) {
		var b strings.Builder
		collectText(&b, item.node, true)
		tasks = append(tasks, Task{
			Index:   len(tasks),
			Text:    strings.Join(strings.Fields(b.String()), " "),
			Checked: item.checked(),
			Depth:   item.depth,
		})
	}
	return tasks, nil
}

func ToggleTask(content string, index int) (string, error) {
	tasks, err := Tasks(content)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(tasks) {
		return "", fmt.Errorf("%w: %d of %d", ErrTaskIndex, index, len(tasks))
	}
	return SetTask(content, index, !tasks[index].Checked)
}

// SetTask changes a single checkbox and re-serialises the document. Setting a
// checkbox to the state it already has returns content unchanged.
func SetTask(content string, index int, checked bool) (string, error) {
	nodes, err := parseFragment(content)
	if err != nil {
		return "", err
	}
	items := taskItems(nodes)
	if index < 0 || index >= len(items) {
		return "", fmt.Errorf("%w: %d of %d", ErrTaskIndex, index, len(items))
	}
	if items[index].checked() == checked {
		return content, nil
	}
	items[index].set(checked)
	return renderFragment(nodes)
}

// CheckboxOnlyChange returns nil when after differs from before in checkbox
// state alone.
func CheckboxOnlyChange(before, after string) error {
	a, err := checkboxShape(before)
	if err != nil {
		return err
	}
	b, err := checkboxShape(after)
	if err != nil {
		return err
	}
	if a != b {
		return ErrNonCheckboxEdit
	}
	return nil
}

func checkboxShape(content string) (string, error) {
	nodes, err := parseFragment(content)
	if err != nil {
		return "", err
	}
	for _, item := range taskItems(nodes) {
		item.set(false)
	}
	return renderFragment(nodes)
}

// AnnotateTasks stamps every checkbox input with its task index and enables or
// disables it. Pages use it to wire toggles without touching stored content.
func AnnotateTasks(content string, interactive bool) (string, error) {
	nodes, err := parseFragment(content)
	if err != nil {
		return "", err
	}
	items := taskItems(nodes)
	if len(items) == 0 {
		return content, nil
	}
	for i, item := range items {
		input := item.input()
		if input == nil {
			continue
		}
		setAttr(input, "data-task-index", fmt.Sprint(i))
		if interactive {
			removeAttr(input, "disabled")
		} else {
			setAttr(input, "disabled", "")
		}
	}
	return renderFragment(nodes)
}

type taskItem struct {
	node  *html.Node
	depth int
	// gfm items carry their state on the input; TipTap items on data-checked.
	gfm bool
}

func (t taskItem) checked() bool {
	if t.gfm {
		return hasAttr(t.input(), "checked")
	}
	return attr(t.node, "data-checked") == "true"
}

func (t taskItem) set(checked bool) {
	if !t.gfm {
		setAttr(t.node, "data-checked", fmt.Sprint(checked))
	}
	input := t.input()
	if input == nil {
		return
	}
	if checked {
		setAttr(input, "checked", "checked")
	} else {
		removeAttr(input, "checked")
	}
}

// input finds the item's own checkbox, skipping nested lists.
func (t taskItem) input() *html.Node {
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil && found == nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom == atom.Ul || c.DataAtom == atom.Ol {
				continue
			}
			if isCheckbox(c) {
				found = c
				return
			}
			walk(c)
		}
	}
	walk(t.node)
	return found
}

func taskItems(nodes []*html.Node) []taskItem {
	var items []taskItem
	var walk func(n *html.Node, depth int)
	walk = func(n *html.Node, depth int) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Li {
			switch {
			case attr(n, "data-type") == "taskItem":
				items = append(items, taskItem{node: n, depth: depth})
				depth++
			case leadingCheckbox(n) != nil:
				items = append(items, taskItem{node: n, depth: depth, gfm: true})
				depth++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, depth)
		}
	}
	for _, n := range nodes {
		walk(n, 0)
	}
	return items
}

// leadingCheckbox matches the GFM shapes <li><input type=checkbox>… and
// <li><p><input type=checkbox>….
func leadingCheckbox(li *html.Node) *html.Node {
	first := firstElementChild(li)
	if first == nil {
		return nil
	}
	if isCheckbox(first) {
		return first
	}
	if first.DataAtom == atom.P {
		if inner := firstElementChild(first); inner != nil && isCheckbox(inner) {
			return inner
		}
	}
	return nil
}

func firstElementChild(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			return c
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return nil
			}
		}
	}
	return nil
}

func isCheckbox(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == atom.Input &&
		strings.EqualFold(attr(n, "type"), "checkbox")
}

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Blockquote: true, atom.Br: true, atom.Hr: true, atom.Table: true,
	atom.Tr: true, atom.Td: true, atom.Th: true,
}

// collectText appends visible text; ownOnly skips nested lists so a task's
// text does not include its children.
func collectText(b *strings.Builder, n *html.Node, ownOnly bool) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if ownOnly && (n.DataAtom == atom.Ul || n.DataAtom == atom.Ol) {
			return
		}
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
	}
	block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
	if block {
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, ownOnly)
	}
	if block {
		b.WriteByte(' ')
	}
}

func parseFragment(content string) ([]*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	// Re-parent so sibling walks and RemoveChild work on the fragment.
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return nodes, nil
}

func renderFragment(nodes []*html.Node) (string, error) {
	var b strings.Builder
	for _, n := range nodes {
		if err := html.Render(&b, n); err != nil {
			return "", fmt.Errorf("render content: %w", err)
		}
	}
	return b.String(), nil
}

func attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	if n == nil {
		return false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

func isSpaceOnly(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
