package web

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// notePolicy keeps the markup the rich-text editor produces and drops the
// rest, including every event handler attribute.
var notePolicy = newNotePolicy()

func newNotePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("span", "div", "mark", "s", "u")
	p.AllowNoAttrs().OnElements("label", "input")
	p.AllowAttrs("data-type").Matching(regexp.MustCompile(`^(taskList|taskItem)$`)).OnElements("ul", "li")
	p.AllowAttrs("data-checked").Matching(regexp.MustCompile(`^(true|false)$`)).OnElements("li")
	p.AllowAttrs("type").Matching(regexp.MustCompile(`(?i)^checkbox$`)).OnElements("input")
	p.AllowAttrs("checked", "disabled").OnElements("input")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[\w+#.-]+$`)).OnElements("code")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

func sanitizeNote(content string) string {
	return notePolicy.Sanitize(content)
}
