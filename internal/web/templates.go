package web

import (
	"bytes"
	"html/template"
	"net/http"
	"path/filepath"
	"runtime"
	"time"

	"notefade/internal/note"
)

type Templates struct {
	all *template.Template
}

var templateFuncs = template.FuncMap{
	"relative": note.FormatRelative,
	"datetime": note.FormatDateTime,
	"isoTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	},
}

// MustParseTemplates loads templates/*.html from the module root.
func MustParseTemplates() *Templates {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("unable to resolve template path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
	t := template.Must(template.New("").Funcs(templateFuncs).ParseGlob(filepath.Join(root, "templates", "*.html")))
	return &Templates{all: t}
}

// RenderPage renders data.ContentTemplate inside the base layout. Nothing is
// written until both succeed.
func (t *Templates) RenderPage(w http.ResponseWriter, status int, data ViewData) {
	var content bytes.Buffer
	if err := t.all.ExecuteTemplate(&content, data.ContentTemplate, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data.ContentHTML = template.HTML(content.String())
	t.RenderTemplate(w, status, "base", data)
}

// RenderTemplate renders one named template, used for HX partial swaps.
func (t *Templates) RenderTemplate(w http.ResponseWriter, status int, name string, data ViewData) {
	var buf bytes.Buffer
	if err := t.all.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
