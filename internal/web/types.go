package web

import (
	"html/template"
	"time"

	"notefade/internal/note"
	"notefade/internal/session"
)

type ViewData struct {
	Title           string
	ContentTemplate string
	ContentHTML     template.HTML
	Toasts          []Toast
	Now             time.Time

	Create   *CreatePage
	Note     *NotePage
	NotFound *NotFoundPage
}

type CreatePage struct {
	Content       string
	Format        string
	DurationHours int
	EditMode      note.EditMode
	Durations     []session.DurationOption
	Modes         []note.EditMode
}

type NotePage struct {
	Code         string
	HTML         template.HTML
	Draft        string
	State        note.ViewState
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
	Edited       bool
	Pending      bool
	Shared       bool
	ShareURL     string
	EditModeText string
}

type NotFoundPage struct {
	Code    string
	Message string
}
