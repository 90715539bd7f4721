package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"notefade/internal/api"
	"notefade/internal/note"
	"notefade/internal/session"
)

const leaveTimeout = 10 * time.Second

type createForm struct {
	Content       string `form:"content"`
	Format        string `form:"format"`
	DurationHours int    `form:"duration"`
	EditMode      string `form:"edit_mode"`
}

type contentForm struct {
	Content string `form:"content" json:"content"`
}

type taskForm struct {
	Checked *bool `form:"checked" json:"checked"`
}

func (s *Server) page(r *http.Request, title, tmpl string) ViewData {
	return ViewData{
		Title:           title,
		ContentTemplate: tmpl,
		Toasts:          s.toasts.List(toastKey(r)),
		Now:             time.Now(),
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.renderNotFound(w, r, "", http.StatusNotFound, "Page not found.")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.renderCreate(w, r, http.StatusOK, createForm{})
	case http.MethodPost:
		s.handleCreate(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in createForm
	if err := s.decodeInput(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	content := in.Content
	if strings.EqualFold(strings.TrimSpace(in.Format), "markdown") {
		converted, err := note.FromMarkdown(content)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content = converted
	}
	created, err := session.Create(r.Context(), s.creator, session.Draft{
		Content:       content,
		DurationHours: in.DurationHours,
		EditMode:      note.EditMode(in.EditMode),
	})
	if err != nil {
		slog.Info("create note failed", "err", err)
		s.addToast(r, toastError, messageFor(err))
		s.renderCreate(w, r, statusFor(err), in)
		return
	}
	slog.Info("note created", "url_code", created.URLCode, "expires_at", created.ExpiresAt)
	s.addToast(r, toastSuccess, "Note created. Share the link below.")
	http.Redirect(w, r, notePath(created.URLCode)+"?shared=1", http.StatusSeeOther)
}

func (s *Server) renderCreate(w http.ResponseWriter, r *http.Request, status int, in createForm) {
	hours := in.DurationHours
	if !session.ValidDuration(hours) {
		hours = session.DefaultDurationHours
	}
	format := "html"
	if strings.EqualFold(strings.TrimSpace(in.Format), "markdown") {
		format = "markdown"
	}
	data := s.page(r, "New note", "create")
	data.Create = &CreatePage{
		Content:       in.Content,
		Format:        format,
		DurationHours: hours,
		EditMode:      note.EditMode(in.EditMode).OrDefault(),
		Durations:     session.DurationOptions,
		Modes:         note.Modes,
	}
	s.views.RenderPage(w, status, data)
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.EscapedPath(), "/note/"), "/")
	rawCode, action, _ := strings.Cut(rest, "/")
	code, err := url.PathUnescape(rawCode)
	if err != nil || strings.TrimSpace(code) == "" {
		s.renderNotFound(w, r, "", http.StatusNotFound, "Note not found or has expired.")
		return
	}
	switch {
	case action == "":
		s.handleViewNote(w, r, code)
	case action == "edit":
		s.handleEditNote(w, r, code)
	case action == "save":
		s.handleSaveNote(w, r, code)
	case action == "cancel":
		s.handleCancelEdit(w, r, code)
	case action == "content":
		s.handleSubmitContent(w, r, code)
	case action == "leave":
		s.handleLeave(w, r, code)
	case strings.HasPrefix(action, "tasks/"):
		s.handleTask(w, r, code, strings.TrimPrefix(action, "tasks/"))
	default:
		s.renderNotFound(w, r, code, http.StatusNotFound, "Page not found.")
	}
}

// handleViewNote refetches the note on every page load, the same as a fresh
// mount of the page. Pending checkbox changes are flushed first.
func (s *Server) handleViewNote(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	vid := visitorID(r)
	v, created, err := s.registry.Get(r.Context(), vid, code)
	if err == nil && !created {
		v, err = s.registry.Reload(r.Context(), vid, code)
	}
	if err != nil {
		s.renderFetchError(w, r, code, err)
		return
	}
	s.renderNote(w, r, http.StatusOK, v)
}

func (s *Server) handleEditNote(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	v, ok := s.openView(w, r, code)
	if !ok {
		return
	}
	if err := v.EnterFullEdit(); err != nil {
		s.failNote(w, r, v, err)
		return
	}
	s.renderNote(w, r, http.StatusOK, v)
}

func (s *Server) handleSaveNote(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in contentForm
	if err := s.decodeInput(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, ok := s.openView(w, r, code)
	if !ok {
		return
	}
	if !v.Editing() {
		if err := v.EnterFullEdit(); err != nil {
			s.failNote(w, r, v, err)
			return
		}
	}
	if err := v.SetDraft(in.Content); err != nil {
		s.failNote(w, r, v, err)
		return
	}
	if err := v.Save(r.Context()); err != nil {
		s.failNote(w, r, v, err)
		return
	}
	s.addToast(r, toastSuccess, "Note saved.")
	s.succeedNote(w, r, v)
}

func (s *Server) handleCancelEdit(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	v, ok := s.registry.Lookup(visitorID(r), code)
	if !ok {
		http.Redirect(w, r, notePath(code), http.StatusSeeOther)
		return
	}
	v.CancelEdit()
	s.succeedNote(w, r, v)
}

// handleTask toggles one checkbox, or sets it when the request says which
// state it wants. The change is saved by the view's autosave.
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request, code, rawIndex string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	index, err := strconv.Atoi(rawIndex)
	if err != nil || index < 0 {
		http.Error(w, "invalid task index", http.StatusBadRequest)
		return
	}
	var in taskForm
	if err := s.decodeInput(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := s.registry.Do(r.Context(), visitorID(r), code, func(v *session.View) error {
		if in.Checked != nil {
			return v.SetTask(index, *in.Checked)
		}
		_, err := v.ToggleTask(index)
		return err
	})
	s.finishNote(w, r, code, v, err)
}

func (s *Server) handleSubmitContent(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in contentForm
	if err := s.decodeInput(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := s.registry.Do(r.Context(), visitorID(r), code, func(v *session.View) error {
		return v.SubmitCheckboxContent(in.Content)
	})
	s.finishNote(w, r, code, v, err)
}

// handleLeave is the page's teardown beacon. The view is closed, which
// flushes pending checkbox changes before the response is written.
func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), leaveTimeout)
	defer cancel()
	if err := s.registry.Release(ctx, visitorID(r), code); err != nil {
		slog.Warn("flush on leave failed", "url_code", code, "err", err)
		http.Error(w, messageFor(err), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	code := extractCode(r.URL.Query().Get("code"))
	if code == "" {
		s.addToast(r, toastInfo, "Enter a note code or link.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, notePath(code), http.StatusSeeOther)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// finishNote writes the outcome of a registry.Do call on the note page.
func (s *Server) finishNote(w http.ResponseWriter, r *http.Request, code string, v *session.View, err error) {
	switch {
	case v == nil:
		s.renderFetchError(w, r, code, err)
	case err != nil:
		s.failNote(w, r, v, err)
	default:
		s.succeedNote(w, r, v)
	}
}

// openView returns the visitor's view of code, opening it when needed. On
// failure the not-found page has already been written.
func (s *Server) openView(w http.ResponseWriter, r *http.Request, code string) (*session.View, bool) {
	v, _, err := s.registry.Get(r.Context(), visitorID(r), code)
	if err != nil {
		s.renderFetchError(w, r, code, err)
		return nil, false
	}
	return v, true
}

func (s *Server) notePage(r *http.Request, v *session.View) (*NotePage, error) {
	n := v.Note()
	state := v.State()
	body, err := renderNoteHTML(n.Content, state.CanToggleCheckboxes)
	if err != nil {
		return nil, err
	}
	return &NotePage{
		Code:         v.Code(),
		HTML:         body,
		Draft:        v.Draft(),
		State:        state,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
		ExpiresAt:    n.ExpiresAt,
		Edited:       n.Edited(),
		Pending:      v.Pending(),
		Shared:       r.URL.Query().Get("shared") == "1",
		ShareURL:     session.ShareURL(s.publicURL(r), api.Created{URLCode: v.Code()}),
		EditModeText: state.Mode.Description(),
	}, nil
}

// renderNote writes the note body alone for HX requests and the full page
// otherwise.
func (s *Server) renderNote(w http.ResponseWriter, r *http.Request, status int, v *session.View) {
	page, err := s.notePage(r, v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data := s.page(r, "Note "+v.Code(), "view")
	data.Note = page
	if isHX(r) {
		s.views.RenderTemplate(w, status, "note_body", data)
		return
	}
	s.views.RenderPage(w, status, data)
}

func (s *Server) succeedNote(w http.ResponseWriter, r *http.Request, v *session.View) {
	if isHX(r) {
		s.renderNote(w, r, http.StatusOK, v)
		return
	}
	http.Redirect(w, r, notePath(v.Code()), http.StatusSeeOther)
}

// failNote reports err as a toast and redraws the note in place, so a failed
// save keeps its draft on screen.
func (s *Server) failNote(w http.ResponseWriter, r *http.Request, v *session.View, err error) {
	slog.Info("note action failed", "url_code", v.Code(), "path", r.URL.Path, "err", err)
	s.addToast(r, toastError, messageFor(err))
	s.renderNote(w, r, statusFor(err), v)
}

func (s *Server) renderFetchError(w http.ResponseWriter, r *http.Request, code string, err error) {
	slog.Info("note unavailable", "url_code", code, "category", api.CategoryOf(err).String(), "err", err)
	s.renderNotFound(w, r, code, statusFor(err), api.UserMessage(err))
}

func (s *Server) renderNotFound(w http.ResponseWriter, r *http.Request, code string, status int, message string) {
	data := s.page(r, "Note not found", "not_found")
	data.NotFound = &NotFoundPage{Code: code, Message: message}
	s.views.RenderPage(w, status, data)
}

func (s *Server) decodeInput(r *http.Request, dst any) error {
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
		if err := dec.Decode(dst); err != nil {
			return errors.New("invalid JSON body")
		}
		return nil
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return err
	}
	return s.forms.Decode(dst, r.Form)
}

const maxBodyBytes = 2 << 20

func (s *Server) publicURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func notePath(code string) string {
	return "/note/" + url.PathEscape(code)
}

// extractCode accepts a bare code or a pasted link to a note.
func extractCode(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.LastIndex(raw, "/note/"); i >= 0 {
		raw = raw[i+len("/note/"):]
	}
	raw, _, _ = strings.Cut(raw, "?")
	raw, _, _ = strings.Cut(raw, "#")
	raw = strings.Trim(raw, "/")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	return strings.TrimSpace(raw)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, session.ErrClosed), errors.Is(err, session.ErrNotEditing):
		return http.StatusConflict
	case errors.Is(err, session.ErrEmptyDraft),
		errors.Is(err, session.ErrEmptyContent),
		errors.Is(err, session.ErrInvalidDuration),
		errors.Is(err, session.ErrInvalidEditMode),
		errors.Is(err, note.ErrTaskIndex):
		return http.StatusUnprocessableEntity
	}
	switch api.CategoryOf(err) {
	case api.CategoryNotFound:
		return http.StatusNotFound
	case api.CategoryValidation:
		return http.StatusUnprocessableEntity
	case api.CategoryNetwork, api.CategoryServer:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, note.ErrNonCheckboxEdit):
		return "Only checkboxes can be changed on this note."
	case errors.Is(err, session.ErrNotAllowed):
		return "This note can't be changed."
	case errors.Is(err, session.ErrEmptyDraft), errors.Is(err, session.ErrEmptyContent):
		return "Note content cannot be empty."
	case errors.Is(err, session.ErrInvalidDuration):
		return "Choose one of the offered durations."
	case errors.Is(err, session.ErrInvalidEditMode):
		return "Choose a valid edit mode."
	case errors.Is(err, note.ErrTaskIndex):
		return "That checkbox no longer exists. Reload the note."
	case errors.Is(err, session.ErrNotEditing):
		return "Start editing before saving."
	case errors.Is(err, session.ErrClosed):
		return "This page is out of date. Reload the note."
	}
	return api.UserMessage(err)
}
