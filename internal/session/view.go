package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"notefade/internal/api"
	"notefade/internal/autosave"
	"notefade/internal/note"
)

var (
	ErrNotAllowed = errors.New("action not allowed for this note")
	ErrEmptyDraft = errors.New("note content cannot be empty")
	ErrNotEditing = errors.New("not in edit mode")
	ErrClosed     = errors.New("view session closed")
)

// NoteClient is the part of the backend client a view session needs.
type NoteClient interface {
	GetNote(ctx context.Context, code string) (note.Note, error)
	UpdateNote(ctx context.Context, code, content string) (note.Note, error)
}

type Option func(*View)

func WithClock(now func() time.Time) Option {
	return func(v *View) {
		if now != nil {
			v.now = now
		}
	}
}

func WithAutosave(opts ...autosave.Option) Option {
	return func(v *View) {
		v.autosaveOpts = append(v.autosaveOpts, opts...)
	}
}

// WithSaveHook is called after every background checkbox save with the
// outcome. It runs on the autosave goroutine.
func WithSaveHook(fn func(code string, err error)) Option {
	return func(v *View) {
		v.onSaved = fn
	}
}

// View is one viewer's session on one note: the canonical copy, the optional
// full-edit draft and the checkbox autosave coordinator.
type View struct {
	id           string
	code         string
	client       NoteClient
	now          func() time.Time
	logger       *slog.Logger
	autosave     *autosave.Coordinator
	autosaveOpts []autosave.Option
	onSaved      func(code string, err error)

	// writeMu keeps every UpdateNote for this session strictly sequential.
	writeMu sync.Mutex

	mu      sync.Mutex
	note    note.Note
	editing bool
	draft   string
	closed  bool
}

// Open fetches the note and starts a view session on it. A fetch failure is
// terminal for the session; callers render the not-found state.
func Open(ctx context.Context, client NoteClient, code string, opts ...Option) (*View, error) {
	n, err := client.GetNote(ctx, code)
	if err != nil {
		return nil, err
	}
	v := &View{
		id:     uuid.NewString(),
		code:   n.URLCode,
		client: client,
		now:    time.Now,
		note:   n,
	}
	if v.code == "" {
		v.code = code
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = slog.With("url_code", v.code, "view_id", v.id)
	v.autosave = autosave.New(v.persist, append([]autosave.Option{autosave.WithLogger(v.logger)}, v.autosaveOpts...)...)
	v.logger.Debug("view opened", "edit_mode", n.EditMode, "expired", n.IsExpired)
	return v, nil
}

func (v *View) ID() string   { return v.id }
func (v *View) Code() string { return v.code }

func (v *View) Note() note.Note {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checkExpiryLocked()
	return v.note
}

func (v *View) State() note.ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checkExpiryLocked()
	return note.ResolveView(v.note, v.editing)
}

func (v *View) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

func (v *View) Editing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.editing
}

func (v *View) Pending() bool {
	return v.autosave.Pending() || v.autosave.InFlight()
}

// EnterFullEdit starts a full-edit session seeded from the current content.
// Entering twice keeps the existing draft.
func (v *View) EnterFullEdit() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.checkExpiryLocked()
	if !note.ResolveCapabilities(v.note).CanFullEdit {
		return ErrNotAllowed
	}
	if !v.editing {
		v.editing = true
		v.draft = v.note.Content
	}
	return nil
}

func (v *View) SetDraft(content string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if !v.editing {
		return ErrNotEditing
	}
	v.draft = content
	return nil
}

func (v *View) CancelEdit() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.editing = false
	v.draft = ""
}

// Save sends the draft as the new document. An empty draft is rejected
// locally. On failure the session stays in edit mode with the draft intact.
func (v *View) Save(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if !v.editing {
		v.mu.Unlock()
		return ErrNotEditing
	}
	v.checkExpiryLocked()
	if !note.ResolveCapabilities(v.note).CanFullEdit {
		v.mu.Unlock()
		return ErrNotAllowed
	}
	if note.IsEmpty(v.draft) {
		v.mu.Unlock()
		return ErrEmptyDraft
	}
	content := v.draft
	v.mu.Unlock()

	v.writeMu.Lock()
	updated, err := v.client.UpdateNote(ctx, v.code, content)
	v.writeMu.Unlock()
	if err != nil {
		v.markGoneIfNotFound(err)
		v.logger.Info("save failed", "err", err)
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.note = updated
	if v.draft == content {
		v.editing = false
		v.draft = ""
	}
	v.logger.Info("note saved")
	return nil
}

// ToggleTask flips one checkbox and schedules an autosave. It returns the new
// checked state.
func (v *View) ToggleTask(index int) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkToggleLocked(); err != nil {
		return false, err
	}
	tasks, err := note.Tasks(v.note.Content)
	if err != nil {
		return false, err
	}
	if index < 0 || index >= len(tasks) {
		return false, fmt.Errorf("%w: %d", note.ErrTaskIndex, index)
	}
	checked := !tasks[index].Checked
	if err := v.setTaskLocked(index, checked); err != nil {
		return false, err
	}
	return checked, nil
}

// SetTask sets one checkbox to an explicit state. Repeating the same request
// is a no-op and schedules nothing.
func (v *View) SetTask(index int, checked bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkToggleLocked(); err != nil {
		return err
	}
	return v.setTaskLocked(index, checked)
}

// SubmitCheckboxContent accepts a whole document from a checkbox-only viewer.
// It is rejected unless it differs from the current content only in checkbox
// states.
func (v *View) SubmitCheckboxContent(content string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkToggleLocked(); err != nil {
		return err
	}
	if content == v.note.Content {
		return nil
	}
	if err := note.CheckboxOnlyChange(v.note.Content, content); err != nil {
		return fmt.Errorf("%w: %w", ErrNotAllowed, err)
	}
	v.note.Content = content
	v.autosave.Schedule(content)
	return nil
}

// Flush persists pending checkbox changes now.
func (v *View) Flush(ctx context.Context) error {
	return v.autosave.FlushNow(ctx)
}

// Refresh reloads the note from the backend after flushing local changes.
// A draft in progress is kept.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := v.Flush(ctx); err != nil {
		// Keep the optimistic local copy; the next toggle or teardown retries.
		return nil
	}
	if v.Pending() {
		return nil
	}
	n, err := v.client.GetNote(ctx, v.code)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.note = n
	if !note.ResolveCapabilities(n).CanFullEdit {
		v.editing = false
		v.draft = ""
	}
	return nil
}

// Close ends the session. Pending checkbox changes are flushed synchronously.
func (v *View) Close(ctx context.Context) error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	err := v.autosave.Close(ctx)
	if err != nil {
		v.logger.Warn("flush on close failed", "err", err)
	}
	v.logger.Debug("view closed")
	return err
}

func (v *View) persist(ctx context.Context, content string) error {
	err := v.write(ctx, content)
	if v.onSaved != nil {
		v.onSaved(v.code, err)
	}
	return err
}

func (v *View) write(ctx context.Context, content string) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	updated, err := v.client.UpdateNote(ctx, v.code, content)
	if err != nil {
		v.markGoneIfNotFound(err)
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.note.Content != content {
		// Newer local toggles are already queued; keep them visible.
		updated.Content = v.note.Content
	}
	v.note = updated
	v.logger.Debug("checkbox changes saved")
	return nil
}

func (v *View) checkToggleLocked() error {
	if v.closed {
		return ErrClosed
	}
	v.checkExpiryLocked()
	if !note.ResolveView(v.note, v.editing).CanToggleCheckboxes {
		return ErrNotAllowed
	}
	return nil
}

func (v *View) setTaskLocked(index int, checked bool) error {
	content, err := note.SetTask(v.note.Content, index, checked)
	if err != nil {
		return err
	}
	if content == v.note.Content {
		return nil
	}
	v.note.Content = content
	v.autosave.Schedule(content)
	return nil
}

func (v *View) checkExpiryLocked() {
	if !v.note.IsExpired && v.note.ExpiredAt(v.now()) {
		v.note.IsExpired = true
		v.logger.Info("note expired during session")
	}
}

func (v *View) markGoneIfNotFound(err error) {
	if !api.IsNotFound(err) {
		return
	}
	v.mu.Lock()
	v.note.IsExpired = true
	v.mu.Unlock()
}
