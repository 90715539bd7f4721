package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"notefade/internal/api"
	"notefade/internal/autosave"
	"notefade/internal/note"
)

const checklist = `<p>Packing</p>` +
	`<ul data-type="taskList">` +
	`<li data-type="taskItem" data-checked="false"><label><input type="checkbox"><span></span></label><div><p>tent</p></div></li>` +
	`<li data-type="taskItem" data-checked="true"><label><input type="checkbox" checked="checked"><span></span></label><div><p>stove</p></div></li>` +
	`</ul>`

// slowAutosave keeps the debounce timer from firing so tests decide when
// changes reach the backend.
var slowAutosave = WithAutosave(autosave.WithDebounce(time.Hour))

func openView(t *testing.T, client NoteClient, code string, opts ...Option) *View {
	t.Helper()
	v, err := Open(context.Background(), client, code, append([]Option{slowAutosave}, opts...)...)
	if err != nil {
		t.Fatalf("open %s: %v", code, err)
	}
	return v
}

func checkedStates(t *testing.T, content string) []bool {
	t.Helper()
	tasks, err := note.Tasks(content)
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	out := make([]bool, len(tasks))
	for i, task := range tasks {
		out[i] = task.Checked
	}
	return out
}

func TestCreatedNoteDefaultsToFullAndLive(t *testing.T) {
	_, client := newFakeBackend(t)
	ctx := context.Background()
	created, err := Create(ctx, client, Draft{Content: "<p>hello</p>", DurationHours: 24})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", created.ExpiresAt)
	}
	v := openView(t, client, created.URLCode)
	n := v.Note()
	if n.IsExpired {
		t.Fatalf("fresh note must not be expired")
	}
	if n.EditMode != note.ModeFull {
		t.Fatalf("expected full mode, got %q", n.EditMode)
	}
	if caps := note.ResolveCapabilities(n); !caps.CanFullEdit {
		t.Fatalf("expected full edit, got %+v", caps)
	}
}

func TestPartialEditingNoteAllowsOnlyCheckboxes(t *testing.T) {
	b, client := newFakeBackend(t)
	ctx := context.Background()
	created, err := Create(ctx, client, Draft{Content: checklist, DurationHours: 24, EditMode: note.ModeCheckboxOnly})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b.seed("legacy", map[string]any{"content": checklist, "isPartialEditingOnly": true})
	for _, code := range []string{created.URLCode, "legacy"} {
		v := openView(t, client, code)
		caps := note.ResolveCapabilities(v.Note())
		want := note.Capabilities{CanToggleCheckboxes: true}
		if caps != want {
			t.Fatalf("%s: expected %+v, got %+v", code, want, caps)
		}
	}
}

func TestOpenUnknownNoteIsNotFound(t *testing.T) {
	_, client := newFakeBackend(t)
	_, err := Open(context.Background(), client, "missing")
	if !api.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSaveRejectsEmptyDraftLocally(t *testing.T) {
	b, client := newFakeBackend(t)
	b.seed("abc", map[string]any{"content": "<p>keep</p>"})
	v := openView(t, client, "abc")
	if err := v.EnterFullEdit(); err != nil {
		t.Fatalf("enter edit: %v", err)
	}
	for _, draft := range []string{"", "   ", "<p> </p>", "<p></p><p>&nbsp;</p>"} {
		if err := v.SetDraft(draft); err != nil {
			t.Fatalf("set draft: %v", err)
		}
		if err := v.Save(context.Background()); !errors.Is(err, ErrEmptyDraft) {
			t.Fatalf("draft %q: expected ErrEmptyDraft, got %v", draft, err)
		}
		if !v.Editing() {
			t.Fatalf("draft %q: expected to remain editing", draft)
		}
	}
	if puts := b.putCalls(); len(puts) != 0 {
		t.Fatalf("expected no network calls, got %d", len(puts))
	}
	if v.Note().Content != "<p>keep</p>" {
		t.Fatalf("note must be untouched")
	}
}

func TestSaveReplacesNoteAndLeavesEditMode(t *testing.T) {
	b, client := newFakeBackend(t)
	b.seed("abc", map[string]any{"content": "<p>old</p>"})
	v := openView(t, client, "abc")
	if err := v.SetDraft("<p>x</p>"); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("expected ErrNotEditing before edit, got %v", err)
	}
	if err := v.EnterFullEdit(); err != nil {
		t.Fatalf("enter edit: %v", err)
	}
	if v.Draft() != "<p>old</p>" {
		t.Fatalf("expected draft seeded from content, got %q", v.Draft())
	}
	if err := v.SetDraft("<p>new</p>"); err != nil {
		t.Fatalf("set draft: %v", err)
	}
	if err := v.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if v.Editing() || v.Draft() != "" {
		t.Fatalf("expected edit session to end")
	}
	if v.Note().Content != "<p>new</p>" || b.content("abc") != "<p>new</p>" {
		t.Fatalf("expected saved content")
	}
	if !v.Note().Edited() {
		t.Fatalf("expected server metadata to show the edit")
	}
}

func TestSaveFailureKeepsDraft(t *testing.T) {
	b, client := newFakeBackend(t)
	b.seed("abc", map[string]any{"content": "<p>old</p>"})
	b.setFailPut(1)
	v := openView(t, client, "abc")
	if err := v.EnterFullEdit(); err != nil {
		t.Fatalf("enter edit: %v", err)
	}
	_ = v.SetDraft("<p>new</p>")
	err := v.Save(context.Background())
	if api.CategoryOf(err) != api.CategoryServer {
		t.Fatalf("expected server error, got %v", err)
	}
	if !v.Editing() || v.Draft() != "<p>new</p>" {
		t.Fatalf("expected draft intact after failure")
	}
	if v.Note().Content != "<p>old</p>" {
		t.Fatalf("expected canonical note unchanged")
	}
}

func TestCancelEditDiscardsDraft(t *testing.T) {
	b, client := newFakeBackend(t)
	b.seed("abc", map[string]any{"content": "<p>old</p>"})
	v := openView(t, client, "abc")
	_ = v.EnterFullEdit()
	_ = v.SetDraft("<p>scratch</p>")
	v.CancelEdit()
	if v.Editing() || v.Draft() != "" {
		t.Fatalf("expected draft discarded")
	}
	if err := v.Save(context.Background()); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("expected ErrNotEditing, got %v", err)
	}
}

func TestEnterFullEditRespectsPolicy(t *testing.T) {
	b, client := newFakeBackend(t)
	b.seed("ro", map[string]any{"content": "<p>x</p>", "editMode": "read-only"})
	b.seed("cb", map[string]any{"content": checklist, "edit_mode": "checkbox_only"})
	b.seed("old", map[string]any{"content": "<p>x</p>", "isExpired": true})
	for _, code := range []string{"ro", "cb", "old"} {
		v := openView(t, client, code)
		if err := v.EnterFullEdit(); !errors.Is(err, ErrNotAllowed) {
			t.Fatalf("%s: expected ErrNotAllowed, got %v", code, err)
		}
		if v.State().Editing {
			t.Fatalf("%s: must not be editing", code)
		}
	}
}

func TestTogglesCoalesceUntilTeardown(t *testing.T) {
	b, client := newFakeBackend(t)
	b.seed("cb", map[string]any{"content": checklist, "editMode": "checkbox-only"})
	v := openView(t, client, "cb")

	for _, idx := range []int{0, 0, 1, 0} {
		if _, err := v.ToggleTask(idx); err != nil {
			t.Fatalf("toggle %d: %v", idx, err)
		}
	}
	if got := checkedStates(t, v.Note().Content); !got[0] || got[1] {
		t.Fatalf("expected optimistic local state, got %v", got)
	}
	if len(b.putCalls()) != 0 {
		t.Fatalf("expected no save inside the debounce window")
	}
	if !v.Pending() {
		t.Fatalf("expected pending change")
	}

	if err := v.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	puts := b.putCalls()
	if len(puts) != 1 {
		t.Fatalf("expected exactly one save on teardown, got %d", len(puts))
	}
	if got := checkedStates(t, puts[0]); !got[0] || got[1] {
		t.Fatalf("expected final state in saved content, got %v", got)
	}
	if _, err := v.ToggleTask(0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestSetTaskSameStateSchedulesNothing(t *testing.T) {
	b, client := newFakeBackend(t)
	b.seed("cb", map[string]any{"content": checklist, "isPartialEditingOnly": "true"})
	v := openView(t, client, "cb")
	if err := v.SetTask(1, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v.Pending() {
		t.Fatalf("setting current state must not schedule a save")
	}
	if err := v.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(b.putCalls()) != 0 {
		t.Fatalf("expected no saves")
	}
}

func TestToggleRespectsPolicy(t *testing.T) {
	b, client := newFakeBackend(t)
	b.seed("full", map[string]any{"content": checklist})
	b.seed("ro", map[string]any{"content": checklist, "isReadOnly": true})
	b.seed("old", map[string]any{"content": checklist, "editMode": "checkbox-only", "isExpired": true})
	for _, code := range []string{"full", "ro", "old"} {
		v := openView(t, client, code)
		if _, err := v.ToggleTask(0); !errors.Is(err, ErrNotAllowed) {
			t.Fatalf("%s: expected ErrNotAllowed, got %v", code, err)
		}
	}
	b.seed("cb", map[string]any{"content": checklist, "editMode": "checkbox-only"})
	v := openView(t, client, "cb")
	if _, err := v.ToggleTask(7); !errors.Is(err, note.ErrTaskIndex) {
		t.Fatalf("expected ErrTaskIndex, got %v", err)
	}
}

func TestNoteLocksWhenExpiryPassesMidSession(t *testing.T) {
	b, client := newFakeBackend(t)
	b.seed("cb", map[string]any{"content": checklist, "editMode": "checkbox-only"})
	now := time.Now()
	v := openView(t, client, "cb", WithClock(func() time.Time { return now }))
	if _, err := v.ToggleTask(0); err != nil {
		t.Fatalf("toggle before expiry: %v", err)
	}
	now = now.Add(48 * time.Hour)
	if _, err := v.ToggleTask(0); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed after expiry, got %v", err)
	}
	state := v.State()
	if !state.IsLocked || !state.ShowExpiredBadge {
		t.Fatalf("expected locked expired state, got %+v", state)
	}
	if err := v.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(b.putCalls()) != 1 {
		t.Fatalf("expected the toggle made before expiry to be flushed")
	}
}

func TestSubmitCheckboxContent(t *testing.T) {
	b, client := newFakeBackend(t)
	b.seed("cb", map[string]any{"content": checklist, "editMode": "checkbox-only"})
	v := openView(t, client, "cb")

	edited := strings.Replace(checklist, "tent", "tarp", 1)
	err := v.SubmitCheckboxContent(edited)
	if !errors.Is(err, ErrNotAllowed) || !errors.Is(err, note.ErrNonCheckboxEdit) {
		t.Fatalf("expected non-checkbox edit to be rejected, got %v", err)
	}

	toggled, err := note.ToggleTask(checklist, 0)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := v.SubmitCheckboxContent(toggled); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := v.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if puts := b.putCalls(); len(puts) != 1 || puts[0] != toggled {
		t.Fatalf("expected submitted content saved once, got %q", puts)
	}
	if err := v.Flush(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if len(b.putCalls()) != 1 {
		t.Fatalf("expected flush without changes to be a no-op")
	}
}

func TestAutosaveFailureRetriedOnTeardown(t *testing.T) {
	b, client := newFakeBackend(t)
	b.seed("cb", map[string]any{"content": checklist, "editMode": "checkbox-only"})
	b.setFailPut(1)
	v := openView(t, client, "cb")

	if _, err := v.ToggleTask(0); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := v.Flush(context.Background()); err == nil {
		t.Fatalf("expected flush to fail")
	}
	if got := checkedStates(t, v.Note().Content); !got[0] {
		t.Fatalf("expected optimistic state kept after failure")
	}
	if err := v.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	puts := b.putCalls()
	if len(puts) != 2 || puts[0] != puts[1] {
		t.Fatalf("expected the same content retried once, got %d calls", len(puts))
	}
	if got := checkedStates(t, b.content("cb")); !got[0] {
		t.Fatalf("expected backend to hold the toggle")
	}
}

func TestPurgedNoteLocksAfterFailedSave(t *testing.T) {
	b, client := newFakeBackend(t)
	b.seed("cb", map[string]any{"content": checklist, "editMode": "checkbox-only"})
	v := openView(t, client, "cb")
	b.mu.Lock()
	delete(b.notes, "cb")
	b.mu.Unlock()

	if _, err := v.ToggleTask(0); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := v.Flush(context.Background()); !api.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !v.State().IsLocked {
		t.Fatalf("expected the view to lock once the note is gone")
	}
}
