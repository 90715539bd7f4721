package note

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Wire is the note payload as the backend sends it. Permission fields have had
// several spellings over time, so every known spelling gets its own field.
// Nothing outside this package and the API client should see a Wire value.
type Wire struct {
	URLCode   string `json:"urlCode"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	IsExpired Flag   `json:"isExpired"`
	EditMode  string `json:"editMode,omitempty"`

	EditModeSnake string `json:"edit_mode,omitempty"`

	IsReadOnly    Flag `json:"isReadOnly,omitempty"`
	ReadOnly      Flag `json:"readOnly,omitempty"`
	ReadOnlySnake Flag `json:"read_only,omitempty"`

	IsPartialEditingOnly    Flag `json:"isPartialEditingOnly,omitempty"`
	PartialEditingOnly      Flag `json:"partialEditingOnly,omitempty"`
	PartialEditingOnlySnake Flag `json:"partial_editing_only,omitempty"`
	IsCheckboxOnly          Flag `json:"isCheckboxOnly,omitempty"`
	CheckboxOnly            Flag `json:"checkboxOnly,omitempty"`
	CheckboxOnlySnake       Flag `json:"checkbox_only,omitempty"`
}

// Flag is a boolean that also accepts "true"/"false" strings, numbers and null.
// Anything else reads as false.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = false
		return nil
	}
	switch data[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*f = Flag(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.ToLower(strings.TrimSpace(s))
		switch s {
		case "", "0", "false", "no", "off":
			*f = false
		case "1", "true", "yes", "on":
			*f = true
		default:
			slog.Warn("ignoring unrecognised flag value", "value", s)
			*f = false
		}
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		slog.Warn("ignoring unrecognised flag value", "value", string(data))
		*f = false
		return nil
	}
	*f = n != 0
	return nil
}

func (w Wire) readOnly() bool {
	return bool(w.IsReadOnly || w.ReadOnly || w.ReadOnlySnake)
}

func (w Wire) partialEditingOnly() bool {
	return bool(w.IsPartialEditingOnly || w.PartialEditingOnly || w.PartialEditingOnlySnake ||
		w.IsCheckboxOnly || w.CheckboxOnly || w.CheckboxOnlySnake)
}

// ResolveMode applies the precedence rule: a recognised editMode wins, then
// the read-only flag, then the checkbox flag, then full. Unrecognised editMode
// strings count as absent.
func (w Wire) ResolveMode() EditMode {
	for _, raw := range []string{w.EditMode, w.EditModeSnake} {
		if mode, ok := ParseEditMode(raw); ok {
			return mode
		}
	}
	switch {
	case w.readOnly():
		return ModeReadOnly
	case w.partialEditingOnly():
		return ModeCheckboxOnly
	}
	return ModeFull
}

func Normalize(w Wire) (Note, error) {
	n := Note{
		URLCode:   strings.TrimSpace(w.URLCode),
		Content:   w.Content,
		IsExpired: bool(w.IsExpired),
		EditMode:  w.ResolveMode(),
	}
	var err error
	if n.CreatedAt, err = parseOptionalTime("createdAt", w.CreatedAt); err != nil {
		return Note{}, err
	}
	if n.UpdatedAt, err = parseOptionalTime("updatedAt", w.UpdatedAt); err != nil {
		return Note{}, err
	}
	if n.ExpiresAt, err = parseOptionalTime("expiresAt", w.ExpiresAt); err != nil {
		return Note{}, err
	}
	return n, nil
}

// ToWire renders a canonical note in the current payload shape: an explicit
// editMode plus the matching legacy flags.
func ToWire(n Note) Wire {
	mode := n.EditMode.OrDefault()
	readOnly, partial := mode.Flags()
	return Wire{
		URLCode:              n.URLCode,
		Content:              n.Content,
		CreatedAt:            formatOptionalTime(n.CreatedAt),
		UpdatedAt:            formatOptionalTime(n.UpdatedAt),
		ExpiresAt:            formatOptionalTime(n.ExpiresAt),
		IsExpired:            Flag(n.IsExpired),
		EditMode:             string(mode),
		IsReadOnly:           Flag(readOnly),
		IsPartialEditingOnly: Flag(partial),
	}
}

func parseOptionalTime(field, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	t, err := ParseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
