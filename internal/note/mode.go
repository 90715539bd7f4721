package note

import (
	"strings"
	"unicode"
)

type EditMode string

const (
	ModeFull         EditMode = "full"
	ModeCheckboxOnly EditMode = "checkbox-only"
	ModeReadOnly     EditMode = "read-only"
)

var Modes = []EditMode{ModeFull, ModeCheckboxOnly, ModeReadOnly}

// ParseEditMode accepts any casing and ignores separators, so
// "Checkbox_Only", "checkbox-only" and "checkboxonly" are the same mode.
func ParseEditMode(raw string) (EditMode, bool) {
	key := strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ' ', '.':
			return -1
		}
		return unicode.ToLower(r)
	}, strings.TrimSpace(raw))
	switch key {
	case "full":
		return ModeFull, true
	case "checkboxonly":
		return ModeCheckboxOnly, true
	case "readonly":
		return ModeReadOnly, true
	}
	return "", false
}

// Valid reports whether m is already in canonical spelling.
func (m EditMode) Valid() bool {
	switch m {
	case ModeFull, ModeCheckboxOnly, ModeReadOnly:
		return true
	}
	return false
}

func (m EditMode) OrDefault() EditMode {
	if parsed, ok := ParseEditMode(string(m)); ok {
		return parsed
	}
	return ModeFull
}

func (m EditMode) Label() string {
	switch m.OrDefault() {
	case ModeCheckboxOnly:
		return "Checkbox Only"
	case ModeReadOnly:
		return "Read Only"
	default:
		return "Full Edit"
	}
}

func (m EditMode) Description() string {
	switch m.OrDefault() {
	case ModeCheckboxOnly:
		return "Only checkboxes can be toggled"
	case ModeReadOnly:
		return "No one can edit anything"
	default:
		return "Anyone can edit everything"
	}
}

// Flags returns the legacy boolean pair older backends understand.
func (m EditMode) Flags() (readOnly, partialEditingOnly bool) {
	switch m.OrDefault() {
	case ModeReadOnly:
		return true, false
	case ModeCheckboxOnly:
		return false, true
	}
	return false, false
}
