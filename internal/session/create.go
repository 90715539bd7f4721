package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"notefade/internal/api"
	"notefade/internal/note"
)

var (
	ErrEmptyContent    = errors.New("note content cannot be empty")
	ErrInvalidDuration = errors.New("unsupported note duration")
	ErrInvalidEditMode = errors.New("unsupported edit mode")
)

const DefaultDurationHours = 24

type DurationOption struct {
	Hours int
	Label string
}

var DurationOptions = []DurationOption{
	{1, "1 hour"},
	{3, "3 hours"},
	{6, "6 hours"},
	{12, "12 hours"},
	{24, "1 day"},
	{72, "3 days"},
	{168, "7 days"},
	{720, "30 days"},
}

func ValidDuration(hours int) bool {
	for _, opt := range DurationOptions {
		if opt.Hours == hours {
			return true
		}
	}
	return false
}

// Creator is the part of the backend client the create flow needs.
type Creator interface {
	CreateNote(ctx context.Context, req api.CreateRequest) (api.Created, error)
}

// Draft is a note that has not been created yet.
type Draft struct {
	Content       string
	DurationHours int
	EditMode      note.EditMode
}

// Normalized fills in the defaults: a one day lifetime and full edit mode.
func (d Draft) Normalized() Draft {
	if d.DurationHours == 0 {
		d.DurationHours = DefaultDurationHours
	}
	if strings.TrimSpace(string(d.EditMode)) == "" {
		d.EditMode = note.ModeFull
	} else if mode, ok := note.ParseEditMode(string(d.EditMode)); ok {
		d.EditMode = mode
	}
	return d
}

func (d Draft) Validate() error {
	d = d.Normalized()
	if note.IsEmpty(d.Content) {
		return ErrEmptyContent
	}
	if !ValidDuration(d.DurationHours) {
		return fmt.Errorf("%w: %d hours", ErrInvalidDuration, d.DurationHours)
	}
	if !d.EditMode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEditMode, d.EditMode)
	}
	return nil
}

// Create validates the draft locally, then asks the backend to store it.
func Create(ctx context.Context, c Creator, d Draft) (api.Created, error) {
	d = d.Normalized()
	if err := d.Validate(); err != nil {
		return api.Created{}, err
	}
	return c.CreateNote(ctx, api.CreateRequest{
		Content:         d.Content,
		DurationInHours: d.DurationHours,
		EditMode:        d.EditMode,
	})
}

// ShareURL is the link handed to other viewers. A configured public URL wins
// over whatever the backend suggested.
func ShareURL(publicURL string, created api.Created) string {
	path := "/note/" + url.PathEscape(created.URLCode)
	if base := strings.TrimRight(strings.TrimSpace(publicURL), "/"); base != "" {
		return base + path
	}
	if created.ShareURL != "" {
		return created.ShareURL
	}
	return path
}
