package note

import "time"

// Note is the canonical client-side copy of a backend note. It is only built
// by Normalize, so the permission fields are always resolved to one EditMode.
type Note struct {
	URLCode   string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
	IsExpired bool
	EditMode  EditMode
}

func (n Note) Edited() bool {
	return !n.UpdatedAt.IsZero() && !n.UpdatedAt.Equal(n.CreatedAt)
}

// ExpiredAt reports whether the note is expired as of now. The backend flag
// wins; the timestamp only lets a cached copy lock itself once it lapses.
func (n Note) ExpiredAt(now time.Time) bool {
	return n.IsExpired || IsExpiredAt(n.ExpiresAt, now)
}
