package note

import (
	"fmt"
	"strings"
	"time"

	"github.com/xeonx/timeago"
)

var relative = timeago.NoMax(timeago.English)

// Layouts without a zone are backend timestamps that dropped the trailing Z;
// they are UTC, never local time.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

func IsExpiredAt(expiresAt, now time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt)
}

// FormatRelative renders t against now, e.g. "3 hours ago" or "in 2 days".
func FormatRelative(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return relative.FormatReference(t, now)
}

func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006, 3:04 PM MST")
}
