package web

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	toastInfo    = "info"
	toastSuccess = "success"
	toastError   = "error"

	toastSeconds = 6
)

type Toast struct {
	ID              string    `json:"id"`
	Message         string    `json:"message"`
	Kind            string    `json:"kind"`
	DurationSeconds int       `json:"durationSeconds"`
	CreatedAt       time.Time `json:"-"`
}

type toastStore struct {
	mu    sync.Mutex
	byKey map[string][]Toast
	now   func() time.Time
}

func newToastStore() *toastStore {
	return &toastStore{byKey: make(map[string][]Toast), now: time.Now}
}

func (s *toastStore) Add(key string, toast Toast) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[key] = append(s.byKey[key], toast)
}

// List returns the live toasts for key and drops the expired ones.
func (s *toastStore) List(key string) []Toast {
	if key == "" {
		return nil
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	toasts := s.byKey[key]
	if len(toasts) == 0 {
		return nil
	}
	active := toasts[:0]
	for _, toast := range toasts {
		if toast.DurationSeconds > 0 {
			exp := toast.CreatedAt.Add(time.Duration(toast.DurationSeconds) * time.Second)
			if now.After(exp) {
				continue
			}
		}
		active = append(active, toast)
	}
	if len(active) == 0 {
		delete(s.byKey, key)
		return nil
	}
	out := make([]Toast, len(active))
	copy(out, active)
	s.byKey[key] = active
	return out
}

func (s *toastStore) Remove(key, id string) {
	if key == "" || id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	toasts := s.byKey[key]
	next := toasts[:0]
	for _, toast := range toasts {
		if toast.ID != id {
			next = append(next, toast)
		}
	}
	if len(next) == 0 {
		delete(s.byKey, key)
		return
	}
	s.byKey[key] = next
}

func visitorKey(id string) string {
	if id == "" {
		return ""
	}
	return "visitor:" + id
}

func toastKey(r *http.Request) string {
	return visitorKey(visitorID(r))
}

// addToast queues a toast for the next page render and pushes it to any
// open event stream of the same visitor.
func (s *Server) addToast(r *http.Request, kind, message string) {
	s.pushToast(toastKey(r), kind, message)
}

func (s *Server) pushToast(key, kind, message string) {
	toast := Toast{
		ID:              uuid.NewString(),
		Message:         message,
		Kind:            kind,
		DurationSeconds: toastSeconds,
		CreatedAt:       s.toasts.now(),
	}
	s.toasts.Add(key, toast)
	s.events.publish(key, eventToast, toast)
}

func (s *Server) handleToastDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/toasts/"), "/dismiss")
	s.toasts.Remove(toastKey(r), strings.TrimSpace(id))
	w.WriteHeader(http.StatusNoContent)
}
