package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"notefade/internal/api"
)

// fakeBackend is an in-memory note service speaking the backend's JSON API.
type fakeBackend struct {
	mu      sync.Mutex
	notes   map[string]map[string]any
	puts    []string
	nextID  int
	failPut int
	now     time.Time
}

func newFakeBackend(t *testing.T) (*fakeBackend, *api.Client) {
	t.Helper()
	b := &fakeBackend{
		notes: make(map[string]map[string]any),
		now:   time.Now().UTC(),
	}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	client, err := api.New(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return b, client
}

// seed stores a note with raw wire fields.
func (b *fakeBackend) seed(code string, fields map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := map[string]any{
		"urlCode":   code,
		"content":   "",
		"createdAt": b.now.Format(time.RFC3339),
		"updatedAt": b.now.Format(time.RFC3339),
		"expiresAt": b.now.Add(24 * time.Hour).Format(time.RFC3339),
		"isExpired": false,
	}
	for k, v := range fields {
		n[k] = v
	}
	b.notes[code] = n
}

func (b *fakeBackend) putCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.puts...)
}

func (b *fakeBackend) content(code string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := b.notes[code]; ok {
		s, _ := n["content"].(string)
		return s
	}
	return ""
}

func (b *fakeBackend) setFailPut(n int) {
	b.mu.Lock()
	b.failPut = n
	b.mu.Unlock()
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/api/notes")
	switch {
	case path == "" && r.Method == http.MethodPost:
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"message":"bad json"}`, http.StatusBadRequest)
			return
		}
		hours, _ := req["durationInHours"].(float64)
		b.nextID++
		code := fmt.Sprintf("n%04d", b.nextID)
		n := map[string]any{
			"urlCode":   code,
			"content":   req["content"],
			"createdAt": b.now.Format(time.RFC3339),
			"updatedAt": b.now.Format(time.RFC3339),
			"expiresAt": b.now.Add(time.Duration(hours) * time.Hour).Format(time.RFC3339),
			"isExpired": false,
		}
		for _, key := range []string{"editMode", "isReadOnly", "isPartialEditingOnly"} {
			if v, ok := req[key]; ok {
				n[key] = v
			}
		}
		b.notes[code] = n
		writeBody(w, http.StatusCreated, map[string]any{
			"urlCode":   code,
			"shareUrl":  "http://backend.invalid/note/" + code,
			"expiresAt": n["expiresAt"],
		})
	case strings.HasPrefix(path, "/"):
		code := strings.TrimPrefix(path, "/")
		n, ok := b.notes[code]
		if !ok {
			writeBody(w, http.StatusNotFound, map[string]any{"message": "Note not found"})
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeBody(w, http.StatusOK, n)
		case http.MethodPut:
			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeBody(w, http.StatusBadRequest, map[string]any{"message": "bad json"})
				return
			}
			content, _ := req["content"].(string)
			b.puts = append(b.puts, content)
			if b.failPut > 0 {
				b.failPut--
				writeBody(w, http.StatusInternalServerError, map[string]any{"message": "boom"})
				return
			}
			n["content"] = content
			n["updatedAt"] = b.now.Add(time.Minute).Format(time.RFC3339)
			writeBody(w, http.StatusOK, n)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeBody(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
