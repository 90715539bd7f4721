package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"notefade/internal/api"
	"notefade/internal/autosave"
	"notefade/internal/config"
	"notefade/internal/session"
)

const checklist = `<p>Packing</p>` +
	`<ul data-type="taskList">` +
	`<li data-type="taskItem" data-checked="false"><label><input type="checkbox"><span></span></label><div><p>tent</p></div></li>` +
	`<li data-type="taskItem" data-checked="false"><label><input type="checkbox"><span></span></label><div><p>stove</p></div></li>` +
	`</ul>`

type noteBackend struct {
	mu     sync.Mutex
	notes  map[string]map[string]any
	posts  []map[string]any
	puts   []string
	nextID int
}

func (b *noteBackend) seed(code, content, mode string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UTC()
	b.notes[code] = map[string]any{
		"urlCode":   code,
		"content":   content,
		"createdAt": now.Add(-time.Hour).Format(time.RFC3339),
		"updatedAt": now.Add(-time.Hour).Format(time.RFC3339),
		"expiresAt": now.Add(24 * time.Hour).Format(time.RFC3339),
		"isExpired": false,
		"editMode":  mode,
	}
}

func (b *noteBackend) putCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.puts...)
}

func (b *noteBackend) postCalls() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.posts...)
}

func (b *noteBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/api/notes")
	var req map[string]any
	if r.Method != http.MethodGet {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if path == "" && r.Method == http.MethodPost {
		b.posts = append(b.posts, req)
		b.nextID++
		code := fmt.Sprintf("w%03d", b.nextID)
		hours, _ := req["durationInHours"].(float64)
		now := time.Now().UTC()
		b.notes[code] = map[string]any{
			"urlCode":   code,
			"content":   req["content"],
			"createdAt": now.Format(time.RFC3339),
			"updatedAt": now.Format(time.RFC3339),
			"expiresAt": now.Add(time.Duration(hours) * time.Hour).Format(time.RFC3339),
			"editMode":  req["editMode"],
		}
		writeJSON(w, http.StatusCreated, map[string]any{"urlCode": code, "expiresAt": b.notes[code]["expiresAt"]})
		return
	}
	n, ok := b.notes[strings.TrimPrefix(path, "/")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Note not found"})
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, n)
	case http.MethodPut:
		content, _ := req["content"].(string)
		b.puts = append(b.puts, content)
		n["content"] = content
		n["updatedAt"] = time.Now().UTC().Format(time.RFC3339)
		writeJSON(w, http.StatusOK, n)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type harness struct {
	backend  *noteBackend
	server   *Server
	registry *session.Registry
	url      string
	client   *http.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := &noteBackend{notes: make(map[string]map[string]any)}
	backend := httptest.NewServer(b)
	t.Cleanup(backend.Close)

	client, err := api.New(backend.URL + "/api")
	if err != nil {
		t.Fatalf("api client: %v", err)
	}
	cfg := config.Default()
	cfg.SessionSecret = "test-secret"
	registry := session.NewRegistry(client, time.Hour, session.WithAutosave(autosave.WithDebounce(time.Hour)))
	srv, err := NewServer(cfg, client, registry)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	front := httptest.NewServer(srv.Handler())
	t.Cleanup(front.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &harness{
		backend:  b,
		server:   srv,
		registry: registry,
		url:      front.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type response struct {
	status   int
	body     string
	location string
}

func (h *harness) do(t *testing.T, method, path string, form url.Values, hx bool) response {
	t.Helper()
	res, err := h.send(method, path, form, hx)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return res
}

// send is do without the test handle, for use from other goroutines.
func (h *harness) send(method, path string, form url.Values, hx bool) (response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, h.url+path, body)
	if err != nil {
		return response{}, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if hx {
		req.Header.Set("HX-Request", "true")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}
	return response{status: resp.StatusCode, body: string(data), location: resp.Header.Get("Location")}, nil
}

func (h *harness) get(t *testing.T, path string) response {
	t.Helper()
	return h.do(t, http.MethodGet, path, nil, false)
}

func (h *harness) post(t *testing.T, path string, form url.Values) response {
	t.Helper()
	if form == nil {
		form = url.Values{}
	}
	return h.do(t, http.MethodPost, path, form, false)
}
