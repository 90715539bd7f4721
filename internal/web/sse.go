package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	eventToast = "toast"
	eventSaved = "saved"

	eventBuffer  = 8
	pingInterval = 25 * time.Second
)

type pushEvent struct {
	name string
	data []byte
}

// eventHub fans events out to the open /events streams of each visitor.
type eventHub struct {
	mu      sync.Mutex
	streams map[string]map[chan pushEvent]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{streams: make(map[string]map[chan pushEvent]struct{})}
}

func (h *eventHub) subscribe(key string) chan pushEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan pushEvent, eventBuffer)
	if h.streams[key] == nil {
		h.streams[key] = make(map[chan pushEvent]struct{})
	}
	h.streams[key][ch] = struct{}{}
	return ch
}

func (h *eventHub) unsubscribe(key string, ch chan pushEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.streams[key]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(h.streams, key)
		}
	}
	close(ch)
}

// publish never blocks; a stream with a full buffer misses the event.
func (h *eventHub) publish(key, name string, payload any) {
	if key == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("encode event", "event", name, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.streams[key] {
		select {
		case ch <- pushEvent{name: name, data: data}:
		default:
		}
	}
}

func (h *eventHub) subscribers(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams[key])
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	key := toastKey(r)
	if key == "" {
		http.Error(w, "no session", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch := s.events.subscribe(key)
	defer s.events.unsubscribe(key, ch)

	_, _ = fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.quit:
			return
		case ev := <-ch:
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
			flusher.Flush()
		case <-ping.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// autosaved is the registry's save hook. Open pages of the visitor drop
// their pending badge once checkbox changes reach the backend. Failures are
// only logged by the autosave coordinator and leave the badge in place.
func (s *Server) autosaved(owner, code string, err error) {
	if err != nil {
		return
	}
	s.events.publish(visitorKey(owner), eventSaved, map[string]string{"code": code})
}
