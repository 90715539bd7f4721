package web

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-playground/form/v4"
	"github.com/gorilla/sessions"

	"notefade/internal/config"
	"notefade/internal/session"
)

type Server struct {
	cfg      config.Config
	creator  session.Creator
	registry *session.Registry
	mux      *http.ServeMux
	views    *Templates
	toasts   *toastStore
	events   *eventHub
	cookies  *sessions.CookieStore
	forms    *form.Decoder

	quit     chan struct{}
	quitOnce sync.Once
}

func NewServer(cfg config.Config, creator session.Creator, registry *session.Registry) (*Server, error) {
	cookies, err := newCookieStore(cfg.SessionSecret, cfg.SecureCookies)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		creator:  creator,
		registry: registry,
		mux:      http.NewServeMux(),
		views:    MustParseTemplates(),
		toasts:   newToastStore(),
		events:   newEventHub(),
		cookies:  cookies,
		forms:    form.NewDecoder(),
		quit:     make(chan struct{}),
	}
	s.routes()
	registry.OnSaved(s.autosaved)
	return s, nil
}

// CloseStreams ends every open /events stream. http.Server.Shutdown waits for
// active connections, so register it with RegisterOnShutdown.
func (s *Server) CloseStreams() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Server) Handler() http.Handler {
	return requestLogger(slog.Default())(s.visitorMiddleware(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleHome)
	s.mux.HandleFunc("/note/", s.handleNotes)
	s.mux.HandleFunc("/find", s.handleFind)
	s.mux.HandleFunc("/events", s.handleEvents)
	s.mux.HandleFunc("/toasts/", s.handleToastDismiss)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}
