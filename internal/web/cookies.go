package web

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"
)

const (
	sessionCookieName = "notefade_session"
	visitorIDKey      = "vid"
	sessionMaxAge     = 30 * 24 * 60 * 60
)

// newCookieStore derives the cookie hash and block keys from secret. An empty
// secret gets a random one, so sessions do not survive a restart.
func newCookieStore(secret string, secure bool) (*sessions.CookieStore, error) {
	if strings.TrimSpace(secret) == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		secret = string(buf)
		slog.Warn("no session secret configured, using an ephemeral one")
	}
	hashKey, blockKey, err := deriveCookieKeys(secret)
	if err != nil {
		return nil, err
	}
	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store, nil
}

func deriveCookieKeys(secret string) (hashKey, blockKey []byte, err error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("notefade session cookie"))
	hashKey = make([]byte, 64)
	blockKey = make([]byte, 32)
	if _, err := io.ReadFull(r, hashKey); err != nil {
		return nil, nil, fmt.Errorf("derive cookie hash key: %w", err)
	}
	if _, err := io.ReadFull(r, blockKey); err != nil {
		return nil, nil, fmt.Errorf("derive cookie block key: %w", err)
	}
	return hashKey, blockKey, nil
}

// isRecoverableSessionError reports whether err only means the cookie is
// stale or was signed with another key. Such visitors get a fresh session.
func isRecoverableSessionError(err error) bool {
	if err == nil {
		return false
	}
	var scErr securecookie.Error
	if errors.As(err, &scErr) {
		return true
	}
	return strings.Contains(err.Error(), "securecookie: the value is not valid")
}

// visitorMiddleware makes sure every request carries a Visitor.
func (s *Server) visitorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := s.cookies.Get(r, sessionCookieName)
		if err != nil && !isRecoverableSessionError(err) {
			slog.Error("load session", "err", err)
			http.Error(w, "session error", http.StatusInternalServerError)
			return
		}
		if err != nil {
			slog.Debug("discarding stale session cookie", "err", err)
		}
		id, _ := sess.Values[visitorIDKey].(string)
		if id == "" {
			id = uuid.NewString()
			sess.Values[visitorIDKey] = id
			if err := sess.Save(r, w); err != nil {
				slog.Warn("save session", "err", err)
			}
		}
		next.ServeHTTP(w, r.WithContext(withVisitor(r.Context(), Visitor{ID: id})))
	})
}

func visitorID(r *http.Request) string {
	if v, ok := CurrentVisitor(r.Context()); ok {
		return v.ID
	}
	return ""
}
