package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"notefade/internal/note"
)

const (
	defaultTimeout  = 15 * time.Second
	maxErrorBody    = 4 << 10
	requestIDHeader = "X-Request-ID"
)

// Client talks to the note backend. One Client is shared by the whole process.
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New builds a client rooted at baseURL, e.g. http://127.0.0.1:8081/api.
// Note routes are appended as /notes and /notes/{code}.
func New(baseURL string, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, errors.New("api base url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url %q: scheme must be http or https", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	c := &Client{
		baseURL: u.String(),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type CreateRequest struct {
	Content         string
	DurationInHours int
	EditMode        note.EditMode
}

type Created struct {
	URLCode   string
	ShareURL  string
	ExpiresAt time.Time
}

type createBody struct {
	Content              string `json:"content"`
	DurationInHours      int    `json:"durationInHours"`
	EditMode             string `json:"editMode"`
	IsReadOnly           bool   `json:"isReadOnly"`
	IsPartialEditingOnly bool   `json:"isPartialEditingOnly"`
}

type createdBody struct {
	URLCode   string `json:"urlCode"`
	ShareURL  string `json:"shareUrl"`
	ExpiresAt string `json:"expiresAt"`
}

type updateBody struct {
	Content string `json:"content"`
}

func (c *Client) CreateNote(ctx context.Context, req CreateRequest) (Created, error) {
	const op = "create note"
	mode := req.EditMode.OrDefault()
	readOnly, partial := mode.Flags()
	body := createBody{
		Content:              req.Content,
		DurationInHours:      req.DurationInHours,
		EditMode:             string(mode),
		IsReadOnly:           readOnly,
		IsPartialEditingOnly: partial,
	}
	var out createdBody
	status, err := c.do(ctx, op, "", http.MethodPost, "/notes", body, &out)
	if err != nil {
		return Created{}, err
	}
	code := strings.TrimSpace(out.URLCode)
	if code == "" {
		return Created{}, &ServerError{Op: op, Status: status, Message: "response has no url code"}
	}
	created := Created{URLCode: code, ShareURL: out.ShareURL}
	if strings.TrimSpace(out.ExpiresAt) != "" {
		created.ExpiresAt, err = note.ParseTime(out.ExpiresAt)
		if err != nil {
			return Created{}, &ServerError{Op: op, Status: status, Message: "invalid expiresAt", Err: err}
		}
	}
	return created, nil
}

func (c *Client) GetNote(ctx context.Context, code string) (note.Note, error) {
	const op = "get note"
	code = strings.TrimSpace(code)
	if code == "" {
		return note.Note{}, &ValidationError{Op: op, Message: "note code is required"}
	}
	var w note.Wire
	status, err := c.do(ctx, op, code, http.MethodGet, notePath(code), nil, &w)
	if err != nil {
		return note.Note{}, err
	}
	return normalize(op, code, status, w)
}

// UpdateNote replaces the whole document and returns the backend's canonical
// copy of the note.
func (c *Client) UpdateNote(ctx context.Context, code, content string) (note.Note, error) {
	const op = "update note"
	code = strings.TrimSpace(code)
	if code == "" {
		return note.Note{}, &ValidationError{Op: op, Message: "note code is required"}
	}
	var w note.Wire
	status, err := c.do(ctx, op, code, http.MethodPut, notePath(code), updateBody{Content: content}, &w)
	if err != nil {
		return note.Note{}, err
	}
	return normalize(op, code, status, w)
}

func notePath(code string) string {
	return "/notes/" + url.PathEscape(code)
}

func normalize(op, code string, status int, w note.Wire) (note.Note, error) {
	n, err := note.Normalize(w)
	if err != nil {
		return note.Note{}, &ServerError{Op: op, Status: status, Message: "invalid note payload", Err: err}
	}
	if n.URLCode == "" {
		n.URLCode = code
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, op, code, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("%s: create request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("api request failed", "op", op, "request_id", requestID, "err", err)
		return 0, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	slog.Debug("api request",
		"op", op,
		"method", method,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if Classify(resp.StatusCode) != CategoryNone {
		return resp.StatusCode, statusError(op, code, resp.StatusCode, readErrorMessage(resp))
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return resp.StatusCode, &NetworkError{Op: op, Err: ctxErr}
		}
		return resp.StatusCode, &ServerError{Op: op, Status: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return resp.StatusCode, nil
}

// readErrorMessage pulls a human message out of an error response. Backends
// answer with {"message": ...}, {"error": ...} or plain text.
func readErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return http.StatusText(resp.StatusCode)
	}
	slog.Debug("api error response", "status", resp.StatusCode, "body", string(data))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil {
		for _, msg := range []string{payload.Message, payload.Error, payload.Detail} {
			if msg = strings.TrimSpace(msg); msg != "" {
				return msg
			}
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "<") {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
