package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const DefaultIdle = 30 * time.Minute

type entry struct {
	view     *View
	lastUsed time.Time
}

// Registry keeps one View per (owner, note code). Owners are browser sessions.
// Views idle longer than the idle timeout are closed by Sweep, which flushes
// their pending checkbox changes.
type Registry struct {
	client NoteClient
	idle   time.Duration
	opts   []Option
	now    func() time.Time
	locker *keyLocker

	mu      sync.Mutex
	views   map[string]*entry
	onSaved func(owner, code string, err error)
}

func NewRegistry(client NoteClient, idle time.Duration, opts ...Option) *Registry {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Registry{
		client: client,
		idle:   idle,
		opts:   opts,
		now:    time.Now,
		locker: newKeyLocker(),
		views:  make(map[string]*entry),
	}
}

func registryKey(owner, code string) string {
	return owner + "\x00" + code
}

// Get returns the owner's view of code, opening one if needed. created reports
// whether the view was opened by this call.
func (r *Registry) Get(ctx context.Context, owner, code string) (view *View, created bool, err error) {
	unlock := r.locker.Lock(registryKey(owner, code))
	defer unlock()
	return r.get(ctx, owner, code)
}

// Do runs fn against the owner's view of code while holding the view's key
// lock, so a concurrent Release cannot close the view underneath fn. A nil
// view means the note could not be opened and err is the fetch error.
func (r *Registry) Do(ctx context.Context, owner, code string, fn func(*View) error) (*View, error) {
	unlock := r.locker.Lock(registryKey(owner, code))
	defer unlock()
	v, _, err := r.get(ctx, owner, code)
	if err != nil {
		return nil, err
	}
	return v, fn(v)
}

// get requires the key lock for (owner, code).
func (r *Registry) get(ctx context.Context, owner, code string) (*View, bool, error) {
	if v, ok := r.Lookup(owner, code); ok {
		return v, false, nil
	}
	opts := r.opts
	r.mu.Lock()
	hook := r.onSaved
	r.mu.Unlock()
	if hook != nil {
		opts = append(append([]Option(nil), r.opts...), WithSaveHook(func(code string, err error) {
			hook(owner, code, err)
		}))
	}
	v, err := Open(ctx, r.client, code, opts...)
	if err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	r.views[registryKey(owner, code)] = &entry{view: v, lastUsed: r.now()}
	r.mu.Unlock()
	return v, true, nil
}

// OnSaved reports the outcome of background checkbox saves of views opened
// from now on.
func (r *Registry) OnSaved(fn func(owner, code string, err error)) {
	r.mu.Lock()
	r.onSaved = fn
	r.mu.Unlock()
}

// Lookup returns an existing view without contacting the backend.
func (r *Registry) Lookup(owner, code string) (*View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.views[registryKey(owner, code)]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.view, true
}

// Reload returns the owner's view with content fetched fresh from the backend.
// A failed fetch drops the view, so the next Get starts over.
func (r *Registry) Reload(ctx context.Context, owner, code string) (*View, error) {
	v, created, err := r.Get(ctx, owner, code)
	if err != nil || created {
		return v, err
	}
	if err := v.Refresh(ctx); err != nil {
		if releaseErr := r.Release(ctx, owner, code); releaseErr != nil {
			slog.Warn("release view", "url_code", code, "err", releaseErr)
		}
		return nil, err
	}
	return v, nil
}

// Release closes and forgets the owner's view of code. It waits for any Get
// or Do holding the same key.
func (r *Registry) Release(ctx context.Context, owner, code string) error {
	key := registryKey(owner, code)
	unlock := r.locker.Lock(key)
	defer unlock()
	r.mu.Lock()
	e, ok := r.views[key]
	delete(r.views, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return e.view.Close(ctx)
}

// Sweep closes views idle for longer than the idle timeout and reports how
// many were evicted.
func (r *Registry) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.idle)
	var stale []*View
	r.mu.Lock()
	for key, e := range r.views {
		if e.lastUsed.Before(cutoff) {
			stale = append(stale, e.view)
			delete(r.views, key)
		}
	}
	r.mu.Unlock()
	for _, v := range stale {
		if err := v.Close(ctx); err != nil {
			slog.Warn("close idle view", "url_code", v.Code(), "view_id", v.ID(), "err", err)
		}
	}
	if len(stale) > 0 {
		slog.Debug("idle views evicted", "count", len(stale))
	}
	return len(stale)
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// CloseAll closes every view, flushing pending changes. Used on shutdown.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	views := make([]*View, 0, len(r.views))
	for key, e := range r.views {
		views = append(views, e.view)
		delete(r.views, key)
	}
	r.mu.Unlock()
	var errs []error
	for _, v := range views {
		if err := v.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
