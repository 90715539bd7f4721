package autosave

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultDebounce     = 400 * time.Millisecond
	defaultFlushTimeout = 10 * time.Second
)

// PersistFunc writes the latest full content somewhere durable.
type PersistFunc func(ctx context.Context, content string) error

type Timer interface {
	Stop() bool
}

// TimerFunc arms f to run once after d. time.AfterFunc is the default.
type TimerFunc func(d time.Duration, f func()) Timer

type Option func(*Coordinator)

func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

func WithTimerFunc(fn TimerFunc) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.afterFunc = fn
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithFlushTimeout bounds persists started by the debounce timer, which have
// no caller context of their own.
func WithFlushTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.flushTimeout = d
		}
	}
}

// Coordinator debounces content changes into persist calls. At most one
// persist runs at a time; changes arriving meanwhile are coalesced into a
// single follow-up call carrying the newest content.
type Coordinator struct {
	persist      PersistFunc
	debounce     time.Duration
	flushTimeout time.Duration
	afterFunc    TimerFunc
	logger       *slog.Logger

	mu       sync.Mutex
	latest   string
	pending  bool
	inFlight bool
	closed   bool
	timer    Timer
	gen      uint64
	idle     chan struct{}
}

func New(persist PersistFunc, opts ...Option) *Coordinator {
	c := &Coordinator{
		persist:      persist,
		debounce:     DefaultDebounce,
		flushTimeout: defaultFlushTimeout,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Schedule records content as the latest state and restarts the debounce
// window. Calls after Close are ignored.
func (c *Coordinator) Schedule(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.latest = content
	c.pending = true
	c.stopTimerLocked()
	c.armLocked()
}

// FlushNow persists the latest content if a change is pending. While another
// persist is in flight it only leaves the change pending; that call re-arms a
// flush when it completes.
func (c *Coordinator) FlushNow(ctx context.Context) error {
	_, err := c.flush(ctx)
	return err
}

// Close stops scheduling, waits for an in-flight persist and then flushes any
// pending change synchronously. It is safe to call more than once.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if c.inFlight {
			idle := c.idle
			c.mu.Unlock()
			select {
			case <-idle:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		pending := c.pending
		c.mu.Unlock()
		if !pending {
			return nil
		}
		busy, err := c.flush(ctx)
		if busy {
			continue
		}
		return err
	}
}

func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *Coordinator) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// flush reports busy when it skipped because another persist was running.
func (c *Coordinator) flush(ctx context.Context) (busy bool, err error) {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return false, nil
	}
	if c.inFlight {
		c.mu.Unlock()
		return true, nil
	}
	c.stopTimerLocked()
	content := c.latest
	c.pending = false
	c.inFlight = true
	c.idle = make(chan struct{})
	c.mu.Unlock()

	err = c.persist(ctx, content)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	close(c.idle)
	if err != nil {
		c.pending = true
		c.logger.Warn("autosave failed", "err", err)
		return false, err
	}
	if c.pending && !c.closed && c.timer == nil {
		c.armLocked()
	}
	return false, nil
}

func (c *Coordinator) armLocked() {
	c.gen++
	gen := c.gen
	c.timer = c.afterFunc(c.debounce, func() { c.fire(gen) })
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.flushTimeout)
	defer cancel()
	_ = c.FlushNow(ctx)
}
