package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	clock   *fakeClock
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs every armed timer on the calling goroutine.
func (c *fakeClock) fire() int {
	timers := c.active()
	for _, t := range timers {
		c.mu.Lock()
		t.fired = true
		c.mu.Unlock()
		t.f()
	}
	return len(timers)
}

type recorder struct {
	mu         sync.Mutex
	calls      []string
	running    int
	maxRunning int
	err        error
	block      chan struct{}
	started    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{started: make(chan struct{}, 16)}
}

func (r *recorder) persist(ctx context.Context, content string) error {
	r.mu.Lock()
	r.calls = append(r.calls, content)
	r.running++
	if r.running > r.maxRunning {
		r.maxRunning = r.running
	}
	block := r.block
	err := r.err
	r.mu.Unlock()

	r.started <- struct{}{}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	r.mu.Lock()
	r.running--
	r.mu.Unlock()
	return err
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *recorder) setBlock(ch chan struct{}) {
	r.mu.Lock()
	r.block = ch
	r.mu.Unlock()
}

func newTestCoordinator(r *recorder) (*Coordinator, *fakeClock) {
	clock := &fakeClock{}
	return New(r.persist, WithTimerFunc(clock.AfterFunc)), clock
}

func waitStarted(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("persist was not called")
	}
}

func expectCalls(t *testing.T, r *recorder, want ...string) {
	t.Helper()
	got := r.snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d persist calls %q, got %d %q", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestScheduleCoalescesWithinWindow(t *testing.T) {
	r := newRecorder()
	c, clock := newTestCoordinator(r)
	c.Schedule("a")
	c.Schedule("b")
	c.Schedule("c")
	if n := len(clock.active()); n != 1 {
		t.Fatalf("expected exactly one armed timer, got %d", n)
	}
	if !c.Pending() {
		t.Fatalf("expected pending change")
	}
	clock.fire()
	expectCalls(t, r, "c")
	if c.Pending() {
		t.Fatalf("expected nothing pending after flush")
	}
}

func TestToggleTwiceInWindowSendsFinalContent(t *testing.T) {
	r := newRecorder()
	c, clock := newTestCoordinator(r)
	c.Schedule("<li data-checked=\"true\">")
	c.Schedule("<li data-checked=\"false\">")
	clock.fire()
	expectCalls(t, r, "<li data-checked=\"false\">")
}

func TestFlushNowIsIdempotent(t *testing.T) {
	r := newRecorder()
	c, clock := newTestCoordinator(r)
	c.Schedule("a")
	if err := c.FlushNow(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := c.FlushNow(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	expectCalls(t, r, "a")
	if n := clock.fire(); n != 0 {
		t.Fatalf("expected flush to cancel the timer, %d fired", n)
	}
	expectCalls(t, r, "a")
}

func TestStaleTimerIsIgnored(t *testing.T) {
	r := newRecorder()
	c, clock := newTestCoordinator(r)
	c.Schedule("a")
	stale := clock.active()[0]
	c.Schedule("b")
	stale.f()
	expectCalls(t, r)
	clock.fire()
	expectCalls(t, r, "b")
}

func TestCloseFlushesPendingSynchronously(t *testing.T) {
	r := newRecorder()
	c, clock := newTestCoordinator(r)
	c.Schedule("a")
	c.Schedule("b")
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	expectCalls(t, r, "b")
	if len(clock.active()) != 0 {
		t.Fatalf("expected no armed timers after close")
	}
	c.Schedule("c")
	if c.Pending() {
		t.Fatalf("schedule after close must be ignored")
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	expectCalls(t, r, "b")
}

func TestCloseWithoutChangesDoesNothing(t *testing.T) {
	r := newRecorder()
	c, _ := newTestCoordinator(r)
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	expectCalls(t, r)
	if !c.Closed() {
		t.Fatalf("expected closed")
	}
}

func TestChangeDuringFlightIsSentAfterCompletion(t *testing.T) {
	r := newRecorder()
	release := make(chan struct{})
	r.setBlock(release)
	c, clock := newTestCoordinator(r)

	c.Schedule("a")
	done := make(chan error, 1)
	go func() { done <- c.FlushNow(context.Background()) }()
	waitStarted(t, r)
	if !c.InFlight() {
		t.Fatalf("expected request in flight")
	}

	c.Schedule("b")
	c.Schedule("c")
	clock.fire()
	if err := c.FlushNow(context.Background()); err != nil {
		t.Fatalf("flush during flight: %v", err)
	}
	expectCalls(t, r, "a")
	if !c.Pending() {
		t.Fatalf("expected newer change to stay pending")
	}

	r.setBlock(nil)
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first flush: %v", err)
	}
	if n := len(clock.active()); n != 1 {
		t.Fatalf("expected completion to re-arm one flush, got %d timers", n)
	}
	clock.fire()
	expectCalls(t, r, "a", "c")

	r.mu.Lock()
	maxRunning := r.maxRunning
	r.mu.Unlock()
	if maxRunning != 1 {
		t.Fatalf("expected persists to be serialized, saw %d concurrent", maxRunning)
	}
}

func TestCloseWaitsForInFlightThenFlushes(t *testing.T) {
	r := newRecorder()
	release := make(chan struct{})
	r.setBlock(release)
	c, _ := newTestCoordinator(r)

	c.Schedule("a")
	go func() { _ = c.FlushNow(context.Background()) }()
	waitStarted(t, r)
	c.Schedule("b")

	closed := make(chan error, 1)
	go func() { closed <- c.Close(context.Background()) }()
	select {
	case err := <-closed:
		t.Fatalf("close returned before in-flight request finished: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	r.setBlock(nil)
	close(release)
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("close did not return")
	}
	expectCalls(t, r, "a", "b")
}

func TestCloseHonoursContextWhileWaiting(t *testing.T) {
	r := newRecorder()
	release := make(chan struct{})
	defer close(release)
	r.setBlock(release)
	c, _ := newTestCoordinator(r)

	c.Schedule("a")
	go func() { _ = c.FlushNow(context.Background()) }()
	waitStarted(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestFailureKeepsChangePendingWithoutRetry(t *testing.T) {
	r := newRecorder()
	r.setErr(errors.New("backend down"))
	c, clock := newTestCoordinator(r)

	c.Schedule("a")
	clock.fire()
	expectCalls(t, r, "a")
	if !c.Pending() {
		t.Fatalf("expected change to stay pending after failure")
	}
	if n := len(clock.active()); n != 0 {
		t.Fatalf("expected no automatic retry, got %d timers", n)
	}

	r.setErr(nil)
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	expectCalls(t, r, "a", "a")
	if c.Pending() {
		t.Fatalf("expected teardown flush to clear pending")
	}
}

func TestFlushNowReturnsPersistError(t *testing.T) {
	r := newRecorder()
	boom := errors.New("boom")
	r.setErr(boom)
	c, _ := newTestCoordinator(r)
	c.Schedule("a")
	if err := c.FlushNow(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected persist error, got %v", err)
	}
}

func TestRealTimerFlushesAfterDebounce(t *testing.T) {
	r := newRecorder()
	c := New(r.persist, WithDebounce(5*time.Millisecond))
	c.Schedule("a")
	waitStarted(t, r)
	deadline := time.Now().Add(2 * time.Second)
	for c.Pending() || c.InFlight() {
		if time.Now().After(deadline) {
			t.Fatalf("flush did not settle")
		}
		time.Sleep(time.Millisecond)
	}
	expectCalls(t, r, "a")
}
