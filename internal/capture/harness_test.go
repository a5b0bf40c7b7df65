package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rbright/inkwell/internal/recognition/fake"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &manualTimer{clock: c, delay: d, fn: fn}
	c.timers = append(c.timers, timer)
	return timer
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// delays returns every delay ever scheduled, in order.
func (c *manualClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, timer := range c.timers {
		out = append(out, timer.delay)
	}
	return out
}

func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			count++
		}
	}
	return count
}

// fire runs the oldest pending timer and reports whether one existed.
func (c *manualClock) fire() bool {
	c.mu.Lock()
	var next *manualTimer
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			next = timer
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	c.mu.Unlock()

	if next == nil {
		return false
	}
	next.fn()
	return true
}

type manualNetwork struct {
	mu        sync.Mutex
	online    bool
	listeners map[int]func(bool)
	next      int
}

func newManualNetwork(online bool) *manualNetwork {
	return &manualNetwork{online: online, listeners: map[int]func(bool){}}
}

func (n *manualNetwork) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *manualNetwork) Subscribe(fn func(bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	n.listeners[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

func (n *manualNetwork) set(online bool) {
	n.mu.Lock()
	n.online = online
	listeners := make([]func(bool), 0, len(n.listeners))
	for _, fn := range n.listeners {
		listeners = append(listeners, fn)
	}
	n.mu.Unlock()
	for _, fn := range listeners {
		fn(online)
	}
}

type recordedNotes struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordedNotes) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recordedNotes) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Title)
	}
	return out
}

type harness struct {
	t           *testing.T
	ctrl        *Controller
	provider    *fake.Provider
	clock       *manualClock
	network     *manualNetwork
	notes       *recordedNotes
	mu          sync.Mutex
	transcripts []string
}

func newHarness(t *testing.T, configure func(*Options)) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		provider: fake.NewProvider(),
		clock:    &manualClock{},
		network:  newManualNetwork(true),
		notes:    &recordedNotes{},
	}
	opts := Options{
		ID:            "test",
		Provider:      h.provider,
		Connectivity:  h.network,
		Notifier:      h.notes,
		Clock:         h.clock,
		MaxRetries:    DefaultMaxRetries,
		RetryInterval: DefaultRetryInterval,
		RestartDelay:  DefaultRestartDelay,
		OnTranscriptChange: func(committed string) {
			h.mu.Lock()
			h.transcripts = append(h.transcripts, committed)
			h.mu.Unlock()
		},
	}
	if configure != nil {
		configure(&opts)
	}
	h.ctrl = New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- h.ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-runDone:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("controller did not stop")
		}
	})

	h.settle()
	return h
}

// settle waits until queued events are applied and their callbacks delivered.
func (h *harness) settle() {
	h.t.Helper()
	h.ctrl.sync()
	delivered := make(chan struct{})
	if !h.ctrl.outbox.push(func() { close(delivered) }) {
		return
	}
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		h.t.Fatal("outbox did not drain")
	}
}

// nextEngine waits for the controller to create its next engine.
func (h *harness) nextEngine() *fake.Engine {
	h.t.Helper()
	select {
	case engine := <-h.provider.Created():
		h.settle()
		return engine
	case <-time.After(2 * time.Second):
		h.t.Fatal("no engine created")
		return nil
	}
}

// listen starts capture and confirms the engine started.
func (h *harness) listen() *fake.Engine {
	h.t.Helper()
	h.ctrl.StartListening()
	engine := h.nextEngine()
	engine.EmitStart()
	h.settle()
	return engine
}

func (h *harness) changes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.transcripts...)
}

func (h *harness) snapshot() Snapshot {
	return h.ctrl.Snapshot()
}
