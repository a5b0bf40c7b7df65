package recognition

import "sync"

// Lifecycle serializes sink delivery for one engine. OnStart fires at most
// once, OnEnd exactly once, and nothing is delivered after OnEnd or Silence.
type Lifecycle struct {
	mu       sync.Mutex
	sink     Sink
	started  bool
	ended    bool
	silenced bool
}

func NewLifecycle(sink Sink) *Lifecycle {
	if sink == nil {
		sink = SinkFuncs{}
	}
	return &Lifecycle{sink: sink}
}

// Start reports the engine as capturing.
func (l *Lifecycle) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed() || l.started {
		return
	}
	l.started = true
	l.sink.OnStart()
}

func (l *Lifecycle) Result(r Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed() {
		return
	}
	l.sink.OnResult(r)
}

// Fail delivers code followed by the end event.
func (l *Lifecycle) Fail(code ErrorCode, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed() {
		return
	}
	l.ended = true
	l.sink.OnError(code, message)
	l.sink.OnEnd()
}

func (l *Lifecycle) End() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed() {
		return
	}
	l.ended = true
	l.sink.OnEnd()
}

// Silence drops every later callback. Used by Abort.
func (l *Lifecycle) Silence() {
	l.mu.Lock()
	l.silenced = true
	l.mu.Unlock()
}

// Ended reports whether the end event was delivered.
func (l *Lifecycle) Ended() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ended
}

func (l *Lifecycle) closed() bool {
	return l.ended || l.silenced
}
