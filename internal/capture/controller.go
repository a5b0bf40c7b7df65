// Package capture drives continuous speech capture sessions around a
// recognition engine.
//
// All state is owned by the goroutine running Controller.Run. Public calls,
// engine callbacks, timers, permission probes and connectivity transitions are
// queued as events and applied one at a time in arrival order. Consumer
// callbacks and notifications are delivered from a separate goroutine so they
// may call back into the controller.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/inkwell/internal/fsm"
	"github.com/rbright/inkwell/internal/recognition"
)

const (
	DefaultMaxRetries    = 3
	DefaultRetryInterval = time.Second
	DefaultRestartDelay  = 300 * time.Millisecond
	DefaultProbeTimeout  = 5 * time.Second
)

// ErrAlreadyRunning is returned when Run is invoked twice.
var ErrAlreadyRunning = errors.New("capture controller already running")

// Options wires a controller to its collaborators.
type Options struct {
	ID          string
	Provider    recognition.Provider
	Recognition recognition.Config

	Connectivity Connectivity
	Probe        ProbeFunc
	// ProbeOnRun requests a background microphone probe when Run starts.
	ProbeOnRun bool

	Notifier Notifier
	Recorder Recorder
	// OnTranscriptChange receives the full committed transcript whenever it grows.
	OnTranscriptChange func(committed string)

	MaxRetries    int
	RetryInterval time.Duration
	RestartDelay  time.Duration
	ProbeTimeout  time.Duration

	Clock  Clock
	Logger *slog.Logger
}

type openReason int

const (
	openFresh openReason = iota + 1
	openRetry
	openRestart
)

type timerReason int

const (
	timerRetry timerReason = iota + 1
	timerRestart
)

func (r timerReason) String() string {
	if r == timerRetry {
		return "retry"
	}
	return "restart"
}

type commandKind int

const (
	cmdStart commandKind = iota + 1
	cmdStop
	cmdReset
	cmdSync
)

type event any

type command struct {
	kind commandKind
	done chan struct{}
}

type engineStarted struct{ session uint64 }

type engineResult struct {
	session uint64
	result  recognition.Result
}

type engineError struct {
	session uint64
	code    recognition.ErrorCode
	message string
}

type engineEnded struct{ session uint64 }

type timerFired struct {
	generation uint64
	reason     timerReason
}

type probeFinished struct {
	generation uint64
	err        error
}

type connectivityChanged struct{ online bool }

// captureSession is one engine instance. It is replaced, never reused.
type captureSession struct {
	id     uint64
	engine recognition.Engine
	reason openReason
	ended  bool
}

// sessionSink tags engine callbacks with their session id.
type sessionSink struct {
	events *queue[event]
	id     uint64
}

func (s sessionSink) OnStart() { s.events.push(engineStarted{session: s.id}) }

func (s sessionSink) OnResult(r recognition.Result) {
	s.events.push(engineResult{session: s.id, result: r})
}

func (s sessionSink) OnError(code recognition.ErrorCode, message string) {
	s.events.push(engineError{session: s.id, code: code, message: message})
}

func (s sessionSink) OnEnd() { s.events.push(engineEnded{session: s.id}) }

// supportProbe caches the provider capability check.
type supportProbe struct {
	once     sync.Once
	provider recognition.Provider
	value    bool
}

func (p *supportProbe) Supported() bool {
	p.once.Do(func() {
		p.value = p.provider != nil && p.provider.Supported()
	})
	return p.value
}

// Controller is the capture session state machine.
type Controller struct {
	logger       *slog.Logger
	provider     recognition.Provider
	recognition  recognition.Config
	support      *supportProbe
	connectivity Connectivity
	probe        ProbeFunc
	probeOnRun   bool
	notifier     Notifier
	recorder     Recorder
	onChange     func(string)
	clock        Clock

	maxRetries    int
	retryInterval time.Duration
	restartDelay  time.Duration
	probeTimeout  time.Duration

	events  *queue[event]
	outbox  *queue[func()]
	running atomic.Bool
	exited  chan struct{}

	published atomic.Pointer[Snapshot]
	subsMu    sync.Mutex
	subs      map[int]func(Snapshot)
	nextSub   int

	// Owned by the Run goroutine.
	ctx           context.Context
	state         State
	wants         bool
	listening     bool
	permission    Permission
	online        bool
	supported     bool
	lastErr       ErrorKind
	lastMsg       string
	retryCount    int
	session       *captureSession
	nextSessionID uint64
	timer         Timer
	timerGen      uint64
	probing       bool
	probeGen      uint64
	probeCancel   context.CancelFunc
	acc           Accumulator
}

// New builds a controller. Run must be started before the public methods are used.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.ID != "" {
		logger = logger.With("controller_id", opts.ID)
	}
	connectivity := opts.Connectivity
	if connectivity == nil {
		connectivity = alwaysOnline{}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	probe := opts.Probe
	if probe == nil {
		probe = func(context.Context) error { return nil }
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	retryInterval := opts.RetryInterval
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	restartDelay := opts.RestartDelay
	if restartDelay < 0 {
		restartDelay = 0
	}
	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}

	c := &Controller{
		logger:        logger,
		provider:      opts.Provider,
		recognition:   opts.Recognition,
		support:       &supportProbe{provider: opts.Provider},
		connectivity:  connectivity,
		probe:         probe,
		probeOnRun:    opts.ProbeOnRun,
		notifier:      notifier,
		recorder:      recorder,
		onChange:      opts.OnTranscriptChange,
		clock:         clock,
		maxRetries:    maxRetries,
		retryInterval: retryInterval,
		restartDelay:  restartDelay,
		probeTimeout:  probeTimeout,
		events:        newQueue[event](),
		outbox:        newQueue[func()](),
		exited:        make(chan struct{}),
		subs:          make(map[int]func(Snapshot)),
		ctx:           context.Background(),
		state:         State{Phase: fsm.PhaseIdle},
		permission:    PermissionUnknown,
		online:        true,
	}
	initial := c.snapshot()
	c.published.Store(&initial)
	return c
}

// Run drives the controller until ctx is cancelled. Teardown on exit is quiet.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.exited)

	c.ctx = ctx
	c.supported = c.support.Supported()
	c.online = c.connectivity.Online()
	unsubscribe := c.connectivity.Subscribe(func(online bool) {
		c.events.push(connectivityChanged{online: online})
	})
	defer unsubscribe()

	dispatchStop := make(chan struct{})
	dispatchDone := make(chan struct{})
	go c.dispatch(dispatchStop, dispatchDone)
	defer func() {
		close(dispatchStop)
		<-dispatchDone
	}()

	c.recorder.Online(c.online)
	c.logger.Info("capture controller started",
		"provider", c.providerName(),
		"supported", c.supported,
		"online", c.online,
	)
	if c.probeOnRun && c.supported {
		c.beginProbe()
	}
	c.publish()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-c.events.ready():
			for _, ev := range c.events.drain() {
				c.handle(ev)
			}
		}
	}
}

// StartListening requests a capture session. Failures are reported through
// the snapshot and the notifier.
func (c *Controller) StartListening() { c.call(cmdStart) }

// StopListening stops capture. When it returns the stop has been applied and
// no further session events will change state.
func (c *Controller) StopListening() { c.call(cmdStop) }

// ResetTranscript discards committed and pending text.
func (c *Controller) ResetTranscript() { c.call(cmdReset) }

// Snapshot returns the most recently published state.
func (c *Controller) Snapshot() Snapshot {
	return *c.published.Load()
}

// Subscribe registers fn for every published state change.
func (c *Controller) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

// Done is closed after Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.exited
}

func (c *Controller) call(kind commandKind) {
	done := make(chan struct{})
	if !c.events.push(command{kind: kind, done: done}) {
		return
	}
	select {
	case <-done:
	case <-c.exited:
	}
}

// sync blocks until every event queued before it has been applied.
func (c *Controller) sync() { c.call(cmdSync) }

func (c *Controller) handle(ev event) {
	switch e := ev.(type) {
	case command:
		switch e.kind {
		case cmdStart:
			c.requestStart()
		case cmdStop:
			c.stop(true)
		case cmdReset:
			c.acc.Reset()
		}
		c.publish()
		close(e.done)
		return
	case engineStarted:
		c.onEngineStart(e)
	case engineResult:
		c.onEngineResult(e)
	case engineError:
		c.onEngineError(e)
	case engineEnded:
		c.onEngineEnd(e)
	case timerFired:
		c.onTimer(e)
	case probeFinished:
		c.onProbeFinished(e)
	case connectivityChanged:
		c.onConnectivity(e.online)
	default:
		c.logger.Error("unknown controller event", "type", fmt.Sprintf("%T", ev))
	}
	c.publish()
}

// requestStart runs the start gate: support, connectivity, then permission.
func (c *Controller) requestStart() {
	if c.probing {
		c.wants = true
		c.logger.Debug("start coalesced with pending microphone probe")
		return
	}
	if fsm.Active(c.state.Phase) {
		c.logger.Debug("start ignored; session already active", "phase", c.state.Phase)
		return
	}

	c.clearError()

	if !c.supported {
		c.fatal(KindNotSupported, "Not supported",
			"Speech recognition is not supported in this environment.")
		return
	}
	if !c.online {
		c.setError(KindNetworkUnavailable,
			"Speech recognition requires an internet connection. Please check your network.")
		c.recorder.ErrorObserved(string(KindNetworkUnavailable))
		c.notify(Notification{
			Title:       "No Internet Connection",
			Description: c.lastMsg,
			Variant:     VariantDestructive,
			Cue:         CueError,
		})
		return
	}

	c.wants = true
	if c.permission != PermissionGranted {
		c.beginProbe()
		return
	}

	c.retryCount = 0
	c.openSession(openFresh)
}

func (c *Controller) beginProbe() {
	c.probing = true
	c.probeGen++
	generation := c.probeGen

	ctx, cancel := context.WithTimeout(c.ctx, c.probeTimeout)
	c.probeCancel = cancel
	probe := c.probe
	go func() {
		err := probe(ctx)
		cancel()
		c.events.push(probeFinished{generation: generation, err: err})
	}()
}

func (c *Controller) onProbeFinished(e probeFinished) {
	if e.generation != c.probeGen || !c.probing {
		return
	}
	c.probing = false
	c.probeCancel = nil

	if e.err != nil {
		c.permission = PermissionDenied
		c.logger.Warn("microphone probe failed", "error", e.err.Error())
		if !c.wants {
			return
		}
		c.wants = false
		c.fatal(KindPermissionDenied, "Permission Denied",
			"Please allow microphone access to use speech-to-text.")
		return
	}

	c.permission = PermissionGranted
	if !c.wants {
		return
	}
	c.wants = false
	c.requestStart()
}

func (c *Controller) openSession(reason openReason) {
	c.teardown()

	transitionEvent := fsm.EventRestart
	if reason == openFresh {
		transitionEvent = fsm.EventStart
	}
	if !c.transition(transitionEvent, 0, KindNone) {
		return
	}

	c.nextSessionID++
	id := c.nextSessionID
	c.acc.BeginSession()
	logger := c.logger.With("session_id", id)

	if c.provider == nil {
		c.fatal(KindNotSupported, "Not supported", "No recognition provider is configured.")
		return
	}
	engine, err := c.provider.NewEngine(c.recognition, sessionSink{events: c.events, id: id})
	if err != nil {
		logger.Error("create recognition engine failed", "error", err.Error())
		c.fatal(KindUnknown, "Error", engineMessage(recognition.ErrorStart))
		return
	}
	c.session = &captureSession{id: id, engine: engine, reason: reason}
	c.recorder.SessionOpened()

	if err := engine.Start(c.ctx); err != nil {
		logger.Error("start recognition engine failed", "error", err.Error())
		c.fatal(KindUnknown, "Error", engineMessage(recognition.ErrorStart))
		return
	}
	logger.Info("capture session opened", "reason", reason.String())
}

func (r openReason) String() string {
	switch r {
	case openFresh:
		return "start"
	case openRetry:
		return "retry"
	case openRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// current returns the live session matching id or nil for stale events.
func (c *Controller) current(id uint64, what string) *captureSession {
	if c.session == nil || c.session.id != id {
		c.logger.Debug("stale engine event dropped", "event", what, "session_id", id)
		return nil
	}
	return c.session
}

func (c *Controller) onEngineStart(e engineStarted) {
	s := c.current(e.session, "start")
	if s == nil || s.ended {
		return
	}
	if !c.transition(fsm.EventEngineStart, 0, KindNone) {
		return
	}
	c.listening = true
	c.clearError()
	c.recorder.Listening(true)

	switch s.reason {
	case openFresh:
		c.retryCount = 0
		c.notify(Notification{
			Title:       "Listening started",
			Description: "Speak now, your words will be transcribed.",
			Variant:     VariantDefault,
			Cue:         CueStart,
		})
	case openRetry:
		c.notify(Notification{
			Title:       "Reconnected",
			Description: "Speech recognition has resumed.",
			Variant:     VariantDefault,
		})
	}
}

func (c *Controller) onEngineResult(e engineResult) {
	s := c.current(e.session, "result")
	if s == nil || s.ended {
		return
	}

	if len(e.result.Segments) > e.result.Index {
		// Speech got through; retries are no longer consecutive.
		c.retryCount = 0
	}

	before := len(c.acc.Committed())
	if !c.acc.Apply(e.result) {
		return
	}
	committed := c.acc.Committed()
	c.recorder.Committed(len(committed) - before)

	if c.onChange != nil {
		onChange := c.onChange
		c.outbox.push(func() { onChange(committed) })
	}
}

func (c *Controller) onEngineError(e engineError) {
	s := c.current(e.session, "error")
	if s == nil {
		return
	}

	kind, reaction := classify(e.code)
	message := e.message
	if message == "" {
		message = engineMessage(e.code)
	}
	if reaction != policyFatal {
		c.recorder.ErrorObserved(string(kind))
	}
	c.logger.Warn("recognition engine error",
		"session_id", s.id,
		"code", string(e.code),
		"kind", string(kind),
		"message", e.message,
	)

	switch reaction {
	case policySilentStop:
		c.stop(false)
	case policySilentRestart:
		c.setError(KindNoSpeech, message)
	case policyRetry:
		if !c.connectivity.Online() {
			c.setError(KindNetworkUnavailable, "You are offline. Speech recognition requires an internet connection.")
			c.stop(false)
			return
		}
		c.scheduleRetry(engineMessage(recognition.ErrorNetwork))
	default:
		if kind == KindPermissionDenied {
			c.permission = PermissionDenied
		}
		c.fatal(kind, "Speech Recognition Error", engineMessage(e.code))
	}
}

func (c *Controller) scheduleRetry(message string) {
	if c.retryCount >= c.maxRetries {
		c.fatal(KindConnectionFailed, "Connection failed",
			"Maximum retry attempts reached. Please check your connection and try again.")
		return
	}

	delay := c.retryInterval << c.retryCount
	attempt := c.retryCount + 1

	c.teardown()
	if !c.transition(fsm.EventRetry, attempt, KindNone) {
		return
	}
	c.retryCount = attempt
	c.setError(KindEngineNetwork, message)
	c.schedule(delay, timerRetry)
	c.recorder.RetryScheduled(c.retryCount, delay)
	c.logger.Info("capture retry scheduled", "attempt", c.retryCount, "delay_ms", delay.Milliseconds())
	c.notify(Notification{
		Title: "Reconnecting",
		Description: fmt.Sprintf("%s Retrying in %s (attempt %d of %d).",
			message, delay, c.retryCount, c.maxRetries),
		Variant: VariantDestructive,
	})
}

func (c *Controller) onEngineEnd(e engineEnded) {
	s := c.current(e.session, "end")
	if s == nil || s.ended {
		return
	}
	s.ended = true

	if c.wants && c.online && (c.lastErr == KindNone || c.lastErr == KindNoSpeech) {
		reason := "end"
		if c.lastErr == KindNoSpeech {
			reason = "no-speech"
			c.clearError()
		}
		if !c.transition(fsm.EventRestart, 0, KindNone) {
			return
		}
		c.recorder.Restarted(reason)
		c.logger.Debug("capture session ended; restarting", "session_id", s.id, "reason", reason)
		if c.restartDelay <= 0 {
			c.openSession(openRestart)
			return
		}
		c.schedule(c.restartDelay, timerRestart)
		return
	}

	c.wants = false
	c.listening = false
	c.recorder.Listening(false)
	c.transition(fsm.EventEnd, 0, KindNone)
	c.logger.Info("capture session ended", "session_id", s.id)
}

func (c *Controller) schedule(delay time.Duration, reason timerReason) {
	c.cancelTimer()
	generation := c.timerGen
	c.timer = c.clock.AfterFunc(delay, func() {
		c.events.push(timerFired{generation: generation, reason: reason})
	})
}

// cancelTimer stops the pending timer and invalidates any expiry already queued.
func (c *Controller) cancelTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Controller) onTimer(e timerFired) {
	if e.generation != c.timerGen {
		return
	}
	c.timer = nil
	if !c.wants || !c.online {
		c.logger.Debug("timer expired without a pending start", "reason", e.reason.String())
		return
	}
	if e.reason == timerRetry {
		c.openSession(openRetry)
		return
	}
	c.openSession(openRestart)
}

func (c *Controller) onConnectivity(online bool) {
	if online == c.online {
		return
	}
	c.online = online
	c.recorder.Online(online)
	c.logger.Info("connectivity changed", "online", online)

	if online {
		if c.lastErr == KindNetworkUnavailable {
			c.clearError()
		}
		c.notify(Notification{
			Title:       "Back online",
			Description: "Your internet connection has been restored.",
			Variant:     VariantDefault,
		})
		return
	}

	c.setError(KindNetworkUnavailable, "You are offline. Speech recognition requires an internet connection.")
	c.recorder.ErrorObserved(string(KindNetworkUnavailable))
	c.notify(Notification{
		Title:       "Network disconnected",
		Description: c.lastMsg,
		Variant:     VariantDestructive,
		Cue:         CueError,
	})
	if c.wants || c.probing || fsm.Active(c.state.Phase) {
		c.stop(false)
	}
}

// stop cancels timers, closes the session and settles in Stopped.
func (c *Controller) stop(announce bool) {
	wasActive := c.wants || c.listening || c.probing || fsm.Active(c.state.Phase)

	c.cancelProbe()
	c.cancelTimer()
	c.teardown()
	c.wants = false
	c.listening = false
	c.retryCount = 0
	c.recorder.Listening(false)
	c.transition(fsm.EventStop, 0, KindNone)

	if announce && wasActive {
		c.logger.Info("capture stopped")
		c.notify(Notification{
			Title:       "Listening stopped",
			Description: "Speech recognition has been stopped.",
			Variant:     VariantDefault,
			Cue:         CueStop,
		})
	}
}

// fatal stops without retry and surfaces kind until the next explicit start.
func (c *Controller) fatal(kind ErrorKind, title string, message string) {
	c.cancelTimer()
	c.teardown()
	c.wants = false
	c.listening = false
	c.recorder.Listening(false)
	c.recorder.ErrorObserved(string(kind))
	c.setError(kind, message)
	c.transition(fsm.EventFail, 0, kind)
	c.logger.Error("capture failed", "kind", string(kind), "message", message)
	c.notify(Notification{
		Title:       title,
		Description: message,
		Variant:     VariantDestructive,
		Cue:         CueError,
	})
}

// teardown stops and aborts the current engine and forgets the session.
func (c *Controller) teardown() {
	s := c.session
	if s == nil {
		return
	}
	c.session = nil
	s.engine.Stop()
	s.engine.Abort()
}

func (c *Controller) transition(event fsm.Event, attempt int, failure ErrorKind) bool {
	next, err := fsm.Transition(c.state.Phase, event)
	if err != nil {
		c.logger.Debug("capture transition rejected", "error", err.Error())
		return false
	}
	c.state = State{Phase: next, Attempt: attempt, Failure: failure}
	return true
}

func (c *Controller) setError(kind ErrorKind, message string) {
	c.lastErr = kind
	c.lastMsg = message
}

func (c *Controller) clearError() {
	c.lastErr = KindNone
	c.lastMsg = ""
}

func (c *Controller) notify(n Notification) {
	notifier := c.notifier
	c.outbox.push(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		notifier.Notify(ctx, n)
	})
}

func (c *Controller) snapshot() Snapshot {
	var sessionID uint64
	if c.session != nil {
		sessionID = c.session.id
	}
	return Snapshot{
		State:                 c.state,
		SessionID:             sessionID,
		IsListening:           c.listening,
		Transcript:            c.acc.Committed(),
		Pending:               c.acc.Pending(),
		Error:                 c.lastErr,
		ErrorMessage:          c.lastMsg,
		MicrophonePermission:  c.permission,
		IsOnline:              c.online,
		RetryingCount:         c.retryCount,
		HasRecognitionSupport: c.supported,
	}
}

// publish stores the current snapshot and fans it out when it changed.
func (c *Controller) publish() {
	next := c.snapshot()
	if prev := c.published.Load(); prev != nil && *prev == next {
		return
	}
	c.published.Store(&next)

	c.subsMu.Lock()
	listeners := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		listeners = append(listeners, fn)
	}
	c.subsMu.Unlock()
	if len(listeners) == 0 {
		return
	}
	c.outbox.push(func() {
		for _, fn := range listeners {
			fn(next)
		}
	})
}

// dispatch runs outbox callbacks in order until stop, then drains the rest.
func (c *Controller) dispatch(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-c.outbox.ready():
			for _, fn := range c.outbox.drain() {
				fn()
			}
		case <-stop:
			for _, fn := range c.outbox.close() {
				fn()
			}
			return
		}
	}
}

// cancelProbe abandons an in-flight microphone probe; its result is dropped.
func (c *Controller) cancelProbe() {
	if c.probeCancel != nil {
		c.probeCancel()
		c.probeCancel = nil
	}
	if c.probing {
		c.probeGen++
	}
	c.probing = false
}

func (c *Controller) shutdown() {
	c.cancelProbe()
	c.cancelTimer()
	c.teardown()
	c.wants = false
	c.listening = false
	c.recorder.Listening(false)
	c.transition(fsm.EventStop, 0, KindNone)
	c.publish()

	for _, ev := range c.events.close() {
		if cmd, ok := ev.(command); ok {
			close(cmd.done)
		}
	}
	c.logger.Info("capture controller stopped")
}

func (c *Controller) providerName() string {
	if c.provider == nil {
		return ""
	}
	return c.provider.Name()
}
