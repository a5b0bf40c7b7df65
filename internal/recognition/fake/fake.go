// Package fake provides a scripted recognition provider for tests.
package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/rbright/inkwell/internal/recognition"
)

// Provider records every engine it creates.
type Provider struct {
	mu        sync.Mutex
	supported bool
	startErr  error
	createErr error
	engines   []*Engine
	created   chan *Engine
}

// NewProvider returns a supported provider.
func NewProvider() *Provider {
	return &Provider{supported: true, created: make(chan *Engine, 64)}
}

func (p *Provider) Name() string { return "fake" }

// Supported reports the value set by SetSupported.
func (p *Provider) Supported() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.supported
}

func (p *Provider) SetSupported(v bool) {
	p.mu.Lock()
	p.supported = v
	p.mu.Unlock()
}

// FailStarts makes every subsequent Engine.Start return err.
func (p *Provider) FailStarts(err error) {
	p.mu.Lock()
	p.startErr = err
	p.mu.Unlock()
}

// FailCreates makes every subsequent NewEngine return err.
func (p *Provider) FailCreates(err error) {
	p.mu.Lock()
	p.createErr = err
	p.mu.Unlock()
}

func (p *Provider) NewEngine(cfg recognition.Config, sink recognition.Sink) (recognition.Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	e := &Engine{Config: cfg, sink: sink, startErr: p.startErr}
	p.engines = append(p.engines, e)
	select {
	case p.created <- e:
	default:
	}
	return e, nil
}

// Engines returns a snapshot of created engines in creation order.
func (p *Provider) Engines() []*Engine {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Engine, len(p.engines))
	copy(out, p.engines)
	return out
}

// Count returns how many engines were created.
func (p *Provider) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.engines)
}

// Last returns the most recently created engine or nil.
func (p *Provider) Last() *Engine {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.engines) == 0 {
		return nil
	}
	return p.engines[len(p.engines)-1]
}

// Created delivers engines as they are created.
func (p *Provider) Created() <-chan *Engine {
	return p.created
}

// Engine is a scripted engine. Tests drive its sink with the Emit helpers.
type Engine struct {
	Config recognition.Config

	sink     recognition.Sink
	startErr error

	mu      sync.Mutex
	started int
	stopped int
	aborted int
}

var errClosed = errors.New("fake engine closed")

func (e *Engine) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	if e.stopped > 0 || e.aborted > 0 {
		return errClosed
	}
	e.started++
	return nil
}

func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped++
	e.mu.Unlock()
}

func (e *Engine) Abort() {
	e.mu.Lock()
	e.aborted++
	e.mu.Unlock()
}

// Started returns the number of successful Start calls.
func (e *Engine) Started() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

func (e *Engine) Stopped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

func (e *Engine) Aborted() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborted
}

// Closed reports whether Stop or Abort was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped > 0 || e.aborted > 0
}

func (e *Engine) EmitStart() { e.sink.OnStart() }

func (e *Engine) EmitResult(index int, segments ...recognition.Segment) {
	e.sink.OnResult(recognition.Result{Index: index, Segments: segments})
}

// EmitError delivers an error followed by the mandatory end event.
func (e *Engine) EmitError(code recognition.ErrorCode, message string) {
	e.sink.OnError(code, message)
	e.sink.OnEnd()
}

// EmitErrorOnly delivers an error without the trailing end event.
func (e *Engine) EmitErrorOnly(code recognition.ErrorCode, message string) {
	e.sink.OnError(code, message)
}

func (e *Engine) EmitEnd() { e.sink.OnEnd() }

// Final builds a finalized segment.
func Final(text string) recognition.Segment {
	return recognition.Segment{Transcript: text, Final: true, Confidence: 1}
}

// Interim builds an unfinalized segment.
func Interim(text string) recognition.Segment {
	return recognition.Segment{Transcript: text}
}
