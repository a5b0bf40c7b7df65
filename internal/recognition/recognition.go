// Package recognition defines the streaming speech engine contract used by capture sessions.
package recognition

import (
	"context"
	"errors"
)

// ErrClosed is returned when an engine is started after Stop or Abort.
var ErrClosed = errors.New("recognition engine closed")

// ErrorCode is the engine-reported failure category.
type ErrorCode string

const (
	ErrorNetwork            ErrorCode = "network"
	ErrorNoSpeech           ErrorCode = "no-speech"
	ErrorNotAllowed         ErrorCode = "not-allowed"
	ErrorPermissionDenied   ErrorCode = "permission-denied"
	ErrorAudioCapture       ErrorCode = "audio-capture"
	ErrorServiceNotAllowed  ErrorCode = "service-not-allowed"
	ErrorAborted            ErrorCode = "aborted"
	ErrorLanguageNotAllowed ErrorCode = "language-not-supported"
	ErrorStart              ErrorCode = "start-error"
	ErrorUnknown            ErrorCode = "unknown"
)

// Config is applied once when an engine is created.
type Config struct {
	Continuous     bool
	InterimResults bool
	Language       string
}

// Segment is one entry of the engine's cumulative result list.
type Segment struct {
	Transcript string
	Final      bool
	Confidence float32
}

// Result carries the full result list of the current session.
//
// Index is the first entry that changed since the previous result; entries
// before it are unchanged and have already been delivered.
type Result struct {
	Index    int
	Segments []Segment
}

// Sink receives engine callbacks. OnError is always followed by OnEnd.
// Implementations must not block.
type Sink interface {
	OnStart()
	OnResult(Result)
	OnError(code ErrorCode, message string)
	OnEnd()
}

// Engine is one streaming recognition instance bound to one Sink.
type Engine interface {
	// Start begins capture asynchronously. Failures after Start returns are
	// reported through the sink.
	Start(ctx context.Context) error
	// Stop ends capture gracefully and flushes pending results.
	Stop()
	// Abort ends capture immediately and discards pending results.
	Abort()
}

// Provider constructs engines for one recognition backend.
type Provider interface {
	Name() string
	Supported() bool
	NewEngine(cfg Config, sink Sink) (Engine, error)
}

// SinkFuncs adapts optional callback functions to Sink.
type SinkFuncs struct {
	Start  func()
	Result func(Result)
	Error  func(ErrorCode, string)
	End    func()
}

func (s SinkFuncs) OnStart() {
	if s.Start != nil {
		s.Start()
	}
}

func (s SinkFuncs) OnResult(r Result) {
	if s.Result != nil {
		s.Result(r)
	}
}

func (s SinkFuncs) OnError(code ErrorCode, message string) {
	if s.Error != nil {
		s.Error(code, message)
	}
}

func (s SinkFuncs) OnEnd() {
	if s.End != nil {
		s.End()
	}
}
