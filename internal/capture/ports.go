package capture

import (
	"context"
	"time"
)

// Connectivity reports host online status and its transitions.
type Connectivity interface {
	Online() bool
	// Subscribe registers fn for every transition and returns its cancel func.
	Subscribe(fn func(online bool)) (cancel func())
}

// alwaysOnline is used when no connectivity source is wired.
type alwaysOnline struct{}

func (alwaysOnline) Online() bool                         { return true }
func (alwaysOnline) Subscribe(func(bool)) (cancel func()) { return func() {} }

// Variant is the visual weight of a notification.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Cue is an optional audible cue attached to a notification.
type Cue string

const (
	CueNone  Cue = ""
	CueStart Cue = "start"
	CueStop  Cue = "stop"
	CueError Cue = "error"
)

// Notification is one fire-and-forget user-facing status message.
type Notification struct {
	Title       string
	Description string
	Variant     Variant
	Cue         Cue
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(context.Context, Notification)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(context.Context, Notification)

func (f NotifyFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) {}

// Recorder observes controller activity for metrics.
type Recorder interface {
	SessionOpened()
	Restarted(reason string)
	RetryScheduled(attempt int, delay time.Duration)
	ErrorObserved(kind string)
	Committed(chars int)
	Listening(bool)
	Online(bool)
}

type noopRecorder struct{}

func (noopRecorder) SessionOpened()                    {}
func (noopRecorder) Restarted(string)                  {}
func (noopRecorder) RetryScheduled(int, time.Duration) {}
func (noopRecorder) ErrorObserved(string)              {}
func (noopRecorder) Committed(int)                     {}
func (noopRecorder) Listening(bool)                    {}
func (noopRecorder) Online(bool)                       {}

// ProbeFunc opens and immediately releases the microphone. A nil error means
// access is granted.
type ProbeFunc func(context.Context) error

// Clock schedules delayed callbacks.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
