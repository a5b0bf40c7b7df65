// Package output delivers committed transcript text to its consumers.
package output

import (
	"context"
	"log/slog"
	"time"
)

const consumerTimeout = 2 * time.Second

// Consumer receives the full committed transcript every time it grows.
type Consumer interface {
	Name() string
	Commit(ctx context.Context, committed string) error
}

// Fanout forwards transcript changes to every consumer in order. Consumer
// failures are logged and never stop delivery to the rest.
type Fanout struct {
	consumers []Consumer
	logger    *slog.Logger
}

// NewFanout builds a fan-out over consumers; nil entries are skipped.
func NewFanout(logger *slog.Logger, consumers ...Consumer) *Fanout {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	kept := make([]Consumer, 0, len(consumers))
	for _, c := range consumers {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return &Fanout{consumers: kept, logger: logger}
}

// OnTranscriptChange matches the capture controller callback signature.
func (f *Fanout) OnTranscriptChange(committed string) {
	f.Commit(context.Background(), committed)
}

// Commit delivers committed to each consumer with a bounded timeout.
func (f *Fanout) Commit(ctx context.Context, committed string) {
	for _, c := range f.consumers {
		callCtx, cancel := context.WithTimeout(ctx, consumerTimeout)
		err := c.Commit(callCtx, committed)
		cancel()
		if err != nil {
			f.logger.Error("transcript consumer failed", "consumer", c.Name(), "error", err.Error())
		}
	}
}
