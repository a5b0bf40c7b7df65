package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Channel is the subset of *grpc.ClientConn the watcher needs.
type Channel interface {
	GetState() connectivity.State
	WaitForStateChange(ctx context.Context, source connectivity.State) bool
	Connect()
}

// Dial creates a lazily connecting channel to endpoint. Plaintext is used for
// local emulators.
func Dial(endpoint string, plaintext bool) (*grpc.ClientConn, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("grpc endpoint is empty")
	}
	creds := credentials.NewTLS(nil)
	if plaintext {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial grpc %q: %w", endpoint, err)
	}
	return conn, nil
}

// WaitReady blocks until ch is Ready, shuts down, or ctx ends.
func WaitReady(ctx context.Context, ch Channel) error {
	ch.Connect()
	for {
		state := ch.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc channel shut down")
		}
		if !ch.WaitForStateChange(ctx, state) {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("grpc channel not ready (%s): %w", state, err)
			}
			return fmt.Errorf("grpc channel not ready (%s)", state)
		}
	}
}

// Watcher derives connectivity from a gRPC channel's state transitions.
type Watcher struct {
	*Manual
	ch     Channel
	logger *slog.Logger
	done   chan struct{}
}

// Watch starts following ch until ctx ends. The host is assumed online until
// the channel reports a transient failure.
func Watch(ctx context.Context, ch Channel, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Watcher{Manual: NewManual(true), ch: ch, logger: logger, done: make(chan struct{})}
	go w.run(ctx)
	return w
}

// Done is closed when the watcher stops.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	w.ch.Connect()
	for {
		state := w.ch.GetState()
		if online, known := stateOnline(state); known && w.Set(online) {
			w.logger.Info("grpc connectivity changed", "state", state.String(), "online", online)
		}
		if state == connectivity.Shutdown {
			return
		}
		if state == connectivity.Idle {
			w.ch.Connect()
		}
		if !w.ch.WaitForStateChange(ctx, state) {
			return
		}
	}
}

// stateOnline maps a channel state to online status. Idle and Connecting
// carry no signal.
func stateOnline(state connectivity.State) (online bool, known bool) {
	switch state {
	case connectivity.Ready:
		return true, true
	case connectivity.TransientFailure, connectivity.Shutdown:
		return false, true
	default:
		return false, false
	}
}
