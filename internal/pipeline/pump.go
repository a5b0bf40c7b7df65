// Package pipeline moves captured audio into recognition streams and writes
// debug artifacts.
package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrNoStream is reported when a pump is started without a source or sender.
var ErrNoStream = errors.New("audio pump has no stream")

// Sender accepts one PCM chunk.
type Sender interface {
	Send(chunk []byte) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func([]byte) error

func (f SenderFunc) Send(chunk []byte) error { return f(chunk) }

// Pump forwards chunks to a Sender until the source closes or a send fails.
type Pump struct {
	done chan struct{}
	once sync.Once
	err  error
}

// StartPump forwards chunks to sender in a new goroutine. abort runs once on
// the first send failure so the producer can stop.
func StartPump(chunks <-chan []byte, sender Sender, abort func()) *Pump {
	p := &Pump{done: make(chan struct{})}
	if chunks == nil || sender == nil {
		p.finish(ErrNoStream)
		return p
	}

	go func() {
		for chunk := range chunks {
			if len(chunk) == 0 {
				continue
			}
			if err := sender.Send(chunk); err != nil {
				if abort != nil {
					abort()
				}
				p.finish(err)
				return
			}
		}
		p.finish(nil)
	}()
	return p
}

func (p *Pump) finish(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed when the pump stops.
func (p *Pump) Done() <-chan struct{} { return p.done }

// Wait blocks until the pump stops and returns the first send error.
func (p *Pump) Wait() error {
	<-p.done
	return p.err
}

// Source is a running PCM capture for one recognition session.
type Source interface {
	Chunks() <-chan []byte
	SampleRate() int
	RawPCM() []byte
	Stop() error
}

// OpenSource starts a capture for one session.
type OpenSource func(ctx context.Context) (Source, error)
