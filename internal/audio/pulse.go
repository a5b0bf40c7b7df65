// Package audio discovers Pulse input sources and streams PCM from them.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// DefaultSampleRate is the capture rate expected by the recognition backends.
	DefaultSampleRate = 16000
	// DefaultFrame is the duration of one emitted PCM chunk.
	DefaultFrame = 20 * time.Millisecond

	applicationName = "inkwell"
	iconName        = "audio-input-microphone"
	bytesPerSample  = 2
)

// ErrNoSource is returned when no input source can be used.
var ErrNoSource = errors.New("no usable audio input source")

// Source describes one Pulse input source.
type Source struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	State       string `json:"state"`
	Available   bool   `json:"available"`
	Muted       bool   `json:"muted"`
	Default     bool   `json:"default"`
}

// Usable reports whether the source can deliver audio.
func (s Source) Usable() bool {
	return s.Available && !s.Muted
}

// Preference names the configured primary and fallback sources. Empty or
// "default" means the server default source.
type Preference struct {
	Input    string
	Fallback string
}

// Resolved is the source chosen for a Preference.
type Resolved struct {
	Source Source
	// Warning explains a fallback when the primary source was unusable.
	Warning string
}

// FellBack reports whether the resolved source differs from the primary.
func (r Resolved) FellBack() bool {
	return r.Warning != ""
}

func connect() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(applicationName),
		pulse.ClientApplicationIconName(iconName),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListSources returns every Pulse input source with default and availability flags.
func ListSources(_ context.Context) ([]Source, error) {
	client, err := connect()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	def, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	sources := make([]Source, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		sources = append(sources, Source{
			ID:          info.SourceName,
			Description: info.Device,
			State:       sourceStateString(info.State),
			Available:   sourceAvailable(info),
			Muted:       info.Mute,
			Default:     info.SourceName == def.ID(),
		})
	}
	return sources, nil
}

// Resolve picks the source for pref from the live source list.
func Resolve(ctx context.Context, pref Preference) (Resolved, error) {
	sources, err := ListSources(ctx)
	if err != nil {
		return Resolved{}, err
	}
	return resolve(sources, pref)
}

func normalizeTerm(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "default" {
		return ""
	}
	return term
}

func resolve(sources []Source, pref Preference) (Resolved, error) {
	if len(sources) == 0 {
		return Resolved{}, fmt.Errorf("%w: no input sources found", ErrNoSource)
	}

	input := normalizeTerm(pref.Input)
	fallback := normalizeTerm(pref.Fallback)

	find := func(term string) *Source {
		for i := range sources {
			if term == "" && sources[i].Default {
				return &sources[i]
			}
			if term != "" && matches(sources[i], term) {
				return &sources[i]
			}
		}
		return nil
	}

	primary := find(input)
	if primary == nil {
		if input == "" {
			return Resolved{}, fmt.Errorf("%w: default source is unavailable", ErrNoSource)
		}
		return Resolved{}, fmt.Errorf("%w: audio.input %q did not match any source", ErrNoSource, input)
	}
	if primary.Usable() {
		return Resolved{Source: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	alternate := find(fallback)
	if alternate == nil {
		return Resolved{}, fmt.Errorf("%w: input %q is %s and fallback %q was not found", ErrNoSource, primary.ID, reason, pref.Fallback)
	}
	if !alternate.Usable() {
		state := "unavailable"
		if alternate.Muted {
			state = "muted"
		}
		return Resolved{}, fmt.Errorf("%w: input %q is %s and fallback %q is %s", ErrNoSource, primary.ID, reason, alternate.ID, state)
	}

	resolved := Resolved{Source: *alternate}
	if alternate.ID != primary.ID {
		resolved.Warning = fmt.Sprintf("audio.input %q is %s; using %q", primary.ID, reason, alternate.ID)
	}
	return resolved, nil
}

func matches(source Source, term string) bool {
	return strings.Contains(strings.ToLower(source.ID), term) ||
		strings.Contains(strings.ToLower(source.Description), term)
}

// ProbeMicrophone opens the preferred source and releases it immediately.
// A nil error means the microphone can be captured.
func ProbeMicrophone(ctx context.Context, pref Preference) error {
	resolved, err := Resolve(ctx, pref)
	if err != nil {
		return err
	}
	stream, err := Open(ctx, resolved.Source, StreamOptions{})
	if err != nil {
		return err
	}
	return stream.Stop()
}

// StreamOptions configures a record stream.
type StreamOptions struct {
	SampleRate int
	Frame      time.Duration
	// Retain keeps every captured byte for RawPCM.
	Retain bool
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Frame <= 0 {
		o.Frame = DefaultFrame
	}
	return o
}

func (o StreamOptions) chunkBytes() int {
	samples := int(int64(o.SampleRate) * int64(o.Frame) / int64(time.Second))
	if samples < 1 {
		samples = 1
	}
	return samples * bytesPerSample
}

// Stream delivers fixed-size mono s16le chunks from one source.
type Stream struct {
	source     Source
	sampleRate int
	chunkSize  int
	retain     bool

	client *pulse.Client
	record *pulse.RecordStream

	chunks chan []byte
	done   chan struct{}

	mu      sync.Mutex
	partial []byte
	raw     []byte
	stopped bool

	writers sync.WaitGroup
	total   atomic.Int64
}

func newStream(source Source, opts StreamOptions) *Stream {
	opts = opts.withDefaults()
	return &Stream{
		source:     source,
		sampleRate: opts.SampleRate,
		chunkSize:  opts.chunkBytes(),
		retain:     opts.Retain,
		chunks:     make(chan []byte, 128),
		done:       make(chan struct{}),
	}
}

// Open starts recording from source. The stream stops when ctx is done.
func Open(ctx context.Context, source Source, opts StreamOptions) (*Stream, error) {
	client, err := connect()
	if err != nil {
		return nil, err
	}

	pulseSource, err := client.SourceByID(source.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", source.ID, err)
	}

	s := newStream(source, opts)
	s.client = client

	record, err := client.NewRecord(
		pulse.NewWriter(writerFunc(s.write), pulseproto.FormatInt16LE),
		pulse.RecordSource(pulseSource),
		pulse.RecordMono,
		pulse.RecordSampleRate(s.sampleRate),
		pulse.RecordBufferFragmentSize(uint32(s.chunkSize)),
		pulse.RecordMediaName(applicationName+" capture"),
	)
	if err != nil {
		_ = s.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	s.record = record
	record.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.done:
		}
	}()
	return s, nil
}

func (s *Stream) Source() Source { return s.source }

func (s *Stream) SampleRate() int { return s.sampleRate }

// Chunks is closed after Stop.
func (s *Stream) Chunks() <-chan []byte { return s.chunks }

// BytesCaptured reports the bytes accepted from the server.
func (s *Stream) BytesCaptured() int64 { return s.total.Load() }

// RawPCM returns a copy of all retained PCM.
func (s *Stream) RawPCM() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.raw...)
}

// Stop ends recording, flushes the trailing partial chunk and closes Chunks.
// It is safe to call more than once.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.done)
	s.mu.Unlock()

	if s.record != nil {
		s.record.Stop()
		s.record.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
	s.writers.Wait()

	s.mu.Lock()
	tail := s.partial
	s.partial = nil
	s.mu.Unlock()

	if len(tail) > 0 {
		select {
		case s.chunks <- tail:
		default:
		}
	}
	close(s.chunks)
	return nil
}

// write receives raw frames from the record stream and emits whole chunks.
func (s *Stream) write(frame []byte) (int, error) {
	if len(frame) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same lock that Stop uses to flip stopped.
	s.writers.Add(1)
	defer s.writers.Done()

	if s.retain {
		s.raw = append(s.raw, frame...)
	}
	s.partial = append(s.partial, frame...)
	var ready [][]byte
	for len(s.partial) >= s.chunkSize {
		chunk := make([]byte, s.chunkSize)
		copy(chunk, s.partial)
		s.partial = s.partial[s.chunkSize:]
		ready = append(ready, chunk)
	}
	s.mu.Unlock()

	s.total.Add(int64(len(frame)))
	for _, chunk := range ready {
		select {
		case <-s.done:
			return 0, io.EOF
		case s.chunks <- chunk:
		}
	}
	return len(frame), nil
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) { return f(b) }

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable checks the active port. Pulse port availability is
// unknown=0, no=1, yes=2.
func sourceAvailable(info *pulseproto.GetSourceInfoReply) bool {
	if info == nil {
		return false
	}
	for _, port := range info.Ports {
		if port.Name == info.ActivePortName {
			return port.Available != 1
		}
	}
	return true
}
