// Package deepgram streams capture audio to the Deepgram live transcription API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/rbright/inkwell/internal/pipeline"
	"github.com/rbright/inkwell/internal/recognition"
)

const (
	Name            = "deepgram"
	DefaultEndpoint = "wss://api.deepgram.com/v1/listen"
	DefaultModel    = "nova-3"
	DefaultKeyEnv   = "DEEPGRAM_API_KEY"
	defaultLanguage = "en-US"
)

var closeStream = []byte(`{"type":"CloseStream"}`)

// Options configures the provider.
type Options struct {
	Endpoint string
	Model    string
	// KeyEnv names the environment variable holding the API key.
	KeyEnv      string
	Punctuation bool
	Open        pipeline.OpenSource
	Debug       bool
	Logger      *slog.Logger
}

// Provider creates Deepgram streaming engines.
type Provider struct {
	opts   Options
	logger *slog.Logger
}

func NewProvider(opts Options) *Provider {
	if strings.TrimSpace(opts.Endpoint) == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = DefaultModel
	}
	if strings.TrimSpace(opts.KeyEnv) == "" {
		opts.KeyEnv = DefaultKeyEnv
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{opts: opts, logger: logger.With("provider", Name)}
}

func (p *Provider) Name() string { return Name }

// Supported reports whether an audio source is wired and an API key is set.
func (p *Provider) Supported() bool {
	return p.opts.Open != nil && p.apiKey() != ""
}

func (p *Provider) NewEngine(cfg recognition.Config, sink recognition.Sink) (recognition.Engine, error) {
	if p.opts.Open == nil {
		return nil, errors.New("deepgram provider has no audio source")
	}
	return &engine{provider: p, cfg: cfg, life: recognition.NewLifecycle(sink)}, nil
}

func (p *Provider) apiKey() string {
	return strings.TrimSpace(os.Getenv(p.opts.KeyEnv))
}

func (p *Provider) listenURL(cfg recognition.Config, sampleRate int) (string, error) {
	u, err := url.Parse(p.opts.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse deepgram endpoint: %w", err)
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}

	q := u.Query()
	q.Set("model", p.opts.Model)
	q.Set("language", language)
	q.Set("encoding", "linear16")
	q.Set("channels", "1")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("punctuate", strconv.FormatBool(p.opts.Punctuation))
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// message is the subset of Deepgram server messages the engine reads.
type message struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float32 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func parseMessage(data []byte) (message, bool) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return message{}, false
	}
	return msg, msg.Type == "Results"
}

func (m message) segment() (recognition.Segment, bool) {
	if len(m.Channel.Alternatives) == 0 {
		return recognition.Segment{}, false
	}
	alt := m.Channel.Alternatives[0]
	return recognition.Segment{Transcript: alt.Transcript, Final: m.IsFinal, Confidence: alt.Confidence}, true
}

type engine struct {
	provider *Provider
	cfg      recognition.Config
	life     *recognition.Lifecycle

	mu       sync.Mutex
	started  bool
	stopping bool
	source   pipeline.Source
	cancel   context.CancelFunc
}

func (e *engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopping {
		return recognition.ErrClosed
	}
	e.started = true

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.run(runCtx)
	return nil
}

func (e *engine) Stop() {
	e.mu.Lock()
	e.stopping = true
	source := e.source
	e.mu.Unlock()

	if source != nil {
		_ = source.Stop()
	}
}

func (e *engine) Abort() {
	e.life.Silence()

	e.mu.Lock()
	e.stopping = true
	source := e.source
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if source != nil {
		_ = source.Stop()
	}
}

func (e *engine) attach(source pipeline.Source) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopping {
		return false
	}
	e.source = source
	return true
}

func (e *engine) isStopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopping
}

func (e *engine) run(ctx context.Context) {
	defer e.cancel()
	logger := e.provider.logger

	source, err := e.provider.opts.Open(ctx)
	if err != nil {
		logger.Warn("open audio source failed", "error", err.Error())
		e.life.Fail(recognition.ErrorAudioCapture, err.Error())
		return
	}
	if !e.attach(source) {
		_ = source.Stop()
		e.life.End()
		return
	}
	if e.provider.opts.Debug {
		defer e.dumpAudio(source)
	}

	target, err := e.provider.listenURL(e.cfg, source.SampleRate())
	if err != nil {
		_ = source.Stop()
		e.life.Fail(recognition.ErrorStart, err.Error())
		return
	}
	header := http.Header{}
	header.Set("Authorization", "Token "+e.provider.apiKey())

	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		_ = source.Stop()
		code := dialErrorCode(resp)
		logger.Warn("deepgram dial failed", "code", string(code), "error", err.Error())
		e.life.Fail(code, "")
		return
	}
	defer conn.CloseNow()
	e.life.Start()

	pump := pipeline.StartPump(source.Chunks(), pipeline.SenderFunc(func(chunk []byte) error {
		return conn.Write(ctx, websocket.MessageBinary, chunk)
	}), func() { _ = source.Stop() })
	go func() {
		if err := pump.Wait(); err != nil {
			logger.Debug("audio pump stopped", "error", err.Error())
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, closeStream); err != nil {
			logger.Debug("send close stream failed", "error", err.Error())
		}
	}()

	var tracker recognition.Tracker
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			_ = source.Stop()
			e.closed(ctx, err, &tracker)
			return
		}
		msg, ok := parseMessage(data)
		if !ok {
			continue
		}
		if msg.SpeechFinal && !e.cfg.Continuous {
			_ = source.Stop()
		}
		if part, ok := msg.segment(); ok {
			e.life.Result(tracker.Update([]recognition.Segment{part}))
		}
	}
}

// closed reports the end of the read loop.
func (e *engine) closed(ctx context.Context, err error, tracker *recognition.Tracker) {
	if ctx.Err() != nil {
		e.life.Fail(recognition.ErrorAborted, "")
		return
	}
	code := closeErrorCode(websocket.CloseStatus(err))
	if code != "" {
		e.provider.logger.Warn("deepgram stream failed", "code", string(code), "error", err.Error())
		e.life.Fail(code, "")
		return
	}
	if e.isStopping() || tracker.Finals() > 0 {
		e.life.End()
		return
	}
	e.life.Fail(recognition.ErrorNoSpeech, "")
}

func (e *engine) dumpAudio(source pipeline.Source) {
	path, err := pipeline.DumpAudio(source.RawPCM(), source.SampleRate())
	if err != nil {
		e.provider.logger.Warn("unable to write debug audio dump", "error", err.Error())
		return
	}
	if path != "" {
		e.provider.logger.Debug("debug audio dump written", "path", path)
	}
}

func dialErrorCode(resp *http.Response) recognition.ErrorCode {
	if resp == nil {
		return recognition.ErrorNetwork
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired, http.StatusTooManyRequests:
		return recognition.ErrorServiceNotAllowed
	case http.StatusBadRequest:
		return recognition.ErrorLanguageNotAllowed
	}
	if resp.StatusCode >= 500 {
		return recognition.ErrorNetwork
	}
	return recognition.ErrorUnknown
}

// closeErrorCode maps a close status to an error code. The empty code means
// a normal close.
func closeErrorCode(status websocket.StatusCode) recognition.ErrorCode {
	switch status {
	case websocket.StatusNormalClosure:
		return ""
	case websocket.StatusPolicyViolation:
		return recognition.ErrorServiceNotAllowed
	case websocket.StatusInvalidFramePayloadData, websocket.StatusUnsupportedData:
		return recognition.ErrorUnknown
	default:
		// Includes -1: the connection dropped without a close frame.
		return recognition.ErrorNetwork
	}
}
