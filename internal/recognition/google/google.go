// Package google streams capture audio to Google Cloud Speech-to-Text.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rbright/inkwell/internal/pipeline"
	"github.com/rbright/inkwell/internal/recognition"
)

const (
	Name            = "google"
	DefaultEndpoint = "speech.googleapis.com:443"
	defaultLanguage = "en-US"
)

// Options configures the provider.
type Options struct {
	Endpoint        string
	CredentialsFile string
	Model           string
	Punctuation     bool
	Open            pipeline.OpenSource
	// ClientOptions are appended after the endpoint and credentials options.
	ClientOptions []option.ClientOption
	// Debug writes every response and the captured audio to the debug directory.
	Debug  bool
	Logger *slog.Logger
}

// Provider creates Google streaming engines.
type Provider struct {
	opts   Options
	logger *slog.Logger
}

func NewProvider(opts Options) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{opts: opts, logger: logger.With("provider", Name)}
}

func (p *Provider) Name() string { return Name }

// Supported reports whether an audio source is wired and credentials can be found.
func (p *Provider) Supported() bool {
	if p.opts.Open == nil {
		return false
	}
	if len(p.opts.ClientOptions) > 0 {
		return true
	}
	return credentialsPath(p.opts.CredentialsFile) != ""
}

func (p *Provider) NewEngine(cfg recognition.Config, sink recognition.Sink) (recognition.Engine, error) {
	if p.opts.Open == nil {
		return nil, errors.New("google provider has no audio source")
	}
	return &engine{provider: p, cfg: cfg, life: recognition.NewLifecycle(sink)}, nil
}

func (p *Provider) clientOptions() []option.ClientOption {
	endpoint := strings.TrimSpace(p.opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	opts := []option.ClientOption{option.WithEndpoint(endpoint)}
	if path := strings.TrimSpace(p.opts.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	return append(opts, p.opts.ClientOptions...)
}

// credentialsPath returns the first readable credentials file: the explicit
// path, $GOOGLE_APPLICATION_CREDENTIALS, then the gcloud default.
func credentialsPath(explicit string) string {
	candidates := []string{strings.TrimSpace(explicit), strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "gcloud", "application_default_credentials.json"))
	}
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
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

// Stop closes the audio source. The server flushes final results before EOF.
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

	var debug *pipeline.ProtoSink
	if e.provider.opts.Debug {
		if file, ferr := pipeline.CreateDebugFile("google", "jsonl"); ferr != nil {
			logger.Warn("unable to create response dump", "error", ferr.Error())
		} else {
			defer file.Close()
			debug = pipeline.NewProtoSink(file)
		}
		defer e.dumpAudio(source)
	}

	client, err := speech.NewClient(ctx, e.provider.clientOptions()...)
	if err != nil {
		_ = source.Stop()
		e.fail(fmt.Errorf("create speech client: %w", err))
		return
	}
	defer client.Close()

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		_ = source.Stop()
		e.fail(fmt.Errorf("open streaming recognize: %w", err))
		return
	}
	if err := stream.Send(e.configRequest(source.SampleRate())); err != nil {
		_ = source.Stop()
		e.fail(fmt.Errorf("send streaming config: %w", err))
		return
	}
	e.life.Start()

	pump := pipeline.StartPump(source.Chunks(), pipeline.SenderFunc(func(chunk []byte) error {
		return stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
		})
	}), func() { _ = source.Stop() })
	go func() {
		if err := pump.Wait(); err != nil {
			logger.Debug("audio pump stopped", "error", err.Error())
		}
		_ = stream.CloseSend()
	}()

	var tracker recognition.Tracker
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			e.finish(&tracker)
			return
		}
		if err != nil {
			_ = source.Stop()
			e.fail(err)
			return
		}
		if debug != nil {
			if derr := debug.Write(resp); derr != nil {
				logger.Debug("response dump failed", "error", derr.Error())
			}
		}
		if rpcErr := resp.GetError(); rpcErr != nil && rpcErr.GetCode() != int32(codes.OK) {
			_ = source.Stop()
			e.fail(status.ErrorProto(rpcErr))
			return
		}
		if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
			_ = source.Stop()
		}
		if parts := segments(resp); len(parts) > 0 {
			e.life.Result(tracker.Update(parts))
		}
	}
}

func (e *engine) configRequest(sampleRate int) *speechpb.StreamingRecognizeRequest {
	language := strings.TrimSpace(e.cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(sampleRate),
					AudioChannelCount:          1,
					LanguageCode:               language,
					Model:                      strings.TrimSpace(e.provider.opts.Model),
					EnableAutomaticPunctuation: e.provider.opts.Punctuation,
				},
				InterimResults:  e.cfg.InterimResults,
				SingleUtterance: !e.cfg.Continuous,
			},
		},
	}
}

// finish ends a stream the server closed cleanly. A stream that ends on its
// own without a final result reports no speech.
func (e *engine) finish(tracker *recognition.Tracker) {
	if e.isStopping() || tracker.Finals() > 0 {
		e.life.End()
		return
	}
	e.life.Fail(recognition.ErrorNoSpeech, "")
}

func (e *engine) fail(err error) {
	code := errorCode(err)
	if code == "" {
		e.life.End()
		return
	}
	e.provider.logger.Warn("speech stream failed", "code", string(code), "error", err.Error())
	e.life.Fail(code, "")
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

func segments(resp *speechpb.StreamingRecognizeResponse) []recognition.Segment {
	results := resp.GetResults()
	parts := make([]recognition.Segment, 0, len(results))
	for _, result := range results {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		parts = append(parts, recognition.Segment{
			Transcript: alternatives[0].GetTranscript(),
			Final:      result.GetIsFinal(),
			Confidence: alternatives[0].GetConfidence(),
		})
	}
	return parts
}

// errorCode maps an RPC failure to an engine error code. The empty code means
// the stream ended normally.
func errorCode(err error) recognition.ErrorCode {
	if errors.Is(err, context.Canceled) {
		return recognition.ErrorAborted
	}
	st, ok := status.FromError(err)
	if !ok {
		return recognition.ErrorNetwork
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return recognition.ErrorNetwork
	case codes.PermissionDenied, codes.Unauthenticated, codes.ResourceExhausted:
		return recognition.ErrorServiceNotAllowed
	case codes.Canceled:
		return recognition.ErrorAborted
	case codes.OutOfRange:
		// Streams are capped in duration; the controller reopens them.
		return ""
	case codes.InvalidArgument:
		if strings.Contains(strings.ToLower(st.Message()), "language") {
			return recognition.ErrorLanguageNotAllowed
		}
		return recognition.ErrorUnknown
	default:
		return recognition.ErrorUnknown
	}
}
