package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rbright/inkwell/internal/audio"
	"github.com/rbright/inkwell/internal/capture"
	"github.com/rbright/inkwell/internal/config"
	"github.com/rbright/inkwell/internal/indicator"
	"github.com/rbright/inkwell/internal/ipc"
	"github.com/rbright/inkwell/internal/metrics"
	"github.com/rbright/inkwell/internal/network"
	"github.com/rbright/inkwell/internal/observability"
	"github.com/rbright/inkwell/internal/output"
)

const (
	acquireProbeTimeout = 180 * time.Millisecond
	acquireRetries      = 8
	shutdownTimeout     = 5 * time.Second
)

// listen becomes the owner for this user session and serves IPC until ctx
// ends or a quit command arrives. When another owner already holds the
// socket, contended is forwarded to it instead; an empty contended fails.
func (r Runner) listen(ctx context.Context, cfg config.Config, logger *slog.Logger, startNow bool, contended ipc.Command) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		ProbeTimeout: acquireProbeTimeout,
		Retries:      acquireRetries,
	})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) && contended != "" {
			return r.forward(ctx, socketPath, contended)
		}
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	ownerCtx, quit := context.WithCancel(ctx)
	defer quit()

	id := uuid.NewString()
	logger = logger.With("controller_id", id)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	manual, stopWatch := connectivitySource(ownerCtx, cfg, logger)
	defer stopWatch()

	consumers := []output.Consumer{}
	var doc *output.Document
	if path := strings.TrimSpace(cfg.Output.Document); path != "" {
		doc, err = output.OpenDocument(path, cfg.Output.Separator)
		if err != nil {
			return err
		}
		consumers = append(consumers, doc)
	}
	publisher := output.NewPublisher(cfg.Output.Kafka, id, logger, recorder)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close transcript publisher", "error", err.Error())
		}
	}()
	consumers = append(consumers, publisher)
	fanout := output.NewFanout(logger, consumers...)

	pref := audioPreference(cfg.Audio)
	ctrl := capture.New(capture.Options{
		ID:           id,
		Provider:     BuildProvider(cfg, logger),
		Recognition:  recognitionConfig(cfg.Recognition),
		Connectivity: manual,
		Probe: func(ctx context.Context) error {
			return audio.ProbeMicrophone(ctx, pref)
		},
		ProbeOnRun:         true,
		Notifier:           indicator.New(cfg.Indicator, logger),
		Recorder:           recorder,
		OnTranscriptChange: fanout.OnTranscriptChange,
		MaxRetries:         cfg.Retry.MaxRetries,
		RetryInterval:      time.Duration(cfg.Retry.IntervalMS) * time.Millisecond,
		RestartDelay:       time.Duration(cfg.Retry.RestartDelayMS) * time.Millisecond,
		Logger:             logger,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ownerCtx) }()

	handler := &commandHandler{ctrl: ctrl, network: manual, quit: quit, logger: logger}
	if doc != nil {
		handler.rebase = doc
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- ipc.Serve(ownerCtx, listener, handler) }()

	if addr := strings.TrimSpace(cfg.Metrics.Listen); addr != "" {
		server := observability.NewServer(addr, registry, ctrl.Snapshot, logger)
		go func() {
			if err := server.ListenAndServe(ownerCtx); err != nil {
				logger.Error("observability server failed", "addr", addr, "error", err.Error())
			}
		}()
	}

	logger.Info("listener started", "socket", socketPath, "provider", cfg.Recognition.Backend)
	if startNow {
		ctrl.StartListening()
	}

	var serveFailure error
	select {
	case <-ctrl.Done():
		serveFailure = <-serveErr
	case serveFailure = <-serveErr:
		quit()
	}
	if err := <-runErr; err != nil {
		return err
	}

	final := ctrl.Snapshot()
	logger.Info("listener stopped",
		"phase", final.Phase,
		"transcript_length", len(final.Transcript),
		"error", string(final.Error),
	)

	transcript := strings.TrimSpace(final.Transcript)
	if cfg.Output.Clipboard && transcript != "" {
		copyCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := (output.Clipboard{}).Copy(copyCtx, transcript); err != nil {
			logger.Warn("copy transcript to clipboard", "error", err.Error())
		}
		cancel()
	}
	if transcript != "" {
		fmt.Fprintln(r.Stdout, transcript)
	}

	if serveFailure != nil {
		return fmt.Errorf("ipc server failed: %w", serveFailure)
	}
	return nil
}

// connectivitySource returns the manual source the controller and IPC share.
// With the grpc watch it is driven by the recognition endpoint's channel state.
func connectivitySource(ctx context.Context, cfg config.Config, logger *slog.Logger) (*network.Manual, func()) {
	if cfg.Network.Watch != config.WatchGRPC {
		return network.NewManual(true), func() {}
	}

	endpoint := cfg.WatchEndpoint()
	conn, err := network.Dial(endpoint, false)
	if err != nil {
		logger.Warn("connectivity watch unavailable", "endpoint", endpoint, "error", err.Error())
		return network.NewManual(true), func() {}
	}
	watcher := network.Watch(ctx, conn, logger)
	return watcher.Manual, func() {
		_ = conn.Close()
		<-watcher.Done()
	}
}
