// Package indicator shows capture notifications and plays audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rbright/inkwell/internal/capture"
	"github.com/rbright/inkwell/internal/config"
	"github.com/rbright/inkwell/internal/hypr"
)

const (
	dispatchTimeout  = 400 * time.Millisecond
	defaultTimeoutMS = 3000
	fallbackErrorMS  = 1200
	defaultColor     = "rgb(89b4fa)"
	destructiveColor = "rgb(f38ba8)"
	defaultAppName   = "inkwell"
)

var desktopNotify = func(title string, message string) error {
	return beeep.Notify(title, message, "")
}

// Sink routes capture notifications to the configured backend.
type Sink struct {
	cfg     config.IndicatorConfig
	appName string
	logger  *slog.Logger

	soundMu sync.Mutex
	play    func(ctx context.Context, kind capture.Cue) error
}

// New creates a notification sink from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	appName := strings.TrimSpace(cfg.AppName)
	if appName == "" {
		appName = defaultAppName
	}
	s := &Sink{cfg: cfg, appName: appName, logger: logger}
	s.play = func(ctx context.Context, kind capture.Cue) error {
		return emitCue(ctx, appName, kind)
	}
	return s
}

// Notify displays n and plays its cue. It never blocks past the dispatch timeout.
func (s *Sink) Notify(ctx context.Context, n capture.Notification) {
	s.playCue(n.Cue)
	if !s.cfg.Enable {
		return
	}

	switch strings.ToLower(strings.TrimSpace(s.cfg.Backend)) {
	case config.IndicatorNone:
		return
	case config.IndicatorDesktop:
		s.run(ctx, func(context.Context) error {
			title := n.Title
			if title == "" {
				title = s.appName
			}
			return desktopNotify(title, n.Description)
		})
	default:
		s.run(ctx, func(ctx context.Context) error {
			return hypr.Notify(ctx, s.toast(n))
		})
	}
}

// Dismiss clears visible compositor notifications.
func (s *Sink) Dismiss(ctx context.Context) {
	if !s.cfg.Enable || !strings.EqualFold(strings.TrimSpace(s.cfg.Backend), config.IndicatorHypr) {
		return
	}
	s.run(ctx, hypr.Dismiss)
}

func (s *Sink) toast(n capture.Notification) hypr.Toast {
	text := n.Title
	if n.Description != "" {
		if text != "" {
			text += ": "
		}
		text += n.Description
	}

	if n.Variant == capture.VariantDestructive {
		timeout := s.cfg.ErrorTimeoutMS
		if timeout <= 0 {
			timeout = fallbackErrorMS
		}
		return hypr.Toast{Icon: hypr.IconError, TimeoutMS: timeout, Color: destructiveColor, Text: text}
	}
	return hypr.Toast{Icon: hypr.IconInfo, TimeoutMS: defaultTimeoutMS, Color: defaultColor, Text: text}
}

// run executes a backend operation with a bounded timeout.
func (s *Sink) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		s.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (s *Sink) playCue(kind capture.Cue) {
	if kind == capture.CueNone || !s.cfg.Enable || !s.cfg.SoundEnable {
		return
	}
	go func() {
		s.soundMu.Lock()
		defer s.soundMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		if err := s.play(ctx, kind); err != nil {
			s.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (s *Sink) log(message string, err error) {
	if err == nil {
		return
	}
	s.logger.Debug(message, "error", err.Error())
}
