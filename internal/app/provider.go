package app

import (
	"context"
	"log/slog"

	"github.com/rbright/inkwell/internal/audio"
	"github.com/rbright/inkwell/internal/config"
	"github.com/rbright/inkwell/internal/pipeline"
	"github.com/rbright/inkwell/internal/recognition"
	"github.com/rbright/inkwell/internal/recognition/deepgram"
	"github.com/rbright/inkwell/internal/recognition/google"
)

// BuildProvider selects the recognition backend named by cfg.
func BuildProvider(cfg config.Config, logger *slog.Logger) recognition.Provider {
	open := sourceOpener(cfg.Audio, cfg.Debug.AudioDump, logger)
	rec := cfg.Recognition

	if rec.Backend == config.BackendDeepgram {
		return deepgram.NewProvider(deepgram.Options{
			Endpoint:    rec.Deepgram.Endpoint,
			Model:       rec.Deepgram.Model,
			KeyEnv:      rec.Deepgram.APIKeyEnv,
			Punctuation: rec.Punctuation,
			Open:        open,
			Debug:       cfg.Debug.AudioDump,
			Logger:      logger,
		})
	}
	return google.NewProvider(google.Options{
		Endpoint:        rec.Google.Endpoint,
		CredentialsFile: rec.Google.CredentialsFile,
		Model:           rec.Google.Model,
		Punctuation:     rec.Punctuation,
		Open:            open,
		Debug:           cfg.Debug.AudioDump,
		Logger:          logger,
	})
}

func recognitionConfig(cfg config.RecognitionConfig) recognition.Config {
	return recognition.Config{
		Continuous:     cfg.Continuous,
		InterimResults: cfg.InterimResults,
		Language:       cfg.Language,
	}
}

func audioPreference(cfg config.AudioConfig) audio.Preference {
	return audio.Preference{Input: cfg.Input, Fallback: cfg.Fallback}
}

// sourceOpener resolves the input source per session so device changes
// between sessions are picked up.
func sourceOpener(cfg config.AudioConfig, retain bool, logger *slog.Logger) pipeline.OpenSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pref := audioPreference(cfg)
	return func(ctx context.Context) (pipeline.Source, error) {
		resolved, err := audio.Resolve(ctx, pref)
		if err != nil {
			return nil, err
		}
		if resolved.FellBack() {
			logger.Warn("audio input fallback", "source", resolved.Source.ID, "reason", resolved.Warning)
		}
		stream, err := audio.Open(ctx, resolved.Source, audio.StreamOptions{
			SampleRate: cfg.SampleRate,
			Retain:     retain,
		})
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}
