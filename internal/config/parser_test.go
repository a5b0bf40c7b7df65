package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOverlaysDefaults(t *testing.T) {
	input := `
# partial config
audio:
  input: Elgato
indicator:
  backend: desktop
output:
  kafka:
    enabled: true
    brokers: [localhost:9092, localhost:9093]
metrics:
  listen: 127.0.0.1:9464
`

	cfg, warnings, err := Parse(input, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, "Elgato", cfg.Audio.Input)
	require.Equal(t, "default", cfg.Audio.Fallback)
	require.Equal(t, 16000, cfg.Audio.SampleRate)
	require.Equal(t, IndicatorDesktop, cfg.Indicator.Backend)
	require.True(t, cfg.Indicator.SoundEnable)
	require.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.Output.Kafka.Brokers)
	require.Equal(t, "inkwell.transcripts", cfg.Output.Kafka.Topic)
	require.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)
}

func TestParseEmptyContentReturnsBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n# only a comment\n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseUnknownKeyFails(t *testing.T) {
	_, _, err := Parse("recognition:\n  backnd: google\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "backnd")
}

func TestParseTypeMismatchReportsLine(t *testing.T) {
	_, _, err := Parse("retry:\n  max_retries: many\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
}

func TestParseRejectsMultipleDocuments(t *testing.T) {
	_, _, err := Parse("audio:\n  input: a\n---\naudio:\n  input: b\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "single YAML document")
}

func TestParseRunsValidation(t *testing.T) {
	_, _, err := Parse("recognition:\n  backend: whisper\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "recognition.backend")
}
