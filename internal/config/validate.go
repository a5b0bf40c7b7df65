package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch strings.ToLower(strings.TrimSpace(cfg.Recognition.Backend)) {
	case BackendGoogle:
		if strings.TrimSpace(cfg.Recognition.Google.Endpoint) == "" {
			return nil, fmt.Errorf("recognition.google.endpoint must not be empty")
		}
	case BackendDeepgram:
		if _, err := url.ParseRequestURI(cfg.Recognition.Deepgram.Endpoint); err != nil {
			return nil, fmt.Errorf("recognition.deepgram.endpoint must be a URL: %w", err)
		}
		if strings.TrimSpace(cfg.Recognition.Deepgram.APIKeyEnv) == "" {
			return nil, fmt.Errorf("recognition.deepgram.api_key_env must not be empty")
		}
	case "":
		return nil, fmt.Errorf("recognition.backend must not be empty")
	default:
		return nil, fmt.Errorf("recognition.backend must be one of: google, deepgram")
	}
	if strings.TrimSpace(cfg.Recognition.Language) == "" {
		return nil, fmt.Errorf("recognition.language must not be empty")
	}

	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("retry.max_retries must be >= 0")
	}
	if cfg.Retry.MaxRetries == 0 {
		warnings = append(warnings, Warning{Message: "retry.max_retries=0; network errors fail the session immediately"})
	}
	if cfg.Retry.IntervalMS <= 0 {
		return nil, fmt.Errorf("retry.interval_ms must be > 0")
	}
	if cfg.Retry.RestartDelayMS < 0 {
		return nil, fmt.Errorf("retry.restart_delay_ms must be >= 0")
	}

	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Network.Watch)) {
	case WatchManual:
	case WatchGRPC:
		if cfg.WatchEndpoint() == "" {
			return nil, fmt.Errorf("network.endpoint must be set when network.watch=grpc")
		}
	default:
		return nil, fmt.Errorf("network.watch must be one of: grpc, manual")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend)) {
	case IndicatorHypr, IndicatorDesktop, IndicatorNone:
	case "":
		return nil, fmt.Errorf("indicator.backend must not be empty")
	default:
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop, none")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if !cfg.Indicator.Enable && cfg.Indicator.SoundEnable {
		warnings = append(warnings, Warning{Message: "indicator.sound_enable has no effect while indicator.enable=false"})
	}

	if cfg.Output.Kafka.Enabled {
		if len(cfg.Output.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("output.kafka.brokers must not be empty when output.kafka.enabled=true")
		}
		if strings.TrimSpace(cfg.Output.Kafka.Topic) == "" {
			return nil, fmt.Errorf("output.kafka.topic must not be empty when output.kafka.enabled=true")
		}
	}

	if listen := strings.TrimSpace(cfg.Metrics.Listen); listen != "" {
		if _, _, err := net.SplitHostPort(listen); err != nil {
			return nil, fmt.Errorf("metrics.listen must be host:port: %w", err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		return nil, fmt.Errorf("logging.max_size_mb must be > 0")
	}
	if cfg.Logging.MaxBackups < 0 || cfg.Logging.MaxAgeDays < 0 {
		return nil, fmt.Errorf("logging.max_backups and logging.max_age_days must be >= 0")
	}

	return warnings, nil
}

// WatchEndpoint is the gRPC target probed for connectivity. It defaults to
// the Google endpoint, or the Deepgram host on port 443.
func (c Config) WatchEndpoint() string {
	if endpoint := strings.TrimSpace(c.Network.Endpoint); endpoint != "" {
		return endpoint
	}
	switch strings.ToLower(strings.TrimSpace(c.Recognition.Backend)) {
	case BackendGoogle:
		return strings.TrimSpace(c.Recognition.Google.Endpoint)
	case BackendDeepgram:
		parsed, err := url.Parse(c.Recognition.Deepgram.Endpoint)
		if err != nil || parsed.Hostname() == "" {
			return ""
		}
		return net.JoinHostPort(parsed.Hostname(), "443")
	}
	return ""
}
