// Package config resolves, parses, validates, and defaults inkwell configuration.
package config

// Config is the fully materialized runtime configuration used by inkwell.
type Config struct {
	Recognition RecognitionConfig `yaml:"recognition"`
	Retry       RetryConfig       `yaml:"retry"`
	Audio       AudioConfig       `yaml:"audio"`
	Network     NetworkConfig     `yaml:"network"`
	Indicator   IndicatorConfig   `yaml:"indicator"`
	Output      OutputConfig      `yaml:"output"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
	Debug       DebugConfig       `yaml:"debug"`
}

// RecognitionConfig selects the engine backend and its request options.
type RecognitionConfig struct {
	Backend        string         `yaml:"backend"`
	Language       string         `yaml:"language"`
	Continuous     bool           `yaml:"continuous"`
	InterimResults bool           `yaml:"interim_results"`
	Punctuation    bool           `yaml:"punctuation"`
	Google         GoogleConfig   `yaml:"google"`
	Deepgram       DeepgramConfig `yaml:"deepgram"`
}

// GoogleConfig configures the Google Cloud Speech backend.
type GoogleConfig struct {
	Endpoint        string `yaml:"endpoint"`
	CredentialsFile string `yaml:"credentials_file"`
	Model           string `yaml:"model"`
}

// DeepgramConfig configures the Deepgram live backend.
type DeepgramConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// RetryConfig controls network retry backoff and restart pacing.
type RetryConfig struct {
	MaxRetries     int `yaml:"max_retries"`
	IntervalMS     int `yaml:"interval_ms"`
	RestartDelayMS int `yaml:"restart_delay_ms"`
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input      string `yaml:"input"`
	Fallback   string `yaml:"fallback"`
	SampleRate int    `yaml:"sample_rate"`
}

// NetworkConfig selects the connectivity source.
type NetworkConfig struct {
	Watch    string `yaml:"watch"`
	Endpoint string `yaml:"endpoint"`
}

// IndicatorConfig controls visual notification and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool   `yaml:"enable"`
	Backend        string `yaml:"backend"`
	SoundEnable    bool   `yaml:"sound_enable"`
	ErrorTimeoutMS int    `yaml:"error_timeout_ms"`
	AppName        string `yaml:"app_name"`
}

// OutputConfig controls where committed transcript text goes.
type OutputConfig struct {
	Document  string      `yaml:"document"`
	Separator string      `yaml:"separator"`
	Clipboard bool        `yaml:"clipboard"`
	Kafka     KafkaConfig `yaml:"kafka"`
}

// KafkaConfig controls transcript event publishing.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MetricsConfig controls the optional observability HTTP listener.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig controls log level and file rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	AudioDump bool `yaml:"audio_dump"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

const (
	BackendGoogle   = "google"
	BackendDeepgram = "deepgram"

	WatchGRPC   = "grpc"
	WatchManual = "manual"

	IndicatorHypr    = "hypr"
	IndicatorDesktop = "desktop"
	IndicatorNone    = "none"
)
