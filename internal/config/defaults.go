package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Recognition: RecognitionConfig{
			Backend:        BackendGoogle,
			Language:       "en-US",
			Continuous:     true,
			InterimResults: true,
			Punctuation:    true,
			Google: GoogleConfig{
				Endpoint: "speech.googleapis.com:443",
			},
			Deepgram: DeepgramConfig{
				Endpoint:  "wss://api.deepgram.com/v1/listen",
				Model:     "nova-3",
				APIKeyEnv: "DEEPGRAM_API_KEY",
			},
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			IntervalMS:     1000,
			RestartDelayMS: 300,
		},
		Audio: AudioConfig{
			Input:      "default",
			Fallback:   "default",
			SampleRate: 16000,
		},
		Network: NetworkConfig{
			Watch: WatchGRPC,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        IndicatorHypr,
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
			AppName:        "inkwell",
		},
		Output: OutputConfig{
			Separator: "\n\n",
			Kafka: KafkaConfig{
				Topic: "inkwell.transcripts",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}
