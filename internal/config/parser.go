package config

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes YAML content over base and validates the result.
//
// Unknown keys are rejected. Keys absent from content keep their base value.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg := base
	if strings.TrimSpace(content) != "" {
		decoder := yaml.NewDecoder(bytes.NewReader([]byte(content)))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, nil, err
		}

		var extra yaml.Node
		if err := decoder.Decode(&extra); err == nil {
			return Config{}, nil, errors.New("config must contain a single YAML document")
		}
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}
