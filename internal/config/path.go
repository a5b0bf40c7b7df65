package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// EnvPath overrides the config location when --config is not given.
const EnvPath = "INKWELL_CONFIG"

// ResolvePath picks the config file: explicit flag, then INKWELL_CONFIG,
// then $XDG_CONFIG_HOME/inkwell/config.yaml, then ~/.config/inkwell/config.yaml.
func ResolvePath(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(EnvPath)} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed, nil
		}
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "inkwell", "config.yaml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", "inkwell", "config.yaml"), nil
}
