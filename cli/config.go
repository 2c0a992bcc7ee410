package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Config is the persisted global CLI state: which registry to talk to
// and the opaque API token.
type Config struct {
	Registry string `json:"registry,omitempty"`
	Token    string `json:"token,omitempty"`
}

// configPath resolves the config file location: CLAWDHUB_CONFIG_PATH
// wins, otherwise the platform config dir.
func configPath() (string, error) {
	if p := os.Getenv("CLAWDHUB_CONFIG_PATH"); p != "" {
		return p, nil
	}

	return xdg.ConfigFile("clawdhub/config.json")
}

// LoadConfig reads the global config; a missing file is an empty
// config, not an error.
func LoadConfig() (Config, string, error) {
	path, err := configPath()
	if err != nil {
		return Config{}, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, path, nil
		}

		return Config{}, path, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, path, fmt.Errorf("malformed config at %s: %w", path, err)
	}

	return cfg, path, nil
}

// SaveConfig writes the global config with owner-only permissions; it
// holds the API token.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, append(data, '\n'), 0o600)
}
