// Package config loads and saves the user's persistent preferences.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the user's persistent configuration preferences. Environment
// variables take precedence over these values at startup.
type Config struct {
	Provider string `json:"provider,omitempty"` // openai, anthropic, deepseek, groq, ollama
	APIKey   string `json:"api_key,omitempty"`  // The API key for the selected provider
	Model    string `json:"model,omitempty"`    // Default model name
	BaseURL  string `json:"base_url,omitempty"` // Optional override for API base URL

	MaxRounds          int `json:"max_rounds,omitempty"`           // Backend rounds per turn, 0 = unlimited
	ToolTimeoutSeconds int `json:"tool_timeout_seconds,omitempty"` // Per-tool deadline, 0 = none
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a manager rooted at the user's config directory.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return NewManagerAt(filepath.Join(configDir, "drover")), nil
}

// NewManagerAt creates a manager rooted at an explicit directory.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// ConfigPath returns the absolute path to the config.json file.
func (m *Manager) ConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// DataPath returns the path of a data file stored alongside the config, such
// as the session database.
func (m *Manager) DataPath(name string) string {
	return filepath.Join(m.configDir, name)
}

// Load reads the configuration from disk.
// If the file does not exist, it returns an empty Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.ConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold an API key, so keep it owner-only.
	if err := os.WriteFile(m.ConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.ConfigPath())
	return !os.IsNotExist(err)
}
