package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AppName names the config directory and log files
const AppName = "another-i"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig              `json:"server"`
	LLMProviders map[string]ProviderConfig `json:"llm_providers"`
	Data         DataConfig                `json:"data"`
	Log          LogConfig                 `json:"log"`
	Proxy        ProxyConfig               `json:"proxy"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Addr string `json:"addr"`
	// RateLimit is the sustained number of AI requests per second; 0 disables limiting
	RateLimit float64 `json:"rate_limit"`
	Burst     int     `json:"burst"`
	// WaitTimeout bounds ?wait=true sends, in seconds
	WaitTimeout int `json:"wait_timeout"`
}

// ProviderConfig represents LLM provider configuration
type ProviderConfig struct {
	DisplayName string  `json:"display_name,omitempty"`
	BaseURL     string  `json:"base_url"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	// Timeout is the request timeout in seconds
	Timeout int `json:"timeout,omitempty"`
}

// DataConfig represents data storage configuration
type DataConfig struct {
	DBPath string `json:"db_path"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Path  string `json:"path,omitempty"`
	Debug bool   `json:"debug"`
}

// ProxyConfig represents proxy configuration
type ProxyConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// DefaultConfig returns the configuration written on first start
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        "127.0.0.1:8787",
			RateLimit:   2,
			Burst:       5,
			WaitTimeout: 120,
		},
		LLMProviders: map[string]ProviderConfig{
			"openai": {
				DisplayName: "OpenAI",
				BaseURL:     "https://api.openai.com/v1",
				MaxTokens:   2048,
				Temperature: 0.7,
				Timeout:     60,
			},
			"anthropic": {
				DisplayName: "Claude",
				BaseURL:     "https://api.anthropic.com/v1",
				MaxTokens:   4096,
				Temperature: 0.7,
				Timeout:     60,
			},
			"gemini": {
				DisplayName: "Gemini",
				BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
				MaxTokens:   8192,
				Temperature: 0.7,
				Timeout:     60,
			},
		},
		Data: DataConfig{
			DBPath: "./data/another-i.db",
		},
	}
}

// LoadConfig loads configuration from file. Sections missing from the file
// keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Expand paths
	if config.Data.DBPath != "" {
		config.Data.DBPath = expandPath(config.Data.DBPath)
	}
	if config.Log.Path != "" {
		config.Log.Path = expandPath(config.Log.Path)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(configPath string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ and relative paths
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}

	// Expand ~
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	// Make absolute
	absPath, err := filepath.Abs(path)
	if err == nil {
		return absPath
	}

	return path
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		// Fallback to current directory
		return "./config/config.json"
	}

	return filepath.Join(configDir, AppName, "config.json")
}

// EnsureDefaultConfig creates a default config file at configPath if it
// doesn't exist. An empty path means GetConfigPath.
func EnsureDefaultConfig(configPath string) (string, error) {
	if configPath == "" {
		configPath = GetConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	}

	if err := SaveConfig(configPath, DefaultConfig()); err != nil {
		return "", err
	}

	return configPath, nil
}
