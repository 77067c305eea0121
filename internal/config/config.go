// Package config loads server configuration from JSONC files, a .env file,
// and environment variables, in that priority order (environment wins).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// ProviderKind selects the generation backend.
const (
	ProviderHTTP     = "http"
	ProviderScripted = "scripted"
)

// Config holds server configuration.
type Config struct {
	Port     int    `json:"port"`
	Hostname string `json:"hostname"`
	DataDir  string `json:"dataDir"`
	// SampleDir, when set, points at YAML fixture files loaded into an empty
	// store at startup.
	SampleDir    string `json:"sampleDir"`
	WatchSamples bool   `json:"watchSamples"`
	LogLevel     string `json:"logLevel"`
	LogPretty    bool   `json:"logPretty"`

	Provider ProviderConfig `json:"provider"`
}

// ProviderConfig configures the generation provider.
type ProviderConfig struct {
	Kind           string `json:"kind"`
	BaseURL        string `json:"baseURL"`
	APIKey         string `json:"apiKey"`
	Model          string `json:"model"`
	MaxAttempts    int    `json:"maxAttempts"`
	ConnectTimeout int    `json:"connectTimeoutSeconds"`
	ReadTimeout    int    `json:"readTimeoutSeconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:     8080,
		Hostname: "127.0.0.1",
		DataDir:  defaultDataDir(),
		LogLevel: "INFO",
		Provider: ProviderConfig{
			Kind:  ProviderScripted,
			Model: "gpt-4o-mini",
		},
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "inkwell")
	}
	return "data"
}

// Load builds the effective configuration for a working directory.
func Load(directory string) (*Config, error) {
	// A .env next to the working directory feeds the environment overrides.
	_ = godotenv.Load(filepath.Join(directory, ".env"))

	cfg := Default()

	candidates := []string{
		filepath.Join(directory, "inkwell.json"),
		filepath.Join(directory, "inkwell.jsonc"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "inkwell", "inkwell.json"),
			filepath.Join(home, ".config", "inkwell", "inkwell.jsonc"),
		)
	}
	if path := os.Getenv("INKWELL_CONFIG"); path != "" {
		candidates = append(candidates, path)
	}

	for _, path := range candidates {
		if err := loadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// loadFile merges one config file into cfg. Missing files are skipped.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Strip JSONC comments and trailing commas.
	data = jsonc.ToJSON(data)

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("INKWELL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("INKWELL_HOSTNAME"); v != "" {
		cfg.Hostname = v
	}
	if v := os.Getenv("INKWELL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("INKWELL_SAMPLE_DIR"); v != "" {
		cfg.SampleDir = v
	}
	if v := os.Getenv("INKWELL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("INKWELL_PROVIDER"); v != "" {
		cfg.Provider.Kind = v
	}
	if v := os.Getenv("INKWELL_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	} else if v := os.Getenv("OPENAI_BASE_URL"); v != "" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("INKWELL_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("INKWELL_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
}
