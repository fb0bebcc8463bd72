// Package config reads and writes the backend settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Keys of the settings file.
const (
	KeyAPIKey      = "MY_API_KEY"
	KeyBaseURL     = "MY_API_URL"
	KeyModel       = "MY_MODEL_NAME"
	KeyTemperature = "MY_TEMPERATURE"
	KeyMaxTokens   = "MY_MAX_TOKENS"
	KeyStream      = "MY_STREAM"
)

const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// Config holds the backend credentials and generation parameters.
type Config struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Stream      bool    `json:"stream"`
}

// Default returns a config with no credentials and default parameters.
func Default() Config {
	return Config{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Stream:      true,
	}
}

// Configured reports whether the backend can be reached with c.
func (c Config) Configured() bool {
	return c.APIKey != "" && c.BaseURL != ""
}

// ValidationError lists the invalid fields of a config.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Fields, ", ")
}

// Validate checks the fields required to save c.
func (c Config) Validate() error {
	var fields []string
	if strings.TrimSpace(c.APIKey) == "" {
		fields = append(fields, "api_key is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		fields = append(fields, "base_url is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		fields = append(fields, "temperature must be between 0 and 2")
	}
	if c.MaxTokens <= 0 {
		fields = append(fields, "max_tokens must be positive")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Store is a flat KEY=value settings file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file. A missing file yields Default().
func (s *Store) Load() (Config, error) {
	cfg := Default()

	env, err := godotenv.Read(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", s.path, err)
	}

	cfg.APIKey = strings.TrimSpace(env[KeyAPIKey])
	cfg.BaseURL = strings.TrimSpace(env[KeyBaseURL])
	if v := strings.TrimSpace(env[KeyModel]); v != "" {
		cfg.Model = v
	}
	cfg.Temperature = parseFloatOrDefault(env[KeyTemperature], DefaultTemperature)
	cfg.MaxTokens = parseIntOrDefault(env[KeyMaxTokens], DefaultMaxTokens)
	cfg.Stream = parseBoolOrDefault(env[KeyStream], true)

	return cfg, nil
}

// Save validates cfg and rewrites the settings file.
func (s *Store) Save(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	env := map[string]string{
		KeyAPIKey:      strings.TrimSpace(cfg.APIKey),
		KeyBaseURL:     strings.TrimSpace(cfg.BaseURL),
		KeyModel:       cfg.Model,
		KeyTemperature: strconv.FormatFloat(cfg.Temperature, 'f', -1, 64),
		KeyMaxTokens:   strconv.Itoa(cfg.MaxTokens),
		KeyStream:      strconv.FormatBool(cfg.Stream),
	}
	if err := godotenv.Write(env, s.path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", s.path, err)
	}
	return nil
}

func parseFloatOrDefault(s string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return v
}

func parseIntOrDefault(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

func parseBoolOrDefault(s string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}
