// Package config provides application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	SecretKey       string
	LogDB           string
	I18NFile        string
	DownloadURL     string
	LanguageRoutes  map[string]string
	HeroBackgrounds map[string]string
	SessionIdleTTL  time.Duration
	RateLimits      RateLimits
	BasicAuth       BasicAuthConfig
	OpenAI          OpenAIConfig
}

// RateLimits are limit strings such as "10 per minute".
type RateLimits struct {
	App     string
	Predict string
}

// BasicAuthConfig guards path prefixes with a single credential pair.
type BasicAuthConfig struct {
	Username string
	Password string
	Folders  []string
}

// OpenAIConfig configures the assistant backend.
type OpenAIConfig struct {
	APIKey       string
	AssistantID  string
	BaseURL      string
	PollInterval time.Duration
	MaxPolls     int
}

// fileConfig mirrors the optional config file. Environment variables win.
type fileConfig struct {
	App struct {
		DownloadURL     string            `yaml:"download_url"`
		LanguageRoutes  map[string]string `yaml:"language_routes"`
		HeroBackgrounds map[string]string `yaml:"hero_backgrounds"`
		I18NFile        string            `yaml:"i18n_file"`
	} `yaml:"app"`
	Database struct {
		LogPath string `yaml:"log_path"`
	} `yaml:"database"`
	Security struct {
		BasicAuthFolders []string `yaml:"basic_auth_folders"`
	} `yaml:"security"`
	RateLimits struct {
		App     string `yaml:"app"`
		Predict string `yaml:"predict"`
	} `yaml:"rate_limits"`
}

var requiredEnv = []string{
	"OPENAI_API_KEY",
	"ASSISTANT_ID",
	"SECRET_KEY",
	"BASIC_AUTH_USERNAME",
	"BASIC_AUTH_PASSWORD",
}

// Load reads the config file named by CONFIG_FILE (default config.yaml) and
// applies environment overrides.
func Load() (*Config, error) {
	path := getEnv("CONFIG_FILE", "config.yaml")
	file, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("APP_ENV", "production"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		SecretKey:       os.Getenv("SECRET_KEY"),
		LogDB:           getEnv("LOG_DB", orDefault(file.Database.LogPath, "logs.db")),
		I18NFile:        getEnv("I18N_FILE", orDefault(file.App.I18NFile, "i18n.json")),
		DownloadURL:     getEnv("DOWNLOAD_URL", orDefault(file.App.DownloadURL, "/")),
		LanguageRoutes:  getEnvJSONMap("LANG_ROUTES", file.App.LanguageRoutes),
		HeroBackgrounds: getEnvJSONMap("HERO_BACKGROUNDS", file.App.HeroBackgrounds),
		SessionIdleTTL:  getEnvDuration("SESSION_IDLE_TTL", 2*time.Hour),
		RateLimits: RateLimits{
			App:     getEnv("LIMIT_APP", orDefault(file.RateLimits.App, "20 per minute")),
			Predict: getEnv("LIMIT_PREDICT", orDefault(file.RateLimits.Predict, "10 per minute")),
		},
		BasicAuth: BasicAuthConfig{
			Username: os.Getenv("BASIC_AUTH_USERNAME"),
			Password: os.Getenv("BASIC_AUTH_PASSWORD"),
			Folders:  splitFolders(getEnv("BASIC_AUTH_FOLDERS", strings.Join(file.Security.BasicAuthFolders, ","))),
		},
		OpenAI: OpenAIConfig{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			AssistantID:  os.Getenv("ASSISTANT_ID"),
			BaseURL:      getEnv("OPENAI_BASE_URL", ""),
			PollInterval: getEnvDuration("RUN_POLL_INTERVAL", 500*time.Millisecond),
			MaxPolls:     getEnvInt("RUN_MAX_POLLS", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	var missing []string
	for _, key := range requiredEnv {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("environment variables required: %s", strings.Join(missing, ", "))
	}
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.LogDB == "" {
		return errors.New("LOG_DB cannot be empty")
	}
	if c.OpenAI.MaxPolls <= 0 {
		return errors.New("RUN_MAX_POLLS must be > 0")
	}
	if c.OpenAI.PollInterval < 0 {
		return errors.New("RUN_POLL_INTERVAL cannot be negative")
	}
	if c.SessionIdleTTL <= 0 {
		return errors.New("SESSION_IDLE_TTL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("Config file not found, using environment only", "path", path)
		return fc, nil
	}
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("Invalid duration, using default", "key", key, "value", value)
		return fallback
	}
	return d
}

// getEnvJSONMap merges a JSON object from the environment over defaults.
// A malformed override is logged and ignored.
func getEnvJSONMap(key string, defaults map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return merged
	}
	var override map[string]string
	if err := json.Unmarshal([]byte(raw), &override); err != nil {
		slog.Error("Invalid JSON override", "key", key, "error", err)
		return merged
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

func splitFolders(raw string) []string {
	var out []string
	for _, segment := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(segment); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
