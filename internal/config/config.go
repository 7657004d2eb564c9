// Package config provides configuration for the comment viewer.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/bryan-buckman/ncv/internal/notion"
)

// Config holds server and CLI configuration.
type Config struct {
	// Listen is the address to listen on (e.g., ":8080").
	Listen string `yaml:"listen"`
	// DBURL is the session database (SQLite path or Postgres URL).
	DBURL string `yaml:"db_url"`
	// BaseURL is the public base URL, used for the OAuth redirect.
	BaseURL string `yaml:"base_url"`

	// NotionClientID and NotionClientSecret enable OAuth sign-in.
	NotionClientID     string `yaml:"notion_client_id"`
	NotionClientSecret string `yaml:"notion_client_secret"`
	// NotionToken is an integration token used by the CLI commands.
	NotionToken   string  `yaml:"notion_token"`
	NotionAPIURL  string  `yaml:"notion_api_url"`
	NotionVersion string  `yaml:"notion_version"`
	NotionRPS     float64 `yaml:"notion_rps"`

	// NotionTimeout bounds each Notion API request.
	NotionTimeout time.Duration `yaml:"notion_timeout"`

	// CookieHashKey signs the session cookie; CookieBlockKey encrypts it.
	// Random keys are generated when unset, so sessions do not survive a
	// restart.
	CookieHashKey  string        `yaml:"cookie_hash_key"`
	CookieBlockKey string        `yaml:"cookie_block_key"`
	SessionTTL     time.Duration `yaml:"session_ttl"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Debug     bool   `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:        ":8080",
		DBURL:         "ncv.db",
		BaseURL:       "http://localhost:8080",
		NotionAPIURL:  notion.DefaultBaseURL,
		NotionVersion: notion.DefaultVersion,
		NotionRPS:     notion.DefaultRequestsPerSecond,
		NotionTimeout: 30 * time.Second,
		SessionTTL:    30 * 24 * time.Hour,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// Load reads the YAML file at path, if any, over the defaults and then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Listen = getEnv("NCV_LISTEN", c.Listen)
	c.DBURL = getEnv("NCV_DB_URL", c.DBURL)
	c.BaseURL = getEnv("NCV_BASE_URL", c.BaseURL)
	c.NotionClientID = getEnv("NCV_NOTION_CLIENT_ID", c.NotionClientID)
	c.NotionClientSecret = getEnv("NCV_NOTION_CLIENT_SECRET", c.NotionClientSecret)
	c.NotionToken = getEnv("NCV_NOTION_TOKEN", c.NotionToken)
	c.NotionAPIURL = getEnv("NCV_NOTION_API_URL", c.NotionAPIURL)
	c.NotionVersion = getEnv("NCV_NOTION_VERSION", c.NotionVersion)
	c.NotionRPS = getEnvFloat("NCV_NOTION_RPS", c.NotionRPS)
	c.NotionTimeout = getEnvDuration("NCV_NOTION_TIMEOUT", c.NotionTimeout)
	c.CookieHashKey = getEnv("NCV_COOKIE_HASH_KEY", c.CookieHashKey)
	c.CookieBlockKey = getEnv("NCV_COOKIE_BLOCK_KEY", c.CookieBlockKey)
	c.SessionTTL = getEnvDuration("NCV_SESSION_TTL", c.SessionTTL)
	c.LogLevel = getEnv("NCV_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("NCV_LOG_FORMAT", c.LogFormat)
	c.Debug = getEnvBool("NCV_DEBUG", c.Debug)
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is empty")
	}
	if c.NotionRPS < 0 {
		return fmt.Errorf("notion_rps must not be negative, got %v", c.NotionRPS)
	}
	if c.NotionTimeout <= 0 {
		return fmt.Errorf("notion_timeout must be positive, got %v", c.NotionTimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %v", c.SessionTTL)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}
	if n := len(c.CookieHashKey); n != 0 && n < 32 {
		return fmt.Errorf("cookie_hash_key must be at least 32 bytes, got %d", n)
	}
	switch len(c.CookieBlockKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("cookie_block_key must be 16, 24 or 32 bytes, got %d", len(c.CookieBlockKey))
	}
	return nil
}

// Level returns the configured log level. Debug forces debug level.
func (c *Config) Level() zerolog.Level {
	if c.Debug {
		return zerolog.DebugLevel
	}
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// OAuthEnabled reports whether Notion sign-in is configured.
func (c *Config) OAuthEnabled() bool {
	return c.NotionClientID != "" && c.NotionClientSecret != ""
}

// RedirectURL is the OAuth callback URL registered with Notion.
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/auth/callback"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
