package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
	"github.com/kvantora/comment-bridge/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	Bot       BotConfig       `koanf:"bot"`
	Storage   StorageConfig   `koanf:"storage"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Relay     RelayConfig     `koanf:"relay"`
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LogConfig       `koanf:"log"`

	// Message texts (loaded from YAML)
	TextsPath string       `koanf:"texts_path"`
	Texts     *TextsConfig `koanf:"-"`
}

// BotConfig contains Telegram configuration
type BotConfig struct {
	Token           string  `koanf:"token"`
	Username        string  `koanf:"username"`
	AdminChatID     int64   `koanf:"admin_chat_id"`
	AllowedChannels []int64 `koanf:"allowed_channels"`
	PollTimeoutSec  int     `koanf:"poll_timeout_sec"`
	SendRatePerSec  float64 `koanf:"send_rate_per_sec"`
	SendBurst       int     `koanf:"send_burst"`
}

// StorageConfig contains the database location: a postgres:// URL or a sqlite file path
type StorageConfig struct {
	DatabaseURL string `koanf:"database_url"`
}

// RateLimitConfig contains the comment admission policy
type RateLimitConfig struct {
	WindowSec int `koanf:"window_sec"`
	PerHour   int `koanf:"per_hour"`
}

// RelayConfig contains router and maintenance settings
type RelayConfig struct {
	AlbumWindowMs       int    `koanf:"album_window_ms"`
	SelectionTTLMinutes int    `koanf:"selection_ttl_minutes"`
	JanitorSchedule     string `koanf:"janitor_schedule"`
}

// HTTPConfig contains the ops API listener
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level string `koanf:"level"`
	Debug bool   `koanf:"debug"`
}

// envKeys maps environment variables to config keys
var envKeys = map[string]string{
	"BOT_TOKEN":             "bot.token",
	"BOT_USERNAME":          "bot.username",
	"ADMIN_CHAT_ID":         "bot.admin_chat_id",
	"ALLOWED_CHANNEL_IDS":   "bot.allowed_channels",
	"BOT_POLL_TIMEOUT_SEC":  "bot.poll_timeout_sec",
	"SEND_RATE_PER_SEC":     "bot.send_rate_per_sec",
	"SEND_BURST":            "bot.send_burst",
	"DATABASE_URL":          "storage.database_url",
	"RATE_LIMIT_WINDOW_SEC": "rate_limit.window_sec",
	"RATE_LIMIT_PER_HOUR":   "rate_limit.per_hour",
	"ALBUM_WINDOW_MS":       "relay.album_window_ms",
	"SELECTION_TTL_MINUTES": "relay.selection_ttl_minutes",
	"JANITOR_SCHEDULE":      "relay.janitor_schedule",
	"HTTP_ADDR":             "http.addr",
	"LOG_LEVEL":             "log.level",
	"DEBUG":                 "log.debug",
	"TEXTS_CONFIG_PATH":     "texts_path",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"bot.poll_timeout_sec":        10,
		"bot.send_rate_per_sec":       25.0,
		"bot.send_burst":              5,
		"storage.database_url":        "sqlite://data/comment-bridge.db",
		"rate_limit.window_sec":       10,
		"rate_limit.per_hour":         12,
		"relay.album_window_ms":       700,
		"relay.selection_ttl_minutes": 0,
		"relay.janitor_schedule":      "@every 10m",
		"http.addr":                   "127.0.0.1:9876",
		"log.level":                   "info",
	}
}

// Load loads configuration: built-in defaults, then the optional TOML file,
// then environment variables (a .env file in the working directory is read first).
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, &ConfigError{Field: "config", Message: err.Error()}
	}

	texts, err := LoadTextsConfig(cfg.TextsPath)
	if err != nil {
		return nil, err
	}
	cfg.Texts = texts

	return &cfg, nil
}

// envValue maps a known environment variable to its config key; others are skipped
func envValue(name, value string) (string, interface{}) {
	key, ok := envKeys[name]
	if !ok {
		return "", nil
	}
	if key == "bot.allowed_channels" {
		return key, splitCSV(value)
	}
	return key, value
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return &ConfigError{Field: "BOT_TOKEN", Message: "required"}
	}
	if c.Bot.Username == "" {
		return &ConfigError{Field: "BOT_USERNAME", Message: "required"}
	}
	if c.Bot.AdminChatID == 0 {
		return &ConfigError{Field: "ADMIN_CHAT_ID", Message: "required"}
	}
	if c.RateLimit.WindowSec < 0 || c.RateLimit.PerHour <= 0 {
		return &ConfigError{Field: "RATE_LIMIT_WINDOW_SEC/RATE_LIMIT_PER_HOUR", Message: "must be positive"}
	}
	if c.Relay.AlbumWindowMs <= 0 {
		return &ConfigError{Field: "ALBUM_WINDOW_MS", Message: "must be positive"}
	}
	if c.Relay.JanitorSchedule != "" {
		if _, err := cron.ParseStandard(c.Relay.JanitorSchedule); err != nil {
			return &ConfigError{Field: "JANITOR_SCHEDULE", Message: err.Error()}
		}
	}
	if c.Relay.SelectionTTLMinutes < 0 {
		return &ConfigError{Field: "SELECTION_TTL_MINUTES", Message: "must not be negative"}
	}
	if c.Bot.SendRatePerSec < 0 || c.Bot.SendBurst < 0 {
		return &ConfigError{Field: "SEND_RATE_PER_SEC/SEND_BURST", Message: "must not be negative"}
	}
	return nil
}

// ToRateLimitConfig converts to the domain admission policy
func (c *Config) ToRateLimitConfig() domain.RateLimitConfig {
	return domain.RateLimitConfig{
		Window:  time.Duration(c.RateLimit.WindowSec) * time.Second,
		PerHour: c.RateLimit.PerHour,
	}
}

// ToRelayConfig converts to router configuration
func (c *Config) ToRelayConfig() usecase.RelayConfig {
	cfg := usecase.DefaultRelayConfig()
	cfg.AdminChatID = c.Bot.AdminChatID
	cfg.BotUsername = strings.TrimPrefix(c.Bot.Username, "@")
	cfg.AllowedChannels = c.Bot.AllowedChannels
	cfg.AlbumWindow = time.Duration(c.Relay.AlbumWindowMs) * time.Millisecond
	return cfg
}

// SelectionTTL is how long a pending post selection survives without a comment.
// Zero keeps selections until they are submitted or cancelled.
func (c *Config) SelectionTTL() time.Duration {
	return time.Duration(c.Relay.SelectionTTLMinutes) * time.Minute
}

// PollTimeout is the long-polling timeout for updates
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Bot.PollTimeoutSec) * time.Second
}

// ToTexts returns the configured message texts, built-in defaults when none were loaded
func (c *Config) ToTexts() usecase.Texts {
	if c.Texts == nil {
		return usecase.DefaultTexts()
	}
	return c.Texts.ToTexts()
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
