package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
	"github.com/kvantora/comment-bridge/internal/biz/usecase"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for name := range envKeys {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	t.Setenv("CONFIG_PATH", "")
	os.Unsetenv("CONFIG_PATH")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEXTS_CONFIG_PATH", writeFile(t, "texts.yaml", "{}"))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite://data/comment-bridge.db", cfg.Storage.DatabaseURL)
	assert.Equal(t, domain.RateLimitConfig{Window: 10 * time.Second, PerHour: 12}, cfg.ToRateLimitConfig())
	assert.Equal(t, 700*time.Millisecond, cfg.ToRelayConfig().AlbumWindow)
	assert.Zero(t, cfg.SelectionTTL(), "selections only end on submit or /cancel by default")
	assert.Equal(t, "127.0.0.1:9876", cfg.HTTP.Addr)
	assert.Equal(t, "@every 10m", cfg.Relay.JanitorSchedule)

	var cerr *ConfigError
	require.ErrorAs(t, cfg.Validate(), &cerr)
	assert.Equal(t, "BOT_TOKEN", cerr.Field)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEXTS_CONFIG_PATH", writeFile(t, "texts.yaml", "{}"))
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("BOT_USERNAME", "@comment_bot")
	t.Setenv("ADMIN_CHAT_ID", "-5000")
	t.Setenv("ALLOWED_CHANNEL_IDS", "-100123, -100456,")
	t.Setenv("RATE_LIMIT_WINDOW_SEC", "30")
	t.Setenv("RATE_LIMIT_PER_HOUR", "5")
	t.Setenv("DEBUG", "true")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	relay := cfg.ToRelayConfig()
	assert.Equal(t, int64(-5000), relay.AdminChatID)
	assert.Equal(t, "comment_bot", relay.BotUsername)
	if diff := cmp.Diff([]int64{-100123, -100456}, relay.AllowedChannels); diff != "" {
		t.Errorf("allowed channels mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, domain.RateLimitConfig{Window: 30 * time.Second, PerHour: 5}, cfg.ToRateLimitConfig())
	assert.True(t, cfg.Log.Debug)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEXTS_CONFIG_PATH", writeFile(t, "texts.yaml", "{}"))
	path := writeFile(t, "bridge.toml", `
[bot]
token = "from-file"
username = "file_bot"
admin_chat_id = -42
allowed_channels = [-1001]

[http]
addr = ":8080"
`)
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Bot.Token)
	assert.Equal(t, "file_bot", cfg.Bot.Username)
	assert.Equal(t, []int64{-1001}, cfg.Bot.AllowedChannels)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_InvalidChannelList(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEXTS_CONFIG_PATH", writeFile(t, "texts.yaml", "{}"))
	t.Setenv("ALLOWED_CHANNEL_IDS", "-100123,news")

	_, err := Load("")
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Bot:       BotConfig{Token: "t", Username: "b", AdminChatID: -1, SendRatePerSec: 25, SendBurst: 5},
		RateLimit: RateLimitConfig{WindowSec: 10, PerHour: 12},
		Relay:     RelayConfig{AlbumWindowMs: 700},
	}
	require.NoError(t, valid.Validate())

	for _, schedule := range []string{"@every 10m", "@hourly", "*/5 * * * *"} {
		cfg := valid
		cfg.Relay.JanitorSchedule = schedule
		assert.NoError(t, cfg.Validate(), "schedule %q", schedule)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"no username", func(c *Config) { c.Bot.Username = "" }, "BOT_USERNAME"},
		{"no admin chat", func(c *Config) { c.Bot.AdminChatID = 0 }, "ADMIN_CHAT_ID"},
		{"zero quota", func(c *Config) { c.RateLimit.PerHour = 0 }, "RATE_LIMIT_WINDOW_SEC/RATE_LIMIT_PER_HOUR"},
		{"zero album window", func(c *Config) { c.Relay.AlbumWindowMs = 0 }, "ALBUM_WINDOW_MS"},
		{"bad janitor schedule", func(c *Config) { c.Relay.JanitorSchedule = "not a schedule" }, "JANITOR_SCHEDULE"},
		{"negative selection ttl", func(c *Config) { c.Relay.SelectionTTLMinutes = -1 }, "SELECTION_TTL_MINUTES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			var cerr *ConfigError
			require.ErrorAs(t, cfg.Validate(), &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestLoadTextsConfig_FillsDefaults(t *testing.T) {
	path := writeFile(t, "texts.yaml", `
replies:
  cancelled: "Отменено."
headers:
  admin_hint: "Ответьте на это сообщение."
`)

	tc, err := LoadTextsConfig(path)
	require.NoError(t, err)

	texts := tc.ToTexts()
	assert.Equal(t, "Отменено.", texts.Cancelled)
	assert.Equal(t, "Ответьте на это сообщение.", texts.AdminHint)
	assert.Equal(t, usecase.DefaultTexts().RateLimited, texts.RateLimited)
	assert.Equal(t, usecase.DefaultTexts().NewCommentTitle, texts.NewCommentTitle)
}

func TestLoadTextsConfig_Invalid(t *testing.T) {
	_, err := LoadTextsConfig(writeFile(t, "texts.yaml", "replies: [unclosed"))
	assert.Error(t, err)

	_, err = LoadTextsConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultTextsConfig_MatchesBuiltins(t *testing.T) {
	if diff := cmp.Diff(usecase.DefaultTexts(), DefaultTextsConfig().ToTexts()); diff != "" {
		t.Errorf("default texts mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, usecase.DefaultTexts(), (&Config{}).ToTexts())
}
