package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"djchat/backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.DefaultDedupWindow, cfg.Chat.DedupWindow)
	assert.Equal(t, config.DefaultStoreWriteTimeout, cfg.Chat.StoreWriteTimeout)
	assert.Equal(t, config.DefaultHistoryLimit, cfg.Chat.HistoryLimit)
	assert.Equal(t, config.DefaultTypingTTL, cfg.Chat.TypingTTL)
	assert.Contains(t, cfg.DSN(), "sslmode=disable")
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "djchat.yaml")
	yml := "http_addr: \":9090\"\nredis_addr: \"redis:6379\"\nchat:\n  dedup_window: 8s\n  history_limit: 20\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REDIS_ADDR", "override:6379")
	t.Setenv("CHAT_STORE_WRITE_TIMEOUT", "2s")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "override:6379", cfg.RedisAddr, "env must win over the file")
	assert.Equal(t, 8*time.Second, cfg.Chat.DedupWindow)
	assert.Equal(t, 20, cfg.Chat.HistoryLimit)
	assert.Equal(t, 2*time.Second, cfg.Chat.StoreWriteTimeout)
	assert.Equal(t, config.DefaultTypingTTL, cfg.Chat.TypingTTL)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CHAT_DEDUP_WINDOW", "soon")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestChatConfig_WithDefaults(t *testing.T) {
	c := config.ChatConfig{HistoryLimit: 10}.WithDefaults()

	assert.Equal(t, 10, c.HistoryLimit)
	assert.Equal(t, config.DefaultDedupWindow, c.DedupWindow)
}
