package config

import "time"

const (
	// Reconciliation
	DefaultDedupWindow = 5 * time.Second

	// Delivery
	DefaultStoreWriteTimeout = 5 * time.Second
	DefaultHistoryLimit      = 50

	// Typing
	DefaultTypingTTL = 4 * time.Second

	// Session event loop
	SessionEventBuffer = 256
	ViewBuffer         = 1
)

// ChatConfig holds the timing knobs of one chat session.
type ChatConfig struct {
	DedupWindow       time.Duration `yaml:"dedup_window"`
	StoreWriteTimeout time.Duration `yaml:"store_write_timeout"`
	HistoryLimit      int           `yaml:"history_limit"`
	TypingTTL         time.Duration `yaml:"typing_ttl"`
}

// DefaultChatConfig returns the timings used when nothing is configured.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		DedupWindow:       DefaultDedupWindow,
		StoreWriteTimeout: DefaultStoreWriteTimeout,
		HistoryLimit:      DefaultHistoryLimit,
		TypingTTL:         DefaultTypingTTL,
	}
}

// WithDefaults fills zero fields from DefaultChatConfig.
func (c ChatConfig) WithDefaults() ChatConfig {
	d := DefaultChatConfig()
	if c.DedupWindow <= 0 {
		c.DedupWindow = d.DedupWindow
	}
	if c.StoreWriteTimeout <= 0 {
		c.StoreWriteTimeout = d.StoreWriteTimeout
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = d.TypingTTL
	}
	return c
}
