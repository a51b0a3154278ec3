package schema

import (
	"errors"
	"time"
)

// WindowConfig defines defaults and limits for a window context.
type WindowConfig struct {
	HistoryMax    int
	TearOffWidth  int
	TearOffHeight int
	// TearOffPopup opens torn-off tabs as app-like popup windows.
	TearOffPopup bool
}

// DefaultHistoryMax is the per-tab back stack limit.
const DefaultHistoryMax = 50

// DefaultMirrorDebounce is the quiet window before the filesystem mirror is written.
const DefaultMirrorDebounce = 2 * time.Second

// NormalizeWindowConfig applies defaults and validates the config.
func NormalizeWindowConfig(cfg WindowConfig) (WindowConfig, error) {
	if cfg.HistoryMax == 0 {
		cfg.HistoryMax = DefaultHistoryMax
	}
	if cfg.TearOffWidth == 0 {
		cfg.TearOffWidth = 1200
	}
	if cfg.TearOffHeight == 0 {
		cfg.TearOffHeight = 800
	}
	if cfg.HistoryMax < 1 {
		return WindowConfig{}, errors.New("history max must be positive")
	}
	if cfg.TearOffWidth < 0 || cfg.TearOffHeight < 0 {
		return WindowConfig{}, errors.New("tear-off window size must not be negative")
	}
	return cfg, nil
}
