package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/quilix/internal/syncbus"
	"pkt.systems/quilix/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	StorePath     string        `mapstructure:"store_path" yaml:"store_path"`
	SessionDir    string        `mapstructure:"session_dir" yaml:"session_dir"`
	Workspace     string        `mapstructure:"workspace" yaml:"workspace"`
	History       HistoryConfig `mapstructure:"history" yaml:"history"`
	TearOff       TearOffConfig `mapstructure:"tearoff" yaml:"tearoff"`
	Mirror        MirrorConfig  `mapstructure:"mirror" yaml:"mirror"`
	Sync          SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Durable       DurableConfig `mapstructure:"durable" yaml:"durable"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Sync backends.
const (
	SyncBackendHub   = "hub"
	SyncBackendRedis = "redis"
)

// Durable storage backends.
const (
	DurableBackendStore = "store"
	DurableBackendRedis = "redis"
)

// HistoryConfig controls per-tab navigation history.
type HistoryConfig struct {
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries"`
}

// TearOffConfig controls windows opened by tearing off a tab.
type TearOffConfig struct {
	Width  int  `mapstructure:"width" yaml:"width"`
	Height int  `mapstructure:"height" yaml:"height"`
	Popup  bool `mapstructure:"popup" yaml:"popup"`
}

// MirrorConfig controls the filesystem mirror.
type MirrorConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	DebounceMS int    `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	RootDir    string `mapstructure:"root_dir" yaml:"root_dir"`
	FileName   string `mapstructure:"file_name" yaml:"file_name"`
	LockPath   string `mapstructure:"lock_path" yaml:"lock_path"`
}

// SyncConfig selects the cross-window channel.
type SyncConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"`
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
}

// DurableConfig selects where durable (cross-window) storage lives.
type DurableConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
}

// WindowConfig returns the per-window settings.
func (c Config) WindowConfig() schema.WindowConfig {
	return schema.WindowConfig{
		HistoryMax:    c.History.MaxEntries,
		TearOffWidth:  c.TearOff.Width,
		TearOffHeight: c.TearOff.Height,
		TearOffPopup:  c.TearOff.Popup,
	}
}

// MirrorDebounce returns the mirror debounce as a duration.
func (c Config) MirrorDebounce() time.Duration {
	return time.Duration(c.Mirror.DebounceMS) * time.Millisecond
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	stateDir := filepath.Join(home, ".quilix", "state")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      stateDir,
		StorePath:     filepath.Join(stateDir, "quilix.db"),
		SessionDir:    filepath.Join(stateDir, "sessions"),
		Workspace:     "default",
		History: HistoryConfig{
			MaxEntries: schema.DefaultHistoryMax,
		},
		TearOff: TearOffConfig{
			Width:  1200,
			Height: 800,
			Popup:  true,
		},
		Mirror: MirrorConfig{
			Enabled:    true,
			DebounceMS: int(schema.DefaultMirrorDebounce / time.Millisecond),
			RootDir:    "Quilix",
			FileName:   "quilix-data.json",
			LockPath:   filepath.Join(stateDir, "mirror.lock"),
		},
		Sync: SyncConfig{
			Backend:  SyncBackendHub,
			RedisURL: "",
			Channel:  syncbus.DefaultChannel,
		},
		Durable: DurableConfig{
			Backend: DurableBackendStore,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".quilix", "config.yaml"), nil
}
