package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/quilix/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("QUILIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("store_path", "")
	v.SetDefault("session_dir", "")
	v.SetDefault("workspace", cfg.Workspace)
	v.SetDefault("history.max_entries", cfg.History.MaxEntries)
	v.SetDefault("tearoff.width", cfg.TearOff.Width)
	v.SetDefault("tearoff.height", cfg.TearOff.Height)
	v.SetDefault("tearoff.popup", cfg.TearOff.Popup)
	v.SetDefault("mirror.enabled", cfg.Mirror.Enabled)
	v.SetDefault("mirror.debounce_ms", cfg.Mirror.DebounceMS)
	v.SetDefault("mirror.root_dir", cfg.Mirror.RootDir)
	v.SetDefault("mirror.file_name", cfg.Mirror.FileName)
	v.SetDefault("mirror.lock_path", "")
	v.SetDefault("sync.backend", cfg.Sync.Backend)
	v.SetDefault("sync.redis_url", cfg.Sync.RedisURL)
	v.SetDefault("sync.channel", cfg.Sync.Channel)
	v.SetDefault("durable.backend", cfg.Durable.Backend)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	deriveStatePaths(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// deriveStatePaths places unset state files under state_dir.
func deriveStatePaths(cfg *Config) {
	if cfg.StorePath == "" {
		cfg.StorePath = filepath.Join(cfg.StateDir, "quilix.db")
	}
	if cfg.SessionDir == "" {
		cfg.SessionDir = filepath.Join(cfg.StateDir, "sessions")
	}
	if cfg.Mirror.LockPath == "" {
		cfg.Mirror.LockPath = filepath.Join(cfg.StateDir, "mirror.lock")
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.StateDir) == "" {
		return fmt.Errorf("state_dir is required")
	}
	if err := schema.ValidateWorkspaceID(schema.WorkspaceID(cfg.Workspace)); err != nil {
		return fmt.Errorf("workspace %q: %w", cfg.Workspace, err)
	}
	if cfg.History.MaxEntries < 1 {
		return fmt.Errorf("history.max_entries must be positive")
	}
	if cfg.TearOff.Width < 0 || cfg.TearOff.Height < 0 {
		return fmt.Errorf("tearoff.width and tearoff.height must not be negative")
	}
	if cfg.Mirror.DebounceMS < 0 {
		return fmt.Errorf("mirror.debounce_ms must not be negative")
	}
	if cfg.Mirror.RootDir == "" || schema.SanitizeFolderName(cfg.Mirror.RootDir) != cfg.Mirror.RootDir {
		return fmt.Errorf("mirror.root_dir must be a plain directory name")
	}
	if cfg.Mirror.FileName == "" || strings.ContainsAny(cfg.Mirror.FileName, `/\`) {
		return fmt.Errorf("mirror.file_name must be a plain file name")
	}
	needsRedis := false
	switch cfg.Sync.Backend {
	case SyncBackendHub:
	case SyncBackendRedis:
		needsRedis = true
	default:
		return fmt.Errorf("unsupported sync.backend %q", cfg.Sync.Backend)
	}
	switch cfg.Durable.Backend {
	case DurableBackendStore:
	case DurableBackendRedis:
		needsRedis = true
	default:
		return fmt.Errorf("unsupported durable.backend %q", cfg.Durable.Backend)
	}
	if needsRedis {
		if err := validateRedisURL(cfg.Sync.RedisURL); err != nil {
			return err
		}
	}
	return nil
}

func validateRedisURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("sync.redis_url is required for the redis backend")
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "redis" && parsed.Scheme != "rediss") || parsed.Host == "" {
		return fmt.Errorf("sync.redis_url must look like redis://host:port/db")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.StorePath = expandEnv(cfg.StorePath)
	cfg.SessionDir = expandEnv(cfg.SessionDir)
	cfg.Mirror.LockPath = expandEnv(cfg.Mirror.LockPath)
	cfg.Sync.RedisURL = expandEnv(cfg.Sync.RedisURL)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
