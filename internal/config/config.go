// Package config loads engine configuration from a file plus environment
// overrides, and re-reads the tunables safe to change without a restart
// (poll/heartbeat intervals, stage timeout) into the loaded Config when
// the file changes.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the fully-resolved engine configuration.
type Config struct {
	DBPath          string        `mapstructure:"db_path"`
	WorktreeBaseDir string        `mapstructure:"worktree_base_dir"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	StageTimeout    time.Duration `mapstructure:"stage_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	StaleRunAfter   time.Duration `mapstructure:"stale_run_after"`
	ClaudeBinary    string        `mapstructure:"claude_binary"`
	CursorBinary    string        `mapstructure:"cursor_binary"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("db_path", "agentkanbd.db")
	v.SetDefault("worktree_base_dir", ".worktrees")
	v.SetDefault("poll_interval", "5s")
	v.SetDefault("heartbeat_interval", "30s")
	v.SetDefault("lock_ttl", "2m")
	v.SetDefault("stage_timeout", "20m")
	v.SetDefault("cleanup_interval", "1m")
	v.SetDefault("stale_run_after", "30m")
	v.SetDefault("claude_binary", "claude")
	v.SetDefault("cursor_binary", "cursor-agent")
}

// Load reads configuration from path (if it exists), environment
// variables prefixed AGENTKANBD_, and falls back to defaults() otherwise.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("agentkanbd")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, v, nil
}

// WatchReload re-unmarshals the poll, heartbeat, stage-timeout, cleanup
// and stale-run settings into cfg whenever the underlying config file
// changes on disk. A component that copied one of these values out of cfg
// when it was built keeps its copy; the worker, orchestrator and cleanup
// service wired in cmd/agentkanbd all do, so a reload does not change
// them while the process runs. Structural settings (db_path,
// worktree_base_dir) are read once at startup and not reloaded.
func WatchReload(v *viper.Viper, cfg *Config, log *slog.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := &Config{}
		if err := v.Unmarshal(updated); err != nil {
			log.Error("config reload failed", "error", err)
			return
		}
		cfg.PollInterval = updated.PollInterval
		cfg.HeartbeatInterval = updated.HeartbeatInterval
		cfg.StageTimeout = updated.StageTimeout
		cfg.CleanupInterval = updated.CleanupInterval
		cfg.StaleRunAfter = updated.StaleRunAfter
		log.Info("config reloaded", "file", e.Name)
	})
	v.WatchConfig()
}
