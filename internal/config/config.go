// Package config loads server configuration from defaults, an optional
// config file, and LANBOX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/lanbox/lanbox/internal/drives"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr     string        `mapstructure:"listen_addr" validate:"required,hostname_port"`
	MetricsAddr    string        `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
	RootDir        string        `mapstructure:"root_dir" validate:"required"`
	AllowedPaths   []string      `mapstructure:"allowed_paths"`
	AccessKey      string        `mapstructure:"access_key"`
	SessionTTL     time.Duration `mapstructure:"session_ttl" validate:"min=0"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes" validate:"min=0"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" validate:"min=0"`
	EnableDAV      bool          `mapstructure:"enable_dav"`
	Log            LogConfig     `mapstructure:"log"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
	Output string `mapstructure:"output"`
}

// Load reads configuration. path points at an explicit config file; when
// empty, lanbox.yaml is looked up in the working directory and the user
// config directory. Environment variables (LANBOX_LISTEN_ADDR, ...) override
// file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lanbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "lanbox"))
		}
	}
	v.SetEnvPrefix("LANBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := normalize(&cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "0.0.0.0:8000")
	v.SetDefault("metrics_addr", "127.0.0.1:9091")
	v.SetDefault("root_dir", "")
	v.SetDefault("allowed_paths", []string{})
	v.SetDefault("access_key", "")
	v.SetDefault("session_ttl", time.Duration(0))
	v.SetDefault("max_upload_bytes", int64(1<<30))
	v.SetDefault("read_timeout", time.Duration(0))
	v.SetDefault("enable_dav", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "")
}

// normalize fills the directory defaults: root falls back to ~/Downloads
// (created if missing); the allowed set always includes the root and, when
// left unset, the standard user folders plus any detected drives.
func normalize(cfg *Config) error {
	if cfg.RootDir == "" {
		root, err := defaultRoot()
		if err != nil {
			return err
		}
		cfg.RootDir = root
	}
	cfg.RootDir = expandHome(cfg.RootDir)
	abs, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return fmt.Errorf("resolve root_dir: %w", err)
	}
	cfg.RootDir = abs

	if len(cfg.AllowedPaths) == 0 {
		cfg.AllowedPaths = defaultAllowed(cfg.RootDir)
	} else {
		for i, p := range cfg.AllowedPaths {
			cfg.AllowedPaths[i] = expandHome(p)
		}
		cfg.AllowedPaths = append([]string{cfg.RootDir}, cfg.AllowedPaths...)
	}
	cfg.AllowedPaths = dedupe(cfg.AllowedPaths)
	return nil
}

func defaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	root := filepath.Join(home, "Downloads")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create default root: %w", err)
	}
	return root, nil
}

func defaultAllowed(root string) []string {
	allowed := []string{root}
	if home, err := os.UserHomeDir(); err == nil {
		for _, name := range []string{"Documents", "Downloads", "Desktop", "Pictures", "Music", "Videos"} {
			dir := filepath.Join(home, name)
			if st, err := os.Stat(dir); err == nil && st.IsDir() {
				allowed = append(allowed, dir)
			}
		}
	}
	return append(allowed, drives.Detect()...)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		clean := filepath.Clean(p)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
	}
	return out
}
