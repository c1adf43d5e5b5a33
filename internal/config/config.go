// Package config provides configuration for the application.
//
// Values are layered, later sources winning: built-in defaults, the YAML
// config file, PREPDECK_* environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/prepdeck/internal/schedule"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read. PREPDECK_DB_PATH sets
// db.path, PREPDECK_SCHEDULE_MIN_EASE sets schedule.min_ease.
const EnvPrefix = "PREPDECK_"

// Config holds all configuration for the application.
type Config struct {
	DB       DBConfig        `koanf:"db"`
	Log      LogConfig       `koanf:"log"`
	Import   ImportConfig    `koanf:"import"`
	Session  SessionConfig   `koanf:"session"`
	Schedule schedule.Policy `koanf:"schedule"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path        string        `koanf:"path" validate:"required"`
	Lock        string        `koanf:"lock"` // defaults to Path + ".lock"
	LockTimeout time.Duration `koanf:"lock_timeout" validate:"min=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// ImportConfig holds settings for importing from sources.
type ImportConfig struct {
	CacheDir string `koanf:"cache_dir"` // where git sources are cloned
}

// SessionConfig holds review session settings.
type SessionConfig struct {
	Limit int `koanf:"limit" validate:"min=0"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"db":           "db.path",
	"lock":         "db.lock",
	"lock-timeout": "db.lock_timeout",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"cache-dir":    "import.cache_dir",
	"limit":        "session.limit",
}

// Options tells Load where to look.
type Options struct {
	// File is an explicit config file. It must exist when set. When empty the
	// default file is read if present.
	File string
	// Flags are applied last. Only flags named in flagKeys are used, and only
	// when changed on the command line.
	Flags *pflag.FlagSet
}

// Load reads configuration from all sources and validates it.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	defaults, err := defaultValues()
	if err != nil {
		return nil, err
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path, required := opts.File, true
	if path == "" {
		path, required = DefaultConfigPath(), false
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if required || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if opts.Flags != nil {
		fp := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(fp, nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DB.Lock == "" {
		cfg.DB.Lock = cfg.DB.Path + ".lock"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field rules and the scheduling policy.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return c.Schedule.Validate()
}

// envKey turns PREPDECK_IMPORT_CACHE_DIR into import.cache_dir: the first
// underscore separates the section from the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

func defaultValues() (map[string]interface{}, error) {
	dbPath, err := DefaultDBPath()
	if err != nil {
		return nil, err
	}
	p := schedule.DefaultPolicy()
	return map[string]interface{}{
		"db.path":                       dbPath,
		"db.lock":                       "",
		"db.lock_timeout":               10 * time.Second,
		"log.level":                     "warn",
		"log.format":                    "console",
		"import.cache_dir":              defaultCacheDir(),
		"session.limit":                 0,
		"schedule.initial_ease":         p.InitialEase,
		"schedule.min_ease":             p.MinEase,
		"schedule.max_ease":             p.MaxEase,
		"schedule.fail_ease_penalty":    p.FailEasePenalty,
		"schedule.hard_ease_penalty":    p.HardEasePenalty,
		"schedule.easy_ease_bonus":      p.EasyEaseBonus,
		"schedule.hard_interval_factor": p.HardIntervalFactor,
		"schedule.easy_interval_factor": p.EasyIntervalFactor,
		"schedule.first_interval":       p.FirstInterval,
		"schedule.max_interval":         p.MaxInterval,
	}, nil
}

// DefaultDBPath resolves the database file path:
// $XDG_DATA_HOME/prepdeck/prepdeck.db, falling back to
// ~/.local/share/prepdeck/prepdeck.db.
func DefaultDBPath() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "prepdeck", "prepdeck.db"), nil
}

// DefaultConfigPath returns the config file looked up when none is given,
// or "" if no config directory can be determined.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "prepdeck", "config.yaml")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "prepdeck", "repos")
	}
	return filepath.Join(dir, "prepdeck", "repos")
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
