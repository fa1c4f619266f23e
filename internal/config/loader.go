package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const (
	// FileName is the per-project config file looked up in the working directory.
	FileName = ".ciresolve.yaml"
	// EnvPrefix prefixes environment overrides, e.g. CIRESOLVE_STRICT.
	EnvPrefix = "CIRESOLVE"

	defaultLogLevel       = "warn"
	defaultIncludeWorkers = 4
)

// HomeDir returns ~/.ciresolve.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "get home directory")
	}
	return filepath.Join(home, ".ciresolve"), nil
}

// Load reads the configuration from the given YAML file, then applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.Source = v.ConfigFileUsed()
	return cfg, nil
}

// LoadDefault loads the first config found. Search order: ./.ciresolve.yaml,
// ~/.ciresolve/config.yaml. With neither present the defaults are returned,
// still subject to environment overrides.
func LoadDefault() (*Config, error) {
	candidates := []string{FileName}
	if dir, err := HomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return decode(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("sibling_root", "")
	v.SetDefault("strict", false)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("include_workers", defaultIncludeWorkers)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills values that cannot be expressed as static defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.IncludeWorkers == 0 {
		cfg.IncludeWorkers = defaultIncludeWorkers
	}
	if cfg.History.Path == "" {
		if dir, err := HomeDir(); err == nil {
			cfg.History.Path = filepath.Join(dir, "history.db")
		}
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
}
