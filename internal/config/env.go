package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Env holds the environment overrides, read once at start-up.
type Env struct {
	ConfigPath string `env:"ARCH_MANWARN_CONFIG"`
	// Cache location override for development and testing.
	CachePath string `env:"ARCH_MANWARN_CACHE_PATH"`

	// Either text or json.
	LogFormat string `env:"ARCH_MANWARN_LOG_FORMAT, default=text"`
	LogLevel  string `env:"ARCH_MANWARN_LOG_LEVEL, default=warn"`
}

// DefaultEnvFilePath is the optional environment file next to the default
// config file.
func DefaultEnvFilePath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "environment")
}

// LoadEnvFile exports the variables in path into the process environment.
// Variables that are already set are not overridden. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func LoadEnv(ctx context.Context) (Env, error) {
	return loadEnv(ctx, envconfig.OsLookuper())
}

func loadEnv(ctx context.Context, l envconfig.Lookuper) (Env, error) {
	var env Env
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &env,
		Lookuper: l,
	}); err != nil {
		return Env{}, fmt.Errorf("parsing environment: %w", err)
	}
	return env, nil
}

// ResolveConfigPath picks the config path: flag, then environment, then the
// default location.
func (e Env) ResolveConfigPath(flag string) string {
	switch {
	case flag != "":
		return flag
	case e.ConfigPath != "":
		return e.ConfigPath
	default:
		return DefaultConfigPath()
	}
}

// ResolveCachePath picks the cache path: environment, then config, then the
// default location.
func (e Env) ResolveCachePath(cfg *Config) string {
	switch {
	case e.CachePath != "":
		return e.CachePath
	case cfg != nil && cfg.CachePath != "":
		return cfg.CachePath
	default:
		return DefaultCachePath()
	}
}
