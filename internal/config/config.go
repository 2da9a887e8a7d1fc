// Package config loads the provider configuration from a YAML file and
// the environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/masterkusok/mpprefs/internal/raft"
	"github.com/masterkusok/mpprefs/internal/store"
)

const EnvPrefix = "MPPREFS_"

type Config struct {
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Raft    raft.Config   `yaml:"raft" envPrefix:"RAFT_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
	Client  ClientConfig  `yaml:"client" envPrefix:"CLIENT_"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // memory, sqlite
	Path   string `yaml:"path" env:"PATH"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // json, console
}

// ClientConfig is used by the CLI commands that attach to a provider.
type ClientConfig struct {
	Endpoint string        `yaml:"endpoint" env:"ENDPOINT"`
	Origin   string        `yaml:"origin" env:"ORIGIN"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8000"},
		Storage: StorageConfig{
			Driver: store.DriverSQLite,
			Path:   "preferences.db",
		},
		Raft: raft.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Client: ClientConfig{
			Endpoint: "http://localhost:8000",
			Timeout:  5 * time.Second,
		},
	}
}

// Load starts from Default, overlays the YAML file at path (skipped when
// path is empty or missing) and then the MPPREFS_ environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case store.DriverMemory:
	case store.DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Raft.Enabled && c.Raft.LocalID == "" {
		return fmt.Errorf("raft.local-id is required when raft is enabled")
	}
	return nil
}
