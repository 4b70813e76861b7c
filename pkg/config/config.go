// Copyright 2024-2026 Aiku AI

// Package config loads the omnichat configuration file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/aiku/omnichat/pkg/connector"
)

//go:embed example-config.yaml
var ExampleConfig string

const DefaultTimestampFormat = "15:04"

var ErrNoBackends = errors.New("no backends configured")

type Config struct {
	Backends []connector.BackendConfig `yaml:"backends"`
	UI       UIConfig                  `yaml:"ui"`
	Logging  zeroconfig.Config         `yaml:"logging"`
}

type UIConfig struct {
	TimestampFormat string `yaml:"timestamp_format"`
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.List, "backends")
	helper.Copy(up.Str, "ui", "timestamp_format")
	helper.Copy(up.Map, "logging")
}

// Load reads the config file at path. A .env file in the same directory is
// loaded into the environment first; variables already set are kept.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err = godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return Parse(data, os.Getenv)
}

// Parse merges data over the example config, decodes it and resolves the
// backend credentials through getenv.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	var baseNode, cfgNode yaml.Node
	if err := yaml.Unmarshal([]byte(ExampleConfig), &baseNode); err != nil {
		return nil, fmt.Errorf("failed to parse example config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfgNode); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfgNode.Kind != 0 {
		upgradeConfig(up.NewHelper(&baseNode, &cfgNode))
	}
	var cfg Config
	if err := baseNode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.PostProcess(getenv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PostProcess applies defaults and resolves every backend's token.
func (c *Config) PostProcess(getenv func(string) string) error {
	if len(c.Backends) == 0 {
		return ErrNoBackends
	}
	if c.UI.TimestampFormat == "" {
		c.UI.TimestampFormat = DefaultTimestampFormat
	}
	var errs []error
	for i := range c.Backends {
		if err := c.Backends[i].ResolveToken(getenv); err != nil {
			errs = append(errs, fmt.Errorf("backends[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Logger compiles the logging section.
func (c *Config) Logger() (*zerolog.Logger, error) {
	log, err := c.Logging.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// WriteExample writes the example config to path, refusing to overwrite.
func WriteExample(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if _, err = f.WriteString(ExampleConfig); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	return f.Close()
}
