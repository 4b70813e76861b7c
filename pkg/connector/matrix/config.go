// Copyright 2024-2026 Aiku AI

package matrix

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHistoryCount = 50
	MaxHistoryCount     = 200
)

// Config holds the settings of one Matrix account.
type Config struct {
	Homeserver string `yaml:"homeserver"`
	Token      string `yaml:"token"`
	// Name is shown as the server name. Defaults to the homeserver host.
	Name         string `yaml:"name"`
	HistoryCount int    `yaml:"history_count"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess validates the config and applies defaults.
func (c *Config) PostProcess() error {
	if c.Homeserver == "" {
		return errors.New("homeserver is required")
	}
	if c.Token == "" {
		return errors.New("token is required")
	}
	c.Homeserver = strings.TrimSuffix(c.Homeserver, "/")
	u, err := url.Parse(c.Homeserver)
	if err != nil {
		return fmt.Errorf("failed to parse homeserver URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("homeserver URL must be http or https, got %q", c.Homeserver)
	}
	if c.Name == "" {
		c.Name = u.Host
	}
	switch {
	case c.HistoryCount <= 0:
		c.HistoryCount = DefaultHistoryCount
	case c.HistoryCount > MaxHistoryCount:
		c.HistoryCount = MaxHistoryCount
	}
	return nil
}
