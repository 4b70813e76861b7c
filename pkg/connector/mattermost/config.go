// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHistoryCount = 60
	MaxHistoryCount     = 200
)

// Config holds the settings of one Mattermost backend.
type Config struct {
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token"`
	// Team selects the team by display name or URL name. Empty picks the
	// first team the token can access.
	Team                string `yaml:"team"`
	HistoryCount        int    `yaml:"history_count"`
	DisplaynameTemplate string `yaml:"displayname_template"`

	displaynameTemplate *template.Template `yaml:"-"`
}

// DisplaynameParams holds the parameters for rendering the displayname template.
type DisplaynameParams struct {
	Username  string
	Nickname  string
	FirstName string
	LastName  string
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess validates the config, applies defaults and compiles the
// displayname template.
func (c *Config) PostProcess() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if c.Token == "" {
		return errors.New("token is required")
	}
	c.ServerURL = strings.TrimSuffix(c.ServerURL, "/")
	switch {
	case c.HistoryCount <= 0:
		c.HistoryCount = DefaultHistoryCount
	case c.HistoryCount > MaxHistoryCount:
		c.HistoryCount = MaxHistoryCount
	}
	if c.DisplaynameTemplate == "" {
		c.DisplaynameTemplate = "{{.Username}}"
	}
	var err error
	c.displaynameTemplate, err = template.New("displayname").Parse(c.DisplaynameTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse displayname_template: %w", err)
	}
	return nil
}

// FormatDisplayname renders the sender name shown for a user. It falls back
// to the username when the template is missing, fails or renders empty.
func (c *Config) FormatDisplayname(params DisplaynameParams) string {
	if c.displaynameTemplate == nil {
		return params.Username
	}
	var buf strings.Builder
	if err := c.displaynameTemplate.Execute(&buf, params); err != nil {
		return params.Username
	}
	if strings.TrimSpace(buf.String()) == "" {
		return params.Username
	}
	return buf.String()
}
