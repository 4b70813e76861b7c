// Copyright 2024-2026 Aiku AI

package connector

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// BackendConfig is one entry of the backends list. The fields shared by all
// backends are decoded here; the rest of the node is kept and decoded into
// the adapter's own config by Open.
type BackendConfig struct {
	Type string `yaml:"type"`
	// Token is the credential given inline. TokenEnv names an environment
	// variable to read it from instead.
	Token    string `yaml:"token"`
	TokenEnv string `yaml:"token_env"`

	raw yaml.Node
}

func (b *BackendConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig BackendConfig
	if err := node.Decode((*rawConfig)(b)); err != nil {
		return err
	}
	b.raw = *node
	return nil
}

// ResolveToken fills Token from the environment when TokenEnv is set and no
// inline token was given. A backend without any credential is an error.
func (b *BackendConfig) ResolveToken(getenv func(string) string) error {
	if b.Token == "" && b.TokenEnv != "" {
		b.Token = getenv(b.TokenEnv)
		if b.Token == "" {
			return fmt.Errorf("%s backend: environment variable %s is empty", b.Type, b.TokenEnv)
		}
	}
	if b.Token == "" {
		return fmt.Errorf("%s backend: token or token_env is required", b.Type)
	}
	return nil
}

// decode fills an adapter config from the kept node.
func (b *BackendConfig) decode(into any) error {
	if b.raw.Kind == 0 {
		return nil
	}
	if err := b.raw.Decode(into); err != nil {
		return fmt.Errorf("failed to decode %s backend config: %w", b.Type, err)
	}
	return nil
}
