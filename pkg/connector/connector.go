// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/omnichat/pkg/conn"
	"github.com/aiku/omnichat/pkg/connector/matrix"
	"github.com/aiku/omnichat/pkg/connector/mattermost"
)

const (
	TypeMattermost = "mattermost"
	TypeMatrix     = "matrix"
)

var ErrUnknownBackend = errors.New("unknown backend type")

// Open constructs the adapter named by cfg.Type. The returned connection is
// already streaming history and live events into sink.
func Open(ctx context.Context, cfg BackendConfig, sink *conn.Sink, log zerolog.Logger) (conn.Connection, error) {
	switch cfg.Type {
	case TypeMattermost:
		var mmCfg mattermost.Config
		if err := cfg.decode(&mmCfg); err != nil {
			return nil, conn.NewSetupError(TypeMattermost, "config", err)
		}
		mmCfg.Token = cfg.Token
		c, err := mattermost.New(ctx, mmCfg, sink, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	case TypeMatrix:
		var mxCfg matrix.Config
		if err := cfg.decode(&mxCfg); err != nil {
			return nil, conn.NewSetupError(TypeMatrix, "config", err)
		}
		mxCfg.Token = cfg.Token
		c, err := matrix.New(ctx, mxCfg, sink, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, cfg.Type)
	}
}

// OpenAll opens every backend concurrently. It returns the connections that
// came up, in config order, and the joined errors of those that did not.
func OpenAll(ctx context.Context, backends []BackendConfig, sink *conn.Sink, log zerolog.Logger) ([]conn.Connection, error) {
	conns := make([]conn.Connection, len(backends))
	errs := make([]error, len(backends))
	var g errgroup.Group
	for i, cfg := range backends {
		g.Go(func() error {
			blog := log.With().Int("backend", i).Str("type", cfg.Type).Logger()
			c, err := Open(ctx, cfg, sink, blog)
			if err != nil {
				blog.Err(err).Msg("Failed to open backend")
				errs[i] = fmt.Errorf("backend %d: %w", i, err)
				return nil
			}
			blog.Info().Str("name", c.Name()).Int("channels", len(c.Channels())).Msg("Backend connected")
			conns[i] = c
			return nil
		})
	}
	_ = g.Wait()
	opened := make([]conn.Connection, 0, len(conns))
	for _, c := range conns {
		if c != nil {
			opened = append(opened, c)
		}
	}
	return opened, errors.Join(errs...)
}
