// Package cli provides the engine integration for cloudsh.
// This file wires configuration, the node store backend, the local state
// database and the shell session together.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/cloudfs/cloudsh/internal/config"
	"github.com/cloudfs/cloudsh/internal/core"
	"github.com/cloudfs/cloudsh/internal/provider"
	"github.com/cloudfs/cloudsh/internal/provider/memstore"
	"github.com/cloudfs/cloudsh/internal/util"
)

// Engine holds the cloudsh core components.
type Engine struct {
	Config    *config.Config
	Providers *provider.DefaultRegistry
	Store     provider.NodeStore
	State     *core.StateDB
	Session   *core.Session

	logger zerolog.Logger
}

// Global engine instance
var engine *Engine

// NewRegistry returns a registry holding every built-in backend.
func NewRegistry() *provider.DefaultRegistry {
	r := provider.NewRegistry()
	// Registration only fails on duplicate names.
	_ = r.Register(memstore.BackendName, memstore.Factory)
	return r
}

// InitEngine opens the configured backend and the local state database and
// creates the shell session. With cfg.Resume set, the cached session is
// resumed; a failed resume is logged and leaves the session logged out.
func InitEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	logger := util.GetLogger("engine")

	providers := NewRegistry()
	store, err := providers.Open(cfg.Backend, cfg.BackendOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open backend: %w", err)
	}

	if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", cfg.StateDir, err)
	}
	state, err := core.OpenStateDB(ctx, cfg.StatePath(), cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	e := &Engine{
		Config:    cfg,
		Providers: providers,
		Store:     store,
		State:     state,
		Session:   core.NewSession(store, state, cfg.SessionOptions()),
		logger:    logger,
	}

	pending, err := state.Journal().GetPendingOperations(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not read the journal")
	} else if len(pending) > 0 {
		logger.Warn().Int("count", len(pending)).Msg("Interrupted operations found in the journal; their remote outcome is unknown (see 'journal')")
	}

	if cfg.Resume {
		if resumed, err := e.Session.Resume(ctx); err != nil {
			logger.Error().Err(err).Msg("Could not resume session")
		} else if !resumed {
			logger.Info().Msg("No cached session to resume")
		}
	}

	logger.Debug().
		Str("backend", store.Type()).
		Str("state", state.Path()).
		Bool("encrypted", state.IsEncrypted()).
		Msg("Engine initialized")
	return e, nil
}

// GetEngine returns the engine, initializing it from the loaded
// configuration if needed.
func GetEngine(ctx context.Context) (*Engine, error) {
	if engine != nil {
		return engine, nil
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	var err error
	engine, err = InitEngine(ctx, cfg)
	return engine, err
}

// Close detaches the session and closes the state database.
func (e *Engine) Close() error {
	if e.Session != nil {
		e.Session.Close()
	}
	if e.State != nil {
		return e.State.Close()
	}
	return nil
}
