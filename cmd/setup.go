package cmd

import (
	"context"
	"fmt"

	"github.com/haleyrc/workdriver/internal/checks"
	"github.com/haleyrc/workdriver/internal/config"
	"github.com/haleyrc/workdriver/internal/database"
	"github.com/haleyrc/workdriver/internal/state"
)

// buildChecks constructs every registered check. A missing credential is a
// construction error and therefore fatal, before any loop starts.
func buildChecks(cfg *config.Config) ([]checks.Check, error) {
	prCheck, err := checks.NewPRCheck(cfg.GitHub)
	if err != nil {
		return nil, fmt.Errorf("configuring GitHub check: %w", err)
	}
	flagCheck, err := checks.NewFlagCheck(cfg.LaunchDarkly)
	if err != nil {
		return nil, fmt.Errorf("configuring LaunchDarkly check: %w", err)
	}
	return []checks.Check{prCheck, flagCheck}, nil
}

// openStore opens the SQLite-backed state store, running migrations first.
// The returned DB must be closed by the caller.
func openStore(ctx context.Context, cfg *config.Config) (*state.Store, database.DB, error) {
	db, err := database.New(cfg.State)
	if err != nil {
		return nil, nil, fmt.Errorf("opening state database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	store, err := state.Open(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}
