// Package di provides dependency injection for database connections.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the order journal and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	// journal.db - Submitted orders and their final status, per cycle
	journalDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "journal.db"),
		Profile: database.ProfileLedger,
		Name:    "journal",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize journal database: %w", err)
	}

	if err := journalDB.Migrate(); err != nil {
		journalDB.Close()
		return nil, fmt.Errorf("failed to apply journal schema: %w", err)
	}
	container.JournalDB = journalDB

	log.Info().Str("path", journalDB.Path()).Msg("Journal database initialized")
	return container, nil
}
