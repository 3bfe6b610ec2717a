package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sentience-labs/resilience-core/internal/config"
	"github.com/sentience-labs/resilience-core/internal/database"
)

// InitializeDatabase opens and migrates the single resilience database that
// backs the order lifecycle, outbox, and mode-transition history.
func InitializeDatabase(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	resilienceDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/resilience.db",
		Profile: database.ProfileLedger,
		Name:    "resilience",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resilience database: %w", err)
	}
	container.ResilienceDB = resilienceDB

	if err := resilienceDB.Migrate(); err != nil {
		resilienceDB.Close()
		return nil, fmt.Errorf("failed to apply resilience schema: %w", err)
	}

	log.Info().Msg("resilience database initialized and schema applied")
	return container, nil
}
