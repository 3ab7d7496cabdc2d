package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/quantwand/internal/clientdata"
	"github.com/aristath/quantwand/internal/config"
	"github.com/aristath/quantwand/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens cache.db, applies its schema and creates the repository on top of it.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}

	if err := cacheDB.Migrate(); err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}
	container.CacheDB = cacheDB
	container.ClientDataRepo = clientdata.NewRepository(cacheDB.Conn())

	log.Info().Str("path", cacheDB.Path()).Msg("Cache database initialized")

	return container, nil
}
