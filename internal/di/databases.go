// Package di wires the application: databases, repositories, scorers,
// the pipeline runner, the scheduler jobs, and the HTTP server.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/config"
	"github.com/aristath/lookout/internal/database"
)

// InitializeDatabases opens the three databases and applies schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// universe.db - the tradable stock universe with quality tiering
	universeDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/universe.db",
		Profile: database.ProfileStandard,
		Name:    "universe",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize universe database: %w", err)
	}
	container.UniverseDB = universeDB

	// analysis.db - per-stage scores, allocations, recommendations,
	// positions, and the trade outcome audit trail
	analysisDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/analysis.db",
		Profile: database.ProfileLedger,
		Name:    "analysis",
	})
	if err != nil {
		universeDB.Close()
		return nil, fmt.Errorf("failed to initialize analysis database: %w", err)
	}
	container.AnalysisDB = analysisDB

	// cache.db - rebuildable candle cache, tuned for speed over safety
	cacheDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/cache.db",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		universeDB.Close()
		analysisDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	for _, db := range []*database.DB{universeDB, analysisDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
		log.Debug().Str("database", db.Name()).Msg("Database ready")
	}

	return container, nil
}
