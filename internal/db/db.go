package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/config"
	"github.com/Windi-Fikriyansyah/geojoki/internal/logger"
	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
)

func Connect(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{
		Logger:         logger.NewGormLogger(log, logger.GormLevel(cfg.DBLogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return gdb, nil
}

// spatial DDL that AutoMigrate cannot express
var postgisDDL = []string{
	`CREATE INDEX IF NOT EXISTS idx_users_location_gist ON users USING GIST (location)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_location_gist ON jobs USING GIST (location)`,
	`CREATE INDEX IF NOT EXISTS idx_service_areas_center_gist ON service_areas USING GIST (center)`,
	`CREATE INDEX IF NOT EXISTS idx_saved_locations_location_gist ON saved_locations USING GIST (location)`,
}

// Migrate creates or updates the schema. On postgres it also enables PostGIS
// and builds the spatial indexes.
func Migrate(gdb *gorm.DB) error {
	isPostgres := gdb.Dialector.Name() == "postgres"

	if isPostgres {
		if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS postgis`).Error; err != nil {
			return fmt.Errorf("enable postgis: %w", err)
		}
	}

	if err := gdb.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	if !isPostgres {
		return nil
	}
	for _, stmt := range postgisDDL {
		if err := gdb.Exec(stmt).Error; err != nil {
			return fmt.Errorf("spatial index: %w", err)
		}
	}
	return nil
}
