/**
 * @description
 * PostgreSQL connection manager using GORM.
 * Handles connection pooling and schema migration for the quote tables.
 *
 * @dependencies
 * - gorm.io/gorm: ORM library
 * - gorm.io/driver/postgres: Postgres driver
 */

package db

import (
	"time"

	"github.com/tygia-project/backend/internal/config"
	"github.com/tygia-project/backend/internal/logger"
	"github.com/tygia-project/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// ConnectPostgres initializes the PostgreSQL connection
func ConnectPostgres(cfg *config.Config) (*gorm.DB, error) {
	gormLogLevel := gormLogger.Error
	if cfg.Server.Env == "development" {
		gormLogLevel = gormLogger.Info
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DB.URL,
		PreferSimpleProtocol: true, // disable prepared statements to avoid stmtcache collisions in serverless envs
	}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Conservative pool settings for managed Postgres
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logger.Info("✅ Connected to PostgreSQL")
	return db, nil
}

// Migrate creates/updates the quote tables and their unique indexes
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GoldType{},
		&models.Unit{},
		&models.Location{},
		&models.GoldPrice{},
		&models.Currency{},
		&models.CentralExchangeRate{},
		&models.MarketExchangeRate{},
		&models.FinancialIndexMeta{},
		&models.FinancialIndexValue{},
	)
}
