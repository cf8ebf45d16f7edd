package config

import (
	"fmt"
	"time"

	applog "design-studio/internal/log"
	"design-studio/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func ConnectDB(dsn string) error {
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pool settings
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	applog.WithComponent("db").Info("database connected")
	return nil
}

func MigrateAllModels(run bool) error {
	if !run {
		applog.WithComponent("db").Info("skipping migration")
		return nil
	}
	err := DB.AutoMigrate(
		// define all models here
		&models.Design{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	applog.WithComponent("db").Info("database migration completed")
	return nil
}

func CloseDB() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
