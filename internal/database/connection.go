package database

import (
	"fmt"

	"table_waiter/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Initialize(databaseURL string, log logrus.FieldLogger) (*gorm.DB, error) {
	// Configure GORM
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(databaseURL), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("Database connected")
	return db, nil
}

// AutoMigrate creates or updates every table the ordering core owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MenuItem{},
		&models.CustomerSession{},
		&models.Order{},
		&models.OrderItem{},
	)
}
