package main

import (
	"context"
	"fmt"
	"log"

	"table_waiter/internal/config"
	"table_waiter/internal/database"
	"table_waiter/internal/logger"
	"table_waiter/internal/migrations"
	"table_waiter/internal/models"
	"table_waiter/internal/repository"
)

func main() {
	fmt.Println("Initializing database...")

	// Load configuration
	cfg := config.Load()
	logrusLog := logger.New(cfg.LogLevel)

	// Initialize database
	db, err := database.Initialize(cfg.DatabaseURL, logrusLog)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Force recreate all tables
	fmt.Println("Dropping existing tables...")
	err = db.Migrator().DropTable(
		&models.OrderItem{},
		&models.Order{},
		&models.CustomerSession{},
		&models.MenuItem{},
	)
	if err != nil {
		log.Printf("Warning: Error dropping tables: %v", err)
	}

	// Create tables and the demo menu
	fmt.Println("Creating tables...")
	if err := migrations.RunMigrations(db, logrusLog); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	menu, err := repository.NewMenuRepository(db).ListByRestaurant(context.Background(), migrations.DemoRestaurantID, false)
	if err != nil {
		log.Fatal("Failed to read menu:", err)
	}
	fmt.Printf("Demo menu for restaurant %d:\n", migrations.DemoRestaurantID)
	for _, item := range menu {
		fmt.Printf("  #%d %-20s %-10s %s\n", item.ID, item.Name, item.Category, item.Price)
	}

	fmt.Println("Database initialization completed successfully!")
}
