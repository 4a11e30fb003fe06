package migrations

import (
	"context"
	"fmt"

	"table_waiter/internal/database"
	"table_waiter/internal/models"
	"table_waiter/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DemoRestaurantID is the restaurant the seed menu belongs to.
const DemoRestaurantID uint = 1

// RunMigrations migrates the schema and seeds the demo menu when the restaurant has none.
func RunMigrations(db *gorm.DB, log logrus.FieldLogger) error {
	log.Info("Running database migrations...")

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := createDefaultMenu(db, log); err != nil {
		log.WithError(err).Warn("Failed to create default menu")
	}

	log.Info("Database migrations completed successfully")
	return nil
}

func createDefaultMenu(db *gorm.DB, log logrus.FieldLogger) error {
	menuRepo := repository.NewMenuRepository(db)
	ctx := context.Background()

	existing, err := menuRepo.ListByRestaurant(ctx, DemoRestaurantID, false)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.WithField("items", len(existing)).Info("Demo menu already exists")
		return nil
	}

	for _, item := range DefaultMenu(DemoRestaurantID) {
		item := item
		if err := menuRepo.Create(ctx, &item); err != nil {
			return fmt.Errorf("failed to create menu item %s: %w", item.Name, err)
		}
	}
	log.Info("Default menu created")
	return nil
}

// DefaultMenu is a small demo menu used by the seed script and local runs.
func DefaultMenu(restaurantID uint) []models.MenuItem {
	return []models.MenuItem{
		{RestaurantID: restaurantID, Name: "Caesar Salad", Category: "Salads", Price: models.CentsFromFloat(12.99), Available: true,
			Description: "Romaine, parmesan, croutons, classic dressing", DietaryTags: []string{"vegetarian"}, Ingredients: []string{"romaine", "parmesan", "croutons"}},
		{RestaurantID: restaurantID, Name: "Quinoa Power Bowl", Category: "Bowls", Price: models.CentsFromFloat(14.50), Available: true,
			Description: "Quinoa, roasted vegetables, tahini", DietaryTags: []string{"vegan", "gluten-free"}, Ingredients: []string{"quinoa", "chickpeas", "tahini"}},
		{RestaurantID: restaurantID, Name: "Margherita Pizza", Category: "Pizza", Price: models.CentsFromFloat(15.00), Available: true,
			Description: "Tomato, mozzarella, basil", DietaryTags: []string{"vegetarian"}, Ingredients: []string{"tomato", "mozzarella", "basil"}},
		{RestaurantID: restaurantID, Name: "Pepperoni Pizza", Category: "Pizza", Price: models.CentsFromFloat(16.50), Available: true,
			Description: "Tomato, mozzarella, pepperoni", Ingredients: []string{"tomato", "mozzarella", "pepperoni"}},
		{RestaurantID: restaurantID, Name: "Truffle Pasta", Category: "Pasta", Price: models.CentsFromFloat(21.00), Available: true,
			Description: "Tagliatelle, black truffle, parmesan", DietaryTags: []string{"vegetarian"}, Ingredients: []string{"tagliatelle", "truffle", "parmesan"}},
		{RestaurantID: restaurantID, Name: "Lemonade", Category: "Drinks", Price: models.CentsFromFloat(4.00), Available: true,
			Description: "Fresh squeezed", DietaryTags: []string{"vegan"}, Ingredients: []string{"lemon", "sugar"}},
		{RestaurantID: restaurantID, Name: "Tiramisu", Category: "Desserts", Price: models.CentsFromFloat(8.00), Available: true,
			Description: "Espresso, mascarpone, cocoa", DietaryTags: []string{"vegetarian"}, Ingredients: []string{"espresso", "mascarpone", "cocoa"}},
	}
}
