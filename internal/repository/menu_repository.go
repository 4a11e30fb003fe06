package repository

import (
	"context"

	"table_waiter/internal/models"

	"gorm.io/gorm"
)

// MenuRepository is read-mostly; Create exists for seeding.
type MenuRepository interface {
	Create(ctx context.Context, item *models.MenuItem) error
	GetByID(ctx context.Context, restaurantID, id uint) (*models.MenuItem, error)
	GetByIDs(ctx context.Context, restaurantID uint, ids []uint) ([]models.MenuItem, error)
	ListByRestaurant(ctx context.Context, restaurantID uint, availableOnly bool) ([]models.MenuItem, error)
}

type menuRepository struct {
	db *gorm.DB
}

func NewMenuRepository(db *gorm.DB) MenuRepository {
	return &menuRepository{db: db}
}

func (r *menuRepository) Create(ctx context.Context, item *models.MenuItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *menuRepository) GetByID(ctx context.Context, restaurantID, id uint) (*models.MenuItem, error) {
	var item models.MenuItem
	err := r.db.WithContext(ctx).Where("restaurant_id = ?", restaurantID).First(&item, id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *menuRepository) GetByIDs(ctx context.Context, restaurantID uint, ids []uint) ([]models.MenuItem, error) {
	var items []models.MenuItem
	if len(ids) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).Where("restaurant_id = ? AND id IN ?", restaurantID, ids).Find(&items).Error
	return items, err
}

func (r *menuRepository) ListByRestaurant(ctx context.Context, restaurantID uint, availableOnly bool) ([]models.MenuItem, error) {
	var items []models.MenuItem
	q := r.db.WithContext(ctx).Where("restaurant_id = ?", restaurantID)
	if availableOnly {
		q = q.Where("available = ?", true)
	}
	err := q.Order("category ASC").Order("name ASC").Find(&items).Error
	return items, err
}
