package repository

import (
	"context"

	"table_waiter/internal/models"

	"gorm.io/gorm"
)

type OrderItemRepository interface {
	Create(ctx context.Context, orderItem *models.OrderItem) error
	GetByOrderID(ctx context.Context, orderID uint) ([]models.OrderItem, error)
	UpdateQuantityAndNotes(ctx context.Context, orderItem *models.OrderItem) error
	Delete(ctx context.Context, id uint) error
	SumByOrderID(ctx context.Context, orderID uint) (models.Cents, error)
}

type orderItemRepository struct {
	db *gorm.DB
}

func NewOrderItemRepository(db *gorm.DB) OrderItemRepository {
	return &orderItemRepository{db: db}
}

func (r *orderItemRepository) Create(ctx context.Context, orderItem *models.OrderItem) error {
	return r.db.WithContext(ctx).Create(orderItem).Error
}

func (r *orderItemRepository) GetByOrderID(ctx context.Context, orderID uint) ([]models.OrderItem, error) {
	var orderItems []models.OrderItem
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&orderItems).Error
	if err != nil {
		return nil, err
	}
	return orderItems, nil
}

// UpdateQuantityAndNotes never writes the price column.
func (r *orderItemRepository) UpdateQuantityAndNotes(ctx context.Context, orderItem *models.OrderItem) error {
	return r.db.WithContext(ctx).Model(&models.OrderItem{ID: orderItem.ID}).
		Updates(map[string]interface{}{
			"quantity": orderItem.Quantity,
			"notes":    orderItem.Notes,
		}).Error
}

func (r *orderItemRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.OrderItem{}, id).Error
}

func (r *orderItemRepository) SumByOrderID(ctx context.Context, orderID uint) (models.Cents, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.OrderItem{}).
		Select("CAST(COALESCE(SUM(price * quantity), 0) AS BIGINT)").
		Where("order_id = ?", orderID).
		Scan(&total).Error
	return models.Cents(total), err
}
