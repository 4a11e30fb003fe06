package repository

import (
	"context"
	"time"

	"table_waiter/internal/models"

	"gorm.io/gorm"
)

type SessionRepository interface {
	Create(ctx context.Context, session *models.CustomerSession) error
	GetByID(ctx context.Context, id uint) (*models.CustomerSession, error)
	GetActive(ctx context.Context, restaurantID uint, tableNumber string) (*models.CustomerSession, error)
	UpdateStats(ctx context.Context, id uint, totalOrders int64, totalSpent models.Cents) error
	Close(ctx context.Context, id uint, at time.Time) error
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.CustomerSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) GetByID(ctx context.Context, id uint) (*models.CustomerSession, error) {
	var session models.CustomerSession
	err := r.db.WithContext(ctx).First(&session, id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) GetActive(ctx context.Context, restaurantID uint, tableNumber string) (*models.CustomerSession, error) {
	var session models.CustomerSession
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND table_number = ? AND status = ?", restaurantID, tableNumber, string(models.SessionActive)).
		Order("id ASC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) UpdateStats(ctx context.Context, id uint, totalOrders int64, totalSpent models.Cents) error {
	return r.db.WithContext(ctx).Model(&models.CustomerSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_orders": totalOrders,
			"total_spent":  int64(totalSpent),
			"updated_at":   time.Now(),
		}).Error
}

func (r *sessionRepository) Close(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.CustomerSession{}).
		Where("id = ? AND status = ?", id, string(models.SessionActive)).
		Updates(map[string]interface{}{
			"status":     string(models.SessionClosed),
			"closed_at":  at,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
