package repository

import (
	"context"
	"errors"
	"time"

	"table_waiter/internal/models"

	"gorm.io/gorm"
)

// ErrStaleOrder means the order was no longer in the expected status when a
// conditional write ran.
var ErrStaleOrder = errors.New("order status changed concurrently")

// ItemChanges is a batch of line edits applied atomically to one order.
type ItemChanges struct {
	Create []models.OrderItem
	Update []models.OrderItem
	Delete []uint
}

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uint) (*models.Order, error)
	GetLatestBySession(ctx context.Context, sessionID uint, statuses ...models.OrderStatus) (*models.Order, error)
	ListBySession(ctx context.Context, sessionID uint) ([]models.Order, error)
	ListRecentBySession(ctx context.Context, sessionID uint, limit int, statuses ...models.OrderStatus) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id uint, from, to models.OrderStatus, needsStaffReview bool) error
	MarkSubmitted(ctx context.Context, id uint, expected models.OrderStatus, at time.Time) error
	ApplyItemChanges(ctx context.Context, orderID uint, expected models.OrderStatus, changes ItemChanges) error
	CountedTotalsBySession(ctx context.Context, sessionID uint) (int64, models.Cents, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create inserts the order and its lines in one transaction.
func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepository) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Items", orderItemsByID).First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetLatestBySession(ctx context.Context, sessionID uint, statuses ...models.OrderStatus) (*models.Order, error) {
	var order models.Order
	q := r.db.WithContext(ctx).Preload("Items", orderItemsByID).Where("session_id = ?", sessionID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(statuses))
	}
	err := q.Order("created_at DESC").Order("id DESC").First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) ListBySession(ctx context.Context, sessionID uint) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).Preload("Items", orderItemsByID).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").Order("id ASC").
		Find(&orders).Error
	return orders, err
}

// ListRecentBySession returns the newest orders first, without their lines.
func (r *orderRepository) ListRecentBySession(ctx context.Context, sessionID uint, limit int, statuses ...models.OrderStatus) ([]models.Order, error) {
	var orders []models.Order
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(statuses))
	}
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// UpdateStatus moves the order from -> to only if it is still in from.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uint, from, to models.OrderStatus, needsStaffReview bool) error {
	fields := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now(),
	}
	if needsStaffReview {
		fields["needs_staff_review"] = true
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleOrder
	}
	return nil
}

func (r *orderRepository) MarkSubmitted(ctx context.Context, id uint, expected models.OrderStatus, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, string(expected)).
		Updates(map[string]interface{}{"submitted_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleOrder
	}
	return nil
}

// ApplyItemChanges claims the order row with a conditional write, applies the
// line edits, then stores the total recomputed from the persisted lines.
func (r *orderRepository) ApplyItemChanges(ctx context.Context, orderID uint, expected models.OrderStatus, changes ItemChanges) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", orderID, string(expected)).
			Update("updated_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleOrder
		}

		items := NewOrderItemRepository(tx)
		for _, id := range changes.Delete {
			if err := items.Delete(ctx, id); err != nil {
				return err
			}
		}
		for i := range changes.Update {
			if err := items.UpdateQuantityAndNotes(ctx, &changes.Update[i]); err != nil {
				return err
			}
		}
		for i := range changes.Create {
			item := changes.Create[i]
			item.ID = 0
			item.OrderID = orderID
			if err := items.Create(ctx, &item); err != nil {
				return err
			}
		}

		total, err := items.SumByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		return tx.Model(&models.Order{}).Where("id = ?", orderID).Update("total", int64(total)).Error
	})
}

// CountedTotalsBySession aggregates non-cancelled orders straight from the orders table.
func (r *orderRepository) CountedTotalsBySession(ctx context.Context, sessionID uint) (int64, models.Cents, error) {
	var row struct {
		Count int64
		Total int64
	}
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Select("COUNT(*) AS count, CAST(COALESCE(SUM(total), 0) AS BIGINT) AS total").
		Where("session_id = ? AND status <> ?", sessionID, string(models.OrderCancelled)).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Count, models.Cents(row.Total), nil
}

func orderItemsByID(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func statusStrings(statuses []models.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
