package models

import (
	"time"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "ACTIVE"
	SessionClosed SessionStatus = "CLOSED"
)

// CustomerSession groups one table's orders across a single visit.
// TotalOrders and TotalSpent are derived values; see SessionService.RecomputeSessionStats.
type CustomerSession struct {
	ID           uint          `json:"id" gorm:"primaryKey"`
	RestaurantID uint          `json:"restaurant_id" gorm:"not null;uniqueIndex:idx_active_table_session,where:status = 'ACTIVE'"`
	TableNumber  string        `json:"table_number" gorm:"type:varchar(50);not null;uniqueIndex:idx_active_table_session,where:status = 'ACTIVE'"`
	CustomerName string        `json:"customer_name"`
	Status       SessionStatus `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	StartedAt    time.Time     `json:"started_at" gorm:"not null"`
	ClosedAt     *time.Time    `json:"closed_at"`
	TotalOrders  int64         `json:"total_orders" gorm:"not null;default:0"`
	TotalSpent   Cents         `json:"total_spent" gorm:"not null;default:0"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
