package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrPriceImmutable is returned when an update tries to rewrite a captured price.
var ErrPriceImmutable = errors.New("order item price is fixed at order time")

type OrderItem struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	OrderID    uint      `json:"order_id" gorm:"not null;index"`
	MenuItemID uint      `json:"menu_item_id" gorm:"not null"`
	ItemName   string    `json:"item_name" gorm:"not null"`
	Quantity   int       `json:"quantity" gorm:"not null"`
	Price      Cents     `json:"price" gorm:"not null"`
	Notes      string    `json:"notes" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (i OrderItem) LineTotal() Cents {
	return i.Price.Times(i.Quantity)
}

// BeforeUpdate rejects any attempt to change the captured price of a persisted line.
func (i *OrderItem) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("Price") {
		return ErrPriceImmutable
	}
	return nil
}
