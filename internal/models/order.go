package models

import (
	"time"
)

type Order struct {
	ID               uint             `json:"id" gorm:"primaryKey"`
	RestaurantID     uint             `json:"restaurant_id" gorm:"not null;index"`
	SessionID        uint             `json:"session_id" gorm:"not null;index"`
	TableNumber      string           `json:"table_number" gorm:"type:varchar(50);not null"`
	Items            []OrderItem      `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Total            Cents            `json:"total" gorm:"not null;default:0"`
	Status           OrderStatus      `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	Notes            string           `json:"notes" gorm:"type:text"`
	NeedsStaffReview bool             `json:"needs_staff_review" gorm:"default:false"`
	SubmittedAt      *time.Time       `json:"submitted_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	Session          *CustomerSession `json:"session,omitempty" gorm:"-"`
}

// ComputeTotal sums price-at-time × quantity over the order's lines.
func (o *Order) ComputeTotal() Cents {
	var total Cents
	for _, item := range o.Items {
		total += item.LineTotal()
	}
	return total
}

// FindItem returns the first line for the given menu item.
func (o *Order) FindItem(menuItemID uint) *OrderItem {
	for i := range o.Items {
		if o.Items[i].MenuItemID == menuItemID {
			return &o.Items[i]
		}
	}
	return nil
}
