package models

import (
	"time"
)

// MenuItem is owned by the menu admin surface; the ordering core only reads it.
type MenuItem struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	RestaurantID uint      `json:"restaurant_id" gorm:"not null;index"`
	Name         string    `json:"name" gorm:"not null"`
	Description  string    `json:"description" gorm:"type:text"`
	Price        Cents     `json:"price" gorm:"not null"`
	Category     string    `json:"category" gorm:"index"`
	Available    bool      `json:"available" gorm:"not null"`
	DietaryTags  []string  `json:"dietary_tags" gorm:"serializer:json"`
	Ingredients  []string  `json:"ingredients" gorm:"serializer:json"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
