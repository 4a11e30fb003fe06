package models

import (
	"fmt"
	"math"
)

// Cents is a currency amount in minor units. Totals are integer sums, so
// an order total always equals the sum of its lines exactly.
type Cents int64

// CentsFromFloat converts a decimal amount (12.99) to cents, rounding half away from zero.
func CentsFromFloat(amount float64) Cents {
	return Cents(math.Round(amount * 100))
}

// Times returns the line amount for qty units.
func (c Cents) Times(qty int) Cents {
	return c * Cents(qty)
}

func (c Cents) Float() float64 {
	return float64(c) / 100
}

// String formats as "$12.99".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}
