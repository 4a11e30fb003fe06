package services

import (
	"errors"
	"fmt"

	"table_waiter/internal/models"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionClosed           = errors.New("session is closed")
	ErrNoOpenOrder             = errors.New("no open order for this table")
	ErrInvalidOrderItems       = errors.New("invalid order items")
	ErrMenuItemUnavailable     = errors.New("menu item is not available")
	ErrItemNotInOrder          = errors.New("item is not part of the order")
	ErrUnknownStatus           = errors.New("unknown order status")
	ErrOrderNotModifiable      = errors.New("order can no longer be modified")
	ErrConcurrentModification  = errors.New("order changed while the request was in flight")
	ErrArgumentValidation      = errors.New("action arguments failed validation")
	ErrInvalidDetectionContext = errors.New("invalid detection context")
	ErrEmptyMessage            = errors.New("message is empty")

	ErrActionNotFound      = models.ErrActionNotFound
	ErrActionExpired       = models.ErrActionExpired
	ErrActionStateConflict = models.ErrActionStateConflict
)

// ModificationError is returned when the modifiability policy refuses an
// operation on an order.
type ModificationError struct {
	OrderID       uint
	Status        models.OrderStatus
	Operation     models.OrderOperation
	SessionLocked bool
}

func (e *ModificationError) Error() string {
	if e.SessionLocked {
		return fmt.Sprintf("order %d: %s not allowed, the table already has an order in the kitchen", e.OrderID, e.Operation)
	}
	return fmt.Sprintf("order %d: %s not allowed while %s", e.OrderID, e.Operation, e.Status)
}

func (e *ModificationError) Is(target error) bool {
	return target == ErrOrderNotModifiable
}

// IsConflict reports whether err means the order moved on since the action
// was proposed, as opposed to an infrastructure failure.
func IsConflict(err error) bool {
	return errors.Is(err, ErrOrderNotModifiable) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, models.ErrInvalidTransition) ||
		errors.Is(err, ErrNoOpenOrder) ||
		errors.Is(err, ErrItemNotInOrder) ||
		errors.Is(err, ErrMenuItemUnavailable) ||
		errors.Is(err, ErrInvalidOrderItems) ||
		errors.Is(err, ErrSessionClosed)
}
