package models

import (
	"errors"
	"fmt"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPreparing OrderStatus = "PREPARING"
	OrderReady     OrderStatus = "READY"
	OrderServed    OrderStatus = "SERVED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// AllOrderStatuses lists every status in lifecycle order.
var AllOrderStatuses = []OrderStatus{OrderPending, OrderPreparing, OrderReady, OrderServed, OrderCancelled}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderPreparing, OrderCancelled},
	OrderPreparing: {OrderReady, OrderCancelled},
	OrderReady:     {OrderServed},
	OrderServed:    {},
	OrderCancelled: {},
}

var ErrInvalidTransition = errors.New("invalid order status transition")

// TransitionError names the status an order was in and the status that was refused.
type TransitionError struct {
	OrderID   uint
	Current   OrderStatus
	Attempted OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition for order %d: %s -> %s", e.OrderID, e.Current, e.Attempted)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// Counted reports whether orders in this status contribute to session totals.
func (s OrderStatus) Counted() bool {
	return s != OrderCancelled
}

// LocksSession reports whether an order in this status freezes the table's existing items.
func (s OrderStatus) LocksSession() bool {
	return s == OrderPreparing || s == OrderReady || s == OrderServed
}

// OrderOperation is a change a diner can ask for against an existing order.
type OrderOperation string

const (
	OpAddItems    OrderOperation = "add_items"
	OpRemoveItems OrderOperation = "remove_items"
	OpModifyItems OrderOperation = "modify_items"
	OpSubmit      OrderOperation = "submit"
	OpCancel      OrderOperation = "cancel"
)

// Modifiability is the outcome of the policy for one (status, operation) pair.
type Modifiability struct {
	Allowed       bool
	RequiresStaff bool
}

// ModifiabilityFor applies the per-status policy: PENDING accepts everything,
// PREPARING only accepts cancellation (flagged for staff), anything later is frozen.
func ModifiabilityFor(status OrderStatus, op OrderOperation) Modifiability {
	switch status {
	case OrderPending:
		return Modifiability{Allowed: true}
	case OrderPreparing:
		if op == OpCancel {
			return Modifiability{Allowed: true, RequiresStaff: true}
		}
		return Modifiability{}
	default:
		return Modifiability{}
	}
}
