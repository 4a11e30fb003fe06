package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrActionNotFound      = errors.New("pending action not found")
	ErrActionExpired       = errors.New("pending action expired")
	ErrActionStateConflict = errors.New("pending action is not in the expected state")
)

type ActionKind string

const (
	ActionAddToOrder            ActionKind = "ADD_TO_ORDER"
	ActionRemoveFromOrder       ActionKind = "REMOVE_FROM_ORDER"
	ActionModifyOrderItem       ActionKind = "MODIFY_ORDER_ITEM"
	ActionConfirmOrder          ActionKind = "CONFIRM_ORDER"
	ActionCancelOrder           ActionKind = "CANCEL_ORDER"
	ActionRequestRecommendation ActionKind = "REQUEST_RECOMMENDATION"
	ActionRequestClarification  ActionKind = "REQUEST_CLARIFICATION"
	ActionSpecificOrderEdit     ActionKind = "SPECIFIC_ORDER_EDIT"
	ActionNone                  ActionKind = "NO_ACTION"
)

// Mutating reports whether executing the kind changes an order.
func (k ActionKind) Mutating() bool {
	switch k {
	case ActionAddToOrder, ActionRemoveFromOrder, ActionModifyOrderItem,
		ActionConfirmOrder, ActionCancelOrder, ActionSpecificOrderEdit:
		return true
	}
	return false
}

type Provenance string

const (
	ProvenanceGenerative Provenance = "generative"
	ProvenancePattern    Provenance = "pattern"
	ProvenanceNone       Provenance = "none"
)

type ActionState string

const (
	ActionProposed  ActionState = "PROPOSED"
	ActionConfirmed ActionState = "CONFIRMED"
	ActionExecuted  ActionState = "EXECUTED"
	ActionDeclined  ActionState = "DECLINED"
	ActionExpired   ActionState = "EXPIRED"
)

// ActionItem is one menu line referenced by an action payload.
type ActionItem struct {
	MenuItemID uint   `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Price      Cents  `json:"price"`
	Notes      string `json:"notes,omitempty"`
}

// PendingAction is a proposed order operation waiting for the diner's answer.
type PendingAction struct {
	ID                  string        `json:"id"`
	SessionID           uint          `json:"session_id"`
	RestaurantID        uint          `json:"restaurant_id"`
	TableNumber         string        `json:"table_number"`
	Kind                ActionKind    `json:"kind"`
	Payload             ActionPayload `json:"-"`
	Description         string        `json:"description"`
	ConfirmationMessage string        `json:"confirmation_message"`
	Confidence          float64       `json:"confidence"`
	Provenance          Provenance    `json:"provenance"`
	State               ActionState   `json:"state"`
	CreatedAt           time.Time     `json:"created_at"`
	ExpiresAt           time.Time     `json:"expires_at"`
	FallbackOptions     []string      `json:"fallback_options,omitempty"`
}

// Expired reports whether a PROPOSED action is past its confirmation window.
func (a *PendingAction) Expired(now time.Time) bool {
	return a.State == ActionProposed && !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

type pendingActionAlias PendingAction

type pendingActionEnvelope struct {
	*pendingActionAlias
	Payload json.RawMessage `json:"payload"`
}

func (a PendingAction) MarshalJSON() ([]byte, error) {
	alias := pendingActionAlias(a)
	env := pendingActionEnvelope{pendingActionAlias: &alias}
	if a.Payload != nil {
		if a.Payload.Kind() != a.Kind {
			return nil, fmt.Errorf("payload kind %s does not match action kind %s", a.Payload.Kind(), a.Kind)
		}
		raw, err := json.Marshal(a.Payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

func (a *PendingAction) UnmarshalJSON(data []byte) error {
	env := pendingActionEnvelope{pendingActionAlias: (*pendingActionAlias)(a)}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	payload, err := DecodePayload(a.Kind, env.Payload)
	if err != nil {
		return err
	}
	a.Payload = payload
	return nil
}
