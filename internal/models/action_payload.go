package models

import (
	"encoding/json"
	"fmt"
)

// ActionPayload is the closed set of kind-specific action bodies. The
// unexported method seals it to this package; Dispatch routes each payload
// to the matching ActionVisitor method, so a new kind must be handled by every
// visitor before the module compiles again.
type ActionPayload interface {
	Kind() ActionKind
	accept(v ActionVisitor) error
}

// ActionVisitor handles every action kind.
type ActionVisitor interface {
	VisitAddToOrder(p *AddToOrderPayload) error
	VisitRemoveFromOrder(p *RemoveFromOrderPayload) error
	VisitModifyOrderItem(p *ModifyOrderItemPayload) error
	VisitConfirmOrder(p *ConfirmOrderPayload) error
	VisitCancelOrder(p *CancelOrderPayload) error
	VisitRequestRecommendation(p *RequestRecommendationPayload) error
	VisitRequestClarification(p *RequestClarificationPayload) error
	VisitSpecificOrderEdit(p *SpecificOrderEditPayload) error
	VisitNoAction(p *NoActionPayload) error
}

func Dispatch(p ActionPayload, v ActionVisitor) error {
	if p == nil {
		return fmt.Errorf("nil action payload")
	}
	return p.accept(v)
}

type AddToOrderPayload struct {
	Items []ActionItem `json:"items"`
}

type RemoveFromOrderPayload struct {
	Items []ActionItem `json:"items"`
}

// ModifyOrderItemPayload changes quantity and/or notes of one line. Zero
// Quantity leaves the quantity alone.
type ModifyOrderItemPayload struct {
	MenuItemID uint   `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type ConfirmOrderPayload struct{}

type CancelOrderPayload struct {
	Reason string `json:"reason,omitempty"`
}

type RequestRecommendationPayload struct {
	Preferences string `json:"preferences,omitempty"`
	Category    string `json:"category,omitempty"`
}

type RequestClarificationPayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

// SpecificOrderEditPayload replaces the lines of one order; Before is the
// snapshot the diner saw when the edit was proposed.
type SpecificOrderEditPayload struct {
	OrderID uint         `json:"order_id"`
	Before  []ActionItem `json:"before"`
	After   []ActionItem `json:"after"`
}

type NoActionPayload struct{}

func (*AddToOrderPayload) Kind() ActionKind            { return ActionAddToOrder }
func (*RemoveFromOrderPayload) Kind() ActionKind       { return ActionRemoveFromOrder }
func (*ModifyOrderItemPayload) Kind() ActionKind       { return ActionModifyOrderItem }
func (*ConfirmOrderPayload) Kind() ActionKind          { return ActionConfirmOrder }
func (*CancelOrderPayload) Kind() ActionKind           { return ActionCancelOrder }
func (*RequestRecommendationPayload) Kind() ActionKind { return ActionRequestRecommendation }
func (*RequestClarificationPayload) Kind() ActionKind  { return ActionRequestClarification }
func (*SpecificOrderEditPayload) Kind() ActionKind     { return ActionSpecificOrderEdit }
func (*NoActionPayload) Kind() ActionKind              { return ActionNone }

func (p *AddToOrderPayload) accept(v ActionVisitor) error      { return v.VisitAddToOrder(p) }
func (p *RemoveFromOrderPayload) accept(v ActionVisitor) error { return v.VisitRemoveFromOrder(p) }
func (p *ModifyOrderItemPayload) accept(v ActionVisitor) error { return v.VisitModifyOrderItem(p) }
func (p *ConfirmOrderPayload) accept(v ActionVisitor) error    { return v.VisitConfirmOrder(p) }
func (p *CancelOrderPayload) accept(v ActionVisitor) error     { return v.VisitCancelOrder(p) }
func (p *RequestRecommendationPayload) accept(v ActionVisitor) error {
	return v.VisitRequestRecommendation(p)
}
func (p *RequestClarificationPayload) accept(v ActionVisitor) error {
	return v.VisitRequestClarification(p)
}
func (p *SpecificOrderEditPayload) accept(v ActionVisitor) error { return v.VisitSpecificOrderEdit(p) }
func (p *NoActionPayload) accept(v ActionVisitor) error          { return v.VisitNoAction(p) }

// NewPayload returns an empty payload for kind.
func NewPayload(kind ActionKind) (ActionPayload, error) {
	switch kind {
	case ActionAddToOrder:
		return &AddToOrderPayload{}, nil
	case ActionRemoveFromOrder:
		return &RemoveFromOrderPayload{}, nil
	case ActionModifyOrderItem:
		return &ModifyOrderItemPayload{}, nil
	case ActionConfirmOrder:
		return &ConfirmOrderPayload{}, nil
	case ActionCancelOrder:
		return &CancelOrderPayload{}, nil
	case ActionRequestRecommendation:
		return &RequestRecommendationPayload{}, nil
	case ActionRequestClarification:
		return &RequestClarificationPayload{}, nil
	case ActionSpecificOrderEdit:
		return &SpecificOrderEditPayload{}, nil
	case ActionNone:
		return &NoActionPayload{}, nil
	}
	return nil, fmt.Errorf("unknown action kind %q", kind)
}

// DecodePayload decodes raw JSON into the payload type for kind.
func DecodePayload(kind ActionKind, raw json.RawMessage) (ActionPayload, error) {
	payload, err := NewPayload(kind)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return payload, nil
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return payload, nil
}
