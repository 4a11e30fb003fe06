package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"table_waiter/internal/models"
	"table_waiter/internal/repository"
)

// ExecutionResult is what running an action produced.
type ExecutionResult struct {
	Order           *models.Order `json:"order,omitempty"`
	Message         string        `json:"message"`
	Recommendations []RankedItem  `json:"recommendations,omitempty"`
	Question        string        `json:"question,omitempty"`
	Options         []string      `json:"options,omitempty"`
}

// ActionExecutor applies an action against the table's orders.
type ActionExecutor interface {
	Execute(ctx context.Context, action *models.PendingAction) (*ExecutionResult, error)
}

type actionExecutor struct {
	orders        OrderService
	menuRepo      repository.MenuRepository
	conversations ConversationStore
	recommender   Recommender
}

func NewActionExecutor(orders OrderService, menuRepo repository.MenuRepository, conversations ConversationStore, recommender Recommender) ActionExecutor {
	if recommender == nil {
		recommender = NewMenuRecommender()
	}
	return &actionExecutor{orders: orders, menuRepo: menuRepo, conversations: conversations, recommender: recommender}
}

func (e *actionExecutor) Execute(ctx context.Context, action *models.PendingAction) (*ExecutionResult, error) {
	if action == nil {
		return nil, fmt.Errorf("nil action")
	}
	v := &executionVisitor{ctx: ctx, e: e, action: action, result: &ExecutionResult{}}
	if err := models.Dispatch(action.Payload, v); err != nil {
		return nil, err
	}
	return v.result, nil
}

type executionVisitor struct {
	ctx    context.Context
	e      *actionExecutor
	action *models.PendingAction
	result *ExecutionResult
}

func (v *executionVisitor) current() (*models.Order, error) {
	return v.e.orders.CurrentOrder(v.ctx, v.action.SessionID)
}

func (v *executionVisitor) done(order *models.Order, message string) error {
	v.result.Order = order
	v.result.Message = message
	if order != nil {
		v.result.Message += fmt.Sprintf(" Your order total is %s.", order.Total)
	}
	return nil
}

func (v *executionVisitor) VisitAddToOrder(p *models.AddToOrderPayload) error {
	order, err := v.e.orders.AddItems(v.ctx, v.action.SessionID, inputsFrom(p.Items, 1))
	if err != nil {
		return err
	}
	return v.done(order, fmt.Sprintf("Added %s.", formatItems(p.Items)))
}

func (v *executionVisitor) VisitRemoveFromOrder(p *models.RemoveFromOrderPayload) error {
	order, err := v.current()
	if err != nil {
		return err
	}
	order, err = v.e.orders.RemoveItems(v.ctx, order.ID, inputsFrom(p.Items, 0))
	if err != nil {
		return err
	}
	if order.Status == models.OrderCancelled {
		v.result.Order = order
		v.result.Message = "Removed. Your order is now empty."
		return nil
	}
	return v.done(order, fmt.Sprintf("Removed %s.", formatItems(p.Items)))
}

func (v *executionVisitor) VisitModifyOrderItem(p *models.ModifyOrderItemPayload) error {
	order, err := v.current()
	if err != nil {
		return err
	}
	order, err = v.e.orders.ModifyItem(v.ctx, order.ID, OrderItemInput{MenuItemID: p.MenuItemID, Quantity: p.Quantity, Notes: p.Notes})
	if err != nil {
		return err
	}
	return v.done(order, fmt.Sprintf("Updated the %s.", p.Name))
}

func (v *executionVisitor) VisitConfirmOrder(p *models.ConfirmOrderPayload) error {
	order, err := v.current()
	if err != nil {
		return err
	}
	order, err = v.e.orders.SubmitOrder(v.ctx, order.ID)
	if err != nil {
		return err
	}
	return v.done(order, "Your order is on its way to the kitchen.")
}

func (v *executionVisitor) VisitCancelOrder(p *models.CancelOrderPayload) error {
	order, err := v.current()
	if err != nil {
		return err
	}
	order, err = v.e.orders.CancelOrder(v.ctx, order.ID, p.Reason)
	if err != nil {
		return err
	}
	v.result.Order = order
	v.result.Message = "Your order has been cancelled."
	if order.NeedsStaffReview {
		v.result.Message = "The kitchen had already started, so a member of staff will confirm the cancellation."
	}
	return nil
}

func (v *executionVisitor) VisitRequestRecommendation(p *models.RequestRecommendationPayload) error {
	menu, err := v.e.menuRepo.ListByRestaurant(v.ctx, v.action.RestaurantID, true)
	if err != nil {
		return fmt.Errorf("failed to load menu: %w", err)
	}
	var history []models.ConversationTurn
	if v.e.conversations != nil {
		// history only sharpens the ranking
		history, _ = v.e.conversations.RecentTurns(v.ctx, v.action.SessionID)
	}
	order, err := v.current()
	if err != nil && !errors.Is(err, ErrNoOpenOrder) {
		return err
	}

	ranked, err := v.e.recommender.Recommend(v.ctx, RecommendRequest{
		CurrentOrder: order,
		History:      history,
		UserMessage:  p.Preferences,
		Menu:         menu,
		Category:     p.Category,
	})
	if err != nil {
		return err
	}
	v.result.Recommendations = ranked
	if len(ranked) == 0 {
		v.result.Message = "I don't have anything to recommend right now."
		return nil
	}
	lines := make([]string, 0, len(ranked))
	for _, r := range ranked {
		lines = append(lines, fmt.Sprintf("%s (%s)", r.Item.Name, r.Item.Price))
	}
	v.result.Message = "I'd recommend: " + strings.Join(lines, ", ") + "."
	return nil
}

func (v *executionVisitor) VisitRequestClarification(p *models.RequestClarificationPayload) error {
	v.result.Question = p.Question
	v.result.Options = p.Options
	v.result.Message = p.Question
	if len(p.Options) > 0 {
		v.result.Message += " (" + strings.Join(p.Options, " / ") + ")"
	}
	return nil
}

func (v *executionVisitor) VisitSpecificOrderEdit(p *models.SpecificOrderEditPayload) error {
	order, err := v.e.orders.ReplaceItems(v.ctx, p.OrderID, p.Before, inputsFrom(p.After, 1))
	if err != nil {
		return err
	}
	return v.done(order, fmt.Sprintf("Your order is now %s.", formatItems(p.After)))
}

func (v *executionVisitor) VisitNoAction(p *models.NoActionPayload) error {
	return nil
}

func inputsFrom(items []models.ActionItem, defaultQuantity int) []OrderItemInput {
	inputs := make([]OrderItemInput, 0, len(items))
	for _, item := range items {
		qty := item.Quantity
		if qty <= 0 {
			qty = defaultQuantity
		}
		inputs = append(inputs, OrderItemInput{MenuItemID: item.MenuItemID, Quantity: qty, Notes: item.Notes})
	}
	return inputs
}
