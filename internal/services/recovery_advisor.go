package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"table_waiter/internal/models"

	"github.com/sirupsen/logrus"
)

type RecoveryReason string

const (
	ReasonDeclined RecoveryReason = "declined"
	ReasonFailed   RecoveryReason = "failed"
	ReasonConflict RecoveryReason = "conflict"
	ReasonExpired  RecoveryReason = "expired"
)

type RecoveryRequest struct {
	Action       *models.PendingAction
	Reason       RecoveryReason
	Menu         []models.MenuItem
	CurrentOrder *models.Order
	History      []models.ConversationTurn
}

type Recovery struct {
	Message      string
	Alternatives []*Candidate
}

// RecoveryAdvisor turns a rejected action into a message and follow-up
// proposals. The mapping is fixed per action kind.
type RecoveryAdvisor interface {
	Recover(ctx context.Context, req RecoveryRequest) Recovery
}

const maxAlternatives = 3

// ConfirmDeclinedOptions are offered when the diner does not want to send the order yet.
var ConfirmDeclinedOptions = []string{"Add more items", "Remove an item", "Change a quantity", "Start over"}

type recoveryAdvisor struct {
	recommender Recommender
	log         logrus.FieldLogger
}

func NewRecoveryAdvisor(recommender Recommender, log logrus.FieldLogger) RecoveryAdvisor {
	if recommender == nil {
		recommender = NewMenuRecommender()
	}
	return &recoveryAdvisor{recommender: recommender, log: log}
}

func (a *recoveryAdvisor) Recover(ctx context.Context, req RecoveryRequest) Recovery {
	if req.Action == nil || req.Action.Payload == nil {
		return Recovery{Message: "What would you like to do instead?"}
	}
	if req.Reason == ReasonExpired {
		return Recovery{
			Message:      "That request timed out. Do you still want me to do it?",
			Alternatives: []*Candidate{newCandidate(req.Action.Payload, req.Action.Confidence, models.ProvenanceNone)},
		}
	}

	v := &recoveryVisitor{ctx: ctx, advisor: a, req: req}
	if err := models.Dispatch(req.Action.Payload, v); err != nil {
		a.log.WithError(err).WithField("action_id", req.Action.ID).Warn("Recovery advisor could not build alternatives")
	}
	if len(v.alternatives) > maxAlternatives {
		v.alternatives = v.alternatives[:maxAlternatives]
	}
	return Recovery{Message: prefixFor(req.Reason) + v.message, Alternatives: v.alternatives}
}

func prefixFor(reason RecoveryReason) string {
	switch reason {
	case ReasonConflict:
		return "Sorry, your order has already moved on in the kitchen, so I couldn't do that. "
	case ReasonFailed:
		return "Sorry, I couldn't do that. "
	}
	return "No problem. "
}

type recoveryVisitor struct {
	ctx          context.Context
	advisor      *recoveryAdvisor
	req          RecoveryRequest
	message      string
	alternatives []*Candidate
}

func (v *recoveryVisitor) add(payload models.ActionPayload, confidence float64) {
	v.alternatives = append(v.alternatives, newCandidate(payload, confidence, models.ProvenanceNone))
}

func (v *recoveryVisitor) VisitAddToOrder(p *models.AddToOrderPayload) error {
	if len(p.Items) == 0 {
		v.message = "What would you like to order?"
		return nil
	}
	rejected := make(map[uint]bool, len(p.Items))
	for _, item := range p.Items {
		rejected[item.MenuItemID] = true
	}
	target := p.Items[0]
	qty := target.Quantity
	if qty < 1 {
		qty = 1
	}

	var names []string
	for _, s := range similarItems(target, v.req.Menu, rejected, maxAlternatives) {
		v.add(&models.AddToOrderPayload{Items: []models.ActionItem{{
			MenuItemID: s.Item.ID, Name: s.Item.Name, Quantity: qty, Price: s.Item.Price,
		}}}, s.Score)
		names = append(names, s.Item.Name)
	}
	if len(names) == 0 {
		v.message = fmt.Sprintf("I won't add the %s. What would you like instead?", target.Name)
		return nil
	}
	v.message = fmt.Sprintf("Instead of the %s, would you like %s?", target.Name, joinWithOr(names))
	return nil
}

func (v *recoveryVisitor) VisitRemoveFromOrder(p *models.RemoveFromOrderPayload) error {
	v.message = "I'll keep your order as it is."
	if len(p.Items) == 0 || v.req.CurrentOrder == nil {
		return nil
	}
	target := p.Items[0]
	if line := v.req.CurrentOrder.FindItem(target.MenuItemID); line != nil && line.Quantity > 1 {
		v.add(&models.ModifyOrderItemPayload{
			MenuItemID: line.MenuItemID, Name: line.ItemName, Quantity: line.Quantity - 1,
		}, 0.5)
		v.message = fmt.Sprintf("I'll keep the %s. Would you like just one fewer?", line.ItemName)
	}
	return nil
}

func (v *recoveryVisitor) VisitModifyOrderItem(p *models.ModifyOrderItemPayload) error {
	v.message = fmt.Sprintf("I'll leave the %s unchanged. Would you rather remove it, or change something else?", p.Name)
	v.add(&models.RemoveFromOrderPayload{Items: []models.ActionItem{{MenuItemID: p.MenuItemID, Name: p.Name}}}, 0.4)
	v.add(&models.RequestClarificationPayload{
		Question: fmt.Sprintf("What would you like to change about the %s?", p.Name),
		Options:  []string{"Change the quantity", "Add a note", "Remove it"},
	}, 0.4)
	return nil
}

func (v *recoveryVisitor) VisitConfirmOrder(p *models.ConfirmOrderPayload) error {
	v.message = "I'll hold the order for now. What would you like to change?"
	v.add(&models.RequestClarificationPayload{
		Question: "What would you like to do with your order?",
		Options:  append([]string(nil), ConfirmDeclinedOptions...),
	}, 0.5)
	return nil
}

func (v *recoveryVisitor) VisitCancelOrder(p *models.CancelOrderPayload) error {
	v.message = "Your order stays as it is. Shall I send it to the kitchen?"
	if v.req.CurrentOrder != nil && v.req.CurrentOrder.Status == models.OrderPending && v.req.CurrentOrder.SubmittedAt == nil {
		v.add(&models.ConfirmOrderPayload{}, 0.5)
	}
	return nil
}

func (v *recoveryVisitor) VisitRequestRecommendation(p *models.RequestRecommendationPayload) error {
	v.message = "Sure. Which part of the menu are you interested in?"
	v.add(&models.RequestClarificationPayload{
		Question: "Which part of the menu are you interested in?",
		Options:  menuCategories(availableItems(v.req.Menu)),
	}, 0.5)
	return nil
}

// VisitRequestClarification offers the top recommendation when the diner
// does not want to answer the question.
func (v *recoveryVisitor) VisitRequestClarification(p *models.RequestClarificationPayload) error {
	v.message = "Would you like a recommendation instead?"
	v.add(&models.RequestRecommendationPayload{}, 0.5)

	ranked, err := v.advisor.recommender.Recommend(v.ctx, RecommendRequest{
		CurrentOrder: v.req.CurrentOrder,
		History:      v.req.History,
		Menu:         v.req.Menu,
		Limit:        1,
	})
	if err != nil {
		return err
	}
	if len(ranked) > 0 {
		item := ranked[0].Item
		v.add(&models.AddToOrderPayload{Items: []models.ActionItem{{
			MenuItemID: item.ID, Name: item.Name, Quantity: 1, Price: item.Price,
		}}}, 0.4)
		v.message = fmt.Sprintf("Would you like a recommendation instead? The %s is a good pick.", item.Name)
	}
	return nil
}

func (v *recoveryVisitor) VisitSpecificOrderEdit(p *models.SpecificOrderEditPayload) error {
	v.message = "I'll keep your order as it is. Which change did you have in mind?"
	options := []string{"Keep my order as is"}
	for _, item := range p.Before {
		options = append(options, "Change the "+item.Name)
	}
	v.add(&models.RequestClarificationPayload{
		Question: "Which change did you have in mind?",
		Options:  options,
	}, 0.4)
	return nil
}

func (v *recoveryVisitor) VisitNoAction(p *models.NoActionPayload) error {
	v.message = "Let me know if there's anything else I can do."
	return nil
}

type similarItem struct {
	Item  models.MenuItem
	Score float64
}

// similarItems ranks available menu items against target by name tokens,
// name trigrams and category. Ties sort by name.
func similarItems(target models.ActionItem, menu []models.MenuItem, exclude map[uint]bool, limit int) []similarItem {
	targetCategory := ""
	for _, item := range menu {
		if item.ID == target.MenuItemID {
			targetCategory = item.Category
			break
		}
	}
	targetTokens := tokenSet(tokenize(target.Name))
	targetGrams := trigrams(target.Name)

	var scored []similarItem
	for _, item := range availableItems(menu) {
		if item.ID == target.MenuItemID || exclude[item.ID] {
			continue
		}
		score := 0.5*jaccard(targetTokens, tokenSet(tokenize(item.Name))) + 0.2*dice(targetGrams, trigrams(item.Name))
		if targetCategory != "" && strings.EqualFold(item.Category, targetCategory) {
			score += 0.3
		}
		scored = append(scored, similarItem{Item: item, Score: roundConfidence(score)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Item.Name < scored[j].Item.Name
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func joinWithOr(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return "the " + parts[0]
	}
	return "the " + strings.Join(parts[:len(parts)-1], ", the ") + " or the " + parts[len(parts)-1]
}
