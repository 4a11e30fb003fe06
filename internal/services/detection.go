package services

import (
	"fmt"
	"math"
	"strings"
	"time"

	"table_waiter/internal/models"
)

// DetectionConfig holds the tunable thresholds of the detection pipeline.
type DetectionConfig struct {
	ConfidenceFloor          float64
	SafeAutoThreshold        float64
	FallbackCeiling          float64
	GenerativeBaseConfidence float64
	NoActionConfidence       float64
	GenerativeTimeout        time.Duration
}

func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		ConfidenceFloor:          0.5,
		SafeAutoThreshold:        0.8,
		FallbackCeiling:          0.75,
		GenerativeBaseConfidence: 0.75,
		NoActionConfidence:       0.9,
		GenerativeTimeout:        8 * time.Second,
	}
}

// Candidate is a detected action before it is stored or executed.
type Candidate struct {
	Kind                models.ActionKind
	Payload             models.ActionPayload
	Description         string
	ConfirmationMessage string
	Confidence          float64
	Provenance          models.Provenance
	FallbackOptions     []string
}

// newCandidate fills in the human-readable texts for payload.
func newCandidate(payload models.ActionPayload, confidence float64, provenance models.Provenance) *Candidate {
	d := &describer{}
	_ = models.Dispatch(payload, d)
	return &Candidate{
		Kind:                payload.Kind(),
		Payload:             payload,
		Description:         d.description,
		ConfirmationMessage: d.confirmation,
		Confidence:          roundConfidence(confidence),
		Provenance:          provenance,
		FallbackOptions:     d.options,
	}
}

// DetectionContext is everything a detector may look at besides the message.
type DetectionContext struct {
	RestaurantID uint
	SessionID    uint
	Menu         []models.MenuItem
	History      []models.ConversationTurn
	CurrentOrder *models.Order
}

type DetectionResult struct {
	Action       *Candidate
	Confidence   float64
	UsedFallback bool
	Reasoning    string
	// Reply is the generative service's text, if it produced one.
	Reply string
}

func roundConfidence(c float64) float64 {
	c = math.Max(0, math.Min(1, c))
	return math.Round(c*100) / 100
}

type describer struct {
	description  string
	confirmation string
	options      []string
}

func (d *describer) VisitAddToOrder(p *models.AddToOrderPayload) error {
	d.description = "Add " + formatItems(p.Items)
	d.confirmation = fmt.Sprintf("Shall I add %s to your order?", formatItems(p.Items))
	return nil
}

func (d *describer) VisitRemoveFromOrder(p *models.RemoveFromOrderPayload) error {
	d.description = "Remove " + formatItems(p.Items)
	d.confirmation = fmt.Sprintf("Shall I remove %s from your order?", formatItems(p.Items))
	return nil
}

func (d *describer) VisitModifyOrderItem(p *models.ModifyOrderItemPayload) error {
	var changes []string
	if p.Quantity > 0 {
		changes = append(changes, fmt.Sprintf("quantity to %d", p.Quantity))
	}
	if p.Notes != "" {
		changes = append(changes, fmt.Sprintf("note %q", p.Notes))
	}
	d.description = fmt.Sprintf("Change %s: %s", p.Name, strings.Join(changes, ", "))
	d.confirmation = fmt.Sprintf("Shall I change the %s (%s)?", p.Name, strings.Join(changes, ", "))
	return nil
}

func (d *describer) VisitConfirmOrder(p *models.ConfirmOrderPayload) error {
	d.description = "Send the order to the kitchen"
	d.confirmation = "Shall I send your order to the kitchen?"
	return nil
}

func (d *describer) VisitCancelOrder(p *models.CancelOrderPayload) error {
	d.description = "Cancel the current order"
	d.confirmation = "Are you sure you want to cancel your order?"
	return nil
}

func (d *describer) VisitRequestRecommendation(p *models.RequestRecommendationPayload) error {
	d.description = "Recommend dishes"
	if p.Category != "" {
		d.description = "Recommend " + p.Category
	}
	d.confirmation = "Would you like some recommendations?"
	return nil
}

func (d *describer) VisitRequestClarification(p *models.RequestClarificationPayload) error {
	d.description = "Ask for clarification"
	d.confirmation = p.Question
	d.options = p.Options
	return nil
}

func (d *describer) VisitSpecificOrderEdit(p *models.SpecificOrderEditPayload) error {
	d.description = fmt.Sprintf("Change order %d to %s", p.OrderID, formatItems(p.After))
	d.confirmation = fmt.Sprintf("Shall I change your order to %s?", formatItems(p.After))
	return nil
}

func (d *describer) VisitNoAction(p *models.NoActionPayload) error {
	d.description = "No action"
	return nil
}

func formatItems(items []models.ActionItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item.Quantity > 0 {
			parts = append(parts, fmt.Sprintf("%d x %s", item.Quantity, item.Name))
		} else {
			parts = append(parts, item.Name)
		}
	}
	return joinWithAnd(parts)
}

func joinWithAnd(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}
