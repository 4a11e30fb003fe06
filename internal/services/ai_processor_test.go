package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"table_waiter/internal/logger"
	"table_waiter/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGenerative(client ChatCompleter) *GenerativeDetector {
	return NewGenerativeDetector(client, DefaultDetectionConfig(), logger.Discard())
}

func detectionContext() DetectionContext {
	return DetectionContext{RestaurantID: testRestaurant, SessionID: 1, Menu: testMenu()}
}

func TestGenerativeDetectorParsesFunctionCall(t *testing.T) {
	client := &fakeCompleter{resp: toolCall("Coming right up.", "add_to_order",
		`{"items":[{"name":"caesar salads","quantity":2,"notes":"no croutons"}]}`)}

	res := newGenerative(client).Detect(context.Background(), "two caesar salads, no croutons", detectionContext())
	require.Equal(t, OutcomeAction, res.Outcome, "err: %v", res.Err)

	c := res.Candidate
	assert.Equal(t, models.ActionAddToOrder, c.Kind)
	assert.Equal(t, models.ProvenanceGenerative, c.Provenance)
	assert.Equal(t, 0.95, c.Confidence)

	payload := c.Payload.(*models.AddToOrderPayload)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, uint(1), payload.Items[0].MenuItemID)
	assert.Equal(t, "Caesar Salad", payload.Items[0].Name)
	assert.Equal(t, 2, payload.Items[0].Quantity)
	assert.Equal(t, "no croutons", payload.Items[0].Notes)
}

func TestGenerativeDetectorConfidenceHeuristic(t *testing.T) {
	client := &fakeCompleter{resp: toolCall("Maybe you'd like a pizza?", "add_to_order",
		`{"items":[{"name":"Margherita Pizza"}]}`)}

	res := newGenerative(client).Detect(context.Background(), "pizza i guess", detectionContext())
	require.Equal(t, OutcomeAction, res.Outcome)
	// base only, minus the hedging penalty
	assert.Equal(t, 0.55, res.Confidence)
	assert.Equal(t, 1, res.Candidate.Payload.(*models.AddToOrderPayload).Items[0].Quantity)
}

func TestGenerativeDetectorRejectsBadArguments(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		args string
	}{
		{"unknown function", "delete_restaurant", `{}`},
		{"malformed json", "add_to_order", `{"items": [`},
		{"wrong shape", "add_to_order", `{"items": "two salads"}`},
		{"empty items", "add_to_order", `{"items": []}`},
		{"unknown item", "add_to_order", `{"items":[{"name":"Sushi Platter","quantity":1}]}`},
		{"bad quantity", "add_to_order", `{"items":[{"name":"Lemonade","quantity":0}]}`},
		{"modify without change", "modify_order_item", `{"name":"Lemonade"}`},
		{"clarification without question", "request_clarification", `{"options":["a"]}`},
		{"edit without order", "specific_order_edit", `{"items":[{"name":"Lemonade","quantity":1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeCompleter{resp: toolCall("", tt.fn, tt.args)}
			res := newGenerative(client).Detect(context.Background(), "hi", detectionContext())
			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.Nil(t, res.Candidate)
			assert.ErrorIs(t, res.Err, ErrArgumentValidation)
		})
	}
}

func TestGenerativeDetectorSpecificEditSnapshotsOrder(t *testing.T) {
	dctx := detectionContext()
	dctx.CurrentOrder = &models.Order{ID: 12, Status: models.OrderPending, Items: []models.OrderItem{
		{MenuItemID: 6, ItemName: "Lemonade", Quantity: 2, Price: 400},
	}}
	client := &fakeCompleter{resp: toolCall("", "specific_order_edit",
		`{"items":[{"name":"Lemonade","quantity":1},{"name":"Tiramisu","quantity":1}]}`)}

	res := newGenerative(client).Detect(context.Background(), "make it one lemonade and a tiramisu", dctx)
	require.Equal(t, OutcomeAction, res.Outcome)

	payload := res.Candidate.Payload.(*models.SpecificOrderEditPayload)
	assert.Equal(t, uint(12), payload.OrderID)
	require.Len(t, payload.Before, 1)
	assert.Equal(t, 2, payload.Before[0].Quantity)
	require.Len(t, payload.After, 2)
	assert.Equal(t, "Tiramisu", payload.After[1].Name)
}

func TestGenerativeDetectorTextReplies(t *testing.T) {
	closing := newGenerative(&fakeCompleter{resp: textReply("Thank you, enjoy your meal!")}).
		Detect(context.Background(), "thanks!", detectionContext())
	assert.Equal(t, OutcomeText, closing.Outcome)
	assert.Equal(t, 0.95, closing.Confidence)

	info := newGenerative(&fakeCompleter{resp: textReply("The Caesar Salad comes with parmesan.")}).
		Detect(context.Background(), "what's in the caesar?", detectionContext())
	assert.Equal(t, OutcomeText, info.Outcome)
	assert.Equal(t, 0.9, info.Confidence)
	assert.Equal(t, "The Caesar Salad comes with parmesan.", info.Text)

	empty := newGenerative(&fakeCompleter{resp: textReply("  ")}).
		Detect(context.Background(), "hello", detectionContext())
	assert.Equal(t, OutcomeFailed, empty.Outcome)
}

func TestGenerativeDetectorFailures(t *testing.T) {
	transport := newGenerative(&fakeCompleter{err: errors.New("connection refused")}).
		Detect(context.Background(), "a lemonade", detectionContext())
	assert.Equal(t, OutcomeFailed, transport.Outcome)
	assert.Error(t, transport.Err)

	disabled := newGenerative(nil).Detect(context.Background(), "a lemonade", detectionContext())
	assert.Equal(t, OutcomeFailed, disabled.Outcome)
	assert.ErrorIs(t, disabled.Err, errGenerativeDisabled)

	cfg := DefaultDetectionConfig()
	cfg.GenerativeTimeout = 20 * time.Millisecond
	slow := NewGenerativeDetector(&fakeCompleter{delay: time.Second, resp: textReply("late")}, cfg, logger.Discard())

	start := time.Now()
	res := slow.Detect(context.Background(), "a lemonade", detectionContext())
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGenerativeDetectorBuildsRequest(t *testing.T) {
	client := &fakeCompleter{resp: textReply("Hello!")}
	dctx := detectionContext()
	dctx.History = []models.ConversationTurn{
		{Role: models.RoleUser, Text: "hi"},
		{Role: models.RoleAssistant, Text: "Welcome!"},
	}
	dctx.CurrentOrder = &models.Order{Status: models.OrderPending, Items: []models.OrderItem{{ItemName: "Lemonade", Quantity: 1}}}

	newGenerative(client).Detect(context.Background(), "what's good?", dctx)

	req := client.lastReq
	assert.Len(t, req.Tools, 8)
	assert.Equal(t, "auto", req.ToolChoice)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, `"name":"Caesar Salad"`)
	assert.Contains(t, req.Messages[0].Content, `"price":"$12.99"`)
	assert.Contains(t, req.Messages[0].Content, "Current order (PENDING)")
	assert.Equal(t, "assistant", req.Messages[2].Role)
	assert.Equal(t, "user", req.Messages[3].Role)
	assert.Equal(t, "what's good?", req.Messages[3].Content)
}
