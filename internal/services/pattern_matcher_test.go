package services

import (
	"testing"
	"time"

	"table_waiter/internal/migrations"
	"table_waiter/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMenu() []models.MenuItem {
	menu := migrations.DefaultMenu(testRestaurant)
	for i := range menu {
		menu[i].ID = uint(i + 1)
	}
	return menu
}

func TestPatternMatcherCaesarSaladScenario(t *testing.T) {
	c := NewPatternMatcher().Match("give me 2 caesar salads", testMenu(), nil)
	require.NotNil(t, c)

	assert.Equal(t, models.ActionAddToOrder, c.Kind)
	assert.Equal(t, models.ProvenancePattern, c.Provenance)
	assert.GreaterOrEqual(t, c.Confidence, 0.45)
	assert.LessOrEqual(t, c.Confidence, 0.65)

	payload, ok := c.Payload.(*models.AddToOrderPayload)
	require.True(t, ok)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, "Caesar Salad", payload.Items[0].Name)
	assert.Equal(t, 2, payload.Items[0].Quantity)
	assert.Equal(t, models.Cents(1299), payload.Items[0].Price)
}

func TestPatternMatcherQuantityForms(t *testing.T) {
	tests := []struct {
		message string
		item    string
		qty     int
	}{
		{"three lemonades please", "Lemonade", 3},
		{"a couple of tiramisus", "Tiramisu", 2},
		{"3x margherita pizza", "Margherita Pizza", 3},
		{"truffle pasta x2", "Truffle Pasta", 2},
		{"pepperoni pizza x 4", "Pepperoni Pizza", 4},
		{"2 x quinoa power bowls", "Quinoa Power Bowl", 2},
		{`I'll have the "Caesar Salad"`, "Caesar Salad", 1},
		{"one lemonade's enough", "Lemonade", 1},
		{"an order of 200 lemonades", "Lemonade", maxItemQuantity},
	}

	m := NewPatternMatcher()
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			c := m.Match(tt.message, testMenu(), nil)
			require.NotNil(t, c)
			payload, ok := c.Payload.(*models.AddToOrderPayload)
			require.True(t, ok, "kind %s", c.Kind)
			require.Len(t, payload.Items, 1)
			assert.Equal(t, tt.item, payload.Items[0].Name)
			assert.Equal(t, tt.qty, payload.Items[0].Quantity)
		})
	}
}

func TestPatternMatcherPrefersLongestName(t *testing.T) {
	menu := append(testMenu(), models.MenuItem{ID: 99, Name: "Pizza", Category: "Pizza", Price: 900, Available: true})

	c := NewPatternMatcher().Match("add a pepperoni pizza", menu, nil)
	require.NotNil(t, c)
	payload := c.Payload.(*models.AddToOrderPayload)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, "Pepperoni Pizza", payload.Items[0].Name)
}

func TestPatternMatcherSeveralItems(t *testing.T) {
	c := NewPatternMatcher().Match("I want 2 margherita pizzas and a lemonade, and another lemonade", testMenu(), nil)
	require.NotNil(t, c)
	payload := c.Payload.(*models.AddToOrderPayload)
	require.Len(t, payload.Items, 2)
	assert.Equal(t, "Margherita Pizza", payload.Items[0].Name)
	assert.Equal(t, 2, payload.Items[0].Quantity)
	assert.Equal(t, "Lemonade", payload.Items[1].Name)
	assert.Equal(t, 2, payload.Items[1].Quantity)
	assert.Equal(t, 0.65, c.Confidence)
}

func TestPatternMatcherConfidenceBand(t *testing.T) {
	m := NewPatternMatcher()

	itemOnly := m.Match("caesar salad", testMenu(), nil)
	require.NotNil(t, itemOnly)
	assert.Equal(t, 0.5, itemOnly.Confidence)

	verbOnly := m.Match("can I get the tiramisu", testMenu(), nil)
	require.NotNil(t, verbOnly)
	assert.Equal(t, 0.6, verbOnly.Confidence)
}

func TestPatternMatcherKinds(t *testing.T) {
	m := NewPatternMatcher()

	remove := m.Match("please remove the lemonade", testMenu(), nil)
	require.NotNil(t, remove)
	assert.Equal(t, models.ActionRemoveFromOrder, remove.Kind)
	assert.Equal(t, 0, remove.Payload.(*models.RemoveFromOrderPayload).Items[0].Quantity)

	removeSome := m.Match("take off 1 tiramisu", testMenu(), nil)
	require.NotNil(t, removeSome)
	assert.Equal(t, 1, removeSome.Payload.(*models.RemoveFromOrderPayload).Items[0].Quantity)

	modify := m.Match("change the caesar salad to 3 caesar salads", testMenu(), nil)
	require.NotNil(t, modify)
	assert.Equal(t, models.ActionModifyOrderItem, modify.Kind)

	change := m.Match("change the truffle pasta", testMenu(), nil)
	require.NotNil(t, change)
	assert.Equal(t, models.ActionRequestClarification, change.Kind)

	cancel := m.Match("cancel my order", testMenu(), nil)
	require.NotNil(t, cancel)
	assert.Equal(t, models.ActionCancelOrder, cancel.Kind)

	confirm := m.Match("That's all, thanks", testMenu(), nil)
	require.NotNil(t, confirm)
	assert.Equal(t, models.ActionConfirmOrder, confirm.Kind)

	recommend := m.Match("what do you recommend from the desserts?", testMenu(), nil)
	require.NotNil(t, recommend)
	assert.Equal(t, models.ActionRequestRecommendation, recommend.Kind)
	assert.Equal(t, "Desserts", recommend.Payload.(*models.RequestRecommendationPayload).Category)
}

func TestPatternMatcherAnotherOneUsesHistory(t *testing.T) {
	history := []models.ConversationTurn{
		{Role: models.RoleUser, Text: "a lemonade please", Timestamp: time.Now()},
		{Role: models.RoleAssistant, Text: "Shall I add Lemonade to your order?", Timestamp: time.Now()},
	}
	c := NewPatternMatcher().Match("another one", testMenu(), history)
	require.NotNil(t, c)
	payload := c.Payload.(*models.AddToOrderPayload)
	assert.Equal(t, "Lemonade", payload.Items[0].Name)
	assert.Equal(t, 0.55, c.Confidence)
}

func TestPatternMatcherDegradesToClarification(t *testing.T) {
	c := NewPatternMatcher().Match("I'd like to order something", testMenu(), nil)
	require.NotNil(t, c)
	assert.Equal(t, models.ActionRequestClarification, c.Kind)
	assert.Equal(t, 0.45, c.Confidence)
	assert.Equal(t, []string{"Bowls", "Desserts", "Drinks", "Pasta", "Pizza", "Salads"}, c.FallbackOptions)
}

func TestPatternMatcherIgnoresUnavailableItems(t *testing.T) {
	menu := testMenu()
	menu[0].Available = false

	c := NewPatternMatcher().Match("caesar salad", menu, nil)
	assert.Nil(t, c)
}

func TestPatternMatcherSilentOnNoise(t *testing.T) {
	m := NewPatternMatcher()
	inputs := []string{
		"",
		"   ",
		"hello there!",
		"the weather is lovely",
		"\x00\xff\xfe",
		"x x x 99x x99",
		string(make([]byte, 10000)),
		"🍕🍕🍕",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			assert.Nil(t, m.Match(in, testMenu(), nil), "%q", in)
		})
	}
}

func TestPatternMatcherIsFast(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "please add two caesar salads and a lemonade "
	}
	start := time.Now()
	NewPatternMatcher().Match(long, testMenu(), nil)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
