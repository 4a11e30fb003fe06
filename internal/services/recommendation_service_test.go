package services

import (
	"context"
	"testing"

	"table_waiter/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankedNames(items []RankedItem) []string {
	names := make([]string, 0, len(items))
	for _, r := range items {
		names = append(names, r.Item.Name)
	}
	return names
}

func TestMenuRecommenderMatchesDietaryTags(t *testing.T) {
	ranked, err := NewMenuRecommender().Recommend(context.Background(), RecommendRequest{
		Menu:        testMenu(),
		UserMessage: "something vegan please",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Lemonade", "Quinoa Power Bowl", "Caesar Salad"}, rankedNames(ranked))
	assert.Equal(t, 2.5, ranked[0].Score)
	assert.Contains(t, ranked[0].Reason, "vegan")

	glutenFree, err := NewMenuRecommender().Recommend(context.Background(), RecommendRequest{
		Menu:        testMenu(),
		UserMessage: "anything gluten free?",
		Limit:       1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Quinoa Power Bowl"}, rankedNames(glutenFree))
}

func TestMenuRecommenderSkipsOrderedItems(t *testing.T) {
	menu := testMenu()
	order := &models.Order{Items: []models.OrderItem{{MenuItemID: menu[2].ID, ItemName: menu[2].Name, Quantity: 1}}}

	ranked, err := NewMenuRecommender().Recommend(context.Background(), RecommendRequest{
		Menu:         menu,
		CurrentOrder: order,
		Limit:        10,
	})
	require.NoError(t, err)
	names := rankedNames(ranked)
	assert.NotContains(t, names, "Margherita Pizza")
	// pizza is already on the table, so the other pizza ranks last
	assert.Equal(t, "Pepperoni Pizza", names[len(names)-1])
	assert.Len(t, names, 6)
}

func TestMenuRecommenderCategoryFilter(t *testing.T) {
	desserts, err := NewMenuRecommender().Recommend(context.Background(), RecommendRequest{
		Menu:     testMenu(),
		Category: "desserts",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tiramisu"}, rankedNames(desserts))

	unknown, err := NewMenuRecommender().Recommend(context.Background(), RecommendRequest{
		Menu:     testMenu(),
		Category: "Sushi",
	})
	require.NoError(t, err)
	assert.Len(t, unknown, 3)
}

func TestMenuRecommenderUsesRecentHistory(t *testing.T) {
	history := []models.ConversationTurn{
		{Role: models.RoleUser, Text: "I love mozzarella"},
		{Role: models.RoleAssistant, Text: "Noted!"},
	}
	ranked, err := NewMenuRecommender().Recommend(context.Background(), RecommendRequest{
		Menu:        testMenu(),
		History:     history,
		UserMessage: "what do you suggest?",
		Limit:       2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Margherita Pizza", "Pepperoni Pizza"}, rankedNames(ranked))
	assert.Equal(t, "has mozzarella", ranked[0].Reason)
}

func TestMenuRecommenderIsDeterministic(t *testing.T) {
	req := RecommendRequest{Menu: testMenu(), UserMessage: "vegetarian pasta"}
	first, err := NewMenuRecommender().Recommend(context.Background(), req)
	require.NoError(t, err)
	second, err := NewMenuRecommender().Recommend(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "Truffle Pasta", first[0].Item.Name)
}

func TestMenuRecommenderSkipsUnavailableItems(t *testing.T) {
	menu := testMenu()
	menu[6].Available = false

	ranked, err := NewMenuRecommender().Recommend(context.Background(), RecommendRequest{Menu: menu, Category: "Desserts"})
	require.NoError(t, err)
	assert.NotContains(t, rankedNames(ranked), "Tiramisu")
}
