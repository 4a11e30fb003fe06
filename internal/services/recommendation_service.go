package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"table_waiter/internal/models"
)

type RankedItem struct {
	Item   models.MenuItem `json:"item"`
	Score  float64         `json:"score"`
	Reason string          `json:"reason"`
}

type RecommendRequest struct {
	CurrentOrder *models.Order
	History      []models.ConversationTurn
	UserMessage  string
	Menu         []models.MenuItem
	Category     string
	Limit        int
}

// Recommender ranks menu items for a table.
type Recommender interface {
	Recommend(ctx context.Context, req RecommendRequest) ([]RankedItem, error)
}

// MenuRecommender ranks by keyword overlap with the diner's words and favours
// categories the table has not ordered yet. Equal scores sort by name.
type MenuRecommender struct{}

func NewMenuRecommender() *MenuRecommender {
	return &MenuRecommender{}
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "i": true, "me": true, "my": true, "we": true, "us": true,
	"you": true, "is": true, "are": true, "and": true, "or": true, "for": true, "of": true, "to": true,
	"with": true, "some": true, "something": true, "what": true, "whats": true, "what's": true, "do": true,
	"have": true, "any": true, "please": true, "can": true, "could": true, "would": true, "like": true,
	"want": true, "recommend": true, "suggest": true, "good": true, "today": true, "it": true, "that": true,
}

const historyTurnsForKeywords = 3

func (r *MenuRecommender) Recommend(ctx context.Context, req RecommendRequest) ([]RankedItem, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 3
	}

	keywords := keywordSet(req.UserMessage)
	used := 0
	for i := len(req.History) - 1; i >= 0 && used < historyTurnsForKeywords; i-- {
		if req.History[i].Role != models.RoleUser {
			continue
		}
		for w := range keywordSet(req.History[i].Text) {
			keywords[w] = true
		}
		used++
	}

	ordered := make(map[uint]bool)
	orderedCategories := make(map[string]bool)
	if req.CurrentOrder != nil {
		for _, line := range req.CurrentOrder.Items {
			ordered[line.MenuItemID] = true
		}
	}
	for _, item := range req.Menu {
		if ordered[item.ID] {
			orderedCategories[strings.ToLower(item.Category)] = true
		}
	}

	candidates := availableItems(req.Menu)
	if req.Category != "" {
		var inCategory []models.MenuItem
		for _, item := range candidates {
			if strings.EqualFold(item.Category, req.Category) {
				inCategory = append(inCategory, item)
			}
		}
		if len(inCategory) > 0 {
			candidates = inCategory
		}
	}

	var ranked []RankedItem
	for _, item := range candidates {
		if ordered[item.ID] {
			continue
		}
		score, reasons := scoreItem(item, keywords)
		if !orderedCategories[strings.ToLower(item.Category)] {
			score += 0.5
			if len(reasons) == 0 {
				reasons = append(reasons, fmt.Sprintf("nothing from %s yet", item.Category))
			}
		}
		ranked = append(ranked, RankedItem{Item: item, Score: score, Reason: strings.Join(reasons, ", ")})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Item.Name < ranked[j].Item.Name
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func scoreItem(item models.MenuItem, keywords map[string]bool) (float64, []string) {
	var score float64
	var reasons []string
	for _, tag := range item.DietaryTags {
		if allKeywords(tokenize(tag), keywords) {
			score += 2
			reasons = append(reasons, tag)
		}
	}
	if allKeywords(tokenize(item.Category), keywords) {
		score += 2
		reasons = append(reasons, item.Category)
	}
	for _, ingredient := range item.Ingredients {
		for _, w := range tokenize(ingredient) {
			if keywords[singular(w)] {
				score++
				reasons = append(reasons, "has "+ingredient)
				break
			}
		}
	}
	for _, w := range tokenize(item.Name) {
		if keywords[singular(w)] {
			score++
		}
	}
	return score, reasons
}

func allKeywords(words []string, keywords map[string]bool) bool {
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !keywords[singular(w)] {
			return false
		}
	}
	return true
}

func keywordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range tokenize(text) {
		if stopwords[w] {
			continue
		}
		set[singular(w)] = true
	}
	return set
}
