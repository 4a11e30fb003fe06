package services

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"table_waiter/internal/models"
)

// PatternConfidence is the fixed confidence band of the pattern matcher.
type PatternConfidence struct {
	VerbAndQuantity float64
	VerbOrQuantity  float64
	ItemOnly        float64
	FromHistory     float64
	Phrase          float64
	Clarification   float64
}

func DefaultPatternConfidence() PatternConfidence {
	return PatternConfidence{
		VerbAndQuantity: 0.65,
		VerbOrQuantity:  0.6,
		ItemOnly:        0.5,
		FromHistory:     0.55,
		Phrase:          0.6,
		Clarification:   0.45,
	}
}

// maxMessageRunes bounds the work done on a single message.
const maxMessageRunes = 2000

var (
	numberWords = map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
		"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
		"a": 1, "an": 1, "single": 1, "couple": 2, "pair": 2,
	}
	timesPrefix = regexp.MustCompile(`^(\d{1,2})x$`)
	timesSuffix = regexp.MustCompile(`^x(\d{1,2})$`)

	addPhrases    = []string{"add", "want", "like", "get", "have", "order", "bring", "give", "take", "need", "grab", "plus", "also", "ill have", "can i get"}
	removePhrases = []string{"remove", "delete", "drop", "take off", "take out", "get rid of", "dont want", "no longer want", "minus"}
	cancelPhrases = []string{"cancel", "scrap", "forget"}
	changePhrases = []string{"change", "modify", "make it", "make that", "switch", "update", "instead"}
	confirmPhrases = []string{
		"confirm", "thats all", "that is all", "thats it", "that is it", "place the order", "place my order",
		"send it", "send the order", "submit", "go ahead", "finalize", "im done ordering",
	}
	recommendPhrases = []string{"recommend", "suggest", "whats good", "what is good", "popular", "specials", "any ideas", "what should i"}
	anotherPhrases   = []string{"another", "one more", "same again", "again"}
	orderVocabulary  = []string{"order", "menu", "hungry", "eat", "drink", "food", "dish", "something"}
	wholeOrderWords  = []string{"order", "everything", "all of it", "whole thing"}
)

// PatternMatcher is the deterministic detector. It only looks at menu names,
// quantity words and action verbs, so its confidence stays in a low band.
type PatternMatcher struct {
	conf PatternConfidence
}

func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{conf: DefaultPatternConfidence()}
}

type itemMatch struct {
	item     models.MenuItem
	start    int
	end      int
	quantity int
	explicit bool
}

// Match returns a candidate action or nil. It never panics on odd input.
func (m *PatternMatcher) Match(message string, menu []models.MenuItem, history []models.ConversationTurn) *Candidate {
	if r := []rune(message); len(r) > maxMessageRunes {
		message = string(r[:maxMessageRunes])
	}
	words := tokenize(message)
	if len(words) == 0 {
		return nil
	}
	plain := " " + strings.ReplaceAll(strings.Join(words, " "), "'", "") + " "
	menu = availableItems(menu)
	matches := findItems(words, menu)

	has := func(phrases []string) bool { return hasPhrase(plain, phrases) }

	if len(matches) > 0 {
		switch {
		case has(removePhrases) || has(cancelPhrases):
			return newCandidate(&models.RemoveFromOrderPayload{Items: actionItems(matches, false)}, m.conf.VerbOrQuantity, models.ProvenancePattern)
		case has(changePhrases):
			return m.change(matches)
		}
		confidence := m.conf.ItemOnly
		verb, qty := has(addPhrases), anyExplicit(matches)
		switch {
		case verb && qty:
			confidence = m.conf.VerbAndQuantity
		case verb || qty:
			confidence = m.conf.VerbOrQuantity
		}
		return newCandidate(&models.AddToOrderPayload{Items: actionItems(matches, true)}, confidence, models.ProvenancePattern)
	}

	switch {
	case has(cancelPhrases) && has(wholeOrderWords):
		return newCandidate(&models.CancelOrderPayload{}, m.conf.Phrase, models.ProvenancePattern)
	case has(confirmPhrases):
		return newCandidate(&models.ConfirmOrderPayload{}, m.conf.Phrase, models.ProvenancePattern)
	case has(recommendPhrases):
		return newCandidate(&models.RequestRecommendationPayload{
			Preferences: strings.TrimSpace(message),
			Category:    mentionedCategory(words, menu),
		}, m.conf.Phrase, models.ProvenancePattern)
	case has(anotherPhrases):
		if item := lastMentionedItem(history, menu); item != nil {
			return newCandidate(&models.AddToOrderPayload{Items: []models.ActionItem{{
				MenuItemID: item.ID, Name: item.Name, Quantity: 1, Price: item.Price,
			}}}, m.conf.FromHistory, models.ProvenancePattern)
		}
	}

	if has(addPhrases) || has(removePhrases) || has(orderVocabulary) {
		return newCandidate(&models.RequestClarificationPayload{
			Question: "Which item from the menu would you like?",
			Options:  menuCategories(menu),
		}, m.conf.Clarification, models.ProvenancePattern)
	}
	return nil
}

func (m *PatternMatcher) change(matches []itemMatch) *Candidate {
	target := matches[0]
	for _, m := range matches {
		if m.explicit {
			target = m
			break
		}
	}
	if target.explicit {
		return newCandidate(&models.ModifyOrderItemPayload{
			MenuItemID: target.item.ID,
			Name:       target.item.Name,
			Quantity:   target.quantity,
		}, m.conf.VerbOrQuantity, models.ProvenancePattern)
	}
	return newCandidate(&models.RequestClarificationPayload{
		Question: "What would you like to change about the " + target.item.Name + "?",
		Options:  []string{"Change the quantity", "Add a note", "Remove it"},
	}, m.conf.Clarification, models.ProvenancePattern)
}

func hasPhrase(plain string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(plain, " "+p+" ") {
			return true
		}
	}
	return false
}

// findItems scans for menu names, longest names first, skipping words already
// claimed by a longer match.
func findItems(words []string, menu []models.MenuItem) []itemMatch {
	type named struct {
		item  models.MenuItem
		words []string
	}
	names := make([]named, 0, len(menu))
	for _, item := range menu {
		if w := tokenize(item.Name); len(w) > 0 {
			names = append(names, named{item: item, words: w})
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		if len(names[i].words) != len(names[j].words) {
			return len(names[i].words) > len(names[j].words)
		}
		return len(names[i].item.Name) > len(names[j].item.Name)
	})

	used := make([]bool, len(words))
	var found []itemMatch
	for _, n := range names {
		for i := 0; i+len(n.words) <= len(words); i++ {
			if !matchAt(words, i, n.words) || anyUsed(used, i, i+len(n.words)) {
				continue
			}
			for j := i; j < i+len(n.words); j++ {
				used[j] = true
			}
			qty, explicit := quantityAround(words, i, i+len(n.words))
			found = append(found, itemMatch{item: n.item, start: i, end: i + len(n.words), quantity: qty, explicit: explicit})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })
	return found
}

func anyUsed(used []bool, from, to int) bool {
	for i := from; i < to; i++ {
		if used[i] {
			return true
		}
	}
	return false
}

// quantityAround reads "2", "two", "a couple of", "2x", "x2" or "x 2" next to
// the item name spanning words[start:end].
func quantityAround(words []string, start, end int) (int, bool) {
	if end < len(words) {
		if m := timesSuffix.FindStringSubmatch(words[end]); m != nil {
			return clampQuantity(m[1]), true
		}
		if words[end] == "x" && end+1 < len(words) {
			if n, err := strconv.Atoi(words[end+1]); err == nil {
				return clampInt(n), true
			}
		}
	}

	i := start - 1
	if i >= 0 && words[i] == "of" && i > 0 {
		if words[i-1] == "couple" || words[i-1] == "pair" {
			return 2, true
		}
	}
	if i >= 1 && words[i] == "x" {
		i--
	}
	if i < 0 {
		return 1, false
	}
	if m := timesPrefix.FindStringSubmatch(words[i]); m != nil {
		return clampQuantity(m[1]), true
	}
	if n, err := strconv.Atoi(words[i]); err == nil {
		return clampInt(n), true
	}
	if n, ok := numberWords[words[i]]; ok {
		// "a" and "an" are articles more often than counts
		return n, words[i] != "a" && words[i] != "an"
	}
	return 1, false
}

func clampQuantity(s string) int {
	n, _ := strconv.Atoi(s)
	return clampInt(n)
}

func clampInt(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxItemQuantity {
		return maxItemQuantity
	}
	return n
}

func anyExplicit(matches []itemMatch) bool {
	for _, m := range matches {
		if m.explicit {
			return true
		}
	}
	return false
}

// actionItems merges repeated mentions of one item. For removals an unstated
// quantity is 0, meaning the whole line.
func actionItems(matches []itemMatch, adding bool) []models.ActionItem {
	var items []models.ActionItem
	index := make(map[uint]int)
	for _, m := range matches {
		qty := m.quantity
		if !adding && !m.explicit {
			qty = 0
		}
		if i, ok := index[m.item.ID]; ok {
			if qty == 0 || items[i].Quantity == 0 {
				items[i].Quantity = 0
			} else {
				items[i].Quantity = clampInt(items[i].Quantity + qty)
			}
			continue
		}
		index[m.item.ID] = len(items)
		items = append(items, models.ActionItem{
			MenuItemID: m.item.ID,
			Name:       m.item.Name,
			Quantity:   qty,
			Price:      m.item.Price,
		})
	}
	return items
}

func mentionedCategory(words []string, menu []models.MenuItem) string {
	for _, category := range menuCategories(menu) {
		if containsPhrase(words, singularAll(tokenize(category))) {
			return category
		}
	}
	return ""
}

// lastMentionedItem resolves "another one" against the newest turn that names a menu item.
func lastMentionedItem(history []models.ConversationTurn, menu []models.MenuItem) *models.MenuItem {
	for i := len(history) - 1; i >= 0; i-- {
		found := findItems(tokenize(history[i].Text), menu)
		if len(found) > 0 {
			item := found[len(found)-1].item
			return &item
		}
	}
	return nil
}
