package services

import (
	"regexp"
	"sort"
	"strings"

	"table_waiter/internal/models"
)

var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+(?:'[\p{L}]+)?`)

func tokenize(text string) []string {
	text = strings.ToLower(strings.NewReplacer("’", "'", "‘", "'").Replace(text))
	return wordRegex.FindAllString(text, -1)
}

// tokenMatches accepts the name word itself and its plural or possessive forms.
func tokenMatches(word, name string) bool {
	switch word {
	case name, name + "s", name + "es", name + "'s", name + "s's":
		return true
	}
	if strings.HasSuffix(name, "y") && len(name) > 1 {
		return word == name[:len(name)-1]+"ies"
	}
	return false
}

func matchAt(words []string, at int, name []string) bool {
	if len(name) == 0 || at+len(name) > len(words) {
		return false
	}
	for j, n := range name {
		if !tokenMatches(words[at+j], n) {
			return false
		}
	}
	return true
}

func containsPhrase(words []string, name []string) bool {
	for i := range words {
		if matchAt(words, i, name) {
			return true
		}
	}
	return false
}

// resolveMenuItem maps a free-form item name to a menu entry: exact or
// plural matches first, then a unique partial match.
func resolveMenuItem(name string, menu []models.MenuItem) *models.MenuItem {
	query := tokenize(name)
	if len(query) == 0 {
		return nil
	}
	for i := range menu {
		itemWords := tokenize(menu[i].Name)
		if len(itemWords) == len(query) && matchAt(query, 0, itemWords) {
			return &menu[i]
		}
	}

	// "the caesar salad please" contains a full item name
	var best *models.MenuItem
	bestLen := 0
	for i := range menu {
		itemWords := tokenize(menu[i].Name)
		if len(itemWords) > bestLen && containsPhrase(query, itemWords) {
			best = &menu[i]
			bestLen = len(itemWords)
		}
	}
	if best != nil {
		return best
	}

	// "margherita" is part of exactly one item name
	var hits []*models.MenuItem
	for i := range menu {
		if containsPhrase(tokenize(menu[i].Name), singularAll(query)) {
			hits = append(hits, &menu[i])
		}
	}
	if len(hits) == 1 {
		return hits[0]
	}
	return nil
}

func singularAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = singular(w)
	}
	return out
}

func singular(word string) string {
	word = strings.TrimSuffix(word, "'s")
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ses") || strings.HasSuffix(word, "xes") || strings.HasSuffix(word, "ches"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && len(word) > 3:
		return word[:len(word)-1]
	}
	return word
}

func tokenSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[singular(w)] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

func trigrams(s string) map[string]bool {
	s = " " + strings.Join(tokenize(s), " ") + " "
	out := make(map[string]bool)
	runes := []rune(s)
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = true
	}
	return out
}

// dice is the Sørensen-Dice coefficient over two trigram sets.
func dice(a, b map[string]bool) float64 {
	if len(a)+len(b) == 0 {
		return 0
	}
	inter := 0
	for g := range a {
		if b[g] {
			inter++
		}
	}
	return 2 * float64(inter) / float64(len(a)+len(b))
}

func menuCategories(menu []models.MenuItem) []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range menu {
		if item.Category == "" || seen[item.Category] {
			continue
		}
		seen[item.Category] = true
		out = append(out, item.Category)
	}
	sort.Strings(out)
	return out
}

func availableItems(menu []models.MenuItem) []models.MenuItem {
	out := make([]models.MenuItem, 0, len(menu))
	for _, item := range menu {
		if item.Available {
			out = append(out, item)
		}
	}
	return out
}
