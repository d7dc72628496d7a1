package extractor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

var numerals = map[string]int{
	"un":      1,
	"uno":     1,
	"una":     1,
	"due":     2,
	"tre":     3,
	"quattro": 4,
	"cinque":  5,
}

var (
	namePattern = regexp.MustCompile(`(?:^|[^\p{L}])(?i:mi chiamo|sono|il mio nome è|a nome di)\s+([\p{Lu}][\p{L}']+(?:\s+[\p{Lu}][\p{L}']+)?)`)
	// words that follow "sono" but are not names
	notNames = map[string]bool{"qui": true, "io": true, "pronto": true, "pronta": true}
)

const quantityExpr = `(\d{1,2}|un|uno|una|due|tre|quattro|cinque)\s+`

// scanItems finds "<qty> [pizza|pizze] <menu name>" matches, or a bare menu
// name meaning one unit. Longer names are matched first so "Margherita
// Bufala" is not read as "Margherita".
func scanItems(utterance string, menu []domain.MenuItem) []domain.DraftItem {
	text := strings.ToLower(utterance)

	names := make([]domain.MenuItem, len(menu))
	copy(names, menu)
	sort.SliceStable(names, func(i, j int) bool { return len(names[i].Name) > len(names[j].Name) })

	var found []domain.DraftItem
	for _, item := range names {
		if strings.TrimSpace(item.Name) == "" {
			continue
		}
		name := regexp.QuoteMeta(strings.ToLower(item.Name))
		withQty := regexp.MustCompile(`(?:^|[^\p{L}\d])` + quantityExpr + `(?:pizz[ae]\s+)?` + name + `(?:[^\p{L}]|$)`)
		bare := regexp.MustCompile(`(?:^|[^\p{L}])` + name + `(?:[^\p{L}]|$)`)

		qty := 0
		if m := withQty.FindStringSubmatchIndex(text); m != nil {
			qty = parseQuantity(text[m[2]:m[3]])
			text = blank(text, m[0], m[1])
		} else if m := bare.FindStringIndex(text); m != nil {
			qty = 1
			text = blank(text, m[0], m[1])
		}
		if qty > 0 {
			found = append(found, domain.DraftItem{Name: item.Name, Quantity: qty})
		}
	}
	return found
}

func parseQuantity(s string) int {
	if n, ok := numerals[s]; ok {
		return n
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// blank overwrites a matched span so shorter names cannot match it again
func blank(text string, start, end int) string {
	return text[:start] + strings.Repeat(" ", end-start) + text[end:]
}

// scanName picks a name from "mi chiamo Mario" or "sono Mario Rossi"
func scanName(utterance string) (string, bool) {
	m := namePattern.FindStringSubmatch(utterance)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	first := strings.ToLower(strings.FieldsFunc(name, unicode.IsSpace)[0])
	if notNames[first] {
		return "", false
	}
	return name, true
}
