package extractor

import (
	"testing"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

var menu = []domain.MenuItem{
	{Name: "Margherita", Price: 7, Category: "pizza"},
	{Name: "Margherita Bufala", Price: 9.5, Category: "pizza"},
	{Name: "Diavola", Price: 8, Category: "pizza"},
	{Name: "Coca Cola", Price: 2.5, Category: "bevande"},
}

func reply(text, block string) string {
	return text + "\n```json\n" + block + "\n```"
}

func strPtr(s string) *string { return &s }

func TestExtractBlockReplacesItems(t *testing.T) {
	e := New()

	first := e.Extract(Input{
		AssistantText: reply("Perfetto!", `{"items":[{"name":"Margherita","quantity":2},{"name":"Diavola","quantity":1}]}`),
		Menu:          menu,
	})
	if first.Source != SourceBlock || len(first.Draft.Items) != 2 {
		t.Fatalf("first turn = %+v", first)
	}

	second := e.Extract(Input{
		Draft:         first.Draft,
		UserText:      "togli la diavola e fai una sola margherita",
		AssistantText: reply("Va bene.", `{"items":[{"name":"margherita","quantity":1}]}`),
		Menu:          menu,
	})
	if len(second.Draft.Items) != 1 {
		t.Fatalf("items = %+v, want only Margherita", second.Draft.Items)
	}
	got := second.Draft.Items[0]
	if got.Name != "Margherita" || got.Quantity != 1 || got.UnitPrice != 7 || got.Category != "pizza" {
		t.Fatalf("item = %+v", got)
	}
}

func TestExtractBlockFields(t *testing.T) {
	e := New()
	prev := domain.OrderDraft{CustomerName: strPtr("Mario")}

	res := e.Extract(Input{
		Draft: prev,
		AssistantText: "Ecco il riepilogo\n```order\n" +
			`{"items":[{"name":"Diavola","quantity":1}],"pickup_time":"19:30","pickup_date":"domani"}` +
			"\n```",
		Menu: menu,
	})
	if res.Draft.CustomerName == nil || *res.Draft.CustomerName != "Mario" {
		t.Fatalf("customer name lost: %v", res.Draft.CustomerName)
	}
	if res.Draft.PickupText == nil || *res.Draft.PickupText != "domani 19:30" {
		t.Fatalf("pickup = %v", res.Draft.PickupText)
	}
}

func TestExtractBlockPhone(t *testing.T) {
	tests := []struct {
		phone string
		want  *string
	}{
		{"+39 333 123-4567", strPtr("+393331234567")},
		{"non lo so", nil},
	}
	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			res := New().Extract(Input{
				AssistantText: "```json\n" + `{"items":[],"customer_phone":"` + tt.phone + `"}` + "\n```",
				Menu:          menu,
			})
			got := res.Draft.CustomerPhone
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Fatalf("phone = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractUsesLastBlock(t *testing.T) {
	res := New().Extract(Input{
		AssistantText: reply("prima", `{"items":[{"name":"Diavola","quantity":4}]}`) +
			reply(" poi", `{"items":[{"name":"Diavola","quantity":2}]}`),
		Menu: menu,
	})
	if len(res.Draft.Items) != 1 || res.Draft.Items[0].Quantity != 2 {
		t.Fatalf("items = %+v", res.Draft.Items)
	}
}

func TestExtractBadBlockFallsBackToHeuristics(t *testing.T) {
	prev := domain.OrderDraft{Items: []domain.DraftItem{{Name: "Diavola", Quantity: 1, UnitPrice: 8}}}

	res := New().Extract(Input{
		Draft:         prev,
		UserText:      "aggiungi due pizze margherita",
		AssistantText: reply("Certo", `{"items": [broken`),
		Menu:          menu,
	})
	if res.Source != SourceHeuristic {
		t.Fatalf("source = %s", res.Source)
	}
	if res.Reason == "" {
		t.Error("missing unparsed reason")
	}
	if len(res.Draft.Items) != 2 {
		t.Fatalf("items = %+v, want Diavola kept and Margherita added", res.Draft.Items)
	}
	if res.Draft.Items[1].Name != "Margherita" || res.Draft.Items[1].Quantity != 2 {
		t.Fatalf("added item = %+v", res.Draft.Items[1])
	}
}

func TestExtractNoDataKeepsDraft(t *testing.T) {
	prev := domain.OrderDraft{Items: []domain.DraftItem{{Name: "Diavola", Quantity: 1}}}
	res := New().Extract(Input{
		Draft:         prev,
		UserText:      "un attimo che ci penso",
		AssistantText: "Nessun problema, con calma.",
		Menu:          menu,
	})
	if res.Source != SourceNone {
		t.Fatalf("source = %s", res.Source)
	}
	if len(res.Draft.Items) != 1 || res.Draft.Items[0].Quantity != 1 {
		t.Fatalf("draft changed: %+v", res.Draft)
	}
}

func TestExtractDoesNotAliasInputDraft(t *testing.T) {
	prev := domain.OrderDraft{Items: []domain.DraftItem{{Name: "Diavola", Quantity: 1}}}
	New().Extract(Input{Draft: prev, UserText: "tre diavola", Menu: menu})
	if prev.Items[0].Quantity != 1 {
		t.Fatal("input draft mutated")
	}
}

func TestScanItems(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]int
	}{
		{"digits", "vorrei 2 margherita", map[string]int{"Margherita": 2}},
		{"numeral with pizze", "tre pizze diavola per favore", map[string]int{"Diavola": 3}},
		{"una", "una margherita e cinque diavola", map[string]int{"Margherita": 1, "Diavola": 5}},
		{"bare name", "una coca cola e la diavola", map[string]int{"Coca Cola": 1, "Diavola": 1}},
		{"longest name first", "due margherita bufala", map[string]int{"Margherita Bufala": 2}},
		{"both margheritas", "quattro margherita bufala e una margherita", map[string]int{"Margherita Bufala": 4, "Margherita": 1}},
		{"nothing", "buonasera", map[string]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[string]int{}
			for _, item := range scanItems(tt.text, menu) {
				got[item.Name] = item.Quantity
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for name, qty := range tt.want {
				if got[name] != qty {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestHeuristicNameAndPickup(t *testing.T) {
	res := New().Extract(Input{
		UserText: "Mi chiamo Giulia Bianchi, passo alle 20 e 30",
		Menu:     menu,
	})
	if res.Draft.CustomerName == nil || *res.Draft.CustomerName != "Giulia Bianchi" {
		t.Fatalf("name = %v", res.Draft.CustomerName)
	}
	if res.Draft.PickupText == nil || *res.Draft.PickupText != "alle 20 e 30" {
		t.Fatalf("pickup = %v", res.Draft.PickupText)
	}

	if _, ok := scanName("sono contento"); ok {
		t.Error("lowercase word taken as a name")
	}
}

func TestConfirmationGating(t *testing.T) {
	e := New()
	empty := e.Extract(Input{UserText: "ok", Menu: menu})
	if empty.IsConfirmationTurn {
		t.Fatal("affirmation with empty draft counted as confirmation")
	}

	full := e.Extract(Input{
		Draft:    domain.OrderDraft{Items: []domain.DraftItem{{Name: "Diavola", Quantity: 1}}},
		UserText: "Ok, confermo",
		Menu:     menu,
	})
	if !full.IsConfirmationTurn {
		t.Fatal("affirmation with draft not counted as confirmation")
	}
}

func TestConfirmationUsesDraftBeforeTurn(t *testing.T) {
	// the items arrive in the same turn as the "ok": not a confirmation yet
	res := New().Extract(Input{
		UserText:      "ok, due margherita",
		AssistantText: reply("Due margherita.", `{"items":[{"name":"Margherita","quantity":2}]}`),
		Menu:          menu,
	})
	if res.IsConfirmationTurn {
		t.Fatal("confirmation granted on the turn that created the draft")
	}
	if res.Draft.IsEmpty() {
		t.Fatal("draft not updated")
	}
}

func TestPhraseMatcher(t *testing.T) {
	match := PhraseMatcher(DefaultConfirmationPhrases)
	tests := []struct {
		in   string
		want bool
	}{
		{"ok", true},
		{"OK grazie", true},
		{"sì, va   bene", true},
		{"Perfetto!", true},
		{"confermiamo pure", true},
		{"book a table", false},
		{"smoking", false},
		{"non va", false},
	}
	for _, tt := range tests {
		if got := match(tt.in); got != tt.want {
			t.Errorf("match(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	custom := New(WithConfirmationPredicate(PhraseMatcher([]string{"sì"})))
	res := custom.Extract(Input{
		Draft:    domain.OrderDraft{Items: []domain.DraftItem{{Name: "Diavola", Quantity: 1}}},
		UserText: "sì",
	})
	if !res.IsConfirmationTurn {
		t.Fatal("custom phrase not honoured")
	}
}

func TestParseBlockOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		parsed bool
	}{
		{"no block", "ciao", false},
		{"no items field", "```json\n{\"customer_name\":\"Mario\"}\n```", false},
		{"empty items", "```json\n{\"items\":[]}\n```", true},
		{"other fence ignored", "```go\n{\"items\":[]}\n```", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseBlock(tt.text).(Parsed)
			if ok != tt.parsed {
				t.Fatalf("parsed = %v, want %v", ok, tt.parsed)
			}
		})
	}
}

func TestStripBlocks(t *testing.T) {
	got := StripBlocks(reply("Grazie Mario!", `{"items":[]}`))
	if got != "Grazie Mario!" {
		t.Fatalf("got %q", got)
	}
}
