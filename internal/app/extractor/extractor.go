package extractor

import (
	"strings"

	"github.com/YelzhanWeb/pizzaline/internal/app/calendar"
	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

type Source string

const (
	SourceBlock     Source = "block"
	SourceHeuristic Source = "heuristic"
	SourceNone      Source = "none"
)

// Input is one turn: the draft as it stood before the turn, the customer's
// utterance and the agent's reply
type Input struct {
	Draft         domain.OrderDraft
	UserText      string
	AssistantText string
	Menu          []domain.MenuItem
}

type Result struct {
	Draft              domain.OrderDraft
	Source             Source
	IsConfirmationTurn bool
	// Reason says why the structured block was not used
	Reason string
}

type Extractor struct {
	isConfirmation ConfirmationPredicate
}

type Option func(*Extractor)

func WithConfirmationPredicate(p ConfirmationPredicate) Option {
	return func(e *Extractor) {
		e.isConfirmation = p
	}
}

func New(opts ...Option) *Extractor {
	e := &Extractor{isConfirmation: PhraseMatcher(DefaultConfirmationPhrases)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract never fails: when nothing can be read the draft comes back unchanged
func (e *Extractor) Extract(in Input) Result {
	res := Result{
		Draft:              in.Draft.Clone(),
		Source:             SourceNone,
		IsConfirmationTurn: !in.Draft.IsEmpty() && e.isConfirmation(in.UserText),
	}

	switch out := ParseBlock(in.AssistantText).(type) {
	case Parsed:
		applyBlock(&res.Draft, out.Block, in.Menu)
		res.Source = SourceBlock
	case Unparsed:
		res.Reason = out.Reason
		if applyHeuristics(&res.Draft, in.UserText, in.Menu) {
			res.Source = SourceHeuristic
		}
	}
	return res
}

func applyBlock(d *domain.OrderDraft, b Block, menu []domain.MenuItem) {
	items := make([]domain.DraftItem, 0, len(*b.Items))
	for _, bi := range *b.Items {
		item := domain.DraftItem{Name: bi.Name, Quantity: bi.Quantity, Category: bi.Category}
		if bi.Price != nil {
			item.UnitPrice = *bi.Price
		}
		items = append(items, enrich(item, menu))
	}
	d.ReplaceItems(items)

	if b.CustomerName != nil && strings.TrimSpace(*b.CustomerName) != "" {
		name := strings.TrimSpace(*b.CustomerName)
		d.CustomerName = &name
	}
	if b.CustomerPhone != nil {
		if phone, ok := domain.NormalizePhone(*b.CustomerPhone); ok {
			d.CustomerPhone = &phone
		}
	}
	if pickup := b.pickupText(); pickup != nil && (d.PickupText == nil || *d.PickupText != *pickup) {
		d.PickupText = pickup
		d.RequestedPickup = nil
	}
}

func applyHeuristics(d *domain.OrderDraft, utterance string, menu []domain.MenuItem) bool {
	changed := false
	for _, item := range scanItems(utterance, menu) {
		d.SetItem(enrich(item, menu))
		changed = true
	}
	if name, ok := scanName(utterance); ok {
		d.CustomerName = &name
		changed = true
	}
	if phrase, ok := calendar.ClockPhrase(utterance); ok {
		d.PickupText = &phrase
		d.RequestedPickup = nil
		changed = true
	}
	return changed
}

// enrich takes the canonical name, price and category from the menu
func enrich(item domain.DraftItem, menu []domain.MenuItem) domain.DraftItem {
	for _, m := range menu {
		if strings.EqualFold(strings.TrimSpace(m.Name), strings.TrimSpace(item.Name)) {
			item.Name = m.Name
			item.UnitPrice = m.Price
			if m.Category != "" {
				item.Category = m.Category
			}
			return item
		}
	}
	return item
}
