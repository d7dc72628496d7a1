package extractor

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|order)[ \\t]*\\r?\\n?(.*?)```")

// BlockItem is one line of the structured order block
type BlockItem struct {
	Name     string   `json:"name"`
	Quantity int      `json:"quantity"`
	Price    *float64 `json:"price,omitempty"`
	Category string   `json:"category,omitempty"`
}

// Block is the machine-readable order the agent appends to each reply.
// It always restates the full current order.
type Block struct {
	Items         *[]BlockItem `json:"items"`
	CustomerName  *string      `json:"customer_name,omitempty"`
	CustomerPhone *string      `json:"customer_phone,omitempty"`
	PickupTime    *string      `json:"pickup_time,omitempty"`
	PickupDate    *string      `json:"pickup_date,omitempty"`
}

// Outcome is either Parsed or Unparsed
type Outcome interface {
	outcome()
}

type Parsed struct {
	Block Block
}

type Unparsed struct {
	Reason string
}

func (Parsed) outcome()   {}
func (Unparsed) outcome() {}

// ParseBlock reads the last fenced json/order block of an agent reply
func ParseBlock(text string) Outcome {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return Unparsed{Reason: "no fenced block"}
	}
	raw := strings.TrimSpace(matches[len(matches)-1][1])

	var b Block
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return Unparsed{Reason: "invalid json: " + err.Error()}
	}
	if b.Items == nil {
		return Unparsed{Reason: "block has no items"}
	}
	return Parsed{Block: b}
}

// StripBlocks removes the fenced blocks so the reply can be spoken
func StripBlocks(text string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
}

// pickupText joins the date and time fields of a block
func (b Block) pickupText() *string {
	var parts []string
	if b.PickupDate != nil && strings.TrimSpace(*b.PickupDate) != "" {
		parts = append(parts, strings.TrimSpace(*b.PickupDate))
	}
	if b.PickupTime != nil && strings.TrimSpace(*b.PickupTime) != "" {
		parts = append(parts, strings.TrimSpace(*b.PickupTime))
	}
	if len(parts) == 0 {
		return nil
	}
	s := strings.Join(parts, " ")
	return &s
}
