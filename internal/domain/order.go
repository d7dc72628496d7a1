package domain

import (
	"strings"
)

// DraftItem is one line of an order that is still being negotiated
type DraftItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Category  string  `json:"category,omitempty"`
}

// OrderDraft is the best guess of the order before it is confirmed and reserved.
// Items are unique by name (case-insensitive).
type OrderDraft struct {
	Items           []DraftItem  `json:"items"`
	CustomerName    *string      `json:"customer_name,omitempty"`
	CustomerPhone   *string      `json:"customer_phone,omitempty"`
	PickupText      *string      `json:"pickup_text,omitempty"`
	RequestedPickup *TimeSlotKey `json:"requested_pickup,omitempty"`
}

// IsEmpty reports whether the draft has no items
func (d OrderDraft) IsEmpty() bool {
	return len(d.Items) == 0
}

// TotalAmount calculates the total amount of the draft
func (d OrderDraft) TotalAmount() float64 {
	total := 0.0
	for _, item := range d.Items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}

// Clone returns a deep copy so callers can never alias a session's draft
func (d OrderDraft) Clone() OrderDraft {
	out := OrderDraft{Items: make([]DraftItem, len(d.Items))}
	copy(out.Items, d.Items)
	if d.CustomerName != nil {
		v := *d.CustomerName
		out.CustomerName = &v
	}
	if d.CustomerPhone != nil {
		v := *d.CustomerPhone
		out.CustomerPhone = &v
	}
	if d.PickupText != nil {
		v := *d.PickupText
		out.PickupText = &v
	}
	if d.RequestedPickup != nil {
		v := *d.RequestedPickup
		out.RequestedPickup = &v
	}
	return out
}

// ReplaceItems swaps the whole item list. Duplicated names collapse to the
// last occurrence and non-positive quantities are dropped.
func (d *OrderDraft) ReplaceItems(items []DraftItem) {
	d.Items = nil
	for _, item := range items {
		d.SetItem(item)
	}
}

// SetItem inserts the item or replaces the quantity of an item with the same name.
// A quantity of zero or less removes the item.
func (d *OrderDraft) SetItem(item DraftItem) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return
	}
	for i := range d.Items {
		if strings.EqualFold(d.Items[i].Name, item.Name) {
			if item.Quantity <= 0 {
				d.Items = append(d.Items[:i], d.Items[i+1:]...)
				return
			}
			d.Items[i] = item
			return
		}
	}
	if item.Quantity > 0 {
		d.Items = append(d.Items, item)
	}
}

// ClearPickup forgets the requested pickup, keeping items and customer name
func (d *OrderDraft) ClearPickup() {
	d.PickupText = nil
	d.RequestedPickup = nil
}

// CapacityUnits sums the quantities of items whose category consumes kitchen
// capacity. An empty category set means every item counts.
func (d OrderDraft) CapacityUnits(capacityCategories []string) int {
	units := 0
	for _, item := range d.Items {
		if countsAgainstCapacity(item.Category, capacityCategories) {
			units += item.Quantity
		}
	}
	return units
}

func countsAgainstCapacity(category string, capacityCategories []string) bool {
	if len(capacityCategories) == 0 {
		return true
	}
	for _, c := range capacityCategories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}
