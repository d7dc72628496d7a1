package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultSlotDurationMinutes = 15
	DefaultMaxUnitsPerSlot     = 4
	DefaultTimezone            = "Europe/Rome"
)

// OpeningWindow is a [Open, Close) time-of-day range in "15:04" form.
// A Close of "00:00" means midnight at the end of the day.
type OpeningWindow struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// DayHours lists the openings of one weekday, e.g. lunch and dinner.
// MaxUnitsPerSlot overrides the business default when positive.
type DayHours struct {
	Windows         []OpeningWindow `json:"windows"`
	MaxUnitsPerSlot int             `json:"max_units_per_slot,omitempty"`
}

// MenuItem is a product the agent may sell
type MenuItem struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
}

// Business is the read-only configuration of one restaurant
type Business struct {
	ID                  string                    `json:"id"`
	Name                string                    `json:"name"`
	Timezone            string                    `json:"timezone"`
	SlotDurationMinutes int                       `json:"slot_duration_minutes"`
	MaxUnitsPerSlot     int                       `json:"max_units_per_slot"`
	CapacityCategories  []string                  `json:"capacity_categories,omitempty"`
	Hours               map[time.Weekday]DayHours `json:"hours"`
	Menu                []MenuItem                `json:"menu"`
}

// Validate applies configuration rules
func (b *Business) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return errors.New("business id is required")
	}
	if b.SlotDurationMinutes < 0 || b.SlotDurationMinutes > 24*60 {
		return fmt.Errorf("business %s: slot duration must be 1-1440 minutes", b.ID)
	}
	if b.MaxUnitsPerSlot < 0 {
		return fmt.Errorf("business %s: max units per slot must not be negative", b.ID)
	}
	if _, err := time.LoadLocation(b.timezone()); err != nil {
		return fmt.Errorf("business %s: invalid timezone: %w", b.ID, err)
	}
	for day, hours := range b.Hours {
		for _, w := range hours.Windows {
			start, end, err := w.Bounds()
			if err != nil {
				return fmt.Errorf("business %s, %s: %w", b.ID, day, err)
			}
			if end <= start {
				return fmt.Errorf("business %s, %s: window %s-%s closes before it opens", b.ID, day, w.Open, w.Close)
			}
		}
	}
	return nil
}

func (b *Business) timezone() string {
	if b.Timezone == "" {
		return DefaultTimezone
	}
	return b.Timezone
}

// Location returns the business time zone, falling back to UTC
func (b *Business) Location() *time.Location {
	loc, err := time.LoadLocation(b.timezone())
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlotDuration returns the configured slot length
func (b *Business) SlotDuration() time.Duration {
	if b.SlotDurationMinutes <= 0 {
		return DefaultSlotDurationMinutes * time.Minute
	}
	return time.Duration(b.SlotDurationMinutes) * time.Minute
}

// WindowsFor returns the openings configured for a weekday
func (b *Business) WindowsFor(day time.Weekday) []OpeningWindow {
	return b.Hours[day].Windows
}

// CapacityFor returns the per-slot capacity, in item units, for a weekday
func (b *Business) CapacityFor(day time.Weekday) int {
	if hours, ok := b.Hours[day]; ok && hours.MaxUnitsPerSlot > 0 {
		return hours.MaxUnitsPerSlot
	}
	if b.MaxUnitsPerSlot > 0 {
		return b.MaxUnitsPerSlot
	}
	return DefaultMaxUnitsPerSlot
}

// FindMenuItem looks a product up by name, ignoring case and surrounding spaces
func (b *Business) FindMenuItem(name string) (MenuItem, bool) {
	name = strings.TrimSpace(name)
	for _, item := range b.Menu {
		if strings.EqualFold(item.Name, name) {
			return item, true
		}
	}
	return MenuItem{}, false
}

// Bounds returns the window as minutes since midnight
func (w OpeningWindow) Bounds() (start, end int, err error) {
	start, err = ParseClockMinutes(w.Open)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid open time %q: %w", w.Open, err)
	}
	end, err = ParseClockMinutes(w.Close)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid close time %q: %w", w.Close, err)
	}
	if end == 0 {
		end = 24 * 60
	}
	return start, end, nil
}

// ParseClockMinutes parses "15:04" into minutes since midnight
func ParseClockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClockMinutes renders minutes since midnight as "15:04"
func FormatClockMinutes(m int) string {
	m = ((m % (24 * 60)) + 24*60) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
