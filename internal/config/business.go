package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

type BusinessConfig struct {
	ID                  string                    `yaml:"id"`
	Name                string                    `yaml:"name"`
	Timezone            string                    `yaml:"timezone"`
	SlotDurationMinutes int                       `yaml:"slot_duration_minutes"`
	MaxUnitsPerSlot     int                       `yaml:"max_units_per_slot"`
	CapacityCategories  []string                  `yaml:"capacity_categories"`
	Hours               map[string]DayHoursConfig `yaml:"hours"`
	Menu                []MenuItemConfig          `yaml:"menu"`
}

type DayHoursConfig struct {
	Windows         []WindowConfig `yaml:"windows"`
	MaxUnitsPerSlot int            `yaml:"max_units_per_slot"`
}

type WindowConfig struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

type MenuItemConfig struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Price       float64 `yaml:"price"`
	Category    string  `yaml:"category"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// DomainBusinesses converts the configured businesses and validates them
func (c *Config) DomainBusinesses() ([]domain.Business, error) {
	out := make([]domain.Business, 0, len(c.Businesses))
	for _, bc := range c.Businesses {
		b, err := bc.toDomain()
		if err != nil {
			return nil, err
		}
		if err := b.Validate(); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (bc BusinessConfig) toDomain() (domain.Business, error) {
	b := domain.Business{
		ID:                  bc.ID,
		Name:                bc.Name,
		Timezone:            bc.Timezone,
		SlotDurationMinutes: bc.SlotDurationMinutes,
		MaxUnitsPerSlot:     bc.MaxUnitsPerSlot,
		CapacityCategories:  bc.CapacityCategories,
		Hours:               make(map[time.Weekday]domain.DayHours, len(bc.Hours)),
	}

	for name, dh := range bc.Hours {
		day, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return domain.Business{}, fmt.Errorf("business %s: unknown weekday %q", bc.ID, name)
		}
		hours := domain.DayHours{MaxUnitsPerSlot: dh.MaxUnitsPerSlot}
		for _, w := range dh.Windows {
			hours.Windows = append(hours.Windows, domain.OpeningWindow{Open: w.Open, Close: w.Close})
		}
		b.Hours[day] = hours
	}

	for _, m := range bc.Menu {
		b.Menu = append(b.Menu, domain.MenuItem{
			Name:        m.Name,
			Description: m.Description,
			Price:       m.Price,
			Category:    m.Category,
		})
	}
	return b, nil
}
