package memory

import (
	"context"
	"fmt"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

// BusinessDirectory serves business configuration loaded at startup
type BusinessDirectory struct {
	businesses map[string]domain.Business
}

func NewBusinessDirectory(businesses []domain.Business) (interfaces.BusinessDirectory, error) {
	d := &BusinessDirectory{businesses: make(map[string]domain.Business, len(businesses))}
	for i := range businesses {
		b := businesses[i]
		if err := b.Validate(); err != nil {
			return nil, err
		}
		if _, dup := d.businesses[b.ID]; dup {
			return nil, fmt.Errorf("duplicate business id %s", b.ID)
		}
		d.businesses[b.ID] = b
	}
	return d, nil
}

func (d *BusinessDirectory) Get(ctx context.Context, id string) (*domain.Business, error) {
	b, ok := d.businesses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBusinessNotFound, id)
	}
	return &b, nil
}
