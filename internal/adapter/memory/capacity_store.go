package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

// CapacityStore keeps one atomic counter per slot key. Counters are created
// lazily on first use and never deleted.
type CapacityStore struct {
	counters sync.Map // domain.TimeSlotKey -> *atomic.Int64
}

func NewCapacityStore() interfaces.CapacityStore {
	return &CapacityStore{}
}

func (s *CapacityStore) counter(key domain.TimeSlotKey) *atomic.Int64 {
	if c, ok := s.counters.Load(key); ok {
		return c.(*atomic.Int64)
	}
	c, _ := s.counters.LoadOrStore(key, new(atomic.Int64))
	return c.(*atomic.Int64)
}

// TryReserve adds units to the slot only if the result stays within capacity
func (s *CapacityStore) TryReserve(ctx context.Context, key domain.TimeSlotKey, units, capacity int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if units <= 0 {
		return false, errors.New("units must be positive")
	}
	if units > capacity {
		return false, nil
	}

	c := s.counter(key)
	for {
		current := c.Load()
		next := current + int64(units)
		if next > int64(capacity) {
			return false, nil
		}
		if c.CompareAndSwap(current, next) {
			return true, nil
		}
	}
}

// Release subtracts units, never going below zero
func (s *CapacityStore) Release(ctx context.Context, key domain.TimeSlotKey, units int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if units <= 0 {
		return nil
	}

	c := s.counter(key)
	for {
		current := c.Load()
		next := current - int64(units)
		if next < 0 {
			next = 0
		}
		if c.CompareAndSwap(current, next) {
			return nil
		}
	}
}

func (s *CapacityStore) Occupancy(ctx context.Context, key domain.TimeSlotKey) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c, ok := s.counters.Load(key)
	if !ok {
		return 0, nil
	}
	return int(c.(*atomic.Int64).Load()), nil
}
