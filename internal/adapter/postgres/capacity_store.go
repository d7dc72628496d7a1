package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

type capacityStore struct {
	db DB
}

// NewCapacityStore keeps slot counters in the slot_occupancy table so several
// service instances share one view of capacity
func NewCapacityStore(db DB) interfaces.CapacityStore {
	return &capacityStore{db: db}
}

// The insert only happens when the units fit an empty slot; the update only
// when they fit what is already reserved. No row returned means no room.
const tryReserveQuery = `
	INSERT INTO slot_occupancy (business_id, slot_date, slot_start, reserved, updated_at)
	SELECT $1::text, $2::text, $3::text, $4::int, NOW()
	WHERE $4::int <= $5::int
	ON CONFLICT (business_id, slot_date, slot_start) DO UPDATE
	SET reserved = slot_occupancy.reserved + EXCLUDED.reserved, updated_at = NOW()
	WHERE slot_occupancy.reserved + EXCLUDED.reserved <= $5::int
	RETURNING reserved
`

func (s *capacityStore) TryReserve(ctx context.Context, key domain.TimeSlotKey, units, capacity int) (bool, error) {
	if units <= 0 {
		return false, fmt.Errorf("units must be positive, got %d", units)
	}

	var reserved int
	err := s.db.QueryRow(ctx, tryReserveQuery, key.BusinessID, key.Date, key.Start, units, capacity).Scan(&reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to reserve %s: %w", key, err)
	}
	return true, nil
}

func (s *capacityStore) Release(ctx context.Context, key domain.TimeSlotKey, units int) error {
	if units <= 0 {
		return nil
	}
	query := `
		UPDATE slot_occupancy
		SET reserved = GREATEST(reserved - $4, 0), updated_at = NOW()
		WHERE business_id = $1 AND slot_date = $2 AND slot_start = $3
	`
	if _, err := s.db.Exec(ctx, query, key.BusinessID, key.Date, key.Start, units); err != nil {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	return nil
}

func (s *capacityStore) Occupancy(ctx context.Context, key domain.TimeSlotKey) (int, error) {
	query := `
		SELECT reserved FROM slot_occupancy
		WHERE business_id = $1 AND slot_date = $2 AND slot_start = $3
	`
	var reserved int
	err := s.db.QueryRow(ctx, query, key.BusinessID, key.Date, key.Start).Scan(&reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read occupancy of %s: %w", key, err)
	}
	return reserved, nil
}
