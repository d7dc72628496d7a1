package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

type sessionRepository struct {
	db DB
}

// NewSessionRepository stores whole sessions as JSONB documents, so a restarted
// service can pick conversations up where they were left
func NewSessionRepository(db DB) interfaces.SessionRegistry {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	var payload []byte
	err := r.db.QueryRow(ctx, `SELECT payload FROM sessions WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &session, nil
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	query := `
		INSERT INTO sessions (id, business_id, state, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET business_id = EXCLUDED.business_id, state = EXCLUDED.state,
		    payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.Exec(ctx, query, session.ID, session.BusinessID, string(session.State), payload, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Expire(ctx context.Context, idleSince time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `DELETE FROM sessions WHERE updated_at < $1 RETURNING id`, idleSince)
	if err != nil {
		return nil, fmt.Errorf("failed to expire sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
