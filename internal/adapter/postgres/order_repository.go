package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type orderRepository struct {
	db DB
}

func NewOrderRepository(db DB) interfaces.OrderRepository {
	return &orderRepository{db: db}
}

// Create stores the order, its items and the first status line in one transaction
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	log := order.ConversationLog
	if log == nil {
		log = []domain.Message{}
	}
	logJSON, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to encode conversation log: %w", err)
	}

	return WithTx(ctx, r.db, func(tx Tx) error {
		query := `
			INSERT INTO orders (number, business_id, session_id, customer_name, customer_phone, pickup_date, pickup_slot,
			                    total_amount, capacity_units, status, conversation_log, created_at, updated_at, released_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id
		`
		err := tx.QueryRow(ctx, query,
			order.Number, order.BusinessID, order.SessionID, order.CustomerName, order.CustomerPhone,
			order.PickupDate, order.PickupSlot, order.TotalAmount, order.CapacityUnits, order.Status,
			string(logJSON), order.CreatedAt, order.UpdatedAt, order.ReleasedAt,
		).Scan(&order.ID)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range order.Items {
			itemQuery := `
				INSERT INTO order_items (order_id, name, quantity, price, category, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id
			`
			err = tx.QueryRow(ctx, itemQuery,
				order.ID, order.Items[i].Name, order.Items[i].Quantity, order.Items[i].Price, order.Items[i].Category, time.Now(),
			).Scan(&order.Items[i].ID)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
			order.Items[i].OrderID = order.ID
		}

		logQuery := `
			INSERT INTO order_status_log (order_id, status, changed_by, changed_at)
			VALUES ($1, $2, $3, $4)
		`
		if _, err := tx.Exec(ctx, logQuery, order.ID, order.Status, "order-recorder", time.Now()); err != nil {
			return fmt.Errorf("failed to log status: %w", err)
		}
		return nil
	})
}

const orderColumns = `id, number, business_id, session_id, customer_name, customer_phone, pickup_date, pickup_slot,
	       total_amount, capacity_units, status, created_at, updated_at, released_at`

func scanOrder(row Row, order *domain.Order, extra ...any) error {
	dest := []any{
		&order.ID, &order.Number, &order.BusinessID, &order.SessionID, &order.CustomerName, &order.CustomerPhone,
		&order.PickupDate, &order.PickupSlot, &order.TotalAmount, &order.CapacityUnits,
		&order.Status, &order.CreatedAt, &order.UpdatedAt, &order.ReleasedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func (r *orderRepository) FindByNumber(ctx context.Context, number string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + `, conversation_log::text FROM orders WHERE number = $1`

	var (
		order   domain.Order
		logJSON string
	)
	err := scanOrder(r.db.QueryRow(ctx, query, number), &order, &logJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, number)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if err := json.Unmarshal([]byte(logJSON), &order.ConversationLog); err != nil {
		return nil, fmt.Errorf("failed to decode conversation log: %w", err)
	}

	items, err := r.itemsFor(ctx, []int{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return &order, nil
}

// List returns the newest pickups first. Conversation logs are not loaded.
func (r *orderRepository) List(ctx context.Context, filter interfaces.OrderFilter) ([]*domain.Order, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.BusinessID != "" {
		add("business_id = $%d", filter.BusinessID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.From != "" {
		add("pickup_date >= $%d", filter.From)
	}
	if filter.To != "" {
		add("pickup_date <= $%d", filter.To)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY pickup_date DESC, pickup_slot DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []*domain.Order
		ids    []int
	)
	for rows.Next() {
		var order domain.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, &order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Items = items[o.ID]
	}
	return orders, nil
}

func (r *orderRepository) itemsFor(ctx context.Context, orderIDs []int) (map[int][]domain.OrderItem, error) {
	query := `SELECT id, order_id, name, quantity, price, category FROM order_items WHERE order_id = ANY($1) ORDER BY id`
	rows, err := r.db.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	items := make(map[int][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.Name, &item.Quantity, &item.Price, &item.Category); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}
	return items, nil
}

func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2, released_at = $3
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, order.Status, order.UpdatedAt, order.ReleasedAt, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrOrderNotFound, order.ID)
	}
	return nil
}

func (r *orderRepository) GetStatusHistory(ctx context.Context, orderID int) ([]*domain.StatusLog, error) {
	query := `
		SELECT id, order_id, status, changed_by, changed_at, notes
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var logs []*domain.StatusLog
	for rows.Next() {
		var log domain.StatusLog
		if err := rows.Scan(&log.ID, &log.OrderID, &log.Status, &log.ChangedBy, &log.ChangedAt, &log.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan status log: %w", err)
		}
		logs = append(logs, &log)
	}

	return logs, rows.Err()
}

func (r *orderRepository) LogStatus(ctx context.Context, orderID int, status domain.Status, changedBy string) error {
	query := `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, orderID, status, changedBy, time.Now())
	if err != nil {
		return fmt.Errorf("failed to log status: %w", err)
	}
	return nil
}
