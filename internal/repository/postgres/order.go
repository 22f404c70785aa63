package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tripsync/internal/domain"
	"tripsync/internal/repository"
)

// OrderRepository is a PostgreSQL implementation of repository.OrderRepository.
type OrderRepository struct {
	q Querier
}

// NewOrderRepository creates a new PostgreSQL order repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{q: db}
}

// NewOrderRepositoryWithTx creates an order repository using a transaction.
func NewOrderRepositoryWithTx(tx *sql.Tx) *OrderRepository {
	return &OrderRepository{q: tx}
}

// syncableColumns whitelists the fields a client may push. Anything else in
// an update is silently skipped rather than interpolated into SQL.
var syncableColumns = map[string]string{
	"status":               "status",
	"distance_km":          "distance_km",
	"duration_min":         "duration_min",
	"price":                "price",
	"completed_at":         "completed_at",
	"on_way_distance_km":   "on_way_distance_km",
	"on_way_duration_min":  "on_way_duration_min",
	"waiting_duration_min": "waiting_duration_min",
	"trip_distance_km":     "trip_distance_km",
	"trip_duration_min":    "trip_duration_min",
	"lat":                  "lat",
	"lon":                  "lon",
}

// ReadOrder retrieves the remote order row.
func (r *OrderRepository) ReadOrder(ctx context.Context, id string) (*domain.LocalOrder, error) {
	query := `
		SELECT id, status, distance_km, duration_min, price, payload, created_at, completed_at
		FROM orders WHERE id = $1
	`

	var order domain.LocalOrder
	var payload []byte
	var completedAt sql.NullTime

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.Status,
		&order.DistanceKm,
		&order.DurationMin,
		&order.Price,
		&payload,
		&order.CreatedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if completedAt.Valid {
		order.CompletedAt = completedAt.Time
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &order.Payload); err != nil {
			return nil, err
		}
	}
	order.SyncStatus = domain.SyncStatusSynced

	return &order, nil
}

// WriteOrder commits the given fields as a single UPDATE.
func (r *OrderRepository) WriteOrder(ctx context.Context, id string, fields map[string]any) error {
	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	args = append(args, id)

	for field, value := range fields {
		column, ok := syncableColumns[field]
		if !ok {
			continue
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")

	query := fmt.Sprintf("UPDATE orders SET %s WHERE id = $1", strings.Join(sets, ", "))

	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ReadTripRow retrieves the authoritative trip view for reconciliation.
func (r *OrderRepository) ReadTripRow(ctx context.Context, orderID string) (*domain.TripRow, error) {
	query := `
		SELECT id, status,
		       on_way_distance_km, on_way_duration_min, waiting_duration_min,
		       trip_distance_km, trip_duration_min,
		       lat, lon, total_cost, updated_at
		FROM orders WHERE id = $1
	`

	var row domain.TripRow
	err := r.q.QueryRowContext(ctx, query, orderID).Scan(
		&row.OrderID,
		&row.Status,
		&row.Metrics.OnWayDistanceKm,
		&row.Metrics.OnWayDurationMin,
		&row.Metrics.WaitingDurationMin,
		&row.Metrics.TripDistanceKm,
		&row.Metrics.TripDurationMin,
		&row.Lat,
		&row.Lon,
		&row.TotalCost,
		&row.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &row, nil
}

// CompleteTrip records the final cost and rating. Retrying against an
// already-terminal order succeeds without effect.
func (r *OrderRepository) CompleteTrip(ctx context.Context, orderID string, totalCost, rating float64) error {
	query := `
		UPDATE orders
		SET status = $2, total_cost = $3, rating = $4,
		    completed_at = COALESCE(completed_at, now()), updated_at = now()
		WHERE id = $1 AND status NOT IN ($5, $6)
	`

	result, err := r.q.ExecContext(ctx, query,
		orderID,
		domain.TripStatusCompleted,
		totalCost,
		rating,
		domain.TripStatusCompleted,
		domain.TripStatusCancelled,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	// No row updated: either the order is already terminal (idempotent
	// retry, fine) or it does not exist.
	var status domain.TripStatus
	err = r.q.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	return nil
}

// Ensure OrderRepository implements repository.OrderRepository.
var _ repository.OrderRepository = (*OrderRepository)(nil)
