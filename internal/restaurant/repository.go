package restaurant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("restaurant not found")

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PostgresRepository struct {
	pool DBPool
	now  func() time.Time
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool, now: time.Now}
}

func (r *PostgresRepository) WithClock(now func() time.Time) *PostgresRepository {
	r.now = now
	return r
}

func (r *PostgresRepository) Status(ctx context.Context, restaurantID string) (Status, error) {
	var (
		timezone  string
		accepting bool
	)
	err := r.pool.QueryRow(ctx, `
		SELECT timezone, is_accepting_orders
		FROM restaurants
		WHERE id=$1
	`, restaurantID).Scan(&timezone, &accepting)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Status{}, ErrNotFound
		}
		return Status{}, fmt.Errorf("select restaurant: %w", err)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	rows, err := r.pool.Query(ctx, `
		SELECT day_of_week, opens_minute, closes_minute
		FROM restaurant_hours
		WHERE restaurant_id=$1
	`, restaurantID)
	if err != nil {
		return Status{}, fmt.Errorf("select hours: %w", err)
	}
	defer rows.Close()

	var hours []Window
	for rows.Next() {
		var day, opens, closes int
		if err := rows.Scan(&day, &opens, &closes); err != nil {
			return Status{}, fmt.Errorf("scan hours: %w", err)
		}
		hours = append(hours, Window{Day: time.Weekday(day), OpensMinute: opens, CloseMinute: closes})
	}
	if err := rows.Err(); err != nil {
		return Status{}, fmt.Errorf("rows: %w", err)
	}

	return Evaluate(restaurantID, accepting, hours, loc, r.now()), nil
}

// Pickup is where a courier collects an order.
type Pickup struct {
	RestaurantID string
	Name         string
	Address      string
	Phone        string
}

func (r *PostgresRepository) Pickup(ctx context.Context, restaurantID string) (Pickup, error) {
	p := Pickup{RestaurantID: restaurantID}
	err := r.pool.QueryRow(ctx, `
		SELECT name, address, phone
		FROM restaurants
		WHERE id=$1
	`, restaurantID).Scan(&p.Name, &p.Address, &p.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Pickup{}, ErrNotFound
		}
		return Pickup{}, fmt.Errorf("select pickup: %w", err)
	}
	return p, nil
}
