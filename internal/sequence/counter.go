// Package sequence numbers the events published for each order, starting at 1.
package sequence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
)

type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Counter struct {
	q Querier
}

func NewCounter(q Querier) *Counter {
	return &Counter{q: q}
}

// Next bumps and returns the counter for orderID in a single statement.
func (c *Counter) Next(ctx context.Context, orderID string) (int64, error) {
	var n int64
	err := c.q.QueryRow(ctx, `
		INSERT INTO event_sequence AS s (partition_key, last_sequence) VALUES ($1, 1)
		ON CONFLICT (partition_key) DO UPDATE
		SET last_sequence = s.last_sequence + 1, updated_at = now()
		RETURNING last_sequence
	`, orderID).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "next event sequence for order %s", orderID)
	}
	return n, nil
}
