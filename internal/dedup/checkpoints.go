// Package dedup remembers the highest order event sequence each consumer has
// acted on, so a redelivered OrderCreated never books a second courier.
package dedup

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Checkpoints is keyed by consumer name and order id.
type Checkpoints struct {
	q Querier
}

func NewCheckpoints(q Querier) *Checkpoints {
	return &Checkpoints{q: q}
}

// In binds the checkpoints to tx so Advance commits with the caller's writes.
func (c *Checkpoints) In(tx Querier) *Checkpoints {
	return &Checkpoints{q: tx}
}

// Last returns the highest sequence handled for orderID. ok is false until the
// first Advance.
func (c *Checkpoints) Last(ctx context.Context, consumer, orderID string) (last int64, ok bool, err error) {
	err = c.q.QueryRow(ctx,
		`SELECT last_sequence FROM event_dedup_checkpoint WHERE consumer_name = $1 AND partition_key = $2`,
		consumer, orderID,
	).Scan(&last)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, errors.Wrapf(err, "checkpoint for %s/%s", consumer, orderID)
	}
	return last, true, nil
}

// Seen reports whether seq for orderID was already handled by consumer.
func (c *Checkpoints) Seen(ctx context.Context, consumer, orderID string, seq int64) (bool, error) {
	last, ok, err := c.Last(ctx, consumer, orderID)
	if err != nil {
		return false, err
	}
	return ok && seq <= last, nil
}

// Advance records seq for orderID. Older sequences never lower the checkpoint.
func (c *Checkpoints) Advance(ctx context.Context, consumer, orderID string, seq int64) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO event_dedup_checkpoint AS cp (consumer_name, partition_key, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer_name, partition_key) DO UPDATE
		SET last_sequence = GREATEST(cp.last_sequence, EXCLUDED.last_sequence), updated_at = now()
	`, consumer, orderID, seq)
	if err != nil {
		return errors.Wrapf(err, "advance checkpoint for %s/%s", consumer, orderID)
	}
	return nil
}
