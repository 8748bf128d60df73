package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
)

var (
	ErrNotFound      = errors.New("coupon not found")
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Executor is the subset of pgx.Tx used while redeeming inside an order transaction.
type Executor interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const couponColumns = `id, code, discount_type, discount_value, minimum_order, max_usage,
		current_usage, user_limit, start_date, end_date, restaurant_id, is_active, created_at`

func scanCoupon(row pgx.Row) (*Coupon, error) {
	var (
		c            Coupon
		discountType string
		maxUsage     *int
		userLimit    *int
		restaurantID *string
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.DiscountValue, &c.MinimumOrder, &maxUsage,
		&c.CurrentUsage, &userLimit, &c.StartDate, &c.EndDate, &restaurantID, &c.IsActive, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.DiscountType = pricing.DiscountType(discountType)
	c.MaxUsage = maxUsage
	c.UserLimit = userLimit
	c.RestaurantID = restaurantID
	return &c, nil
}

func (r *PostgresRepository) FindByCode(ctx context.Context, code string) (*Coupon, error) {
	c, err := scanCoupon(r.pool.QueryRow(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		WHERE lower(code) = lower($1)
	`, NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select coupon")
	}
	return c, nil
}

func (r *PostgresRepository) CountUserRedemptions(ctx context.Context, couponID, userID string) (int, error) {
	return countUserRedemptions(ctx, r.pool, couponID, userID)
}

func countUserRedemptions(ctx context.Context, exec Executor, couponID, userID string) (int, error) {
	var n int
	err := exec.QueryRow(ctx, `
		SELECT count(*)
		FROM coupon_redemptions
		WHERE coupon_id=$1 AND user_id=$2
	`, couponID, userID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count redemptions")
	}
	return n, nil
}

// LockForRedemption locks the coupon row for the rest of tx and re-runs the
// eligibility rules against the locked state. A usage or per-user limit that
// no longer holds is reported as ErrCouponConflict; other rule failures are
// returned as their own rejection.
func (r *PostgresRepository) LockForRedemption(ctx context.Context, tx Executor, req Request, now time.Time) (*Coupon, error) {
	c, err := scanCoupon(tx.QueryRow(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		WHERE lower(code) = lower($1)
		FOR UPDATE
	`, NormalizeCode(req.Code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCode
		}
		return nil, errors.Wrap(err, "lock coupon")
	}

	priorUses := 0
	if c.UserLimit != nil && req.UserID != "" {
		priorUses, err = countUserRedemptions(ctx, tx, c.ID, req.UserID)
		if err != nil {
			return nil, err
		}
	}

	if err := Check(c, req, priorUses, now); err != nil {
		if errors.Is(err, ErrUsageLimitReached) || errors.Is(err, ErrUserLimitReached) {
			return nil, ErrCouponConflict
		}
		return nil, err
	}
	return c, nil
}

// RecordRedemptionWithTx increments usage under the max_usage guard and
// records the per-user redemption. Zero affected rows means the guard failed.
func (r *PostgresRepository) RecordRedemptionWithTx(ctx context.Context, tx Executor, couponID, userID, orderID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE coupons
		SET current_usage = current_usage + 1, updated_at = now()
		WHERE id=$1 AND is_active AND (max_usage IS NULL OR current_usage < max_usage)
	`, couponID)
	if err != nil {
		return errors.Wrap(err, "increment usage")
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponConflict
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO coupon_redemptions (id, coupon_id, user_id, order_id, redeemed_at)
		VALUES ($1, $2, $3, $4, now())
	`, uuid.NewString(), couponID, userID, orderID)
	if err != nil {
		return errors.Wrap(err, "insert redemption")
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, c *Coupon) error {
	if err := c.CheckDefinition(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO coupons (id, code, discount_type, discount_value, minimum_order, max_usage,
			current_usage, user_limit, start_date, end_date, restaurant_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, c.ID, c.Code, string(c.DiscountType), c.DiscountValue, c.MinimumOrder, c.MaxUsage,
		c.UserLimit, c.StartDate, c.EndDate, c.RestaurantID, c.IsActive).Scan(&c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return errors.Wrap(err, "insert coupon")
	}
	c.CurrentUsage = 0
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Coupon, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		ORDER BY created_at DESC, code
	`)
	if err != nil {
		return nil, errors.Wrap(err, "select coupons")
	}
	defer rows.Close()

	coupons := []Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan coupon")
		}
		coupons = append(coupons, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows")
	}
	return coupons, nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE coupons SET is_active = false, updated_at = now()
		WHERE lower(code) = lower($1)
	`, NormalizeCode(code))
	if err != nil {
		return errors.Wrap(err, "deactivate coupon")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
