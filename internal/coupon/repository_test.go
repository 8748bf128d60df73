package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
)

var couponRowColumns = []string{
	"id", "code", "discount_type", "discount_value", "minimum_order", "max_usage",
	"current_usage", "user_limit", "start_date", "end_date", "restaurant_id", "is_active", "created_at",
}

func couponRow(c *Coupon) *pgxmock.Rows {
	return pgxmock.NewRows(couponRowColumns).AddRow(
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue, c.MinimumOrder, c.MaxUsage,
		c.CurrentUsage, c.UserLimit, c.StartDate, c.EndDate, c.RestaurantID, c.IsActive, c.CreatedAt,
	)
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestPostgresRepository_FindByCode(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)
	want := activeCoupon()
	want.MaxUsage = intPtr(5)
	want.CurrentUsage = 2
	want.RestaurantID = strPtr("r-1")

	mock.ExpectQuery(`WHERE lower\(code\) = lower\(\$1\)`).
		WithArgs("save10").
		WillReturnRows(couponRow(want))

	got, err := repo.FindByCode(context.Background(), " save10 ")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, pricing.DiscountPercentage, got.DiscountType)
	require.NotNil(t, got.MaxUsage)
	assert.Equal(t, 5, *got.MaxUsage)
	assert.Nil(t, got.UserLimit)
	require.NotNil(t, got.RestaurantID)
	assert.Equal(t, "r-1", *got.RestaurantID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_FindByCodeMissing(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	mock.ExpectQuery(`FROM coupons`).WithArgs("GONE").WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindByCode(context.Background(), "GONE")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CountUserRedemptions(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	mock.ExpectQuery(`SELECT count\(\*\)\s+FROM coupon_redemptions`).
		WithArgs("c-1", "u-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountUserRedemptions(context.Background(), "c-1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_LockForRedemption(t *testing.T) {
	ctx := context.Background()
	req := Request{Code: "SAVE10", UserID: "u-1", RestaurantID: "r-1", OrderAmount: dec("20")}

	t.Run("eligible row is returned locked", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)
		c := activeCoupon()
		c.UserLimit = intPtr(2)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WithArgs("SAVE10").WillReturnRows(couponRow(c))
		mock.ExpectQuery(`FROM coupon_redemptions`).WithArgs("c-1", "u-1").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectRollback()

		tx, err := mock.Begin(ctx)
		require.NoError(t, err)
		got, err := repo.LockForRedemption(ctx, tx, req, clock)
		require.NoError(t, err)
		assert.Equal(t, "c-1", got.ID)
		require.NoError(t, tx.Rollback(ctx))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("usage exhausted by a concurrent order is a conflict", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)
		c := activeCoupon()
		c.MaxUsage = intPtr(1)
		c.CurrentUsage = 1

		mock.ExpectQuery(`FOR UPDATE`).WithArgs("SAVE10").WillReturnRows(couponRow(c))

		_, err := repo.LockForRedemption(ctx, mock, req, clock)
		require.ErrorIs(t, err, ErrCouponConflict)
		assert.Equal(t, "Coupon no longer valid", err.Error())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("per-user limit reached is a conflict", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)
		c := activeCoupon()
		c.UserLimit = intPtr(1)

		mock.ExpectQuery(`FOR UPDATE`).WithArgs("SAVE10").WillReturnRows(couponRow(c))
		mock.ExpectQuery(`FROM coupon_redemptions`).WithArgs("c-1", "u-1").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

		_, err := repo.LockForRedemption(ctx, mock, req, clock)
		require.ErrorIs(t, err, ErrCouponConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired coupon keeps its own rejection", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)
		c := activeCoupon()
		c.EndDate = clock.Add(-time.Hour)

		mock.ExpectQuery(`FOR UPDATE`).WithArgs("SAVE10").WillReturnRows(couponRow(c))

		_, err := repo.LockForRedemption(ctx, mock, req, clock)
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("deleted coupon is invalid", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		mock.ExpectQuery(`FOR UPDATE`).WithArgs("SAVE10").WillReturnError(pgx.ErrNoRows)

		_, err := repo.LockForRedemption(ctx, mock, req, clock)
		require.ErrorIs(t, err, ErrInvalidCode)
	})
}

func TestPostgresRepository_RecordRedemptionWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("guard holds", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		mock.ExpectExec(`UPDATE coupons\s+SET current_usage = current_usage \+ 1`).
			WithArgs("c-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`INSERT INTO coupon_redemptions`).
			WithArgs(pgxmock.AnyArg(), "c-1", "u-1", "o-1").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.RecordRedemptionWithTx(ctx, mock, "c-1", "u-1", "o-1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("guard fails", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		mock.ExpectExec(`UPDATE coupons`).
			WithArgs("c-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.RecordRedemptionWithTx(ctx, mock, "c-1", "u-1", "o-1")
		require.ErrorIs(t, err, ErrCouponConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts and stamps created_at", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)
		c := activeCoupon()
		c.ID = ""
		created := clock.Add(time.Second)

		mock.ExpectQuery(`INSERT INTO coupons`).
			WithArgs(pgxmock.AnyArg(), "SAVE10", "percentage", c.DiscountValue, c.MinimumOrder, c.MaxUsage,
				c.UserLimit, c.StartDate, c.EndDate, c.RestaurantID, true).
			WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

		require.NoError(t, repo.Create(ctx, c))
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, created, c.CreatedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate code", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		mock.ExpectQuery(`INSERT INTO coupons`).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err := repo.Create(ctx, activeCoupon())
		require.ErrorIs(t, err, ErrDuplicateCode)
	})

	t.Run("invalid definition never reaches the database", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)
		c := activeCoupon()
		c.Code = ""

		err := repo.Create(ctx, c)
		require.ErrorIs(t, err, ErrInvalidDefinition)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepository_ListAndDeactivate(t *testing.T) {
	ctx := context.Background()
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	a := activeCoupon()
	b := activeCoupon()
	b.ID = "c-2"
	b.Code = "FREESHIP"
	b.DiscountType = pricing.DiscountFreeDelivery

	rows := pgxmock.NewRows(couponRowColumns).
		AddRow(a.ID, a.Code, string(a.DiscountType), a.DiscountValue, a.MinimumOrder, a.MaxUsage,
			a.CurrentUsage, a.UserLimit, a.StartDate, a.EndDate, a.RestaurantID, a.IsActive, a.CreatedAt).
		AddRow(b.ID, b.Code, string(b.DiscountType), b.DiscountValue, b.MinimumOrder, b.MaxUsage,
			b.CurrentUsage, b.UserLimit, b.StartDate, b.EndDate, b.RestaurantID, b.IsActive, b.CreatedAt)
	mock.ExpectQuery(`ORDER BY created_at DESC`).WillReturnRows(rows)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, pricing.DiscountFreeDelivery, list[1].DiscountType)

	mock.ExpectExec(`SET is_active = false`).WithArgs("FREESHIP").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.Deactivate(ctx, "FREESHIP"))

	mock.ExpectExec(`SET is_active = false`).WithArgs("NOPE").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, repo.Deactivate(ctx, "NOPE"), ErrNotFound)

	mock.ExpectExec(`SET is_active = false`).WithArgs("BOOM").
		WillReturnError(errors.New("conn reset"))
	require.Error(t, repo.Deactivate(ctx, "BOOM"))

	require.NoError(t, mock.ExpectationsWereMet())
}
