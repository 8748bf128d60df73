package testutil

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// SeedOpenRestaurant inserts a restaurant that is open around the clock.
func SeedOpenRestaurant(t *testing.T, pool *pgxpool.Pool, id string) {
	t.Helper()
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO restaurants (id, name, address, phone, timezone, is_accepting_orders)
		VALUES ($1, 'West Row Kitchen', '1 West Row, Mildenhall', '+441638000000', 'UTC', true)
	`, id)
	require.NoError(t, err)

	for day := 0; day < 7; day++ {
		_, err := pool.Exec(ctx, `
			INSERT INTO restaurant_hours (restaurant_id, day_of_week, opens_minute, closes_minute)
			VALUES ($1, $2, 0, 1440)
		`, id, day)
		require.NoError(t, err)
	}
}
