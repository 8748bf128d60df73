package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
)

var (
	ErrItemNotFound    = errors.New("item not in cart")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

type Repository interface {
	GetCart(ctx context.Context, userID string) (*Cart, error)
	Lines(ctx context.Context, userID string) ([]pricing.CartLine, error)
	AddItem(ctx context.Context, userID string, line pricing.CartLine) error
	UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error
	Remove(ctx context.Context, userID, itemID string) error
	Clear(ctx context.Context, userID string) error
}

type repo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repo{db: db}
}

// GetCart returns nil, nil when the user has no cart yet.
func (r *repo) GetCart(ctx context.Context, userID string) (*Cart, error) {
	const cartQuery = `SELECT id, user_id, updated_at FROM carts WHERE user_id = $1`

	var c Cart
	err := r.db.QueryRowContext(ctx, cartQuery, userID).Scan(&c.ID, &c.UserID, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}

	c.Lines, err = r.linesFor(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) Lines(ctx context.Context, userID string) ([]pricing.CartLine, error) {
	c, err := r.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return []pricing.CartLine{}, nil
	}
	return c.Lines, nil
}

func (r *repo) linesFor(ctx context.Context, cartID string) ([]pricing.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, name, unit_price, quantity, restaurant_id
		FROM cart_items WHERE cart_id = $1
		ORDER BY added_at, item_id
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("select cart_items: %w", err)
	}
	defer rows.Close()

	lines := []pricing.CartLine{}
	for rows.Next() {
		var l pricing.CartLine
		if err := rows.Scan(&l.ItemID, &l.Name, &l.UnitPrice, &l.Quantity, &l.RestaurantID); err != nil {
			return nil, fmt.Errorf("scan cart_item: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return lines, nil
}

// AddItem creates the cart on first use and adds to the quantity of an item
// already present.
func (r *repo) AddItem(ctx context.Context, userID string, line pricing.CartLine) (err error) {
	if line.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if line.UnitPrice.IsNegative() {
		return pricing.ErrInvalidLine
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const upsertCartSQL = `
INSERT INTO carts (id, user_id, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id) DO UPDATE
SET updated_at = NOW()
RETURNING id
`
	var cartID string
	if err = tx.QueryRowContext(ctx, upsertCartSQL, uuid.NewString(), userID).Scan(&cartID); err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}

	const upsertItemSQL = `
INSERT INTO cart_items (id, cart_id, item_id, name, unit_price, quantity, restaurant_id, added_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (cart_id, item_id) DO UPDATE
SET quantity = cart_items.quantity + EXCLUDED.quantity,
    name = EXCLUDED.name,
    unit_price = EXCLUDED.unit_price
`
	if _, err = tx.ExecContext(ctx, upsertItemSQL,
		uuid.NewString(), cartID, line.ItemID, line.Name, line.UnitPrice, line.Quantity, line.RestaurantID,
	); err != nil {
		return fmt.Errorf("upsert cart_item: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateQuantity sets an item's quantity. Zero removes the item.
func (r *repo) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	if quantity == 0 {
		return r.Remove(ctx, userID, itemID)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $3
		WHERE item_id = $2 AND cart_id = (SELECT id FROM carts WHERE user_id = $1)
	`, userID, itemID, quantity)
	if err != nil {
		return fmt.Errorf("update quantity: %w", err)
	}
	return requireAffected(res)
}

func (r *repo) Remove(ctx context.Context, userID, itemID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE item_id = $2 AND cart_id = (SELECT id FROM carts WHERE user_id = $1)
	`, userID, itemID)
	if err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	return requireAffected(res)
}

// Clear deletes the cart; items go with it through the foreign key cascade.
func (r *repo) Clear(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}
