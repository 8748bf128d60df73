package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("order not found")

const paymentReferenceIndex = "orders_payment_reference_uidx"

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Executor is satisfied by both the pool and a pgx.Tx.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	GetByID(ctx context.Context, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID string, to Status) (*Order, error)
	SetDeliveryReference(ctx context.Context, orderID, reference string) error
}

type TransactionalRepository interface {
	Repository
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	CreateWithTx(ctx context.Context, tx Executor, o *Order) error
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, txOptions)
}

// CreateWithTx writes the order row and its items. Totals are stored rounded.
func (r *PostgresRepository) CreateWithTx(ctx context.Context, tx Executor, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	t := o.Totals.Rounded()

	_, err := tx.Exec(ctx, `
		INSERT INTO orders (
			id, user_id, restaurant_id, status,
			subtotal, delivery_fee, service_fee, discount_amount, tax, total, coupon_code,
			customer_first_name, customer_last_name, customer_email, customer_phone,
			delivery_street, delivery_city, delivery_postal_code, delivery_instructions,
			payment_method, payment_reference, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $22)
	`,
		o.ID, o.UserID, o.RestaurantID, string(o.Status),
		t.Subtotal, t.DeliveryFee, t.ServiceFee, t.DiscountAmount, t.Tax, t.Total, o.CouponCode,
		o.Customer.FirstName, o.Customer.LastName, o.Customer.Email, o.Customer.Phone,
		o.Delivery.Street, o.Delivery.City, o.Delivery.PostalCode, o.Delivery.Instructions,
		string(o.PaymentMethod), o.PaymentReference, o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == paymentReferenceIndex {
			return ErrPaymentAlreadyUsed
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, item_id, name, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), o.ID, it.ItemID, it.Name, it.UnitPrice, it.Quantity)
		if err != nil {
			return fmt.Errorf("insert order_item: %w", err)
		}
	}

	o.Totals = t
	o.UpdatedAt = o.CreatedAt
	return nil
}

const orderColumns = `o.id, o.user_id, o.restaurant_id, o.status,
		o.subtotal, o.delivery_fee, o.service_fee, o.discount_amount, o.tax, o.total, o.coupon_code,
		o.customer_first_name, o.customer_last_name, o.customer_email, o.customer_phone,
		o.delivery_street, o.delivery_city, o.delivery_postal_code, o.delivery_instructions,
		o.payment_method, o.payment_reference, o.delivery_reference, o.created_at, o.updated_at`

func orderDest(o *Order, status, method *string) []any {
	return []any{
		&o.ID, &o.UserID, &o.RestaurantID, status,
		&o.Totals.Subtotal, &o.Totals.DeliveryFee, &o.Totals.ServiceFee, &o.Totals.DiscountAmount,
		&o.Totals.Tax, &o.Totals.Total, &o.CouponCode,
		&o.Customer.FirstName, &o.Customer.LastName, &o.Customer.Email, &o.Customer.Phone,
		&o.Delivery.Street, &o.Delivery.City, &o.Delivery.PostalCode, &o.Delivery.Instructions,
		method, &o.PaymentReference, &o.DeliveryReference, &o.CreatedAt, &o.UpdatedAt,
	}
}

func (r *PostgresRepository) GetByID(ctx context.Context, orderID string) (*Order, error) {
	var (
		o              Order
		status, method string
	)
	err := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, orderID).
		Scan(orderDest(&o, &status, &method)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	o.Status = Status(status)
	o.PaymentMethod = PaymentMethod(method)

	rows, err := r.pool.Query(ctx, `
		SELECT item_id, name, unit_price, quantity
		FROM order_items WHERE order_id = $1
		ORDER BY item_id
	`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("select order_items: %w", err)
	}
	defer rows.Close()

	o.Items = []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ItemID, &it.Name, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan order_item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return &o, nil
}

// ListByUser loads a user's orders newest first, items included, in one query.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`,
			oi.item_id, oi.name, oi.unit_price, oi.quantity
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id, oi.item_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	index := map[string]int{}
	for rows.Next() {
		var (
			o              Order
			status, method string
			itemID, name   *string
			unitPrice      decimal.NullDecimal
			quantity       *int
		)
		dest := append(orderDest(&o, &status, &method), &itemID, &name, &unitPrice, &quantity)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}

		i, seen := index[o.ID]
		if !seen {
			o.Status = Status(status)
			o.PaymentMethod = PaymentMethod(method)
			o.Items = []Item{}
			orders = append(orders, o)
			i = len(orders) - 1
			index[o.ID] = i
		}
		if itemID != nil {
			it := Item{ItemID: *itemID, UnitPrice: unitPrice.Decimal}
			if name != nil {
				it.Name = *name
			}
			if quantity != nil {
				it.Quantity = *quantity
			}
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return orders, nil
}

// UpdateStatus moves an order along its lifecycle. Delivered and cancelled
// orders are immutable.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, orderID string, to Status) (*Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if err := checkTransition(Status(current), to); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1
	`, orderID, string(to)); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return r.GetByID(ctx, orderID)
}

func (r *PostgresRepository) SetDeliveryReference(ctx context.Context, orderID, reference string) error {
	return r.SetDeliveryReferenceWithTx(ctx, r.pool, orderID, reference)
}

// SetDeliveryReferenceWithTx records the external delivery id using tx.
func (r *PostgresRepository) SetDeliveryReferenceWithTx(ctx context.Context, tx Executor, orderID, reference string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE orders SET delivery_reference = $2, updated_at = now()
		WHERE id = $1
	`, orderID, reference)
	if err != nil {
		return fmt.Errorf("set delivery reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
