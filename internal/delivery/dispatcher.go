package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/dedup"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/events"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/order"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/restaurant"
)

const ConsumerName = "checkout-delivery-dispatch"

type Creator interface {
	CreateDelivery(ctx context.Context, req Request) (Delivery, error)
}

type PickupSource interface {
	Pickup(ctx context.Context, restaurantID string) (restaurant.Pickup, error)
}

type OrderStore interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	SetDeliveryReferenceWithTx(ctx context.Context, tx order.Executor, orderID, reference string) error
}

// Dispatcher books a delivery for every OrderCreated event exactly once per
// order sequence.
type Dispatcher struct {
	orders  OrderStore
	pickups PickupSource
	seen    *dedup.Checkpoints
	drive   Creator
	log     *zap.Logger
}

func NewDispatcher(orders OrderStore, pickups PickupSource, seen *dedup.Checkpoints, drive Creator, log *zap.Logger) *Dispatcher {
	return &Dispatcher{orders: orders, pickups: pickups, seen: seen, drive: drive, log: log}
}

// Handle is an events.HandlerFunc for order.created.v1.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) error {
	env, err := events.ParseOrderCreated(body)
	if err != nil {
		return err
	}
	p := env.Payload
	seq := env.Seq()

	if seq != 0 {
		dup, err := d.seen.Seen(ctx, ConsumerName, env.PartitionKey, seq)
		if err != nil {
			return err
		}
		if dup {
			d.log.Info("skip duplicate event", zap.String("orderId", p.OrderID), zap.Int64("sequence", seq))
			return nil
		}
	}

	pickup, err := d.pickups.Pickup(ctx, p.RestaurantID)
	if err != nil {
		return fmt.Errorf("pickup for restaurant %s: %w", p.RestaurantID, err)
	}

	booked, err := d.drive.CreateDelivery(ctx, buildRequest(p, pickup))
	if err != nil && !errors.Is(err, ErrDuplicate) {
		return fmt.Errorf("create delivery for order %s: %w", p.OrderID, err)
	}
	ref := booked.ExternalDeliveryID
	if ref == "" {
		ref = p.OrderID
	}

	tx, err := d.orders.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := d.orders.SetDeliveryReferenceWithTx(ctx, tx, p.OrderID, ref); err != nil {
		return err
	}
	if seq != 0 {
		if err := d.seen.In(tx).Advance(ctx, ConsumerName, env.PartitionKey, seq); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delivery reference: %w", err)
	}

	d.log.Info("delivery booked",
		zap.String("orderId", p.OrderID),
		zap.String("deliveryId", ref),
		zap.String("status", booked.DeliveryStatus),
		zap.String("correlationId", env.CorrelationID),
	)
	return nil
}

func buildRequest(p events.OrderCreatedPayload, pickup restaurant.Pickup) Request {
	dropoff := strings.Join(nonEmpty(p.Delivery.Street, p.Delivery.City, p.Delivery.PostalCode), ", ")
	return Request{
		ExternalDeliveryID:       p.OrderID,
		PickupAddress:            pickup.Address,
		PickupBusinessName:       pickup.Name,
		PickupPhoneNumber:        pickup.Phone,
		DropoffAddress:           dropoff,
		DropoffPhoneNumber:       p.Customer.Phone,
		DropoffContactGivenName:  p.Customer.FirstName,
		DropoffContactFamilyName: p.Customer.LastName,
		DropoffInstructions:      p.Delivery.Instructions,
		OrderValue:               p.Totals.Subtotal.Round(2).Shift(2).IntPart(),
	}
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
