package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/order"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
)

const (
	OrderCreatedEventName    = "OrderCreated"
	OrderCreatedEventVersion = 1
	orderCreatedSchema       = "contracts/events/order/OrderCreated.v1.payload.schema.json"
)

type OrderItem struct {
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type OrderCreatedPayload struct {
	OrderID       string              `json:"orderId"`
	UserID        string              `json:"userId"`
	RestaurantID  string              `json:"restaurantId"`
	Customer      order.Customer      `json:"customer"`
	Delivery      order.Address       `json:"delivery"`
	Items         []OrderItem         `json:"items"`
	Totals        pricing.Totals      `json:"totals"`
	CouponCode    string              `json:"couponCode,omitempty"`
	PaymentMethod order.PaymentMethod `json:"paymentMethod"`
	CreatedAt     time.Time           `json:"createdAt"`
}

type OrderCreatedEnvelope = EventEnvelope[OrderCreatedPayload]

// BuildOrderCreatedEnvelope wraps o with the next sequence for its partition.
func BuildOrderCreatedEnvelope(o *order.Order, seq int64, producer string, trace Trace, occurredAt time.Time) OrderCreatedEnvelope {
	if trace.CorrelationID == "" {
		trace.CorrelationID = uuid.NewString()
	}

	items := make([]OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItem{
			ItemID:    it.ItemID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	payload := OrderCreatedPayload{
		OrderID:       o.ID,
		UserID:        o.UserID,
		RestaurantID:  o.RestaurantID,
		Customer:      o.Customer,
		Delivery:      o.Delivery,
		Items:         items,
		Totals:        o.Totals.Rounded(),
		PaymentMethod: o.PaymentMethod,
		CreatedAt:     o.CreatedAt,
	}
	if o.CouponCode != nil {
		payload.CouponCode = *o.CouponCode
	}

	return OrderCreatedEnvelope{
		EventName:     OrderCreatedEventName,
		EventVersion:  OrderCreatedEventVersion,
		EventID:       uuid.NewString(),
		CorrelationID: trace.CorrelationID,
		CausationID:   trace.CausationID,
		Producer:      producer,
		PartitionKey:  o.ID,
		Sequence:      &seq,
		OccurredAt:    occurredAt.UTC(),
		Schema:        orderCreatedSchema,
		Payload:       payload,
	}
}

// ParseOrderCreated decodes and validates an OrderCreated message body.
func ParseOrderCreated(body []byte) (OrderCreatedEnvelope, error) {
	var env OrderCreatedEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("unmarshal OrderCreated: %w", err)
	}
	if err := env.expect(OrderCreatedEventName, OrderCreatedEventVersion); err != nil {
		return env, err
	}
	if env.Payload.OrderID == "" {
		return env, fmt.Errorf("missing orderId")
	}
	return env, nil
}
