package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard
}

type Customer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type Address struct {
	Street       string `json:"street"`
	City         string `json:"city"`
	PostalCode   string `json:"postalCode"`
	Instructions string `json:"instructions,omitempty"`
}

type Item struct {
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

type Order struct {
	ID                string         `json:"orderId"`
	UserID            string         `json:"userId"`
	RestaurantID      string         `json:"restaurantId"`
	Status            Status         `json:"status"`
	Totals            pricing.Totals `json:"totals"`
	CouponCode        *string        `json:"couponCode,omitempty"`
	Customer          Customer       `json:"customer"`
	Delivery          Address        `json:"delivery"`
	Items             []Item         `json:"items"`
	PaymentMethod     PaymentMethod  `json:"paymentMethod"`
	PaymentReference  *string        `json:"paymentReference,omitempty"`
	DeliveryReference *string        `json:"deliveryReference,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// Lines converts the order items back into priceable cart lines.
func (o *Order) Lines() []pricing.CartLine {
	lines := make([]pricing.CartLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, pricing.CartLine{
			ItemID:       it.ItemID,
			Name:         it.Name,
			UnitPrice:    it.UnitPrice,
			Quantity:     it.Quantity,
			RestaurantID: o.RestaurantID,
		})
	}
	return lines
}
