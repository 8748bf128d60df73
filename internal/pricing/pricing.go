// Package pricing turns cart lines and an optional coupon offer into order totals.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrMultipleRestaurants is returned when cart lines belong to more than one restaurant.
	ErrMultipleRestaurants = errors.New("cart contains items from more than one restaurant")
	// ErrInvalidLine is returned for a line with a non-positive quantity or a negative price.
	ErrInvalidLine = errors.New("invalid cart line")
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	DiscountPercentage   DiscountType = "percentage"
	DiscountFixed        DiscountType = "fixed"
	DiscountFreeDelivery DiscountType = "free_delivery"
)

func (t DiscountType) Valid() bool {
	switch t {
	case DiscountPercentage, DiscountFixed, DiscountFreeDelivery:
		return true
	default:
		return false
	}
}

// CartLine is a single item in a cart snapshot.
type CartLine struct {
	ItemID       string          `json:"itemId"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Quantity     int             `json:"quantity"`
	RestaurantID string          `json:"restaurantId"`
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Offer is the part of a coupon the calculator needs.
type Offer struct {
	Type  DiscountType    `json:"discountType"`
	Value decimal.Decimal `json:"discountValue"`
}

// Discount splits a coupon's effect between items and delivery.
type Discount struct {
	ItemDiscount     decimal.Decimal `json:"itemDiscount"`
	DeliveryDiscount decimal.Decimal `json:"deliveryDiscount"`
}

// Totals holds unrounded amounts. Use Rounded for anything shown or charged.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryFee    decimal.Decimal `json:"deliveryFee"`
	ServiceFee     decimal.Decimal `json:"serviceFee"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
}

// Rounded returns every field rounded half-up to two decimal places.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal:       t.Subtotal.Round(2),
		DeliveryFee:    t.DeliveryFee.Round(2),
		ServiceFee:     t.ServiceFee.Round(2),
		DiscountAmount: t.DiscountAmount.Round(2),
		Tax:            t.Tax.Round(2),
		Total:          t.Total.Round(2),
	}
}

// Equal compares two totals field by field.
func (t Totals) Equal(o Totals) bool {
	return t.Subtotal.Equal(o.Subtotal) &&
		t.DeliveryFee.Equal(o.DeliveryFee) &&
		t.ServiceFee.Equal(o.ServiceFee) &&
		t.DiscountAmount.Equal(o.DiscountAmount) &&
		t.Tax.Equal(o.Tax) &&
		t.Total.Equal(o.Total)
}

// MinorUnits converts the rounded total to cents.
func (t Totals) MinorUnits() int64 {
	return t.Total.Round(2).Shift(2).IntPart()
}

// Policy is the single source of fee and tax constants.
type Policy struct {
	DeliveryFee    decimal.Decimal
	ServiceFeeRate decimal.Decimal
	TaxRate        decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		DeliveryFee:    decimal.RequireFromString("2.99"),
		ServiceFeeRate: decimal.RequireFromString("0.05"),
		TaxRate:        decimal.RequireFromString("0.0875"),
	}
}

func (p Policy) Validate() error {
	if p.DeliveryFee.IsNegative() {
		return errors.New("delivery fee must not be negative")
	}
	if p.ServiceFeeRate.IsNegative() || p.ServiceFeeRate.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("service fee rate must be within [0, 1]")
	}
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("tax rate must be within [0, 1]")
	}
	return nil
}
