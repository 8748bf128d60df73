// Package checkout drives a customer from cart review to a placed order.
//
// All progress lives in a Session value that is loaded, advanced by one
// Machine operation, and saved back through a SessionStore. Nothing about a
// checkout is kept anywhere else.
package checkout

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/order"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
)

type State string

const (
	StateCartReview       State = "cart_review"
	StateContactInfo      State = "contact_info"
	StateCouponOptional   State = "coupon_optional"
	StatePaymentSelection State = "payment_selection"
	StateSubmitting       State = "submitting"
	StateConfirmed        State = "confirmed"
	StateFailed           State = "failed"
	StateCancelled        State = "cancelled"
)

// Final states accept no further operations.
func (s State) Final() bool {
	return s == StateConfirmed || s == StateCancelled
}

// User is the authenticated customer driving the checkout.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// AppliedCoupon is a validated coupon plus its effect on the current cart.
type AppliedCoupon struct {
	Code             string               `json:"code"`
	DiscountType     pricing.DiscountType `json:"discountType"`
	DiscountValue    decimal.Decimal      `json:"discountValue"`
	ItemDiscount     decimal.Decimal      `json:"itemDiscount"`
	DeliveryDiscount decimal.Decimal      `json:"deliveryDiscount"`
}

func (c *AppliedCoupon) offer() *pricing.Offer {
	if c == nil {
		return nil
	}
	return &pricing.Offer{Type: c.DiscountType, Value: c.DiscountValue}
}

type Payment struct {
	Method       order.PaymentMethod `json:"method"`
	IntentID     string              `json:"intentId,omitempty"`
	ClientSecret string              `json:"clientSecret,omitempty"`
	AmountMinor  int64               `json:"amountMinor,omitempty"`
	Status       string              `json:"status,omitempty"`
}

// Session is the whole checkout. It is plain data and round-trips through JSON.
type Session struct {
	ID           string             `json:"id"`
	UserID       string             `json:"userId"`
	State        State              `json:"state"`
	Lines        []pricing.CartLine `json:"lines"`
	RestaurantID string             `json:"restaurantId,omitempty"`
	Customer     order.Customer     `json:"customer"`
	Delivery     order.Address      `json:"delivery"`
	Coupon       *AppliedCoupon     `json:"coupon,omitempty"`
	CouponError  string             `json:"couponError,omitempty"`
	Totals       pricing.Totals     `json:"totals"`
	Payment      *Payment           `json:"payment,omitempty"`
	OrderID      string             `json:"orderId,omitempty"`
	Failure      *Failure           `json:"failure,omitempty"`
	Version      int64              `json:"version"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// reprice recomputes totals and the applied coupon's amounts from the lines.
func (s *Session) reprice(policy pricing.Policy) error {
	totals, err := policy.Assemble(s.Lines, s.Coupon.offer())
	if err != nil {
		s.Totals = pricing.Totals{}
		return err
	}
	s.Totals = totals
	if s.Coupon != nil {
		subtotal := totals.Subtotal
		base := decimal.Zero
		if subtotal.IsPositive() {
			base = policy.DeliveryFee
		}
		d := pricing.ComputeDiscount(s.Coupon.offer(), subtotal, base)
		s.Coupon.ItemDiscount = d.ItemDiscount
		s.Coupon.DeliveryDiscount = d.DeliveryDiscount
	}
	return nil
}

func (s *Session) couponCode() string {
	if s.Coupon == nil {
		return ""
	}
	return s.Coupon.Code
}
