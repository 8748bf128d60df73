package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeDiscount converts an offer into concrete item and delivery discounts.
// A nil offer yields a zero discount.
func ComputeDiscount(offer *Offer, subtotal, baseDeliveryFee decimal.Decimal) Discount {
	d := Discount{ItemDiscount: decimal.Zero, DeliveryDiscount: decimal.Zero}
	if offer == nil || !subtotal.IsPositive() {
		return d
	}

	switch offer.Type {
	case DiscountPercentage:
		pct := clamp(offer.Value, decimal.Zero, hundred)
		d.ItemDiscount = decimal.Min(subtotal.Mul(pct).Div(hundred), subtotal)
	case DiscountFixed:
		d.ItemDiscount = clamp(offer.Value, decimal.Zero, subtotal)
	case DiscountFreeDelivery:
		d.DeliveryDiscount = baseDeliveryFee
	}
	return d
}

// RestaurantOf returns the single restaurant the lines belong to.
// An empty slice yields "".
func RestaurantOf(lines []CartLine) (string, error) {
	restaurantID := ""
	for _, l := range lines {
		if restaurantID == "" {
			restaurantID = l.RestaurantID
			continue
		}
		if l.RestaurantID != restaurantID {
			return "", ErrMultipleRestaurants
		}
	}
	return restaurantID, nil
}

// Subtotal sums line totals after validating each line.
func Subtotal(lines []CartLine) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, l := range lines {
		if l.Quantity < 1 || l.UnitPrice.IsNegative() {
			return decimal.Zero, errors.Wrapf(ErrInvalidLine, "item %q", l.ItemID)
		}
		sum = sum.Add(l.LineTotal())
	}
	return sum, nil
}

// Assemble computes the order totals for a cart snapshot and an optional offer.
func (p Policy) Assemble(lines []CartLine, offer *Offer) (Totals, error) {
	if _, err := RestaurantOf(lines); err != nil {
		return Totals{}, err
	}
	subtotal, err := Subtotal(lines)
	if err != nil {
		return Totals{}, err
	}

	baseDeliveryFee := decimal.Zero
	if subtotal.IsPositive() {
		baseDeliveryFee = p.DeliveryFee
	}
	serviceFee := subtotal.Mul(p.ServiceFeeRate)

	discount := ComputeDiscount(offer, subtotal, baseDeliveryFee)
	deliveryFee := decimal.Max(decimal.Zero, baseDeliveryFee.Sub(discount.DeliveryDiscount))
	discountedSubtotal := subtotal.Sub(discount.ItemDiscount)

	taxable := discountedSubtotal.Add(deliveryFee).Add(serviceFee)
	tax := taxable.Mul(p.TaxRate)

	return Totals{
		Subtotal:       subtotal,
		DeliveryFee:    deliveryFee,
		ServiceFee:     serviceFee,
		DiscountAmount: discount.ItemDiscount,
		Tax:            tax,
		Total:          taxable.Add(tax),
	}, nil
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
