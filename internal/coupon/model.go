// Package coupon holds coupon definitions, the eligibility rules applied to
// them, and the Postgres storage used for validation and redemption.
package coupon

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
)

type Coupon struct {
	ID            string               `json:"id"`
	Code          string               `json:"code"`
	DiscountType  pricing.DiscountType `json:"discountType"`
	DiscountValue decimal.Decimal      `json:"discountValue"`
	MinimumOrder  decimal.Decimal      `json:"minimumOrder"`
	MaxUsage      *int                 `json:"maxUsage,omitempty"`
	CurrentUsage  int                  `json:"currentUsage"`
	UserLimit     *int                 `json:"userLimit,omitempty"`
	StartDate     time.Time            `json:"startDate"`
	EndDate       time.Time            `json:"endDate"`
	RestaurantID  *string              `json:"restaurantId,omitempty"`
	IsActive      bool                 `json:"isActive"`
	CreatedAt     time.Time            `json:"createdAt"`
}

// Offer is the part of the coupon that drives the discount calculation.
func (c Coupon) Offer() pricing.Offer {
	value := c.DiscountValue
	if c.DiscountType == pricing.DiscountFreeDelivery {
		value = decimal.Zero
	}
	return pricing.Offer{Type: c.DiscountType, Value: value}
}

// NormalizeCode trims surrounding space. Lookups compare case-insensitively.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}

var ErrInvalidDefinition = errors.New("invalid coupon definition")

// CheckDefinition validates a coupon before it is stored.
func (c *Coupon) CheckDefinition() error {
	c.Code = NormalizeCode(c.Code)
	if c.Code == "" {
		return errors.Wrap(ErrInvalidDefinition, "code is required")
	}
	if !c.DiscountType.Valid() {
		return errors.Wrapf(ErrInvalidDefinition, "unknown discount type %q", c.DiscountType)
	}
	if c.DiscountType == pricing.DiscountFreeDelivery {
		c.DiscountValue = decimal.Zero
	}
	if c.DiscountValue.IsNegative() {
		return errors.Wrap(ErrInvalidDefinition, "discount value must not be negative")
	}
	if c.DiscountType == pricing.DiscountPercentage && c.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return errors.Wrap(ErrInvalidDefinition, "percentage must be within [0, 100]")
	}
	if c.MinimumOrder.IsNegative() {
		return errors.Wrap(ErrInvalidDefinition, "minimum order must not be negative")
	}
	if c.MaxUsage != nil && *c.MaxUsage < 0 {
		return errors.Wrap(ErrInvalidDefinition, "max usage must not be negative")
	}
	if c.UserLimit != nil && *c.UserLimit < 1 {
		return errors.Wrap(ErrInvalidDefinition, "user limit must be at least 1")
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return errors.Wrap(ErrInvalidDefinition, "start and end dates are required")
	}
	if c.EndDate.Before(c.StartDate) {
		return errors.Wrap(ErrInvalidDefinition, "end date is before start date")
	}
	if c.RestaurantID != nil && strings.TrimSpace(*c.RestaurantID) == "" {
		c.RestaurantID = nil
	}
	return nil
}
