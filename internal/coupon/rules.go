package coupon

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Reason identifies why a coupon was refused.
type Reason string

const (
	ReasonInvalidCode   Reason = "invalid_code"
	ReasonNotYetActive  Reason = "not_yet_active"
	ReasonExpired       Reason = "expired"
	ReasonWrongScope    Reason = "wrong_restaurant"
	ReasonMinimumOrder  Reason = "minimum_order"
	ReasonUsageLimit    Reason = "usage_limit"
	ReasonUserLimit     Reason = "user_limit"
	ReasonNoLongerValid Reason = "no_longer_valid"
)

// Rejection is a user-facing refusal. Message is shown to the customer as is.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string { return r.Message }

// Is matches any rejection with the same reason, so formatted messages
// still compare equal to the sentinels below.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Reason == r.Reason
}

var (
	ErrInvalidCode       = &Rejection{Reason: ReasonInvalidCode, Message: "Invalid coupon code"}
	ErrNotYetActive      = &Rejection{Reason: ReasonNotYetActive, Message: "Coupon not yet active"}
	ErrExpired           = &Rejection{Reason: ReasonExpired, Message: "Coupon expired"}
	ErrWrongRestaurant   = &Rejection{Reason: ReasonWrongScope, Message: "Coupon not valid for this restaurant"}
	ErrMinimumOrder      = &Rejection{Reason: ReasonMinimumOrder, Message: "Minimum order not met"}
	ErrUsageLimitReached = &Rejection{Reason: ReasonUsageLimit, Message: "Coupon usage limit reached"}
	ErrUserLimitReached  = &Rejection{Reason: ReasonUserLimit, Message: "You have already used this coupon the maximum number of times"}
	// ErrCouponConflict is returned when a limit that held at validation time
	// no longer holds when the order is written.
	ErrCouponConflict = &Rejection{Reason: ReasonNoLongerValid, Message: "Coupon no longer valid"}
)

func minimumOrderRejection(minimum decimal.Decimal) *Rejection {
	return &Rejection{
		Reason:  ReasonMinimumOrder,
		Message: fmt.Sprintf("Minimum order of $%s required", minimum.StringFixed(2)),
	}
}

// Request carries the order context a coupon is checked against.
type Request struct {
	Code         string
	UserID       string
	RestaurantID string
	OrderAmount  decimal.Decimal
}

// Check applies the eligibility rules in order and returns the first failure.
// priorUses is the number of times req.UserID already redeemed c; it is only
// consulted when c.UserLimit is set.
func Check(c *Coupon, req Request, priorUses int, now time.Time) error {
	if c == nil || !c.IsActive {
		return ErrInvalidCode
	}

	if !c.StartDate.IsZero() && now.Before(c.StartDate) {
		return ErrNotYetActive
	}
	if !c.EndDate.IsZero() && now.After(c.EndDate) {
		return ErrExpired
	}

	if c.RestaurantID != nil && *c.RestaurantID != req.RestaurantID {
		return ErrWrongRestaurant
	}

	if req.OrderAmount.LessThan(c.MinimumOrder) {
		return minimumOrderRejection(c.MinimumOrder)
	}

	if c.MaxUsage != nil && c.CurrentUsage >= *c.MaxUsage {
		return ErrUsageLimitReached
	}

	if c.UserLimit != nil && priorUses >= *c.UserLimit {
		return ErrUserLimitReached
	}

	return nil
}
