package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Finder is the read side the validator needs.
type Finder interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	CountUserRedemptions(ctx context.Context, couponID, userID string) (int, error)
}

// Result mirrors the validate endpoint: either Valid with the coupon, or an error message.
type Result struct {
	Valid  bool    `json:"valid"`
	Coupon *Coupon `json:"coupon,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Validator answers whether a coupon is usable right now. It never mutates usage.
type Validator struct {
	store Finder
	log   *zap.Logger
	now   func() time.Time
}

func NewValidator(store Finder, log *zap.Logger) *Validator {
	return &Validator{store: store, log: log, now: time.Now}
}

// WithClock replaces the time source.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate returns a non-nil error only for infrastructure failures. Every rule
// failure is reported through Result.
func (v *Validator) Validate(ctx context.Context, req Request) (Result, error) {
	req.Code = NormalizeCode(req.Code)
	if req.Code == "" {
		return reject(ErrInvalidCode), nil
	}

	c, err := v.store.FindByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reject(ErrInvalidCode), nil
		}
		return Result{}, errors.Wrap(err, "find coupon")
	}

	priorUses := 0
	if c.IsActive && c.UserLimit != nil && req.UserID != "" {
		priorUses, err = v.store.CountUserRedemptions(ctx, c.ID, req.UserID)
		if err != nil {
			return Result{}, errors.Wrap(err, "count redemptions")
		}
	}

	if err := Check(c, req, priorUses, v.now()); err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			v.log.Debug("coupon rejected",
				zap.String("code", req.Code),
				zap.String("reason", string(rej.Reason)),
			)
			return reject(rej), nil
		}
		return Result{}, err
	}

	return Result{Valid: true, Coupon: c}, nil
}

func reject(r *Rejection) Result {
	return Result{Valid: false, Error: r.Message}
}
