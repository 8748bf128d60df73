package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/coupon"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/restaurant"
)

var (
	ErrEmptyOrder       = errors.New("order has no items")
	ErrInvalidRequest   = errors.New("invalid order request")
	ErrRestaurantClosed = errors.New("restaurant is closed")
	ErrTotalsMismatch   = errors.New("order totals do not match current prices")
	ErrPaymentNotPaid   = errors.New("card payment has not been confirmed")
)

// ErrPaymentAlreadyUsed means another order already holds the payment reference.
var ErrPaymentAlreadyUsed = errors.New("payment already used for another order")

// CouponRedeemer reads, locks and consumes a coupon. Only LockForRedemption
// and RecordRedemptionWithTx run inside the order transaction.
type CouponRedeemer interface {
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
	LockForRedemption(ctx context.Context, tx coupon.Executor, req coupon.Request, now time.Time) (*coupon.Coupon, error)
	RecordRedemptionWithTx(ctx context.Context, tx coupon.Executor, couponID, userID, orderID string) error
}

type RestaurantStatus interface {
	Status(ctx context.Context, restaurantID string) (restaurant.Status, error)
}

// PaymentVerifier confirms a card payment reference was paid by userID and
// covers the amount due.
type PaymentVerifier interface {
	VerifyPaid(ctx context.Context, reference, userID string, amountMinor int64) error
}

// Publisher announces committed orders. Failures never undo the order.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, o *Order) error
}

type PlaceRequest struct {
	UserID           string
	RestaurantID     string
	Lines            []pricing.CartLine
	Customer         Customer
	Delivery         Address
	CouponCode       string
	PaymentMethod    PaymentMethod
	PaymentReference string
	// ClientTotals, when set, must match the server computation after rounding.
	ClientTotals *pricing.Totals
}

type Service struct {
	repo        TransactionalRepository
	coupons     CouponRedeemer
	restaurants RestaurantStatus
	publisher   Publisher
	payments    PaymentVerifier
	policy      pricing.Policy
	log         *zap.Logger
	now         func() time.Time
}

func NewService(repo TransactionalRepository, coupons CouponRedeemer, restaurants RestaurantStatus, publisher Publisher, policy pricing.Policy, log *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		coupons:     coupons,
		restaurants: restaurants,
		publisher:   publisher,
		policy:      policy,
		log:         log,
		now:         time.Now,
	}
}

// WithPaymentVerifier makes card orders require a verified payment reference.
func (s *Service) WithPaymentVerifier(v PaymentVerifier) *Service {
	s.payments = v
	return s
}

// Place creates a pending order. Coupon eligibility is re-checked against the
// locked coupon row, and usage is consumed in the same transaction as the
// order insert, so two orders can never both take the last use.
//
// Card payments are verified before the transaction opens so the provider
// call never holds the coupon row lock. The locked totals must then match
// the verified amount.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*Order, error) {
	if err := validatePlaceRequest(&req); err != nil {
		return nil, err
	}

	st, err := s.restaurants.Status(ctx, req.RestaurantID)
	if err != nil {
		return nil, fmt.Errorf("restaurant status: %w", err)
	}
	if !st.Open {
		if st.NextOpening != "" {
			return nil, fmt.Errorf("%w: %s", ErrRestaurantClosed, st.NextOpening)
		}
		return nil, ErrRestaurantClosed
	}

	subtotal, err := pricing.Subtotal(req.Lines)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	var verified *pricing.Totals
	if req.PaymentMethod == PaymentCard && s.payments != nil {
		quoted, err := s.quote(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := s.payments.VerifyPaid(ctx, req.PaymentReference, req.UserID, quoted.MinorUnits()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentNotPaid, err)
		}
		verified = &quoted
	}

	tx, err := s.repo.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		applied *coupon.Coupon
		offer   *pricing.Offer
	)
	if req.CouponCode != "" {
		applied, err = s.coupons.LockForRedemption(ctx, tx, coupon.Request{
			Code:         req.CouponCode,
			UserID:       req.UserID,
			RestaurantID: req.RestaurantID,
			OrderAmount:  subtotal,
		}, now)
		if err != nil {
			return nil, err
		}
		o := applied.Offer()
		offer = &o
	}

	totals, err := s.policy.Assemble(req.Lines, offer)
	if err != nil {
		return nil, err
	}
	if req.ClientTotals != nil && !req.ClientTotals.Rounded().Equal(totals.Rounded()) {
		return nil, ErrTotalsMismatch
	}
	if verified != nil && verified.MinorUnits() != totals.MinorUnits() {
		return nil, ErrTotalsMismatch
	}

	o := &Order{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		RestaurantID:  req.RestaurantID,
		Status:        StatusPending,
		Totals:        totals,
		Customer:      req.Customer,
		Delivery:      req.Delivery,
		Items:         itemsFromLines(req.Lines),
		PaymentMethod: req.PaymentMethod,
		CreatedAt:     now,
	}
	if applied != nil {
		code := applied.Code
		o.CouponCode = &code
	}
	if req.PaymentReference != "" {
		ref := req.PaymentReference
		o.PaymentReference = &ref
	}

	if err := s.repo.CreateWithTx(ctx, tx, o); err != nil {
		return nil, err
	}
	if applied != nil {
		if err := s.coupons.RecordRedemptionWithTx(ctx, tx, applied.ID, req.UserID, o.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.log.Info("order placed",
		zap.String("orderId", o.ID),
		zap.String("userId", o.UserID),
		zap.String("restaurantId", o.RestaurantID),
		zap.String("total", o.Totals.Total.StringFixed(2)),
	)

	if s.publisher != nil {
		if err := s.publisher.PublishOrderCreated(ctx, o); err != nil {
			s.log.Warn("publish order created failed", zap.String("orderId", o.ID), zap.Error(err))
		}
	}
	return o, nil
}

// quote prices req from an unlocked coupon read. Eligibility is left to
// LockForRedemption.
func (s *Service) quote(ctx context.Context, req PlaceRequest) (pricing.Totals, error) {
	var offer *pricing.Offer
	if req.CouponCode != "" {
		c, err := s.coupons.FindByCode(ctx, req.CouponCode)
		if err != nil {
			if errors.Is(err, coupon.ErrNotFound) {
				return pricing.Totals{}, coupon.ErrInvalidCode
			}
			return pricing.Totals{}, err
		}
		o := c.Offer()
		offer = &o
	}
	return s.policy.Assemble(req.Lines, offer)
}

func itemsFromLines(lines []pricing.CartLine) []Item {
	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		items = append(items, Item{ItemID: l.ItemID, Name: l.Name, UnitPrice: l.UnitPrice, Quantity: l.Quantity})
	}
	return items
}

func validatePlaceRequest(req *PlaceRequest) error {
	if len(req.Lines) == 0 {
		return ErrEmptyOrder
	}
	restaurantID, err := pricing.RestaurantOf(req.Lines)
	if err != nil {
		return err
	}
	if req.RestaurantID == "" {
		req.RestaurantID = restaurantID
	}
	if restaurantID != req.RestaurantID {
		return pricing.ErrMultipleRestaurants
	}

	if strings.TrimSpace(req.UserID) == "" {
		return fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}
	if err := ValidateContact(req.Customer, req.Delivery); err != nil {
		return err
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidRequest, req.PaymentMethod)
	}
	if req.PaymentMethod == PaymentCard && strings.TrimSpace(req.PaymentReference) == "" {
		return fmt.Errorf("%w: card orders need a payment reference", ErrInvalidRequest)
	}
	req.CouponCode = coupon.NormalizeCode(req.CouponCode)
	return nil
}
