package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/coupon"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/order"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/restaurant"
)

type CartStore interface {
	Lines(ctx context.Context, userID string) ([]pricing.CartLine, error)
	Clear(ctx context.Context, userID string) error
}

type RestaurantStatus interface {
	Status(ctx context.Context, restaurantID string) (restaurant.Status, error)
}

type CouponValidator interface {
	Validate(ctx context.Context, req coupon.Request) (coupon.Result, error)
}

type IntentRequest struct {
	AmountMinor    int64
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is the provider's view of a card payment.
type Intent struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	Status       string
	// FailureMessage is the provider's explanation of the last failed attempt.
	FailureMessage string
}

const IntentSucceeded = "succeeded"

type PaymentProvider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	GetIntent(ctx context.Context, id string) (Intent, error)
}

// ProviderError carries a message from the payment provider that is shown
// to the customer unchanged.
type ProviderError struct {
	Message   string
	Temporary bool
}

func (e *ProviderError) Error() string { return e.Message }

type OrderSubmitter interface {
	Place(ctx context.Context, req order.PlaceRequest) (*order.Order, error)
}

type Config struct {
	CallTimeout    time.Duration
	SupportContact string
}

type Machine struct {
	sessions    SessionStore
	cart        CartStore
	restaurants RestaurantStatus
	coupons     CouponValidator
	payments    PaymentProvider
	orders      OrderSubmitter
	list        OrderList
	policy      pricing.Policy
	cfg         Config
	log         *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

type Deps struct {
	Sessions    SessionStore
	Cart        CartStore
	Restaurants RestaurantStatus
	Coupons     CouponValidator
	Payments    PaymentProvider
	Orders      OrderSubmitter
	OrderList   OrderList
}

func NewMachine(d Deps, policy pricing.Policy, cfg Config, log *zap.Logger) *Machine {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if d.OrderList == nil {
		d.OrderList = NewMemoryOrderList()
	}
	return &Machine{
		sessions:    d.Sessions,
		cart:        d.Cart,
		restaurants: d.Restaurants,
		coupons:     d.Coupons,
		payments:    d.Payments,
		orders:      d.Orders,
		list:        d.OrderList,
		policy:      policy,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
		inflight:    make(map[string]struct{}),
	}
}

// WithClock replaces the time source.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// OrderList returns the entries recorded for the user by submissions.
func (m *Machine) OrderList(userID string) []OrderSummary {
	return m.list.List(userID)
}

// Start opens a new session over the user's current cart.
func (m *Machine) Start(ctx context.Context, user *User) (*Session, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return nil, ErrUnauthenticated
	}

	lines, err := m.loadLines(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		State:     StateCartReview,
		Lines:     lines,
		CreatedAt: now,
	}
	if rid, err := pricing.RestaurantOf(lines); err == nil {
		s.RestaurantID = rid
	}
	// a mixed cart is reported by ConfirmCart; totals stay zero until then
	_ = s.reprice(m.policy)

	if err := m.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the session in any state, including final ones.
func (m *Machine) Get(ctx context.Context, user *User, id string) (*Session, error) {
	return m.find(ctx, user, id)
}

// ConfirmCart reloads the cart and advances to contact details when the cart
// is non-empty, from a single restaurant, and that restaurant is open.
func (m *Machine) ConfirmCart(ctx context.Context, user *User, id string) (*Session, error) {
	s, err := m.load(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if s.State != StateCartReview {
		return s, ErrInvalidState
	}

	lines, err := m.loadLines(ctx, user.ID)
	if err != nil {
		m.log.Warn("load cart failed", zap.String("sessionId", s.ID), zap.Error(err))
		return m.fail(ctx, s, transient(msgTryAgain))
	}
	s.Lines = lines
	s.RestaurantID = ""

	if len(lines) == 0 {
		_ = s.reprice(m.policy)
		return m.fail(ctx, s, validation(msgCartEmpty))
	}
	rid, err := pricing.RestaurantOf(lines)
	if err != nil {
		s.Totals = pricing.Totals{}
		if errors.Is(err, pricing.ErrMultipleRestaurants) {
			return m.fail(ctx, s, validation(msgMultipleRestaurants))
		}
		return m.fail(ctx, s, validation(err.Error()))
	}
	s.RestaurantID = rid

	if err := s.reprice(m.policy); err != nil {
		return m.fail(ctx, s, validation(err.Error()))
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	st, err := m.restaurants.Status(callCtx, rid)
	cancel()
	if errors.Is(err, restaurant.ErrNotFound) {
		return m.fail(ctx, s, validation(msgRestaurantMissing))
	}
	if err != nil {
		m.log.Warn("restaurant status failed", zap.String("sessionId", s.ID), zap.String("restaurantId", rid), zap.Error(err))
		return m.fail(ctx, s, transient(msgTryAgain))
	}
	if !st.Open {
		return m.fail(ctx, s, validation(closedMessage(st)))
	}

	if s.Customer.FirstName == "" {
		s.Customer.FirstName = user.FirstName
	}
	if s.Customer.LastName == "" {
		s.Customer.LastName = user.LastName
	}
	if s.Customer.Email == "" {
		s.Customer.Email = user.Email
	}
	s.State = StateContactInfo
	s.Failure = nil
	return s, m.save(ctx, s)
}

// SetContact stores contact and delivery details. From contact_info it
// advances to the coupon step; later steps keep their state.
func (m *Machine) SetContact(ctx context.Context, user *User, id string, c order.Customer, a order.Address) (*Session, error) {
	s, err := m.load(ctx, user, id)
	if err != nil {
		return nil, err
	}
	switch s.State {
	case StateContactInfo, StateCouponOptional, StatePaymentSelection:
	default:
		return s, ErrInvalidState
	}

	c.Email = strings.TrimSpace(c.Email)
	s.Customer = c
	s.Delivery = a
	if err := order.ValidateContact(c, a); err != nil {
		var ce *order.ContactError
		if errors.As(err, &ce) {
			return m.fail(ctx, s, validation(ce.Message))
		}
		return m.fail(ctx, s, validation(err.Error()))
	}

	if s.State == StateContactInfo {
		s.State = StateCouponOptional
	}
	s.Failure = nil
	return s, m.save(ctx, s)
}

// ApplyCoupon validates a code against the current subtotal. Any failure is
// stored on the session as CouponError and never returned as an error.
func (m *Machine) ApplyCoupon(ctx context.Context, user *User, id, code string) (*Session, error) {
	s, err := m.load(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if s.State != StateCouponOptional {
		return s, ErrInvalidState
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	res, err := m.coupons.Validate(callCtx, coupon.Request{
		Code:         code,
		UserID:       s.UserID,
		RestaurantID: s.RestaurantID,
		OrderAmount:  s.Totals.Subtotal,
	})
	cancel()

	switch {
	case err != nil:
		m.log.Warn("coupon validation failed", zap.String("sessionId", s.ID), zap.Error(err))
		s.CouponError = msgCouponUnavailable
	case !res.Valid || res.Coupon == nil:
		s.CouponError = res.Error
	default:
		s.Coupon = &AppliedCoupon{
			Code:          res.Coupon.Code,
			DiscountType:  res.Coupon.DiscountType,
			DiscountValue: res.Coupon.DiscountValue,
		}
		s.CouponError = ""
		if err := s.reprice(m.policy); err != nil {
			return m.fail(ctx, s, validation(err.Error()))
		}
	}
	return s, m.save(ctx, s)
}

func (m *Machine) RemoveCoupon(ctx context.Context, user *User, id string) (*Session, error) {
	s, err := m.load(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if s.State != StateCouponOptional {
		return s, ErrInvalidState
	}
	s.Coupon = nil
	s.CouponError = ""
	if err := s.reprice(m.policy); err != nil {
		return m.fail(ctx, s, validation(err.Error()))
	}
	return s, m.save(ctx, s)
}

func (m *Machine) ContinueToPayment(ctx context.Context, user *User, id string) (*Session, error) {
	s, err := m.load(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if s.State != StateCouponOptional {
		return s, ErrInvalidState
	}
	s.State = StatePaymentSelection
	s.Failure = nil
	return s, m.save(ctx, s)
}

// SelectPayment records the payment method. Card creates (or reuses) a
// payment intent for the current total and exposes its client secret.
func (m *Machine) SelectPayment(ctx context.Context, user *User, id string, method order.PaymentMethod) (*Session, error) {
	s, err := m.load(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if s.State != StatePaymentSelection {
		return s, ErrInvalidState
	}
	if !method.Valid() {
		return m.fail(ctx, s, validation("Choose cash or card"))
	}

	if method == order.PaymentCash {
		s.Payment = &Payment{Method: order.PaymentCash}
		s.Failure = nil
		return s, m.save(ctx, s)
	}

	if m.payments == nil {
		return m.fail(ctx, s, validation(msgCardUnavailable))
	}

	amount := s.Totals.MinorUnits()
	if p := s.Payment; p != nil && p.Method == order.PaymentCard && p.IntentID != "" && p.AmountMinor == amount {
		s.Failure = nil
		return s, m.save(ctx, s)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	intent, err := m.payments.CreateIntent(callCtx, IntentRequest{
		AmountMinor:    amount,
		IdempotencyKey: fmt.Sprintf("%s-%d", s.ID, amount),
		Metadata: map[string]string{
			"sessionId":    s.ID,
			"userId":       s.UserID,
			"restaurantId": s.RestaurantID,
		},
	})
	cancel()
	if err != nil {
		m.log.Warn("create payment intent failed", zap.String("sessionId", s.ID), zap.Error(err))
		return m.fail(ctx, s, paymentFailure(err))
	}

	s.Payment = &Payment{
		Method:       order.PaymentCard,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountMinor:  intent.AmountMinor,
		Status:       intent.Status,
	}
	s.Failure = nil
	return s, m.save(ctx, s)
}

// Submit places a cash order. It is also the retry path after a transient failure.
func (m *Machine) Submit(ctx context.Context, user *User, id string) (*Session, error) {
	s, err := m.load(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if s.Payment == nil || s.Payment.Method != order.PaymentCash {
		return s, ErrInvalidState
	}
	retry := s.State == StateFailed && s.Failure != nil && s.Failure.Retryable
	if s.State != StatePaymentSelection && !retry {
		if s.State == StateSubmitting {
			return s, ErrSubmissionInFlight
		}
		return s, ErrInvalidState
	}
	return m.submit(ctx, s)
}

// ConfirmPayment submits a card order once the provider reports the intent
// succeeded. Until then the session stays in payment selection.
func (m *Machine) ConfirmPayment(ctx context.Context, user *User, id string) (*Session, error) {
	s, err := m.load(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if s.State == StateSubmitting {
		return s, ErrSubmissionInFlight
	}
	if s.State != StatePaymentSelection || s.Payment == nil || s.Payment.Method != order.PaymentCard || s.Payment.IntentID == "" {
		return s, ErrInvalidState
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	intent, err := m.payments.GetIntent(callCtx, s.Payment.IntentID)
	cancel()
	if err != nil {
		m.log.Warn("payment intent lookup failed", zap.String("sessionId", s.ID), zap.String("intentId", s.Payment.IntentID), zap.Error(err))
		return m.fail(ctx, s, paymentFailure(err))
	}
	s.Payment.Status = intent.Status
	if intent.Status != IntentSucceeded {
		if intent.FailureMessage != "" {
			return m.fail(ctx, s, validation(intent.FailureMessage))
		}
		return m.fail(ctx, s, validation(msgPaymentIncomplete))
	}
	return m.submit(ctx, s)
}

// Cancel abandons the checkout. It has no side effects and is refused while
// an order submission is in flight.
func (m *Machine) Cancel(ctx context.Context, user *User, id string) (*Session, error) {
	s, err := m.load(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if s.State == StateSubmitting || m.isInflight(s.ID) {
		return s, ErrCannotCancel
	}
	s.State = StateCancelled
	return s, m.save(ctx, s)
}

func (m *Machine) submit(ctx context.Context, s *Session) (*Session, error) {
	if !m.acquire(s.ID) {
		return s, ErrSubmissionInFlight
	}
	defer m.release(s.ID)

	s.State = StateSubmitting
	s.Failure = nil
	if err := m.save(ctx, s); err != nil {
		if errors.Is(err, ErrStaleSession) {
			return s, ErrSubmissionInFlight
		}
		return s, err
	}

	pendingID := "pending-" + s.ID
	m.list.Insert(s.UserID, OrderSummary{
		ID:           pendingID,
		RestaurantID: s.RestaurantID,
		Status:       string(order.StatusPending),
		Total:        s.Totals.Rounded().Total,
		CreatedAt:    m.now().UTC(),
		Optimistic:   true,
	})

	req := order.PlaceRequest{
		UserID:        s.UserID,
		RestaurantID:  s.RestaurantID,
		Lines:         s.Lines,
		Customer:      s.Customer,
		Delivery:      s.Delivery,
		CouponCode:    s.couponCode(),
		PaymentMethod: s.Payment.Method,
	}
	if s.Payment.Method == order.PaymentCard {
		req.PaymentReference = s.Payment.IntentID
	}
	client := s.Totals
	req.ClientTotals = &client

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	placed, err := m.orders.Place(callCtx, req)
	cancel()

	if err != nil {
		m.list.Remove(s.UserID, pendingID)
		return m.fail(ctx, s, m.classifySubmitError(s, err))
	}

	m.list.Settle(s.UserID, pendingID, OrderSummary{
		ID:           placed.ID,
		RestaurantID: placed.RestaurantID,
		Status:       string(placed.Status),
		Total:        placed.Totals.Rounded().Total,
		CreatedAt:    placed.CreatedAt,
	})
	if err := m.cart.Clear(ctx, s.UserID); err != nil {
		m.log.Warn("clear cart failed", zap.String("sessionId", s.ID), zap.String("orderId", placed.ID), zap.Error(err))
	}

	s.State = StateConfirmed
	s.OrderID = placed.ID
	s.Totals = placed.Totals
	s.Failure = nil
	m.log.Info("checkout confirmed",
		zap.String("sessionId", s.ID),
		zap.String("userId", s.UserID),
		zap.String("orderId", placed.ID),
	)
	if err := m.save(ctx, s); err != nil {
		m.log.Error("save confirmed session failed", zap.String("sessionId", s.ID), zap.String("orderId", placed.ID), zap.Error(err))
		return s, err
	}
	return s, nil
}

// classifySubmitError decides where a failed submission leaves the session.
// After a captured card payment every failure is fatal.
func (m *Machine) classifySubmitError(s *Session, err error) *Failure {
	if s.Payment.Method == order.PaymentCard {
		if errors.Is(err, order.ErrPaymentNotPaid) {
			s.State = StatePaymentSelection
			return validation(msgPaymentIncomplete)
		}
		m.log.Error("order creation failed after payment",
			zap.String("sessionId", s.ID),
			zap.String("userId", s.UserID),
			zap.String("intentId", s.Payment.IntentID),
			zap.Error(err),
		)
		s.State = StateFailed
		msg := "Your payment was processed but we could not create your order. Please contact support"
		if m.cfg.SupportContact != "" {
			msg += " at " + m.cfg.SupportContact
		}
		return &Failure{Kind: FailureFatal, Message: msg + "."}
	}

	var (
		rej *coupon.Rejection
		ce  *order.ContactError
	)
	switch {
	case errors.Is(err, coupon.ErrCouponConflict):
		m.dropCoupon(s, msgCouponConflict)
		return &Failure{Kind: FailureConflict, Message: msgCouponConflict}
	case errors.As(err, &rej):
		m.dropCoupon(s, rej.Message)
		return validation(rej.Message)
	case errors.As(err, &ce):
		s.State = StateContactInfo
		return validation(ce.Message)
	case errors.Is(err, order.ErrRestaurantClosed):
		s.State = StateCartReview
		msg := msgRestaurantClosed
		if _, next, ok := strings.Cut(err.Error(), ": "); ok && next != "" {
			msg += " " + next
		}
		return validation(msg)
	case errors.Is(err, order.ErrTotalsMismatch),
		errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, pricing.ErrMultipleRestaurants),
		errors.Is(err, pricing.ErrInvalidLine):
		s.State = StateCartReview
		return validation(msgCartChanged)
	case errors.Is(err, restaurant.ErrNotFound):
		s.State = StateCartReview
		return validation(msgRestaurantMissing)
	}

	m.log.Warn("order submission failed", zap.String("sessionId", s.ID), zap.Error(err))
	s.State = StateFailed
	return transient(msgSubmitRetry)
}

func (m *Machine) dropCoupon(s *Session, reason string) {
	s.Coupon = nil
	s.CouponError = reason
	s.State = StateCouponOptional
	_ = s.reprice(m.policy)
}

// fail stores f on the session and returns it as the error.
func (m *Machine) fail(ctx context.Context, s *Session, f *Failure) (*Session, error) {
	s.Failure = f
	if err := m.save(ctx, s); err != nil {
		return s, err
	}
	return s, f
}

// load returns a session that can still be advanced.
func (m *Machine) load(ctx context.Context, user *User, id string) (*Session, error) {
	s, err := m.find(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if s.State.Final() {
		return s, ErrInvalidState
	}
	return s, nil
}

func (m *Machine) find(ctx context.Context, user *User, id string) (*Session, error) {
	if user == nil || user.ID == "" {
		return nil, ErrUnauthenticated
	}
	s, err := m.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.UserID != user.ID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Machine) save(ctx context.Context, s *Session) error {
	s.UpdatedAt = m.now().UTC()
	if err := m.sessions.Save(ctx, s); err != nil {
		if errors.Is(err, ErrStaleSession) {
			return err
		}
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *Machine) loadLines(ctx context.Context, userID string) ([]pricing.CartLine, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	lines, err := m.cart.Lines(callCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return lines, nil
}

func (m *Machine) acquire(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inflight[id]; ok {
		return false
	}
	m.inflight[id] = struct{}{}
	return true
}

func (m *Machine) release(id string) {
	m.mu.Lock()
	delete(m.inflight, id)
	m.mu.Unlock()
}

func (m *Machine) isInflight(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[id]
	return ok
}

func closedMessage(st restaurant.Status) string {
	if st.NextOpening == "" {
		return msgRestaurantClosed
	}
	return msgRestaurantClosed + " " + st.NextOpening
}

func paymentFailure(err error) *Failure {
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Temporary {
			return transient(pe.Message)
		}
		return validation(pe.Message)
	}
	return transient(msgPaymentUnavailable)
}
