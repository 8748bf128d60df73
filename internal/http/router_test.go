package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/cart"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/checkout"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/coupon"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/middleware"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/order"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/restaurant"
)

var jwtSecret = []byte("router-test-secret")

type fakeCart struct {
	mu    sync.Mutex
	lines map[string][]pricing.CartLine
}

func (f *fakeCart) GetCart(ctx context.Context, userID string) (*cart.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines, ok := f.lines[userID]
	if !ok {
		return nil, nil
	}
	return &cart.Cart{ID: "cart-" + userID, UserID: userID, Lines: append([]pricing.CartLine(nil), lines...)}, nil
}

func (f *fakeCart) Lines(ctx context.Context, userID string) ([]pricing.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pricing.CartLine(nil), f.lines[userID]...), nil
}

func (f *fakeCart) AddItem(ctx context.Context, userID string, line pricing.CartLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[userID] = append(f.lines[userID], line)
	return nil
}

func (f *fakeCart) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.lines[userID] {
		if l.ItemID == itemID {
			f.lines[userID][i].Quantity = quantity
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (f *fakeCart) Remove(ctx context.Context, userID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := f.lines[userID]
	for i, l := range lines {
		if l.ItemID == itemID {
			f.lines[userID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (f *fakeCart) Clear(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lines, userID)
	return nil
}

type openRestaurants struct{}

func (openRestaurants) Status(ctx context.Context, id string) (restaurant.Status, error) {
	if id == "missing" {
		return restaurant.Status{}, restaurant.ErrNotFound
	}
	return restaurant.Status{RestaurantID: id, Open: true}, nil
}

type fakeValidator struct {
	last coupon.Request
}

func (f *fakeValidator) Validate(ctx context.Context, req coupon.Request) (coupon.Result, error) {
	f.last = req
	if req.Code == "SAVE10" {
		return coupon.Result{Valid: true, Coupon: &coupon.Coupon{
			Code:          "SAVE10",
			DiscountType:  pricing.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(10),
			IsActive:      true,
		}}, nil
	}
	return coupon.Result{Valid: false, Error: coupon.ErrInvalidCode.Message}, nil
}

type fakeAdmin struct {
	coupons []coupon.Coupon
}

func (f *fakeAdmin) Create(ctx context.Context, c *coupon.Coupon) error {
	if err := c.CheckDefinition(); err != nil {
		return err
	}
	f.coupons = append(f.coupons, *c)
	return nil
}

func (f *fakeAdmin) List(ctx context.Context) ([]coupon.Coupon, error) { return f.coupons, nil }

func (f *fakeAdmin) Deactivate(ctx context.Context, code string) error { return coupon.ErrNotFound }

type fakeOrders struct {
	mu      sync.Mutex
	placeFn func(req order.PlaceRequest) (*order.Order, error)
	byID    map[string]*order.Order
}

func (f *fakeOrders) Place(ctx context.Context, req order.PlaceRequest) (*order.Order, error) {
	o, err := f.placeFn(req)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.byID[o.ID] = o
	f.mu.Unlock()
	return o, nil
}

func (f *fakeOrders) GetByID(ctx context.Context, id string) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []order.Order{}
	for _, o := range f.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error) {
	o, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransition(to) {
		return nil, order.ErrInvalidTransition
	}
	o.Status = to
	return o, nil
}

type testServer struct {
	handler   http.Handler
	cart      *fakeCart
	validator *fakeValidator
	orders    *fakeOrders
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t)
	policy := pricing.DefaultPolicy()

	ts := &testServer{
		cart: &fakeCart{lines: map[string][]pricing.CartLine{
			"u-1": {{ItemID: "burger", Name: "Burger", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2, RestaurantID: "r-1"}},
		}},
		validator: &fakeValidator{},
	}
	ts.orders = &fakeOrders{
		byID: map[string]*order.Order{},
		placeFn: func(req order.PlaceRequest) (*order.Order, error) {
			totals, err := policy.Assemble(req.Lines, nil)
			if err != nil {
				return nil, err
			}
			return &order.Order{
				ID:            "ord-1",
				UserID:        req.UserID,
				RestaurantID:  req.RestaurantID,
				Status:        order.StatusPending,
				Totals:        totals,
				PaymentMethod: req.PaymentMethod,
				CreatedAt:     time.Now().UTC(),
			}, nil
		},
	}

	machine := checkout.NewMachine(checkout.Deps{
		Sessions:    checkout.NewMemoryStore(),
		Cart:        ts.cart,
		Restaurants: openRestaurants{},
		Coupons:     ts.validator,
		Orders:      ts.orders,
	}, policy, checkout.Config{CallTimeout: time.Second, SupportContact: "support@westrowkitchen.test"}, log)

	ts.handler = NewRouter(Deps{
		Logger:           log,
		JWTSecret:        jwtSecret,
		CORSAllowOrigins: []string{"*"},
		Coupons:          ts.validator,
		CouponAdmin:      &fakeAdmin{},
		Orders:           ts.orders,
		OrderStore:       ts.orders,
		Cart:             ts.cart,
		Restaurants:      openRestaurants{},
		Checkout:         machine,
	})
	return ts
}

func token(t *testing.T, id, role string) string {
	t.Helper()
	tok, err := middleware.IssueToken(jwtSecret, middleware.Principal{
		ID: id, Email: id + "@example.com", FirstName: "Ada", LastName: "Lovelace", Role: role,
	}, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderCorrelationID))
}

func TestProtectedRoutesRequireUser(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/me/cart", "/api/me/orders"} {
		rec := ts.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := ts.do(t, http.MethodPost, "/api/checkout/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRestaurantStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/restaurants/r-1/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[restaurant.Status](t, rec)
	assert.True(t, st.Open)

	rec = ts.do(t, http.MethodGet, "/api/restaurants/missing/status", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateCoupon(t *testing.T) {
	ts := newTestServer(t)
	tok := token(t, "u-1", "")

	rec := ts.do(t, http.MethodPost, "/api/coupons/validate", tok, map[string]any{
		"code": "NOPE", "restaurantId": "r-1", "orderAmount": "20.00",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[coupon.Result](t, rec)
	assert.False(t, res.Valid)
	assert.Equal(t, "Invalid coupon code", res.Error)
	assert.Equal(t, "u-1", ts.validator.last.UserID)
	assert.True(t, ts.validator.last.OrderAmount.Equal(decimal.NewFromInt(20)))

	rec = ts.do(t, http.MethodPost, "/api/coupons/validate", tok, map[string]any{
		"code": "SAVE10", "restaurantId": "r-1", "orderAmount": 20,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[coupon.Result](t, rec).Valid)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/admin/coupons", token(t, "u-1", ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := token(t, "a-1", middleware.RoleAdmin)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec = ts.do(t, http.MethodPost, "/api/admin/coupons", admin, map[string]any{
		"code": "WELCOME", "discountType": "fixed", "discountValue": "5.00",
		"startDate": start, "endDate": start.AddDate(1, 0, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/admin/coupons", admin, map[string]any{
		"code": "BROKEN", "discountType": "bogus", "startDate": start, "endDate": start,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/coupons", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]coupon.Coupon](t, rec), 1)

	rec = ts.do(t, http.MethodPost, "/api/admin/coupons/NOPE/deactivate", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaceOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{name: "coupon raced", err: coupon.ErrCouponConflict, wantStatus: http.StatusConflict, wantMsg: "Coupon no longer valid"},
		{name: "coupon expired", err: coupon.ErrExpired, wantStatus: http.StatusUnprocessableEntity, wantMsg: "Coupon expired"},
		{name: "contact", err: &order.ContactError{Field: "email", Message: "Enter a valid email address"}, wantStatus: http.StatusUnprocessableEntity, wantMsg: "Enter a valid email address"},
		{name: "mixed cart", err: pricing.ErrMultipleRestaurants, wantStatus: http.StatusUnprocessableEntity},
		{name: "totals moved", err: order.ErrTotalsMismatch, wantStatus: http.StatusConflict},
		{name: "unpaid card", err: order.ErrPaymentNotPaid, wantStatus: http.StatusPaymentRequired},
		{name: "restaurant gone", err: fmt.Errorf("restaurant status: %w", restaurant.ErrNotFound), wantStatus: http.StatusUnprocessableEntity},
		{name: "reused payment", err: order.ErrPaymentAlreadyUsed, wantStatus: http.StatusConflict, wantMsg: "payment already used for another order"},
		{name: "database down", err: errors.New("conn refused"), wantStatus: http.StatusInternalServerError, wantMsg: "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.orders.placeFn = func(order.PlaceRequest) (*order.Order, error) { return nil, tt.err }

			rec := ts.do(t, http.MethodPost, "/api/orders", token(t, "u-1", ""), map[string]any{
				"restaurantId": "r-1",
				"items":        []map[string]any{{"itemId": "burger", "name": "Burger", "unitPrice": "10.00", "quantity": 2}},
			})
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, decode[map[string]string](t, rec)["error"])
			}
		})
	}
}

func TestPlaceOrder_Created(t *testing.T) {
	ts := newTestServer(t)
	var got order.PlaceRequest
	inner := ts.orders.placeFn
	ts.orders.placeFn = func(req order.PlaceRequest) (*order.Order, error) {
		got = req
		return inner(req)
	}

	rec := ts.do(t, http.MethodPost, "/api/orders", token(t, "u-1", ""), map[string]any{
		"restaurantId": "r-1",
		"items":        []map[string]any{{"itemId": "burger", "name": "Burger", "unitPrice": "10.00", "quantity": 2}},
		"couponCode":   "SAVE10",
		"totals":       map[string]string{"subtotal": "20.00", "total": "23.91"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ord-1", body["orderId"])
	assert.Equal(t, "pending", body["status"])

	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, order.PaymentCash, got.PaymentMethod)
	assert.Equal(t, "SAVE10", got.CouponCode)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "r-1", got.Lines[0].RestaurantID)
	require.NotNil(t, got.ClientTotals)
	assert.True(t, got.ClientTotals.Total.Equal(decimal.RequireFromString("23.91")))
}

func TestGetOrder_HiddenFromOtherUsers(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.byID["ord-9"] = &order.Order{ID: "ord-9", UserID: "u-1", Status: order.StatusPending}

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/orders/ord-9", token(t, "u-1", ""), nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/orders/ord-9", token(t, "u-2", ""), nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/orders/ord-9", token(t, "a-1", middleware.RoleAdmin), nil).Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.byID["ord-9"] = &order.Order{ID: "ord-9", UserID: "u-1", Status: order.StatusPending}
	admin := token(t, "a-1", middleware.RoleAdmin)

	rec := ts.do(t, http.MethodPatch, "/api/admin/orders/ord-9/status", admin, map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/admin/orders/ord-9/status", admin, map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/admin/orders/ord-9/status", admin, map[string]string{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCart(t *testing.T) {
	ts := newTestServer(t)
	tok := token(t, "u-2", "")

	rec := ts.do(t, http.MethodGet, "/api/me/cart", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[cart.Cart](t, rec).Lines)

	rec = ts.do(t, http.MethodPost, "/api/me/cart/items", tok, map[string]any{
		"itemId": "fries", "name": "Fries", "unitPrice": "3.50", "restaurantId": "r-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[cart.Cart](t, rec)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 1, c.Lines[0].Quantity)

	rec = ts.do(t, http.MethodPatch, "/api/me/cart/items/fries", tok, map[string]int{"quantity": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[cart.Cart](t, rec).Lines[0].Quantity)

	rec = ts.do(t, http.MethodDelete, "/api/me/cart/items/onion-rings", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/me/cart", tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCheckoutFlow_Cash(t *testing.T) {
	ts := newTestServer(t)
	tok := token(t, "u-1", "")

	rec := ts.do(t, http.MethodPost, "/api/checkout/sessions", tok, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	s := decode[checkout.Session](t, rec)
	assert.Equal(t, checkout.StateCartReview, s.State)
	base := "/api/checkout/sessions/" + s.ID

	rec = ts.do(t, http.MethodPost, base+"/confirm-cart", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s = decode[checkout.Session](t, rec)
	assert.Equal(t, checkout.StateContactInfo, s.State)
	assert.Equal(t, "Ada", s.Customer.FirstName)

	rec = ts.do(t, http.MethodPut, base+"/contact", tok, map[string]any{
		"customer": map[string]string{"firstName": "Ada", "lastName": "Lovelace", "email": "not-an-email", "phone": "5551234567"},
		"delivery": map[string]string{"street": "1 Row St", "city": "Westrow", "postalCode": "12345"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	fail := decode[map[string]any](t, rec)
	assert.Equal(t, "validation", fail["kind"])

	rec = ts.do(t, http.MethodPut, base+"/contact", tok, map[string]any{
		"customer": map[string]string{"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com", "phone": "5551234567"},
		"delivery": map[string]string{"street": "1 Row St", "city": "Westrow", "postalCode": "12345"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, checkout.StateCouponOptional, decode[checkout.Session](t, rec).State)

	rec = ts.do(t, http.MethodPost, base+"/coupon", tok, map[string]string{"code": "NOPE"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Invalid coupon code", decode[checkout.Session](t, rec).CouponError)

	rec = ts.do(t, http.MethodPost, base+"/coupon", tok, map[string]string{"code": "SAVE10"})
	require.Equal(t, http.StatusOK, rec.Code)
	s = decode[checkout.Session](t, rec)
	require.NotNil(t, s.Coupon)
	assert.Equal(t, "23.91", s.Totals.Rounded().Total.StringFixed(2))

	rec = ts.do(t, http.MethodPost, base+"/continue", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/payment", tok, map[string]string{"method": "bitcoin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/payment", tok, map[string]string{"method": "cash"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/submit", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s = decode[checkout.Session](t, rec)
	assert.Equal(t, checkout.StateConfirmed, s.State)
	assert.Equal(t, "ord-1", s.OrderID)

	rec = ts.do(t, http.MethodPost, base+"/cancel", tok, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, base, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, checkout.StateConfirmed, decode[checkout.Session](t, rec).State)

	rec = ts.do(t, http.MethodGet, "/api/me/orders", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]checkout.OrderSummary](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "ord-1", list[0].ID)
	assert.False(t, list[0].Optimistic)

	rec = ts.do(t, http.MethodGet, base, token(t, "u-2", ""), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_EmptyCartIsValidationFailure(t *testing.T) {
	ts := newTestServer(t)
	tok := token(t, "u-3", "")

	rec := ts.do(t, http.MethodPost, "/api/checkout/sessions", tok, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	s := decode[checkout.Session](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/checkout/sessions/"+s.ID+"/confirm-cart", tok, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Your cart is empty", body["error"])
	assert.Equal(t, "validation", body["kind"])
	assert.NotNil(t, body["session"])

	rec = ts.do(t, http.MethodGet, "/api/checkout/sessions/does-not-exist", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
