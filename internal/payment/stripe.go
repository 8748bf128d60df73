// Package payment adapts Stripe payment intents to checkout and order placement.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/checkout"
)

var (
	ErrNotSucceeded   = errors.New("payment intent has not succeeded")
	ErrAmountMismatch = errors.New("payment intent amount does not match order total")
	ErrOtherCustomer  = errors.New("payment intent belongs to another customer")
)

// userMetadataKey is set on every intent at creation and checked on verification.
const userMetadataKey = "userId"

// intents is the part of the Stripe client we call.
type intents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type Stripe struct {
	intents  intents
	currency string
}

func NewStripe(secretKey, currency string) *Stripe {
	api := client.New(secretKey, nil)
	return &Stripe{intents: api.PaymentIntents, currency: normalizeCurrency(currency)}
}

func (s *Stripe) CreateIntent(ctx context.Context, req checkout.IntentRequest) (checkout.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(s.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.intents.New(params)
	if err != nil {
		return checkout.Intent{}, mapError(err)
	}
	return toIntent(pi), nil
}

func (s *Stripe) GetIntent(ctx context.Context, id string) (checkout.Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(id, params)
	if err != nil {
		return checkout.Intent{}, mapError(err)
	}
	return toIntent(pi), nil
}

// VerifyPaid checks that userID's intent succeeded for exactly amountMinor.
func (s *Stripe) VerifyPaid(ctx context.Context, reference, userID string, amountMinor int64) error {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(reference, params)
	if err != nil {
		return mapError(err)
	}
	if owner := pi.Metadata[userMetadataKey]; owner == "" || owner != userID {
		return ErrOtherCustomer
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return fmt.Errorf("%w: status %s", ErrNotSucceeded, pi.Status)
	}
	if pi.Amount != amountMinor {
		return fmt.Errorf("%w: paid %d, due %d", ErrAmountMismatch, pi.Amount, amountMinor)
	}
	return nil
}

func toIntent(pi *stripe.PaymentIntent) checkout.Intent {
	in := checkout.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Status:       string(pi.Status),
	}
	if pi.LastPaymentError != nil {
		in.FailureMessage = pi.LastPaymentError.Msg
	}
	return in
}

// mapError turns Stripe errors into checkout.ProviderError so the message
// reaches the customer unchanged. Card and request errors are final; API and
// rate-limit errors can be retried.
func mapError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("stripe: %w", err)
	}
	msg := se.Msg
	if msg == "" {
		msg = "Payment failed"
	}
	temporary := se.HTTPStatusCode >= 500 ||
		se.HTTPStatusCode == 429 ||
		se.Type == stripe.ErrorTypeAPI
	return &checkout.ProviderError{Message: msg, Temporary: temporary}
}

func normalizeCurrency(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return string(stripe.CurrencyUSD)
	}
	return c
}
