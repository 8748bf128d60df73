package pricing_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
)

type totalsTestContext struct {
	lines  []pricing.CartLine
	offer  *pricing.Offer
	totals pricing.Totals
	err    error
}

func (c *totalsTestContext) reset() {
	c.lines = nil
	c.offer = nil
	c.totals = pricing.Totals{}
	c.err = nil
}

func (c *totalsTestContext) aCartWithItem(restaurantID, price string, qty int) error {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	c.lines = append(c.lines, pricing.CartLine{
		ItemID:       fmt.Sprintf("item-%d", len(c.lines)+1),
		Name:         "dish",
		UnitPrice:    p,
		Quantity:     qty,
		RestaurantID: restaurantID,
	})
	return nil
}

func (c *totalsTestContext) anEmptyCart() error {
	c.lines = nil
	return nil
}

func (c *totalsTestContext) aCoupon(kind, value string) error {
	v, err := decimal.NewFromString(value)
	if err != nil {
		return err
	}
	c.offer = &pricing.Offer{Type: pricing.DiscountType(kind), Value: v}
	return nil
}

func (c *totalsTestContext) theTotalsAreAssembled() error {
	c.totals, c.err = pricing.DefaultPolicy().Assemble(c.lines, c.offer)
	return nil
}

func (c *totalsTestContext) theFieldIs(field, want string) error {
	if c.err != nil {
		return fmt.Errorf("expected totals but got error: %v", c.err)
	}
	r := c.totals.Rounded()

	var got decimal.Decimal
	switch field {
	case "subtotal":
		got = r.Subtotal
	case "itemDiscount":
		got = r.DiscountAmount
	case "deliveryFee":
		got = r.DeliveryFee
	case "serviceFee":
		got = r.ServiceFee
	case "discountedSubtotal":
		got = c.totals.Subtotal.Sub(c.totals.DiscountAmount).Round(2)
	case "tax":
		got = r.Tax
	case "total":
		got = r.Total
	default:
		return fmt.Errorf("unknown field %q", field)
	}

	if got.StringFixed(2) != want {
		return fmt.Errorf("%s = %s, want %s", field, got.StringFixed(2), want)
	}
	return nil
}

func (c *totalsTestContext) assemblyFailsForMultipleRestaurants() error {
	if !errors.Is(c.err, pricing.ErrMultipleRestaurants) {
		return fmt.Errorf("expected ErrMultipleRestaurants, got %v", c.err)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &totalsTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^a cart from restaurant "([^"]*)" with an item priced "([^"]*)" quantity (\d+)$`, tc.aCartWithItem)
	ctx.Step(`^the cart also has an item from restaurant "([^"]*)" priced "([^"]*)" quantity (\d+)$`, tc.aCartWithItem)
	ctx.Step(`^an empty cart$`, tc.anEmptyCart)
	ctx.Step(`^a "([^"]*)" coupon worth "([^"]*)"$`, tc.aCoupon)
	ctx.Step(`^the totals are assembled$`, tc.theTotalsAreAssembled)
	ctx.Step(`^the "([^"]*)" is "([^"]*)"$`, tc.theFieldIs)
	ctx.Step(`^assembly fails because the cart spans multiple restaurants$`, tc.assemblyFailsForMultipleRestaurants)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/pricing.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
