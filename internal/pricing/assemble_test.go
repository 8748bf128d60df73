package pricing

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(restaurantID, price string, qty int) CartLine {
	return CartLine{ItemID: "item-" + price, Name: "dish", UnitPrice: d(price), Quantity: qty, RestaurantID: restaurantID}
}

func TestComputeDiscount(t *testing.T) {
	fee := d("2.99")

	tests := map[string]struct {
		offer        *Offer
		subtotal     decimal.Decimal
		wantItem     string
		wantDelivery string
	}{
		"no coupon":                 {offer: nil, subtotal: d("20"), wantItem: "0", wantDelivery: "0"},
		"ten percent":               {offer: &Offer{Type: DiscountPercentage, Value: d("10")}, subtotal: d("20"), wantItem: "2", wantDelivery: "0"},
		"full percentage":           {offer: &Offer{Type: DiscountPercentage, Value: d("100")}, subtotal: d("13.37"), wantItem: "13.37", wantDelivery: "0"},
		"percentage above 100 caps": {offer: &Offer{Type: DiscountPercentage, Value: d("150")}, subtotal: d("10"), wantItem: "10", wantDelivery: "0"},
		"fixed below subtotal":      {offer: &Offer{Type: DiscountFixed, Value: d("5")}, subtotal: d("20"), wantItem: "5", wantDelivery: "0"},
		"fixed above subtotal":      {offer: &Offer{Type: DiscountFixed, Value: d("25")}, subtotal: d("20"), wantItem: "20", wantDelivery: "0"},
		"negative fixed is zero":    {offer: &Offer{Type: DiscountFixed, Value: d("-3")}, subtotal: d("20"), wantItem: "0", wantDelivery: "0"},
		"free delivery":             {offer: &Offer{Type: DiscountFreeDelivery, Value: d("7")}, subtotal: d("15"), wantItem: "0", wantDelivery: "2.99"},
		"zero subtotal":             {offer: &Offer{Type: DiscountFixed, Value: d("5")}, subtotal: d("0"), wantItem: "0", wantDelivery: "0"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := ComputeDiscount(tc.offer, tc.subtotal, fee)
			assert.True(t, got.ItemDiscount.Equal(d(tc.wantItem)), "item discount %s, want %s", got.ItemDiscount, tc.wantItem)
			assert.True(t, got.DeliveryDiscount.Equal(d(tc.wantDelivery)), "delivery discount %s, want %s", got.DeliveryDiscount, tc.wantDelivery)
		})
	}
}

func TestComputeDiscount_PercentageNeverExceedsSubtotal(t *testing.T) {
	subtotals := []string{"0.01", "1", "9.99", "20", "123.45", "1000"}
	for _, s := range subtotals {
		for p := 0; p <= 100; p += 5 {
			offer := &Offer{Type: DiscountPercentage, Value: decimal.NewFromInt(int64(p))}
			got := ComputeDiscount(offer, d(s), d("2.99"))

			want := d(s).Mul(decimal.NewFromInt(int64(p))).Div(decimal.NewFromInt(100))
			require.True(t, got.ItemDiscount.Equal(want), "S=%s P=%d got %s want %s", s, p, got.ItemDiscount, want)
			require.False(t, got.ItemDiscount.GreaterThan(d(s)))
			require.False(t, got.ItemDiscount.IsNegative())
		}
	}
}

func TestAssemble_ScenarioA(t *testing.T) {
	p := DefaultPolicy()
	totals, err := p.Assemble([]CartLine{line("r1", "10.00", 2)}, &Offer{Type: DiscountPercentage, Value: d("10")})
	require.NoError(t, err)

	r := totals.Rounded()
	assert.Equal(t, "20.00", r.Subtotal.StringFixed(2))
	assert.Equal(t, "2.00", r.DiscountAmount.StringFixed(2))
	assert.Equal(t, "2.99", r.DeliveryFee.StringFixed(2))
	assert.Equal(t, "1.00", r.ServiceFee.StringFixed(2))
	assert.Equal(t, "1.92", r.Tax.StringFixed(2))
	assert.Equal(t, "23.91", r.Total.StringFixed(2))

	// unrounded tax is (18 + 2.99 + 1) * 0.0875
	assert.True(t, totals.Tax.Equal(d("1.924125")), "tax %s", totals.Tax)
}

func TestAssemble_ScenarioB_FreeDelivery(t *testing.T) {
	p := DefaultPolicy()
	totals, err := p.Assemble([]CartLine{line("r1", "7.50", 2)}, &Offer{Type: DiscountFreeDelivery})
	require.NoError(t, err)

	assert.True(t, totals.Subtotal.Equal(d("15")))
	assert.True(t, totals.DeliveryFee.IsZero())
	assert.True(t, totals.DiscountAmount.IsZero())
}

func TestAssemble_ScenarioC_MultipleRestaurants(t *testing.T) {
	p := DefaultPolicy()
	_, err := p.Assemble([]CartLine{line("r1", "5", 1), line("r2", "6", 1)}, nil)
	require.True(t, errors.Is(err, ErrMultipleRestaurants))
}

func TestAssemble_EmptyCart(t *testing.T) {
	totals, err := DefaultPolicy().Assemble(nil, &Offer{Type: DiscountFreeDelivery})
	require.NoError(t, err)
	assert.True(t, totals.Equal(Totals{
		Subtotal: decimal.Zero, DeliveryFee: decimal.Zero, ServiceFee: decimal.Zero,
		DiscountAmount: decimal.Zero, Tax: decimal.Zero, Total: decimal.Zero,
	}))
}

func TestAssemble_InvalidLine(t *testing.T) {
	p := DefaultPolicy()

	_, err := p.Assemble([]CartLine{line("r1", "5", 0)}, nil)
	require.True(t, errors.Is(err, ErrInvalidLine))

	_, err = p.Assemble([]CartLine{line("r1", "-1", 1)}, nil)
	require.True(t, errors.Is(err, ErrInvalidLine))
}

func TestAssemble_TotalIdentityHoldsExactly(t *testing.T) {
	p := DefaultPolicy()
	offers := []*Offer{
		nil,
		{Type: DiscountPercentage, Value: d("15")},
		{Type: DiscountPercentage, Value: d("33.3")},
		{Type: DiscountFixed, Value: d("4.25")},
		{Type: DiscountFixed, Value: d("500")},
		{Type: DiscountFreeDelivery},
	}
	carts := [][]CartLine{
		{line("r1", "0.99", 1)},
		{line("r1", "12.49", 3), line("r1", "3.33", 7)},
		{line("r1", "19.99", 1), line("r1", "0.01", 9)},
	}

	for _, cart := range carts {
		for _, offer := range offers {
			tot, err := p.Assemble(cart, offer)
			require.NoError(t, err)

			want := tot.Subtotal.Sub(tot.DiscountAmount).Add(tot.DeliveryFee).Add(tot.ServiceFee).Add(tot.Tax)
			require.True(t, tot.Total.Equal(want), "total %s != %s", tot.Total, want)
		}
	}
}

func TestTotals_MinorUnits(t *testing.T) {
	tot := Totals{Total: d("23.914125")}
	assert.Equal(t, int64(2391), tot.MinorUnits())
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	bad := DefaultPolicy()
	bad.TaxRate = d("1.5")
	require.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.DeliveryFee = d("-1")
	require.Error(t, bad.Validate())
}
