package pricing

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type totalsJSON struct {
	Subtotal       string `json:"subtotal"`
	DeliveryFee    string `json:"deliveryFee"`
	ServiceFee     string `json:"serviceFee"`
	DiscountAmount string `json:"discountAmount"`
	Tax            string `json:"tax"`
	Total          string `json:"total"`
}

// MarshalJSON renders every amount as a two decimal place string.
func (t Totals) MarshalJSON() ([]byte, error) {
	return json.Marshal(totalsJSON{
		Subtotal:       t.Subtotal.StringFixed(2),
		DeliveryFee:    t.DeliveryFee.StringFixed(2),
		ServiceFee:     t.ServiceFee.StringFixed(2),
		DiscountAmount: t.DiscountAmount.StringFixed(2),
		Tax:            t.Tax.StringFixed(2),
		Total:          t.Total.StringFixed(2),
	})
}

func (t *Totals) UnmarshalJSON(b []byte) error {
	var raw struct {
		Subtotal       decimal.Decimal `json:"subtotal"`
		DeliveryFee    decimal.Decimal `json:"deliveryFee"`
		ServiceFee     decimal.Decimal `json:"serviceFee"`
		DiscountAmount decimal.Decimal `json:"discountAmount"`
		Tax            decimal.Decimal `json:"tax"`
		Total          decimal.Decimal `json:"total"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = Totals(raw)
	return nil
}
