package market

import (
	"time"

	"github.com/mshull/stratsim/reason"
)

// Metadata keys recorded on order intents by the risk engine.
const (
	MetaScaledByMargin = "scaled_by_margin"
	MetaMarginRequired = "margin_required"
	MetaRiskMode       = "risk_mode"
)

// OrderIntent is a risk-approved, sized order: the unit of hand-off from the
// risk engine to the execution model. Qty is signed (positive buy, negative
// sell) and always agrees with Side.
type OrderIntent struct {
	ID         string
	Time       time.Time
	Symbol     string
	Side       Side
	Qty        float64
	Price      float64 // reference price sizing was computed against
	Taker      bool
	ReduceOnly bool
	Meta       map[string]string
}

// Notional returns the unsigned reference notional of the intent.
func (o OrderIntent) Notional() float64 {
	q := o.Qty
	if q < 0 {
		q = -q
	}
	return q * o.Price
}

// Fill is a realized execution: the unit of mutation applied to the
// portfolio. Fee and Slippage are absolute costs in account currency, never
// baked into Price. Identical inputs always produce identical fills.
type Fill struct {
	OrderID  string
	Time     time.Time
	Symbol   string
	Side     Side
	Qty      float64 // signed, same convention as OrderIntent
	Price    float64
	Fee      float64
	Slippage float64
	Reason   reason.Code
	Meta     map[string]string
}

// Notional returns the unsigned filled notional.
func (f Fill) Notional() float64 {
	q := f.Qty
	if q < 0 {
		q = -q
	}
	return q * f.Price
}
