package portfolio

import (
	"time"

	"github.com/mshull/stratsim/market"
)

// PositionState is the per-symbol lifecycle:
//
//	flat -> opening -> open -> reducing -> closed -> flat
//
// opening and closed are transitional: an opening fill lands in open and a
// closing fill resets to flat before the caller observes the position again,
// so the states a caller can see between operations are flat, open, and
// reducing.
type PositionState string

const (
	StateFlat     PositionState = "flat"
	StateOpening  PositionState = "opening"
	StateOpen     PositionState = "open"
	StateReducing PositionState = "reducing"
	StateClosed   PositionState = "closed"
)

// Position is per-symbol mutable state owned exclusively by the Portfolio.
// Qty is signed and its sign always matches Side; Qty == 0 implies Flat.
type Position struct {
	Symbol        string
	State         PositionState
	Side          market.Side
	Qty           float64
	AvgEntry      float64
	Mark          float64 // last mark price; persists across bars with no data
	RealizedPnL   float64
	UnrealizedPnL float64
	// CostsIncurred accumulates the fee and slippage actually paid on this
	// position's fills. The account snapshot nets it against the fee and
	// slippage reserves, so margin already set aside for costs is not also
	// demanded from equity after the costs are paid.
	CostsIncurred float64
	OpenTime      time.Time
}

// MarketValue is the signed value of the position at its last mark.
func (p Position) MarketValue() float64 { return p.Qty * p.Mark }

// Notional is the unsigned exposure at the last mark.
func (p Position) Notional() float64 {
	q := p.Qty
	if q < 0 {
		q = -q
	}
	return q * p.Mark
}

func (p *Position) remark(price float64) {
	p.Mark = price
	p.UnrealizedPnL = p.Qty * (price - p.AvgEntry)
}

func (p *Position) reset() {
	side := market.Flat
	*p = Position{
		Symbol:      p.Symbol,
		State:       StateFlat,
		Side:        side,
		RealizedPnL: p.RealizedPnL, // realized survives the round trip
		Mark:        p.Mark,
	}
}
