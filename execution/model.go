// Package execution builds realized fills from approved order intents. Every
// output is a deterministic function of the intent, the bar, and the
// configuration: no randomness, so identical inputs reproduce identical
// fills across runs.
package execution

import (
	"fmt"
	"math"

	"github.com/mshull/stratsim/market"
	"github.com/mshull/stratsim/reason"
)

const epsilon = 1e-12

// SpreadMode selects how the fill price moves off the reference price.
type SpreadMode string

const (
	SpreadNone SpreadMode = "none"
	// SpreadFixedBps scales the price by +/- SpreadBps/10000 by side.
	SpreadFixedBps SpreadMode = "fixed_bps"
	// SpreadBarRangeProxy uses half of (high-low)*0.5 as the half-spread.
	SpreadBarRangeProxy SpreadMode = "bar_range_proxy"
)

// PriceRef selects which bar field anchors the fill.
type PriceRef string

const (
	RefClose PriceRef = "close"
	RefOpen  PriceRef = "open"
)

// Config fixes the execution cost model for a run.
type Config struct {
	SpreadMode SpreadMode
	SpreadBps  float64
	PriceRef   PriceRef // empty means RefClose

	MakerFeeBps float64
	TakerFeeBps float64

	// Slippage is modeled as liquidity impact: it grows with bar volatility
	// and with order size relative to the bar's traded value, capped to keep
	// pathological bars from blowing up the cost.
	SlippageK float64
	ATRPctCap float64
	ImpactCap float64
}

func (c Config) Validate() error {
	switch c.SpreadMode {
	case SpreadNone, SpreadFixedBps, SpreadBarRangeProxy:
	default:
		return fmt.Errorf("spread mode must be one of %q, %q, %q, got %q",
			SpreadNone, SpreadFixedBps, SpreadBarRangeProxy, c.SpreadMode)
	}
	switch c.PriceRef {
	case "", RefClose, RefOpen:
	default:
		return fmt.Errorf("price ref must be %q or %q, got %q", RefClose, RefOpen, c.PriceRef)
	}
	if c.SpreadBps < 0 {
		return fmt.Errorf("spread bps must be >= 0, got %g", c.SpreadBps)
	}
	if c.MakerFeeBps < 0 || c.TakerFeeBps < 0 {
		return fmt.Errorf("fee bps must be >= 0")
	}
	if c.SlippageK < 0 || c.ATRPctCap < 0 || c.ImpactCap < 0 {
		return fmt.Errorf("slippage constants must be >= 0")
	}
	return nil
}

// Error reports an intent or bar the model refuses to fill. Fatal: approved
// intents reaching here means an upstream bug or malformed data.
type Error struct {
	Symbol string
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("execution (%s): %s", e.Symbol, e.Msg)
}

// Model computes fills under one cost configuration.
type Model struct {
	cfg Config
}

func NewModel(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("execution config: %w", err)
	}
	return &Model{cfg: cfg}, nil
}

// Fill prices the intent against the bar: spread-adjusted price, liquidity
// impact slippage as an absolute cost, and the maker/taker fee.
func (m *Model) Fill(intent market.OrderIntent, bar market.Bar) (market.Fill, error) {
	if intent.Side != market.Buy && intent.Side != market.Sell {
		return market.Fill{}, &Error{Symbol: intent.Symbol, Msg: fmt.Sprintf("side %q is not fillable", intent.Side)}
	}
	if intent.Qty == 0 {
		return market.Fill{}, &Error{Symbol: intent.Symbol, Msg: "quantity is zero"}
	}
	if bar.High < bar.Low {
		return market.Fill{}, &Error{Symbol: intent.Symbol,
			Msg: fmt.Sprintf("bar high %.8f below low %.8f", bar.High, bar.Low)}
	}

	base := bar.Close
	if m.cfg.PriceRef == RefOpen {
		base = bar.Open
	}

	price := m.spreadAdjust(base, bar, intent.Side)
	if price <= 0 {
		return market.Fill{}, &Error{Symbol: intent.Symbol,
			Msg: fmt.Sprintf("spread-adjusted price %.8f is not positive", price)}
	}

	notional := math.Abs(intent.Qty) * price
	fee := notional * m.feeBps(intent.Taker) / 10_000
	slippage := notional * m.impact(notional, bar)

	return market.Fill{
		OrderID:  intent.ID,
		Time:     bar.Time,
		Symbol:   intent.Symbol,
		Side:     intent.Side,
		Qty:      intent.Qty,
		Price:    price,
		Fee:      fee,
		Slippage: slippage,
		Reason:   reason.Approved,
		Meta:     intent.Meta,
	}, nil
}

func (m *Model) spreadAdjust(base float64, bar market.Bar, side market.Side) float64 {
	switch m.cfg.SpreadMode {
	case SpreadFixedBps:
		return base * (1 + float64(side)*m.cfg.SpreadBps/10_000)
	case SpreadBarRangeProxy:
		half := bar.Range() * 0.5 * 0.5
		return base + float64(side)*half
	default:
		return base
	}
}

func (m *Model) feeBps(taker bool) float64 {
	if taker {
		return m.cfg.TakerFeeBps
	}
	return m.cfg.MakerFeeBps
}

// impact is the slippage fraction of notional:
//
//	atrPct  = clamp((high-low)/max(close, eps), 0, atrPctCap)
//	impact  = clamp(k * atrPct * notional/barDollarVolume, 0, impactCap)
//
// A bar with no traded value gives no liquidity signal; the impact pins to
// the cap rather than pretending the order is free.
func (m *Model) impact(notional float64, bar market.Bar) float64 {
	dollarVol := bar.DollarVolume()
	if dollarVol <= 0 {
		return m.cfg.ImpactCap
	}
	atrPct := clamp(bar.Range()/math.Max(bar.Close, epsilon), 0, m.cfg.ATRPctCap)
	return clamp(m.cfg.SlippageK*atrPct*notional/dollarVol, 0, m.cfg.ImpactCap)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
