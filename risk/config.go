// Package risk turns a resolved signal into a sized order intent, or a
// rejection with a stable reason code. The engine is stateless: every call
// works off the account snapshot passed in, never a live portfolio.
package risk

import "fmt"

// Mode selects how entry quantity is computed.
type Mode string

const (
	// ModeEquityPct sizes to a fixed fraction of equity in notional.
	ModeEquityPct Mode = "equity_pct"
	// ModeRFixed sizes so the loss at the stop equals RPerTrade of equity.
	ModeRFixed Mode = "r_fixed"
)

// Rounding selects the final quantity rounding policy.
type Rounding string

const (
	RoundNone Rounding = "none"
	RoundLot  Rounding = "lot"
)

// Config fixes the sizing and limit parameters for a run.
type Config struct {
	Mode      Mode
	RPerTrade float64 // ModeRFixed: risk budget as fraction of equity
	EquityPct float64 // ModeEquityPct: notional as fraction of equity

	MaxPositions             int
	MaxLeverage              float64
	MaxNotionalPctEquity     float64
	MaintenanceFreeMarginPct float64

	// Margin scaling shrinks an unaffordable order to fit free margin
	// instead of rejecting it.
	MarginScaling    bool
	MarginBufferTier int

	// Fee and worst-case slippage fractions feeding the affordability
	// buffers. These mirror the execution model's configuration.
	MakerFeeBps       float64
	TakerFeeBps       float64
	SlippageImpactCap float64

	// Spread mirror: affordability checks run against the worst-case fill
	// price, since margin is locked on the spread-adjusted notional.
	// SpreadRangeProxy takes the half-spread from the bar range instead of
	// SpreadBps.
	SpreadBps        float64
	SpreadRangeProxy bool

	Rounding Rounding
	LotSize  float64
}

// Validate reports configuration contradictions before any bar is processed.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeEquityPct:
		if c.EquityPct <= 0 || c.EquityPct > 1 {
			return fmt.Errorf("equity pct must be in (0,1], got %g", c.EquityPct)
		}
	case ModeRFixed:
		if c.RPerTrade <= 0 || c.RPerTrade > 1 {
			return fmt.Errorf("r per trade must be in (0,1], got %g", c.RPerTrade)
		}
	default:
		return fmt.Errorf("risk mode must be %q or %q, got %q", ModeEquityPct, ModeRFixed, c.Mode)
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("max positions must be positive, got %d", c.MaxPositions)
	}
	if c.MaxLeverage <= 0 {
		return fmt.Errorf("max leverage must be positive, got %g", c.MaxLeverage)
	}
	if c.MaxNotionalPctEquity <= 0 {
		return fmt.Errorf("max notional pct equity must be positive, got %g", c.MaxNotionalPctEquity)
	}
	if c.MaintenanceFreeMarginPct < 0 || c.MaintenanceFreeMarginPct >= 1 {
		return fmt.Errorf("maintenance free margin pct must be in [0,1), got %g", c.MaintenanceFreeMarginPct)
	}
	if c.MarginBufferTier < 0 {
		return fmt.Errorf("margin buffer tier must be >= 0, got %d", c.MarginBufferTier)
	}
	if c.MakerFeeBps < 0 || c.TakerFeeBps < 0 {
		return fmt.Errorf("fee bps must be >= 0")
	}
	if c.SlippageImpactCap < 0 {
		return fmt.Errorf("slippage impact cap must be >= 0, got %g", c.SlippageImpactCap)
	}
	if c.SpreadBps < 0 {
		return fmt.Errorf("spread bps must be >= 0, got %g", c.SpreadBps)
	}
	switch c.Rounding {
	case RoundNone, "":
	case RoundLot:
		if c.LotSize <= 0 {
			return fmt.Errorf("lot rounding needs a positive lot size, got %g", c.LotSize)
		}
	default:
		return fmt.Errorf("qty rounding must be %q or %q, got %q", RoundNone, RoundLot, c.Rounding)
	}
	return nil
}
