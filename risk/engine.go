package risk

import (
	"fmt"
	"math"

	"github.com/mshull/stratsim/margin"
	"github.com/mshull/stratsim/market"
	"github.com/mshull/stratsim/pkg/id"
	"github.com/mshull/stratsim/portfolio"
	"github.com/mshull/stratsim/reason"
	"github.com/mshull/stratsim/stops"
)

// Engine sizes orders under one risk configuration.
type Engine struct {
	cfg     Config
	buffers margin.BufferRates
}

// NewEngine validates the configuration and returns an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("risk config: %w", err)
	}
	return &Engine{
		cfg:     cfg,
		buffers: margin.Rates(cfg.MakerFeeBps, cfg.TakerFeeBps, cfg.SlippageImpactCap, cfg.MarginBufferTier),
	}, nil
}

// SizeOrder turns an entry signal plus its resolved stop into a sized order
// intent, or a rejection code. The returned error is non-nil only for
// strategy contract violations; those are fatal, everything else is a
// decision value.
//
// Checks run in a fixed order so multi-signal bars are reproducible: stop
// validity, position count, notional cap, margin (with optional scale-down),
// then quantity rounding with a cap re-check.
func (e *Engine) SizeOrder(
	sig market.Signal,
	stop stops.Result,
	bar market.Bar,
	snap portfolio.AccountSnapshot,
) (*market.OrderIntent, reason.Code, error) {
	if sig.Side != market.Buy && sig.Side != market.Sell {
		return nil, "", &StrategyContractError{
			Symbol: sig.Symbol, SignalType: sig.Type,
			Msg: fmt.Sprintf("entry signal with side %q", sig.Side),
		}
	}
	if sig.Stop == nil {
		// No stop metadata at all indicates a broken strategy, not a signal
		// that happened to fail a check.
		return nil, "", &StrategyContractError{
			Symbol: sig.Symbol, SignalType: sig.Type,
			Msg: "entry signal carries no stop intent",
		}
	}

	if !stop.Valid {
		return nil, stop.Reason, nil
	}

	if snap.OpenPositions >= e.cfg.MaxPositions {
		return nil, reason.RejectMaxPositions, nil
	}

	price := bar.Close
	qty := e.rawQty(snap.Equity, price, stop.Distance)
	if qty <= 0 {
		return nil, reason.RejectInsufficientMargin, nil
	}

	if qty*price > e.cfg.MaxNotionalPctEquity*snap.Equity {
		return nil, reason.RejectMaxNotional, nil
	}

	// Affordability runs against the worst-case fill price: the portfolio
	// locks margin and buffers on the spread-adjusted notional, so sizing
	// against the raw close would approve orders the account cannot hold.
	perUnit := e.buffers.PerUnitCost(e.fillPrice(bar), e.cfg.MaxLeverage)

	scaled := false
	if qty*perUnit > snap.FreeMargin {
		if !e.cfg.MarginScaling {
			return nil, reason.RejectInsufficientMargin, nil
		}
		// Shrink to the maximum affordable quantity under free margin,
		// buffers included.
		qty = snap.FreeMargin / perUnit
		if qty <= 0 {
			return nil, reason.RejectInsufficientMargin, nil
		}
		scaled = true
	}

	// Rounding runs last and may only shrink; re-check the caps anyway and
	// reject rather than exceed them.
	if e.cfg.Rounding == RoundLot {
		qty = math.Floor(qty/e.cfg.LotSize) * e.cfg.LotSize
		if qty <= 0 {
			return nil, reason.RejectQtyRounding, nil
		}
		if qty*price > e.cfg.MaxNotionalPctEquity*snap.Equity {
			return nil, reason.RejectMaxNotional, nil
		}
		if qty*perUnit > snap.FreeMargin {
			return nil, reason.RejectInsufficientMargin, nil
		}
	}

	marginRequired := margin.InitialRequired(qty*price, e.cfg.MaxLeverage)
	intent := &market.OrderIntent{
		ID:     id.New(),
		Time:   bar.Time,
		Symbol: sig.Symbol,
		Side:   sig.Side,
		Qty:    float64(sig.Side) * qty,
		Price:  price,
		Taker:  true, // market entries cross the spread
		Meta: map[string]string{
			market.MetaScaledByMargin: fmt.Sprintf("%t", scaled),
			market.MetaMarginRequired: fmt.Sprintf("%.8f", marginRequired),
			market.MetaRiskMode:       string(e.cfg.Mode),
		},
	}

	code := reason.Approved
	if scaled {
		code = reason.ScaledMargin
	}
	return intent, code, nil
}

// fillPrice is the worst-case price a taker entry can execute at against
// this bar under the mirrored spread configuration.
func (e *Engine) fillPrice(bar market.Bar) float64 {
	if e.cfg.SpreadRangeProxy {
		return bar.Close + bar.Range()*0.25
	}
	return bar.Close * (1 + e.cfg.SpreadBps/10_000)
}

// rawQty computes the pre-limit quantity for the configured sizing mode.
func (e *Engine) rawQty(equity, price, stopDistance float64) float64 {
	if equity <= 0 || price <= 0 {
		return 0
	}
	switch e.cfg.Mode {
	case ModeEquityPct:
		return e.cfg.EquityPct * equity / price
	case ModeRFixed:
		if stopDistance <= 0 {
			return 0
		}
		return e.cfg.RPerTrade * equity / stopDistance
	default:
		return 0
	}
}

// Buffers exposes the affordability buffer fractions derived from the
// configuration, for callers that need a consistent portfolio config.
func (e *Engine) Buffers() margin.BufferRates { return e.buffers }
