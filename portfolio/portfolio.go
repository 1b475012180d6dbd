// Package portfolio owns per-symbol position state and account-level cash,
// equity, and margin. It is the single mutable resource of the pipeline:
// exclusively owned and mutated by the driver, single-writer, no locking.
package portfolio

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mshull/stratsim/margin"
	"github.com/mshull/stratsim/market"
	"github.com/mshull/stratsim/pkg/id"
	"github.com/mshull/stratsim/reason"
)

// qtyEpsilon absorbs float residue when a reducing fill returns a position to
// exactly zero.
const qtyEpsilon = 1e-9

// freeMarginEpsilon absorbs float residue in the post-fill free margin check:
// an order scaled to consume exactly the free margin lands at zero only up to
// rounding.
const freeMarginEpsilon = 1e-6

// LiquidationPolicy selects which position a forced liquidation closes first.
type LiquidationPolicy string

// LiquidationLargestMargin closes the largest margin-consuming position
// first, tie-broken by ascending symbol so multi-symbol runs reproduce.
const LiquidationLargestMargin LiquidationPolicy = "largest_margin"

// Config fixes the account-level margin model for a run.
type Config struct {
	MaxLeverage              float64
	MaintenanceFreeMarginPct float64
	Buffers                  margin.BufferRates
	Liquidation              LiquidationPolicy
}

// AccountSnapshot is a projection of portfolio state, derived on demand and
// never persisted independently.
type AccountSnapshot struct {
	Cash                float64
	Equity              float64
	MarginLocked        float64
	MaintenanceRequired float64
	FreeMargin          float64
	OpenPositions       int
}

// Portfolio applies fills, marks positions to market, and enforces the free
// margin invariant via forced liquidation.
type Portfolio struct {
	cfg       Config
	cash      float64
	positions map[string]*Position
	now       time.Time // latest bar time seen by MarkToMarket
}

func New(cfg Config, initialCash float64) *Portfolio {
	if cfg.Liquidation == "" {
		cfg.Liquidation = LiquidationLargestMargin
	}
	return &Portfolio{
		cfg:       cfg,
		cash:      initialCash,
		positions: make(map[string]*Position),
	}
}

func (p *Portfolio) Cash() float64 { return p.cash }

// Position returns a copy of the symbol's position state.
func (p *Portfolio) Position(symbol string) (Position, bool) {
	pos, ok := p.positions[symbol]
	if !ok || pos.State == StateFlat {
		return Position{Symbol: symbol, State: StateFlat}, false
	}
	return *pos, true
}

// OpenPositions returns copies of all non-flat positions in symbol order.
func (p *Portfolio) OpenPositions() []Position {
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if pos.State != StateFlat {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// OpenCount returns the number of non-flat positions.
func (p *Portfolio) OpenCount() int {
	n := 0
	for _, pos := range p.positions {
		if pos.State != StateFlat {
			n++
		}
	}
	return n
}

// Snapshot projects the current account state: equity is cash plus the signed
// market value of every open position at its last mark; free margin stacks
// locked margin, buffers, and the maintenance floor against equity.
//
// The fee and slippage reserves exist to cover execution costs, so the costs
// a position has already paid are netted against its reserve (floored at
// zero). Without the netting, a fill sized to exactly fit free margin would
// be charged for its costs twice: once from cash, once as a still-standing
// reserve.
func (p *Portfolio) Snapshot() AccountSnapshot {
	equity := p.cash
	var notional, feeBuf, slipBuf, advBuf float64

	for _, pos := range p.positions {
		if pos.State == StateFlat {
			continue
		}
		equity += pos.MarketValue()
		n := pos.Notional()
		notional += n

		fee, slip, adv := p.cfg.Buffers.On(n)
		fee, slip = netIncurred(fee, slip, pos.CostsIncurred)
		feeBuf += fee
		slipBuf += slip
		advBuf += adv
	}

	ms := margin.ComputeSnapshot(
		equity, notional, p.cfg.MaxLeverage, p.cfg.MaintenanceFreeMarginPct,
		feeBuf, slipBuf, advBuf, 0, // no single mark price for an aggregate
	)
	return AccountSnapshot{
		Cash:                p.cash,
		Equity:              ms.Equity,
		MarginLocked:        ms.MarginLocked,
		MaintenanceRequired: margin.MaintenanceRequired(notional, p.cfg.MaxLeverage),
		FreeMargin:          ms.FreeMargin,
		OpenPositions:       p.OpenCount(),
	}
}

// netIncurred draws already-paid costs from the fee reserve first, then the
// slippage reserve, never below zero.
func netIncurred(fee, slip, incurred float64) (float64, float64) {
	drawn := math.Min(fee, incurred)
	fee -= drawn
	incurred -= drawn
	slip -= math.Min(slip, incurred)
	return fee, slip
}

// ApplyFills applies realized executions in order. It fails loudly if a fill
// cannot be applied or if applying them leaves free margin negative: approved
// orders were sized against free margin, so reaching a negative here without
// going through the liquidation path is a programming bug.
func (p *Portfolio) ApplyFills(fills []market.Fill) error {
	for _, f := range fills {
		if err := p.applyFill(f); err != nil {
			return err
		}
	}
	if snap := p.Snapshot(); snap.FreeMargin < -freeMarginEpsilon {
		return &Error{
			Kind: KindInvariant,
			Msg:  fmt.Sprintf("free margin %.6f went negative outside liquidation", snap.FreeMargin),
		}
	}
	return nil
}

func (p *Portfolio) applyFill(f market.Fill) error {
	if f.Qty == 0 {
		return &Error{Kind: KindBadFill, Symbol: f.Symbol, Msg: "fill quantity is zero"}
	}
	if f.Price <= 0 {
		return &Error{Kind: KindBadFill, Symbol: f.Symbol, Msg: "fill price must be positive"}
	}

	// Cash moves by signed notional plus costs: buys debit, sells credit,
	// fee and slippage always debit.
	p.cash -= f.Qty*f.Price + f.Fee + f.Slippage

	pos, ok := p.positions[f.Symbol]
	if !ok {
		pos = &Position{Symbol: f.Symbol, State: StateFlat}
		p.positions[f.Symbol] = pos
	}
	pos.CostsIncurred += f.Fee + f.Slippage

	switch {
	case pos.Qty == 0:
		// flat -> opening -> open, atomic from the caller's view.
		pos.State = StateOpening
		pos.Side = sideOf(f.Qty)
		pos.Qty = f.Qty
		pos.AvgEntry = f.Price
		pos.OpenTime = f.Time
		pos.remark(f.Price)
		pos.State = StateOpen

	case sameSign(pos.Qty, f.Qty):
		// Position-increasing fill: average entry is re-weighted.
		oldAbs, addAbs := math.Abs(pos.Qty), math.Abs(f.Qty)
		pos.AvgEntry = (pos.AvgEntry*oldAbs + f.Price*addAbs) / (oldAbs + addAbs)
		pos.Qty += f.Qty
		pos.State = StateOpen
		pos.remark(f.Price)

	default:
		// Reducing fill: realized PnL books against the pre-fill average
		// entry; the average itself does not move on reductions.
		if math.Abs(f.Qty) > math.Abs(pos.Qty)+qtyEpsilon {
			return &Error{
				Kind:   KindBadFill,
				Symbol: f.Symbol,
				Msg:    fmt.Sprintf("reducing fill %.8f exceeds open quantity %.8f", f.Qty, pos.Qty),
			}
		}
		closed := math.Min(math.Abs(f.Qty), math.Abs(pos.Qty))
		dir := 1.0
		if pos.Qty < 0 {
			dir = -1.0
		}
		pos.RealizedPnL += dir * closed * (f.Price - pos.AvgEntry)

		pos.Qty += f.Qty
		if math.Abs(pos.Qty) <= qtyEpsilon {
			pos.Qty = 0
			pos.State = StateClosed
			pos.reset() // closed -> flat, ready for future fills
		} else {
			pos.State = StateReducing
			pos.remark(f.Price)
		}
	}

	return p.checkPosition(pos)
}

// MarkToMarket recomputes marks from the bars present in the map; symbols
// absent from the map keep their last mark. That is a deliberate policy, not
// missing-data silence: a gap in one symbol's feed must not corrupt the rest
// of the account. After marking, if free margin is negative, positions are
// force-closed per the liquidation policy until it is not; the generated
// liquidation fills are returned for journaling. An account that stays
// underwater after closing everything is a fatal blowup.
func (p *Portfolio) MarkToMarket(bars map[string]market.Bar) ([]market.Fill, error) {
	for _, b := range bars {
		if b.Time.After(p.now) {
			p.now = b.Time
		}
	}
	for sym, pos := range p.positions {
		if pos.State == StateFlat {
			continue
		}
		b, ok := bars[sym]
		if !ok {
			continue
		}
		pos.remark(b.Close)
		if err := p.checkPosition(pos); err != nil {
			return nil, err
		}
	}
	return p.enforceMargin()
}

func (p *Portfolio) enforceMargin() ([]market.Fill, error) {
	var fills []market.Fill

	for {
		snap := p.Snapshot()
		if snap.FreeMargin >= -freeMarginEpsilon {
			return fills, nil
		}
		victim := p.selectLiquidation()
		if victim == nil {
			return fills, &Error{
				Kind: KindBlowup,
				Msg: fmt.Sprintf("free margin %.6f still negative with no positions left to liquidate",
					snap.FreeMargin),
			}
		}

		f := market.Fill{
			OrderID: id.New(),
			Time:    p.now,
			Symbol:  victim.Symbol,
			Side:    sideOf(-victim.Qty),
			Qty:     -victim.Qty,
			Price:   victim.Mark,
			Reason:  reason.LiquidationNegativeFreeMargin,
		}
		if err := p.applyFill(f); err != nil {
			return fills, err
		}
		fills = append(fills, f)
	}
}

// selectLiquidation picks the next victim per the configured policy:
// largest margin consumer first, ties broken by ascending symbol.
func (p *Portfolio) selectLiquidation() *Position {
	var victim *Position
	for _, pos := range p.positions {
		if pos.State == StateFlat {
			continue
		}
		if victim == nil ||
			pos.Notional() > victim.Notional() ||
			(pos.Notional() == victim.Notional() && pos.Symbol < victim.Symbol) {
			victim = pos
		}
	}
	return victim
}

// CloseAll force-closes every open position at its last mark, tagged with the
// end-of-run liquidation code. Used when the final bar is reached.
func (p *Portfolio) CloseAll(now time.Time) ([]market.Fill, error) {
	var fills []market.Fill
	for _, pos := range p.OpenPositions() {
		f := market.Fill{
			OrderID: id.New(),
			Time:    now,
			Symbol:  pos.Symbol,
			Side:    sideOf(-pos.Qty),
			Qty:     -pos.Qty,
			Price:   pos.Mark,
			Reason:  reason.LiquidationEndOfRun,
		}
		if err := p.applyFill(f); err != nil {
			return fills, err
		}
		fills = append(fills, f)
	}
	return fills, nil
}

// checkPosition enforces the sign invariants after every mutation. A
// violation is a bug in this package, reported loudly rather than skipped.
func (p *Portfolio) checkPosition(pos *Position) error {
	switch {
	case pos.Qty == 0 && pos.State != StateFlat:
		return &Error{Kind: KindInvariant, Symbol: pos.Symbol,
			Msg: fmt.Sprintf("zero quantity in state %q", pos.State)}
	case pos.Qty > 0 && pos.State != StateFlat && pos.Side != market.Buy:
		return &Error{Kind: KindInvariant, Symbol: pos.Symbol,
			Msg: fmt.Sprintf("positive quantity with side %s", pos.Side)}
	case pos.Qty < 0 && pos.State != StateFlat && pos.Side != market.Sell:
		return &Error{Kind: KindInvariant, Symbol: pos.Symbol,
			Msg: fmt.Sprintf("negative quantity with side %s", pos.Side)}
	}
	return nil
}

func sideOf(qty float64) market.Side {
	if qty >= 0 {
		return market.Buy
	}
	return market.Sell
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
