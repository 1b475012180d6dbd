package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mshull/stratsim/execution"
	"github.com/mshull/stratsim/indicators"
	"github.com/mshull/stratsim/journal"
	"github.com/mshull/stratsim/market"
	"github.com/mshull/stratsim/metrics"
	"github.com/mshull/stratsim/pkg/id"
	"github.com/mshull/stratsim/portfolio"
	"github.com/mshull/stratsim/reason"
	"github.com/mshull/stratsim/risk"
	"github.com/mshull/stratsim/stops"
	"github.com/mshull/stratsim/strategy"
)

// Options controls runner behavior outside the subsystem configs.
type Options struct {
	// CloseEnd closes all remaining positions at the last mark when the feed
	// is exhausted.
	CloseEnd bool
	// ATRPeriod sets the per-symbol ATR used for stop resolution.
	ATRPeriod int
}

// Result summarizes one completed run.
type Result struct {
	Cash   float64
	Equity float64

	Signals      int
	Approved     int
	Rejected     int
	Scaled       int
	Fills        int
	Liquidations int

	Start time.Time
	End   time.Time
}

// Runner wires the pipeline together and drives it bar group by bar group.
// Journal, Metrics and Log are optional; nil means in-memory, none, and no-op
// respectively.
type Runner struct {
	Feed      BarFeed
	Strategy  strategy.Strategy
	Resolver  *stops.Resolver
	Risk      *risk.Engine
	Exec      *execution.Model
	Portfolio *portfolio.Portfolio
	Journal   journal.Journal
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	Options   Options
}

// Run executes the loop. For each timestamp group:
//
//  1. validate bars and update per-symbol ATRs
//  2. mark to market (forced liquidations surface here)
//  3. journal the equity snapshot
//  4. collect the strategy's signals and settle each into exactly one
//     journaled decision, with fills applied as they happen
//
// Malformed bars, strategy contract violations, and account blowups abort the
// run with an error; everything else is a recorded decision.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Feed == nil || r.Strategy == nil || r.Resolver == nil ||
		r.Risk == nil || r.Exec == nil || r.Portfolio == nil {
		return Result{}, fmt.Errorf("backtest: feed, strategy, resolver, risk, exec and portfolio are all required")
	}
	if r.Journal == nil {
		r.Journal = journal.NewMemory()
	}
	if r.Log == nil {
		r.Log = zap.NewNop()
	}
	if r.Options.ATRPeriod <= 0 {
		r.Options.ATRPeriod = 14
	}
	defer r.Feed.Close()

	atrs := make(map[string]*indicators.ATR)
	var res Result
	r.Strategy.Reset()

	group := make(map[string]market.Bar)
	var groupTime time.Time

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		bar, ok, err := r.Feed.Next()
		if err != nil {
			return res, fmt.Errorf("backtest: feed: %w", err)
		}
		if ok && (len(group) == 0 || bar.Time.Equal(groupTime)) {
			if err := bar.Validate(); err != nil {
				return res, err
			}
			group[bar.Symbol] = bar
			groupTime = bar.Time
			continue
		}

		if len(group) > 0 {
			if err := r.step(groupTime, group, atrs, &res); err != nil {
				return res, err
			}
			group = make(map[string]market.Bar)
		}
		if !ok {
			break
		}
		if err := bar.Validate(); err != nil {
			return res, err
		}
		group[bar.Symbol] = bar
		groupTime = bar.Time
	}

	if r.Options.CloseEnd {
		fills, err := r.Portfolio.CloseAll(res.End)
		if err != nil {
			return res, err
		}
		for _, f := range fills {
			r.recordLiquidation(f, &res)
		}
	}

	snap := r.Portfolio.Snapshot()
	res.Cash = snap.Cash
	res.Equity = snap.Equity
	return res, nil
}

// step processes one timestamp group end to end.
func (r *Runner) step(now time.Time, bars map[string]market.Bar, atrs map[string]*indicators.ATR, res *Result) error {
	if res.Start.IsZero() {
		res.Start = now
	}
	res.End = now

	for sym, bar := range bars {
		a := atrs[sym]
		if a == nil {
			a = indicators.NewATR(r.Options.ATRPeriod)
			atrs[sym] = a
		}
		a.Update(bar)
	}

	liq, err := r.Portfolio.MarkToMarket(bars)
	if err != nil {
		return err
	}
	for _, f := range liq {
		r.recordLiquidation(f, res)
	}

	snap := r.Portfolio.Snapshot()
	if err := r.Journal.RecordEquity(journal.EquitySnapshot{
		Time:          now,
		Cash:          snap.Cash,
		Equity:        snap.Equity,
		MarginLocked:  snap.MarginLocked,
		FreeMargin:    snap.FreeMargin,
		OpenPositions: snap.OpenPositions,
	}); err != nil {
		return fmt.Errorf("backtest: journal equity: %w", err)
	}

	sctx := &strategy.Context{
		Time:      now,
		Equity:    snap.Equity,
		Positions: r.positionQtys(),
		ATR: func(sym string) (float64, bool) {
			a := atrs[sym]
			if a == nil {
				return 0, false
			}
			return a.Value(), a.Ready()
		},
	}

	for _, sig := range r.Strategy.OnBar(sctx, bars) {
		res.Signals++
		if r.Metrics != nil {
			r.Metrics.SignalsTotal.WithLabelValues(sig.Symbol).Inc()
		}

		bar, ok := bars[sig.Symbol]
		if !ok {
			return &risk.StrategyContractError{
				Symbol: sig.Symbol, SignalType: sig.Type,
				Msg: "signal for a symbol with no bar at this timestamp",
			}
		}

		if sig.ReduceOnly {
			if err := r.processExit(sig, bar, res); err != nil {
				return err
			}
			continue
		}
		if err := r.processEntry(sig, bar, atrs[sig.Symbol], res); err != nil {
			return err
		}
	}
	return nil
}

// processEntry resolves the stop, sizes the order, executes it, and settles
// the signal into one decision.
func (r *Runner) processEntry(sig market.Signal, bar market.Bar, atr *indicators.ATR, res *Result) error {
	stop := r.Resolver.Resolve(sig.Stop, stops.Context{
		Side:     sig.Side,
		Price:    bar.Close,
		ATR:      atr.Value(),
		ATRReady: atr.Ready(),
	})

	intent, code, err := r.Risk.SizeOrder(sig, stop, bar, r.Portfolio.Snapshot())
	if err != nil {
		return err
	}
	if code.IsReject() {
		return r.recordRejection(sig, bar, code, res)
	}

	// An approval that rode the legacy proxy is journaled under the fallback
	// code so downstream analysis can discount it.
	if stop.UsedFallback && code == reason.Approved {
		code = reason.FallbackLegacyProxy
	}

	fill, err := r.Exec.Fill(*intent, bar)
	if err != nil {
		return err
	}
	if err := r.Portfolio.ApplyFills([]market.Fill{fill}); err != nil {
		return err
	}

	res.Approved++
	if code == reason.ScaledMargin {
		res.Scaled++
	}
	if err := r.recordDecision(journal.DecisionRecord{
		Time:           bar.Time,
		Symbol:         sig.Symbol,
		SignalType:     sig.Type,
		Side:           sig.Side.String(),
		Approved:       true,
		Reason:         string(code),
		OrderID:        intent.ID,
		Qty:            fill.Qty,
		Price:          fill.Price,
		ScaledByMargin: code == reason.ScaledMargin,
	}); err != nil {
		return err
	}
	return r.recordFill(fill, res)
}

// processExit closes the open position for the signal's symbol, or settles
// the signal as a no-position rejection.
func (r *Runner) processExit(sig market.Signal, bar market.Bar, res *Result) error {
	pos, ok := r.Portfolio.Position(sig.Symbol)
	if !ok || pos.Qty == 0 {
		return r.recordRejection(sig, bar, reason.RejectNoPosition, res)
	}

	side := market.Sell
	if pos.Qty < 0 {
		side = market.Buy
	}
	intent := market.OrderIntent{
		ID:         id.New(),
		Time:       bar.Time,
		Symbol:     sig.Symbol,
		Side:       side,
		Qty:        -pos.Qty,
		Price:      bar.Close,
		Taker:      true,
		ReduceOnly: true,
	}
	fill, err := r.Exec.Fill(intent, bar)
	if err != nil {
		return err
	}
	if err := r.Portfolio.ApplyFills([]market.Fill{fill}); err != nil {
		return err
	}

	res.Approved++
	if err := r.recordDecision(journal.DecisionRecord{
		Time:       bar.Time,
		Symbol:     sig.Symbol,
		SignalType: sig.Type,
		Side:       side.String(),
		Approved:   true,
		Reason:     string(reason.Approved),
		OrderID:    intent.ID,
		Qty:        fill.Qty,
		Price:      fill.Price,
	}); err != nil {
		return err
	}
	return r.recordFill(fill, res)
}

func (r *Runner) recordRejection(sig market.Signal, bar market.Bar, code reason.Code, res *Result) error {
	res.Rejected++
	r.Log.Debug("signal rejected",
		zap.String("symbol", sig.Symbol),
		zap.String("reason", string(code)))
	return r.recordDecision(journal.DecisionRecord{
		Time:       bar.Time,
		Symbol:     sig.Symbol,
		SignalType: sig.Type,
		Side:       sig.Side.String(),
		Approved:   false,
		Reason:     string(code),
		Price:      bar.Close,
	})
}

func (r *Runner) recordDecision(d journal.DecisionRecord) error {
	if r.Metrics != nil {
		r.Metrics.DecisionsTotal.WithLabelValues(d.Reason).Inc()
	}
	if err := r.Journal.RecordDecision(d); err != nil {
		return fmt.Errorf("backtest: journal decision: %w", err)
	}
	return nil
}

func (r *Runner) recordFill(f market.Fill, res *Result) error {
	res.Fills++
	if f.Reason.IsLiquidation() {
		res.Liquidations++
		r.Log.Warn("position liquidated",
			zap.String("symbol", f.Symbol),
			zap.String("reason", string(f.Reason)),
			zap.Float64("qty", f.Qty))
	}
	if r.Metrics != nil {
		r.Metrics.FillsTotal.WithLabelValues(f.Symbol, f.Side.String()).Inc()
		if f.Reason.IsLiquidation() {
			r.Metrics.LiquidationsTotal.WithLabelValues(string(f.Reason)).Inc()
		}
	}
	if err := r.Journal.RecordFill(journal.FillRecord{
		OrderID:  f.OrderID,
		Time:     f.Time,
		Symbol:   f.Symbol,
		Side:     f.Side.String(),
		Qty:      f.Qty,
		Price:    f.Price,
		Fee:      f.Fee,
		Slippage: f.Slippage,
		Reason:   string(f.Reason),
	}); err != nil {
		return fmt.Errorf("backtest: journal fill: %w", err)
	}
	return nil
}

// recordLiquidation journals a forced close. Journal failures during
// liquidation are logged, not fatal: the account state change already
// happened.
func (r *Runner) recordLiquidation(f market.Fill, res *Result) {
	if err := r.recordFill(f, res); err != nil {
		r.Log.Error("journal liquidation fill", zap.Error(err))
	}
}

// IsBlowup reports whether the run ended in an unrecoverable account blowup.
func IsBlowup(err error) bool {
	var perr *portfolio.Error
	return errors.As(err, &perr) && perr.Kind == portfolio.KindBlowup
}

func (r *Runner) positionQtys() map[string]float64 {
	m := make(map[string]float64)
	for _, pos := range r.Portfolio.OpenPositions() {
		m[pos.Symbol] = pos.Qty
	}
	return m
}
