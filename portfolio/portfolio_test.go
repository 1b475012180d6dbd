package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mshull/stratsim/margin"
	"github.com/mshull/stratsim/market"
	"github.com/mshull/stratsim/reason"
)

func newPortfolio(t *testing.T, cash, maxLeverage float64) *Portfolio {
	t.Helper()
	return New(Config{MaxLeverage: maxLeverage}, cash)
}

func fill(sym string, qty, price float64) market.Fill {
	return market.Fill{
		OrderID: "F-" + sym,
		Time:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Symbol:  sym,
		Side:    market.Buy,
		Qty:     qty,
		Price:   price,
	}
}

func barAt(sym string, close float64) market.Bar {
	return market.Bar{
		Time: time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC), Symbol: sym,
		Open: close, High: close, Low: close, Close: close, Volume: 1000,
	}
}

func TestOpeningFill(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 1000, 10)
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", 2, 100)}))

	pos, ok := p.Position("BTC_USD")
	require.True(t, ok)
	assert.Equal(t, StateOpen, pos.State)
	assert.Equal(t, market.Buy, pos.Side)
	assert.Equal(t, 2.0, pos.Qty)
	assert.Equal(t, 100.0, pos.AvgEntry)

	snap := p.Snapshot()
	assert.InDelta(t, 800.0, snap.Cash, 1e-9)
	// Equity is unchanged by an at-cost fill with no costs.
	assert.InDelta(t, 1000.0, snap.Equity, 1e-9)
	assert.Equal(t, 1, snap.OpenPositions)
}

func TestFeesAndSlippageDebitCash(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 1000, 10)
	f := fill("BTC_USD", 1, 100)
	f.Fee = 2
	f.Slippage = 3
	require.NoError(t, p.ApplyFills([]market.Fill{f}))

	snap := p.Snapshot()
	assert.InDelta(t, 895.0, snap.Cash, 1e-9)
	assert.InDelta(t, 995.0, snap.Equity, 1e-9)
}

func TestIncreasingFillReweightsAverageEntry(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 10_000, 10)
	require.NoError(t, p.ApplyFills([]market.Fill{
		fill("BTC_USD", 2, 100),
		fill("BTC_USD", 2, 110),
	}))

	pos, _ := p.Position("BTC_USD")
	assert.Equal(t, 4.0, pos.Qty)
	assert.InDelta(t, 105.0, pos.AvgEntry, 1e-9)
}

func TestReducingFillBooksRealizedAtPreFillAverage(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 10_000, 10)
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", 4, 100)}))
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", -1, 110)}))

	pos, _ := p.Position("BTC_USD")
	assert.Equal(t, StateReducing, pos.State)
	assert.Equal(t, 3.0, pos.Qty)
	assert.InDelta(t, 100.0, pos.AvgEntry, 1e-9) // unchanged on reduction
	assert.InDelta(t, 10.0, pos.RealizedPnL, 1e-9)
}

func TestClosingFillResetsToFlat(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 10_000, 10)
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", 4, 100)}))
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", -4, 90)}))

	_, ok := p.Position("BTC_USD")
	assert.False(t, ok)
	assert.Equal(t, 0, p.OpenCount())

	// 10000 - 400 + 360
	assert.InDelta(t, 9_960.0, p.Cash(), 1e-9)

	// The symbol accepts a fresh opening fill afterwards.
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", 1, 90)}))
	pos, ok := p.Position("BTC_USD")
	require.True(t, ok)
	assert.Equal(t, StateOpen, pos.State)
	assert.Equal(t, 90.0, pos.AvgEntry)
}

func TestShortRoundTrip(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 1000, 10)
	require.NoError(t, p.ApplyFills([]market.Fill{fill("ETH_USD", -2, 50)}))

	pos, _ := p.Position("ETH_USD")
	assert.Equal(t, market.Sell, pos.Side)
	assert.InDelta(t, 1100.0, p.Cash(), 1e-9)
	assert.InDelta(t, 1000.0, p.Snapshot().Equity, 1e-9)

	// Cover at 40: +10 per unit on 2 units.
	require.NoError(t, p.ApplyFills([]market.Fill{fill("ETH_USD", 2, 40)}))
	assert.InDelta(t, 1020.0, p.Snapshot().Equity, 1e-9)
	assert.Equal(t, 0, p.OpenCount())
}

func TestOvershootingReduceIsRejected(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 10_000, 10)
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", 1, 100)}))

	err := p.ApplyFills([]market.Fill{fill("BTC_USD", -2, 100)})
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindBadFill, perr.Kind)
}

func TestMarkToMarketUpdatesOnlyPresentSymbols(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 10_000, 10)
	require.NoError(t, p.ApplyFills([]market.Fill{
		fill("BTC_USD", 1, 100),
		fill("ETH_USD", 1, 50),
	}))

	_, err := p.MarkToMarket(map[string]market.Bar{"BTC_USD": barAt("BTC_USD", 120)})
	require.NoError(t, err)

	btc, _ := p.Position("BTC_USD")
	eth, _ := p.Position("ETH_USD")
	assert.InDelta(t, 20.0, btc.UnrealizedPnL, 1e-9)
	assert.Equal(t, 120.0, btc.Mark)
	// ETH keeps its last mark untouched.
	assert.Equal(t, 50.0, eth.Mark)
	assert.InDelta(t, 0.0, eth.UnrealizedPnL, 1e-9)
}

func TestMarkToMarketEmptyMapIsNoOp(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 10_000, 10)
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", 2, 100)}))
	before, _ := p.Position("BTC_USD")

	fills, err := p.MarkToMarket(map[string]market.Bar{})
	require.NoError(t, err)
	assert.Empty(t, fills)

	after, _ := p.Position("BTC_USD")
	assert.Equal(t, before.UnrealizedPnL, after.UnrealizedPnL)
	assert.Equal(t, before.AvgEntry, after.AvgEntry)
	assert.Equal(t, before.Mark, after.Mark)
}

func TestForcedLiquidationRestoresFreeMargin(t *testing.T) {
	t.Parallel()

	// Leveraged long: 150 units at 100 on 10k cash leaves cash at -5000,
	// equity 10000, locked margin 7500, free margin 2500.
	p := newPortfolio(t, 10_000, 2)
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", 150, 100)}))

	// Mark at 60: equity 4000, locked 4500, free margin -500. The position
	// must be force-closed.
	fills, err := p.MarkToMarket(map[string]market.Bar{"BTC_USD": barAt("BTC_USD", 60)})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, reason.LiquidationNegativeFreeMargin, fills[0].Reason)
	assert.Equal(t, -150.0, fills[0].Qty)
	assert.Equal(t, 60.0, fills[0].Price)

	snap := p.Snapshot()
	assert.GreaterOrEqual(t, snap.FreeMargin, 0.0)
	assert.Equal(t, 0, snap.OpenPositions)
}

func TestLiquidationClosesLargestMarginFirst(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 10_000, 2)
	require.NoError(t, p.ApplyFills([]market.Fill{
		fill("AAA_USD", 40, 100),  // notional 4000
		fill("BBB_USD", 120, 100), // notional 12000, cash ends at -6000
	}))

	// Both halve: equity 2000, locked 4000, free margin -2000. Closing BBB
	// alone restores it.
	fills, err := p.MarkToMarket(map[string]market.Bar{
		"AAA_USD": barAt("AAA_USD", 50),
		"BBB_USD": barAt("BBB_USD", 50),
	})
	require.NoError(t, err)

	require.Len(t, fills, 1)
	assert.Equal(t, "BBB_USD", fills[0].Symbol, "largest margin consumer goes first")
	assert.GreaterOrEqual(t, p.Snapshot().FreeMargin, 0.0)
	_, stillOpen := p.Position("AAA_USD")
	assert.True(t, stillOpen)
}

func TestAccountBlowupIsFatal(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 1_000, 2)
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", 15, 100)}))

	// Price goes near zero: equity itself is negative, so closing everything
	// cannot restore free margin.
	_, err := p.MarkToMarket(map[string]market.Bar{"BTC_USD": barAt("BTC_USD", 1)})
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindBlowup, perr.Kind)
}

func TestCloseAllTagsEndOfRun(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 10_000, 10)
	require.NoError(t, p.ApplyFills([]market.Fill{
		fill("BTC_USD", 1, 100),
		fill("ETH_USD", -2, 50),
	}))

	now := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	fills, err := p.CloseAll(now)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	for _, f := range fills {
		assert.Equal(t, reason.LiquidationEndOfRun, f.Reason)
		assert.Equal(t, now, f.Time)
	}
	assert.Equal(t, 0, p.OpenCount())
}

func TestEquityIdentity(t *testing.T) {
	t.Parallel()

	// equity == cash + sum of signed position market value, after any mix of
	// fills and marks.
	p := newPortfolio(t, 5_000, 10)
	require.NoError(t, p.ApplyFills([]market.Fill{
		fill("AAA_USD", 3, 100),
		fill("BBB_USD", -4, 50),
	}))
	_, err := p.MarkToMarket(map[string]market.Bar{
		"AAA_USD": barAt("AAA_USD", 110),
		"BBB_USD": barAt("BBB_USD", 45),
	})
	require.NoError(t, err)

	snap := p.Snapshot()
	want := p.Cash()
	for _, pos := range p.OpenPositions() {
		want += pos.MarketValue()
	}
	assert.InDelta(t, want, snap.Equity, 1e-9)
}

func TestSnapshotBuffersReduceFreeMargin(t *testing.T) {
	t.Parallel()

	cfg := Config{
		MaxLeverage:              2,
		MaintenanceFreeMarginPct: 0.05,
		Buffers:                  margin.BufferRates{Fee: 0.001, Slippage: 0.002, AdverseMove: 0.01},
	}
	p := New(cfg, 10_000)
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", 10, 100)}))

	snap := p.Snapshot()
	// locked 500, buffers 1000*(0.013)=13, maintenance floor 500.
	assert.InDelta(t, 500.0, snap.MarginLocked, 1e-9)
	assert.InDelta(t, 10_000-500-13-500, snap.FreeMargin, 1e-9)
	assert.Equal(t, snap.MarginLocked, snap.MaintenanceRequired)
}

func TestZeroQtyFillRejected(t *testing.T) {
	t.Parallel()

	p := newPortfolio(t, 1000, 10)
	err := p.ApplyFills([]market.Fill{fill("BTC_USD", 0, 100)})
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindBadFill, perr.Kind)
}

func TestExactFitFillNetsCostsAgainstReserve(t *testing.T) {
	t.Parallel()

	cfg := Config{
		MaxLeverage: 2,
		Buffers:     margin.BufferRates{Fee: 0.0005, Slippage: 0.002},
	}
	p := New(cfg, 10_000)

	// Quantity sized to consume exactly the free margin, buffers included,
	// then charged the realized taker fee and worst-case slippage on top.
	// The reserve must absorb those costs instead of demanding them twice.
	qty := 10_000 / cfg.Buffers.PerUnitCost(100, cfg.MaxLeverage)
	f := fill("BTC_USD", qty, 100)
	f.Fee = qty * 100 * 0.0005
	f.Slippage = qty * 100 * 0.002

	require.NoError(t, p.ApplyFills([]market.Fill{f}))
	assert.InDelta(t, 0, p.Snapshot().FreeMargin, 1e-6)
}

func TestSnapshotNetsCostsFeeReserveFirst(t *testing.T) {
	t.Parallel()

	cfg := Config{
		MaxLeverage: 2,
		Buffers:     margin.BufferRates{Fee: 0.001, Slippage: 0.002},
	}
	p := New(cfg, 10_000)

	// 10 units at 100: fee reserve 1, slippage reserve 2. Costs of 1.5 empty
	// the fee reserve and leave 0.5 standing in the slippage reserve.
	f := fill("BTC_USD", 10, 100)
	f.Fee = 1.0
	f.Slippage = 0.5
	require.NoError(t, p.ApplyFills([]market.Fill{f}))

	snap := p.Snapshot()
	// equity = 10000 - 1.5; locked 500; remaining reserve 1.5.
	assert.InDelta(t, 10_000-1.5, snap.Equity, 1e-9)
	assert.InDelta(t, 10_000-1.5-500-1.5, snap.FreeMargin, 1e-9)
}

func TestCostReserveResetsOnRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := Config{
		MaxLeverage: 2,
		Buffers:     margin.BufferRates{Fee: 0.001},
	}
	p := New(cfg, 10_000)

	open := fill("BTC_USD", 10, 100)
	open.Fee = 5
	require.NoError(t, p.ApplyFills([]market.Fill{open}))
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", -10, 100)}))

	// Reopening starts with a fresh reserve: no stale netting survives a
	// completed round trip.
	require.NoError(t, p.ApplyFills([]market.Fill{fill("BTC_USD", 10, 100)}))
	pos, ok := p.Position("BTC_USD")
	require.True(t, ok)
	assert.Zero(t, pos.CostsIncurred)
}
