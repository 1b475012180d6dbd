package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mshull/stratsim/market"
)

func feedClose(t *testing.T, s Strategy, sym string, when time.Time, close float64, held float64) []market.Signal {
	t.Helper()
	ctx := &Context{
		Time:      when,
		Equity:    10_000,
		Positions: map[string]float64{sym: held},
		ATR:       func(string) (float64, bool) { return 1, true },
	}
	bar := market.Bar{
		Time: when, Symbol: sym,
		Open: close, High: close + 0.5, Low: close - 0.5, Close: close,
		Volume: 1000,
	}
	return s.OnBar(ctx, map[string]market.Bar{sym: bar})
}

func TestEMACrossLongEntryAndExit(t *testing.T) {
	t.Parallel()

	s, err := NewEMACross(map[string]any{"fast": 2, "slow": 3, "atr_multiple": 1.5})
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	held := 0.0

	// Warmup: flat prices, no crosses.
	for i := 0; i < 3; i++ {
		sigs := feedClose(t, s, "EURUSD", base.Add(time.Duration(i)*time.Hour), 10, held)
		assert.Empty(t, sigs)
	}

	// Price jumps: fast EMA crosses above slow.
	sigs := feedClose(t, s, "EURUSD", base.Add(3*time.Hour), 12, held)
	require.Len(t, sigs, 1)
	entry := sigs[0]
	assert.Equal(t, market.Buy, entry.Side)
	assert.Equal(t, "emacross_long", entry.Type)
	assert.False(t, entry.ReduceOnly)
	stop, ok := entry.Stop.(market.ATRStop)
	require.True(t, ok)
	assert.InDelta(t, 1.5, stop.Multiple, 1e-12)

	// Price drops while holding: fast crosses below slow, exit only.
	held = 3
	sigs = feedClose(t, s, "EURUSD", base.Add(4*time.Hour), 8, held)
	require.Len(t, sigs, 1)
	exit := sigs[0]
	assert.Equal(t, market.Sell, exit.Side)
	assert.Equal(t, "emacross_exit", exit.Type)
	assert.True(t, exit.ReduceOnly)
	assert.Nil(t, exit.Stop)
}

func TestEMACrossNoEntryWhileHolding(t *testing.T) {
	t.Parallel()

	s, err := NewEMACross(map[string]any{"fast": 2, "slow": 3})
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		feedClose(t, s, "EURUSD", base.Add(time.Duration(i)*time.Hour), 10, 5)
	}
	// Bull cross while already long: suppressed.
	sigs := feedClose(t, s, "EURUSD", base.Add(3*time.Hour), 12, 5)
	assert.Empty(t, sigs)
}

func TestEMACrossResetClearsState(t *testing.T) {
	t.Parallel()

	s, err := NewEMACross(map[string]any{"fast": 2, "slow": 3})
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		feedClose(t, s, "EURUSD", base.Add(time.Duration(i)*time.Hour), 10, 0)
	}
	s.Reset()
	// Post-reset the EMAs are cold again, so a jump cannot signal.
	sigs := feedClose(t, s, "EURUSD", base.Add(3*time.Hour), 12, 0)
	assert.Empty(t, sigs)
}

func TestEMACrossParamValidation(t *testing.T) {
	t.Parallel()

	_, err := NewEMACross(map[string]any{"fast": 21, "slow": 9})
	assert.Error(t, err)
	_, err = NewEMACross(map[string]any{"fast": 0})
	assert.Error(t, err)
	_, err = NewEMACross(map[string]any{"atr_multiple": -1})
	assert.Error(t, err)
}
