package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mshull/stratsim/market"
)

func bar(h, l, c float64) market.Bar {
	return market.Bar{
		Time:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Symbol: "BTC_USD",
		Open:   c,
		High:   h,
		Low:    l,
		Close:  c,
		Volume: 100,
	}
}

func TestATRWarmup(t *testing.T) {
	t.Parallel()

	a := NewATR(3)
	assert.Equal(t, 4, a.Warmup())
	assert.False(t, a.Ready())
	assert.Equal(t, 0.0, a.Value())

	// First bar only seeds prev; next 3 complete warmup.
	a.Update(bar(102, 98, 100))
	assert.False(t, a.Ready())

	a.Update(bar(104, 100, 102))
	a.Update(bar(103, 99, 101))
	assert.False(t, a.Ready())

	a.Update(bar(105, 101, 104))
	assert.True(t, a.Ready())
	assert.Greater(t, a.Value(), 0.0)
}

func TestATRWilderSmoothing(t *testing.T) {
	t.Parallel()

	a := NewATR(2)
	a.Update(bar(10, 10, 10)) // prev only

	// TR vs prev close 10: max(12-8, |12-10|, |8-10|) = 4
	a.Update(bar(12, 8, 10))
	// TR: max(11-9, 1, 1) = 2
	a.Update(bar(11, 9, 10))
	assert.True(t, a.Ready())
	assert.InDelta(t, 3.0, a.Value(), 1e-9) // (4+2)/2

	// TR: max(14-10, 4, 0) = 4, smoothed: (3*1 + 4)/2 = 3.5
	a.Update(bar(14, 10, 12))
	assert.InDelta(t, 3.5, a.Value(), 1e-9)
}

func TestATRReset(t *testing.T) {
	t.Parallel()

	a := NewATR(2)
	for i := 0; i < 5; i++ {
		a.Update(bar(12, 8, 10))
	}
	assert.True(t, a.Ready())

	a.Reset()
	assert.False(t, a.Ready())
	assert.Equal(t, 0.0, a.Value())
}

func TestEMASeedAndUpdate(t *testing.T) {
	t.Parallel()

	e := NewEMA(3)
	assert.Equal(t, 3, e.Warmup())

	e.Update(bar(10, 10, 10))
	e.Update(bar(11, 11, 11))
	assert.False(t, e.Ready())

	e.Update(bar(12, 12, 12))
	assert.True(t, e.Ready())
	assert.InDelta(t, 11.0, e.Value(), 1e-9) // SMA seed

	// multiplier = 2/(3+1) = 0.5 -> (15-11)*0.5 + 11 = 13
	e.Update(bar(15, 15, 15))
	assert.InDelta(t, 13.0, e.Value(), 1e-9)
}
