package strategy

import (
	"fmt"
	"sort"

	"github.com/mshull/stratsim/indicators"
	"github.com/mshull/stratsim/market"
)

// EMACross goes long when the fast EMA crosses above the slow EMA and flattens
// when it crosses back below. Entries carry an ATR stop intent so sizing is
// volatility-aware.
type EMACross struct {
	fast        int
	slow        int
	atrMultiple float64
	confidence  float64

	state map[string]*emaPair
}

type emaPair struct {
	fast *indicators.EMA
	slow *indicators.EMA
	// lastDiff is fast-slow from the previous bar; crosses are detected on
	// sign change. Zero-valued until both EMAs are ready.
	lastDiff float64
	hasDiff  bool
}

// NewEMACross builds the strategy from config params: fast (default 9),
// slow (default 21), atr_multiple (default 2), confidence (default 1).
func NewEMACross(params map[string]any) (Strategy, error) {
	fast := intParam(params, "fast", 9)
	slow := intParam(params, "slow", 21)
	if fast <= 0 || slow <= 0 {
		return nil, fmt.Errorf("emacross: periods must be positive (fast=%d slow=%d)", fast, slow)
	}
	if fast >= slow {
		return nil, fmt.Errorf("emacross: fast period %d must be shorter than slow %d", fast, slow)
	}
	mult := floatParam(params, "atr_multiple", 2)
	if mult <= 0 {
		return nil, fmt.Errorf("emacross: atr_multiple must be positive, got %v", mult)
	}
	return &EMACross{
		fast:        fast,
		slow:        slow,
		atrMultiple: mult,
		confidence:  floatParam(params, "confidence", 1),
		state:       make(map[string]*emaPair),
	}, nil
}

func (s *EMACross) Name() string { return "emacross" }

func (s *EMACross) Reset() {
	s.state = make(map[string]*emaPair)
}

func (s *EMACross) OnBar(ctx *Context, bars map[string]market.Bar) []market.Signal {
	symbols := make([]string, 0, len(bars))
	for sym := range bars {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var signals []market.Signal
	for _, sym := range symbols {
		bar := bars[sym]
		pair := s.state[sym]
		if pair == nil {
			pair = &emaPair{
				fast: indicators.NewEMA(s.fast),
				slow: indicators.NewEMA(s.slow),
			}
			s.state[sym] = pair
		}
		pair.fast.Update(bar)
		pair.slow.Update(bar)
		if !pair.fast.Ready() || !pair.slow.Ready() {
			continue
		}
		diff := pair.fast.Value() - pair.slow.Value()
		prev, had := pair.lastDiff, pair.hasDiff
		pair.lastDiff, pair.hasDiff = diff, true
		if !had {
			continue
		}

		holding := ctx.Positions[sym]
		switch {
		case prev <= 0 && diff > 0 && holding <= 0:
			signals = append(signals, market.Signal{
				Time:       bar.Time,
				Symbol:     sym,
				Side:       market.Buy,
				Type:       "emacross_long",
				Confidence: s.confidence,
				Stop:       market.ATRStop{Multiple: s.atrMultiple},
			})
		case prev >= 0 && diff < 0 && holding > 0:
			signals = append(signals, market.Signal{
				Time:       bar.Time,
				Symbol:     sym,
				Side:       market.Sell,
				Type:       "emacross_exit",
				Confidence: s.confidence,
				ReduceOnly: true,
			})
		}
	}
	return signals
}

// Config params arrive as map[string]any from yaml/json, so numbers may be
// int, int64, or float64 depending on the decoder.

func floatParam(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

func intParam(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}
