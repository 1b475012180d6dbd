// Package market holds the value types shared by every stage of the pipeline:
// bars, signals, stop intents, order intents, and fills.
package market

import (
	"fmt"
	"time"
)

// Side of a trade or position. Flat is only meaningful on positions.
type Side int8

const (
	Flat Side = 0
	Buy  Side = +1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "flat"
	}
}

// Bar is one OHLCV record for one symbol at one timestamp. Bars are produced
// by the external feed and treated as immutable here.
type Bar struct {
	Time   time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate checks the OHLCV shape invariants. A violation is a DataError: the
// feed handed us something malformed, and the run must not continue on it.
func (b Bar) Validate() error {
	switch {
	case b.Symbol == "":
		return &DataError{Time: b.Time, Msg: "bar has no symbol"}
	case b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0:
		return &DataError{Symbol: b.Symbol, Time: b.Time, Msg: "bar prices must be positive"}
	case b.High < b.Low:
		return &DataError{Symbol: b.Symbol, Time: b.Time,
			Msg: fmt.Sprintf("bar high %.8f below low %.8f", b.High, b.Low)}
	case b.High < b.Open || b.High < b.Close:
		return &DataError{Symbol: b.Symbol, Time: b.Time, Msg: "bar high below open/close"}
	case b.Low > b.Open || b.Low > b.Close:
		return &DataError{Symbol: b.Symbol, Time: b.Time, Msg: "bar low above open/close"}
	case b.Volume < 0:
		return &DataError{Symbol: b.Symbol, Time: b.Time, Msg: "bar volume is negative"}
	}
	return nil
}

// Range returns high minus low.
func (b Bar) Range() float64 { return b.High - b.Low }

// DollarVolume approximates traded value on the bar.
func (b Bar) DollarVolume() float64 { return b.Volume * b.Close }

// DataError reports a malformed bar. Fatal for the run; never recovered here.
type DataError struct {
	Symbol string
	Time   time.Time
	Msg    string
}

func (e *DataError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("bad bar at %s: %s", e.Time.Format(time.RFC3339), e.Msg)
	}
	return fmt.Sprintf("bad bar %s at %s: %s", e.Symbol, e.Time.Format(time.RFC3339), e.Msg)
}
