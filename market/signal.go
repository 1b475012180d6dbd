package market

import "time"

// Signal is a strategy's trade intention for one symbol at one timestamp.
// It is consumed exactly once by the pipeline.
//
// Entry signals must carry a stop intent; an entry with Stop == nil is a
// strategy contract violation, not a market condition, and the risk engine
// fails the run on it. Exit signals set ReduceOnly and need no stop.
type Signal struct {
	Time       time.Time
	Symbol     string
	Side       Side
	Type       string // free-form label, e.g. "BullCross"
	Confidence float64
	ReduceOnly bool
	Stop       StopIntent
	Meta       map[string]string
}
