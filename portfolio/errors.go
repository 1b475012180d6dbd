package portfolio

import "fmt"

// ErrorKind classifies portfolio failures. All of them are fatal for the run.
type ErrorKind string

const (
	// KindInvariant marks a programming-invariant violation, e.g. free margin
	// going negative outside the liquidation path or a quantity/side sign
	// mismatch. These indicate a bug, not a market condition.
	KindInvariant ErrorKind = "invariant"
	// KindBlowup marks an account blowup: liquidation closed everything and
	// free margin is still negative.
	KindBlowup ErrorKind = "blowup"
	// KindBadFill marks a fill the portfolio cannot apply, e.g. a reducing
	// fill larger than the open position.
	KindBadFill ErrorKind = "bad_fill"
)

// Error is a typed portfolio failure.
type Error struct {
	Kind   ErrorKind
	Symbol string
	Msg    string
}

func (e *Error) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("portfolio %s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("portfolio %s (%s): %s", e.Kind, e.Symbol, e.Msg)
}
