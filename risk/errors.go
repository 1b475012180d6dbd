package risk

import "fmt"

// StrategyContractError reports a signal that violates the strategy contract,
// e.g. an entry signal with no stop metadata at all. This is a caller bug,
// not a market condition: it is never downgraded to a reject code and it is
// fatal for the run.
type StrategyContractError struct {
	Symbol     string
	SignalType string
	Msg        string
}

func (e *StrategyContractError) Error() string {
	return fmt.Sprintf("strategy contract violation on %s (%s): %s", e.Symbol, e.SignalType, e.Msg)
}
