package market

// StopIntent is the strategy-supplied stop specification attached to an entry
// signal. It is a sealed sum type: exactly one variant per stop kind, each
// carrying only the fields that kind needs. The stop resolver switches
// exhaustively over the variants.
type StopIntent interface {
	Kind() string
	stopIntent()
}

// ExplicitStop carries a concrete stop price chosen by the strategy.
type ExplicitStop struct {
	Price float64
}

// StructuralStop carries a structural level (e.g. a swing low) to stop behind.
type StructuralStop struct {
	Level float64
}

// ATRStop requests a stop at Multiple times the current ATR.
type ATRStop struct {
	Multiple float64
}

// HybridMode selects how a hybrid stop combines its two candidate distances.
type HybridMode string

const (
	HybridWider   HybridMode = "wider"
	HybridTighter HybridMode = "tighter"
)

// HybridStop resolves both a structural and an ATR distance and combines them
// per Mode. An empty Mode means HybridWider.
type HybridStop struct {
	Level    float64
	Multiple float64
	Mode     HybridMode
}

func (ExplicitStop) Kind() string   { return "explicit" }
func (StructuralStop) Kind() string { return "structural" }
func (ATRStop) Kind() string        { return "atr" }
func (HybridStop) Kind() string     { return "hybrid" }

func (ExplicitStop) stopIntent()   {}
func (StructuralStop) stopIntent() {}
func (ATRStop) stopIntent()        {}
func (HybridStop) stopIntent()     {}
