// Package margin holds the pure margin arithmetic used by both the risk
// engine and the portfolio. Nothing in here carries state.
package margin

// Epsilon guards division by a near-zero leverage.
const Epsilon = 1e-12

// InitialRequired returns the initial margin requirement for a position of
// the given unsigned notional at the given maximum leverage.
func InitialRequired(notional, maxLeverage float64) float64 {
	if maxLeverage < Epsilon {
		maxLeverage = Epsilon
	}
	return notional / maxLeverage
}

// MaintenanceRequired equals InitialRequired in this engine's canonical
// model. The flat maintenance curve is a deliberate simplification: the
// liquidation trigger in the portfolio is derived from it, so a separate
// maintenance model must not be introduced without re-deriving that math.
func MaintenanceRequired(notional, maxLeverage float64) float64 {
	return InitialRequired(notional, maxLeverage)
}

// Snapshot is a full margin picture for one prospective or open exposure.
type Snapshot struct {
	Equity            float64
	MarginLocked      float64
	FeeBuffer         float64
	SlippageBuffer    float64
	AdverseMoveBuffer float64
	TotalRequired     float64
	FreeMargin        float64 // post-buffer, post-maintenance-floor
	MarkPrice         float64
}

// ComputeSnapshot derives the margin snapshot for an exposure of the given
// unsigned notional. TotalRequired stacks the locked margin with the three
// buffers; FreeMargin additionally reserves maintenanceFreeMarginPct of
// equity as a floor.
func ComputeSnapshot(
	equity, notional, maxLeverage, maintenanceFreeMarginPct,
	feeBuffer, slippageBuffer, adverseMoveBuffer, markPrice float64,
) Snapshot {
	locked := InitialRequired(notional, maxLeverage)
	total := locked + feeBuffer + slippageBuffer + adverseMoveBuffer

	return Snapshot{
		Equity:            equity,
		MarginLocked:      locked,
		FeeBuffer:         feeBuffer,
		SlippageBuffer:    slippageBuffer,
		AdverseMoveBuffer: adverseMoveBuffer,
		TotalRequired:     total,
		FreeMargin:        equity - total - equity*maintenanceFreeMarginPct,
		MarkPrice:         markPrice,
	}
}
