package margin

// adverseMoveByTier maps the configured margin buffer tier to the fraction of
// notional reserved against an adverse move before the next mark. Tiers
// outside the table clamp to its edges.
var adverseMoveByTier = []float64{0, 0.005, 0.01, 0.02}

// AdverseMovePct returns the adverse-move buffer fraction for a tier.
func AdverseMovePct(tier int) float64 {
	if tier < 0 {
		tier = 0
	}
	if tier >= len(adverseMoveByTier) {
		tier = len(adverseMoveByTier) - 1
	}
	return adverseMoveByTier[tier]
}

// BufferRates are the per-notional buffer fractions stacked on top of locked
// margin when deciding how much exposure an account can afford.
type BufferRates struct {
	Fee         float64 // round trip: maker + taker, as a fraction
	Slippage    float64 // worst-case liquidity impact, as a fraction
	AdverseMove float64 // tier-derived, as a fraction
}

// Rates builds the buffer fractions from fee bps, the execution model's
// impact cap (its worst-case slippage per notional), and the buffer tier.
func Rates(makerFeeBps, takerFeeBps, impactCap float64, tier int) BufferRates {
	return BufferRates{
		Fee:         (makerFeeBps + takerFeeBps) / 10_000,
		Slippage:    impactCap,
		AdverseMove: AdverseMovePct(tier),
	}
}

// Total is the summed buffer fraction.
func (r BufferRates) Total() float64 {
	return r.Fee + r.Slippage + r.AdverseMove
}

// On converts the fractions into absolute buffer amounts for a notional.
func (r BufferRates) On(notional float64) (fee, slippage, adverse float64) {
	return notional * r.Fee, notional * r.Slippage, notional * r.AdverseMove
}

// PerUnitCost is the capital consumed per unit at the given price: locked
// margin plus all buffers. The maximum affordable quantity under a free
// margin budget is budget / PerUnitCost.
func (r BufferRates) PerUnitCost(price, maxLeverage float64) float64 {
	return price * (InitialRequired(1, maxLeverage) + r.Total())
}
