// Package stops normalizes a strategy's stop intent into a concrete,
// validated stop distance, or a typed rejection carrying a stable reason
// code.
package stops

import "fmt"

// PolicyMode selects how resolution failures are handled.
type PolicyMode string

const (
	// ModeSafe permits the legacy-proxy fallback when enabled.
	ModeSafe PolicyMode = "safe"
	// ModeStrict forbids any fallback.
	ModeStrict PolicyMode = "strict"
)

// DefaultLegacyProxyPct is the documented legacy proxy distance: 2% of the
// reference price. It predates intent-based stops and is lower confidence,
// which is why results using it are flagged.
const DefaultLegacyProxyPct = 0.02

// Policy is the resolution policy. It is validated once, when the resolver is
// constructed, never per signal.
type Policy struct {
	Mode               PolicyMode
	AllowLegacyProxy   bool
	LegacyProxyPct     float64 // 0 means DefaultLegacyProxyPct
	MinStopDistancePct float64 // resolved distance below this fraction of price is rejected
}

// Validate reports configuration contradictions. A strict policy that also
// allows the legacy proxy is a config error: strict means no fallback, and
// accepting the combination silently would hide the contradiction until a
// signal happened to need the proxy.
func (p Policy) Validate() error {
	switch p.Mode {
	case ModeSafe, ModeStrict:
	default:
		return fmt.Errorf("stop resolution mode must be %q or %q, got %q", ModeSafe, ModeStrict, p.Mode)
	}
	if p.Mode == ModeStrict && p.AllowLegacyProxy {
		return fmt.Errorf("stop resolution %q cannot allow the legacy proxy fallback", ModeStrict)
	}
	if p.LegacyProxyPct < 0 {
		return fmt.Errorf("legacy proxy pct must be >= 0, got %g", p.LegacyProxyPct)
	}
	if p.MinStopDistancePct < 0 || p.MinStopDistancePct >= 1 {
		return fmt.Errorf("min stop distance pct must be in [0,1), got %g", p.MinStopDistancePct)
	}
	return nil
}

func (p Policy) legacyProxyPct() float64 {
	if p.LegacyProxyPct > 0 {
		return p.LegacyProxyPct
	}
	return DefaultLegacyProxyPct
}
