// Package reason defines the closed set of decision reason codes emitted by
// the stop resolver, risk engine, and portfolio. The string values are part of
// the external contract: journal consumers match on them verbatim, so existing
// codes must never be renamed. New codes may be appended.
package reason

import "strings"

type Code string

const (
	// Terminal dispositions of a sized order.
	Approved     Code = "risk_approved"
	ScaledMargin Code = "risk_scaled:margin"

	// Rejections. Every rejected signal carries exactly one of these.
	RejectStopMissing        Code = "risk_reject:stop_missing"
	RejectStopUnresolvable   Code = "risk_reject:stop_unresolvable"
	RejectATRNotReady        Code = "risk_reject:atr_not_ready"
	RejectMinStopDistance    Code = "risk_reject:min_stop_distance"
	RejectMaxPositions       Code = "risk_reject:max_positions"
	RejectMaxNotional        Code = "risk_reject:max_notional"
	RejectInsufficientMargin Code = "risk_reject:insufficient_margin"
	RejectQtyRounding        Code = "risk_reject:qty_rounding"
	RejectNoPosition         Code = "risk_reject:no_position"

	// Stop resolution fell back to the legacy proxy distance. The result is
	// still valid, just lower confidence.
	FallbackLegacyProxy Code = "risk_fallback:legacy_proxy"

	// Forced closes generated by the portfolio.
	LiquidationNegativeFreeMargin Code = "liquidation:negative_free_margin"
	LiquidationEndOfRun           Code = "liquidation:end_of_run"
)

// IsReject reports whether c is a terminal rejection.
func (c Code) IsReject() bool {
	return strings.HasPrefix(string(c), "risk_reject")
}

// IsLiquidation reports whether c tags a forced close.
func (c Code) IsLiquidation() bool {
	return strings.HasPrefix(string(c), "liquidation:")
}

func (c Code) String() string { return string(c) }
