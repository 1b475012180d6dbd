package stops

import (
	"fmt"
	"math"

	"github.com/mshull/stratsim/market"
	"github.com/mshull/stratsim/reason"
)

// Context is the per-signal market context resolution runs against.
type Context struct {
	Side     market.Side
	Price    float64 // reference price, normally the bar close
	ATR      float64
	ATRReady bool
}

// Result is the outcome of resolving one stop intent. Produced fresh per
// signal; immutable by convention.
type Result struct {
	StopPrice    float64
	HasStopPrice bool
	Distance     float64 // > 0 when Valid
	Source       string  // "explicit" | "structural" | "atr" | "hybrid" | "legacy_proxy"
	Valid        bool
	UsedFallback bool
	Reason       reason.Code // set on every result; empty source codes never occur
}

// Resolver turns stop intents into validated stop distances under one policy.
// It is stateless beyond the policy and safe to share across signals.
type Resolver struct {
	policy Policy
}

// NewResolver validates the policy and returns a resolver. A policy error
// here is a configuration error: it surfaces before any bar is processed.
func NewResolver(p Policy) (*Resolver, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("stop resolution policy: %w", err)
	}
	return &Resolver{policy: p}, nil
}

// Resolve produces a Result for the given intent. A nil intent means the
// signal carried no stop information at all; that is never eligible for the
// fallback.
func (r *Resolver) Resolve(intent market.StopIntent, ctx Context) Result {
	if intent == nil {
		return Result{Reason: reason.RejectStopMissing}
	}

	res := r.resolve(intent, ctx)

	if !res.Valid && r.policy.Mode == ModeSafe && r.policy.AllowLegacyProxy {
		res = r.legacyProxy(ctx)
	}
	if !res.Valid {
		return res
	}

	// The minimum distance floor applies no matter how the stop was resolved,
	// fallback included.
	if res.Distance < r.policy.MinStopDistancePct*ctx.Price {
		res.Valid = false
		res.Reason = reason.RejectMinStopDistance
		return res
	}

	return res
}

func (r *Resolver) resolve(intent market.StopIntent, ctx Context) Result {
	switch s := intent.(type) {
	case market.ExplicitStop:
		return fromPrice(s.Price, "explicit", ctx)

	case market.StructuralStop:
		return fromPrice(s.Level, "structural", ctx)

	case market.ATRStop:
		return fromATR(s.Multiple, "atr", ctx)

	case market.HybridStop:
		structural := fromPrice(s.Level, "hybrid", ctx)
		atr := fromATR(s.Multiple, "hybrid", ctx)
		if !atr.Valid {
			// An ATR that is simply not warmed up keeps its own code so the
			// caller can tell warm-up gaps from malformed intents.
			return atr
		}
		if !structural.Valid {
			return Result{Source: "hybrid", Reason: reason.RejectStopUnresolvable}
		}

		picked := structural
		mode := s.Mode
		if mode == "" {
			mode = market.HybridWider
		}
		switch mode {
		case market.HybridWider:
			if atr.Distance > structural.Distance {
				picked = atr
			}
		case market.HybridTighter:
			if atr.Distance < structural.Distance {
				picked = atr
			}
		default:
			return Result{Source: "hybrid", Reason: reason.RejectStopUnresolvable}
		}
		picked.Source = "hybrid"
		return picked

	default:
		// The sum type is sealed; an unknown variant is unresolvable.
		return Result{Reason: reason.RejectStopUnresolvable}
	}
}

func (r *Resolver) legacyProxy(ctx Context) Result {
	dist := r.policy.legacyProxyPct() * ctx.Price
	if dist <= 0 {
		return Result{Source: "legacy_proxy", Reason: reason.RejectStopUnresolvable}
	}
	res := Result{
		Distance:     dist,
		Source:       "legacy_proxy",
		Valid:        true,
		UsedFallback: true,
		Reason:       reason.FallbackLegacyProxy,
	}
	res.StopPrice, res.HasStopPrice = stopPrice(dist, ctx)
	return res
}

func fromPrice(stop float64, source string, ctx Context) Result {
	if stop <= 0 {
		return Result{Source: source, Reason: reason.RejectStopMissing}
	}
	dist := math.Abs(ctx.Price - stop)
	if dist <= 0 {
		return Result{Source: source, Reason: reason.RejectStopUnresolvable}
	}
	return Result{
		StopPrice:    stop,
		HasStopPrice: true,
		Distance:     dist,
		Source:       source,
		Valid:        true,
		Reason:       reason.Approved,
	}
}

func fromATR(multiple float64, source string, ctx Context) Result {
	if !ctx.ATRReady {
		return Result{Source: source, Reason: reason.RejectATRNotReady}
	}
	if multiple <= 0 || ctx.ATR <= 0 {
		return Result{Source: source, Reason: reason.RejectStopUnresolvable}
	}
	dist := multiple * ctx.ATR
	res := Result{
		Distance: dist,
		Source:   source,
		Valid:    true,
		Reason:   reason.Approved,
	}
	res.StopPrice, res.HasStopPrice = stopPrice(dist, ctx)
	return res
}

// stopPrice places a distance-only stop on the loss side of the reference
// price for the signal's side.
func stopPrice(dist float64, ctx Context) (float64, bool) {
	switch ctx.Side {
	case market.Buy:
		return ctx.Price - dist, true
	case market.Sell:
		return ctx.Price + dist, true
	default:
		return 0, false
	}
}
