// Package strategy defines the single capability the core depends on —
// "given current bars and read-only context, produce zero or more signals" —
// plus an explicit registry of strategy constructors. The core never sees a
// concrete strategy type.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/mshull/stratsim/market"
)

// Context is the read-only view a strategy gets each bar. Positions maps
// symbol to signed open quantity; ATR reports the current value and whether
// the indicator is warmed up.
type Context struct {
	Time      time.Time
	Equity    float64
	Positions map[string]float64
	ATR       func(symbol string) (value float64, ready bool)
}

// Strategy is the plugin capability interface.
type Strategy interface {
	Name() string
	Reset()
	OnBar(ctx *Context, bars map[string]market.Bar) []market.Signal
}

// Constructor builds a strategy from its raw config parameters.
type Constructor func(params map[string]any) (Strategy, error)

// Registry maps strategy names to constructors. It is built once at startup
// and passed to whatever needs lookups; there is no package-level mutable
// state.
type Registry struct {
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Add registers a constructor. Duplicate names are a startup bug.
func (r *Registry) Add(name string, ctor Constructor) error {
	if _, exists := r.ctors[name]; exists {
		return fmt.Errorf("strategy %q already registered", name)
	}
	r.ctors[name] = ctor
	return nil
}

// New constructs the named strategy.
func (r *Registry) New(name string, params map[string]any) (Strategy, error) {
	ctor, ok := r.ctors[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (registered: %v)", name, r.Names())
	}
	return ctor(params)
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry registers the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Registration errors on a fresh registry mean duplicate built-in names,
	// which cannot happen; ignore them the same way a table literal would.
	_ = r.Add("noop", func(map[string]any) (Strategy, error) { return Noop{}, nil })
	_ = r.Add("emacross", NewEMACross)
	return r
}

// Noop produces no signals; a baseline for plumbing tests.
type Noop struct{}

func (Noop) Name() string                                  { return "noop" }
func (Noop) Reset()                                        {}
func (Noop) OnBar(*Context, map[string]market.Bar) []market.Signal { return nil }
