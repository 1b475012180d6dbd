// Package journal records the run's external trail: one decision per signal,
// one record per fill, and an account snapshot per mark-to-market. The reason
// strings stored here are the stable taxonomy consumers match on.
package journal

import "time"

// DecisionRecord is the terminal disposition of one strategy signal.
type DecisionRecord struct {
	Time           time.Time
	Symbol         string
	SignalType     string
	Side           string
	Approved       bool
	Reason         string
	OrderID        string  // empty when rejected
	Qty            float64 // signed; zero when rejected
	Price          float64
	ScaledByMargin bool
}

// FillRecord is one realized execution, forced liquidations included.
type FillRecord struct {
	OrderID  string
	Time     time.Time
	Symbol   string
	Side     string
	Qty      float64
	Price    float64
	Fee      float64
	Slippage float64
	Reason   string
}

// EquitySnapshot is the account state after a mark-to-market.
type EquitySnapshot struct {
	Time          time.Time
	Cash          float64
	Equity        float64
	MarginLocked  float64
	FreeMargin    float64
	OpenPositions int
}

type Journal interface {
	RecordDecision(DecisionRecord) error
	RecordFill(FillRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Memory is an in-process journal, mainly for tests and dry runs.
type Memory struct {
	Decisions []DecisionRecord
	Fills     []FillRecord
	Equity    []EquitySnapshot
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordDecision(d DecisionRecord) error {
	m.Decisions = append(m.Decisions, d)
	return nil
}

func (m *Memory) RecordFill(f FillRecord) error {
	m.Fills = append(m.Fills, f)
	return nil
}

func (m *Memory) RecordEquity(e EquitySnapshot) error {
	m.Equity = append(m.Equity, e)
	return nil
}

func (m *Memory) Close() error { return nil }
