package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordDecision(d DecisionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO decisions
		(time, symbol, signal_type, side, approved, reason, order_id, qty, price, scaled_by_margin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Time, d.Symbol, d.SignalType, d.Side, d.Approved, d.Reason,
		d.OrderID, d.Qty, d.Price, d.ScaledByMargin,
	)
	return err
}

func (j *SQLite) RecordFill(f FillRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO fills
		(order_id, time, symbol, side, qty, price, fee, slippage, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.Time, f.Symbol, f.Side, f.Qty, f.Price, f.Fee, f.Slippage, f.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, cash, equity, margin_locked, free_margin, open_positions)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time, e.Cash, e.Equity, e.MarginLocked, e.FreeMargin, e.OpenPositions,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
