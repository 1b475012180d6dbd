package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

type CSV struct {
	decisions *csv.Writer
	fills     *csv.Writer
	equity    *csv.Writer
	df, ff    *os.File
	ef        *os.File
}

func NewCSV(decisionsPath, fillsPath, equityPath string) (*CSV, error) {
	df, err := os.Create(decisionsPath)
	if err != nil {
		return nil, err
	}
	ff, err := os.Create(fillsPath)
	if err != nil {
		df.Close()
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		df.Close()
		ff.Close()
		return nil, err
	}

	j := &CSV{
		decisions: csv.NewWriter(df),
		fills:     csv.NewWriter(ff),
		equity:    csv.NewWriter(ef),
		df:        df,
		ff:        ff,
		ef:        ef,
	}

	headers := []struct {
		w   *csv.Writer
		row []string
	}{
		{j.decisions, []string{"time", "symbol", "signal_type", "side", "approved", "reason", "order_id", "qty", "price", "scaled_by_margin"}},
		{j.fills, []string{"order_id", "time", "symbol", "side", "qty", "price", "fee", "slippage", "reason"}},
		{j.equity, []string{"time", "cash", "equity", "margin_locked", "free_margin", "open_positions"}},
	}
	for _, h := range headers {
		if err := h.w.Write(h.row); err != nil {
			j.Close()
			return nil, err
		}
		h.w.Flush()
		if err := h.w.Error(); err != nil {
			j.Close()
			return nil, err
		}
	}

	return j, nil
}

func (j *CSV) RecordDecision(d DecisionRecord) error {
	if err := j.decisions.Write([]string{
		d.Time.Format(time.RFC3339),
		d.Symbol,
		d.SignalType,
		d.Side,
		strconv.FormatBool(d.Approved),
		d.Reason,
		d.OrderID,
		f(d.Qty),
		f(d.Price),
		strconv.FormatBool(d.ScaledByMargin),
	}); err != nil {
		return err
	}
	j.decisions.Flush()
	return j.decisions.Error()
}

func (j *CSV) RecordFill(rec FillRecord) error {
	if err := j.fills.Write([]string{
		rec.OrderID,
		rec.Time.Format(time.RFC3339),
		rec.Symbol,
		rec.Side,
		f(rec.Qty),
		f(rec.Price),
		f(rec.Fee),
		f(rec.Slippage),
		rec.Reason,
	}); err != nil {
		return err
	}
	j.fills.Flush()
	return j.fills.Error()
}

func (j *CSV) RecordEquity(e EquitySnapshot) error {
	if err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Cash),
		f(e.Equity),
		f(e.MarginLocked),
		f(e.FreeMargin),
		strconv.Itoa(e.OpenPositions),
	}); err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSV) Close() error {
	j.decisions.Flush()
	j.fills.Flush()
	j.equity.Flush()

	var firstErr error
	for _, w := range []*csv.Writer{j.decisions, j.fills, j.equity} {
		if err := w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, fh := range []*os.File{j.df, j.ff, j.ef} {
		if err := fh.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
