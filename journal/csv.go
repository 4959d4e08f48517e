package journal

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/gocarina/gocsv"
)

// CSVJournal appends records to CSV files. The positions file is optional.
// CSV journals keep no run table, so RecordRun is a no-op.
type CSVJournal struct {
	mu        sync.Mutex
	trades    *os.File
	equity    *os.File
	positions *os.File
}

func NewCSV(tradesPath, equityPath, positionsPath string) (*CSVJournal, error) {
	j := &CSVJournal{}
	var err error
	if j.trades, err = createCSV(tradesPath, []TradeRecord{}); err != nil {
		return nil, err
	}
	if j.equity, err = createCSV(equityPath, []EquitySnapshot{}); err != nil {
		j.Close()
		return nil, err
	}
	if positionsPath != "" {
		if j.positions, err = createCSV(positionsPath, []PositionSnapshot{}); err != nil {
			j.Close()
			return nil, err
		}
	}
	return j, nil
}

// createCSV creates path and writes the header of the element type of empty.
func createCSV(path string, empty any) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := gocsv.Marshal(empty, f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (j *CSVJournal) RecordRun(RunRecord) error { return nil }

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	return j.append(j.trades, []TradeRecord{t})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	return j.append(j.equity, []EquitySnapshot{e})
}

func (j *CSVJournal) RecordPositions(ps []PositionSnapshot) error {
	if j.positions == nil || len(ps) == 0 {
		return nil
	}
	return j.append(j.positions, ps)
}

func (j *CSVJournal) append(w io.Writer, rows any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return gocsv.MarshalWithoutHeaders(rows, w)
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var errs []error
	for _, f := range []*os.File{j.trades, j.equity, j.positions} {
		if f != nil {
			errs = append(errs, f.Close())
		}
	}
	return errors.Join(errs...)
}
