// Package replay streams historical bars onto the bus.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/market"
	"github.com/rustyeddy/midas/symbol"
	log "github.com/sirupsen/logrus"
)

var ErrBadRow = errors.New("bad replay row")

// Row is one line of a bar file:
//
//	ts_event,ticker,open,high,low,close,volume
//
// ts_event is RFC 3339 or integer nanoseconds since the epoch.
type Row struct {
	TsEvent string  `csv:"ts_event"`
	Ticker  string  `csv:"ticker"`
	Open    float64 `csv:"open"`
	High    float64 `csv:"high"`
	Low     float64 `csv:"low"`
	Close   float64 `csv:"close"`
	Volume  float64 `csv:"volume"`
}

// Load parses bars from r, resolving tickers through symbols. The result is
// ordered by time; rows with equal timestamps keep file order.
func Load(r io.Reader, symbols *symbol.Map) ([]market.Bar, error) {
	var rows []*Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}

	bars := make([]market.Bar, 0, len(rows))
	for i, row := range rows {
		ts, err := parseTime(row.TsEvent)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadRow, i+2, err)
		}
		id, ok := symbols.ID(row.Ticker)
		if !ok {
			return nil, fmt.Errorf("line %d: %w: ticker %q", i+2, symbol.ErrUnknownSymbol, row.Ticker)
		}
		if row.Close <= 0 {
			return nil, fmt.Errorf("%w: line %d: close must be positive", ErrBadRow, i+2)
		}
		bars = append(bars, market.Bar{
			InstrumentID: id,
			Timestamp:    ts,
			Open:         row.Open,
			High:         row.High,
			Low:          row.Low,
			Close:        row.Close,
			Volume:       row.Volume,
		})
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

func LoadFile(path string, symbols *symbol.Map) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, symbols)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ns, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(0, ns).UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Options controls a replay run.
type Options struct {
	// Start and End bound the replay to [Start, End); zero means unbounded.
	Start time.Time
	End   time.Time

	// Backtest waits for the bus to go idle after every publish so each
	// record is fully processed before the next one.
	Backtest bool
}

func (o Options) contains(t time.Time) bool {
	if !o.Start.IsZero() && t.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && !t.Before(o.End) {
		return false
	}
	return true
}

// Source publishes bars on DATA and end of day markers after the last bar
// of every session day.
type Source struct {
	bars    []market.Bar
	symbols *symbol.Map
	bus     *bus.Bus
	opts    Options
	log     *log.Entry
}

func NewSource(bars []market.Bar, symbols *symbol.Map, b *bus.Bus, opts Options) *Source {
	return &Source{
		bars:    bars,
		symbols: symbols,
		bus:     b,
		opts:    opts,
		log:     log.WithField("component", "replay"),
	}
}

// Run publishes every bar in range and returns once the last one was
// published (and processed, in backtest mode). The day of a record is its
// date in the session zone. An end of day marker is published once per day,
// when a record past its instrument's day session arrives or, failing that,
// when the next day starts and after the last record.
func (s *Source) Run(ctx context.Context) error {
	s.log.WithField("bars", len(s.bars)).Info("replay started")

	var (
		day       string
		eodDone   bool
		published int
	)
	for _, bar := range s.bars {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if !s.opts.contains(bar.Timestamp) {
			continue
		}

		d := bar.Timestamp.In(symbol.SessionZone).Format(time.DateOnly)
		if d != day {
			if day != "" && !eodDone {
				if err := s.publish(ctx, market.EODEvent{Timestamp: endOfDay(day)}); err != nil {
					return err
				}
			}
			day, eodDone = d, false
		}

		if !eodDone && s.afterSession(bar) {
			eodDone = true
			if err := s.publish(ctx, market.EODEvent{Timestamp: endOfDay(day)}); err != nil {
				return err
			}
		}

		if err := s.publish(ctx, bar); err != nil {
			return err
		}
		published++
	}
	if day != "" && !eodDone {
		if err := s.publish(ctx, market.EODEvent{Timestamp: endOfDay(day)}); err != nil {
			return err
		}
	}

	s.log.WithField("published", published).Info("replay done")
	return nil
}

func (s *Source) afterSession(bar market.Bar) bool {
	sym, err := s.symbols.ByID(bar.InstrumentID)
	if err != nil {
		return false
	}
	return sym.AfterDaySession(bar.Timestamp)
}

func (s *Source) publish(ctx context.Context, msg any) error {
	s.bus.Publish(bus.Data, msg)
	if !s.opts.Backtest {
		return nil
	}
	if err := s.bus.WaitIdle(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// endOfDay is midnight at the end of the session-zone day d.
func endOfDay(d string) time.Time {
	t, err := time.ParseInLocation(time.DateOnly, d, symbol.SessionZone)
	if err != nil {
		return time.Time{}
	}
	return t.AddDate(0, 0, 1)
}
