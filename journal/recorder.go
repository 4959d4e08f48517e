package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/position"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Recorder writes TRADE, PORTFOLIO_ACCOUNT and PORTFOLIO_POSITIONS
// messages to a Journal. Write failures are logged and skipped.
type Recorder struct {
	journal Journal
	runID   string

	trades    *bus.Queue
	accounts  *bus.Queue
	positions *bus.Queue

	mu   sync.Mutex
	last time.Time

	log *log.Entry
}

func NewRecorder(j Journal, runID string, b *bus.Bus) *Recorder {
	return &Recorder{
		journal:   j,
		runID:     runID,
		trades:    b.Subscribe(bus.Trade),
		accounts:  b.Subscribe(bus.PortfolioAccount),
		positions: b.Subscribe(bus.PortfolioPositions),
		log:       log.WithFields(log.Fields{"component": "journal", "run_id": runID}),
	}
}

func (r *Recorder) Run(ctx context.Context) error {
	r.log.Info("journal recorder running")
	defer r.log.Info("journal recorder stopped")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Consume(gctx, r.trades, r.Handle) })
	g.Go(func() error { return bus.Consume(gctx, r.accounts, r.Handle) })
	g.Go(func() error { return bus.Consume(gctx, r.positions, r.Handle) })
	return g.Wait()
}

// Handle records one message. It never returns an error so that a failing
// journal cannot stop the session.
func (r *Recorder) Handle(msg any) error {
	var err error
	switch v := msg.(type) {
	case broker.ExecutionEvent:
		r.observe(v.Timestamp)
		err = r.journal.RecordTrade(NewTradeRecord(r.runID, v))
	case broker.Account:
		r.observe(v.Timestamp)
		err = r.journal.RecordEquity(NewEquitySnapshot(r.runID, v))
	case map[int]position.Position:
		err = r.journal.RecordPositions(NewPositionSnapshots(r.runID, r.lastSeen(), v))
	default:
		r.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected journal message")
	}
	if err != nil {
		r.log.WithError(err).WithField("type", fmt.Sprintf("%T", msg)).Error("journal write failed")
	}
	return nil
}

// observe tracks the latest event time; position snapshots carry no
// timestamp of their own.
func (r *Recorder) observe(ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ts.After(r.last) {
		r.last = ts
	}
}

func (r *Recorder) lastSeen() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last.IsZero() {
		return time.Now().UTC()
	}
	return r.last
}
