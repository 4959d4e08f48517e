// Package engine wires the components of a trading session together and
// supervises them. A session has three parts: the data engine publishes
// market data, the core engine turns it into signals and orders and keeps
// the portfolio, and the execution engine talks to the broker.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/broker/live"
	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/journal"
	"github.com/rustyeddy/midas/market"
	"github.com/rustyeddy/midas/pkg/id"
	"github.com/rustyeddy/midas/portfolio"
	"github.com/rustyeddy/midas/replay"
	"github.com/rustyeddy/midas/risk"
	"github.com/rustyeddy/midas/symbol"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidOptions = errors.New("invalid engine options")
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotStarted     = errors.New("engine not started")
)

type Mode string

const (
	Backtest Mode = "backtest"
	Live     Mode = "live"
)

// Component is anything the supervisor runs on its own goroutine.
type Component interface {
	Run(ctx context.Context) error
}

// FeedFactory builds a live market data feed publishing on DATA.
type FeedFactory func(b *bus.Bus, symbols *symbol.Map) (Component, error)

type Options struct {
	Mode    Mode
	RunID   string
	Symbols *symbol.Map

	StrategyName   string
	StrategyParams map[string]any

	Capital  float64
	Currency string

	Portfolio portfolio.Config
	Risk      risk.Policy

	// Journal is optional.
	Journal journal.Journal
	Dataset string

	// Backtest
	Bars                  []market.Bar
	Start, End            time.Time
	LiquidateOnMarginCall bool

	// Live
	Venue Venue
	Feed  FeedFactory
	Live  live.Config
}

// Venue is the brokerage connection used in live mode.
type Venue = live.Venue

func (o *Options) validate() error {
	if o.Symbols == nil || o.Symbols.Len() == 0 {
		return fmt.Errorf("%w: no symbols", ErrInvalidOptions)
	}
	if o.StrategyName == "" {
		return fmt.Errorf("%w: strategy is required", ErrInvalidOptions)
	}
	switch o.Mode {
	case Backtest:
		if o.Capital <= 0 {
			return fmt.Errorf("%w: capital must be positive", ErrInvalidOptions)
		}
	case Live:
		if o.Venue == nil {
			return fmt.Errorf("%w: live mode needs a venue", ErrInvalidOptions)
		}
		if o.Feed == nil {
			return fmt.Errorf("%w: live mode needs a market data feed", ErrInvalidOptions)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidOptions, o.Mode)
	}
	return nil
}

// sessionID stamps backtest ids with the replay start so runs sort by
// market time. Live ids use the wall clock.
func (o *Options) sessionID() string {
	if o.Mode != Backtest {
		return id.New()
	}
	start := o.Start
	if start.IsZero() {
		for _, b := range o.Bars {
			if start.IsZero() || b.Timestamp.Before(start) {
				start = b.Timestamp
			}
		}
	}
	if start.Before(time.Unix(0, 0)) {
		return id.New()
	}
	return id.At(start)
}

// Result summarizes a finished session.
type Result struct {
	RunID     string
	Mode      Mode
	Started   time.Time
	Finished  time.Time
	Account   broker.Account
	Positions int
	Risk      risk.Update
}

// Engine is the session supervisor. A fatal error from any component
// cancels the shared context; every goroutine is joined before Wait
// returns.
type Engine struct {
	opts Options
	bus  *bus.Bus
	book *market.OrderBook

	Data *DataEngine
	Core *CoreEngine
	Exec *ExecutionEngine

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	result  Result

	log *log.Entry
}

// New builds every component and subscribes them to the bus, so nothing
// published after New returns can be missed.
func New(opts Options) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.RunID == "" {
		opts.RunID = opts.sessionID()
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}

	e := &Engine{
		opts: opts,
		bus:  bus.New(),
		book: market.NewOrderBook(),
		done: make(chan struct{}),
		log:  log.WithFields(log.Fields{"component": "engine", "run_id": opts.RunID, "mode": opts.Mode}),
	}

	var err error
	if e.Exec, err = newExecutionEngine(&e.opts, e.book, e.bus); err != nil {
		return nil, err
	}
	if e.Core, err = newCoreEngine(&e.opts, e.book, e.bus); err != nil {
		return nil, err
	}
	if e.Data, err = newDataEngine(&e.opts, e.bus); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) RunID() string { return e.opts.RunID }

func (e *Engine) Bus() *bus.Bus { return e.bus }

// Start launches the session and returns immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	if j := e.opts.Journal; j != nil {
		err := j.RecordRun(journal.RunRecord{
			RunID:    e.opts.RunID,
			Created:  time.Now().UTC(),
			Mode:     string(e.opts.Mode),
			Strategy: e.opts.StrategyName,
			Dataset:  e.opts.Dataset,
			Capital:  e.opts.Capital,
			Currency: e.opts.Currency,
		})
		if err != nil {
			e.log.WithError(err).Warn("record run")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.result = Result{RunID: e.opts.RunID, Mode: e.opts.Mode, Started: time.Now()}

	if e.Exec.Sim != nil {
		e.Exec.Sim.PublishAccount()
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return e.Core.Run(gctx) })
	g.Go(func() error { return e.Exec.Run(gctx) })
	g.Go(func() error {
		if err := e.runData(gctx); err != nil {
			return err
		}
		if e.opts.Mode == Backtest {
			// the session is over once the replay is
			cancel()
		}
		return nil
	})

	e.log.Info("session started")
	go e.supervise(g)
	return nil
}

func (e *Engine) runData(ctx context.Context) error {
	if e.opts.Mode != Backtest {
		return e.Data.Run(ctx)
	}

	// the opening account reaches the portfolio before the first bar
	if err := e.idle(ctx); err != nil {
		return err
	}
	if err := e.Data.Run(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := e.idle(ctx); err != nil {
		return err
	}
	if err := e.Exec.Sim.Liquidate(ctx); err != nil {
		return fmt.Errorf("liquidate: %w", err)
	}
	return e.idle(ctx)
}

func (e *Engine) idle(ctx context.Context) error {
	if err := e.bus.WaitIdle(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (e *Engine) supervise(g *errgroup.Group) {
	err := g.Wait()
	e.bus.Close()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	e.mu.Lock()
	e.err = err
	e.result.Finished = time.Now()
	e.result.Account = e.Core.Portfolio.GetAccount()
	e.result.Positions = len(e.Core.Portfolio.GetPositions())
	e.result.Risk = e.Core.Risk.Last()
	e.mu.Unlock()

	entry := e.log.WithFields(log.Fields{
		"net_liquidation": fmt.Sprintf("%.2f", e.result.Account.NetLiquidation),
		"positions":       e.result.Positions,
	})
	if err != nil {
		entry.WithError(err).Error("session failed")
	} else {
		entry.Info("session finished")
	}
	close(e.done)
}

// Stop cancels the session. It does not wait; use Wait.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until every component has stopped and returns the first
// fatal error.
func (e *Engine) Wait() error {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	<-e.done
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Run starts the session and waits for it.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if err := e.Start(ctx); err != nil {
		return Result{}, err
	}
	err := e.Wait()
	return e.Result(), err
}

func (e *Engine) Result() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// DataEngine publishes market data on DATA.
type DataEngine struct {
	source Component
}

func newDataEngine(opts *Options, b *bus.Bus) (*DataEngine, error) {
	if opts.Mode == Backtest {
		src := replay.NewSource(opts.Bars, opts.Symbols, b, replay.Options{
			Start:    opts.Start,
			End:      opts.End,
			Backtest: true,
		})
		return &DataEngine{source: src}, nil
	}
	feed, err := opts.Feed(b, opts.Symbols)
	if err != nil {
		return nil, fmt.Errorf("market data feed: %w", err)
	}
	return &DataEngine{source: feed}, nil
}

func (d *DataEngine) Run(ctx context.Context) error {
	return d.source.Run(ctx)
}
