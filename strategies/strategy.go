// Package strategies holds the strategy contract, the factory registry and
// the built-in strategies.
package strategies

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/midas/market"
	"github.com/rustyeddy/midas/orders"
	"github.com/rustyeddy/midas/position"
	"github.com/rustyeddy/midas/symbol"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrInvalidParams   = errors.New("invalid strategy params")
)

// Strategy turns market data into signal instructions. HandleMarketData is
// called from a single goroutine.
type Strategy interface {
	// Prepare resets internal state before the first record.
	Prepare(ctx context.Context) error
	HandleMarketData(ctx context.Context, ev market.Event) ([]orders.SignalInstruction, error)
	// StrategyData returns the values the strategy computed so far.
	StrategyData() []Record
}

// Record is one row of strategy state, typically indicator values at a bar.
type Record struct {
	Timestamp  time.Time
	Instrument int
	Values     map[string]float64
}

// Positions is the read side of the portfolio a strategy may consult.
type Positions interface {
	GetPositions() map[int]position.Position
}

// Deps are the collaborators handed to a Factory.
type Deps struct {
	Symbols   *symbol.Map
	Positions Positions
}

type Factory func(deps Deps, params map[string]any) (Strategy, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

func init() {
	Register("noop", newNoop)
	Register("ema-cross", newEMACross)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register makes a strategy available to New. Registering a name twice
// replaces the earlier factory.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[normalize(name)] = f
}

// New builds the strategy registered under name.
func New(name string, deps Deps, params map[string]any) (Strategy, error) {
	mu.RLock()
	f, ok := registry[normalize(name)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %s)", ErrUnknownStrategy, name, strings.Join(Names(), ", "))
	}
	s, err := f(deps, params)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return s, nil
}

// Names lists the registered strategies, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// decodeParams copies the free-form config params into dst, rejecting
// unknown keys.
func decodeParams(params map[string]any, dst any) error {
	if len(params) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
