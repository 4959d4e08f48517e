package portfolio

import (
	"context"
	"fmt"
	"sync"

	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/bus"
	log "github.com/sirupsen/logrus"
)

// AccountManager holds the latest account snapshot.
type AccountManager struct {
	mu      sync.RWMutex
	account broker.Account

	bus   *bus.Bus
	queue *bus.Queue
	log   *log.Entry
}

func newAccountManager(b *bus.Bus) *AccountManager {
	return &AccountManager{
		bus:   b,
		queue: b.Subscribe(bus.AccountUpdate),
		log:   log.WithField("component", "account"),
	}
}

func (m *AccountManager) Run(ctx context.Context) error {
	m.log.Info("account manager running")
	defer m.log.Info("account manager stopped")

	return bus.Consume(ctx, m.queue, func(msg any) error {
		a, ok := msg.(broker.Account)
		if !ok {
			m.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected account message")
			return nil
		}
		m.UpdateAccountDetails(a)
		return nil
	})
}

// UpdateAccountDetails replaces the snapshot.
func (m *AccountManager) UpdateAccountDetails(a broker.Account) {
	m.mu.Lock()
	m.account = a
	m.mu.Unlock()

	m.log.Info("\n" + accountTable(a))
	m.bus.Publish(bus.PortfolioAccount, a)
}

func (m *AccountManager) Account() broker.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.account
}

func (m *AccountManager) Capital() float64 {
	return m.Account().Capital()
}
