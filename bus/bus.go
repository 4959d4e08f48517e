package bus

import (
	"context"
	"sync"

	"github.com/asaskevich/EventBus"
	log "github.com/sirupsen/logrus"
)

// Bus is the process-wide publish/subscribe hub. Every Subscribe call gets
// its own queue, so N subscribers to a topic each receive every message.
// Publish never waits on consumers and keeps the publishing goroutine's
// order on each queue.
type Bus struct {
	eb EventBus.Bus

	mu       sync.Mutex
	queues   []*Queue
	closed   bool
	inflight int
	idle     chan struct{}
}

func New() *Bus {
	idle := make(chan struct{})
	close(idle)
	return &Bus{
		eb:   EventBus.New(),
		idle: idle,
	}
}

// Subscribe registers a new queue on topic.
func (b *Bus) Subscribe(topic Topic) *Queue {
	q := newQueue(topic, b)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		q.close()
		return q
	}
	b.queues = append(b.queues, q)
	b.mu.Unlock()

	// EventBus holds its lock while running synchronous handlers, so the
	// handler must only enqueue.
	if err := b.eb.Subscribe(topic.String(), func(msg any) { q.push(msg) }); err != nil {
		log.WithError(err).WithField("topic", topic).Error("bus subscribe")
	}
	log.WithField("topic", topic).Debug("subscribed")
	return q
}

// Publish delivers msg to every queue subscribed to topic. It is a no-op
// when the topic has no subscribers.
func (b *Bus) Publish(topic Topic, msg any) {
	b.eb.Publish(topic.String(), msg)
}

// WaitIdle blocks until every published message has been taken and handled
// by its consumer, including any messages published while handling.
func (b *Bus) WaitIdle(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	ch := b.idle
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// Close closes every queue. Blocked consumers drain what is left and then
// see ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	queues := b.queues
	b.inflight = 0
	select {
	case <-b.idle:
	default:
		close(b.idle)
	}
	b.mu.Unlock()

	for _, q := range queues {
		q.close()
	}
}

func (b *Bus) acquire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.inflight == 0 {
		b.idle = make(chan struct{})
	}
	b.inflight++
}

func (b *Bus) releaseN(n int) {
	if n == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.inflight == 0 {
		return
	}
	b.inflight -= n
	if b.inflight <= 0 {
		b.inflight = 0
		close(b.idle)
	}
}
