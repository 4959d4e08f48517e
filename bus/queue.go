package bus

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("bus closed")

// Queue is one subscriber's unbounded FIFO. Pushes never block; Get blocks
// until a message is available, the queue is closed or ctx is done.
//
// A message stays "in flight" for the bus until the consumer comes back for
// the next one, so Bus.WaitIdle covers the handling as well as the delivery.
type Queue struct {
	topic Topic
	bus   *Bus

	mu     sync.Mutex
	items  []any
	notify chan struct{}
	busy   bool
	closed bool
}

func newQueue(topic Topic, b *Bus) *Queue {
	return &Queue{
		topic:  topic,
		bus:    b,
		notify: make(chan struct{}, 1),
	}
}

func (q *Queue) Topic() Topic { return q.topic }

func (q *Queue) push(msg any) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	// notify is closed under mu, so the send below has to happen under it too.
	defer q.mu.Unlock()
	q.bus.acquire()
	q.items = append(q.items, msg)

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Get returns the next message.
func (q *Queue) Get(ctx context.Context) (any, error) {
	for {
		msg, ok, err := q.next()
		if err != nil {
			return nil, err
		}
		if ok {
			return msg, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// TryGet returns the next message without blocking.
func (q *Queue) TryGet() (any, bool) {
	msg, ok, _ := q.next()
	return msg, ok
}

// Done marks the message last returned by Get as handled. Calling Get again
// does this implicitly; Done is for consumers that stop reading.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.release()
}

// Len is the number of queued, undelivered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) next() (any, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.release()
	if len(q.items) == 0 {
		if q.closed {
			return nil, false, ErrClosed
		}
		return nil, false, nil
	}

	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.busy = true
	return msg, true, nil
}

// release must be called with q.mu held.
func (q *Queue) release() {
	if q.busy {
		q.busy = false
		q.bus.releaseN(1)
	}
}

// close stops accepting messages. Messages already queued can still be
// drained with Get or TryGet.
func (q *Queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

// Consume hands every message on q to handle until ctx is cancelled or the
// bus is closed, then drains the messages already queued. An error from
// handle stops the loop and is returned.
func Consume(ctx context.Context, q *Queue, handle func(any) error) error {
	defer q.Done()
	for {
		msg, err := q.Get(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
				return drain(q, handle)
			}
			return err
		}
		if err := handle(msg); err != nil {
			return err
		}
	}
}

func drain(q *Queue, handle func(any) error) error {
	for {
		msg, ok := q.TryGet()
		if !ok {
			return nil
		}
		if err := handle(msg); err != nil {
			return err
		}
	}
}
