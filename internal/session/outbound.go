package session

import (
	"errors"
	"sync"

	"github.com/uclip/receiverd/internal/protocol"
)

// ErrQueueClosed is returned by Enqueue once the queue has been closed.
var ErrQueueClosed = errors.New("session: outbound queue closed")

type outboundItem struct {
	kind    protocol.MessageKind
	payload []byte
}

// OutboundQueue is the unbounded single-consumer queue described in §5:
// any number of producers may enqueue concurrently, the session loop is the
// only consumer. C() exposes a channel so the loop can select on it
// alongside inbound frames, the keepalive timer, and cancellation.
type OutboundQueue struct {
	mu     sync.Mutex
	items  []outboundItem
	closed bool

	wake chan struct{}
	out  chan outboundItem
	done chan struct{}
}

// NewOutboundQueue starts the queue's feeder goroutine and returns it ready
// to use.
func NewOutboundQueue() *OutboundQueue {
	q := &OutboundQueue{
		wake: make(chan struct{}, 1),
		out:  make(chan outboundItem),
		done: make(chan struct{}),
	}
	go q.feed()
	return q
}

func (q *OutboundQueue) feed() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			select {
			case <-q.wake:
			case <-q.done:
				return
			}
			continue
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- item:
		case <-q.done:
			return
		}
	}
}

// Enqueue appends an item for the consumer to drain. Safe for concurrent
// use by multiple producers.
func (q *OutboundQueue) Enqueue(kind protocol.MessageKind, payload []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, outboundItem{kind: kind, payload: payload})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// C returns the channel the session loop selects on to receive outbound
// items in enqueue order. The channel closes once the queue is closed.
func (q *OutboundQueue) C() <-chan outboundItem {
	return q.out
}

// Close marks the queue closed and stops the feeder: items not yet
// delivered on C() are discarded, and C()'s channel closes.
func (q *OutboundQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	close(q.done)
}
