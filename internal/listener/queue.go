package listener

import (
	"context"
	"net"
	"sync"
)

// acceptQueue is the capacity-1 rendezvous between the accept loops and
// the public Accept call. Beyond the OS backlog it buffers exactly one
// fully accepted connection; further completed accepts block their loop
// until a consumer takes the slot.
//
// The queue closes once, optionally with a cause. A nil cause is a
// clean shutdown and surfaces as ErrListenerClosed; a non-nil cause is
// handed to every current and future consumer.
type acceptQueue struct {
	ch   chan net.Conn
	done chan struct{}

	mu    sync.Mutex
	cause error
	once  sync.Once
}

func newAcceptQueue() *acceptQueue {
	return &acceptQueue{
		ch:   make(chan net.Conn, 1),
		done: make(chan struct{}),
	}
}

// put offers c to a consumer, blocking until the slot frees up, the
// queue closes, or ctx is canceled. The caller keeps ownership of c
// when an error is returned.
func (q *acceptQueue) put(ctx context.Context, c net.Conn) error {
	// Closure wins over a free slot.
	select {
	case <-q.done:
		return q.err()
	default:
	}
	select {
	case q.ch <- c:
		return nil
	case <-q.done:
		return q.err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// get takes the next connection, blocking until one is published, the
// queue closes, or ctx is canceled. A canceled ctx affects only that
// caller.
func (q *acceptQueue) get(ctx context.Context) (net.Conn, error) {
	// A buffered connection is delivered even if closure raced in
	// behind it.
	select {
	case c := <-q.ch:
		return c, nil
	default:
	}
	select {
	case c := <-q.ch:
		return c, nil
	case <-q.done:
		return nil, q.err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// close shuts the queue. The first call wins; later causes are ignored.
func (q *acceptQueue) close(cause error) {
	q.once.Do(func() {
		q.mu.Lock()
		q.cause = cause
		q.mu.Unlock()
		close(q.done)
	})
}

// drain empties the buffered slot after the producers are gone,
// returning the abandoned connection if one was queued.
func (q *acceptQueue) drain() net.Conn {
	select {
	case c := <-q.ch:
		return c
	default:
		return nil
	}
}

func (q *acceptQueue) err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cause != nil {
		return q.cause
	}
	return ErrListenerClosed
}
