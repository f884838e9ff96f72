package listener

import (
	"errors"
	"sync"

	"conduit/internal/endpoint"
)

// ErrPoolClosed is returned by acquire after the pool is disposed.
var ErrPoolClosed = errors.New("handle pool closed")

// reusable is the pool's reuse predicate: only a handle with no client
// attached may be cached for another accept cycle.
func reusable(h endpoint.Handle) bool {
	return !h.Connected()
}

// handlePool recycles reserved server handles for one listener. It is
// the only state shared between accept loops besides the queue.
type handlePool struct {
	binding endpoint.Binding

	mu     sync.Mutex
	free   []endpoint.Handle
	max    int
	closed bool
}

func newHandlePool(b endpoint.Binding, max int) *handlePool {
	if max < 1 {
		max = 1
	}
	return &handlePool{binding: b, max: max}
}

// acquire returns a reserved handle, reusing a cached one when
// available. Creating a fresh handle is the only path that can fail
// with a creation error, and that error propagates to the caller.
func (p *handlePool) acquire() (endpoint.Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(p.free); n > 0 {
		h := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	return p.binding.NewHandle()
}

// release accepts a spent handle back. Handles that fail the reuse
// predicate are destroyed, never cached; so is everything once the pool
// is disposed or full.
func (p *handlePool) release(h endpoint.Handle) {
	if h == nil {
		return
	}
	if !reusable(h) {
		h.Close()
		return
	}

	p.mu.Lock()
	if p.closed || len(p.free) >= p.max {
		p.mu.Unlock()
		h.Close()
		return
	}
	p.free = append(p.free, h)
	p.mu.Unlock()
}

// close disposes the pool exactly once. It must only run after every
// accept loop has terminated.
func (p *handlePool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	free := p.free
	p.free = nil
	p.mu.Unlock()

	for _, h := range free {
		h.Close()
	}
}
