// Package listener implements the acceptance engine for a named duplex
// channel: a pool of reserved server handles, a configurable number of
// concurrent accept loops, a capacity-1 hand-off queue in front of the
// public Accept call, and the shutdown choreography between them.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"conduit/internal/endpoint"
	"conduit/internal/stream"
)

var (
	// ErrListenerClosed is returned by Accept after a clean shutdown.
	// It wraps net.ErrClosed so the usual errors.Is checks hold.
	ErrListenerClosed = fmt.Errorf("listener closed: %w", net.ErrClosed)

	// ErrNotStarted is returned by Accept before Start has been called.
	ErrNotStarted = errors.New("listener not started")

	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("listener already started")
)

// DefaultMaxConnectFaults bounds consecutive transient connect faults
// on one loop before the listener gives up. The faults this recovers
// are client-induced; an endless streak means the endpoint itself has
// gone bad, and spinning on it forever helps nobody.
const DefaultMaxConnectFaults = 100

// Options configures a Listener. The zero value is usable.
type Options struct {
	// Parallelism is the number of concurrent accept loops. Each loop
	// keeps one reserved handle waiting for a client. Defaults to the
	// CPU count, capped at 16.
	Parallelism int

	// MaxReadBufferSize and MaxWriteBufferSize cap the stream layer's
	// buffering per connection. Zero means uncapped. A configured cap
	// splits into internal/external thresholds at half, see
	// stream.Limits.
	MaxReadBufferSize  int64
	MaxWriteBufferSize int64

	// RestrictToCurrentUser limits endpoint access to the owning user.
	RestrictToCurrentUser bool

	// SecurityDescriptor overrides the default access control with an
	// explicit Windows SDDL string. Ignored on other platforms.
	SecurityDescriptor string

	// MaxConnectFaults bounds consecutive transient connect faults per
	// loop. Zero selects DefaultMaxConnectFaults; negative disables the
	// bound.
	MaxConnectFaults int

	// Binding serves the endpoint in-process instead of binding an OS
	// name. Ownership transfers once Start succeeds; from then on the
	// listener closes it on Close. If Start fails, the binding stays
	// with the caller.
	Binding endpoint.Binding

	// Logger receives broken-pipe recovery, accept, and abort events.
	// Defaults to slog.Default.
	Logger *slog.Logger

	// Metrics registers the listener's collectors when non-nil.
	Metrics prometheus.Registerer
}

func (o Options) parallelism() int {
	if o.Parallelism > 0 {
		return o.Parallelism
	}
	if n := runtime.NumCPU(); n < 16 {
		return n
	}
	return 16
}

func (o Options) maxConnectFaults() int {
	switch {
	case o.MaxConnectFaults > 0:
		return o.MaxConnectFaults
	case o.MaxConnectFaults < 0:
		return 0
	default:
		return DefaultMaxConnectFaults
	}
}

// Listener accepts sequential client connections on a fixed endpoint
// name. It satisfies net.Listener.
type Listener struct {
	name    string
	opts    Options
	log     *slog.Logger
	metrics *metrics
	queue   *acceptQueue

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool
	guard   *guard
	binding endpoint.Binding
	pool    *handlePool
	group   *errgroup.Group

	closeOnce sync.Once
}

// New builds a listener for name. Nothing touches the OS until Start.
func New(name string, opts Options) *Listener {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		name:    name,
		opts:    opts,
		log:     log.With("component", "listener", "endpoint", name),
		metrics: newMetrics(opts.Metrics),
		queue:   newAcceptQueue(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Listen is New followed by Start.
func Listen(name string, opts Options) (*Listener, error) {
	l := New(name, opts)
	if err := l.Start(); err != nil {
		return nil, err
	}
	return l, nil
}

// Start claims the endpoint name and spawns the accept loops. Every
// loop's initial handle is reserved synchronously here, so handle
// creation errors surface to the caller instead of after the loops are
// already in the background.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrListenerClosed
	}
	if l.started {
		return ErrAlreadyStarted
	}

	g, err := acquireGuard(l.name)
	if err != nil {
		return err
	}

	binding := l.opts.Binding
	ownBinding := binding == nil
	if ownBinding {
		binding, err = endpoint.Bind(l.name, endpoint.Config{
			SecurityDescriptor: l.opts.SecurityDescriptor,
			CurrentUserOnly:    l.opts.RestrictToCurrentUser,
		})
		if err != nil {
			g.release()
			return fmt.Errorf("failed to bind endpoint %s: %w", l.name, err)
		}
	}

	parallelism := l.opts.parallelism()
	pool := newHandlePool(binding, parallelism)

	handles := make([]endpoint.Handle, 0, parallelism)
	for i := 0; i < parallelism; i++ {
		h, err := pool.acquire()
		if err != nil {
			for _, prev := range handles {
				prev.Close()
			}
			pool.close()
			if ownBinding {
				binding.Close()
			}
			g.release()
			return fmt.Errorf("failed to reserve initial handle: %w", err)
		}
		handles = append(handles, h)
	}

	limits := stream.Limits{
		MaxReadBufferSize:  l.opts.MaxReadBufferSize,
		MaxWriteBufferSize: l.opts.MaxWriteBufferSize,
	}

	group, gctx := errgroup.WithContext(l.ctx)
	for i, h := range handles {
		loop := &acceptLoop{
			id:        i,
			current:   h,
			pool:      pool,
			queue:     l.queue,
			limits:    limits,
			maxFaults: l.opts.maxConnectFaults(),
			log:       l.log,
			metrics:   l.metrics,
		}
		group.Go(func() error {
			return loop.run(gctx)
		})
	}

	l.guard = g
	l.binding = binding
	l.pool = pool
	l.group = group
	l.started = true

	// Any loop's unrecoverable failure propagates to every current and
	// future Accept caller through the queue's failure cause.
	go func() {
		if err := group.Wait(); err != nil {
			l.log.Error("listener aborted", "error", err)
			l.queue.close(err)
			return
		}
		l.queue.close(nil)
	}()

	l.log.Info("listener started", "parallelism", parallelism)
	return nil
}

// Accept waits for and returns the next connection.
func (l *Listener) Accept() (net.Conn, error) {
	return l.AcceptContext(context.Background())
}

// AcceptContext is Accept bounded by the caller's context. Cancellation
// is reported only to this caller; the listener is unaffected.
func (l *Listener) AcceptContext(ctx context.Context) (net.Conn, error) {
	l.mu.Lock()
	started, closed := l.started, l.closed
	l.mu.Unlock()
	if !started && !closed {
		return nil, ErrNotStarted
	}

	c, err := l.queue.get(ctx)
	if err != nil {
		return nil, err
	}
	l.metrics.queued.Dec()
	return c, nil
}

// Addr returns the listener's endpoint address.
func (l *Listener) Addr() net.Addr {
	return endpoint.Addr{Name: l.name}
}

// Name returns the endpoint name.
func (l *Listener) Name() string { return l.name }

// Close shuts the listener down: cancel once, release the exclusivity
// guard, join the loops, then dispose the pool and the binding, in
// that order. Disposing the pool any earlier would race a loop
// returning or reserving a handle against a torn-down pool. Close is
// idempotent and safe before Start.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		g := l.guard
		l.guard = nil
		started := l.started
		pool := l.pool
		binding := l.binding
		group := l.group
		l.mu.Unlock()

		l.cancel()

		if g != nil {
			if err := g.release(); err != nil {
				l.log.Warn("failed to release endpoint guard", "error", err)
			}
		}

		if started {
			_ = group.Wait()
		}
		l.queue.close(nil)
		if c := l.queue.drain(); c != nil {
			l.metrics.queued.Dec()
			c.Close()
		}
		if pool != nil {
			pool.close()
		}
		if binding != nil {
			binding.Close()
		}
		if started {
			l.log.Info("listener stopped")
		}
	})
	return nil
}

var _ net.Listener = (*Listener)(nil)
