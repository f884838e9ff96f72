package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"conduit/internal/endpoint"
	"conduit/internal/stream"
)

// acceptLoop is one accept cycle. It owns exactly one reserved handle
// at all times while running, and reserves the replacement before any
// accepted connection becomes visible to a consumer, so the endpoint
// name is never left without a server end another process could claim.
type acceptLoop struct {
	id      int
	current endpoint.Handle

	pool      *handlePool
	queue     *acceptQueue
	limits    stream.Limits
	maxFaults int
	log       *slog.Logger
	metrics   *metrics
}

// run drives the loop until cancellation or an unrecoverable error.
// Cancellation is a clean exit (nil); any returned error takes the
// whole listener down via the errgroup.
func (l *acceptLoop) run(ctx context.Context) error {
	l.metrics.activeLoops.Inc()
	defer l.metrics.activeLoops.Dec()
	defer func() {
		if l.current != nil {
			l.current.Close()
		}
	}()

	faults := 0
	for {
		if err := l.current.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				l.log.Debug("accept loop stopping", "loop", l.id)
				return nil
			}
			if endpoint.IsTransient(err) {
				faults++
				if l.maxFaults > 0 && faults >= l.maxFaults {
					return fmt.Errorf("accept loop %d: %d consecutive connect faults, giving up: %w", l.id, faults, err)
				}
				if err := l.replaceHandle(ctx, err); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("accept loop %d: wait for connection: %w", l.id, err)
		}
		faults = 0

		if err := l.publish(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// replaceHandle discards the current handle after a transient connect
// fault and reserves a fresh one. A misbehaving client must not take
// the listener down.
func (l *acceptLoop) replaceHandle(ctx context.Context, cause error) error {
	l.log.Warn("transient connect fault, replacing handle",
		"loop", l.id,
		"error", cause,
	)
	l.metrics.retries.Inc()

	l.current.Close()
	l.current = nil

	h, err := l.pool.acquire()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("accept loop %d: replace handle: %w", l.id, err)
	}
	l.current = h
	return nil
}

// publish hands the just-connected handle off to a consumer. The
// replacement reserved handle is acquired first; that ordering is what
// keeps name ownership continuous.
func (l *acceptLoop) publish(ctx context.Context) error {
	connected := l.current
	l.current = nil

	next, err := l.pool.acquire()
	if err != nil {
		connected.Close()
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("accept loop %d: reserve next handle: %w", l.id, err)
	}
	l.current = next

	conn := l.adapt(connected)
	l.log.Debug("connection accepted",
		"loop", l.id,
		"conn_id", conn.ID(),
	)

	l.metrics.queued.Inc()
	if err := l.queue.put(ctx, conn); err != nil {
		l.metrics.queued.Dec()
		conn.Close()
		if ctx.Err() != nil || errors.Is(err, ErrListenerClosed) {
			return nil
		}
		return fmt.Errorf("accept loop %d: publish connection: %w", l.id, err)
	}
	l.metrics.accepted.Inc()
	return nil
}

// adapt starts the per-connection stream adapter. Closing the adapter
// disconnects the spent handle and returns it to the pool.
func (l *acceptLoop) adapt(h endpoint.Handle) *stream.Conn {
	return stream.Start(h.Conn(), l.limits, func() {
		_ = h.Disconnect()
		l.pool.release(h)
	})
}
