package listener

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func newTestConn() net.Conn {
	a, b := net.Pipe()
	b.Close()
	return a
}

func TestQueueHandOff(t *testing.T) {
	q := newAcceptQueue()
	c := newTestConn()

	if err := q.put(context.Background(), c); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := q.get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != c {
		t.Fatal("get returned a different connection")
	}
}

func TestQueueCapacityOne(t *testing.T) {
	q := newAcceptQueue()

	if err := q.put(context.Background(), newTestConn()); err != nil {
		t.Fatalf("first put: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.put(ctx, newTestConn())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second put = %v, want deadline exceeded", err)
	}
}

func TestQueueCleanClose(t *testing.T) {
	q := newAcceptQueue()
	q.close(nil)

	if _, err := q.get(context.Background()); !errors.Is(err, ErrListenerClosed) {
		t.Fatalf("get = %v, want ErrListenerClosed", err)
	}
	if err := q.put(context.Background(), newTestConn()); !errors.Is(err, ErrListenerClosed) {
		t.Fatalf("put = %v, want ErrListenerClosed", err)
	}
}

func TestQueueCloseWithCause(t *testing.T) {
	q := newAcceptQueue()
	boom := errors.New("loop exploded")
	q.close(boom)

	// Every current and future consumer observes the cause.
	for i := 0; i < 2; i++ {
		if _, err := q.get(context.Background()); !errors.Is(err, boom) {
			t.Fatalf("get #%d = %v, want %v", i, err, boom)
		}
	}
}

func TestQueueFirstCauseWins(t *testing.T) {
	q := newAcceptQueue()
	boom := errors.New("first")
	q.close(boom)
	q.close(errors.New("second"))

	if _, err := q.get(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("get = %v, want first cause", err)
	}
}

func TestQueueGetCancel(t *testing.T) {
	q := newAcceptQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.get(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("get = %v, want context.Canceled", err)
	}
}

func TestQueueBufferedSurvivesClose(t *testing.T) {
	q := newAcceptQueue()
	c := newTestConn()
	if err := q.put(context.Background(), c); err != nil {
		t.Fatalf("put: %v", err)
	}
	q.close(nil)

	// The connection was fully accepted before closure; a waiting
	// consumer still gets it.
	got, err := q.get(context.Background())
	if err != nil {
		t.Fatalf("get = %v, want buffered connection", err)
	}
	if got != c {
		t.Fatal("get returned a different connection")
	}
}

func TestQueueDrain(t *testing.T) {
	q := newAcceptQueue()
	c := newTestConn()
	q.put(context.Background(), c)
	q.close(nil)

	if got := q.drain(); got != c {
		t.Fatal("drain did not return the buffered connection")
	}
	if got := q.drain(); got != nil {
		t.Fatal("second drain returned a connection")
	}
}

func TestQueueConcurrentConsumers(t *testing.T) {
	q := newAcceptQueue()
	const n = 8

	got := make(chan net.Conn, n)
	for i := 0; i < n; i++ {
		go func() {
			c, err := q.get(context.Background())
			if err == nil {
				got <- c
			}
		}()
	}

	c := newTestConn()
	if err := q.put(context.Background(), c); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Exactly one consumer receives the connection.
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("no consumer received the connection")
	}
	select {
	case <-got:
		t.Fatal("connection delivered twice")
	case <-time.After(50 * time.Millisecond):
	}
}
