//go:build !windows

package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
)

// unixBinding serves the endpoint name as a Unix domain socket. The
// bound socket is what holds the name; handles are accept slots on it.
func bind(name string, cfg Config) (Binding, error) {
	// Unix sockets leave files behind; clear any stale one first.
	if err := removeStaleSocket(name); err != nil {
		return nil, fmt.Errorf("failed to remove stale socket %s: %w", name, err)
	}

	ln, err := net.Listen("unix", name)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on unix socket %s: %w", name, err)
	}

	if cfg.CurrentUserOnly {
		if err := os.Chmod(name, 0600); err != nil {
			ln.Close()
			return nil, fmt.Errorf("failed to restrict socket %s: %w", name, err)
		}
	}

	return &unixBinding{name: name, ln: ln.(*net.UnixListener)}, nil
}

func dial(ctx context.Context, name string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", name)
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Remove(path)
}

type unixBinding struct {
	name string
	ln   *net.UnixListener

	mu     sync.Mutex
	closed bool
}

func (b *unixBinding) Name() string   { return b.name }
func (b *unixBinding) Addr() net.Addr { return Addr{Name: b.name} }

func (b *unixBinding) NewHandle() (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	return &unixHandle{binding: b}, nil
}

func (b *unixBinding) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	// Closing the listener also unlinks the socket file.
	return b.ln.Close()
}

// unixHandle is one accept slot on the shared socket. Connect performs
// a single accept; Disconnect drops the client so the slot can go
// another round.
type unixHandle struct {
	binding *unixBinding

	mu   sync.Mutex
	conn net.Conn
}

type acceptResult struct {
	conn net.Conn
	err  error
}

func (h *unixHandle) Connect(ctx context.Context) error {
	h.mu.Lock()
	if h.conn != nil {
		h.mu.Unlock()
		return ErrConnected
	}
	h.mu.Unlock()

	ch := make(chan acceptResult, 1)
	go func() {
		c, err := h.binding.ln.Accept()
		ch <- acceptResult{conn: c, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, net.ErrClosed) {
				return ErrClosed
			}
			return r.err
		}
		h.mu.Lock()
		h.conn = r.conn
		h.mu.Unlock()
		return nil
	case <-ctx.Done():
		// The accept keeps running until the listener closes; make sure
		// a late arrival is not leaked.
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return ctx.Err()
	}
}

func (h *unixHandle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

func (h *unixHandle) Conn() net.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

func (h *unixHandle) Disconnect() error {
	h.mu.Lock()
	conn := h.conn
	h.conn = nil
	h.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (h *unixHandle) Close() error {
	return h.Disconnect()
}
