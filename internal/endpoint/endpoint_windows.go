//go:build windows

package endpoint

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/Microsoft/go-winio"
)

// windowsBinding serves the endpoint name as a named pipe via go-winio.
// The pipe listener keeps a server instance of the name alive between
// accepts, so ownership of the name never lapses while it is open.
func bind(name string, cfg Config) (Binding, error) {
	pc := &winio.PipeConfig{
		SecurityDescriptor: cfg.SecurityDescriptor,
		MessageMode:        false,
		InputBufferSize:    cfg.InputBufferSize,
		OutputBufferSize:   cfg.OutputBufferSize,
	}
	if pc.SecurityDescriptor == "" && cfg.CurrentUserOnly {
		// Owner and SYSTEM only. Generic read/write is all a duplex
		// byte stream needs.
		pc.SecurityDescriptor = "D:P(A;;GA;;;OW)(A;;GA;;;SY)"
	}

	ln, err := winio.ListenPipe(name, pc)
	if err != nil {
		return nil, err
	}
	return &windowsBinding{name: name, ln: ln}, nil
}

func dial(ctx context.Context, name string) (net.Conn, error) {
	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	return winio.DialPipe(name, &timeout)
}

type windowsBinding struct {
	name string
	ln   net.Listener

	mu     sync.Mutex
	closed bool
}

func (b *windowsBinding) Name() string   { return b.name }
func (b *windowsBinding) Addr() net.Addr { return Addr{Name: b.name} }

func (b *windowsBinding) NewHandle() (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	return &windowsHandle{binding: b}, nil
}

func (b *windowsBinding) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.ln.Close()
}

// windowsHandle is one accept slot on the pipe listener.
type windowsHandle struct {
	binding *windowsBinding

	mu   sync.Mutex
	conn net.Conn
}

func (h *windowsHandle) Connect(ctx context.Context) error {
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
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return ctx.Err()
	}
}

func (h *windowsHandle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

func (h *windowsHandle) Conn() net.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

func (h *windowsHandle) Disconnect() error {
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

func (h *windowsHandle) Close() error {
	return h.Disconnect()
}

type acceptResult struct {
	conn net.Conn
	err  error
}
