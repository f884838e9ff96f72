package endpoint

import (
	"context"
	"errors"
	"net"
	"sync"
)

// MemoryBinding is an in-process implementation of Binding built on
// net.Pipe. It exists for tests and for embedding the accept engine in
// the same process as its clients; there is no OS name involved, the
// binding itself is the rendezvous point.
type MemoryBinding struct {
	name    string
	pending chan net.Conn
	faults  chan error

	mu     sync.Mutex
	closed chan struct{}
}

// ListenMemory creates an in-process endpoint with the given name.
func ListenMemory(name string) *MemoryBinding {
	return &MemoryBinding{
		name:    name,
		pending: make(chan net.Conn),
		faults:  make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (b *MemoryBinding) Name() string   { return b.name }
func (b *MemoryBinding) Addr() net.Addr { return Addr{Name: b.name} }

// Dial connects a client to the endpoint, blocking until a reserved
// handle picks the connection up.
func (b *MemoryBinding) Dial(ctx context.Context) (net.Conn, error) {
	server, client := net.Pipe()
	select {
	case b.pending <- server:
		return client, nil
	case <-b.closed:
		server.Close()
		client.Close()
		return nil, ErrClosed
	case <-ctx.Done():
		server.Close()
		client.Close()
		return nil, ctx.Err()
	}
}

// FailNextConnect makes the next Connect wait on any handle return err.
func (b *MemoryBinding) FailNextConnect(err error) {
	b.faults <- err
}

func (b *MemoryBinding) NewHandle() (Handle, error) {
	select {
	case <-b.closed:
		return nil, ErrClosed
	default:
	}
	return &memoryHandle{binding: b}, nil
}

func (b *MemoryBinding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.closed:
		return nil
	default:
	}
	close(b.closed)
	return nil
}

type memoryHandle struct {
	binding *MemoryBinding

	mu   sync.Mutex
	conn net.Conn
}

func (h *memoryHandle) Connect(ctx context.Context) error {
	h.mu.Lock()
	if h.conn != nil {
		h.mu.Unlock()
		return ErrConnected
	}
	h.mu.Unlock()

	select {
	case err := <-h.binding.faults:
		return err
	case c := <-h.binding.pending:
		h.mu.Lock()
		h.conn = c
		h.mu.Unlock()
		return nil
	case <-h.binding.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *memoryHandle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

func (h *memoryHandle) Conn() net.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

func (h *memoryHandle) Disconnect() error {
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

func (h *memoryHandle) Close() error {
	return h.Disconnect()
}
