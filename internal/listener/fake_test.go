package listener

import (
	"context"
	"net"
	"sync"

	"conduit/internal/endpoint"
)

// fakeHandle is a scriptable endpoint handle. Connect succeeds
// immediately with a fresh in-process conn.
type fakeHandle struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	conn      net.Conn
	peer      net.Conn
}

func (h *fakeHandle) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connected {
		return endpoint.ErrConnected
	}
	h.connected = true
	h.conn, h.peer = net.Pipe()
	return nil
}

func (h *fakeHandle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *fakeHandle) Conn() net.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

func (h *fakeHandle) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
	if h.conn != nil {
		h.conn.Close()
		h.peer.Close()
		h.conn, h.peer = nil, nil
	}
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.connected = false
	if h.conn != nil {
		h.conn.Close()
		h.peer.Close()
		h.conn, h.peer = nil, nil
	}
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeBinding struct {
	mu      sync.Mutex
	created []*fakeHandle
	newErr  error
	closed  bool
}

func (b *fakeBinding) Name() string   { return "fake" }
func (b *fakeBinding) Addr() net.Addr { return endpoint.Addr{Name: "fake"} }

func (b *fakeBinding) NewHandle() (endpoint.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.newErr != nil {
		return nil, b.newErr
	}
	h := &fakeHandle{}
	b.created = append(b.created, h)
	return h, nil
}

func (b *fakeBinding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBinding) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *fakeBinding) setNewErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newErr = err
}

func (b *fakeBinding) createdCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.created)
}

// countingBinding wraps a MemoryBinding and tracks handle creation, so
// tests can observe when a loop reserves its replacement handle.
type countingBinding struct {
	*endpoint.MemoryBinding

	mu      sync.Mutex
	created int
}

func newCountingBinding(name string) *countingBinding {
	return &countingBinding{MemoryBinding: endpoint.ListenMemory(name)}
}

func (b *countingBinding) NewHandle() (endpoint.Handle, error) {
	h, err := b.MemoryBinding.NewHandle()
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.created++
	b.mu.Unlock()
	return h, nil
}

func (b *countingBinding) createdCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created
}
