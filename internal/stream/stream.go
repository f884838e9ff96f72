// Package stream adapts a connected endpoint handle into the buffered
// duplex byte stream handed to applications. Buffering happens here, not
// in the OS handle, so the configured caps bound memory precisely.
package stream

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultBufferSize is used when a direction is uncapped.
const defaultBufferSize = 4096

// Limits caps the adapter's internal buffering per direction.
// Zero means uncapped: the adapter falls back to a small default
// buffer and never throttles on its own account.
type Limits struct {
	MaxReadBufferSize  int64
	MaxWriteBufferSize int64
}

// ReadThresholds returns the internal (pause) and external (resume)
// read buffering thresholds: the configured cap and half of it. Both
// are zero when reads are uncapped.
func (l Limits) ReadThresholds() (internal, external int64) {
	if l.MaxReadBufferSize <= 0 {
		return 0, 0
	}
	return l.MaxReadBufferSize, l.MaxReadBufferSize / 2
}

// WriteThresholds is the write-side counterpart of ReadThresholds.
func (l Limits) WriteThresholds() (internal, external int64) {
	if l.MaxWriteBufferSize <= 0 {
		return 0, 0
	}
	return l.MaxWriteBufferSize, l.MaxWriteBufferSize / 2
}

func bufSize(threshold int64) int {
	if threshold <= 0 {
		return defaultBufferSize
	}
	return int(threshold)
}

// Conn is one accepted connection. It satisfies net.Conn; Close returns
// the underlying handle to its owner through the onClose hook.
type Conn struct {
	raw    net.Conn
	id     uuid.UUID
	limits Limits

	br *bufio.Reader

	wmu sync.Mutex
	bw  *bufio.Writer

	closeOnce sync.Once
	closeErr  error
	onClose   func()
}

// Start wraps raw in a started adapter. onClose runs exactly once, after
// the stream is flushed and the raw connection closed.
func Start(raw net.Conn, limits Limits, onClose func()) *Conn {
	_, extRead := limits.ReadThresholds()
	_, extWrite := limits.WriteThresholds()
	return &Conn{
		raw:     raw,
		id:      uuid.New(),
		limits:  limits,
		br:      bufio.NewReaderSize(raw, bufSize(extRead)),
		bw:      bufio.NewWriterSize(raw, bufSize(extWrite)),
		onClose: onClose,
	}
}

// ID identifies the connection in logs.
func (c *Conn) ID() uuid.UUID { return c.id }

// Limits returns the buffering configuration the adapter was started with.
func (c *Conn) Limits() Limits { return c.limits }

func (c *Conn) Read(p []byte) (int, error) {
	return c.br.Read(p)
}

// Write is write-through: data is handed to the OS before Write returns.
// The buffer only coalesces chunks within a single call.
func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	n, err := c.bw.Write(p)
	if err != nil {
		return n, err
	}
	if err := c.bw.Flush(); err != nil {
		return n, err
	}
	return n, nil
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		c.bw.Flush()
		c.wmu.Unlock()
		c.closeErr = c.raw.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
	return c.closeErr
}

var _ net.Conn = (*Conn)(nil)

func (c *Conn) LocalAddr() net.Addr                { return c.raw.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr               { return c.raw.RemoteAddr() }
func (c *Conn) SetDeadline(t time.Time) error      { return c.raw.SetDeadline(t) }
func (c *Conn) SetReadDeadline(t time.Time) error  { return c.raw.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.raw.SetWriteDeadline(t) }
