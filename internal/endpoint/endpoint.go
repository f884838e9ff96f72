// Package endpoint binds named duplex channels to the operating system.
//
// A Binding owns a well-known endpoint name for as long as it is open:
// a named pipe on Windows, a Unix domain socket elsewhere. Handles are
// the reservable server ends the accept engine cycles through; each one
// waits for a single client and is reset before reuse.
package endpoint

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// Sentinel errors shared by all binding implementations.
var (
	// ErrClosed is returned for operations on a closed binding or handle.
	ErrClosed = errors.New("endpoint: closed")

	// ErrConnected is returned when Connect is called on a handle that
	// already holds a client.
	ErrConnected = errors.New("endpoint: handle already connected")

	// ErrBrokenPipe marks a transient per-connection fault during the
	// connect wait. The client is gone; the endpoint name is still good.
	ErrBrokenPipe = errors.New("endpoint: broken pipe")
)

// Config carries the OS-level options applied when binding a name.
type Config struct {
	// SecurityDescriptor is a Windows SDDL string. Empty means default
	// access control. Ignored on other platforms.
	SecurityDescriptor string

	// CurrentUserOnly restricts the endpoint to the owning user when no
	// explicit security descriptor is given.
	CurrentUserOnly bool

	// InputBufferSize and OutputBufferSize size the OS-level pipe
	// buffers on Windows. Zero keeps buffering in the stream layer.
	InputBufferSize  int32
	OutputBufferSize int32
}

// Handle is one reservable server end of a bound endpoint.
//
// A handle is reserved on creation, connected after a successful
// Connect, and reserved again after Disconnect. At most one client is
// ever attached to a handle at a time.
type Handle interface {
	// Connect blocks until a client attaches, the context is canceled,
	// or the wait fails. Calling Connect on a connected handle is an
	// error.
	Connect(ctx context.Context) error

	// Connected reports whether a client is currently attached.
	Connected() bool

	// Conn returns the duplex byte stream for the attached client.
	// Valid only while Connected reports true.
	Conn() net.Conn

	// Disconnect severs the current client, if any, and returns the
	// handle to its reserved state.
	Disconnect() error

	// Close releases the handle. A closed handle must not be reused.
	Close() error
}

// Binding owns an endpoint name and mints server handles for it.
// Closing the binding gives up name ownership.
type Binding interface {
	Name() string
	Addr() net.Addr
	NewHandle() (Handle, error)
	Close() error
}

// Bind claims name and returns the platform binding for it.
func Bind(name string, cfg Config) (Binding, error) {
	return bind(name, cfg)
}

// Dial connects to the endpoint as a client.
func Dial(ctx context.Context, name string) (net.Conn, error) {
	return dial(ctx, name)
}

// IsTransient reports whether err is a per-connection connect fault the
// accept engine should absorb by replacing the handle and carrying on.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrBrokenPipe):
		return true
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	return false
}

// Addr is the net.Addr reported for bound endpoints.
type Addr struct {
	Name string
}

func (a Addr) Network() string { return "pipe" }
func (a Addr) String() string  { return a.Name }
