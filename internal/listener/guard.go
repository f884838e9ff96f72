package listener

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// ErrEndpointBusy is returned by Start when another process already
// serves the endpoint name.
var ErrEndpointBusy = errors.New("endpoint name is already served by another process")

// guard is the cross-process exclusivity lock for an endpoint name. It
// is acquired once at start, held for the whole listener lifetime, and
// plays no part in per-connection synchronization.
type guard struct {
	fl *flock.Flock
}

// acquireGuard claims the lock file derived from name without blocking.
func acquireGuard(name string) (*guard, error) {
	fl := flock.New(guardPath(name))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock endpoint %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("endpoint %s: %w", name, ErrEndpointBusy)
	}
	return &guard{fl: fl}, nil
}

// release drops the lock. Safe to call on a nil guard.
func (g *guard) release() error {
	if g == nil {
		return nil
	}
	return g.fl.Unlock()
}

// guardPath maps an endpoint name to its lock file. Pipe names contain
// separators and other characters that cannot appear in a file name.
func guardPath(name string) string {
	mangled := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	return filepath.Join(os.TempDir(), mangled+".lock")
}
