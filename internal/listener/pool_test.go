package listener

import (
	"errors"
	"testing"
)

func TestPoolAcquireCreatesFresh(t *testing.T) {
	b := &fakeBinding{}
	p := newHandlePool(b, 4)

	h, err := p.acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if h == nil {
		t.Fatal("acquire returned nil handle")
	}
	if b.createdCount() != 1 {
		t.Fatalf("created %d handles, want 1", b.createdCount())
	}
}

func TestPoolRecyclesDisconnected(t *testing.T) {
	b := &fakeBinding{}
	p := newHandlePool(b, 4)

	h, _ := p.acquire()
	p.release(h)

	h2, err := p.acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if h2 != h {
		t.Error("disconnected handle was not recycled")
	}
	if b.createdCount() != 1 {
		t.Errorf("created %d handles, want 1", b.createdCount())
	}
}

func TestPoolDiscardsConnected(t *testing.T) {
	b := &fakeBinding{}
	p := newHandlePool(b, 4)

	h, _ := p.acquire()
	fh := h.(*fakeHandle)
	fh.Connect(t.Context())

	// A handle that still holds a client must never be cached.
	p.release(h)
	if !fh.isClosed() {
		t.Error("connected handle released to pool was not destroyed")
	}

	h2, _ := p.acquire()
	if h2 == h {
		t.Error("connected handle was handed out again")
	}
	if b.createdCount() != 2 {
		t.Errorf("created %d handles, want 2", b.createdCount())
	}
}

func TestPoolCapacity(t *testing.T) {
	b := &fakeBinding{}
	p := newHandlePool(b, 1)

	h1, _ := p.acquire()
	h2, _ := p.acquire()
	p.release(h1)
	p.release(h2)

	if !h2.(*fakeHandle).isClosed() {
		t.Error("overflow release did not destroy the handle")
	}
	if h1.(*fakeHandle).isClosed() {
		t.Error("cached handle was destroyed")
	}
}

func TestPoolAcquireError(t *testing.T) {
	boom := errors.New("access denied")
	b := &fakeBinding{newErr: boom}
	p := newHandlePool(b, 4)

	if _, err := p.acquire(); !errors.Is(err, boom) {
		t.Fatalf("acquire = %v, want %v", err, boom)
	}
}

func TestPoolClose(t *testing.T) {
	b := &fakeBinding{}
	p := newHandlePool(b, 4)

	h, _ := p.acquire()
	p.release(h)
	p.close()

	if !h.(*fakeHandle).isClosed() {
		t.Error("cached handle not destroyed on close")
	}
	if _, err := p.acquire(); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("acquire after close = %v, want ErrPoolClosed", err)
	}

	// Late returns against a disposed pool are destroyed, not cached.
	late, _ := b.NewHandle()
	p.release(late)
	if !late.(*fakeHandle).isClosed() {
		t.Error("handle released after close was not destroyed")
	}

	// Double close is a no-op.
	p.close()
}

func TestReusablePredicate(t *testing.T) {
	h := &fakeHandle{}
	if !reusable(h) {
		t.Error("disconnected handle reported not reusable")
	}
	h.Connect(t.Context())
	if reusable(h) {
		t.Error("connected handle reported reusable")
	}
	h.Disconnect()
	if !reusable(h) {
		t.Error("handle not reusable after disconnect")
	}
}
