// Package ipctest provides an in-memory ipc.Binder driven by the test.
package ipctest

import (
	"sync"

	"github.com/thereceipt/printer-bridge/internal/ipc"
	"github.com/thereceipt/printer-bridge/internal/remote"
)

// Binder records bind requests and lets the test decide when the service
// connects or disconnects.
type Binder struct {
	// BindErr, when set, is returned by Bind.
	BindErr error
	// AutoConnect, when set, is delivered from inside Bind.
	AutoConnect remote.Printer

	mu      sync.Mutex
	active  map[ipc.ServiceConnection]ipc.Locator
	order   []ipc.ServiceConnection
	binds   int
	unbinds int
}

// NewBinder returns a Binder with no active bindings.
func NewBinder() *Binder {
	return &Binder{active: make(map[ipc.ServiceConnection]ipc.Locator)}
}

func (b *Binder) Bind(loc ipc.Locator, conn ipc.ServiceConnection) error {
	b.mu.Lock()
	b.binds++
	if b.BindErr != nil {
		err := b.BindErr
		b.mu.Unlock()
		return err
	}
	b.active[conn] = loc
	b.order = append(b.order, conn)
	auto := b.AutoConnect
	b.mu.Unlock()

	if auto != nil {
		conn.ServiceConnected(loc, auto)
	}
	return nil
}

func (b *Binder) Unbind(conn ipc.ServiceConnection) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unbinds++
	if _, ok := b.active[conn]; !ok {
		return ipc.ErrNotBound
	}
	delete(b.active, conn)
	return nil
}

// Last returns the most recent connection passed to Bind, bound or not.
func (b *Binder) Last() ipc.ServiceConnection {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		return nil
	}
	return b.order[len(b.order)-1]
}

// Active reports how many connections are currently bound.
func (b *Binder) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

// Binds reports how many times Bind was called.
func (b *Binder) Binds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.binds
}

// Unbinds reports how many times Unbind was called.
func (b *Binder) Unbinds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unbinds
}

// Connect delivers a connect notification to the latest connection.
func (b *Binder) Connect(p remote.Printer) {
	conn := b.Last()
	if conn == nil {
		return
	}
	conn.ServiceConnected(b.locator(conn), p)
}

// Disconnect delivers a disconnect notification to the latest connection.
func (b *Binder) Disconnect() {
	conn := b.Last()
	if conn == nil {
		return
	}
	conn.ServiceDisconnected(b.locator(conn))
}

func (b *Binder) locator(conn ipc.ServiceConnection) ipc.Locator {
	b.mu.Lock()
	defer b.mu.Unlock()
	if loc, ok := b.active[conn]; ok {
		return loc
	}
	return ipc.DefaultLocator
}

var _ ipc.Binder = (*Binder)(nil)
