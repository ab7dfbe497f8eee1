package bridge

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/ipc"
	"github.com/thereceipt/printer-bridge/internal/remote"
)

// State is the connection lifecycle state.
type State int

const (
	StateUnbound State = iota
	StateBinding
	StateBound
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBinding:
		return "binding"
	case StateBound:
		return "bound"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Controller owns the connection to the printer service and the handle
// that is valid while it is bound.
type Controller struct {
	binder  ipc.Binder
	locator ipc.Locator
	logger  *zap.Logger

	// opMu orders Bind and Unbind against each other.
	opMu sync.Mutex

	// mu guards everything below, shared with binder notifications.
	mu      sync.Mutex
	state   State
	handle  *remote.Handle
	conn    *serviceConnection
	gen     uint64
	epoch   uint64
	changed chan struct{}
}

// NewController creates an unbound controller for the service at loc.
func NewController(binder ipc.Binder, loc ipc.Locator, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		binder:  binder,
		locator: loc,
		logger:  logger.With(zap.String("service", loc.String())),
		changed: make(chan struct{}),
	}
}

// serviceConnection is handed to the binder for one bind attempt, so that
// notifications from an abandoned attempt can be told apart.
type serviceConnection struct {
	c   *Controller
	gen uint64
}

func (sc *serviceConnection) ServiceConnected(_ ipc.Locator, p remote.Printer) {
	sc.c.connected(sc, p)
}

func (sc *serviceConnection) ServiceDisconnected(_ ipc.Locator) {
	sc.c.disconnected(sc)
}

// Bind requests a connection and returns without waiting for it. It is a
// no-op while bound or binding.
func (c *Controller) Bind() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state == StateBound || c.state == StateBinding {
		c.mu.Unlock()
		return nil
	}
	stale := c.conn
	c.gen++
	sc := &serviceConnection{c: c, gen: c.gen}
	c.conn = sc
	c.setState(StateBinding, nil)
	c.mu.Unlock()

	if stale != nil {
		if err := c.binder.Unbind(stale); err != nil {
			c.logger.Debug("releasing previous binding failed", zap.Uint64("generation", stale.gen), zap.Error(err))
		}
	}

	c.logger.Info("binding printer service", zap.Uint64("generation", sc.gen))
	if err := c.binder.Bind(c.locator, sc); err != nil {
		c.mu.Lock()
		if c.conn == sc {
			c.conn = nil
			c.setState(StateDisconnected, nil)
		}
		c.mu.Unlock()
		return fmt.Errorf("bind %s: %w", c.locator, err)
	}
	return nil
}

// Unbind tears the connection down and always leaves the controller
// unbound. Teardown failures are logged, never returned.
func (c *Controller) Unbind() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state == StateUnbound && c.conn == nil {
		c.mu.Unlock()
		return
	}
	sc := c.conn
	c.conn = nil
	c.setState(StateUnbound, nil)
	c.mu.Unlock()

	if sc == nil {
		return
	}
	if err := c.binder.Unbind(sc); err != nil {
		c.logger.Warn("unbind failed", zap.Uint64("generation", sc.gen), zap.Error(err))
		return
	}
	c.logger.Info("printer service unbound", zap.Uint64("generation", sc.gen))
}

func (c *Controller) connected(sc *serviceConnection, p remote.Printer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != sc {
		c.logger.Debug("ignoring connect from superseded binding", zap.Uint64("generation", sc.gen))
		return
	}

	c.epoch++
	c.setState(StateBound, remote.NewHandle(p, c.epoch))
	c.logger.Info("printer service connected", zap.Uint64("epoch", c.epoch))
}

func (c *Controller) disconnected(sc *serviceConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != sc {
		c.logger.Debug("ignoring disconnect from superseded binding", zap.Uint64("generation", sc.gen))
		return
	}
	if c.state == StateDisconnected {
		return
	}

	prev := c.state
	c.setState(StateDisconnected, nil)
	c.logger.Warn("printer service disconnected", zap.Stringer("from", prev))
}

// setState must be called with mu held. Any handle other than h is revoked.
func (c *Controller) setState(s State, h *remote.Handle) {
	if c.handle != nil && c.handle != h {
		c.handle.Revoke()
	}
	c.handle = h
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
}

// Current returns the live handle, or ErrNotConnected unless bound.
func (c *Controller) Current() (*remote.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateBound || c.handle == nil {
		return nil, ErrNotConnected
	}
	return c.handle, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Watch returns a channel that is closed on the next state change.
func (c *Controller) Watch() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// WaitBound waits for a pending bind to complete. It fails with
// ErrNotConnected once the controller is neither binding nor bound.
func (c *Controller) WaitBound(ctx context.Context) error {
	for {
		c.mu.Lock()
		state, changed := c.state, c.changed
		c.mu.Unlock()

		switch state {
		case StateBound:
			return nil
		case StateUnbound, StateDisconnected:
			return ErrNotConnected
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrWaitCancelled, ctx.Err())
		}
	}
}
