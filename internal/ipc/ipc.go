// Package ipc connects the bridge to the out-of-process printer service.
//
// A Binder issues a connection request and returns immediately; the outcome
// is delivered later, on another goroutine, through the ServiceConnection
// passed to Bind. A connected service may vanish at any time, which is
// reported through ServiceDisconnected.
package ipc

import (
	"errors"
	"fmt"

	"github.com/thereceipt/printer-bridge/internal/remote"
)

var (
	ErrNotBound         = errors.New("service connection is not bound")
	ErrAlreadyBound     = errors.New("service connection is already bound")
	ErrServiceNotFound  = errors.New("printer service not found")
	ErrConnectionClosed = errors.New("printer service connection closed")
	ErrCallTimeout      = errors.New("printer service call timed out")
)

// Locator identifies the printer service: a namespace plus a component.
type Locator struct {
	Package   string `mapstructure:"package" json:"package"`
	Component string `mapstructure:"component" json:"component"`
}

// DefaultLocator is the vendor receipt printer service.
var DefaultLocator = Locator{
	Package:   "recieptservice.com.recieptservice",
	Component: "recieptservice.com.recieptservice.service.PrinterService",
}

func (l Locator) String() string {
	return l.Package + "/" + l.Component
}

// Validate checks that both parts are set.
func (l Locator) Validate() error {
	if l.Package == "" || l.Component == "" {
		return fmt.Errorf("invalid service locator %q: package and component are required", l.String())
	}
	return nil
}

// ServiceConnection receives connection lifecycle notifications.
type ServiceConnection interface {
	ServiceConnected(loc Locator, p remote.Printer)
	ServiceDisconnected(loc Locator)
}

// Binder is the host IPC mechanism.
type Binder interface {
	// Bind requests a connection to loc. A nil error only means the request
	// was accepted.
	Bind(loc Locator, conn ServiceConnection) error
	// Unbind tears down the connection registered for conn.
	Unbind(conn ServiceConnection) error
}

// RemoteError is a failure reported by the printer service itself.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}
