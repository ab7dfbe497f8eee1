package bridge

import (
	"errors"
	"fmt"

	"github.com/thereceipt/printer-bridge/internal/decode"
)

var (
	ErrNotConnected          = errors.New("printer service not connected")
	ErrSerializerUnavailable = errors.New("command serializer unavailable")
	ErrMalformedTableRow     = errors.New("table row text, weight and alignment must have equal length")
	ErrWaitCancelled         = errors.New("wait cancelled")
	ErrRemoteFault           = errors.New("remote fault")
	ErrInvalidArgument       = errors.New("invalid argument")
)

// Decode failures, surfaced unchanged from the decode pipeline.
var (
	ErrEmptyPayload            = decode.ErrEmptyPayload
	ErrDecodeFailed            = decode.ErrDecodeFailed
	ErrUnrecognizedImageFormat = decode.ErrUnrecognizedImageFormat
	ErrBitmapDecodeFailed      = decode.ErrBitmapDecodeFailed
)

// RemoteFault wraps an error raised by the printer service during Op.
type RemoteFault struct {
	Op  string
	Err error
}

func (e *RemoteFault) Error() string {
	return fmt.Sprintf("remote fault in %s: %v", e.Op, e.Err)
}

func (e *RemoteFault) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRemoteFault) match any RemoteFault.
func (e *RemoteFault) Is(target error) bool { return target == ErrRemoteFault }
