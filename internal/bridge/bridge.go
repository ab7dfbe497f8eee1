// Package bridge turns concurrent print requests into an ordered stream of
// calls against the printer service.
//
// Every print or format operation is queued on a single Serializer, picks up
// the Controller's live handle when it runs, and reports back through a
// Future the caller waits on. Cancelling that wait never cancels a call that
// has already been queued.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/decode"
	"github.com/thereceipt/printer-bridge/internal/remote"
)

// Bridge is the public command surface.
type Bridge struct {
	controller *Controller
	serializer *Serializer
	decoder    *decode.Decoder
	logger     *zap.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDecoder replaces the default image decoder.
func WithDecoder(d *decode.Decoder) Option {
	return func(b *Bridge) { b.decoder = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// New composes a bridge from its controller and serializer.
func New(controller *Controller, serializer *Serializer, opts ...Option) *Bridge {
	b := &Bridge{
		controller: controller,
		serializer: serializer,
		decoder:    decode.NewDecoder(decode.DefaultMaxDimension),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind requests a connection to the printer service.
func (b *Bridge) Bind() error {
	return b.controller.Bind()
}

// Unbind disconnects. It never fails.
func (b *Bridge) Unbind() {
	b.controller.Unbind()
}

// State reports the connection state.
func (b *Bridge) State() State {
	return b.controller.State()
}

// Watch returns a channel closed on the next state change.
func (b *Bridge) Watch() <-chan struct{} {
	return b.controller.Watch()
}

// Pending reports how many commands are queued, including the running one.
func (b *Bridge) Pending() int {
	return b.serializer.Pending()
}

// WaitBound waits for a pending Bind to connect.
func (b *Bridge) WaitBound(ctx context.Context) error {
	return b.controller.WaitBound(ctx)
}

// Close stops accepting commands and waits for the running one.
func (b *Bridge) Close(ctx context.Context) error {
	err := b.serializer.Stop(ctx)
	b.controller.Unbind()
	return err
}

// submit queues a remote call; the handle is resolved when the call runs.
func (b *Bridge) submit(op string, call func(p remote.Printer) error) *Future {
	return b.serializer.Submit(func() error {
		h, err := b.controller.Current()
		if err != nil {
			return err
		}
		return b.remoteCall(op, h, call)
	})
}

func (b *Bridge) remoteCall(op string, h *remote.Handle, call func(p remote.Printer) error) error {
	err := call(h)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, remote.ErrRevoked):
		return ErrNotConnected
	default:
		b.logger.Warn("remote call failed", zap.String("op", op), zap.Uint64("epoch", h.Epoch()), zap.Error(err))
		return &RemoteFault{Op: op, Err: err}
	}
}

func (b *Bridge) do(ctx context.Context, op string, call func(p remote.Printer) error) error {
	return b.submit(op, call).Wait(ctx)
}

// PrintText prints text as-is.
func (b *Bridge) PrintText(ctx context.Context, text string) error {
	return b.do(ctx, "printText", func(p remote.Printer) error {
		return p.PrintText(text)
	})
}

// PrintEpsonFromBase64 decodes standard base64 and sends the bytes as raw
// printer protocol.
func (b *Bridge) PrintEpsonFromBase64(ctx context.Context, encoded string) error {
	return b.serializer.Do(ctx, func() error {
		h, err := b.controller.Current()
		if err != nil {
			return err
		}
		data, err := decode.Raw(encoded)
		if err != nil {
			return err
		}
		return b.remoteCall("printEpson", h, func(p remote.Printer) error {
			return p.PrintEpson(data)
		})
	})
}

// PrintBitmapFromBase64 runs the decode pipeline on a base64 or data-URI
// image and prints the normalized bitmap. The connection is checked before
// decoding, so an unbound bridge reports ErrNotConnected even for a bad
// payload and never spends a decode.
func (b *Bridge) PrintBitmapFromBase64(ctx context.Context, image string) error {
	return b.serializer.Do(ctx, func() error {
		h, err := b.controller.Current()
		if err != nil {
			return err
		}
		img, err := b.decoder.Bitmap(image)
		if err != nil {
			return err
		}
		bmp := remote.NewBitmap(img)
		b.logger.Debug("bitmap decoded", zap.Int("width", bmp.Width), zap.Int("height", bmp.Height))
		return b.remoteCall("printBitmap", h, func(p remote.Printer) error {
			return p.PrintBitmap(bmp)
		})
	})
}

// PrintBarCode prints data using the given symbology code.
func (b *Bridge) PrintBarCode(ctx context.Context, data string, symbology, height, width int) error {
	return b.do(ctx, "printBarCode", func(p remote.Printer) error {
		return p.PrintBarCode(data, symbology, height, width)
	})
}

// PrintQRCode prints data as a QR code.
func (b *Bridge) PrintQRCode(ctx context.Context, data string, moduleSize, errorLevel int) error {
	return b.do(ctx, "printQRCode", func(p remote.Printer) error {
		return p.PrintQRCode(data, moduleSize, errorLevel)
	})
}

// SetAlignment sets the alignment code for following output.
func (b *Bridge) SetAlignment(ctx context.Context, alignment int) error {
	return b.do(ctx, "setAlignment", func(p remote.Printer) error {
		return p.SetAlignment(alignment)
	})
}

// SetTextSize sets the text size in points. The value is narrowed to
// float32 and must stay finite.
func (b *Bridge) SetTextSize(ctx context.Context, points float64) error {
	size := float32(points)
	if math.IsNaN(float64(size)) || math.IsInf(float64(size), 0) {
		return fmt.Errorf("%w: text size %v", ErrInvalidArgument, points)
	}
	return b.do(ctx, "setTextSize", func(p remote.Printer) error {
		return p.SetTextSize(size)
	})
}

// NextLine feeds lines.
func (b *Bridge) NextLine(ctx context.Context, lines int) error {
	return b.do(ctx, "nextLine", func(p remote.Printer) error {
		return p.NextLine(lines)
	})
}

// SetTextBold toggles bold text.
func (b *Bridge) SetTextBold(ctx context.Context, bold bool) error {
	return b.do(ctx, "setTextBold", func(p remote.Printer) error {
		return p.SetTextBold(bold)
	})
}

// PrintTableRow prints one row of cells. The three slices must have equal
// length; otherwise nothing is queued.
func (b *Bridge) PrintTableRow(ctx context.Context, text []string, weight, alignment []int) error {
	if len(text) != len(weight) || len(text) != len(alignment) {
		return fmt.Errorf("%w: %d cells, %d weights, %d alignments",
			ErrMalformedTableRow, len(text), len(weight), len(alignment))
	}
	return b.do(ctx, "printTableText", func(p remote.Printer) error {
		return p.PrintTableText(text, weight, alignment)
	})
}
