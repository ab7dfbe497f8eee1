package command

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/thereceipt/printer-bridge/internal/bridge"
	"github.com/thereceipt/printer-bridge/pkg/script"
)

func (e *Executor) handleBind(args []string) *Result {
	if len(args) != 0 {
		return usage("bind")
	}
	if err := e.bridge.Bind(); err != nil {
		return failure(err)
	}
	return &Result{
		Success: true,
		Message: "Bind requested",
		Data:    map[string]any{"state": e.bridge.State().String()},
	}
}

func (e *Executor) handleUnbind(args []string) *Result {
	if len(args) != 0 {
		return usage("unbind")
	}
	e.bridge.Unbind()
	return success("Unbound")
}

func (e *Executor) handleStatus(args []string) *Result {
	state := e.bridge.State()
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Printer service is %s", state),
		Data:    map[string]any{"state": state.String()},
	}
}

// handleText prints the remaining arguments joined by spaces.
// Usage: text <text...>
func (e *Executor) handleText(ctx context.Context, args []string) *Result {
	if len(args) == 0 {
		return usage("text <text>")
	}
	if err := e.bridge.PrintText(ctx, strings.Join(args, " ")); err != nil {
		return failure(err)
	}
	return success("Text sent")
}

// Usage: epson <base64|@file>
func (e *Executor) handleEpson(ctx context.Context, args []string) *Result {
	if len(args) != 1 {
		return usage("epson <base64|@file>")
	}
	payload, err := payloadArg(args[0])
	if err != nil {
		return failure(err)
	}
	if err := e.bridge.PrintEpsonFromBase64(ctx, payload); err != nil {
		return failure(err)
	}
	return success("Raw commands sent")
}

// Usage: bitmap <base64|@file>
func (e *Executor) handleBitmap(ctx context.Context, args []string) *Result {
	if len(args) != 1 {
		return usage("bitmap <base64|@file>")
	}
	payload, err := payloadArg(args[0])
	if err != nil {
		return failure(err)
	}
	if err := e.bridge.PrintBitmapFromBase64(ctx, payload); err != nil {
		return failure(err)
	}
	return success("Bitmap sent")
}

// payloadArg returns arg, or the base64 of the named file for "@path".
func payloadArg(arg string) (string, error) {
	path, ok := strings.CutPrefix(arg, "@")
	if !ok {
		return arg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Usage: barcode <data> <symbology> <height> <width>
func (e *Executor) handleBarcode(ctx context.Context, args []string) *Result {
	if len(args) != 4 {
		return usage("barcode <data> <symbology> <height> <width>")
	}
	nums, err := ints(args[1:])
	if err != nil {
		return failure(err)
	}
	if err := e.bridge.PrintBarCode(ctx, args[0], nums[0], nums[1], nums[2]); err != nil {
		return failure(err)
	}
	return success("Barcode sent")
}

// Usage: qr <data> <module-size> <error-level>
func (e *Executor) handleQRCode(ctx context.Context, args []string) *Result {
	if len(args) != 3 {
		return usage("qr <data> <module-size> <error-level>")
	}
	nums, err := ints(args[1:])
	if err != nil {
		return failure(err)
	}
	if err := e.bridge.PrintQRCode(ctx, args[0], nums[0], nums[1]); err != nil {
		return failure(err)
	}
	return success("QR code sent")
}

// Usage: align <0|1|2>
func (e *Executor) handleAlign(ctx context.Context, args []string) *Result {
	if len(args) != 1 {
		return usage("align <0|1|2>")
	}
	nums, err := ints(args)
	if err != nil {
		return failure(err)
	}
	if err := e.bridge.SetAlignment(ctx, nums[0]); err != nil {
		return failure(err)
	}
	return success("Alignment set to %d", nums[0])
}

// Usage: size <points>
func (e *Executor) handleSize(ctx context.Context, args []string) *Result {
	if len(args) != 1 {
		return usage("size <points>")
	}
	points, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return failure(fmt.Errorf("%w: invalid size: %s", bridge.ErrInvalidArgument, args[0]))
	}
	if err := e.bridge.SetTextSize(ctx, points); err != nil {
		return failure(err)
	}
	return success("Text size set to %g", points)
}

// Usage: bold <on|off>
func (e *Executor) handleBold(ctx context.Context, args []string) *Result {
	if len(args) != 1 {
		return usage("bold <on|off>")
	}
	var bold bool
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		bold = true
	case "off", "false", "0":
	default:
		return usage("bold <on|off>")
	}
	if err := e.bridge.SetTextBold(ctx, bold); err != nil {
		return failure(err)
	}
	if bold {
		return success("Bold on")
	}
	return success("Bold off")
}

// Usage: feed [lines]
func (e *Executor) handleFeed(ctx context.Context, args []string) *Result {
	lines := 1
	switch len(args) {
	case 0:
	case 1:
		nums, err := ints(args)
		if err != nil {
			return failure(err)
		}
		lines = nums[0]
	default:
		return usage("feed [lines]")
	}
	if err := e.bridge.NextLine(ctx, lines); err != nil {
		return failure(err)
	}
	return success("Fed %d line(s)", lines)
}

// handleTable prints one row; each argument is a '|' separated list.
// Usage: table <c1|c2|...> <w1|w2|...> <a1|a2|...>
func (e *Executor) handleTable(ctx context.Context, args []string) *Result {
	if len(args) != 3 {
		return usage("table <c1|c2|...> <w1|w2|...> <a1|a2|...>")
	}
	cells := strings.Split(args[0], "|")
	weights, err := ints(strings.Split(args[1], "|"))
	if err != nil {
		return failure(err)
	}
	aligns, err := ints(strings.Split(args[2], "|"))
	if err != nil {
		return failure(err)
	}
	if err := e.bridge.PrintTableRow(ctx, cells, weights, aligns); err != nil {
		return failure(err)
	}
	return success("Table row sent")
}

// Usage: run <script-path>
func (e *Executor) handleRun(ctx context.Context, args []string) *Result {
	if len(args) != 1 {
		return usage("run <script-path>")
	}
	s, err := script.ParseFile(args[0])
	if err != nil {
		return failure(fmt.Errorf("%w: %w", bridge.ErrInvalidArgument, err))
	}
	if err := script.Run(ctx, e.bridge, s); err != nil {
		return failure(err)
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Script %q finished", s.Name),
		Data:    map[string]any{"steps": len(s.Steps)},
	}
}

func (e *Executor) handleHelp(args []string) *Result {
	helpText := `Available commands:

  bind                               Bind to the printer service
  unbind                             Release the printer service
  status                             Show the connection state
  text <text>                        Print text
  epson <base64|@file>               Send raw ESC/POS commands
  bitmap <base64|@file>              Print an encoded image
  barcode <data> <sym> <h> <w>       Print a barcode (sym 0..8)
  qr <data> <size> <level>           Print a QR code (level 0..3)
  align <0|1|2>                      Set alignment: left, center, right
  size <points>                      Set text size
  bold <on|off>                      Toggle bold text
  feed [lines]                       Advance the paper
  table <c1|c2> <w1|w2> <a1|a2>      Print a table row
  run <script-path>                  Run a JSON or YAML print script
  help                               Show this help message

Quote arguments that contain spaces.`

	return &Result{
		Success: true,
		Message: helpText,
	}
}

func ints(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("%w: not a number: %s", bridge.ErrInvalidArgument, a)
		}
		out[i] = n
	}
	return out, nil
}
