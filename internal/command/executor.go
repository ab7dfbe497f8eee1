// Package command provides a text command interface to the printer bridge
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/thereceipt/printer-bridge/internal/bridge"
	"github.com/thereceipt/printer-bridge/pkg/script"
)

// Bridge is the facade surface commands run against.
type Bridge interface {
	script.Target
	Bind() error
	Unbind()
	State() bridge.State
}

// Executor executes commands
type Executor struct {
	bridge Bridge
}

// NewExecutor creates a new command executor
func NewExecutor(b Bridge) *Executor {
	return &Executor{bridge: b}
}

// Result represents the result of executing a command
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`

	// Err is the underlying failure, for callers that map error kinds.
	Err error `json:"-"`
}

func failure(err error) *Result {
	return &Result{Success: false, Error: err.Error(), Err: err}
}

func usage(text string) *Result {
	return failure(fmt.Errorf("%w: usage: %s", bridge.ErrInvalidArgument, text))
}

func success(format string, args ...any) *Result {
	return &Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

// Execute executes a command string and returns a result
func (e *Executor) Execute(ctx context.Context, cmdStr string) *Result {
	parts := parseCommand(cmdStr)
	if len(parts) == 0 {
		return failure(fmt.Errorf("%w: empty command", bridge.ErrInvalidArgument))
	}

	command := parts[0]
	args := parts[1:]

	switch command {
	case "bind":
		return e.handleBind(args)
	case "unbind":
		return e.handleUnbind(args)
	case "status":
		return e.handleStatus(args)
	case "text":
		return e.handleText(ctx, args)
	case "epson":
		return e.handleEpson(ctx, args)
	case "bitmap":
		return e.handleBitmap(ctx, args)
	case "barcode":
		return e.handleBarcode(ctx, args)
	case "qr":
		return e.handleQRCode(ctx, args)
	case "align":
		return e.handleAlign(ctx, args)
	case "size":
		return e.handleSize(ctx, args)
	case "bold":
		return e.handleBold(ctx, args)
	case "feed":
		return e.handleFeed(ctx, args)
	case "table":
		return e.handleTable(ctx, args)
	case "run":
		return e.handleRun(ctx, args)
	case "help":
		return e.handleHelp(args)
	default:
		return failure(fmt.Errorf("%w: unknown command: %s. Type 'help' for available commands",
			bridge.ErrInvalidArgument, command))
	}
}

// parseCommand parses a command string into parts, handling quoted strings
func parseCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	quoted := false
	quoteChar := byte(0)

	for i := 0; i < len(cmdStr); i++ {
		char := cmdStr[i]

		switch {
		case char == '"' || char == '\'':
			if !inQuotes {
				inQuotes = true
				quoted = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		case (char == ' ' || char == '\t') && !inQuotes:
			if current.Len() > 0 || quoted {
				parts = append(parts, current.String())
				current.Reset()
				quoted = false
			}
		default:
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 || quoted {
		parts = append(parts, current.String())
	}

	return parts
}
