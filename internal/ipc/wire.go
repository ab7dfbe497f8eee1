package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/thereceipt/printer-bridge/internal/remote"
)

// Method names on the wire.
const (
	MethodPrintText      = "printText"
	MethodPrintEpson     = "printEpson"
	MethodPrintBitmap    = "printBitmap"
	MethodPrintBarCode   = "printBarCode"
	MethodPrintQRCode    = "printQRCode"
	MethodSetAlignment   = "setAlignment"
	MethodSetTextSize    = "setTextSize"
	MethodNextLine       = "nextLine"
	MethodSetTextBold    = "setTextBold"
	MethodPrintTableText = "printTableText"
)

// Request is a single remote call.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers the Request with the same ID. An empty Error is success.
type Response struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type textParams struct {
	Text string `json:"text"`
}

type epsonParams struct {
	Data []byte `json:"data"`
}

type bitmapParams struct {
	Bitmap *remote.Bitmap `json:"bitmap"`
}

type barcodeParams struct {
	Data      string `json:"data"`
	Symbology int    `json:"symbology"`
	Height    int    `json:"height"`
	Width     int    `json:"width"`
}

type qrParams struct {
	Data       string `json:"data"`
	ModuleSize int    `json:"module_size"`
	ErrorLevel int    `json:"error_level"`
}

type alignmentParams struct {
	Alignment int `json:"alignment"`
}

type textSizeParams struct {
	Size float32 `json:"size"`
}

type linesParams struct {
	Lines int `json:"lines"`
}

type boldParams struct {
	Bold bool `json:"bold"`
}

type tableParams struct {
	Text      []string `json:"text"`
	Weight    []int    `json:"weight"`
	Alignment []int    `json:"alignment"`
}

// NewRequest builds a request with a fresh ID.
func NewRequest(method string, params any) (Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s params: %w", method, err)
	}
	return Request{
		ID:     uuid.New().String(),
		Method: method,
		Params: raw,
	}, nil
}

// Dispatch decodes req and invokes the matching method on p.
func Dispatch(p remote.Printer, req Request) Response {
	resp := Response{ID: req.ID}
	if err := dispatch(p, req); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func dispatch(p remote.Printer, req Request) error {
	switch req.Method {
	case MethodPrintText:
		var params textParams
		if err := decodeParams(req, &params); err != nil {
			return err
		}
		return p.PrintText(params.Text)

	case MethodPrintEpson:
		var params epsonParams
		if err := decodeParams(req, &params); err != nil {
			return err
		}
		return p.PrintEpson(params.Data)

	case MethodPrintBitmap:
		var params bitmapParams
		if err := decodeParams(req, &params); err != nil {
			return err
		}
		if err := params.Bitmap.Validate(); err != nil {
			return err
		}
		return p.PrintBitmap(params.Bitmap)

	case MethodPrintBarCode:
		var params barcodeParams
		if err := decodeParams(req, &params); err != nil {
			return err
		}
		return p.PrintBarCode(params.Data, params.Symbology, params.Height, params.Width)

	case MethodPrintQRCode:
		var params qrParams
		if err := decodeParams(req, &params); err != nil {
			return err
		}
		return p.PrintQRCode(params.Data, params.ModuleSize, params.ErrorLevel)

	case MethodSetAlignment:
		var params alignmentParams
		if err := decodeParams(req, &params); err != nil {
			return err
		}
		return p.SetAlignment(params.Alignment)

	case MethodSetTextSize:
		var params textSizeParams
		if err := decodeParams(req, &params); err != nil {
			return err
		}
		return p.SetTextSize(params.Size)

	case MethodNextLine:
		var params linesParams
		if err := decodeParams(req, &params); err != nil {
			return err
		}
		return p.NextLine(params.Lines)

	case MethodSetTextBold:
		var params boldParams
		if err := decodeParams(req, &params); err != nil {
			return err
		}
		return p.SetTextBold(params.Bold)

	case MethodPrintTableText:
		var params tableParams
		if err := decodeParams(req, &params); err != nil {
			return err
		}
		return p.PrintTableText(params.Text, params.Weight, params.Alignment)

	default:
		return fmt.Errorf("unknown method: %s", req.Method)
	}
}

func decodeParams(req Request, v any) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("%s: missing params", req.Method)
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return fmt.Errorf("%s: invalid params: %w", req.Method, err)
	}
	return nil
}

// caller turns remote.Printer calls into requests for a transport.
type caller func(method string, params any) error

func (c caller) PrintText(text string) error {
	return c(MethodPrintText, textParams{Text: text})
}

func (c caller) PrintEpson(data []byte) error {
	return c(MethodPrintEpson, epsonParams{Data: data})
}

func (c caller) PrintBitmap(bmp *remote.Bitmap) error {
	return c(MethodPrintBitmap, bitmapParams{Bitmap: bmp})
}

func (c caller) PrintBarCode(data string, symbology, height, width int) error {
	return c(MethodPrintBarCode, barcodeParams{Data: data, Symbology: symbology, Height: height, Width: width})
}

func (c caller) PrintQRCode(data string, moduleSize, errorLevel int) error {
	return c(MethodPrintQRCode, qrParams{Data: data, ModuleSize: moduleSize, ErrorLevel: errorLevel})
}

func (c caller) SetAlignment(alignment int) error {
	return c(MethodSetAlignment, alignmentParams{Alignment: alignment})
}

func (c caller) SetTextSize(size float32) error {
	return c(MethodSetTextSize, textSizeParams{Size: size})
}

func (c caller) NextLine(lines int) error {
	return c(MethodNextLine, linesParams{Lines: lines})
}

func (c caller) SetTextBold(bold bool) error {
	return c(MethodSetTextBold, boldParams{Bold: bold})
}

func (c caller) PrintTableText(text []string, weight []int, alignment []int) error {
	return c(MethodPrintTableText, tableParams{Text: text, Weight: weight, Alignment: alignment})
}

var _ remote.Printer = caller(nil)
