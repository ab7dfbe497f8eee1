package script

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

// Target is the printer surface a script drives.
type Target interface {
	PrintText(ctx context.Context, text string) error
	PrintEpsonFromBase64(ctx context.Context, encoded string) error
	PrintBitmapFromBase64(ctx context.Context, image string) error
	PrintBarCode(ctx context.Context, data string, symbology, height, width int) error
	PrintQRCode(ctx context.Context, data string, moduleSize, errorLevel int) error
	SetAlignment(ctx context.Context, alignment int) error
	SetTextSize(ctx context.Context, points float64) error
	NextLine(ctx context.Context, lines int) error
	SetTextBold(ctx context.Context, bold bool) error
	PrintTableRow(ctx context.Context, text []string, weight, alignment []int) error
}

// StepError reports the step that stopped a run.
type StepError struct {
	Index int
	Type  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Type, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Run executes the steps in order and stops at the first failure, which is
// returned as a *StepError. A cancelled ctx stops the run before the next
// step.
func Run(ctx context.Context, t Target, s *Script) error {
	for i := range s.Steps {
		st := &s.Steps[i]
		if err := ctx.Err(); err != nil {
			return &StepError{Index: i, Type: st.Type, Err: err}
		}
		if err := s.runStep(ctx, t, st); err != nil {
			return &StepError{Index: i, Type: st.Type, Err: err}
		}
	}
	return nil
}

func (s *Script) runStep(ctx context.Context, t Target, st *Step) error {
	switch st.Type {
	case StepText:
		return t.PrintText(ctx, st.Value)
	case StepEpson:
		encoded, err := s.source(st)
		if err != nil {
			return err
		}
		return t.PrintEpsonFromBase64(ctx, encoded)
	case StepBitmap:
		encoded, err := s.source(st)
		if err != nil {
			return err
		}
		return t.PrintBitmapFromBase64(ctx, encoded)
	case StepBarcode:
		format := st.Format
		if format == "" {
			format = defaultBarcodeFormat
		}
		return t.PrintBarCode(ctx, st.Value, barcodeFormats[format], st.Height, st.Width)
	case StepQRCode:
		level := errorLevels["M"]
		if st.ErrorCorrection != "" {
			level = errorLevels[st.ErrorCorrection]
		}
		return t.PrintQRCode(ctx, st.Value, st.Size, level)
	case StepAlign:
		return t.SetAlignment(ctx, alignments[st.Align])
	case StepSize:
		return t.SetTextSize(ctx, st.Points)
	case StepBold:
		return t.SetTextBold(ctx, st.Bold)
	case StepFeed:
		lines := st.Lines
		if lines == 0 {
			lines = 1
		}
		return t.NextLine(ctx, lines)
	case StepTable:
		aligns := make([]int, len(st.Alignments))
		for i, a := range st.Alignments {
			aligns[i] = alignments[a]
		}
		return t.PrintTableRow(ctx, st.Columns, st.Weights, aligns)
	default:
		return fmt.Errorf("unknown step type: %s", st.Type)
	}
}

// source returns the step's payload as base64, reading Path when set.
func (s *Script) source(st *Step) (string, error) {
	if st.Base64 != "" {
		return st.Base64, nil
	}

	path := st.Path
	if !filepath.IsAbs(path) && s.dir != "" {
		path = filepath.Join(s.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", st.Path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
