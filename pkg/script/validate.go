package script

import (
	"fmt"
)

// Validate checks the version and every step's required fields.
func Validate(s *Script) error {
	if s.Version == "" {
		return fmt.Errorf("version is required")
	}
	if s.Version != Version {
		return fmt.Errorf("unsupported version: %s (expected %s)", s.Version, Version)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	for i := range s.Steps {
		if err := validateStep(&s.Steps[i]); err != nil {
			return fmt.Errorf("step[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(st *Step) error {
	switch st.Type {
	case "":
		return fmt.Errorf("step type is required")
	case StepText:
		if st.Value == "" {
			return fmt.Errorf("text step requires value")
		}
	case StepEpson, StepBitmap:
		return validateSource(st)
	case StepBarcode:
		if st.Value == "" {
			return fmt.Errorf("barcode step requires value")
		}
		if st.Format != "" {
			if _, ok := barcodeFormats[st.Format]; !ok {
				return fmt.Errorf("invalid barcode format '%s'", st.Format)
			}
		}
		if st.Height < 0 || st.Width < 0 {
			return fmt.Errorf("barcode height and width must not be negative")
		}
	case StepQRCode:
		if st.Value == "" {
			return fmt.Errorf("qrcode step requires value")
		}
		if st.ErrorCorrection != "" {
			if _, ok := errorLevels[st.ErrorCorrection]; !ok {
				return fmt.Errorf("invalid error_correction '%s' (must be L, M, Q, or H)", st.ErrorCorrection)
			}
		}
		if st.Size < 0 {
			return fmt.Errorf("qrcode size must not be negative")
		}
	case StepAlign:
		if _, ok := alignments[st.Align]; !ok {
			return fmt.Errorf("invalid align '%s' (must be left, center, or right)", st.Align)
		}
	case StepSize:
		if st.Points <= 0 {
			return fmt.Errorf("size step requires positive points")
		}
	case StepBold:
	case StepFeed:
		if st.Lines < 0 {
			return fmt.Errorf("feed lines must not be negative")
		}
	case StepTable:
		return validateTable(st)
	default:
		return fmt.Errorf("unknown step type: %s", st.Type)
	}
	return nil
}

func validateSource(st *Step) error {
	if st.Path == "" && st.Base64 == "" {
		return fmt.Errorf("%s step requires either path or base64", st.Type)
	}
	if st.Path != "" && st.Base64 != "" {
		return fmt.Errorf("%s step cannot have both path and base64", st.Type)
	}
	return nil
}

func validateTable(st *Step) error {
	if len(st.Columns) == 0 {
		return fmt.Errorf("table step requires columns")
	}
	if len(st.Weights) != len(st.Columns) || len(st.Alignments) != len(st.Columns) {
		return fmt.Errorf("table step has %d columns, %d weights, %d alignments",
			len(st.Columns), len(st.Weights), len(st.Alignments))
	}
	for i, a := range st.Alignments {
		if _, ok := alignments[a]; !ok {
			return fmt.Errorf("alignments[%d]: invalid align '%s'", i, a)
		}
	}
	return nil
}
