package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Parse reads a script in JSON or YAML and validates it. Input starting
// with '{' is treated as JSON.
func Parse(data []byte) (*Script, error) {
	var s Script

	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("failed to parse script: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(trimmed))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("failed to parse script: %w", err)
		}
	}

	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseFile parses a script from disk. Relative step paths are resolved
// against the script's directory.
func ParseFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// ToJSON renders the script as indented JSON.
func (s *Script) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
