package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats shared by folders and process
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (must be 'text', 'json' or 'yaml')", format)
	}
}

// writeOutput renders v as JSON or YAML, or calls text for the text format.
func writeOutput(w io.Writer, format string, v interface{}, text func(io.Writer)) error {
	switch strings.ToLower(format) {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to create YAML output: %w", err)
		}
		return enc.Close()
	default:
		text(w)
	}
	return nil
}
