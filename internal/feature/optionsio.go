package feature

import (
	"encoding/json"
	"fmt"
	"os"
)

// OptionsFile bundles the two option records for persistence, so a
// pipeline run can be reproduced from a single JSON file.
type OptionsFile struct {
	Extraction ExtractionOptions `json:"extraction"`
	Matching   MatchingOptions   `json:"matching"`
}

// SaveOptions writes the options to a JSON file.
func SaveOptions(path string, opts OptionsFile) error {
	data, err := json.MarshalIndent(opts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write options file: %w", err)
	}
	return nil
}

// LoadOptions reads options from a JSON file and validates them. Fields
// absent from the file keep their defaults.
func LoadOptions(path string) (OptionsFile, error) {
	opts := OptionsFile{
		Extraction: DefaultExtractionOptions(),
		Matching:   DefaultMatchingOptions(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("failed to read options file: %w", err)
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse options file: %w", err)
	}
	if err := opts.Extraction.Check(); err != nil {
		return opts, fmt.Errorf("invalid extraction options: %w", err)
	}
	if err := opts.Matching.Check(); err != nil {
		return opts, fmt.Errorf("invalid matching options: %w", err)
	}
	return opts, nil
}
