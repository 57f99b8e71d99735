package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadGenerationConfig reads a generation request from a YAML or JSON file.
// The format is chosen by extension; anything other than .json is parsed as
// YAML. The result is validated before it is returned.
func LoadGenerationConfig(path string) (*GenerationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file %s: %w", path, err)
	}

	req, err := ParseGenerationConfig(data, strings.ToLower(filepath.Ext(path)) == ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to parse request file %s: %w", path, err)
	}
	return req, nil
}

// ParseGenerationConfig decodes and validates a generation request.
func ParseGenerationConfig(data []byte, isJSON bool) (*GenerationConfig, error) {
	var req GenerationConfig
	if isJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return nil, err
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&req); err != nil {
			return nil, err
		}
	}

	if req.Settings.NumRecords == 0 {
		req.Settings.NumRecords = DefaultNumRecords
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// DefaultNumRecords matches the backend default when num_records is omitted
const DefaultNumRecords = 1000
