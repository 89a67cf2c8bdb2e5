package carepulse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFieldNotFound is returned by [ValueAt] when the path does not resolve.
var ErrFieldNotFound = errors.New("field not found")

// ValueAt extracts the card value at path from a JSON payload.
//
// The path uses dot notation; numeric parts index into arrays. For example,
// "data.0.count" navigates to {"data": [{"count": 12}]}.
//
// The resolved value maps to a card value:
//   - numbers are returned as [json.Number] so large counts keep precision
//   - strings, booleans and null are returned as decoded
//   - arrays are returned as their length, so a list endpoint counts rows
//   - objects are an error; point the path at a field inside
//
// An empty path applies the same rules to the whole payload.
//
// Example:
//
//	// For response: {"total": 1204, "insured": 980}
//	v, err := carepulse.ValueAt(body, "insured") // json.Number("980")
func ValueAt(data []byte, path string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var parts []string
	if path != "" {
		parts = strings.Split(path, ".")
	}

	current, err := extractJSONPath(root, parts)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}

	switch v := current.(type) {
	case []any:
		return len(v), nil
	case map[string]any:
		return nil, fmt.Errorf("%q: value is an object", path)
	default:
		return v, nil
	}
}

// extractJSONPath walks a decoded JSON structure using dot notation parts.
func extractJSONPath(data any, parts []string) (any, error) {
	current := data

	for i, part := range parts {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("%w at %q", ErrFieldNotFound, strings.Join(parts[:i+1], "."))
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("%w at %q", ErrFieldNotFound, strings.Join(parts[:i+1], "."))
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("%w at %q", ErrFieldNotFound, strings.Join(parts[:i+1], "."))
		}
	}
	return current, nil
}
