package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrFieldNotFound is returned when a path does not resolve to a value.
var ErrFieldNotFound = errors.New("client: field not found")

// ResponseParser provides utilities for parsing HTTP responses.
type ResponseParser struct{}

// NewResponseParser creates a new response parser.
func NewResponseParser() *ResponseParser {
	return &ResponseParser{}
}

// JSONPath extracts a value from JSON using a simplified JSONPath expression:
// dotted field names with optional [N] array indices, e.g. "$.collection[0].productId".
func (p *ResponseParser) JSONPath(data []byte, path string) (any, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return p.Lookup(doc, path)
}

// Lookup resolves path against an already decoded JSON value.
func (p *ResponseParser) Lookup(doc any, path string) (any, error) {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return nil, errors.New("client: empty JSONPath")
	}

	current := doc
	for part := range strings.SplitSeq(path, ".") {
		fieldName, indexStr, hasIndex := strings.Cut(part, "[")

		if fieldName != "" {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldName)
			}
			v, ok := m[fieldName]
			if !ok || v == nil {
				return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldName)
			}
			current = v
		}

		if hasIndex {
			index, err := strconv.Atoi(strings.TrimSuffix(indexStr, "]"))
			if err != nil {
				return nil, fmt.Errorf("invalid array index: %s", indexStr)
			}
			arr, ok := current.([]any)
			if !ok || index < 0 || index >= len(arr) {
				return nil, fmt.Errorf("array index out of bounds: %d", index)
			}
			current = arr[index]
		}
	}

	return current, nil
}

// ExtractInt extracts an integer value using JSONPath.
// Numbers with a fractional part are rejected.
func (p *ResponseParser) ExtractInt(data []byte, path string) (int, error) {
	value, err := p.JSONPath(data, path)
	if err != nil {
		return 0, err
	}
	return AsInt(value)
}

// ExtractArray extracts an array value using JSONPath.
func (p *ResponseParser) ExtractArray(data []byte, path string) ([]any, error) {
	value, err := p.JSONPath(data, path)
	if err != nil {
		return nil, err
	}

	arr, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("value is not an array: %T", value)
	}
	return arr, nil
}

// maxExactInt is the largest integer a float64 represents exactly.
const maxExactInt = 1 << 53

// AsInt converts a decoded JSON scalar to an int. Numbers beyond the exact
// float64 integer range are rejected.
func AsInt(value any) (int, error) {
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		if v < -maxExactInt || v > maxExactInt {
			return 0, fmt.Errorf("integer out of range: %v", v)
		}
		return int(v), nil
	case int:
		return v, nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", value)
	}
}
