// Package jsonpath resolves dotted paths such as
// "results.transcripts[0].transcript" against decoded JSON.
package jsonpath

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a path does not resolve to a value.
var ErrNotFound = errors.New("jsonpath: value not found")

// segment is one dotted component: an optional object key followed by zero
// or more array indexes.
type segment struct {
	key  string
	idxs []int
}

// Extract decodes body and returns the scalar at path as a string.
func Extract(body []byte, path string) (string, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return "", fmt.Errorf("jsonpath: decode: %w", err)
	}
	v, err := Lookup(root, path)
	if err != nil {
		return "", err
	}
	s, ok := scalarString(v)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a scalar", ErrNotFound, path)
	}
	return s, nil
}

// Lookup walks root along path.
func Lookup(root any, path string) (any, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	cur := root
	for _, seg := range segs {
		if seg.key != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %q is not an object", ErrNotFound, seg.key)
			}
			next, exists := m[seg.key]
			if !exists {
				return nil, fmt.Errorf("%w: missing key %q", ErrNotFound, seg.key)
			}
			cur = next
		}
		for _, idx := range seg.idxs {
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, fmt.Errorf("%w: index %d out of range", ErrNotFound, idx)
			}
			cur = arr[idx]
		}
	}
	return cur, nil
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10), true
		}
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}

func parsePath(path string) ([]segment, error) {
	if path == "" {
		return nil, errors.New("jsonpath: empty path")
	}
	parts := strings.Split(path, ".")
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// parseSegment parses "foo[0][1]", "[0]" or "bar".
func parseSegment(token string) (segment, error) {
	if token == "" {
		return segment{}, errors.New("jsonpath: empty segment")
	}
	br := strings.IndexByte(token, '[')
	if br == -1 {
		return segment{key: token}, nil
	}
	seg := segment{key: token[:br]}
	rest := token[br:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			return segment{}, fmt.Errorf("jsonpath: invalid index syntax in %q", token)
		}
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			return segment{}, fmt.Errorf("jsonpath: missing ] in %q", token)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return segment{}, fmt.Errorf("jsonpath: invalid index %q in %q", rest[1:end], token)
		}
		seg.idxs = append(seg.idxs, n)
		rest = rest[end+1:]
	}
	return seg, nil
}
