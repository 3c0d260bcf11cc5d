package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// ParseGeneric accepts a JSON array of objects, an object wrapping such an
// array under "results" or "findings", or one JSON object per line.
func ParseGeneric(output []byte) ([]RawFinding, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var items []GenericFinding
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to parse generic findings: %w", err)
		}
		return toRaw(items), nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var items []GenericFinding
	for {
		var obj map[string]any
		if err := dec.Decode(&obj); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to parse generic findings: %w", err)
		}

		if wrapped, ok := unwrapList(obj); ok {
			items = append(items, wrapped...)
			continue
		}
		items = append(items, GenericFinding(obj))
	}
	return toRaw(items), nil
}

func unwrapList(obj map[string]any) ([]GenericFinding, bool) {
	for _, key := range []string{"results", "findings"} {
		list, ok := obj[key].([]any)
		if !ok {
			continue
		}
		out := make([]GenericFinding, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, GenericFinding(m))
			}
		}
		return out, true
	}
	return nil, false
}

func toRaw(items []GenericFinding) []RawFinding {
	out := make([]RawFinding, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}
