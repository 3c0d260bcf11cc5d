package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	optional "github.com/moznion/go-optional"

	"scanhub/internal/models"
)

var cwePattern = regexp.MustCompile(`(?i)^\s*(?:cwe[-_ :]?)?(\d+)\b`)

// textOf accepts a plain string or an object carrying the text under
// "text", "value" or "markdown".
func textOf(v any) optional.Option[string] {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return optional.Some(s)
		}
	case map[string]any:
		for _, key := range []string{"text", "value", "markdown"} {
			if s := textOf(t[key]); s.IsSome() {
				return s
			}
		}
	}
	return optional.None[string]()
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func intOf(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(t))
		return n
	}
	return 0
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstText(m map[string]any, keys ...string) optional.Option[string] {
	for _, k := range keys {
		if s := textOf(m[k]); s.IsSome() {
			return s
		}
	}
	return optional.None[string]()
}

// locationOf reconciles the location shapes seen in tool output:
//
//	{"file": "a.c", "line": 3, "column": 1}
//	{"location": {"file": "a.c", "line": 3}}
//	{"path": "a.c", "start": {"line": 3, "col": 1}}
//	{"locations": [{"physicalLocation": {"artifactLocation": {"uri": "a.c"}, "region": {"startLine": 3}}}]}
func locationOf(m map[string]any) optional.Option[models.Location] {
	if file := firstString(m, "file", "path", "filename", "filePath", "uri"); file != "" {
		loc := models.Location{File: file}
		loc.Line = intOf(m["line"])
		if loc.Line == 0 {
			loc.Line = intOf(m["line_number"])
		}
		loc.Column = intOf(m["column"])
		if loc.Column == 0 {
			loc.Column = intOf(m["col"])
		}
		if start, ok := m["start"].(map[string]any); ok && loc.Line == 0 {
			loc.Line = intOf(start["line"])
			loc.Column = intOf(start["col"])
		}
		return optional.Some(loc)
	}

	if nested, ok := m["location"].(map[string]any); ok {
		if loc := locationOf(nested); loc.IsSome() {
			return loc
		}
	}

	if list, ok := m["locations"].([]any); ok && len(list) > 0 {
		if first, ok := list[0].(map[string]any); ok {
			if loc := locationOf(first); loc.IsSome() {
				return loc
			}
		}
	}

	if phys, ok := m["physicalLocation"].(map[string]any); ok {
		artifact, _ := phys["artifactLocation"].(map[string]any)
		region, _ := phys["region"].(map[string]any)
		if file := stringOf(artifact["uri"]); file != "" {
			return optional.Some(models.Location{
				File:   strings.TrimPrefix(file, "file://"),
				Line:   intOf(region["startLine"]),
				Column: intOf(region["startColumn"]),
			})
		}
	}

	return optional.None[models.Location]()
}

// cweOf normalizes "CWE-120", "CWE-120: Buffer Copy", "120", 120 and lists of
// those to "CWE-120".
func cweOf(v any) optional.Option[string] {
	switch t := v.(type) {
	case string:
		if m := cwePattern.FindStringSubmatch(t); m != nil {
			return optional.Some("CWE-" + m[1])
		}
	case float64:
		if t > 0 {
			return optional.Some(fmt.Sprintf("CWE-%d", int(t)))
		}
	case int:
		if t > 0 {
			return optional.Some(fmt.Sprintf("CWE-%d", t))
		}
	case []any:
		for _, e := range t {
			if c := cweOf(e); c.IsSome() {
				return c
			}
		}
	case []string:
		for _, e := range t {
			if c := cweOf(e); c.IsSome() {
				return c
			}
		}
	}
	return optional.None[string]()
}

func stringsOf(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, e := range t {
			if s := stringOf(e); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
