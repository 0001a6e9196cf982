package component

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/directord/pkg/cache"
)

// renderTemplate applies brace-expansion over s using rt's argument
// cache: "{{name}}" is replaced by the cached string value of arg
// "name", or left untouched if no such arg is cached. This is the
// client-side interpolation pass spec.md §4.3 step 2 describes;
// orchestration-time interpolation (CLI-provided overrides) happens
// earlier, in pkg/orchestrate, and is not repeated here.
func renderTemplate(ctx context.Context, rt *Runtime, s string) string {
	if rt == nil || rt.Cache == nil || !strings.Contains(s, "{{") {
		return s
	}
	var out strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			out.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			out.WriteString(rest)
			break
		}
		end += start
		out.WriteString(rest[:start])
		name := strings.TrimSpace(rest[start+2 : end])
		var value string
		if ok, _ := rt.Cache.Get(ctx, cache.TagArgs, name, 0, &value); ok {
			out.WriteString(value)
		} else {
			out.WriteString(rest[start : end+2])
		}
		rest = rest[end+2:]
	}
	return out.String()
}

// argKey returns def[field] as a string, failing when the field is
// missing or is not a string. Built-ins use it for any required string
// field, cache keys among them.
func argKey(def map[string]any, field string) (string, error) {
	v, ok := def[field]
	if !ok {
		return "", fmt.Errorf("component: missing required field %q", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("component: field %q must be a string", field)
	}
	return s, nil
}
