package orchestrate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/cuemby/directord/pkg/component"
	"github.com/cuemby/directord/pkg/types"
)

// bindJobSpec turns a job entry's value (inline string or dict) into a
// JobDefinition, applying overrides to string fields along the way.
func bindJobSpec(spec component.ArgsSpec, value any, overrides map[string]string) (*types.JobDefinition, error) {
	def := &types.JobDefinition{Fields: map[string]any{}}

	switch v := value.(type) {
	case string:
		if err := bindInline(def, spec, interpolate(v, overrides)); err != nil {
			return nil, err
		}
	case map[string]any:
		if err := bindDict(def, spec, v, overrides); err != nil {
			return nil, err
		}
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		if err := bindDict(def, spec, m, overrides); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("job entry value must be a string or mapping, got %T", value)
	}
	return def, nil
}

// bindInline implements the inline form: RUN-style components whose
// ArgsSpec is Raw take the whole string verbatim; every other
// component's string is POSIX-tokenized (preserving quotes) and bound
// positionally, then by --flag[=value] and --flag value.
func bindInline(def *types.JobDefinition, spec component.ArgsSpec, s string) error {
	if spec.Raw {
		if len(spec.Positional) == 0 {
			return fmt.Errorf("component declares Raw inline form but no positional field")
		}
		def.Fields[spec.Positional[0]] = s
		return nil
	}

	tokens, err := tokenize(s)
	if err != nil {
		return fmt.Errorf("tokenize: %w", err)
	}

	posIdx := 0
	for i := 0; i < len(tokens); {
		tok := tokens[i]
		if strings.HasPrefix(tok, "--") {
			name := strings.TrimPrefix(tok, "--")
			if eq := strings.IndexByte(name, '='); eq >= 0 {
				assignField(def, name[:eq], name[eq+1:])
				i++
				continue
			}
			if i+1 >= len(tokens) {
				return fmt.Errorf("flag --%s missing a value", name)
			}
			assignField(def, name, tokens[i+1])
			i += 2
			continue
		}
		if posIdx >= len(spec.Positional) {
			return fmt.Errorf("unexpected positional argument %q", tok)
		}
		def.Fields[spec.Positional[posIdx]] = tok
		posIdx++
		i++
	}
	return nil
}

// assignField routes a bound --flag to the job's common fields when
// its name matches one of spec.md §3's reserved keys, and to the
// verb-specific Fields map otherwise.
func assignField(def *types.JobDefinition, name, value string) {
	if setCommonField(def, name, value) {
		return
	}
	def.Fields[name] = value
}

// bindDict implements the dict form: a mapping whose "vars" key holds
// verb-specific fields directly (bypassing tokenization) and whose
// other keys are spec.md §3's common job fields.
func bindDict(def *types.JobDefinition, spec component.ArgsSpec, m map[string]any, overrides map[string]string) error {
	for k, v := range m {
		if k == "vars" {
			vars, ok := v.(map[string]any)
			if !ok {
				return fmt.Errorf("vars must be a mapping, got %T", v)
			}
			for name, val := range vars {
				if s, ok := val.(string); ok {
					val = interpolate(s, overrides)
				}
				def.Fields[name] = val
			}
			continue
		}
		if s, ok := v.(string); ok {
			v = interpolate(s, overrides)
		}
		if setCommonFieldAny(def, k, v) {
			continue
		}
		def.Fields[k] = v
	}
	return nil
}

func setCommonField(def *types.JobDefinition, name, value string) bool {
	switch name {
	case "timeout_seconds":
		n, err := strconv.Atoi(value)
		if err == nil {
			def.TimeoutSeconds = n
		}
		return true
	case "skip_cache":
		def.SkipCache = value == "true"
		return true
	case "run_once":
		def.RunOnce = value == "true"
		return true
	case "stdout_arg":
		def.StdoutArg = value
		return true
	case "parent_async_bypass":
		def.ParentAsyncBypass = value == "true"
		return true
	case "no_block":
		def.NoBlock = value == "true"
		return true
	case "targets":
		def.Targets = append(def.Targets, value)
		return true
	case "restrict":
		def.Restrict = append(def.Restrict, value)
		return true
	default:
		return false
	}
}

func setCommonFieldAny(def *types.JobDefinition, name string, value any) bool {
	switch name {
	case "timeout_seconds":
		def.TimeoutSeconds = toInt(value)
		return true
	case "skip_cache":
		def.SkipCache = toBool(value)
		return true
	case "run_once":
		def.RunOnce = toBool(value)
		return true
	case "stdout_arg":
		def.StdoutArg, _ = value.(string)
		return true
	case "parent_async_bypass":
		def.ParentAsyncBypass = toBool(value)
		return true
	case "no_block":
		def.NoBlock = toBool(value)
		return true
	case "targets":
		def.Targets = toStringSlice(value)
		return true
	case "restrict":
		def.Restrict = toStringSlice(value)
		return true
	case "extend_args":
		if m, ok := value.(map[string]any); ok {
			def.ExtendArgs = make(map[string]string, len(m))
			for k, v := range m {
				def.ExtendArgs[k] = fmt.Sprintf("%v", v)
			}
		}
		return true
	default:
		return false
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	default:
		return nil
	}
}

// tokenize splits s with POSIX word-splitting rules, preserving quoted
// strings, matching the orchestration DSL's inline-form contract.
func tokenize(s string) ([]string, error) {
	return shellwords.Parse(s)
}

// interpolate applies "{{name}}" substitution over s using the
// submitter's known overrides (CLI-provided template variables),
// leaving any unmatched placeholder untouched for later client-side
// resolution against the argument cache.
func interpolate(s string, overrides map[string]string) string {
	if len(overrides) == 0 || !strings.Contains(s, "{{") {
		return s
	}
	out := s
	for k, v := range overrides {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
