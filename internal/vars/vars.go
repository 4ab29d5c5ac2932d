package vars

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vmforge/vmforge/internal/ir"
)

// ValidationError reports a variable whose value failed its validation rule.
type ValidationError struct {
	Variable string
	Value    any
	Rule     string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("variable %q: value %v failed validation %q", e.Variable, e.Value, e.Rule)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Resolve produces the final variable values for a run. Precedence,
// lowest to highest: declared defaults, var-files in the order given,
// then explicit CLI assignments. Every declared variable must end up
// with a value and pass its validation rule before any provider is
// touched.
func Resolve(cfg *ir.Config, cliVars map[string]string, varFiles []string) (map[string]any, error) {
	values := make(map[string]any, len(cfg.Variables))

	for _, v := range cfg.Variables {
		if v.Default != nil {
			values[v.Name] = v.Default
		}
	}

	for _, file := range varFiles {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read var-file %s: %w", file, err)
		}
		fileVars := make(map[string]any)
		if err := yaml.Unmarshal(data, &fileVars); err != nil {
			return nil, fmt.Errorf("failed to parse var-file %s: %w", file, err)
		}
		for name, val := range fileVars {
			values[name] = val
		}
	}

	for name, raw := range cliVars {
		values[name] = raw
	}

	validate := validator.New()
	for _, v := range cfg.Variables {
		raw, ok := values[v.Name]
		if !ok {
			return nil, fmt.Errorf("no value for required variable %q", v.Name)
		}

		coerced, err := coerce(v, raw)
		if err != nil {
			return nil, err
		}
		values[v.Name] = coerced

		if v.Validation == "" {
			continue
		}
		if err := validate.Var(coerced, v.Validation); err != nil {
			return nil, &ValidationError{Variable: v.Name, Value: coerced, Rule: v.Validation, Err: err}
		}
	}

	return values, nil
}

// coerce converts a raw value (possibly a CLI string) to the variable's
// declared type.
func coerce(v *ir.Variable, raw any) (any, error) {
	switch v.Type {
	case "", "string":
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", raw), nil
	case "number":
		switch val := raw.(type) {
		case int:
			return val, nil
		case int64:
			return int(val), nil
		case float64:
			return val, nil
		case string:
			if n, err := strconv.Atoi(val); err == nil {
				return n, nil
			}
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f, nil
			}
			return nil, fmt.Errorf("variable %q: %q is not a number", v.Name, val)
		default:
			return nil, fmt.Errorf("variable %q: %v is not a number", v.Name, raw)
		}
	case "bool":
		switch val := raw.(type) {
		case bool:
			return val, nil
		case string:
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, fmt.Errorf("variable %q: %q is not a bool", v.Name, val)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("variable %q: %v is not a bool", v.Name, raw)
		}
	case "list":
		switch val := raw.(type) {
		case []any:
			return val, nil
		case string:
			parts := strings.Split(val, ",")
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = strings.TrimSpace(p)
			}
			return out, nil
		default:
			return nil, fmt.Errorf("variable %q: %v is not a list", v.Name, raw)
		}
	case "map":
		if m, ok := raw.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("variable %q: %v is not a map", v.Name, raw)
	default:
		return nil, fmt.Errorf("variable %q: unknown type %q", v.Name, v.Type)
	}
}

const varPrefix = "${var."

// Interpolate substitutes resolved variable values into the configuration
// in place. A string that is exactly one ${var.x} token becomes the typed
// value; tokens embedded in longer strings are stringified. Count
// expressions driven by a variable are resolved to their numeric value.
func Interpolate(cfg *ir.Config, values map[string]any) error {
	for _, res := range cfg.Resources {
		substituted, err := substitute(res.Attributes, values)
		if err != nil {
			return fmt.Errorf("resource %s.%s: %w", res.Type, res.Name, err)
		}
		res.Attributes = substituted.(map[string]any)

		if res.CountVar != "" {
			raw, ok := values[res.CountVar]
			if !ok {
				return fmt.Errorf("resource %s.%s: count references unknown variable %q", res.Type, res.Name, res.CountVar)
			}
			n, err := toInt(raw)
			if err != nil {
				return fmt.Errorf("resource %s.%s: count variable %q: %w", res.Type, res.Name, res.CountVar, err)
			}
			res.Count = n
		}
	}

	for name, out := range cfg.Outputs {
		substituted, err := substitute(out.Value, values)
		if err != nil {
			return fmt.Errorf("output %s: %w", name, err)
		}
		out.Value = substituted
	}

	return nil
}

func substitute(v any, values map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return substituteString(val, values)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			sub, err := substitute(item, values)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			sub, err := substitute(item, values)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return v, nil
	}
}

func substituteString(s string, values map[string]any) (any, error) {
	// Exact single-token strings keep the variable's native type.
	if strings.HasPrefix(s, varPrefix) && strings.HasSuffix(s, "}") {
		inner := s[len(varPrefix) : len(s)-1]
		if !strings.ContainsAny(inner, "${}") {
			val, ok := values[inner]
			if !ok {
				return nil, fmt.Errorf("unknown variable %q", inner)
			}
			return val, nil
		}
	}

	result := s
	for {
		start := strings.Index(result, varPrefix)
		if start < 0 {
			return result, nil
		}
		end := strings.Index(result[start:], "}")
		if end < 0 {
			return nil, fmt.Errorf("unterminated variable reference in %q", s)
		}
		name := result[start+len(varPrefix) : start+end]
		val, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("unknown variable %q", name)
		}
		result = result[:start] + fmt.Sprintf("%v", val) + result[start+end+1:]
	}
}

func toInt(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case string:
		return strconv.Atoi(val)
	default:
		return 0, fmt.Errorf("%v is not a number", v)
	}
}
