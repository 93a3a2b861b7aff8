package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// ArgumentError reports arguments that do not satisfy a tool's schema.
type ArgumentError struct {
	Tool     string
	Missing  []string
	Problems []string
}

func (e *ArgumentError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required parameter(s): "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return strings.Join(parts, "; ")
}

// Coerce checks args against the definition and converts loosely typed values
// into the declared types: numeric strings become integers, "true"/"false" and
// 0/1 become booleans, numbers become strings. Unknown keys are dropped and
// defaults fill absent optional params. Blank strings count as missing.
func (d Definition) Coerce(args Arguments) (Arguments, error) {
	out := make(Arguments, len(d.Params))
	argErr := &ArgumentError{Tool: d.Name}

	for _, p := range d.Params {
		v, present := args[p.Name]
		absent := !present || v == nil || (isBlank(v) && (p.Required || p.Type != TypeString))
		if absent {
			if p.Required {
				argErr.Missing = append(argErr.Missing, p.Name)
			} else if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}

		cv, err := coerceValue(v, p.Type)
		if err != nil {
			argErr.Problems = append(argErr.Problems, fmt.Sprintf("%s: %v", p.Name, err))
			continue
		}
		out[p.Name] = cv
	}

	if len(argErr.Missing) > 0 || len(argErr.Problems) > 0 {
		return nil, argErr
	}
	return out, nil
}

func isBlank(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func coerceValue(v any, t ParamType) (any, error) {
	switch t {
	case TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(x), nil
		case bool:
			return strconv.FormatBool(x), nil
		case json.Number:
			return x.String(), nil
		}
	case TypeInteger:
		switch x := v.(type) {
		case int:
			return x, nil
		case int64:
			return int(x), nil
		case float64:
			if x == math.Trunc(x) {
				return int(x), nil
			}
			return nil, fmt.Errorf("expected an integer, got %v", x)
		case json.Number:
			n, err := x.Int64()
			if err != nil {
				return nil, fmt.Errorf("expected an integer, got %q", x.String())
			}
			return int(n), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("expected an integer, got %q", x)
			}
			return n, nil
		}
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case float64:
			if x == 0 || x == 1 {
				return x == 1, nil
			}
		case int:
			if x == 0 || x == 1 {
				return x == 1, nil
			}
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("expected a boolean, got %q", x)
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected a boolean, got %v", v)
	default:
		return nil, fmt.Errorf("unsupported parameter type %q", t)
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}

// OpenAIFunction renders the definition in the chat-completions function schema.
func (d Definition) OpenAIFunction() openai.FunctionDefinition {
	props := make(map[string]jsonschema.Definition, len(d.Params))
	var required []string
	for _, p := range d.Params {
		desc := p.Description
		if p.Default != nil {
			desc = fmt.Sprintf("%s (default: %v)", desc, p.Default)
		}
		props[p.Name] = jsonschema.Definition{
			Type:        jsonschema.DataType(p.Type),
			Description: desc,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return openai.FunctionDefinition{
		Name:        d.Name,
		Description: d.Description,
		Parameters: jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: props,
			Required:   required,
		},
	}
}
