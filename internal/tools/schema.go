package tools

import (
	"encoding/json"
	"math"

	"github.com/RobinCoderZhao/play-console-mcp/internal/playapi"
)

// FieldType is the set of primitive argument types tools declare.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
)

// Field declares one argument of a tool's input schema. Declaration order is
// validation order, so the first offending field reported is deterministic.
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Description string
}

// Args is the decoded argument map of one invocation.
type Args map[string]any

// Has reports whether the argument was supplied (and not JSON null).
func (a Args) Has(name string) bool {
	v, ok := a[name]
	return ok && v != nil
}

// String returns the string argument, or "" when absent.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns the integer argument, or def when absent. JSON numbers decode
// as float64, so both representations are accepted.
func (a Args) Int(name string, def int) int {
	switch v := a[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// Bool returns the boolean argument, or def when absent.
func (a Args) Bool(name string, def bool) bool {
	if v, ok := a[name].(bool); ok {
		return v
	}
	return def
}

// validateArgs checks required presence and primitive types in declaration
// order, returning a validation error naming the first offending field.
func validateArgs(fields []Field, args Args) *playapi.Error {
	for _, f := range fields {
		v, ok := args[f.Name]
		if !ok || v == nil {
			if f.Required {
				return playapi.Validationf(f.Name, "missing required field")
			}
			continue
		}
		switch f.Type {
		case TypeString:
			if _, ok := v.(string); !ok {
				return playapi.Validationf(f.Name, "expected a string")
			}
		case TypeInteger:
			if !isInteger(v) {
				return playapi.Validationf(f.Name, "expected an integer")
			}
		case TypeBoolean:
			if _, ok := v.(bool); !ok {
				return playapi.Validationf(f.Name, "expected a boolean")
			}
		}
	}
	return nil
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int64:
		return true
	case float64:
		return n == math.Trunc(n)
	case json.Number:
		_, err := n.Int64()
		return err == nil
	}
	return false
}

// inputSchema renders the declared fields as a JSON Schema object for
// tools/list introspection.
func inputSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := []string{}
	for _, f := range fields {
		props[f.Name] = map[string]any{
			"type":        string(f.Type),
			"description": f.Description,
		}
		if f.Required {
			required = append(required, f.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
