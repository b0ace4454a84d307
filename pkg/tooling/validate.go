package tooling

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// ValidateArguments checks the JSON arguments of a function call against the
// JSON schema of its parameters. It covers the schema subset generated for
// event types: type, required, properties, additionalProperties, items, enum,
// anyOf and local $ref.
func ValidateArguments(arguments string, schema map[string]any) error {
	if !gjson.Valid(arguments) {
		return fmt.Errorf("arguments are not valid JSON")
	}
	root := gjson.Parse(arguments)
	if !root.IsObject() {
		return fmt.Errorf("arguments must be a JSON object")
	}
	if schema == nil {
		return nil
	}
	v := validator{root: schema}
	return v.validate(root, schema, "")
}

type validator struct {
	root map[string]any
}

func (v validator) validate(value gjson.Result, schema map[string]any, path string) error {
	if ref, ok := schema["$ref"].(string); ok {
		resolved, err := v.resolve(ref)
		if err != nil {
			return fmt.Errorf("%s: %w", name(path), err)
		}
		return v.validate(value, resolved, path)
	}

	if anyOf, ok := schema["anyOf"].([]any); ok {
		var reasons []string
		for _, option := range anyOf {
			sub, ok := option.(map[string]any)
			if !ok {
				continue
			}
			err := v.validate(value, sub, path)
			if err == nil {
				return nil
			}
			reasons = append(reasons, err.Error())
		}
		return fmt.Errorf("%s: no alternative matched (%s)", name(path), strings.Join(reasons, "; "))
	}

	if enum, ok := schema["enum"].([]any); ok && !inEnum(value, enum) {
		return fmt.Errorf("%s: %s is not one of %v", name(path), value.Raw, enum)
	}

	expected, _ := schema["type"].(string)
	if expected != "" {
		if err := checkType(value, expected); err != nil {
			return fmt.Errorf("%s: %w", name(path), err)
		}
	}

	switch {
	case value.IsObject():
		return v.validateObject(value, schema, path)
	case value.IsArray():
		items, ok := schema["items"].(map[string]any)
		if !ok {
			return nil
		}
		for i, item := range value.Array() {
			if err := v.validate(item, items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v validator) validateObject(value gjson.Result, schema map[string]any, path string) error {
	fields := value.Map()

	for _, req := range asStrings(schema["required"]) {
		if _, ok := fields[req]; !ok {
			return fmt.Errorf("missing required field: %s", join(path, req))
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	closed := schema["additionalProperties"] == false

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		prop, ok := properties[key].(map[string]any)
		if !ok {
			if closed {
				return fmt.Errorf("unexpected field: %s", join(path, key))
			}
			continue
		}
		if err := v.validate(fields[key], prop, join(path, key)); err != nil {
			return err
		}
	}
	return nil
}

func (v validator) resolve(ref string) (map[string]any, error) {
	for _, prefix := range []string{"#/$defs/", "#/definitions/"} {
		if !strings.HasPrefix(ref, prefix) {
			continue
		}
		defs, _ := v.root[strings.TrimSuffix(strings.TrimPrefix(prefix, "#/"), "/")].(map[string]any)
		def, ok := defs[strings.TrimPrefix(ref, prefix)].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unresolved reference %s", ref)
		}
		return def, nil
	}
	return nil, fmt.Errorf("unsupported reference %s", ref)
}

func checkType(value gjson.Result, expected string) error {
	ok := false
	switch expected {
	case "object":
		ok = value.IsObject()
	case "array":
		ok = value.IsArray()
	case "string":
		ok = value.Type == gjson.String
	case "number":
		ok = value.Type == gjson.Number
	case "integer":
		ok = value.Type == gjson.Number && math.Trunc(value.Num) == value.Num
	case "boolean":
		ok = value.Type == gjson.True || value.Type == gjson.False
	case "null":
		ok = value.Type == gjson.Null
	default:
		return fmt.Errorf("unsupported schema type %q", expected)
	}
	if !ok {
		return fmt.Errorf("expected %s but got %s", expected, value.Raw)
	}
	return nil
}

func inEnum(value gjson.Result, enum []any) bool {
	for _, e := range enum {
		switch ev := e.(type) {
		case string:
			if value.Type == gjson.String && value.Str == ev {
				return true
			}
		case nil:
			if value.Type == gjson.Null {
				return true
			}
		case bool:
			if (value.Type == gjson.True || value.Type == gjson.False) && value.Bool() == ev {
				return true
			}
		default:
			if value.Type == gjson.Number && fmt.Sprint(ev) == value.Raw {
				return true
			}
		}
	}
	return false
}

func asStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		var out []string
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func name(path string) string {
	if path == "" {
		return "arguments"
	}
	return path
}
