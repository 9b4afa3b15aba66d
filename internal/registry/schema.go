package registry

import (
	"fmt"
	"math"
	"reflect"

	"github.com/forgebridge/forgebridge/internal/protocol"
)

// validateValue checks a decoded JSON value against a schema fragment. The
// validator is deliberately closed-world: enum, type, object
// properties/required/additionalProperties, and array
// items/minItems/maxItems. Tool schemas must not use anything else.
func validateValue(value any, schema map[string]any, path string) *protocol.Diagnostic {
	if enum, ok := schema["enum"].([]any); ok {
		matched := false
		for _, allowed := range enum {
			if reflect.DeepEqual(value, allowed) {
				matched = true
				break
			}
		}
		if !matched {
			return schemaError(fmt.Sprintf("value at %s is not one of the allowed values", path), path)
		}
	}

	schemaType, _ := schema["type"].(string)
	switch schemaType {
	case "":
		return nil
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return schemaError(fmt.Sprintf("value at %s must be an object", path), path)
		}
		return validateObject(obj, schema, path)
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return schemaError(fmt.Sprintf("value at %s must be an array", path), path)
		}
		return validateArray(arr, schema, path)
	case "string":
		if _, ok := value.(string); !ok {
			return schemaError(fmt.Sprintf("value at %s must be a string", path), path)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return schemaError(fmt.Sprintf("value at %s must be a number", path), path)
		}
	case "integer":
		num, ok := value.(float64)
		if !ok || num != math.Trunc(num) {
			return schemaError(fmt.Sprintf("value at %s must be an integer", path), path)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return schemaError(fmt.Sprintf("value at %s must be a boolean", path), path)
		}
	case "null":
		if value != nil {
			return schemaError(fmt.Sprintf("value at %s must be null", path), path)
		}
	default:
		return schemaError(fmt.Sprintf("schema at %s uses unsupported type %q", path, schemaType), path)
	}
	return nil
}

func validateObject(obj map[string]any, schema map[string]any, path string) *protocol.Diagnostic {
	if required, ok := schema["required"].([]any); ok {
		for _, entry := range required {
			name, _ := entry.(string)
			if _, present := obj[name]; !present {
				return schemaError(fmt.Sprintf("missing required field %s.%s", path, name), path)
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	if additional, ok := schema["additionalProperties"].(bool); ok && !additional {
		for key := range obj {
			if _, known := properties[key]; !known {
				return schemaError(fmt.Sprintf("unexpected field %s.%s", path, key), path)
			}
		}
	}

	for key, val := range obj {
		propSchema, ok := properties[key].(map[string]any)
		if !ok {
			continue
		}
		if d := validateValue(val, propSchema, path+"."+key); d != nil {
			return d
		}
	}
	return nil
}

func validateArray(arr []any, schema map[string]any, path string) *protocol.Diagnostic {
	if min, ok := schema["minItems"].(float64); ok && len(arr) < int(min) {
		return schemaError(fmt.Sprintf("array at %s needs at least %d items", path, int(min)), path)
	}
	if max, ok := schema["maxItems"].(float64); ok && len(arr) > int(max) {
		return schemaError(fmt.Sprintf("array at %s allows at most %d items", path, int(max)), path)
	}
	items, ok := schema["items"].(map[string]any)
	if !ok {
		return nil
	}
	for i, val := range arr {
		if d := validateValue(val, items, fmt.Sprintf("%s[%d]", path, i)); d != nil {
			return d
		}
	}
	return nil
}

func schemaError(message, path string) *protocol.Diagnostic {
	d := protocol.Errorf(protocol.CodeSchemaInvalidParams, message)
	d.Detail = path
	return &d
}
