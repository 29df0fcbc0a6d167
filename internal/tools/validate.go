package tools

import (
	"errors"
	"fmt"
	"math"
)

// validateArgs checks decoded arguments against a tool's JSON-schema
// parameter spec: required properties must be present, known properties must
// match their declared primitive type, and unknown properties are rejected
// when the schema sets additionalProperties to false. All violations are
// collected into one joined error so the model sees every problem at once.
//
// This is deliberately not a full JSON-schema validator — presence and
// primitive types catch the malformed calls models actually produce, and
// anything subtler is the handler's own business.
func validateArgs(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}

	props, _ := schema["properties"].(map[string]any)

	var errs []error

	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			name, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := args[name]; !present {
				errs = append(errs, fmt.Errorf("missing required property %q", name))
			}
		}
	}

	if additional, ok := schema["additionalProperties"].(bool); ok && !additional {
		for name := range args {
			if _, known := props[name]; !known {
				errs = append(errs, fmt.Errorf("unknown property %q", name))
			}
		}
	}

	for name, value := range args {
		propSchema, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		declared, ok := propSchema["type"].(string)
		if !ok {
			continue
		}
		if err := checkType(name, declared, value); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// checkType verifies a single value against a declared primitive JSON type.
// Non-primitive declarations (object, array) are left to the handler.
func checkType(name, declared string, value any) error {
	switch declared {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("property %q must be a string, got %T", name, value)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("property %q must be a number, got %T", name, value)
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("property %q must be an integer, got %v", name, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("property %q must be a boolean, got %T", name, value)
		}
	case "null":
		if value != nil {
			return fmt.Errorf("property %q must be null, got %T", name, value)
		}
	}
	return nil
}
