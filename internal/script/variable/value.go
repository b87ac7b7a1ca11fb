package variable

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Type helpers
// ---------------------------------------------------------------------------

// ToFloat converts int64, float64, bool, or a numeric string to float64.
func ToFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case int64:
		return float64(val), nil
	case int:
		return float64(val), nil
	case float64:
		return val, nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string %q to float: %w", val, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %s to float", TypeName(v))
	}
}

// ToInt converts int64, float64 (truncating), or a numeric string to int64.
// Strings holding a decimal number are accepted and truncated.
func ToInt(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case float64:
		return int64(val), nil
	case string:
		s := strings.TrimSpace(val)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string %q to int: %w", val, err)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("cannot convert %s to int", TypeName(v))
	}
}

// ToString converts any value to the text used in interpolation and
// argument lists. nil becomes the empty string.
func ToString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Display formats a value for log lines; unlike ToString it shows nil.
func Display(v interface{}) string {
	if v == nil {
		return "null"
	}
	return ToString(v)
}

// ToBool returns the truthiness of a value.
// Truthy: non-zero numbers, non-empty strings, true, non-empty arrays/maps.
func ToBool(v interface{}) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0
	case string:
		return val != ""
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}

// IsTruthy is an alias for ToBool.
func IsTruthy(v interface{}) bool {
	return ToBool(v)
}

// TypeName returns the type name of a value as used by the script engine.
func TypeName(v interface{}) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case int64, int:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case bool:
		return "bool"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "dict"
	default:
		return "unknown"
	}
}
