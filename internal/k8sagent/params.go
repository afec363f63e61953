package k8sagent

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

func stringParam(params map[string]any, name, def string) string {
	v, ok := params[name]
	if !ok || v == nil {
		return def
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return def
	}
	return s
}

func requiredString(params map[string]any, name string) (string, error) {
	s := stringParam(params, name, "")
	if s == "" {
		return "", fmt.Errorf("parameter %q is required", name)
	}
	return s, nil
}

// intParam accepts the numeric forms parameters arrive in: Go ints from the
// resolver, float64 and json.Number from JSON, and decimal strings.
func intParam(params map[string]any, name string, def int64) (int64, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("parameter %q must be a whole number, got %v", name, n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q must be a number, got %q", name, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("parameter %q has unsupported type %T", name, v)
	}
}
