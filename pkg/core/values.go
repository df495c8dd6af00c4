package core

import (
	"fmt"
	"iter"
	"math"
)

// AsInt converts an integer-like hyperparameter value to int. Floats are
// accepted only when integral.
func AsInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		if n > math.MaxInt {
			break
		}
		return int(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	}
	return 0, NewContractError(fmt.Sprintf("value %v (%T) is not an integer", v, v), nil).
		WithCode(ErrCodeBadValue)
}

// AsBool converts a boolean-like value. The integers 0 and 1 are accepted.
func AsBool(v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	n, err := AsInt(v)
	if err == nil && (n == 0 || n == 1) {
		return n == 1, nil
	}
	return false, NewContractError(fmt.Sprintf("value %v (%T) is not a boolean", v, v), nil).
		WithCode(ErrCodeBadValue)
}

func sameNames[V any](names iter.Seq[string], ports map[string]V) bool {
	n := 0
	for name := range names {
		if _, ok := ports[name]; !ok {
			return false
		}
		n++
	}
	return n == len(ports)
}
