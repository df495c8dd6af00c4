package ops

import (
	"fmt"
	"math"
	"strconv"

	"github.com/archspace/archspace/pkg/core"
)

// Vector is the value type flowing through the reference operators.
type Vector []float64

// ToVector converts a scalar, a numeric slice or a Vector into a Vector.
func ToVector(v any) (Vector, error) {
	switch x := v.(type) {
	case Vector:
		return x, nil
	case []float64:
		return Vector(x), nil
	case []any:
		out := make(Vector, len(x))
		for i, e := range x {
			f, err := toFloat(e)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	default:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return Vector{f}, nil
	}
}

// ToScalar converts a numeric hyperparameter value to float64.
func ToScalar(v any) (float64, error) {
	return toFloat(v)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return 0, core.NewContractError(fmt.Sprintf("value %v (%T) is not numeric", v, v), nil).
		WithCode(core.ErrCodeBadValue)
}

func elementwise(f func(float64) float64) ForwardFunc {
	return func(in map[string]any) (map[string]any, error) {
		x, err := ToVector(in["In"])
		if err != nil {
			return nil, err
		}
		out := make(Vector, len(x))
		for i, v := range x {
			out[i] = f(v)
		}
		return map[string]any{"Out": out}, nil
	}
}

func scale(hv map[string]any) (ForwardFunc, error) {
	factor, err := toFloat(hv["factor"])
	if err != nil {
		return nil, err
	}
	return elementwise(func(v float64) float64 { return v * factor }), nil
}

func bias(hv map[string]any) (ForwardFunc, error) {
	amount, err := toFloat(hv["amount"])
	if err != nil {
		return nil, err
	}
	return elementwise(func(v float64) float64 { return v + amount }), nil
}

func relu(map[string]any) (ForwardFunc, error) {
	return elementwise(func(v float64) float64 { return math.Max(v, 0) }), nil
}

func square(map[string]any) (ForwardFunc, error) {
	return elementwise(func(v float64) float64 { return v * v }), nil
}

// reduce combines inputs In0..In<n-1> position by position.
func reduce(n int, init func(first float64) float64, step func(acc, v float64) float64, finish func(acc float64) float64) ForwardFunc {
	return func(in map[string]any) (map[string]any, error) {
		var acc Vector
		for i := 0; i < n; i++ {
			x, err := ToVector(in["In"+strconv.Itoa(i)])
			if err != nil {
				return nil, err
			}
			if i == 0 {
				acc = make(Vector, len(x))
				for k, v := range x {
					acc[k] = init(v)
				}
				continue
			}
			if len(x) != len(acc) {
				return nil, core.NewContractError(
					fmt.Sprintf("input In%d has length %d, expected %d", i, len(x), len(acc)), nil,
				).WithCode(core.ErrCodeBadValue)
			}
			for k, v := range x {
				acc[k] = step(acc[k], v)
			}
		}
		if finish != nil {
			for k := range acc {
				acc[k] = finish(acc[k])
			}
		}
		return map[string]any{"Out": acc}, nil
	}
}

func identity(v float64) float64 { return v }

func sum(n int) ForwardFunc {
	return reduce(n, identity, func(acc, v float64) float64 { return acc + v }, nil)
}

func maximum(n int) ForwardFunc {
	return reduce(n, identity, math.Max, nil)
}

func mean(n int) ForwardFunc {
	return reduce(n, identity, func(acc, v float64) float64 { return acc + v },
		func(acc float64) float64 { return acc / float64(n) })
}
