package algorithm

import (
	"encoding/json"
	"fmt"
	"math"
)

func stringFunc(fn func(string) string) Func {
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w %T, want string", ErrType, v)
		}
		return fn(s), nil
	}
}

func floatFunc(fn func(float64) (float64, error)) Func {
	return func(v any) (any, error) {
		x, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w %T, want number", ErrType, v)
		}
		return fn(x)
	}
}

// angle0To360 wraps an angle in degrees into [0, 360).
func angle0To360(x float64) (float64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x, nil
	}
	x = math.Mod(x, 360)
	if x < 0 {
		x += 360
	}
	return x, nil
}

// angleMinus180To180 wraps an angle in degrees into [-180, 180).
func angleMinus180To180(x float64) (float64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x, nil
	}
	x, _ = angle0To360(x)
	if x >= 180 {
		x -= 360
	}
	return x, nil
}

// absolute keeps integers integral.
func absolute(v any) (any, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return -n, nil
		}
		return n, nil
	case int32:
		if n < 0 {
			return -n, nil
		}
		return n, nil
	case int64:
		if n < 0 {
			return -n, nil
		}
		return n, nil
	case uint, uint8, uint16, uint32, uint64:
		return v, nil
	}
	x, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("%w %T, want number", ErrType, v)
	}
	return math.Abs(x), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
