package source

import (
	"fmt"
)

// Float64s flattens a scalar or one-dimensional numeric value, as NetCDF
// readers return them, into []float64.
func Float64s(values interface{}) ([]float64, error) {
	switch v := values.(type) {
	case nil:
		return nil, fmt.Errorf("no values")
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out, nil
	case []float32:
		return convert(v), nil
	case []int8:
		return convert(v), nil
	case []int16:
		return convert(v), nil
	case []int32:
		return convert(v), nil
	case []int64:
		return convert(v), nil
	case []int:
		return convert(v), nil
	case []uint8:
		return convert(v), nil
	case []uint16:
		return convert(v), nil
	case []uint32:
		return convert(v), nil
	case []uint64:
		return convert(v), nil
	case float64:
		return []float64{v}, nil
	case float32:
		return []float64{float64(v)}, nil
	case int8:
		return []float64{float64(v)}, nil
	case int16:
		return []float64{float64(v)}, nil
	case int32:
		return []float64{float64(v)}, nil
	case int64:
		return []float64{float64(v)}, nil
	case int:
		return []float64{float64(v)}, nil
	case uint8:
		return []float64{float64(v)}, nil
	case uint16:
		return []float64{float64(v)}, nil
	case uint32:
		return []float64{float64(v)}, nil
	case uint64:
		return []float64{float64(v)}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", values)
	}
}

type number interface {
	~float32 | ~float64 | ~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func convert[T number](in []T) []float64 {
	out := make([]float64, len(in))
	for i, x := range in {
		out[i] = float64(x)
	}
	return out
}
