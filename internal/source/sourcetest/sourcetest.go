// Package sourcetest writes small NetCDF classic files for tests.
package sourcetest

import (
	"sort"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/stretchr/testify/require"
)

// TimeUnits is the CF units string used for every time variable written here.
const TimeUnits = "hours since 1970-01-01 00:00:00"

// Var is one variable to write. Values is a scalar, a slice, or nested
// slices whose shape matches Dimensions.
type Var struct {
	Name       string
	Dimensions []string
	Attributes map[string]interface{}
	Values     interface{}
}

// WriteFile writes vars to a new file at path.
func WriteFile(t testing.TB, path string, vars ...Var) {
	t.Helper()

	cw, err := cdf.OpenWriter(path)
	require.NoError(t, err)

	for _, v := range vars {
		keys := make([]string, 0, len(v.Attributes))
		values := make(map[string]interface{}, len(v.Attributes))
		for k, val := range v.Attributes {
			keys = append(keys, k)
			values[k] = val
		}
		sort.Strings(keys)

		attrs, err := util.NewOrderedMap(keys, values)
		require.NoError(t, err)

		err = cw.AddVar(v.Name, api.Variable{
			Values:     v.Values,
			Dimensions: v.Dimensions,
			Attributes: attrs,
		})
		require.NoError(t, err, "variable %s", v.Name)
	}
	require.NoError(t, cw.Close())
}

// Hours converts "2006-01-02 15:04" timestamps to TimeUnits offsets.
func Hours(ts ...string) []float64 {
	out := make([]float64, len(ts))
	for i, s := range ts {
		t, err := time.Parse("2006-01-02 15:04", s)
		if err != nil {
			panic(err)
		}
		out[i] = float64(t.Unix()) / 3600
	}
	return out
}

// Forecast writes a file shaped like a model level product:
//
//   - air_temperature over (time, pressure) dimension coordinates
//   - relative_humidity over one flattened dimension, with its time_1 and
//     pressure_1 coordinates named in the "coordinates" attribute
//   - a scalar forecast_reference_time
//
// valid and pressures give the grid of air_temperature; relative_humidity
// holds the first len(valid) of pairs (valid[k], pressures[k]).
func Forecast(t testing.TB, path, reference string, valid []string, pressures []float64) {
	t.Helper()

	grid := make([][]float32, len(valid))
	for i := range grid {
		grid[i] = make([]float32, len(pressures))
	}

	n := len(valid)
	if len(pressures) < n {
		n = len(pressures)
	}
	flat := make([]float32, n)

	timeAttrs := func() map[string]interface{} {
		return map[string]interface{}{"units": TimeUnits, "standard_name": "time"}
	}

	WriteFile(t, path,
		Var{Name: "time", Dimensions: []string{"time"}, Attributes: timeAttrs(), Values: Hours(valid...)},
		Var{
			Name:       "pressure",
			Dimensions: []string{"pressure"},
			Attributes: map[string]interface{}{"units": "hPa"},
			Values:     append([]float64(nil), pressures...),
		},
		Var{Name: "forecast_reference_time", Attributes: map[string]interface{}{"units": TimeUnits}, Values: Hours(reference)[0]},
		Var{Name: "time_1", Dimensions: []string{"dim0"}, Attributes: timeAttrs(), Values: Hours(valid[:n]...)},
		Var{
			Name:       "pressure_1",
			Dimensions: []string{"dim0"},
			Attributes: map[string]interface{}{"units": "hPa"},
			Values:     append([]float64(nil), pressures[:n]...),
		},
		Var{
			Name:       "air_temperature",
			Dimensions: []string{"time", "pressure"},
			Attributes: map[string]interface{}{
				"um_stash_source": "m01s16i203",
				"units":           "K",
				"coordinates":     "forecast_reference_time",
			},
			Values: grid,
		},
		Var{
			Name:       "relative_humidity",
			Dimensions: []string{"dim0"},
			Attributes: map[string]interface{}{
				"um_stash_source": "m01s16i256",
				"units":           "%",
				"coordinates":     "forecast_reference_time pressure_1 time_1",
			},
			Values: flat,
		},
	)
}
