package source

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/internal/models"
	"forest/internal/source/sourcetest"
)

func TestNetCDFReaderReadsForecastFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ukv_20190101T0000Z.nc")
	sourcetest.Forecast(t, path, "2019-01-01 00:00",
		[]string{"2019-01-01 03:00", "2019-01-01 06:00"}, []float64{1000, 850, 500})

	ds, err := NewNetCDFReader().Read(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, ds.Path)

	var names []string
	for _, d := range ds.Diagnostics() {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{"air_temperature", "relative_humidity"}, names)

	reference, err := ds.ReferenceTime()
	require.NoError(t, err)
	require.NotNil(t, reference)
	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), *reference)

	air, ok := ds.Variable("air_temperature")
	require.True(t, ok)
	assert.Equal(t, []string{"time", "pressure"}, air.Dimensions)
	assert.Equal(t, []string{"forecast_reference_time"}, air.CoordinateNames())
	assert.Nil(t, air.Values, "diagnostic payloads are not read")
	assert.Equal(t, models.IntPtr(0), ResolveAxis(ds, air, TimeCoordinate))
	assert.Equal(t, models.IntPtr(1), ResolveAxis(ds, air, PressureCoordinate))

	timeVar, ok := FindCoordinate(ds, air, TimeCoordinate)
	require.True(t, ok)
	times, err := DecodeTimes(path, timeVar)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2019, 1, 1, 3, 0, 0, 0, time.UTC),
		time.Date(2019, 1, 1, 6, 0, 0, 0, time.UTC),
	}, times)

	pressureVar, ok := FindCoordinate(ds, air, PressureCoordinate)
	require.True(t, ok)
	levels, err := DecodePressures(path, pressureVar)
	require.NoError(t, err)
	assert.Equal(t, []float64{1000, 850, 500}, levels)

	humidity, ok := ds.Variable("relative_humidity")
	require.True(t, ok)
	assert.Equal(t, []string{"forecast_reference_time", "pressure_1", "time_1"}, humidity.CoordinateNames())
	assert.Equal(t, models.IntPtr(0), ResolveAxis(ds, humidity, TimeCoordinate))
	assert.Equal(t, models.IntPtr(0), ResolveAxis(ds, humidity, PressureCoordinate))

	auxTime, ok := FindCoordinate(ds, humidity, TimeCoordinate)
	require.True(t, ok)
	assert.Equal(t, "time_1", auxTime.Name)
	auxTimes, err := DecodeTimes(path, auxTime)
	require.NoError(t, err)
	assert.Len(t, auxTimes, 2)

	scalar, ok := ds.Variable(ReferenceTimeVariable)
	require.True(t, ok)
	assert.Empty(t, scalar.Dimensions)
	assert.Nil(t, ResolveAxis(ds, air, ReferenceTimeVariable))
}
