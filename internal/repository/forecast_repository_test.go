package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/internal/models"
	"forest/pkg/database"
	"forest/pkg/logging"
	"forest/pkg/metrics"
)

func newTestRepository(t *testing.T) (ForecastRepository, *metrics.Collector) {
	t.Helper()

	ctx := context.Background()
	m := metrics.NewCollectorForTesting()
	db, err := database.Open(ctx, database.DefaultConfig(database.MemoryLocation), logging.NewNopLogger(), m)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewForecastRepository(db, logging.NewNopLogger(), m)
	require.NoError(t, repo.EnsureSchema(ctx))
	return repo, m
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ats(ss ...string) []time.Time {
	out := make([]time.Time, len(ss))
	for i, s := range ss {
		out[i] = at(s)
	}
	return out
}

func TestEnsureSchemaIsRepeatable(t *testing.T) {
	repo, _ := newTestRepository(t)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, repo.EnsureSchema(context.Background()))
}

func TestListFilesGivenNoFiles(t *testing.T) {
	repo, _ := newTestRepository(t)

	files, err := repo.ListFiles(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestInsertFileNameIsIdempotent(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertFileName(ctx, "file.nc", nil))
	require.NoError(t, repo.InsertFileName(ctx, "file.nc", nil))

	files, err := repo.ListFiles(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"file.nc"}, files)
}

func TestInsertFileNameKeepsFirstReference(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	ref := at("2019-01-01 12:00")
	require.NoError(t, repo.InsertFileName(ctx, "file.nc", &ref))
	require.NoError(t, repo.InsertVariable(ctx, "file.nc", "air_temperature", nil, nil))
	later := at("2020-01-01 00:00")
	require.NoError(t, repo.InsertFileName(ctx, "file.nc", &later))

	times, err := repo.ListInitialTimes(ctx, models.CatalogFilter{})
	require.NoError(t, err)
	require.Len(t, times, 1)
	assert.Equal(t, "2019-01-01 12:00:00", models.FormatTime(times[0]))

	f, err := repo.GetFile(ctx, "file.nc")
	require.NoError(t, err)
	assert.Equal(t, "file.nc", f.Name)
	assert.NotZero(t, f.ID)
	require.NotNil(t, f.Reference)
	assert.Equal(t, "2019-01-01 12:00:00", *f.Reference)
}

func TestGetFile(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertFileName(ctx, "orography.nc", nil))
	f, err := repo.GetFile(ctx, "orography.nc")
	require.NoError(t, err)
	assert.Nil(t, f.Reference)

	_, err = repo.GetFile(ctx, "missing.nc")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "file", nf.Resource)
	assert.Equal(t, "missing.nc", nf.ID)
}

func TestInsertVariableFixesAxesOnFirstInsert(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertVariable(ctx, "file.nc", "x_wind", models.IntPtr(0), models.IntPtr(1)))
	require.NoError(t, repo.InsertVariable(ctx, "file.nc", "x_wind", nil, nil))
	require.NoError(t, repo.InsertVariable(ctx, "file.nc", "x_wind", models.IntPtr(2), models.IntPtr(2)))

	v, err := repo.GetVariable(ctx, "file.nc", "x_wind")
	require.NoError(t, err)
	assert.Equal(t, "x_wind", v.Name)
	assert.Equal(t, models.IntPtr(0), v.TimeAxis)
	assert.Equal(t, models.IntPtr(1), v.PressureAxis)

	summary, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 1, summary.Variables)
}

func TestGetVariableNotFound(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.GetVariable(context.Background(), "file.nc", "missing")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "variable", nf.Resource)
}

func TestInsertTimeDeduplicates(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.InsertTime(ctx, "file.nc", "air_temperature", at("2019-01-01 00:00"), 0))
		require.NoError(t, repo.InsertPressure(ctx, "file.nc", "air_temperature", 850, 0))
	}

	summary, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Times)
	assert.Equal(t, 1, summary.Pressures)
	assert.Equal(t, 1, summary.VariableTimes)
	assert.Equal(t, 1, summary.VariablePressures)
}

func TestCoordinatePointsAreSharedAcrossFiles(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertTime(ctx, "a.nc", "air_temperature", at("2019-01-01 00:00"), 0))
	require.NoError(t, repo.InsertTime(ctx, "b.nc", "air_temperature", at("2019-01-01 00:00"), 0))
	require.NoError(t, repo.InsertTime(ctx, "b.nc", "relative_humidity", at("2019-01-01 00:00"), 0))

	summary, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Times)
	assert.Equal(t, 3, summary.VariableTimes)
	assert.Equal(t, 3, summary.Variables)
	assert.Equal(t, 2, summary.DistinctVariables)
}

func TestFindTimeDistinguishesPaths(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	value := at("2019-01-01 06:00")
	require.NoError(t, repo.InsertTime(ctx, "a.nc", "air_temperature", value, 0))
	require.NoError(t, repo.InsertTime(ctx, "b.nc", "air_temperature", value, 1))
	require.NoError(t, repo.InsertTime(ctx, "b.nc", "air_temperature", at("2019-01-01 09:00"), 0))

	matches, err := repo.FindTime(ctx, "air_temperature", value)
	require.NoError(t, err)
	assert.Equal(t, []models.Match{{Path: "a.nc", Index: 0}, {Path: "b.nc", Index: 1}}, matches)
}

func TestFindPressureDistinguishesPaths(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertPressures(ctx, "a.nc", "air_temperature", []float64{1000, 850}))
	require.NoError(t, repo.InsertPressures(ctx, "b.nc", "air_temperature", []float64{850}))

	matches, err := repo.FindPressure(ctx, "air_temperature", 850)
	require.NoError(t, err)
	assert.Equal(t, []models.Match{{Path: "a.nc", Index: 1}, {Path: "b.nc", Index: 0}}, matches)

	matches, err = repo.FindPressure(ctx, "air_temperature", 500)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestInsertTimesRoundTrip(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	times := ats("2019-01-01 12:00", "2019-01-01 09:00", "2019-01-01 15:00")
	require.NoError(t, repo.InsertTimes(ctx, "file.nc", "air_temperature", times))
	require.NoError(t, repo.InsertTimes(ctx, "other.nc", "air_temperature", ats("2020-01-01 00:00")))

	got, err := repo.FetchTimes(ctx, "file.nc", "air_temperature")
	require.NoError(t, err)
	assert.Equal(t, times, got)
}

func TestInsertPressuresRoundTrip(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	levels := []float64{850, 1000, 500}
	require.NoError(t, repo.InsertPressures(ctx, "file.nc", "air_temperature", levels))
	require.NoError(t, repo.InsertPressures(ctx, "other.nc", "air_temperature", []float64{1000, 850}))

	got, err := repo.FetchPressures(ctx, "file.nc", "air_temperature")
	require.NoError(t, err)
	assert.Equal(t, levels, got)

	got, err = repo.FetchPressures(ctx, "file.nc", "relative_humidity")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListValidTimes(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertTimes(ctx, "a.nc", "air_temperature", ats("2019-01-01 03:00", "2019-01-01 00:00")))
	require.NoError(t, repo.InsertTimes(ctx, "b.nc", "relative_humidity", ats("2019-01-01 06:00", "2019-01-01 00:00")))

	all, err := repo.ListValidTimes(ctx, models.CatalogFilter{})
	require.NoError(t, err)
	assert.Equal(t, ats("2019-01-01 00:00", "2019-01-01 03:00", "2019-01-01 06:00"), all)

	byVariable, err := repo.ListValidTimes(ctx, models.CatalogFilter{Variable: "relative_humidity"})
	require.NoError(t, err)
	assert.Equal(t, ats("2019-01-01 00:00", "2019-01-01 06:00"), byVariable)

	byPattern, err := repo.ListValidTimes(ctx, models.CatalogFilter{Pattern: "a*"})
	require.NoError(t, err)
	assert.Equal(t, ats("2019-01-01 00:00", "2019-01-01 03:00"), byPattern)
}

func TestListInitialTimesGivenPattern(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	files := map[string]string{
		"a_1.nc":  "2019-01-02 00:00",
		"a_2.nc":  "2019-01-01 00:00",
		"a_10.nc": "2019-01-04 00:00",
		"b_1.nc":  "2019-01-03 00:00",
	}
	for path, ref := range files {
		ref := at(ref)
		require.NoError(t, repo.InsertFileName(ctx, path, &ref))
	}
	require.NoError(t, repo.InsertFileName(ctx, "a_3.nc", nil))

	got, err := repo.ListInitialTimes(ctx, models.CatalogFilter{Pattern: "a_?.nc"})
	require.NoError(t, err)
	assert.Equal(t, ats("2019-01-01 00:00", "2019-01-02 00:00"), got)

	all, err := repo.ListInitialTimes(ctx, models.CatalogFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestListInitialTimesGivenVariable(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	ref1, ref2 := at("2019-01-01 00:00"), at("2019-01-01 12:00")
	require.NoError(t, repo.InsertFileName(ctx, "a.nc", &ref1))
	require.NoError(t, repo.InsertFileName(ctx, "b.nc", &ref2))
	require.NoError(t, repo.InsertVariable(ctx, "a.nc", "air_temperature", nil, nil))
	require.NoError(t, repo.InsertVariable(ctx, "b.nc", "relative_humidity", nil, nil))

	got, err := repo.ListInitialTimes(ctx, models.CatalogFilter{Variable: "relative_humidity"})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{ref2}, got)
}

func TestListVariablesAndPressures(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertPressures(ctx, "a.nc", "x_wind", []float64{1000, 850}))
	require.NoError(t, repo.InsertPressures(ctx, "b.nc", "x_wind", []float64{850, 500}))
	require.NoError(t, repo.InsertPressures(ctx, "b.nc", "air_temperature", []float64{250}))

	variables, err := repo.ListVariables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"air_temperature", "x_wind"}, variables)

	levels, err := repo.ListPressures(ctx, models.CatalogFilter{})
	require.NoError(t, err)
	assert.Equal(t, []float64{250, 500, 850, 1000}, levels)

	levels, err = repo.ListPressures(ctx, models.CatalogFilter{Variable: "x_wind", Pattern: "a.nc"})
	require.NoError(t, err)
	assert.Equal(t, []float64{850, 1000}, levels)
}

func TestWithTxRollsBack(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx ForecastRepository) error {
		require.NoError(t, tx.InsertTimes(ctx, "file.nc", "air_temperature", ats("2019-01-01 00:00")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	summary, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.IndexSummary{}, *summary)

	err = repo.WithTx(ctx, func(tx ForecastRepository) error {
		return tx.WithTx(ctx, func(inner ForecastRepository) error {
			return inner.InsertFileName(ctx, "file.nc", nil)
		})
	})
	require.NoError(t, err)

	files, err := repo.ListFiles(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"file.nc"}, files)
}

func TestLocateGivenSharedTimePressureAxis(t *testing.T) {
	repo, m := newTestRepository(t)
	ctx := context.Background()

	paths := []string{"test-api-0.nc", "test-api-1.nc", "test-api-2.nc"}
	validTimes := [][]time.Time{
		ats("2019-01-01 12:00", "2019-01-01 13:00"),
		ats("2019-01-01 14:00"),
		ats("2019-01-01 15:00", "2019-01-01 16:00"),
	}
	pressures := [][]float64{{950, 950}, {950}, {950, 950}}

	ref := at("2019-01-01 12:00")
	for i, path := range paths {
		require.NoError(t, repo.InsertFileName(ctx, path, &ref))
		require.NoError(t, repo.InsertVariable(ctx, path, "air_temperature", models.IntPtr(0), models.IntPtr(0)))
		require.NoError(t, repo.InsertTimes(ctx, path, "air_temperature", validTimes[i]))
		require.NoError(t, repo.InsertPressures(ctx, path, "air_temperature", pressures[i]))
	}

	loc, err := repo.Locate(ctx, models.LocateQuery{
		Variable:    "air_temperature",
		InitialTime: ref,
		ValidTime:   at("2019-01-01 16:00"),
		Pressure:    models.Float64Ptr(950),
		Pattern:     "*.nc",
	})
	require.NoError(t, err)
	assert.Equal(t, &models.Location{Path: paths[2], Index: []int{1}}, loc)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LocateTotal.WithLabelValues("found")))
}

func TestLocateGivenSeparateAxesPicksNearestPressure(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	paths := []string{"test-api-0.nc", "test-api-1.nc", "test-api-2.nc"}
	validTimes := [][]time.Time{
		ats("2019-01-01 12:00", "2019-01-01 13:00"),
		ats("2019-01-01 14:00"),
		ats("2019-01-01 15:00", "2019-01-01 16:00"),
	}

	ref := at("2019-01-01 12:00")
	for i, path := range paths {
		require.NoError(t, repo.InsertFileName(ctx, path, &ref))
		require.NoError(t, repo.InsertVariable(ctx, path, "air_temperature", models.IntPtr(0), models.IntPtr(1)))
		require.NoError(t, repo.InsertTimes(ctx, path, "air_temperature", validTimes[i]))
		require.NoError(t, repo.InsertPressures(ctx, path, "air_temperature", []float64{850, 950, 1000}))
	}

	tests := []struct {
		target float64
		want   []int
	}{
		{target: 849, want: []int{1, 0}},
		{target: 940, want: []int{1, 1}},
		{target: 2000, want: []int{1, 2}},
		{target: 900, want: []int{1, 0}},
	}

	for _, tt := range tests {
		loc, err := repo.Locate(ctx, models.LocateQuery{
			Variable:    "air_temperature",
			InitialTime: ref,
			ValidTime:   at("2019-01-01 16:00"),
			Pressure:    models.Float64Ptr(tt.target),
			Pattern:     "*.nc",
		})
		require.NoError(t, err)
		assert.Equal(t, paths[2], loc.Path)
		assert.Equal(t, tt.want, loc.Index, "target %v", tt.target)
	}
}

func TestLocateGivenNoPressureCoordinate(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	ref := at("2019-01-01 00:00")
	require.NoError(t, repo.InsertFileName(ctx, "surface.nc", &ref))
	require.NoError(t, repo.InsertVariable(ctx, "surface.nc", "air_temperature", models.IntPtr(0), nil))
	require.NoError(t, repo.InsertTimes(ctx, "surface.nc", "air_temperature", ats("2019-01-01 00:00", "2019-01-01 03:00")))

	loc, err := repo.Locate(ctx, models.LocateQuery{
		Variable:    "air_temperature",
		InitialTime: ref,
		ValidTime:   at("2019-01-01 03:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, &models.Location{Path: "surface.nc", Index: []int{1}}, loc)

	_, err = repo.Locate(ctx, models.LocateQuery{
		Variable:    "air_temperature",
		InitialTime: ref,
		ValidTime:   at("2019-01-01 03:00"),
		Pressure:    models.Float64Ptr(850),
	})
	assert.ErrorIs(t, err, models.ErrNoMatch)
}

func TestLocateGivenScalarCoordinates(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	ref := at("2019-01-01 00:00")
	require.NoError(t, repo.InsertFileName(ctx, "scalar.nc", &ref))
	require.NoError(t, repo.InsertVariable(ctx, "scalar.nc", "air_temperature", nil, nil))
	require.NoError(t, repo.InsertTimes(ctx, "scalar.nc", "air_temperature", ats("2019-01-01 06:00")))
	require.NoError(t, repo.InsertPressures(ctx, "scalar.nc", "air_temperature", []float64{500}))

	loc, err := repo.Locate(ctx, models.LocateQuery{
		Variable:    "air_temperature",
		InitialTime: ref,
		ValidTime:   at("2019-01-01 06:00"),
		Pressure:    models.Float64Ptr(700),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, loc.Index)
}

func TestLocateNoMatch(t *testing.T) {
	repo, m := newTestRepository(t)
	ctx := context.Background()

	ref := at("2019-01-01 00:00")
	require.NoError(t, repo.InsertFileName(ctx, "a.nc", &ref))
	require.NoError(t, repo.InsertVariable(ctx, "a.nc", "air_temperature", models.IntPtr(0), models.IntPtr(1)))
	require.NoError(t, repo.InsertTimes(ctx, "a.nc", "air_temperature", ats("2019-01-01 00:00")))
	require.NoError(t, repo.InsertPressures(ctx, "a.nc", "air_temperature", []float64{850}))

	queries := []models.LocateQuery{
		{Variable: "unknown", InitialTime: ref, ValidTime: ref, Pressure: models.Float64Ptr(850)},
		{Variable: "air_temperature", InitialTime: at("2020-01-01 00:00"), ValidTime: ref, Pressure: models.Float64Ptr(850)},
		{Variable: "air_temperature", InitialTime: ref, ValidTime: at("2019-01-02 00:00"), Pressure: models.Float64Ptr(850)},
		{Variable: "air_temperature", InitialTime: ref, ValidTime: ref, Pressure: models.Float64Ptr(850), Pattern: "b*"},
	}

	for _, q := range queries {
		loc, err := repo.Locate(ctx, q)
		assert.Nil(t, loc)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrNoMatch))

		var noMatch *models.NoMatchError
		require.True(t, errors.As(err, &noMatch))
		assert.Equal(t, q.Variable, noMatch.Variable)
	}
	assert.Equal(t, float64(len(queries)), testutil.ToFloat64(m.LocateTotal.WithLabelValues("no_match")))
}

func TestLocateTiesGoToFirstIndexedFile(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	ref := at("2019-01-01 00:00")
	for _, path := range []string{"b.nc", "a.nc"} {
		require.NoError(t, repo.InsertFileName(ctx, path, &ref))
		require.NoError(t, repo.InsertVariable(ctx, path, "air_temperature", models.IntPtr(0), models.IntPtr(1)))
		require.NoError(t, repo.InsertTimes(ctx, path, "air_temperature", ats("2019-01-01 00:00")))
		require.NoError(t, repo.InsertPressures(ctx, path, "air_temperature", []float64{800, 900}))
	}

	loc, err := repo.Locate(ctx, models.LocateQuery{
		Variable:    "air_temperature",
		InitialTime: ref,
		ValidTime:   ref,
		Pressure:    models.Float64Ptr(850),
	})
	require.NoError(t, err)
	assert.Equal(t, &models.Location{Path: "b.nc", Index: []int{0, 0}}, loc)
}
