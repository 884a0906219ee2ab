package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/internal/models"
	"forest/internal/repository"
	"forest/internal/source/sourcetest"
	"forest/pkg/database"
	"forest/pkg/logging"
	"forest/pkg/metrics"
)

func init() {
	color.NoColor = true
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

// seededIndex writes a SQLite index holding ukv_1.nc (air_temperature on
// separate time and pressure dimensions) and global_1.nc
// (relative_humidity, no pressure).
func seededIndex(t *testing.T) string {
	t.Helper()

	location := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()
	logger := logging.NewNopLogger()
	m := metrics.NewCollectorForTesting()

	err := database.WithDB(ctx, database.DefaultConfig(location), logger, m, func(db *database.DB) error {
		repo := repository.NewForecastRepository(db, logger, m)
		reference := at("2019-01-01 00:00")

		return repo.WithTx(ctx, func(tx repository.ForecastRepository) error {
			if err := tx.EnsureSchema(ctx); err != nil {
				return err
			}
			if err := tx.InsertFileName(ctx, "ukv_1.nc", &reference); err != nil {
				return err
			}
			if err := tx.InsertVariable(ctx, "ukv_1.nc", "air_temperature", models.IntPtr(0), models.IntPtr(1)); err != nil {
				return err
			}
			if err := tx.InsertTimes(ctx, "ukv_1.nc", "air_temperature",
				[]time.Time{at("2019-01-01 03:00"), at("2019-01-01 06:00")}); err != nil {
				return err
			}
			if err := tx.InsertPressures(ctx, "ukv_1.nc", "air_temperature", []float64{1000, 850, 500}); err != nil {
				return err
			}
			if err := tx.InsertFileName(ctx, "global_1.nc", &reference); err != nil {
				return err
			}
			if err := tx.InsertVariable(ctx, "global_1.nc", "relative_humidity", models.IntPtr(0), nil); err != nil {
				return err
			}
			return tx.InsertTimes(ctx, "global_1.nc", "relative_humidity", []time.Time{at("2019-01-01 06:00")})
		})
	})
	require.NoError(t, err)
	return location
}

func TestMigrate(t *testing.T) {
	location := filepath.Join(t.TempDir(), "index.db")

	out, err := execute(t, "migrate", "--database", location)
	require.NoError(t, err)
	assert.Equal(t, "schema ready (sqlite)\n", out)
	assert.FileExists(t, location)

	_, err = execute(t, "migrate", "--database", location)
	require.NoError(t, err)
}

func TestList(t *testing.T) {
	location := seededIndex(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "variables", args: []string{"list", "variables"}, want: "air_temperature\nrelative_humidity\n"},
		{name: "files", args: []string{"list", "files"}, want: "global_1.nc\nukv_1.nc\n"},
		{name: "files by pattern", args: []string{"list", "files", "-p", "ukv_*"}, want: "ukv_1.nc\n"},
		{name: "initial times", args: []string{"list", "initial-times"}, want: "2019-01-01 00:00:00\n"},
		{
			name: "valid times",
			args: []string{"list", "valid-times", "-v", "air_temperature"},
			want: "2019-01-01 03:00:00\n2019-01-01 06:00:00\n",
		},
		{name: "pressures", args: []string{"list", "pressures"}, want: "500\n850\n1000\n"},
		{name: "no pressures", args: []string{"list", "pressures", "-v", "relative_humidity"}, want: "(none)\n"},
		{
			name: "times in array order",
			args: []string{"list", "times", "ukv_1.nc", "air_temperature"},
			want: "2019-01-01 03:00:00\n2019-01-01 06:00:00\n",
		},
		{
			name: "levels in array order",
			args: []string{"list", "levels", "ukv_1.nc", "air_temperature"},
			want: "1000\n850\n500\n",
		},
		{name: "no levels", args: []string{"list", "levels", "global_1.nc", "relative_humidity"}, want: "(none)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append(tt.args, "--database", location)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestListJSON(t *testing.T) {
	location := seededIndex(t)

	out, err := execute(t, "list", "variables", "--json", "--database", location)
	require.NoError(t, err)

	var names []string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	assert.Equal(t, []string{"air_temperature", "relative_humidity"}, names)
}

func TestListPatternsFromConfig(t *testing.T) {
	location := seededIndex(t)
	configPath := filepath.Join(t.TempDir(), "forest.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("patterns:\n  ukv: \"ukv_*.nc\"\n  global: \"global_*.nc\"\n"), 0o644))

	out, err := execute(t, "list", "patterns", "--config", configPath, "--database", location)
	require.NoError(t, err)
	assert.Equal(t, "global\tglobal_*.nc\nukv\tukv_*.nc\n", out)

	out, err = execute(t, "list", "files", "-p", "global", "--config", configPath, "--database", location)
	require.NoError(t, err)
	assert.Equal(t, "global_1.nc\n", out)
}

func TestLocate(t *testing.T) {
	location := seededIndex(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "nearest pressure",
			args: []string{"-v", "air_temperature", "--initial-time", "2019-01-01 00:00:00", "--valid-time", "2019-01-01 06:00:00", "--pressure", "840"},
			want: "ukv_1.nc [1, 1]\n",
		},
		{
			name: "rfc3339 and zero pressure",
			args: []string{"-v", "air_temperature", "--initial-time", "2019-01-01T00:00:00Z", "--valid-time", "2019-01-01T03:00:00Z", "--pressure", "0"},
			want: "ukv_1.nc [0, 2]\n",
		},
		{
			name: "without pressure",
			args: []string{"-v", "relative_humidity", "--initial-time", "2019-01-01 00:00", "--valid-time", "2019-01-01 06:00"},
			want: "global_1.nc [0]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append(append([]string{"locate"}, tt.args...), "--database", location)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestLocateJSON(t *testing.T) {
	location := seededIndex(t)

	out, err := execute(t, "locate", "--json", "--database", location,
		"-v", "air_temperature", "--initial-time", "2019-01-01 00:00:00", "--valid-time", "2019-01-01 06:00:00", "--pressure", "500")
	require.NoError(t, err)

	var got models.Location
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, models.Location{Path: "ukv_1.nc", Index: []int{1, 2}}, got)
}

func TestLocateErrors(t *testing.T) {
	location := seededIndex(t)

	_, err := execute(t, "locate", "--database", location,
		"-v", "air_temperature", "--initial-time", "2019-01-02 00:00:00", "--valid-time", "2019-01-02 06:00:00")
	assert.True(t, errors.Is(err, models.ErrNoMatch), "got %v", err)

	_, err = execute(t, "locate", "--database", location,
		"-v", "air_temperature", "--initial-time", "tomorrow", "--valid-time", "2019-01-01 06:00:00")
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = execute(t, "locate", "--database", location,
		"-v", "air_temperature", "--initial-time", "2019-01-01 00:00:00", "--valid-time", "2019-01-01 06:00:00", "--pressure", "NaN")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "pressure", verr.Field)

	_, err = execute(t, "locate", "--database", location, "-v", "air_temperature")
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	location := seededIndex(t)

	out, err := execute(t, "find", "--database", location, "-v", "air_temperature", "--time", "2019-01-01 06:00:00")
	require.NoError(t, err)
	assert.Equal(t, "ukv_1.nc\t1\n", out)

	out, err = execute(t, "find", "--database", location, "-v", "air_temperature", "--pressure", "850")
	require.NoError(t, err)
	assert.Equal(t, "ukv_1.nc\t1\n", out)

	_, err = execute(t, "find", "--database", location, "-v", "air_temperature")
	assert.Error(t, err)

	_, err = execute(t, "find", "--database", location, "-v", "air_temperature", "--time", "2019-01-01 06:00:00", "--pressure", "850")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	location := seededIndex(t)

	out, err := execute(t, "stats", "--database", location)
	require.NoError(t, err)
	assert.Contains(t, out, "files:              2 (1 forecast runs)")
	assert.Contains(t, out, "air_temperature  runs=1 valid_times=2 levels=3 (500-1000)")
	assert.Contains(t, out, "relative_humidity  runs=1 valid_times=1\n")
}

func TestIndexReportsFailedFiles(t *testing.T) {
	location := filepath.Join(t.TempDir(), "index.db")
	dir := t.TempDir()
	garbage := filepath.Join(dir, "broken.nc")
	require.NoError(t, os.WriteFile(garbage, []byte("not a netcdf file"), 0o644))

	out, err := execute(t, "index", "--database", location, garbage, filepath.Join(dir, "missing.nc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2 files failed")
	assert.Contains(t, out, "indexed 0 of 2 files")

	out, err = execute(t, "list", "files", "--database", location)
	require.NoError(t, err)
	assert.Equal(t, "(none)\n", out)
}

func TestIndexThenLocate(t *testing.T) {
	location := filepath.Join(t.TempDir(), "index.db")
	dir := t.TempDir()
	sourcetest.Forecast(t, filepath.Join(dir, "ukv_1.nc"), "2019-01-01 00:00",
		[]string{"2019-01-01 03:00", "2019-01-01 06:00"}, []float64{1000, 850, 500})

	out, err := execute(t, "index", "--database", location, "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 1 of 1 files")

	path := filepath.Join(dir, "ukv_1.nc")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "separate axes",
			args: []string{"-v", "air_temperature", "--valid-time", "2019-01-01 06:00", "--pressure", "840"},
			want: path + " [1, 1]\n",
		},
		{
			name: "shared axis",
			args: []string{"-v", "relative_humidity", "--valid-time", "2019-01-01 06:00", "--pressure", "900"},
			want: path + " [1]\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"locate", "--database", location, "--initial-time", "2019-01-01 00:00"}, tt.args...)
			out, err := execute(t, args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	out, err = execute(t, "list", "levels", path, "air_temperature", "--database", location)
	require.NoError(t, err)
	assert.Equal(t, "1000\n850\n500\n", out)
}

func TestIndexEmptyDirectory(t *testing.T) {
	location := filepath.Join(t.TempDir(), "index.db")

	_, err := execute(t, "index", "--database", location, "--dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files matching")
}
