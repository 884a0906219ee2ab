package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"forest/internal/models"
	"forest/internal/query"
	"forest/pkg/logging"
)

type locateRow struct {
	Path          string          `db:"path"`
	TimeIndex     int             `db:"time_index"`
	PressureIndex sql.NullInt64   `db:"pressure_index"`
	PressureValue sql.NullFloat64 `db:"pressure_value"`
	TimeAxis      sql.NullInt64   `db:"time_axis"`
	PressureAxis  sql.NullInt64   `db:"pressure_axis"`
}

// Locate finds the file and array index holding q. The stored pressure
// level nearest q.Pressure wins; ties go to the earliest indexed row.
//
// When time and pressure share one storage dimension, or neither has
// one, the index is the time position alone. Otherwise it is
// (time position, pressure position). A nil q.Pressure ignores pressure
// and always yields the time position alone.
func (r *forecastRepository) Locate(ctx context.Context, q models.LocateQuery) (*models.Location, error) {
	timer := r.metrics.NewTimer(r.metrics.LocateDuration)
	defer timer.ObserveDuration()

	initial := models.FormatTime(q.InitialTime)
	valid := models.FormatTime(q.ValidTime)

	columns := []string{
		"file.name AS path",
		"time.i AS time_index",
		"variable.time_axis AS time_axis",
		"variable.pressure_axis AS pressure_axis",
	}
	if q.Pressure != nil {
		columns = append(columns, "pressure.i AS pressure_index", "pressure.value AS pressure_value")
	}

	b := query.Select(r.dialect(), columns...).
		From("file").
		Join("variable", "file.id = variable.file_id").
		Join("variable_to_time", "variable_to_time.variable_id = variable.id").
		Join("time", "time.id = variable_to_time.time_id")
	if q.Pressure != nil {
		b.Join("variable_to_pressure", "variable_to_pressure.variable_id = variable.id").
			Join("pressure", "pressure.id = variable_to_pressure.pressure_id")
	}
	b.Where("file.reference = ?", initial).
		Where("variable.name = ?", q.Variable).
		Where("time.value = ?", valid).
		WhereGlob("file.name", q.Pattern)
	if q.Pressure != nil {
		b.OrderBy("ABS(pressure.value - ?)", *q.Pressure)
	}
	b.OrderBy("file.id").OrderBy("variable.id").OrderBy("time.id")
	if q.Pressure != nil {
		b.OrderBy("pressure.id")
	}
	stmt, args := b.Limit(1).ToSQL()

	var rows []locateRow
	if err := r.q.SelectContext(ctx, "locate", &rows, stmt, args...); err != nil {
		r.metrics.RecordLocate("error")
		return nil, fmt.Errorf("failed to locate field: %w", err)
	}

	if len(rows) == 0 {
		r.metrics.RecordLocate("no_match")
		return nil, &models.NoMatchError{
			Variable:    q.Variable,
			InitialTime: initial,
			ValidTime:   valid,
			Pattern:     q.Pattern,
		}
	}

	row := rows[0]
	location := &models.Location{Path: row.Path, Index: []int{row.TimeIndex}}
	if q.Pressure != nil && !sameAxis(row.TimeAxis, row.PressureAxis) {
		location.Index = append(location.Index, int(row.PressureIndex.Int64))
	}

	r.metrics.RecordLocate("found")
	fields := logging.Fields{
		"variable":     q.Variable,
		"initial_time": initial,
		"valid_time":   valid,
		"path":         location.Path,
		"index":        location.Index,
	}
	if q.Pressure != nil {
		fields["pressure"] = *q.Pressure
		fields["matched_pressure"] = row.PressureValue.Float64
		fields["pressure_offset"] = math.Abs(row.PressureValue.Float64 - *q.Pressure)
	}
	r.logger.Debug(ctx, "[REPO_LOCATE] Field located", fields)

	return location, nil
}

// sameAxis compares nullable axes, treating two NULLs as equal.
func sameAxis(a, b sql.NullInt64) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Int64 == b.Int64
}
