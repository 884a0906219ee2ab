package repository

import (
	"context"
	"fmt"
	"time"

	"forest/internal/models"
	"forest/internal/query"
	"forest/pkg/database"
	"forest/pkg/logging"
	"forest/pkg/metrics"
)

// ForecastRepository provides data access for the forecast index
type ForecastRepository interface {
	// Schema and transactions
	EnsureSchema(ctx context.Context) error
	WithTx(ctx context.Context, fn func(ForecastRepository) error) error

	// Insert operations; duplicates are ignored
	InsertFileName(ctx context.Context, path string, reference *time.Time) error
	InsertVariable(ctx context.Context, path, variable string, timeAxis, pressureAxis *int) error
	InsertTime(ctx context.Context, path, variable string, t time.Time, i int) error
	InsertTimes(ctx context.Context, path, variable string, times []time.Time) error
	InsertPressure(ctx context.Context, path, variable string, pressure float64, i int) error
	InsertPressures(ctx context.Context, path, variable string, pressures []float64) error

	// Catalog operations
	ListVariables(ctx context.Context) ([]string, error)
	ListInitialTimes(ctx context.Context, filter models.CatalogFilter) ([]time.Time, error)
	ListValidTimes(ctx context.Context, filter models.CatalogFilter) ([]time.Time, error)
	ListFiles(ctx context.Context, pattern string) ([]string, error)
	ListPressures(ctx context.Context, filter models.CatalogFilter) ([]float64, error)
	FetchTimes(ctx context.Context, path, variable string) ([]time.Time, error)
	FetchPressures(ctx context.Context, path, variable string) ([]float64, error)
	FindTime(ctx context.Context, variable string, t time.Time) ([]models.Match, error)
	FindPressure(ctx context.Context, variable string, pressure float64) ([]models.Match, error)

	// Lookup operations
	Locate(ctx context.Context, q models.LocateQuery) (*models.Location, error)
	GetFile(ctx context.Context, path string) (*models.File, error)
	GetVariable(ctx context.Context, path, variable string) (*models.Variable, error)
	Summary(ctx context.Context) (*models.IndexSummary, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// forecastRepository implements ForecastRepository
type forecastRepository struct {
	db      *database.DB
	q       database.Queryer
	inTx    bool
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewForecastRepository creates a new forecast repository
func NewForecastRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ForecastRepository {
	return &forecastRepository{
		db:      db,
		q:       db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const (
	fileIDByName = `(SELECT id FROM file WHERE name = ?)`

	variableIDByPath = `(SELECT variable.id FROM variable
		JOIN file ON variable.file_id = file.id
		WHERE file.name = ? AND variable.name = ?)`

	timeIDByPoint     = `(SELECT id FROM time WHERE value = ? AND i = ?)`
	pressureIDByPoint = `(SELECT id FROM pressure WHERE value = ? AND i = ?)`
)

func (r *forecastRepository) dialect() query.Dialect {
	return query.Dialect(r.db.Dialect())
}

// WithTx runs fn against a repository bound to one transaction. Calls made
// on an already transactional repository join the open transaction.
func (r *forecastRepository) WithTx(ctx context.Context, fn func(ForecastRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.db.WithTx(ctx, func(q database.Queryer) error {
		return fn(&forecastRepository{
			db:      r.db,
			q:       q,
			inTx:    true,
			logger:  r.logger,
			metrics: r.metrics,
		})
	})
}

// InsertFileName registers a file. The reference time of an already
// registered file is left unchanged.
func (r *forecastRepository) InsertFileName(ctx context.Context, path string, reference *time.Time) error {
	var ref interface{}
	if reference != nil {
		ref = models.FormatTime(*reference)
	}

	stmt := query.InsertIgnore(r.dialect(), "file", []string{"name", "reference"}, []string{"?", "?"})
	if _, err := r.q.ExecContext(ctx, "insert_file", stmt, path, ref); err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_INSERT_FILE] File registered", logging.Fields{
		"path":      path,
		"reference": ref,
	})
	return nil
}

// InsertVariable registers a variable of path, registering path first.
// Axis metadata is fixed by the first registration.
func (r *forecastRepository) InsertVariable(ctx context.Context, path, variable string, timeAxis, pressureAxis *int) error {
	if err := r.InsertFileName(ctx, path, nil); err != nil {
		return err
	}

	stmt := query.InsertIgnore(r.dialect(), "variable",
		[]string{"name", "file_id", "time_axis", "pressure_axis"},
		[]string{"?", fileIDByName, "?", "?"})
	if _, err := r.q.ExecContext(ctx, "insert_variable", stmt,
		variable, path, nullableInt(timeAxis), nullableInt(pressureAxis)); err != nil {
		return fmt.Errorf("failed to insert variable: %w", err)
	}
	return nil
}

// InsertTime records that variable of path holds timestamp t at position i.
func (r *forecastRepository) InsertTime(ctx context.Context, path, variable string, t time.Time, i int) error {
	if err := r.InsertVariable(ctx, path, variable, nil, nil); err != nil {
		return err
	}

	value := models.FormatTime(t)

	stmt := query.InsertIgnore(r.dialect(), "time", []string{"i", "value"}, []string{"?", "?"})
	if _, err := r.q.ExecContext(ctx, "insert_time", stmt, i, value); err != nil {
		return fmt.Errorf("failed to insert time: %w", err)
	}

	stmt = query.InsertIgnore(r.dialect(), "variable_to_time",
		[]string{"variable_id", "time_id"},
		[]string{variableIDByPath, timeIDByPoint})
	if _, err := r.q.ExecContext(ctx, "insert_variable_to_time", stmt, path, variable, value, i); err != nil {
		return fmt.Errorf("failed to link time: %w", err)
	}
	return nil
}

// InsertTimes inserts times with their positions as indices.
func (r *forecastRepository) InsertTimes(ctx context.Context, path, variable string, times []time.Time) error {
	for i, t := range times {
		if err := r.InsertTime(ctx, path, variable, t, i); err != nil {
			return err
		}
	}
	return nil
}

// InsertPressure records that variable of path holds pressure at position i.
func (r *forecastRepository) InsertPressure(ctx context.Context, path, variable string, pressure float64, i int) error {
	if err := r.InsertVariable(ctx, path, variable, nil, nil); err != nil {
		return err
	}

	stmt := query.InsertIgnore(r.dialect(), "pressure", []string{"i", "value"}, []string{"?", "?"})
	if _, err := r.q.ExecContext(ctx, "insert_pressure", stmt, i, pressure); err != nil {
		return fmt.Errorf("failed to insert pressure: %w", err)
	}

	stmt = query.InsertIgnore(r.dialect(), "variable_to_pressure",
		[]string{"variable_id", "pressure_id"},
		[]string{variableIDByPath, pressureIDByPoint})
	if _, err := r.q.ExecContext(ctx, "insert_variable_to_pressure", stmt, path, variable, pressure, i); err != nil {
		return fmt.Errorf("failed to link pressure: %w", err)
	}
	return nil
}

// InsertPressures inserts pressures with their positions as indices.
func (r *forecastRepository) InsertPressures(ctx context.Context, path, variable string, pressures []float64) error {
	for i, p := range pressures {
		if err := r.InsertPressure(ctx, path, variable, p, i); err != nil {
			return err
		}
	}
	return nil
}

// ListVariables returns every distinct variable name in ascending order.
func (r *forecastRepository) ListVariables(ctx context.Context) ([]string, error) {
	stmt, args := query.Select(r.dialect(), "name").Distinct().
		From("variable").
		OrderBy("name").
		ToSQL()

	names := []string{}
	if err := r.q.SelectContext(ctx, "list_variables", &names, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to list variables: %w", err)
	}
	return names, nil
}

// ListInitialTimes returns the distinct reference times of files matching
// filter, ascending. Files without a reference time are skipped.
func (r *forecastRepository) ListInitialTimes(ctx context.Context, filter models.CatalogFilter) ([]time.Time, error) {
	b := query.Select(r.dialect(), "file.reference").Distinct().From("file")
	if filter.Variable != "" {
		b.Join("variable", "variable.file_id = file.id").
			Where("variable.name = ?", filter.Variable)
	}
	stmt, args := b.Where("file.reference IS NOT NULL").
		WhereGlob("file.name", filter.Pattern).
		OrderBy("file.reference").
		ToSQL()

	var values []string
	if err := r.q.SelectContext(ctx, "list_initial_times", &values, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to list initial times: %w", err)
	}
	return parseTimes(values)
}

// ListValidTimes returns distinct time coordinate values, ascending.
func (r *forecastRepository) ListValidTimes(ctx context.Context, filter models.CatalogFilter) ([]time.Time, error) {
	b := query.Select(r.dialect(), "time.value").Distinct().From("time")
	if filter.Variable != "" || filter.Pattern != "" {
		b.Join("variable_to_time", "variable_to_time.time_id = time.id").
			Join("variable", "variable.id = variable_to_time.variable_id").
			Join("file", "file.id = variable.file_id")
		if filter.Variable != "" {
			b.Where("variable.name = ?", filter.Variable)
		}
		b.WhereGlob("file.name", filter.Pattern)
	}
	stmt, args := b.OrderBy("time.value").ToSQL()

	var values []string
	if err := r.q.SelectContext(ctx, "list_valid_times", &values, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to list valid times: %w", err)
	}
	return parseTimes(values)
}

// ListFiles returns the registered file names matching pattern, ascending.
func (r *forecastRepository) ListFiles(ctx context.Context, pattern string) ([]string, error) {
	stmt, args := query.Select(r.dialect(), "name").
		From("file").
		WhereGlob("name", pattern).
		OrderBy("name").
		ToSQL()

	names := []string{}
	if err := r.q.SelectContext(ctx, "list_files", &names, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return names, nil
}

// ListPressures returns distinct pressure levels, ascending.
func (r *forecastRepository) ListPressures(ctx context.Context, filter models.CatalogFilter) ([]float64, error) {
	b := query.Select(r.dialect(), "pressure.value").Distinct().From("pressure")
	if filter.Variable != "" || filter.Pattern != "" {
		b.Join("variable_to_pressure", "variable_to_pressure.pressure_id = pressure.id").
			Join("variable", "variable.id = variable_to_pressure.variable_id").
			Join("file", "file.id = variable.file_id")
		if filter.Variable != "" {
			b.Where("variable.name = ?", filter.Variable)
		}
		b.WhereGlob("file.name", filter.Pattern)
	}
	stmt, args := b.OrderBy("pressure.value").ToSQL()

	levels := []float64{}
	if err := r.q.SelectContext(ctx, "list_pressures", &levels, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to list pressures: %w", err)
	}
	return levels, nil
}

// FetchTimes returns the times of one variable of one file in positional
// order.
func (r *forecastRepository) FetchTimes(ctx context.Context, path, variable string) ([]time.Time, error) {
	stmt, args := query.Select(r.dialect(), "time.id AS id", "time.i AS i", "time.value AS value").
		From("time").
		Join("variable_to_time", "variable_to_time.time_id = time.id").
		Join("variable", "variable.id = variable_to_time.variable_id").
		Join("file", "file.id = variable.file_id").
		Where("file.name = ?", path).
		Where("variable.name = ?", variable).
		OrderBy("time.i").
		OrderBy("time.id").
		ToSQL()

	var rows []models.Time
	if err := r.q.SelectContext(ctx, "fetch_times", &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch times: %w", err)
	}

	values := make([]string, len(rows))
	for k, row := range rows {
		values[k] = row.Value
	}
	return parseTimes(values)
}

// FetchPressures returns the pressure levels of one variable of one file
// in positional order.
func (r *forecastRepository) FetchPressures(ctx context.Context, path, variable string) ([]float64, error) {
	stmt, args := query.Select(r.dialect(), "pressure.id AS id", "pressure.i AS i", "pressure.value AS value").
		From("pressure").
		Join("variable_to_pressure", "variable_to_pressure.pressure_id = pressure.id").
		Join("variable", "variable.id = variable_to_pressure.variable_id").
		Join("file", "file.id = variable.file_id").
		Where("file.name = ?", path).
		Where("variable.name = ?", variable).
		OrderBy("pressure.i").
		OrderBy("pressure.id").
		ToSQL()

	var rows []models.Pressure
	if err := r.q.SelectContext(ctx, "fetch_pressures", &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch pressures: %w", err)
	}

	levels := make([]float64, len(rows))
	for k, row := range rows {
		levels[k] = row.Value
	}
	return levels, nil
}

// FindTime returns every (file, index) holding variable at time t.
func (r *forecastRepository) FindTime(ctx context.Context, variable string, t time.Time) ([]models.Match, error) {
	stmt, args := query.Select(r.dialect(), "file.name AS path", "time.i AS i").
		From("file").
		Join("variable", "file.id = variable.file_id").
		Join("variable_to_time", "variable.id = variable_to_time.variable_id").
		Join("time", "time.id = variable_to_time.time_id").
		Where("variable.name = ?", variable).
		Where("time.value = ?", models.FormatTime(t)).
		OrderBy("file.id").
		OrderBy("time.i").
		ToSQL()

	matches := []models.Match{}
	if err := r.q.SelectContext(ctx, "find_time", &matches, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to find time: %w", err)
	}
	return matches, nil
}

// FindPressure returns every (file, index) holding variable at exactly
// the given pressure level.
func (r *forecastRepository) FindPressure(ctx context.Context, variable string, pressure float64) ([]models.Match, error) {
	stmt, args := query.Select(r.dialect(), "file.name AS path", "pressure.i AS i").
		From("file").
		Join("variable", "file.id = variable.file_id").
		Join("variable_to_pressure", "variable.id = variable_to_pressure.variable_id").
		Join("pressure", "pressure.id = variable_to_pressure.pressure_id").
		Where("variable.name = ?", variable).
		Where("pressure.value = ?", pressure).
		OrderBy("file.id").
		OrderBy("pressure.i").
		ToSQL()

	matches := []models.Match{}
	if err := r.q.SelectContext(ctx, "find_pressure", &matches, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to find pressure: %w", err)
	}
	return matches, nil
}

// GetFile returns the stored row of one file.
func (r *forecastRepository) GetFile(ctx context.Context, path string) (*models.File, error) {
	stmt, args := query.Select(r.dialect(), "id", "name", "reference").
		From("file").
		Where("name = ?", path).
		ToSQL()

	var rows []models.File
	if err := r.q.SelectContext(ctx, "get_file", &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Resource: "file", ID: path}
	}
	return &rows[0], nil
}

// GetVariable returns the stored row of one variable of one file.
func (r *forecastRepository) GetVariable(ctx context.Context, path, variable string) (*models.Variable, error) {
	stmt, args := query.Select(r.dialect(),
		"variable.id AS id",
		"variable.name AS name",
		"variable.file_id AS file_id",
		"variable.time_axis AS time_axis",
		"variable.pressure_axis AS pressure_axis").
		From("variable").
		Join("file", "file.id = variable.file_id").
		Where("file.name = ?", path).
		Where("variable.name = ?", variable).
		ToSQL()

	var rows []models.Variable
	if err := r.q.SelectContext(ctx, "get_variable", &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to get variable: %w", err)
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Resource: "variable", ID: path + ":" + variable}
	}
	return &rows[0], nil
}

// Summary counts the rows of every table.
func (r *forecastRepository) Summary(ctx context.Context) (*models.IndexSummary, error) {
	stmt := `
		SELECT
			(SELECT COUNT(*) FROM file) AS files,
			(SELECT COUNT(*) FROM variable) AS variables,
			(SELECT COUNT(*) FROM time) AS times,
			(SELECT COUNT(*) FROM pressure) AS pressures,
			(SELECT COUNT(*) FROM variable_to_time) AS variable_times,
			(SELECT COUNT(*) FROM variable_to_pressure) AS variable_pressures,
			(SELECT COUNT(DISTINCT name) FROM variable) AS distinct_variables,
			(SELECT COUNT(DISTINCT reference) FROM file) AS distinct_references
	`

	var summary models.IndexSummary
	if err := r.q.GetContext(ctx, "index_summary", &summary, stmt); err != nil {
		return nil, fmt.Errorf("failed to summarize index: %w", err)
	}
	return &summary, nil
}

// HealthCheck checks the underlying connection.
func (r *forecastRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

func parseTimes(values []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		t, err := models.ParseTime(v)
		if err != nil {
			return nil, fmt.Errorf("stored time is corrupt: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
