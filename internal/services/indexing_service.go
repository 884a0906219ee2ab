package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"forest/internal/models"
	"forest/internal/repository"
	"forest/internal/source"
	"forest/pkg/logging"
	"forest/pkg/metrics"
)

// DefaultFilePattern selects forecast files in a directory.
const DefaultFilePattern = "*.nc"

// IndexingService loads forecast file metadata into the index
type IndexingService struct {
	repo    repository.ForecastRepository
	reader  source.Reader
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	clock   clockwork.Clock
}

// IndexingResult contains batch indexing statistics
type IndexingResult struct {
	TotalFiles     int           `json:"total_files"`
	IndexedFiles   int           `json:"indexed_files"`
	Variables      int           `json:"variables"`
	TimePoints     int           `json:"time_points"`
	PressurePoints int           `json:"pressure_points"`
	Duration       time.Duration `json:"duration_ns"`
	FailedFiles    []string      `json:"failed_files"`
	Errors         []string      `json:"errors"`
}

// FileIndexResult contains per-file indexing statistics
type FileIndexResult struct {
	Path           string
	Reference      *time.Time
	Variables      int
	TimePoints     int
	PressurePoints int
}

// NewIndexingService creates a new indexing service
func NewIndexingService(repo repository.ForecastRepository, reader source.Reader, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IndexingService {
	return &IndexingService{
		repo:    repo,
		reader:  reader,
		logger:  logger,
		metrics: metricsCollector,
		clock:   clockwork.NewRealClock(),
	}
}

// WithClock replaces the clock used to time batches.
func (s *IndexingService) WithClock(clock clockwork.Clock) *IndexingService {
	s.clock = clock
	return s
}

// IndexDirectory indexes every file in dir matching pattern
// (DefaultFilePattern when empty).
func (s *IndexingService) IndexDirectory(ctx context.Context, dir, pattern string) (*IndexingResult, error) {
	if pattern == "" {
		pattern = DefaultFilePattern
	}

	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files matching %s found in %s", pattern, dir)
	}
	sort.Strings(files)

	s.logger.Info(ctx, "[INDEX_FILES] Found forecast files", logging.Fields{
		"dir":        dir,
		"pattern":    pattern,
		"file_count": len(files),
		"stage":      "FILE_DISCOVERY",
	})

	return s.IndexFiles(ctx, files), nil
}

// IndexFiles indexes paths in order. A failing file is recorded in the
// result and never stops the batch.
func (s *IndexingService) IndexFiles(ctx context.Context, paths []string) *IndexingResult {
	start := s.clock.Now()

	s.logger.Info(ctx, "[INDEX_START] Starting indexing", logging.Fields{
		"file_count": len(paths),
		"stage":      "INITIALIZATION",
	})

	result := &IndexingResult{
		TotalFiles:  len(paths),
		FailedFiles: make([]string, 0),
		Errors:      make([]string, 0),
	}

	for _, path := range paths {
		if ctx.Err() != nil {
			result.FailedFiles = append(result.FailedFiles, path)
			result.Errors = append(result.Errors, fmt.Sprintf("failed to index %s: %v", path, ctx.Err()))
			continue
		}

		fileResult, err := s.indexFile(ctx, path)
		if err != nil {
			result.FailedFiles = append(result.FailedFiles, path)
			result.Errors = append(result.Errors, fmt.Sprintf("failed to index %s: %v", path, err))
			continue
		}

		result.IndexedFiles++
		result.Variables += fileResult.Variables
		result.TimePoints += fileResult.TimePoints
		result.PressurePoints += fileResult.PressurePoints
	}

	result.Duration = s.clock.Since(start)
	s.metrics.IndexDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INDEX_COMPLETE] Indexing completed", logging.Fields{
		"total_files":      result.TotalFiles,
		"indexed_files":    result.IndexedFiles,
		"failed_files":     len(result.FailedFiles),
		"variables":        result.Variables,
		"time_points":      result.TimePoints,
		"pressure_points":  result.PressurePoints,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return result
}

// IndexFile indexes one file. Either all of its rows are stored or none.
func (s *IndexingService) IndexFile(ctx context.Context, path string) error {
	_, err := s.indexFile(ctx, path)
	return err
}

type variablePlan struct {
	name         string
	timeAxis     *int
	pressureAxis *int
	times        []time.Time
	pressures    []float64
}

func (s *IndexingService) indexFile(ctx context.Context, path string) (*FileIndexResult, error) {
	log := s.logger.WithFields(logging.Fields{"path": path})
	log.Debug(ctx, "[INDEX_FILE_START] Indexing file", logging.Fields{
		"stage": "FILE_PROCESSING",
	})

	result, errorType, err := s.applyFile(ctx, path, log)
	if err != nil {
		s.metrics.RecordIndexError(errorType)
		s.metrics.RecordIndexedFile("failed")
		log.Error(ctx, "[INDEX_FILE_ERROR] File indexing failed", logging.Fields{
			"error_type": errorType,
			"stage":      "FILE_PROCESSING",
		}, err)
		return nil, err
	}

	s.metrics.RecordIndexedFile("success")
	s.metrics.IndexVariablesTotal.Add(float64(result.Variables))
	s.metrics.RecordCoordinates(source.TimeCoordinate, result.TimePoints)
	s.metrics.RecordCoordinates(source.PressureCoordinate, result.PressurePoints)

	log.Info(ctx, "[INDEX_FILE_SUCCESS] File indexed successfully", logging.Fields{
		"variables":       result.Variables,
		"time_points":     result.TimePoints,
		"pressure_points": result.PressurePoints,
		"stage":           "FILE_COMPLETE",
	})

	return result, nil
}

// applyFile decodes everything first, so the transaction only writes.
// On failure it also reports the error type for metrics.
func (s *IndexingService) applyFile(ctx context.Context, path string, log *logging.ContextLogger) (*FileIndexResult, string, error) {
	ds, err := s.reader.Read(ctx, path)
	if err != nil {
		return nil, readErrorType(err), fmt.Errorf("failed to read file: %w", err)
	}

	reference, err := ds.ReferenceTime()
	if err != nil {
		return nil, "malformed_source", err
	}

	plans, err := planVariables(ds)
	if err != nil {
		return nil, "malformed_source", err
	}

	result := &FileIndexResult{Path: path, Reference: reference, Variables: len(plans)}
	for _, p := range plans {
		result.TimePoints += len(p.times)
		result.PressurePoints += len(p.pressures)
	}

	err = s.repo.WithTx(ctx, func(tx repository.ForecastRepository) error {
		if err := tx.InsertFileName(ctx, path, reference); err != nil {
			return err
		}
		stored, err := tx.GetFile(ctx, path)
		if err != nil {
			return err
		}
		if kept, read := referenceText(stored.Reference), referenceText(formatReference(reference)); kept != read {
			log.Warn(ctx, "[INDEX_REFERENCE_MISMATCH] File already registered with another reference time", logging.Fields{
				"stored_reference": kept,
				"file_reference":   read,
			})
		}

		for _, p := range plans {
			if err := tx.InsertVariable(ctx, path, p.name, p.timeAxis, p.pressureAxis); err != nil {
				return err
			}
			if err := tx.InsertTimes(ctx, path, p.name, p.times); err != nil {
				return err
			}
			if err := tx.InsertPressures(ctx, path, p.name, p.pressures); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, "storage_error", fmt.Errorf("failed to store index: %w", err)
	}

	return result, "", nil
}

func formatReference(reference *time.Time) *string {
	if reference == nil {
		return nil
	}
	text := models.FormatTime(*reference)
	return &text
}

func referenceText(reference *string) string {
	if reference == nil {
		return "none"
	}
	return *reference
}

// planVariables resolves the axes and decodes the coordinates of every
// diagnostic in ds. A missing coordinate is not an error.
func planVariables(ds *source.Dataset) ([]variablePlan, error) {
	diagnostics := ds.Diagnostics()
	plans := make([]variablePlan, 0, len(diagnostics))

	for _, v := range diagnostics {
		p := variablePlan{
			name:         v.Name,
			timeAxis:     source.ResolveAxis(ds, v, source.TimeCoordinate),
			pressureAxis: source.ResolveAxis(ds, v, source.PressureCoordinate),
		}

		if tc, ok := source.FindCoordinate(ds, v, source.TimeCoordinate); ok {
			times, err := source.DecodeTimes(ds.Path, tc)
			if err != nil {
				return nil, err
			}
			p.times = times
		}

		if pc, ok := source.FindCoordinate(ds, v, source.PressureCoordinate); ok {
			pressures, err := source.DecodePressures(ds.Path, pc)
			if err != nil {
				return nil, err
			}
			p.pressures = pressures
		}

		plans = append(plans, p)
	}
	return plans, nil
}

func readErrorType(err error) string {
	switch {
	case errors.Is(err, models.ErrMalformedSource):
		return "malformed_source"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "read_error"
	}
}
