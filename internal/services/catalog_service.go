package services

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"forest/internal/models"
	"forest/internal/query"
	"forest/internal/repository"
	"forest/pkg/logging"
	"forest/pkg/metrics"
)

// CatalogService answers browse and lookup queries against the index
type CatalogService struct {
	repo    repository.ForecastRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo repository.ForecastRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *CatalogService {
	return &CatalogService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ListVariables returns the distinct variable names
func (s *CatalogService) ListVariables(ctx context.Context) ([]string, error) {
	return s.repo.ListVariables(ctx)
}

// ListFiles returns the indexed files matching pattern
func (s *CatalogService) ListFiles(ctx context.Context, pattern string) ([]string, error) {
	if err := validatePattern(pattern); err != nil {
		return nil, err
	}
	return s.repo.ListFiles(ctx, pattern)
}

// ListInitialTimes returns forecast reference times
func (s *CatalogService) ListInitialTimes(ctx context.Context, filter models.CatalogFilter) ([]time.Time, error) {
	if err := validatePattern(filter.Pattern); err != nil {
		return nil, err
	}
	return s.repo.ListInitialTimes(ctx, filter)
}

// ListValidTimes returns forecast valid times
func (s *CatalogService) ListValidTimes(ctx context.Context, filter models.CatalogFilter) ([]time.Time, error) {
	if err := validatePattern(filter.Pattern); err != nil {
		return nil, err
	}
	return s.repo.ListValidTimes(ctx, filter)
}

// ListPressures returns the stored pressure levels
func (s *CatalogService) ListPressures(ctx context.Context, filter models.CatalogFilter) ([]float64, error) {
	if err := validatePattern(filter.Pattern); err != nil {
		return nil, err
	}
	return s.repo.ListPressures(ctx, filter)
}

// FetchTimes returns the times of one variable of one file in index order
func (s *CatalogService) FetchTimes(ctx context.Context, path, variable string) ([]time.Time, error) {
	return s.repo.FetchTimes(ctx, path, variable)
}

// FetchPressures returns the pressure levels of one variable of one file
// in index order
func (s *CatalogService) FetchPressures(ctx context.Context, path, variable string) ([]float64, error) {
	return s.repo.FetchPressures(ctx, path, variable)
}

// FindTime returns every file position holding variable at t
func (s *CatalogService) FindTime(ctx context.Context, variable string, t time.Time) ([]models.Match, error) {
	return s.repo.FindTime(ctx, variable, t)
}

// FindPressure returns every file position holding variable at pressure
func (s *CatalogService) FindPressure(ctx context.Context, variable string, pressure float64) ([]models.Match, error) {
	if err := validatePressure(pressure); err != nil {
		return nil, err
	}
	return s.repo.FindPressure(ctx, variable, pressure)
}

// Locate resolves q to a file and array index. A query matching nothing
// fails with *models.NoMatchError.
func (s *CatalogService) Locate(ctx context.Context, q models.LocateQuery) (*models.Location, error) {
	if strings.TrimSpace(q.Variable) == "" {
		return nil, &models.ValidationError{Field: "variable", Message: "variable is required"}
	}
	if q.InitialTime.IsZero() {
		return nil, &models.ValidationError{Field: "initial_time", Message: "initial time is required"}
	}
	if q.ValidTime.IsZero() {
		return nil, &models.ValidationError{Field: "valid_time", Message: "valid time is required"}
	}
	if q.Pressure != nil {
		if err := validatePressure(*q.Pressure); err != nil {
			return nil, err
		}
	}
	if err := validatePattern(q.Pattern); err != nil {
		return nil, err
	}

	location, err := s.repo.Locate(ctx, q)
	if err != nil {
		if errors.Is(err, models.ErrNoMatch) {
			s.logger.Info(ctx, "[LOCATE_NO_MATCH] No record matches query", logging.Fields{
				"variable":     q.Variable,
				"initial_time": models.FormatTime(q.InitialTime),
				"valid_time":   models.FormatTime(q.ValidTime),
				"pattern":      q.Pattern,
			})
		}
		return nil, err
	}
	return location, nil
}

// validatePressure rejects NaN and infinities, which every stored level is
// equally far from.
func validatePressure(pressure float64) error {
	if math.IsNaN(pressure) || math.IsInf(pressure, 0) {
		return &models.ValidationError{
			Field:   "pressure",
			Value:   strconv.FormatFloat(pressure, 'g', -1, 64),
			Message: "pressure must be a finite number",
		}
	}
	return nil
}

func validatePattern(pattern string) error {
	if pattern == "" {
		return nil
	}
	if err := query.ValidateGlob(pattern); err != nil {
		return &models.ValidationError{Field: "pattern", Value: pattern, Message: err.Error()}
	}
	return nil
}
