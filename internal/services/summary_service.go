package services

import (
	"context"
	"fmt"

	"forest/internal/models"
	"forest/internal/repository"
	"forest/pkg/logging"
	"forest/pkg/metrics"
)

// SummaryService reports what the index holds
type SummaryService struct {
	repo    repository.ForecastRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// VariableCoverage describes the coordinates stored for one variable name
type VariableCoverage struct {
	Name         string  `json:"name"`
	InitialTimes int     `json:"initial_times"`
	ValidTimes   int     `json:"valid_times"`
	Pressures    int     `json:"pressures"`
	MinPressure  float64 `json:"min_pressure,omitempty"`
	MaxPressure  float64 `json:"max_pressure,omitempty"`
}

// IndexReport combines table counts with per-variable coverage
type IndexReport struct {
	Summary   *models.IndexSummary `json:"summary"`
	Variables []VariableCoverage   `json:"variables"`
}

// NewSummaryService creates a new summary service
func NewSummaryService(repo repository.ForecastRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SummaryService {
	return &SummaryService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Summary returns the row counts of the index
func (s *SummaryService) Summary(ctx context.Context) (*models.IndexSummary, error) {
	return s.repo.Summary(ctx)
}

// Report builds an IndexReport. A variable whose coverage cannot be read
// is logged and skipped.
func (s *SummaryService) Report(ctx context.Context) (*IndexReport, error) {
	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, err
	}

	names, err := s.repo.ListVariables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list variables: %w", err)
	}

	report := &IndexReport{
		Summary:   summary,
		Variables: make([]VariableCoverage, 0, len(names)),
	}

	for _, name := range names {
		coverage, err := s.coverage(ctx, name)
		if err != nil {
			s.logger.Error(ctx, "[SUMMARY_VARIABLE_ERROR] Failed to read variable coverage", logging.Fields{
				"variable": name,
			}, err)
			continue
		}
		report.Variables = append(report.Variables, *coverage)
	}

	s.logger.Info(ctx, "[SUMMARY_COMPLETE] Index report built", logging.Fields{
		"files":     summary.Files,
		"variables": len(report.Variables),
	})

	return report, nil
}

func (s *SummaryService) coverage(ctx context.Context, name string) (*VariableCoverage, error) {
	filter := models.CatalogFilter{Variable: name}

	initial, err := s.repo.ListInitialTimes(ctx, filter)
	if err != nil {
		return nil, err
	}
	valid, err := s.repo.ListValidTimes(ctx, filter)
	if err != nil {
		return nil, err
	}
	levels, err := s.repo.ListPressures(ctx, filter)
	if err != nil {
		return nil, err
	}

	c := &VariableCoverage{
		Name:         name,
		InitialTimes: len(initial),
		ValidTimes:   len(valid),
		Pressures:    len(levels),
	}
	if len(levels) > 0 {
		c.MinPressure = levels[0]
		c.MaxPressure = levels[len(levels)-1]
	}
	return c, nil
}
