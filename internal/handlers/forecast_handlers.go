package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forest/internal/models"
	"forest/internal/services"
	"forest/pkg/logging"
	"forest/pkg/metrics"
)

// RequestIDHeader carries the request ID in and out of the API.
const RequestIDHeader = "X-Request-ID"

// HealthChecker reports whether the index store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ForecastHandler handles forecast index API endpoints
type ForecastHandler struct {
	catalog  *services.CatalogService
	summary  *services.SummaryService
	health   HealthChecker
	patterns map[string]string
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewForecastHandler creates a new forecast handler. patterns maps names
// to file globs; a pattern parameter equal to a name uses its glob.
func NewForecastHandler(
	catalog *services.CatalogService,
	summary *services.SummaryService,
	health HealthChecker,
	patterns map[string]string,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ForecastHandler {
	if patterns == nil {
		patterns = map[string]string{}
	}
	return &ForecastHandler{
		catalog:  catalog,
		summary:  summary,
		health:   health,
		patterns: patterns,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PatternResponse is one named file pattern
type PatternResponse struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
}

// GetVariables handles GET /api/variables
func (h *ForecastHandler) GetVariables(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/variables", time.Now())

	names, err := h.catalog.ListVariables(r.Context())
	if err != nil {
		h.handleError(w, r, "/api/variables", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/variables", "GET", "200")
	h.sendJSON(w, map[string]interface{}{"variables": names, "count": len(names)}, http.StatusOK)
}

// GetFiles handles GET /api/files
func (h *ForecastHandler) GetFiles(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/files", time.Now())

	files, err := h.catalog.ListFiles(r.Context(), h.pattern(r))
	if err != nil {
		h.handleError(w, r, "/api/files", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/files", "GET", "200")
	h.sendJSON(w, map[string]interface{}{"files": files, "count": len(files)}, http.StatusOK)
}

// GetInitialTimes handles GET /api/initial_times
func (h *ForecastHandler) GetInitialTimes(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/initial_times", time.Now())

	times, err := h.catalog.ListInitialTimes(r.Context(), h.filter(r))
	if err != nil {
		h.handleError(w, r, "/api/initial_times", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/initial_times", "GET", "200")
	h.sendJSON(w, map[string]interface{}{"initial_times": formatTimes(times), "count": len(times)}, http.StatusOK)
}

// GetValidTimes handles GET /api/valid_times
func (h *ForecastHandler) GetValidTimes(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/valid_times", time.Now())

	times, err := h.catalog.ListValidTimes(r.Context(), h.filter(r))
	if err != nil {
		h.handleError(w, r, "/api/valid_times", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/valid_times", "GET", "200")
	h.sendJSON(w, map[string]interface{}{"valid_times": formatTimes(times), "count": len(times)}, http.StatusOK)
}

// GetPressures handles GET /api/pressures
func (h *ForecastHandler) GetPressures(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/pressures", time.Now())

	levels, err := h.catalog.ListPressures(r.Context(), h.filter(r))
	if err != nil {
		h.handleError(w, r, "/api/pressures", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/pressures", "GET", "200")
	h.sendJSON(w, map[string]interface{}{"pressures": levels, "count": len(levels)}, http.StatusOK)
}

// GetPatterns handles GET /api/patterns
func (h *ForecastHandler) GetPatterns(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/patterns", time.Now())

	names := make([]string, 0, len(h.patterns))
	for name := range h.patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	patterns := make([]PatternResponse, 0, len(names))
	for _, name := range names {
		patterns = append(patterns, PatternResponse{Name: name, Pattern: h.patterns[name]})
	}

	h.metrics.RecordAPIRequest("/api/patterns", "GET", "200")
	h.sendJSON(w, map[string]interface{}{"patterns": patterns, "count": len(patterns)}, http.StatusOK)
}

// Locate handles GET /api/locate
func (h *ForecastHandler) Locate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/locate", time.Now())

	params := r.URL.Query()
	q := models.LocateQuery{
		Variable: params.Get("variable"),
		Pattern:  h.pattern(r),
	}

	var err error
	if q.InitialTime, err = parseTimeParam("initial_time", params.Get("initial_time")); err != nil {
		h.handleError(w, r, "/api/locate", err)
		return
	}
	if q.ValidTime, err = parseTimeParam("valid_time", params.Get("valid_time")); err != nil {
		h.handleError(w, r, "/api/locate", err)
		return
	}
	if raw := params.Get("pressure"); raw != "" {
		pressure, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.handleError(w, r, "/api/locate", &models.ValidationError{
				Field:   "pressure",
				Value:   raw,
				Message: "invalid pressure, expected a number",
			})
			return
		}
		q.Pressure = &pressure
	}

	location, err := h.catalog.Locate(ctx, q)
	if err != nil {
		h.handleError(w, r, "/api/locate", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/locate", "GET", "200")
	h.sendJSON(w, location, http.StatusOK)
}

// GetStats handles GET /api/stats
func (h *ForecastHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/stats", time.Now())

	report, err := h.summary.Report(r.Context())
	if err != nil {
		h.handleError(w, r, "/api/stats", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/stats", "GET", "200")
	h.sendJSON(w, report, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *ForecastHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.health.HealthCheck(ctx); err != nil {
		h.logger.Error(ctx, "[HEALTH_CHECK_FAILED] Index store unreachable", logging.Fields{}, err)
		status["status"] = "unhealthy"
		h.metrics.RecordAPIRequest("/health", r.Method, "503")
		h.sendJSON(w, status, http.StatusServiceUnavailable)
		return
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

// RequestID tags every request with an ID, reusing the caller's
// X-Request-ID when present, and puts it into the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (h *ForecastHandler) observe(endpoint string, start time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// pattern reads the pattern parameter, expanding configured names.
func (h *ForecastHandler) pattern(r *http.Request) string {
	p := r.URL.Query().Get("pattern")
	if glob, ok := h.patterns[p]; ok {
		return glob
	}
	return p
}

func (h *ForecastHandler) filter(r *http.Request) models.CatalogFilter {
	return models.CatalogFilter{
		Variable: r.URL.Query().Get("variable"),
		Pattern:  h.pattern(r),
	}
}

// handleError maps service errors onto HTTP status codes.
func (h *ForecastHandler) handleError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var validation *models.ValidationError
	switch {
	case errors.As(err, &validation):
		h.metrics.RecordAPIError("validation_error", endpoint)
		h.sendError(w, r, validation.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrNoMatch):
		h.metrics.RecordAPIError("no_match", endpoint)
		h.sendError(w, r, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error(r.Context(), "[API_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint,
			"query":    r.URL.RawQuery,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "failed to query forecast index", http.StatusInternalServerError)
	}
}

// sendJSON sends a JSON response
func (h *ForecastHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *ForecastHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all forecast API routes
func (h *ForecastHandler) RegisterRoutes(router *mux.Router) {
	router.Use(RequestID)

	router.HandleFunc("/api/variables", h.GetVariables).Methods("GET")
	router.HandleFunc("/api/files", h.GetFiles).Methods("GET")
	router.HandleFunc("/api/initial_times", h.GetInitialTimes).Methods("GET")
	router.HandleFunc("/api/valid_times", h.GetValidTimes).Methods("GET")
	router.HandleFunc("/api/pressures", h.GetPressures).Methods("GET")
	router.HandleFunc("/api/patterns", h.GetPatterns).Methods("GET")
	router.HandleFunc("/api/locate", h.Locate).Methods("GET")
	router.HandleFunc("/api/stats", h.GetStats).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.Handler())
}

func parseTimeParam(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, &models.ValidationError{Field: field, Message: field + " is required"}
	}
	t, err := models.ParseInputTime(raw)
	if err != nil {
		return time.Time{}, &models.ValidationError{
			Field:   field,
			Value:   raw,
			Message: "invalid " + field + ": " + err.Error(),
		}
	}
	return t, nil
}

func formatTimes(times []time.Time) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = models.FormatTime(t)
	}
	return out
}
