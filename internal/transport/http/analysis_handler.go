package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"cytolab/internal/analysis"
	apierrors "cytolab/internal/errors"
)

// AnalysisHandler handles analysis-related HTTP requests
type AnalysisHandler struct {
	engine *analysis.Engine
	logger *slog.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(engine *analysis.Engine, logger *slog.Logger) *AnalysisHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisHandler{
		engine: engine,
		logger: logger.With(slog.String("component", "analysis_handler")),
	}
}

// Routes returns the analysis routes
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/overview", h.GetOverview)
	r.Get("/frequencies", h.GetFrequencies)
	r.Get("/statistical", h.GetStatistical)
	r.Get("/statistical/chart", h.GetStatisticalChart)
	r.Get("/subset", h.GetSubset)

	return r
}

// GetOverview returns the cohort-wide descriptive summary
func (h *AnalysisHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Overview(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// GetFrequencies returns the per-sample relative frequency table
func (h *AnalysisHandler) GetFrequencies(w http.ResponseWriter, r *http.Request) {
	table, err := h.engine.SampleFrequencies(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, table)
}

// GetStatistical returns the responders vs non-responders comparison. The
// chart artifact is served separately by GetStatisticalChart.
func (h *AnalysisHandler) GetStatistical(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.StatisticalAnalysis(r.Context(), h.statisticalOptions(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// GetStatisticalChart returns the comparison box plot as a PNG image
func (h *AnalysisHandler) GetStatisticalChart(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.StatisticalAnalysis(r.Context(), h.statisticalOptions(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if result.Chart == nil {
		_ = render.Render(w, r, apierrors.NotFoundError("chart"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Chart.Data); err != nil {
		h.logger.Error("failed to write chart response", "error", err)
	}
}

// GetSubset returns the filtered cohort summary. Query parameters map
// one-to-one to filter attributes; unknown attributes are rejected.
func (h *AnalysisHandler) GetSubset(w http.ResponseWriter, r *http.Request) {
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 && values[0] != "" {
			params[key] = values[0]
		}
	}

	filters, err := analysis.ParseFilters(params)
	if err != nil {
		_ = render.Render(w, r, apierrors.ErrValidation("filters", err.Error()))
		return
	}

	result, err := h.engine.SubsetAnalysis(r.Context(), filters)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

func (h *AnalysisHandler) statisticalOptions(r *http.Request) analysis.StatisticalOptions {
	return analysis.StatisticalOptions{Treatment: r.URL.Query().Get("treatment")}
}

func (h *AnalysisHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("analysis request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
	_ = render.Render(w, r, apierrors.AnalysisError(err))
}
