// Package api exposes the workspace over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/sells-group/groundwater-cli/internal/correction"
	"github.com/sells-group/groundwater-cli/internal/ingest"
	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/reasoning"
	"github.com/sells-group/groundwater-cli/internal/review"
	"github.com/sells-group/groundwater-cli/internal/risk"
	"github.com/sells-group/groundwater-cli/internal/store"
	"github.com/sells-group/groundwater-cli/internal/workspace"
)

// Workspace is the set of dataset operations the API serves.
type Workspace interface {
	Import(ctx context.Context, name string, r io.Reader, format ingest.Format) (*workspace.ImportResult, error)
	Datasets(ctx context.Context) ([]model.Dataset, error)
	Samples(ctx context.Context, datasetID string) ([]model.Sample, error)
	Summary(ctx context.Context, datasetID string) (*risk.Summary, error)
	Rescore(ctx context.Context, datasetID string) (*risk.BatchResult, error)
	Validate(ctx context.Context, datasetID string) (*model.StoredAssessment, error)
	Assessment(ctx context.Context, datasetID string) (*model.StoredAssessment, error)
	Insights(ctx context.Context, datasetID string) (*review.InsightsOutcome, error)
	AcceptCorrections(ctx context.Context, datasetID string) (*correction.Result, error)
	RejectCorrections(ctx context.Context, datasetID string) (int, error)
	Audit(ctx context.Context, datasetID string) ([]model.AuditEntry, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	Metrics        http.Handler // served at /metrics when set
	MaxUploadBytes int64
}

// Server holds the handlers.
type Server struct {
	ws   Workspace
	opts Options
}

// NewRouter builds the HTTP handler for ws.
func NewRouter(ws Workspace, opts Options) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	s := &Server{ws: ws, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	r.Get("/template", s.template)

	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", s.listDatasets)
		r.Post("/", s.importDataset)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/samples", s.samples)
			r.Get("/summary", s.summary)
			r.Post("/rescore", s.rescore)
			r.Post("/validate", s.validate)
			r.Get("/assessment", s.assessment)
			r.Post("/insights", s.insights)
			r.Post("/corrections/accept", s.acceptCorrections)
			r.Post("/corrections/reject", s.rejectCorrections)
			r.Get("/audit", s.audit)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// fail maps err to a status code and writes it.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorResponse{Error: err.Error()}

	var sue *reasoning.ServiceUnavailableError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &sue):
		status = http.StatusServiceUnavailable
		body.Error = sue.Reason
		body.Retryable = true
	case errors.Is(err, workspace.ErrStaleResult):
		status = http.StatusConflict
	case errors.Is(err, correction.ErrBatchDecided), errors.Is(err, workspace.ErrNoCorrections):
		status = http.StatusConflict
	case errors.Is(err, workspace.ErrEmptyDataset):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		body.Error = "internal error"
	}
	render.Status(r, status)
	render.JSON(w, r, body)
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{Error: msg})
}
