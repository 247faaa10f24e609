// Package server is the HTTP surface over the job manager: job creation,
// uploads, completion, the SSE result stream, and XLSX reports.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/label-checker/internal/common"
	"github.com/joseph-ayodele/label-checker/internal/entity"
	"github.com/joseph-ayodele/label-checker/internal/jobs"
)

// JobService is the job lifecycle the handlers drive. *jobs.Manager implements it.
type JobService interface {
	CreateJob(ctx context.Context, declared int, refs []entity.ReferenceRecord) (string, []string, error)
	SubmitItems(ctx context.Context, jobID string, uploads []jobs.Upload, indices []int) ([]jobs.Ack, error)
	CompleteJob(ctx context.Context, jobID string) (jobs.Snapshot, error)
	Stream(ctx context.Context, jobID string, heartbeat time.Duration, emit jobs.EmitFunc) error
	Get(jobID string) (*jobs.Job, error)
	ActiveJobs() int
}

// ReportRenderer builds the downloadable job report.
type ReportRenderer interface {
	JobReportXLSX(ctx context.Context, jobID string, outcomes []entity.ItemOutcome, unmatched []string) ([]byte, error)
}

var _ JobService = (*jobs.Manager)(nil)

type Server struct {
	jobs      JobService
	reports   ReportRenderer
	heartbeat time.Duration
	maxUpload int64
	logger    *slog.Logger
}

// NewServer builds the HTTP handlers. maxUpload caps one upload request body.
func NewServer(svc JobService, reports ReportRenderer, heartbeat time.Duration, maxUpload int64, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		jobs:      svc,
		reports:   reports,
		heartbeat: heartbeat,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Routes returns the chi router for the service.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestContext)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", s.createJob)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Post("/upload", s.uploadFiles)
			r.Post("/complete", s.completeJob)
			r.Get("/stream", s.streamResults)
			r.Get("/report.xlsx", s.downloadReport)
		})
	})
	return r
}

// requestContext copies chi's request id into the shared context helpers.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = common.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
