package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/flood-trigger-service/internal/pipeline"
)

// ReportSource exposes the most recent analysis run.
type ReportSource interface {
	sharedobs.ReadinessChecker
	LastReport() (pipeline.RunReport, bool)
}

// Server exposes health, readiness, metrics, and run report HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /report and /decisions routes.
func NewServer(addr string, src ReportSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(src))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /report", handleReport(src))
	mux.HandleFunc("GET /decisions", handleDecisions(src))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleReport(src ReportSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report, ok := src.LastReport()
		if !ok {
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no analysis run yet"})
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, report)
	}
}

// handleDecisions lists the latest run's decisions, optionally narrowed to
// one country with ?country=.
func handleDecisions(src ReportSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, ok := src.LastReport()
		if !ok {
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no analysis run yet"})
			return
		}
		country := r.URL.Query().Get("country")
		if country == "" {
			sharedobs.WriteJSON(w, http.StatusOK, report.Decisions())
			return
		}
		for _, c := range report.Countries {
			if c.Country == country {
				sharedobs.WriteJSON(w, http.StatusOK, c.Decisions)
				return
			}
		}
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "unknown country " + country})
	}
}
