package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/cpextract/internal/config"
	"github.com/dgallion1/cpextract/internal/pipeline"
	"github.com/dgallion1/cpextract/internal/problem"
	"github.com/dgallion1/cpextract/internal/recognize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for cpextract.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	splitter     *problem.Splitter
	llm          *recognize.Instrumented
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. llm may be nil, in which
// case the stats endpoint reports it as unavailable.
func NewServer(orch *pipeline.Orchestrator, splitter *problem.Splitter, llm *recognize.Instrumented, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		splitter:     splitter,
		llm:          llm,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.ServerAPIKey, s.log))

		r.Post("/api/convert", s.handleConvert)
		r.Post("/api/convert/batch", s.handleBatchConvert)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)

		r.Post("/api/validate", s.handleValidate)
		r.Post("/api/split", s.handleSplit)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
