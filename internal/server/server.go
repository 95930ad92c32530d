package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/splitkit/splitkit/internal/store"
)

type Server struct {
	store     store.Store
	port      int
	log       *zap.SugaredLogger
	router    *mux.Router
	startTime time.Time
}

func New(s store.Store, port int, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	srv := &Server{
		store:     s,
		port:      port,
		log:       log,
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(s.recoverMiddleware, s.logMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/experiments", s.handleListExperiments).Methods(http.MethodGet)
	r.HandleFunc("/experiments", s.handleCreateExperiment).Methods(http.MethodPost)
	r.HandleFunc("/experiments/{id}", s.handleGetExperiment).Methods(http.MethodGet)
	r.HandleFunc("/experiments/{id}", s.handleUpdateExperiment).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/experiments/{id}", s.handleDeleteExperiment).Methods(http.MethodDelete)

	r.HandleFunc("/experiments/{id}/start", s.handleStartExperiment).Methods(http.MethodPost)
	r.HandleFunc("/experiments/{id}/stop", s.handleStopExperiment).Methods(http.MethodPost)
	r.HandleFunc("/experiments/{id}/status", s.handleUpdateStatus).Methods(http.MethodPatch)

	// Browser-facing endpoints get CORS treatment.
	r.HandleFunc("/experiments/{id}/assign", s.cors(s.handleAssign)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/experiments/{id}/track", s.cors(s.handleTrack)).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/experiments/{id}/results", s.handleResults).Methods(http.MethodGet)

	r.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/experiment/{id}", s.handleDashboardExperiment).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Infow("server listening", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Errorw("handler panic", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
