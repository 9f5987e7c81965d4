// Package api exposes the import pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/auth"
	"github.com/sells-group/crm-import/internal/importer"
	"github.com/sells-group/crm-import/internal/model"
)

// Importer runs one import job.
type Importer interface {
	Run(ctx context.Context, job importer.Job) (*model.Summary, error)
}

// JobReader reads durable job records.
type JobReader interface {
	GetJob(ctx context.Context, companyID, jobID string) (*model.ImportJob, error)
}

// TokenValidator authenticates bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Tenant, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the router.
type Config struct {
	Importer Importer
	Jobs     JobReader
	Auth     TokenValidator
	Health   Pinger

	AllowedOrigins []string
	// MaxBodyBytes caps the import request body. Zero means 32 MiB.
	MaxBodyBytes int64
}

type server struct {
	cfg Config
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg Config) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s := &server{cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/contacts/import", s.importContacts)
		r.Get("/imports/{id}", s.getImport)
	})
	return r
}

func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		tenant, err := s.cfg.Auth.Validate(token)
		if err != nil {
			zap.L().Debug("api: token rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithTenant(r.Context(), tenant)))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cfg.Health.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
