// Package httpapi is the HTTP transport: a chi router exposing onboarding,
// session rotation and tenant records behind the auth gate.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/logging"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/gate"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/models"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/records"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/tenants"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// SessionManager enrolls users and reissues and revokes their opaque
// session tokens.
type SessionManager interface {
	Enroll(ctx context.Context, email string) (*models.User, string, error)
	Rotate(ctx context.Context, userID string) (string, error)
	Revoke(ctx context.Context, userID string) error
}

type Options struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// OnboardingRate is the sustained onboarding requests per second
	// accepted by this process. Zero disables the limit.
	OnboardingRate  float64
	OnboardingBurst int
	// AdminKey guards user enrollment. Empty leaves the route out.
	AdminKey string
}

type Server struct {
	opts        Options
	gate        *gate.Gate
	provisioner *tenants.Provisioner
	records     *records.Service
	sessions    SessionManager
	metrics     *metrics.Metrics
	logger      logging.Logger
	limiter     *rate.Limiter
	handler     http.Handler
}

// New builds the router. sessions and m may be nil, which leaves out the
// session and metrics endpoints.
func New(o Options, g *gate.Gate, p *tenants.Provisioner, rs *records.Service, sessions SessionManager, m *metrics.Metrics, l logging.Logger) *Server {
	if l == nil {
		l = logging.Nop{}
	}

	limit := rate.Inf
	if o.OnboardingRate > 0 {
		limit = rate.Limit(o.OnboardingRate)
	}
	burst := o.OnboardingBurst
	if burst < 1 {
		burst = 1
	}

	s := &Server{
		opts:        o,
		gate:        g,
		provisioner: p,
		records:     rs,
		sessions:    sessions,
		metrics:     m,
		logger:      l.With("module", "http_server"),
		limiter:     rate.NewLimiter(limit, burst),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, middleware.Recoverer, s.logRequests)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	protect := s.gate.Protect
	tenantScoped := func(h gate.Handler) http.HandlerFunc {
		return adapt(gate.Chain(h, protect, gate.RequireTenant))
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(s.limitOnboarding).Post("/onboarding", adapt(gate.Chain(s.onboard, protect)))

		if s.sessions != nil {
			if s.opts.AdminKey != "" {
				r.Post("/users", adapt(s.enroll))
			}
			r.Post("/session/rotate", adapt(gate.Chain(s.rotateSession, protect)))
			r.Post("/session/revoke", adapt(gate.Chain(s.revokeSession, protect)))
		}

		r.Route("/modules/{table}", func(r chi.Router) {
			r.Get("/", tenantScoped(s.listRecords))
			r.Post("/", tenantScoped(s.createRecord))
			r.Get("/{id}", tenantScoped(s.getRecord))
			r.Delete("/{id}", tenantScoped(s.deleteRecord))
		})
	})

	return r
}

func (s *Server) limitOnboarding(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many onboarding requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestID propagates the caller's X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(common.RequestIDHeaderName)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(common.RequestIDHeaderName, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info(r.Context(), "request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.handler,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.opts.Address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
