// Package api serves the adapter over HTTP: uploads or remote sources in,
// converted datasets out.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/geodata/internal/fetcher"
	"github.com/sells-group/geodata/internal/geodata"
	"github.com/sells-group/geodata/internal/store"
)

// Options configures the HTTP service.
type Options struct {
	// NewAdapter returns a fresh adapter per request; adapters are not
	// shared between requests.
	NewAdapter func() *geodata.Adapter
	// Journal records conversions when set.
	Journal store.Journal
	// Resolver fetches "source" URLs when set.
	Resolver *fetcher.Resolver

	MaxUploadBytes int64
	RateLimit      float64 // requests per second across all clients; 0 disables
	RateBurst      int
	AllowedOrigins []string
	TempDir        string
	RequestTimeout time.Duration
}

// Server is the HTTP conversion service.
type Server struct {
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 256 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 10 * time.Minute
	}
	s := &Server{
		opts: opts,
		log:  zap.L().With(zap.String("component", "api")),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RateLimit) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", headerRequestID},
		ExposedHeaders: []string{headerRequestID, headerFeatureCount, "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(middleware.Timeout(s.opts.RequestTimeout))

		r.Get("/formats", s.handleFormats)
		r.Post("/info", s.handleInfo)
		r.Post("/convert", s.handleConvert)
		r.Post("/union", s.handleUnion)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})

	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
