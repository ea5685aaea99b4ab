package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"receipt-drop/internal/blob"
	"receipt-drop/internal/db"
	"receipt-drop/internal/receipts"
)

// Build identifies the running binary.
type Build struct {
	Version string
	Commit  string
}

type Config struct {
	Addr string // e.g. ":3001"
	Env  string

	Uploader *receipts.Uploader
	Store    db.Store
	Blobs    blob.Store

	CORSOrigins []string
	// UploadRateLimit caps uploads per client IP per minute; 0 disables it.
	UploadRateLimit int
	// TrustProxy makes client IPs come from X-Forwarded-For / X-Real-IP.
	// Enable it only behind a proxy that overwrites those headers.
	TrustProxy      bool
	Build           Build
	Logger          *slog.Logger
}

type Server struct {
	httpServer *http.Server

	log        *slog.Logger
	env        string
	build      Build
	uploader   *receipts.Uploader
	store      db.Store
	blobs      blob.Store
	metrics    *Metrics
	limiter    *rateLimiter
	trustProxy bool
}

// breakerStats is implemented by db.Breaker.
type breakerStats interface {
	Stats() db.BreakerStats
}

func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		log:        log,
		env:        cfg.Env,
		build:      cfg.Build,
		uploader:   cfg.Uploader,
		store:      cfg.Store,
		blobs:      cfg.Blobs,
		metrics:    NewMetrics(),
		trustProxy: cfg.TrustProxy,
	}

	r := chi.NewRouter()

	// requestID -> logging -> recover -> headers -> compress -> cors -> routes
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeadersMiddleware)
	r.Use(middleware.Compress(5, "application/json", "text/plain"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Not found", string(receipts.KindNotFound), "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed", "METHOD_NOT_ALLOWED", "")
	})

	r.Get("/", s.handleIndex)
	r.Get("/health", s.HandleHealth)
	r.Get("/ready", s.HandleReady)
	r.Get("/live", s.HandleLive)
	r.Get("/metrics", s.PrometheusHandler())

	r.Route("/api/receipts", func(r chi.Router) {
		if cfg.UploadRateLimit > 0 {
			s.limiter = newRateLimiter(cfg.UploadRateLimit, time.Minute)
			r.With(s.limiter.middleware(s.clientIP)).Post("/", s.handleUpload)
		} else {
			r.Post("/", s.handleUpload)
		}
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
	})

	r.Get("/uploads/*", s.handleFile)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Metrics returns the server's counters.
func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info("listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.close()
	}
	return s.httpServer.Shutdown(ctx)
}
