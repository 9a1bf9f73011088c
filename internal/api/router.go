package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/openvillage/plaza/internal/api/middleware"
	"github.com/openvillage/plaza/internal/config"
	"github.com/openvillage/plaza/internal/handlers"
	"github.com/openvillage/plaza/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, db store.DataStore, redisStore *store.RedisStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})
	r.Use(limiter.Middleware)

	// CORS - allow all origins (the dashboard and agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Plaza-Producer", "X-Plaza-Nonce", "X-Plaza-Timestamp", "X-Plaza-Signature", "X-Plaza-Session"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, redisStore, cfg.GateHash)
	auth := middleware.NewAuthMiddleware(db, redisStore)
	gate := middleware.NewSessionGate(redisStore, cfg.GateHash)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/register", h.Register)
	r.Post("/session", h.OpenSession)

	// Read routes, behind the operator gate when one is configured
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireSession)

		r.Get("/events", h.GetEvents)
		r.Get("/find", h.Search)
		r.Get("/who/{id}", h.Who)
		r.Get("/participants", h.Participants)
		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{id}", h.GetTask)
		r.Get("/scores/{sender}", h.GetScorecard)
	})

	// Operator submission (gated like reads)
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireSession)
		r.Post("/events", h.SubmitEvent)
	})

	// Producer routes (require signature)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireProducer)

		r.Post("/ingest", h.Ingest)
		r.Post("/tasks/{id}/claim", h.ClaimTask)
		r.Post("/tasks/{id}/status", h.UpdateTaskStatus)
		r.Put("/scores/{sender}", h.PutScorecard)
	})

	return r
}
