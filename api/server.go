/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client address behind a proxy
  3. RequestLogger: zerolog line per request, logger in context
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Cross-origin requests for the web and mobile clients
  6. auth:          Bearer token on everything except auth and health

ROUTE GROUPS:
  /api/auth/*        Registration and login (public)
  /api/health        Liveness and database check (public)
  /api/students/*    Students, balances, statements, packages
  /api/lessons/*     Scheduling and lifecycle
  /api/payments/*    Payments
  /api/dashboard/*   Summary, earnings, top student, reports
  /api/settings      Teacher settings
  /api/scenarios/*   Demo data (only with RouterConfig.DemoScenarios)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/warp/lesson-ledger/auth"
	"github.com/warp/lesson-ledger/logging"
)

type RouterConfig struct {
	Logger           zerolog.Logger
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
	DemoScenarios    bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(h.Tokens, Unauthorized))

			// Student routes
			r.Route("/students", func(r chi.Router) {
				r.Get("/", h.ListStudents)
				r.Post("/", h.CreateStudent)
				r.Post("/add-package", h.AddPackage)
				r.Get("/{id}", h.GetStudent)
				r.Put("/{id}", h.UpdateStudent)
				r.Get("/{id}/balance", h.GetBalance)
				r.Get("/{id}/lessons", h.ListStudentLessons)
				r.Get("/{id}/statement", h.GetStatement)
			})

			// Lesson routes
			r.Route("/lessons", func(r chi.Router) {
				r.Post("/", h.CreateLesson)
				r.Get("/all", h.ListAllLessons)
				r.Get("/student/{id}", h.ListStudentLessons)
				r.Put("/{id}/complete", h.CompleteLesson)
				r.Put("/{id}/cancel", h.CancelLesson)
				r.Delete("/{id}", h.DeleteLesson)
			})

			// Payment routes
			r.Route("/payments", func(r chi.Router) {
				r.Post("/", h.CreatePayment)
				r.Get("/student/{id}", h.ListStudentPayments)
				r.Delete("/{id}", h.DeletePayment)
			})

			// Dashboard routes
			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/summary", h.GetSummary)
				r.Get("/monthly-earnings", h.GetMonthlyEarnings)
				r.Get("/top-student", h.GetTopStudent)
				r.Get("/reports", h.GetReports)
			})

			r.Get("/settings", h.GetSettings)
			r.Post("/settings", h.SaveSettings)

			if cfg.DemoScenarios {
				r.Route("/scenarios", func(r chi.Router) {
					r.Get("/", h.ListScenarios)
					r.Post("/load", h.LoadScenario)
				})
			}
		})
	})

	return r
}
