package web

import (
	"github.com/facegate/facegate/internal/web/handlers"
	"github.com/facegate/facegate/internal/web/middleware"
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	authHandler := handlers.NewAuthHandler(s.store, s.issuer)
	subjectsHandler := handlers.NewSubjectsHandler(s.store, s.engine.Embedder(), s.index, s.config.Embedding.Dim)
	sessionsHandler := handlers.NewSessionsHandler(s.registry, s.config.Web.PublicURL)
	verifyHandler := handlers.NewVerifyHandler(s.registry, s.store, s.engine, s.guard, s.index)
	attendanceHandler := handlers.NewAttendanceHandler(s.store)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Operator account routes
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		// Verification and session lookup run on the shared session link,
		// authenticated by the session token itself.
		r.Post("/verify/{token}", verifyHandler.Verify)
		r.Post("/verify/{token}/identify", verifyHandler.Identify)
		r.Get("/sessions/{token}", sessionsHandler.Get)
		r.Get("/sessions/{token}/qr", sessionsHandler.QR)

		// Management routes require an operator token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.issuer))

			// Subjects
			r.Post("/subjects", subjectsHandler.Create)
			r.Get("/subjects", subjectsHandler.List)
			r.Get("/subjects/{id}", subjectsHandler.Get)

			// Sessions
			r.Post("/sessions", sessionsHandler.Create)
			r.Post("/sessions/{token}/close", sessionsHandler.Close)

			// Attendance ledger
			r.Get("/attendance", attendanceHandler.List)
		})
	})
}
