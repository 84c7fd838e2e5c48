package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studydeck-backend/internal/handlers"
	"studydeck-backend/internal/middleware"
	"studydeck-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	feedHandler *handlers.FeedHandler,
	cardHandler *handlers.CardHandler,
	courseHandler *handlers.CourseHandler,
	syllabusHandler *handlers.SyllabusHandler,
	profileHandler *handlers.ProfileHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── Feed Routes ────
		r.Route("/feed", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", feedHandler.List)
		})

		// ──── Card Routes ────
		r.Route("/cards", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", cardHandler.Create)
			r.Get("/{id}", cardHandler.Get)
			r.Delete("/{id}", cardHandler.Delete)
			r.Post("/{id}/rating", cardHandler.Rate)
			r.Post("/{id}/view", cardHandler.View)
		})

		// Body-addressed rating variant used by the swipe clients.
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/ratings", cardHandler.Rate)
		})

		// ──── Course Routes ────
		r.Route("/courses", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", courseHandler.Create)
			r.Get("/", courseHandler.List)
			r.Get("/{id}/cards", cardHandler.ListByCourse)
			r.Post("/{id}/subscribe", courseHandler.Subscribe)
			r.Delete("/{id}/subscribe", courseHandler.Unsubscribe)
			r.Post("/{id}/syllabus", syllabusHandler.Propose)
			r.Get("/{id}/syllabus/proposals", syllabusHandler.ListByCourse)
		})

		// ──── Syllabus Proposal Routes ────
		r.Route("/syllabus-proposals", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/{id}/vote", syllabusHandler.Vote)
		})

		// ──── Profile Routes ────
		r.Route("/profile", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/me", profileHandler.GetMe)
			r.Get("/{username}", profileHandler.GetByUsername)
		})

		// ──── Puzzle Rush Routes ────
		r.Route("/puzzle-rush", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/score", profileHandler.RecordPuzzleRush)
		})

		// ──── Leaderboard Routes ────
		r.Route("/leaderboard", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/streaks", profileHandler.StreakLeaderboard)
			r.Get("/puzzle-rush", profileHandler.PuzzleRushLeaderboard)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
