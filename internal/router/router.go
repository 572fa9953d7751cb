package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studykit-backend/internal/handlers"
	"studykit-backend/internal/middleware"
	"studykit-backend/internal/websocket"
)

// Limiters groups the per-route-family rate limiters.
type Limiters struct {
	Auth       *middleware.RateLimiter
	Generation *middleware.RateLimiter
}

func New(
	jwtAuth *middleware.JWTAuth,
	limiters Limiters,
	authHandler *handlers.AuthHandler,
	documentHandler *handlers.DocumentHandler,
	flashcardHandler *handlers.FlashcardHandler,
	quizHandler *handlers.QuizHandler,
	jobHandler *handlers.JobHandler,
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

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(limiters.Auth.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── Document Routes ────
		r.Route("/documents", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", documentHandler.Upload)
			r.Get("/", documentHandler.List)
			r.Get("/{id}", documentHandler.Get)
			r.Delete("/{id}", documentHandler.Delete)
			r.Get("/{id}/summary", documentHandler.GetSummary)

			// Everything below calls the generation backend
			r.Group(func(r chi.Router) {
				r.Use(limiters.Generation.Middleware)
				r.Post("/{id}/flashcards", documentHandler.GenerateFlashcards)
				r.Post("/{id}/quizzes", documentHandler.GenerateQuiz)
				r.Post("/{id}/summary", documentHandler.GenerateSummary)
				r.Post("/{id}/study-pack", documentHandler.GenerateStudyPack)
				r.Post("/{id}/chat", documentHandler.Chat)
				r.Post("/{id}/explain", documentHandler.Explain)
			})
		})

		// ──── Flashcard Routes ────
		r.Route("/flashcards", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/decks", flashcardHandler.ListDecks)
			r.Get("/decks/{id}", flashcardHandler.GetDeck)
			r.Post("/cards/{id}/review", flashcardHandler.ReviewCard)
		})

		// ──── Quiz Routes ────
		r.Route("/quizzes", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", quizHandler.List)
			r.Get("/{id}", quizHandler.Get)
			r.Post("/{id}/answers", quizHandler.SubmitAnswer)
			r.Get("/{id}/results", quizHandler.Results)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobHandler.GetJob)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
