package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"studykit-backend/internal/config"
	"studykit-backend/internal/database"
	"studykit-backend/internal/handlers"
	"studykit-backend/internal/logger"
	"studykit-backend/internal/middleware"
	"studykit-backend/internal/repository"
	"studykit-backend/internal/router"
	"studykit-backend/internal/services"
	"studykit-backend/internal/storage"
	"studykit-backend/internal/websocket"
	"studykit-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)
	defer log.Sync()

	log.Info("starting studykit backend", zap.String("env", cfg.Env))

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
	if err != nil {
		log.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pool.Close()
	log.Info("postgres connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClients.Close()
	log.Info("redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations", log); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	documentRepo := repository.NewDocumentRepo(pool)
	summaryRepo := repository.NewSummaryRepo(pool)
	quizRepo := repository.NewQuizRepo(pool)
	flashcardRepo := repository.NewFlashcardRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	fileStore, err := storage.NewLocalStore(cfg.StoragePath)
	if err != nil {
		log.Fatal("storage initialization failed", zap.Error(err))
	}

	// ──── Step 5: Initialize Generation Backend ────
	generator, closeGenerator, err := newGenerator(cfg, log)
	if err != nil {
		log.Fatal("generation client initialization failed", zap.Error(err))
	}
	defer closeGenerator()
	log.Info("generation client initialized",
		zap.String("provider", cfg.LLMProvider),
		zap.String("model", cfg.ModelID()),
	)

	selector, err := services.NewChunkSelector(cfg.ChatChunkSelector)
	if err != nil {
		log.Fatal("invalid chunk selector", zap.Error(err))
	}

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, redisClients.Queue, jwtAuth, log)
	studyService := services.NewStudyService(generator, selector, cfg.ModelID(), cfg.QuizStrictAnswers, log)
	quizEngine := services.NewQuizEngine(nil)
	scheduler := services.NewReviewScheduler()
	publisher := services.NewPublisher(redisClients.Queue, log)
	queue := worker.NewQueue(redisClients.Queue)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	documentHandler := handlers.NewDocumentHandler(handlers.DocumentHandlerDeps{
		Store:          fileStore,
		Documents:      documentRepo,
		Decks:          flashcardRepo,
		Quizzes:        quizRepo,
		Summaries:      summaryRepo,
		Jobs:           jobRepo,
		Queue:          queue,
		Assistant:      studyService,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, log)
	flashcardHandler := handlers.NewFlashcardHandler(flashcardRepo, scheduler)
	quizHandler := handlers.NewQuizHandler(quizRepo, quizEngine, database.NewLocker(redisClients.Queue), log)
	jobHandler := handlers.NewJobHandler(jobRepo)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, worker.Deps{
		Store:             fileStore,
		Extractor:         services.NewFileExtractService(),
		Documents:         documentRepo,
		Decks:             flashcardRepo,
		Quizzes:           quizRepo,
		Summaries:         summaryRepo,
		Jobs:              jobRepo,
		Study:             studyService,
		Engine:            quizEngine,
		Scheduler:         scheduler,
		Events:            publisher,
		ChunkSizeWords:    cfg.ChunkSizeWords,
		ChunkOverlapWords: cfg.ChunkOverlapWords,
	}, cfg.WorkerCount, log)
	workerPool.Start()

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, services.UserChannel, cfg.FrontendURL, log)

	// ──── Step 8: Start HTTP Server ────
	limiters := router.Limiters{
		Auth:       middleware.NewRateLimiter(redisClients.Queue, "auth", cfg.AuthRateLimit, time.Minute, log),
		Generation: middleware.NewRateLimiter(redisClients.Queue, "generation", cfg.GenerationRateLimit, time.Minute, log),
	}
	r := router.New(
		jwtAuth,
		limiters,
		authHandler,
		documentHandler,
		flashcardHandler,
		quizHandler,
		jobHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// Chat and explain wait on the generation backend.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Info("studykit backend ready",
		zap.String("api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)),
		zap.String("ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port)),
	)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}

// newGenerator builds the configured generation backend and its cleanup.
func newGenerator(cfg *config.Config, log *zap.Logger) (services.Generator, func(), error) {
	switch cfg.LLMProvider {
	case "openai":
		client := services.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.LLMConcurrentRequests, log)
		return client, func() {}, nil
	default:
		client, err := services.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMConcurrentRequests, log)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { client.Close() }, nil
	}
}
