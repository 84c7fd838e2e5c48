package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studydeck-backend/internal/config"
	"studydeck-backend/internal/database"
	"studydeck-backend/internal/handlers"
	"studydeck-backend/internal/middleware"
	"studydeck-backend/internal/repository"
	"studydeck-backend/internal/router"
	"studydeck-backend/internal/services"
	"studydeck-backend/internal/websocket"
	"studydeck-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting StudyDeck Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	profileRepo := repository.NewProfileRepo(pool)
	courseRepo := repository.NewCourseRepo(pool)
	cardRepo := repository.NewCardRepo(pool)
	interactionRepo := repository.NewInteractionRepo(pool)
	tagRepo := repository.NewTagRepo(pool)
	feedRepo := repository.NewFeedRepo(pool, cfg.FeedRatingWeight, cfg.FeedTagWeight)
	proposalRepo := repository.NewProposalRepo(pool)

	// ──── Step 5: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer geminiService.Close()
	log.Println("✓ Gemini Flash client initialized")

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL)
	authService := services.NewAuthService(userRepo, profileRepo, redisClients.Queue, jwtAuth)
	ratingService := services.NewRatingService(pool, cardRepo, interactionRepo, tagRepo, profileRepo, redisClients.Queue)
	votingService := services.NewVotingService(pool, proposalRepo, courseRepo, userRepo, geminiService, emailService, redisClients.Queue)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	feedHandler := handlers.NewFeedHandler(feedRepo, cfg.FeedDefaultLimit)
	cardHandler := handlers.NewCardHandler(cardRepo, courseRepo, interactionRepo, ratingService)
	courseHandler := handlers.NewCourseHandler(courseRepo)
	syllabusHandler := handlers.NewSyllabusHandler(votingService, proposalRepo)
	profileHandler := handlers.NewProfileHandler(profileRepo)

	// ──── Step 6: Start Propagation Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, ratingService, 3)
	workerPool.Start()
	log.Println("✓ Worker pool started (3 goroutines)")

	notificationScheduler := services.NewNotificationScheduler(profileRepo, emailService)
	notificationScheduler.Start()
	log.Println("✓ Notification scheduler started")

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret, feedRepo, ratingService, cfg.FeedDefaultLimit)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		feedHandler,
		cardHandler,
		courseHandler,
		syllabusHandler,
		profileHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()
		notificationScheduler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ StudyDeck Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
