package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/nursehub/backend/internal/auth"
	"github.com/nursehub/backend/internal/catalog"
	"github.com/nursehub/backend/internal/database"
	"github.com/nursehub/backend/internal/gamification"
	"github.com/nursehub/backend/internal/middleware"
	"github.com/nursehub/backend/internal/progress"
	"github.com/rs/cors"
)

func main() {
	// Initialize database
	db, err := database.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Load the learning catalog
	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = "catalog.json"
	}
	index, err := catalog.Load(catalogPath)
	if err != nil {
		log.Fatalf("Failed to load catalog from %s: %v", catalogPath, err)
	}
	holder := catalog.NewHolder(index)
	log.Printf("Loaded catalog version %s (%d sections)", index.Version(), index.TotalSections())

	// Initialize services
	masteryThreshold := progress.DefaultMasteryThreshold
	if v := os.Getenv("MASTERY_THRESHOLD"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 || parsed > 100 {
			log.Fatalf("Invalid MASTERY_THRESHOLD %q", v)
		}
		masteryThreshold = parsed
	}

	progressSvc := progress.NewService(holder, progress.NewPostgresStore(db), masteryThreshold)
	gamificationSvc := gamification.NewService(holder, gamification.NewPostgresStore(db), progressSvc)

	// Initialize handlers
	authHandler := auth.NewHandler(db)
	engineHandler := gamification.NewHandler(gamificationSvc, progressSvc)

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware)
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")

	protected.HandleFunc("/progress/complete", engineHandler.CompleteSection).Methods("POST")
	protected.HandleFunc("/progress/sessions/{id}", engineHandler.GetSessionProgress).Methods("GET")
	protected.HandleFunc("/progress", engineHandler.ListProgress).Methods("GET")

	protected.HandleFunc("/gamification/summary", engineHandler.GetSummary).Methods("GET")
	protected.HandleFunc("/gamification/points/history", engineHandler.GetPointsHistory).Methods("GET")
	protected.HandleFunc("/gamification/definitions", engineHandler.ListDefinitions).Methods("GET")
	protected.HandleFunc("/leaderboards/{slug}", engineHandler.GetLeaderboard).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	handler := c.Handler(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gamificationSvc.StartLeaderboardWorker(ctx, 5*time.Minute)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
