package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chatsocket/chatsocket/internal/auth"
	"github.com/chatsocket/chatsocket/internal/chat"
	"github.com/chatsocket/chatsocket/internal/data"
	"github.com/chatsocket/chatsocket/internal/db"
	"github.com/chatsocket/chatsocket/internal/middleware"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// connectDB retries the initial connection; the database container often
// comes up a few seconds after the API in compose setups.
func connectDB(ctx context.Context, uri, name string) (*db.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		client, err := db.New(ctx, uri, name)
		if err == nil {
			return client, nil
		}
		lastErr = err
		log.Printf("database connection attempt %d failed: %v", attempt, err)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return nil, lastErr
}

func main() {
	// Read configuration from environment; .env is optional
	_ = godotenv.Load()

	mongoURI := envOr("MONGODB_URI", "mongodb://localhost:27017")
	dbName := envOr("DATABASE_NAME", "chat_app")
	port := envOr("PORT", "8080")
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}
	jwtExpire := time.Duration(envIntOr("JWT_EXPIRE_MINUTES", 24*60)) * time.Minute
	rateRPM := envIntOr("RATE_LIMIT_RPM", 10)

	ctx := context.Background()

	dbClient, err := connectDB(ctx, mongoURI, dbName)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	defer func() {
		_ = dbClient.Close(ctx)
	}()

	// Ensure indexes exist
	if err := dbClient.CreateIndexes(ctx); err != nil {
		log.Fatalf("failed to create indexes: %v", err)
	}

	// Stores, chat core, transport
	usersStore := data.NewUsersStore(dbClient.UsersCollection())
	convsStore := data.NewConversationsStore(dbClient.ConversationsCollection())
	msgsStore := data.NewMessagesStore(dbClient.MessagesCollection())

	svc := chat.NewService(usersStore, convsStore, msgsStore)
	coord := chat.NewCoordinator(svc, usersStore, chat.NewPresence(), chat.NewRooms(), chat.NewDispatcher())

	jwtMgr := auth.NewJWTManager(jwtSecret, jwtExpire)

	// Small burst so a couple of quick retries get through
	limiterStore := middleware.NewLimiterStore(rateRPM, 3, time.Minute)
	defer limiterStore.Stop()

	srv := newServer(usersStore, svc, coord, coord, jwtMgr, limiterStore)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Print("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
