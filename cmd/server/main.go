package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"privchat/internal/auth"
	"privchat/internal/chat"
	"privchat/internal/config"
	"privchat/internal/db"
	appMiddleware "privchat/internal/middleware"
	"privchat/internal/ratelimit"
	"privchat/internal/user"
)

func main() {
	cfg := config.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDevelopment() {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	if cfg.DBDSN == "" {
		log.Fatal().Msg("DB_DSN is not set")
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is not set")
	}

	database, err := db.NewDatabase(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer database.Conn.Close()
	if err := database.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("database ready")

	// Redis is optional: without it the server runs single-instance and
	// presence events stay local.
	var relay *chat.Relay
	var relayCancel context.CancelFunc
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		relay = chat.NewRelay(redisClient, log)
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis connected, presence relay enabled")
	}

	tokens := auth.NewService(cfg.JWTSecret)

	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, tokens)
	loginWindow := ratelimit.NewFailureWindow(cfg.AuthMaxFailures, cfg.AuthWindow)
	userHandler := user.NewHandler(userService, loginWindow, log)

	chatRepo := chat.NewRepository(database.Conn)
	registry := chat.NewRegistry()
	policy := chat.ContentPolicy{ASCIIControlOnly: cfg.ASCIIControlOnly}
	messageService := chat.NewService(chatRepo, policy, log)
	presence := chat.NewPresence(chatRepo, registry, relay, log)
	if relay != nil {
		relay.Bind(presence)
		var relayCtx context.Context
		relayCtx, relayCancel = context.WithCancel(context.Background())
		go relay.Run(relayCtx)
	}

	queue := chat.NewDeliveryQueue(registry, messageService, chatRepo, cfg.DeliveryTick, log)
	if err := queue.Rebuild(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("delivery queue rebuild failed")
	}
	queue.Start()

	messageLimiter := ratelimit.NewBucketer(cfg.MessageBurst, cfg.MessageWindow)
	handshake := chat.NewHandshake(tokens)
	chatHandler := chat.NewHandler(registry, messageService, queue, presence, handshake, messageLimiter, cfg.MaxFrameSize, log)

	authMiddleware := appMiddleware.NewAuth(tokens)

	r := chi.NewRouter()
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/signup", userHandler.Signup)
	r.Post("/auth/login", userHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Route("/api", func(r chi.Router) {
			r.Get("/users/search", userHandler.Search)
			chatHandler.Register(r)
		})
	})

	// Websocket auth happens in the handshake itself, not the middleware.
	r.Get("/ws", chatHandler.ServeWs)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	queue.Stop()
	if relayCancel != nil {
		relayCancel()
	}
	log.Info().Msg("stopped")
}
