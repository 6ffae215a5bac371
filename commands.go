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

	"puzzlebot/config"
	"puzzlebot/handlers"
	"puzzlebot/middleware"
	"puzzlebot/models"
	"puzzlebot/routes"
	"puzzlebot/services"
	"puzzlebot/views"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := config.NewLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	puzzles, answers, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	gate, err := services.NewAdminGate(cfg.AdminToken, cfg.BcryptCost)
	if err != nil {
		return err
	}
	tickets := services.NewTicketService(cfg.GatewaySecret)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.NewMetrics(registry)

	dispatcher := services.NewDispatcher(puzzles, answers, gate, log,
		services.WithMetrics(metrics),
		services.WithRecentWindow(cfg.RecentWindow),
	)
	renderer, err := views.NewRenderer(config.Version)
	if err != nil {
		return err
	}
	responder := services.NewResponder(dispatcher, renderer, log)

	// Initialize WebSocket hub
	hub := services.NewHub(responder, log)
	go hub.Run(ctx)

	commandHandler := handlers.NewCommandHandler(responder)

	router := gin.Default()
	router.Use(middleware.CORS())
	routes.SetupRoutes(router, commandHandler, hub, tickets, registry, log)

	srv := &http.Server{Addr: cfg.ListenAddr(), Handler: router}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.WithFields(logrus.Fields{"addr": srv.Addr, "version": config.Version}).Info("Server starting")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := config.NewLogger(cfg.LogLevel)

	db, err := config.InitDB(cfg)
	if err != nil {
		return err
	}
	if err := migrate(db); err != nil {
		return err
	}
	log.Info("Database schema is up to date")
	return nil
}

func runTicket(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.GatewaySecret == "" {
		return errors.New("GATEWAY_SECRET is required")
	}
	ttl, err := time.ParseDuration(ticketTTL)
	if err != nil {
		return fmt.Errorf("invalid --ttl: %w", err)
	}

	ticket, err := services.NewTicketService(cfg.GatewaySecret).Issue(services.Sender{ID: ticketUserID, Name: ticketName}, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ticket)
	return nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Puzzle{}, &models.Answer{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// openStore picks the storage backend. The returned func releases its
// connections.
func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (services.PuzzleRegistry, services.AnswerLedger, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("Using in-memory storage, data is lost on restart")
		store := services.NewMemoryStore()
		return store, store, func() {}, nil
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := migrate(db); err != nil {
		return nil, nil, nil, err
	}

	redisClient := config.InitRedis(cfg)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis unavailable, puzzle lookups go to the database")
	}
	cache := services.NewRedisExistenceCache(redisClient, cfg.RedisExistsTTL)

	closeStore := func() {
		redisClient.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return services.NewPuzzleService(db, cache, log), services.NewAnswerService(db), closeStore, nil
}
