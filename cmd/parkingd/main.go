package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"visitor-parking-backend/config"
	"visitor-parking-backend/internal/api"
	"visitor-parking-backend/internal/auth"
	"visitor-parking-backend/internal/db"
	"visitor-parking-backend/internal/lifecycle"
	"visitor-parking-backend/internal/model"
	"visitor-parking-backend/internal/notification"
	"visitor-parking-backend/internal/reconcile"
	"visitor-parking-backend/internal/sensor"
	"visitor-parking-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "parking-backend ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	if err := appStore.SeedSlots(ctx, cfg.Reservation.Slots); err != nil {
		logger.Fatalf("failed to seed slot registry: %v", err)
	}
	logger.Printf("slot registry ready (%d configured slots)", len(cfg.Reservation.Slots))

	for _, d := range cfg.Auth.Departments {
		hash, err := auth.HashPassword(d.Password)
		if err != nil {
			logger.Fatalf("failed to hash password for department %s: %v", d.ID, err)
		}
		dept := &model.Department{ID: d.ID, Email: d.Email, PasswordHash: hash}
		if err := appStore.UpsertDepartment(ctx, dept); err != nil {
			logger.Fatalf("failed to seed department %s: %v", d.ID, err)
		}
	}

	var notifier lifecycle.Notifier
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions := &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		notifier = pool
		logger.Printf("notification worker pool started (%d workers)", cfg.WorkerPool.Size)
	} else {
		logger.Println("VAPID keys not configured; push notifications disabled")
	}

	controller := lifecycle.New(appStore, cfg.Reservation, notifier)

	var refresher api.Refresher
	if cfg.Sensor.Enabled {
		sensorSvc := sensor.NewService(cfg, appStore, controller)
		go sensorSvc.Run(ctx)
		refresher = sensorSvc
		logger.Printf("occupancy feed poller started (every %s)", cfg.Sensor.Interval)
	} else {
		logger.Println("occupancy feed poller disabled")
	}

	authSvc := auth.NewService(appStore, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}
	handler := api.NewHandler(appStore, reconcile.New(appStore), controller, authSvc, webpushOptions, refresher)
	router := api.NewRouter(&cfg.Server, handler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
