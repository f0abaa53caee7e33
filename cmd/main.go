/*
Package main is the entry point for the marketchat server.

It is responsible for loading configuration, initializing the global logging system,
opening the database and the message bus, starting the connection Hub, and gracefully
handling operating system interrupt signals (SIGINT, SIGTERM) so that connections are
closed and in-flight requests finish before the process exits.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketchat/internal/app/bus"
	"marketchat/internal/app/chat"
	"marketchat/internal/app/db"
	"marketchat/internal/app/delivery"
	"marketchat/internal/app/fanout"
	"marketchat/internal/app/storage"
	"marketchat/internal/app/store"
	"marketchat/internal/app/user"
	"marketchat/internal/configs"
	"marketchat/internal/handler"
	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/auth/jwt"
	"marketchat/internal/pkg/auth/revoke"
	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/pow"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.LogLevel, cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("instance_id", cfg.InstanceID).
		Int("port", cfg.Port).
		Str("bus_driver", cfg.BusDriver).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("pow_difficulty", cfg.PowDifficulty).
		Bool("attachments", cfg.AttachmentsEnabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to open database")
	}
	st := store.New(pool)
	accounts := user.NewService(st)

	authority, err := jwt.NewAuthority(cfg.JWTSecret, jwt.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		logx.Fatal(err, "Failed to create token authority")
	}
	registry := revoke.NewRegistry(revoke.WithSweepInterval(cfg.RevocationSweepInterval))
	registry.Start(ctx)
	verifier := auth.NewVerifier(authority, registry)

	messageBus := newBus(ctx, cfg)

	// Initialize the connection Hub and route bus traffic to it
	hub := chat.NewHub()
	router := fanout.NewRouter(hub)
	for _, ch := range []bus.Channel{bus.ChannelChat, bus.ChannelNotification} {
		if err := messageBus.Subscribe(ch, router); err != nil {
			logx.Fatal(err, "Failed to subscribe to bus channel", "channel", ch.String())
		}
	}

	notifier := delivery.NewNotificationPipeline(hub, messageBus, nil)
	chatPipeline := delivery.NewChatPipeline(delivery.ChatDeps{
		Rooms:    st,
		Messages: st,
		Profiles: st,
		Bus:      messageBus,
		Notifier: notifier,
	})
	locations := delivery.NewLocationPipeline(st, st, messageBus, nil)

	var storageService storage.StorageService
	if cfg.AttachmentsEnabled() {
		storageService, err = storage.NewStorageService(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3Region:          cfg.S3Region,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize object storage")
		}
	}

	powManager := pow.NewPoWManager(cfg.PowDifficulty)
	powManager.Start(ctx)

	limiters := handler.NewLimiters()
	limiters.Start(ctx)

	deps := &handler.AppDeps{
		Config:         cfg,
		Tokens:         authority,
		Revocations:    registry,
		Verifier:       verifier,
		Handshake:      auth.NewHandshakeAuthenticator(verifier),
		Accounts:       accounts,
		Rooms:          st,
		Chat:           chatPipeline,
		Locations:      locations,
		Notifier:       notifier,
		Hub:            hub,
		Commands:       chat.NewCommandService(st, chatPipeline, locations),
		StorageService: storageService,
		PoW:            powManager,
		Bus:            messageBus,
		Database:       st,
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(deps, limiters),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("marketchat server starting on http://localhost%s", serverAddr), "instance_id", cfg.InstanceID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	if err := messageBus.Close(); err != nil {
		logx.Error(err, "Failed to close message bus")
	}
	hub.Shutdown()
	registry.Close()
	pool.Close()

	logx.Info("Server gracefully stopped.")
}

// newBus connects the configured bus driver.
func newBus(ctx context.Context, cfg *configs.AppConfig) bus.Bus {
	names := bus.ChannelNames{
		bus.ChannelChat:         cfg.ChatChannelName,
		bus.ChannelNotification: cfg.NotificationChannelName,
	}

	if cfg.BusDriver == configs.BusDriverMemory {
		logx.Warn("Using the in-process bus; messages do not reach other instances.")
		return bus.NewMemoryBroker().Client()
	}

	return bus.NewRedisBus(ctx, bus.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Names:    names,
	})
}
