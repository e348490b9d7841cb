package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leadwire/leadwire/internal/config"
	"github.com/leadwire/leadwire/internal/conversation"
	"github.com/leadwire/leadwire/internal/db"
	"github.com/leadwire/leadwire/internal/events"
	"github.com/leadwire/leadwire/internal/graphapi"
	"github.com/leadwire/leadwire/internal/handlers"
	"github.com/leadwire/leadwire/internal/healthcheck"
	"github.com/leadwire/leadwire/internal/leads"
	"github.com/leadwire/leadwire/internal/logger"
	"github.com/leadwire/leadwire/internal/pages"
	"github.com/leadwire/leadwire/internal/realtime"
	"github.com/leadwire/leadwire/internal/resolver"
	"github.com/leadwire/leadwire/internal/server"
	"github.com/leadwire/leadwire/internal/webhook"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, webhook and realtime server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.Init(cfg.Log)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, log, cfg)
	},
}

// runServe is the composition root. Every component is built here and
// handed its collaborators directly.
func runServe(ctx context.Context, log *slog.Logger, cfg config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if !cfg.Auth.VerifyRealtimeSignatures {
		log.Warn("realtime handshake decodes tokens without verifying signatures")
	}

	pool, err := db.Open(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	leadStore := leads.NewPostgresStore(pool)
	messageStore := conversation.NewPostgresStore(pool)
	pageStore := pages.NewPostgresStore(pool)

	bus := events.NewBus(log, cfg.Realtime.BusBuffer)
	hub := realtime.NewHub(log)
	bus.Subscribe(realtime.NewBroadcaster(hub))

	leadService := leads.NewService(log, leadStore, bus)
	graph := graphapi.NewClient(log, cfg.Meta.GraphBaseURL, cfg.Meta.GraphVersion, seconds(cfg.Meta.TimeoutSeconds), nil)

	ingestor := webhook.NewIngestor(log,
		resolver.New(log, pageStore, leadService, messageStore),
		bus,
		webhook.IngestorConfig{
			Workers:   cfg.Webhook.Workers,
			QueueSize: cfg.Webhook.QueueSize,
			Timeout:   seconds(cfg.Webhook.ProcessTimeoutSeconds),
		},
	)

	srv := server.NewServer(log, cfg.Server.Addr, cfg.Auth.JWTSecret,
		handlers.NewPingHandler(log,
			healthcheck.NewDatabaseChecker(pool),
			healthcheck.NewDropChecker("event_bus", bus.Dropped),
			healthcheck.NewDropChecker("realtime_frames", hub.Dropped),
			healthcheck.NewDropChecker("webhook_queue", ingestor.Rejected),
		),
		handlers.NewLeadsHandler(log, leadService, messageStore),
		handlers.NewPagesHandler(log, pageStore, graph),
		webhook.NewHandler(log, pageStore, ingestor, cfg.Meta.VerifyToken, cfg.Webhook.MaxBodyBytes),
		realtime.NewHandler(log,
			realtime.NewAuthorizer(cfg.Auth.JWTSecret, cfg.Auth.VerifyRealtimeSignatures),
			hub,
			realtime.TransportConfig{
				SendBuffer:   cfg.Realtime.SendBuffer,
				AuthTimeout:  seconds(cfg.Realtime.AuthTimeoutSeconds),
				PingInterval: seconds(cfg.Realtime.PingIntervalSeconds),
			},
		),
	)

	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()
	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()
	go bus.Run(busCtx)
	ingestor.Start(ingestCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("http shutdown failed", slog.Any("error", err))
	}
	// The server no longer accepts deliveries; finish the acknowledged ones
	// before the bus stops.
	stopIngest()
	ingestor.Wait(shutdownCtx)
	stopBus()
	if n := bus.Dropped(); n > 0 {
		log.Warn("event bus dropped events during run", slog.Int64("dropped", n))
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
