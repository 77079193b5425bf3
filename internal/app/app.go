package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopstack/checkout/internal/dal/postgres"
	"github.com/shopstack/checkout/internal/dal/rabbitmq"
	"github.com/shopstack/checkout/internal/dal/redis"
	orderrepo "github.com/shopstack/checkout/internal/dal/repositories/order/postgres"
	outboxrepo "github.com/shopstack/checkout/internal/dal/repositories/outbox/postgres"
	"github.com/shopstack/checkout/internal/gateway"
	"github.com/shopstack/checkout/internal/otel"
	"github.com/shopstack/checkout/internal/service/services/checkoutsvc"
	"github.com/shopstack/checkout/internal/service/services/reconcilersvc"
	httptransport "github.com/shopstack/checkout/internal/transport/http"
	outboxworker "github.com/shopstack/checkout/internal/worker/outbox"
)

// App represents the application.
type App struct {
	checkoutSvc    *checkoutsvc.CheckoutService
	reconcilerSvc  *reconcilersvc.ReconcilerService
	transport      *httptransport.HTTPTransport
	outboxWorker   *outboxworker.Worker
	postgresClient *postgres.Client
	rabbitMqClient *rabbitmq.Client
	redisClient    *redis.Client
	otelController *otel.OtelController
}

// MustNewApp creates a new application. All collaborators are constructed once
// here and passed in explicitly; no component reaches for ambient globals.
func MustNewApp() *App {
	otelController := otel.MustInitOtel()
	postgresClient := postgres.MustNewClient()
	rabbitMqClient := rabbitmq.MustNewClient()
	redisClient := redis.MustNewClient()
	gatewayClient := gateway.MustNewClient()

	orderRepository := orderrepo.NewOrderRepository(postgresClient)
	outboxRepository := outboxrepo.NewOutboxRepository(postgresClient)

	checkoutSvc := checkoutsvc.MustNewCheckoutService(
		checkoutsvc.WithOrderRepository(orderRepository),
		checkoutsvc.WithGateway(gatewayClient),
	)

	reconcilerSvc := reconcilersvc.MustNewReconcilerService(
		reconcilersvc.WithOrderRepository(orderRepository),
		reconcilersvc.WithGateway(gatewayClient),
		reconcilersvc.WithOutboxRepository(outboxRepository),
		reconcilersvc.WithDedupeCache(redisClient),
	)

	transport := httptransport.NewHTTPTransport(checkoutSvc, reconcilerSvc)
	transport.RegisterRoutes()

	outboxWorker := outboxworker.NewWorker(outboxRepository, rabbitMqClient)

	return &App{
		checkoutSvc:    checkoutSvc,
		reconcilerSvc:  reconcilerSvc,
		transport:      transport,
		outboxWorker:   outboxWorker,
		postgresClient: postgresClient,
		rabbitMqClient: rabbitMqClient,
		redisClient:    redisClient,
		otelController: otelController,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	// Create a channel to receive OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		slog.Info("Starting outbox worker")
		a.outboxWorker.Start(ctx)
	}()

	<-stop
	slog.Info("Shutdown signal received")
	cancel()

	a.gracefulShutdown()
}

// gracefulShutdown stops components sequentially: outbox worker, HTTP server,
// RabbitMQ, Redis, PostgreSQL, and OpenTelemetry.
func (a *App) gracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.outboxWorker.Stop()
	slog.Info("Outbox worker stopped gracefully")

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	if err := a.rabbitMqClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	if err := a.redisClient.Close(); err != nil {
		slog.Error("Redis connection close error", "error", err)
	} else {
		slog.Info("Redis connection closed gracefully")
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(); err != nil {
		slog.Error("Otel trace provider connection close error", "error", err)
	} else {
		slog.Info("Otel trace provider connection closed gracefully")
	}

	slog.Info("Application shutdown complete")
}
