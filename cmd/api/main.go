package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/urbanfoods/backend/api/routes"
	"github.com/urbanfoods/backend/internal/cart"
	"github.com/urbanfoods/backend/internal/notifications"
	"github.com/urbanfoods/backend/internal/orders"
	"github.com/urbanfoods/backend/internal/payments"
	"github.com/urbanfoods/backend/internal/products"
	"github.com/urbanfoods/backend/internal/settlement"
	"github.com/urbanfoods/backend/internal/users"
	mpesawebhook "github.com/urbanfoods/backend/internal/webhooks/mpesa"
	"github.com/urbanfoods/backend/pkg/config"
	"github.com/urbanfoods/backend/pkg/db"
	"github.com/urbanfoods/backend/pkg/logger"
	"github.com/urbanfoods/backend/pkg/metrics"
	"github.com/urbanfoods/backend/pkg/migrate"
	"github.com/urbanfoods/backend/pkg/mpesa"
	"github.com/urbanfoods/backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	settlementMetrics := metrics.NewSettlementMetrics(promRegistry)

	gateway, err := mpesa.NewClient(mpesa.ClientParams{
		Config: cfg.Mpesa,
		Cache:  mpesa.NewRedisTokenCache(redisClient),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create mpesa client", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	productsRepo := products.NewRepository(dbClient.DB())
	usersRepo := users.NewRepository(dbClient.DB())
	cartsRepo := cart.NewRepository(dbClient.DB())

	ledger, err := orders.NewService(orders.ServiceParams{Repo: ordersRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create order ledger", err)
		os.Exit(1)
	}

	notifier, err := notifications.NewService(notifications.ServiceParams{
		Repo:   notifications.NewRepository(dbClient.DB()),
		Users:  usersRepo,
		Config: cfg.Notifications,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notifier", err)
		os.Exit(1)
	}

	engine, err := settlement.NewEngine(settlement.EngineParams{
		Orders:   ordersRepo,
		Products: productsRepo,
		Users:    usersRepo,
		Carts:    cartsRepo,
		Notifier: notifier,
		TxRunner: dbClient,
		Metrics:  settlementMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement engine", err)
		os.Exit(1)
	}

	webhookSvc, err := mpesawebhook.NewService(mpesawebhook.ServiceParams{
		Orders:     ordersRepo,
		Settlement: engine,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Orders:     ordersRepo,
		Ledger:     ledger,
		Carts:      cartsRepo,
		Settlement: engine,
		Gateway:    gateway,
		TxRunner:   dbClient,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, ledger, paymentsSvc, webhookSvc, settlementMetrics, promRegistry),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
