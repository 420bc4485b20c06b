package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Stepanin42/market-task/internal/config"
	"github.com/Stepanin42/market-task/internal/coordinator"
	"github.com/Stepanin42/market-task/internal/db"
	"github.com/Stepanin42/market-task/internal/events"
	"github.com/Stepanin42/market-task/internal/order"
	"github.com/Stepanin42/market-task/internal/orderhttp"
	"github.com/Stepanin42/market-task/internal/storageclient"
)

func main() {
	cfg := config.NewOrder()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.MigrateOrder(cfg.DatabaseURI); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURI)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	rabbitConn := events.MustDial(cfg.RabbitURI)
	defer rabbitConn.Close()

	publisher, err := events.NewPublisher(rabbitConn, events.OrderCreatedQueue, events.OrderDeletedQueue)
	if err != nil {
		logger.Fatal("create publisher", zap.Error(err))
	}
	defer publisher.Close()

	store := order.NewPostgresStore(pool)
	storage := storageclient.New(cfg.StorageAddress)
	coord := coordinator.New(store, storage, publisher, logger)
	router := orderhttp.NewRouter(orderhttp.NewHandler(coord))

	srv := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("order-service listening", zap.String("addr", cfg.RunAddress))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
