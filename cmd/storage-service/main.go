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
	"github.com/Stepanin42/market-task/internal/db"
	"github.com/Stepanin42/market-task/internal/events"
	"github.com/Stepanin42/market-task/internal/ledger"
	"github.com/Stepanin42/market-task/internal/ledgerhttp"
)

func main() {
	cfg := config.NewStorage()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.MigrateStorage(cfg.DatabaseURI); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURI)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	rabbitConn := events.MustDial(cfg.RabbitURI)
	defer rabbitConn.Close()

	publisher, err := events.NewPublisher(rabbitConn, events.StockDepletedQueue)
	if err != nil {
		logger.Fatal("create publisher", zap.Error(err))
	}
	defer publisher.Close()

	repo := ledger.NewPostgresRepository(pool)
	svc := ledger.NewService(repo, publisher, logger)
	router := ledgerhttp.NewRouter(ledgerhttp.NewHandler(svc))

	srv := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("storage-service listening", zap.String("addr", cfg.RunAddress))
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
