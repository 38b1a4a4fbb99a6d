package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shipwatch/internal/config"
	"shipwatch/internal/queue"
	"shipwatch/internal/storage"
	"shipwatch/internal/worker"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg.AppEnv)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})

	w := worker.New(worker.Config{
		Concurrency:   cfg.WorkerConcurrency,
		CarrierRatePS: cfg.CarrierRatePS,
	}, queue.New(rdb), storage.New(db), worker.NoopClient{}, log)

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	log.Info("worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("carrier_rate_per_sec", cfg.CarrierRatePS),
	)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("worker", zap.Error(err))
	}
}
