package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"shipwatch/internal/config"
	"shipwatch/internal/queue"
	"shipwatch/internal/scheduler"
	"shipwatch/internal/storage"
)

const lockKey = "shipwatch:scheduler:run"

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
	locker := redislock.New(rdb)
	engine := scheduler.New(storage.New(db), queue.New(rdb), log)

	c := cron.New()
	if _, err := c.AddFunc("@every "+cfg.PollInterval.String(), func() {
		runOnce(ctx, engine, locker, cfg.PollInterval, log)
	}); err != nil {
		log.Fatal("schedule", zap.Error(err))
	}
	c.Start()
	log.Info("scheduler started", zap.Duration("interval", cfg.PollInterval))

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	<-c.Stop().Done()
}

// runOnce takes the single-flight lock and runs one scan. Losing the lock is
// not an error: another instance holds it, and dedupe keys keep an overlapping
// run harmless regardless.
func runOnce(ctx context.Context, engine *scheduler.Engine, locker *redislock.Client, ttl time.Duration, log *zap.Logger) {
	lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		return
	}
	if err != nil {
		log.Warn("obtain scheduler lock", zap.Error(err))
		return
	}
	defer lock.Release(ctx)

	res, err := engine.Run(ctx)
	if err != nil {
		log.Error("scan failed", zap.Error(err))
		return
	}
	log.Info("scan complete",
		zap.Int("shipments_found", res.ShipmentsFound),
		zap.Int("jobs_enqueued", res.JobsEnqueued),
		zap.Bool("truncated", res.Truncated),
		zap.Strings("errors", res.Errors),
		zap.Duration("took", res.Duration),
	)
}
