package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shipwatch/internal/api"
	"shipwatch/internal/config"
	"shipwatch/internal/queue"
	"shipwatch/internal/storage"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg.AppEnv)
	defer log.Sync()

	if err := migrate(cfg); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	store := storage.New(db)
	q := queue.New(rdb)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewRouter(cfg, store, q, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("api listening", zap.String("addr", cfg.APIAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("serve", zap.Error(err))
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// migrate runs goose over a database/sql handle; everything after boot goes
// through the pgx pool.
func migrate(cfg config.Config) error {
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, cfg.MigrationsDir)
}
