package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv             string        `env:"APP_ENV" envDefault:"dev"`
	APIAddr            string        `env:"API_ADDR" envDefault:":8080"`
	PostgresDSN        string        `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr          string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	MigrationsDir      string        `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	PollInterval       time.Duration `env:"POLL_SCHEDULER_INTERVAL" envDefault:"1m"`
	WorkerConcurrency  int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	CarrierRatePS      int           `env:"CARRIER_RATE_PER_SEC" envDefault:"5"`
}

func Load() Config {
	_ = godotenv.Load()
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}
	return c
}

// NewLogger returns a console logger in dev, production JSON otherwise.
func NewLogger(appEnv string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if appEnv == "dev" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal(err)
	}
	return l
}
