package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shopinfra/internal/blob"
	"shopinfra/internal/cart"
	"shopinfra/internal/config"
	"shopinfra/internal/db"
	"shopinfra/internal/events"
	"shopinfra/internal/geo"
	"shopinfra/internal/rate"
	"shopinfra/internal/server"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, cleanup, err := newCartStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("cart store init failed", zap.Error(err))
	}
	defer cleanup()

	pub := newPublisher(cfg, logger)

	var geocoder geo.Geocoder = geo.Static{}
	if strings.TrimSpace(cfg.GeocoderURL) != "" {
		geocoder = geo.NewHTTPGeocoder(cfg.GeocoderURL, nil)
	}
	est := rate.NewByName(cfg.RateProvider, geocoder)
	carts := cart.NewService(store, pub, logger)

	h := server.New(est, carts, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("api listening",
		zap.String("port", cfg.Port),
		zap.String("cart_backend", cfg.CartBackend),
		zap.String("rate_provider", orDefault(cfg.RateProvider, "distance")),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

// newCartStore selects the snapshot backend. Redis is the default; Postgres
// runs its migrations on startup; memory needs nothing and forgets on exit.
func newCartStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (blob.Store, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.CartBackend)) {
	case "postgres":
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return blob.NewPostgresStore(pool), pool.Close, nil
	case "memory":
		logger.Warn("using in-memory cart store; snapshots will not survive restarts")
		return blob.NewMemoryStore(), func() {}, nil
	default:
		client := redis.NewClient(&redis.Options{Addr: orDefault(cfg.RedisAddr, "localhost:6379")})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		return blob.NewRedisStore(client), func() { _ = client.Close() }, nil
	}
}

// newPublisher connects to the broker when configured; cart events are
// optional and a missing broker only disables them.
func newPublisher(cfg config.Config, logger *zap.Logger) events.Publisher {
	if strings.TrimSpace(cfg.AMQPURL) == "" {
		return events.Noop{}
	}
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		logger.Warn("rabbitmq unavailable, cart events disabled", zap.Error(err))
		return events.Noop{}
	}
	pub, err := events.NewRabbit(conn)
	if err != nil {
		logger.Warn("rabbitmq channel setup failed, cart events disabled", zap.Error(err))
		return events.Noop{}
	}
	return pub
}

func orDefault(s, d string) string {
	if strings.TrimSpace(s) == "" {
		return d
	}
	return s
}
