package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	DatabaseURL  string
	RedisAddr    string
	CartBackend  string
	GeocoderURL  string
	RateProvider string
	AMQPURL      string
}

// Load reads configuration from the environment, after loading a local .env
// file when one exists.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:         getenv("PORT", "8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		CartBackend:  getenv("CART_BACKEND", "redis"),
		GeocoderURL:  os.Getenv("GEOCODER_URL"),
		RateProvider: os.Getenv("RATE_PROVIDER"),
		AMQPURL:      os.Getenv("AMQP_URL"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
