package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings shared by both services. Each service reads the
// keys it needs; unused keys are harmless.
type Config struct {
	Env     string
	Port    string
	JWTKey  string
	LogName string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	EventBus     string
	KafkaBrokers []string

	AccountStore     string
	AccountSeedFile  string
	TransactionStore string

	AccountServiceURL     string
	AccountServiceTimeout time.Duration

	// SagaStaleAfter is how old an unfinished transaction must be before an
	// operator may recover it.
	SagaStaleAfter time.Duration
}

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	EventBusRedis = "redis"
	EventBusKafka = "kafka"
)

// Load reads .env (if present) and the process environment. defaultPort and
// defaultDB are per-service fallbacks.
func Load(serviceName, defaultPort, defaultDB string) *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found for %s, relying on environment", serviceName)
	}

	return &Config{
		Env:                   getEnv("ENV", "development"),
		Port:                  getEnv("PORT", defaultPort),
		JWTKey:                getEnv("JWT_SECRET", ""),
		LogName:               serviceName,
		DatabaseURL:           getEnv("DATABASE_URL", defaultDB),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		EventBus:              getEnv("EVENT_BUS", EventBusRedis),
		KafkaBrokers:          splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		AccountStore:          getEnv("ACCOUNT_STORE", StorePostgres),
		AccountSeedFile:       getEnv("ACCOUNT_SEED_FILE", ""),
		TransactionStore:      getEnv("TRANSACTION_STORE", StorePostgres),
		AccountServiceURL:     getEnv("ACCOUNT_SERVICE_URL", "http://localhost:8083"),
		AccountServiceTimeout: getDuration("ACCOUNT_SERVICE_TIMEOUT", 5*time.Second),
		SagaStaleAfter:        getDuration("SAGA_STALE_AFTER", 5*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("Invalid duration for %s (%q), using %s", key, value, fallback)
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
