// Package config loads application configuration from environment
// variables.  main loads a .env file first when one is present.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env       string // APP_ENV: dev, test or prod
	Port      string // APP_PORT: HTTP port to listen on
	DBUser    string // DB_USER
	DBPass    string // DB_PASS (optional)
	DBHost    string // DB_HOST
	DBPort    string // DB_PORT
	DBName    string // DB_NAME
	JWTSecret string // JWT_SECRET: shared with the auth service that issues tokens

	// DBMigrate applies the embedded schema at startup (DB_MIGRATE, default true).
	DBMigrate bool

	// SweepInterval is how often lapsed connections are expired
	// (SWEEP_INTERVAL, default 1m); SweepBatch caps one pass (SWEEP_BATCH,
	// default 100).
	SweepInterval time.Duration
	SweepBatch    int

	// RabbitURL is the broker notifications are published to
	// (RABBITMQ_URL, falling back to AMQP_URL).  An empty value disables
	// publishing.
	RabbitURL string
	// RabbitDialTimeout bounds one publish dial (RABBITMQ_DIAL_TIMEOUT,
	// default 2s).
	RabbitDialTimeout time.Duration
	// NotifyConsumer starts the in-process notification log consumer
	// (NOTIFY_CONSUMER_ENABLED, default false).
	NotifyConsumer bool
	// NotifyLogDir is where the consumer writes notifications.log
	// (NOTIFY_LOG_DIR, default "logs").
	NotifyLogDir string
}

// Load reads configuration values from environment variables.  Missing
// required variables stop the program with a fatal log message.
func Load() Config {
	rabbit := os.Getenv("RABBITMQ_URL")
	if rabbit == "" {
		rabbit = os.Getenv("AMQP_URL")
	}
	return Config{
		Env:               must("APP_ENV"),
		Port:              must("APP_PORT"),
		DBUser:            must("DB_USER"),
		DBPass:            os.Getenv("DB_PASS"),
		DBHost:            must("DB_HOST"),
		DBPort:            must("DB_PORT"),
		DBName:            must("DB_NAME"),
		JWTSecret:         must("JWT_SECRET"),
		DBMigrate:         envBool("DB_MIGRATE", true),
		SweepInterval:     positiveDur("SWEEP_INTERVAL", time.Minute),
		SweepBatch:        positiveInt("SWEEP_BATCH", 100),
		RabbitURL:         rabbit,
		RabbitDialTimeout: positiveDur("RABBITMQ_DIAL_TIMEOUT", 2*time.Second),
		NotifyConsumer:    envBool("NOTIFY_CONSUMER_ENABLED", false),
		NotifyLogDir:      envStr("NOTIFY_LOG_DIR", "logs"),
	}
}

// must retrieves the value of a required environment variable.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func positiveInt(key string, d int) int {
	if n := envInt(key, d); n > 0 {
		return n
	}
	return d
}

func positiveDur(key string, d time.Duration) time.Duration {
	if v := envDur(key, d); v > 0 {
		return v
	}
	return d
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
