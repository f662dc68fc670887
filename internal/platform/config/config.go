package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration. Thresholds live here, not in
// the workers that consume them.
type Config struct {
	Addr        string
	DatabaseURL string
	RedisAddr   string

	KafkaBrokers string
	KafkaTopic   string

	JWTSigningKey string
	EncryptionKey string

	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	ProcessingTimeout time.Duration
	ClaimBatchSize    int
	PollInterval      time.Duration
	RetryInterval     time.Duration
	SweepInterval     time.Duration

	// Anomalous inactivity window before the sweeper requests reconciliation.
	InactivityThreshold time.Duration

	// Alerting thresholds surfaced by the sweeper.
	DeadLetterAlertDepth int
	PendingLagAlertDepth int

	RateLimitPerMinute int
	ShutdownTimeout    time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:        envString("SHOPSTREAM_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   envString("KAFKA_TOPIC", "shopstream.event.transitions"),

		JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		EncryptionKey: envString("ENCRYPTION_KEY", "dev-encryption-key-change-in-production"),

		MaxRetries:        envInt("EVENT_MAX_RETRIES", 5),
		RetryBaseDelay:    envDuration("RETRY_BASE_DELAY", 5*time.Second),
		RetryMaxDelay:     envDuration("RETRY_MAX_DELAY", 300*time.Second),
		ProcessingTimeout: envDuration("EVENT_PROCESSING_TIMEOUT", 300*time.Second),
		ClaimBatchSize:    envInt("EVENT_BATCH_SIZE", 100),
		PollInterval:      envDuration("WORKER_POLL_INTERVAL", time.Second),
		RetryInterval:     envDuration("RETRY_SWEEP_INTERVAL", 30*time.Second),
		SweepInterval:     envDuration("RECONCILIATION_INTERVAL", 15*time.Minute),

		InactivityThreshold: envDuration("TENANT_INACTIVITY_THRESHOLD", 24*time.Hour),

		DeadLetterAlertDepth: envInt("ALERT_DEAD_LETTER_DEPTH", 10),
		PendingLagAlertDepth: envInt("ALERT_PENDING_LAG", 100),

		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		ShutdownTimeout:    envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
