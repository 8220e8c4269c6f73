package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. Values come from environment
// variables with development defaults so main stays lean.
type Config struct {
	// Addr is the listen address for the health and metrics endpoints.
	Addr string

	// RedisURL points at the authoritative key-value store. Empty means the
	// in-memory store is used (development and tests only).
	RedisURL string

	// IndexPath is the SQLite file backing per-user index storage. Empty
	// means in-memory index storage.
	IndexPath string

	// AuditDatabaseURL is the Postgres DSN for the durable audit trail.
	// Empty means audit events stay in memory.
	AuditDatabaseURL string

	// KafkaBrokers, when set, enables the Kafka audit sink.
	KafkaBrokers []string
	AuditTopic   string

	// Retention bounds how long tombstones survive before the store purges
	// them.
	Retention time.Duration

	// MonthlyQuota is the free-tier creation limit per user per month.
	// Zero disables quota enforcement.
	MonthlyQuota int
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:             envOr("ROADLOG_ADDR", ":8080"),
		RedisURL:         os.Getenv("ROADLOG_REDIS_URL"),
		IndexPath:        os.Getenv("ROADLOG_INDEX_PATH"),
		AuditDatabaseURL: os.Getenv("ROADLOG_AUDIT_DATABASE_URL"),
		AuditTopic:       envOr("ROADLOG_AUDIT_TOPIC", "roadlog.audit"),
		Retention:        time.Duration(envIntOr("ROADLOG_RETENTION_DAYS", 30)) * 24 * time.Hour,
		MonthlyQuota:     envIntOr("ROADLOG_MONTHLY_QUOTA", 30),
	}
	if brokers := os.Getenv("ROADLOG_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envIntOr(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
