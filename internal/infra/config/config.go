package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/joho/godotenv"
)

const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string
	GRPCAddr string
	Storage  string

	MongoURI       string
	MongoDB        string
	IdempotencyTTL time.Duration

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaGroupID       string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration

	RedisURL           string
	ReserveLockTimeout time.Duration
	// IdempotencyLockTTL is the lease of the lock a keyed command holds
	// for its whole execution.
	IdempotencyLockTTL time.Duration
	HoldTTL            time.Duration

	HoldSweepInterval    time.Duration
	ReconcileInterval    time.Duration
	AutoCompleteInterval time.Duration

	CalendarTZ *time.Location

	ScyllaHosts       []string
	ScyllaKeyspace    string
	ScyllaUsername    string
	ScyllaPassword    string
	ScyllaTimeout     time.Duration
	ScyllaConsistency gocql.Consistency
	ReplicationFactor int

	BookingRateLimit float64
	BookingRateBurst int

	FixturesPath string
}

// Load parses configuration from the current environment. Values from an
// optional .env file (ENV_FILE, default ".env") never override variables
// that are already set.
func Load() (Config, error) {
	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:         getEnv("GRPC_ADDR", ":9090"),
		Storage:          strings.ToLower(getEnv("STORAGE", StorageMemory)),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "activityhub"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "activityhub-history"),
		RedisURL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		ScyllaHosts:      splitAndTrim(os.Getenv("SCYLLA_HOSTS")),
		ScyllaKeyspace:   strings.TrimSpace(getEnv("SCYLLA_KEYSPACE", "activityhub")),
		ScyllaUsername:   strings.TrimSpace(os.Getenv("SCYLLA_USERNAME")),
		ScyllaPassword:   strings.TrimSpace(os.Getenv("SCYLLA_PASSWORD")),
		FixturesPath:     strings.TrimSpace(os.Getenv("FIXTURES_PATH")),
	}
	cfg.KafkaBrokers = splitAndTrim(os.Getenv("KAFKA_BROKERS"))

	durations := []struct {
		key  string
		def  time.Duration
		into *time.Duration
	}{
		{"IDEMP_TTL", 168 * time.Hour, &cfg.IdempotencyTTL},
		{"OUTBOX_POLL_INTERVAL", 500 * time.Millisecond, &cfg.OutboxPollInterval},
		{"RESERVE_LOCK_TIMEOUT", 2 * time.Second, &cfg.ReserveLockTimeout},
		{"IDEMP_LOCK_TTL", 30 * time.Second, &cfg.IdempotencyLockTTL},
		{"HOLD_TTL", 10 * time.Minute, &cfg.HoldTTL},
		{"HOLD_SWEEP_INTERVAL", 30 * time.Second, &cfg.HoldSweepInterval},
		{"RECONCILE_INTERVAL", 15 * time.Minute, &cfg.ReconcileInterval},
		{"AUTO_COMPLETE_INTERVAL", 5 * time.Minute, &cfg.AutoCompleteInterval},
		{"SCYLLA_TIMEOUT", 5 * time.Second, &cfg.ScyllaTimeout},
	}
	for _, d := range durations {
		v, err := parseDurationEnv(d.key, d.def)
		if err != nil {
			return Config{}, err
		}
		*d.into = v
	}

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	loc, err := time.LoadLocation(getEnv("CALENDAR_TZ", "UTC"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid CALENDAR_TZ: %w", err)
	}
	cfg.CalendarTZ = loc

	consistency, err := parseConsistency(getEnv("SCYLLA_CONSISTENCY", "quorum"))
	if err != nil {
		return Config{}, err
	}
	cfg.ScyllaConsistency = consistency
	cfg.ReplicationFactor = parseIntWithDefault(strings.TrimSpace(os.Getenv("SCYLLA_REPLICATION_FACTOR")), 1)

	if cfg.BookingRateLimit, err = parseFloatEnv("BOOKING_RATE_LIMIT", 5); err != nil {
		return Config{}, err
	}
	cfg.BookingRateBurst = parseIntWithDefault(strings.TrimSpace(os.Getenv("BOOKING_RATE_BURST")), 10)

	switch cfg.Storage {
	case StorageMemory:
	case StorageMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORAGE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("unsupported STORAGE: %s", cfg.Storage)
	}
	if cfg.HoldTTL <= 0 {
		return Config{}, fmt.Errorf("HOLD_TTL must be positive")
	}
	if len(cfg.ScyllaHosts) > 0 && cfg.ScyllaKeyspace == "" {
		return Config{}, fmt.Errorf("SCYLLA_KEYSPACE is required")
	}
	return cfg, nil
}

// KafkaEnabled reports whether events leave the process through Kafka.
func (c Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

func (c Config) ScyllaEnabled() bool { return len(c.ScyllaHosts) > 0 }

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseFloatEnv(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseIntWithDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func parseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_quorum", "localquorum":
		return gocql.LocalQuorum, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported SCYLLA_CONSISTENCY: %s", raw)
	}
}
