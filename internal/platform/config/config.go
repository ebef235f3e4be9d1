package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full process configuration, read from the environment.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	Server   ServerConfig   `envconfig:"SERVER"`
	Log      LogConfig      `envconfig:"LOG"`
	Postgres PostgresConfig `envconfig:"POSTGRES"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	Kafka    KafkaConfig    `envconfig:"KAFKA"`
	Trust    TrustConfig    `envconfig:"TRUST"`
}

// ServerConfig configures the ops listener (health, readiness, metrics).
type ServerConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

// PostgresConfig selects Postgres-backed stores when DSN is set; the in-memory
// stores are used otherwise.
type PostgresConfig struct {
	DSN             string        `envconfig:"DSN"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"1h"`
	Migrate         bool          `envconfig:"MIGRATE" default:"true"`
}

// RedisConfig enables the TrustView read-through cache and tuple persistence
// when URL is set.
type RedisConfig struct {
	URL          string        `envconfig:"URL"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	ViewCacheTTL time.Duration `envconfig:"VIEW_CACHE_TTL" default:"5m"`
}

// KafkaConfig enables the audit event stream when Brokers is set.
type KafkaConfig struct {
	Brokers           []string `envconfig:"BROKERS"`
	Topic             string   `envconfig:"TOPIC" default:"trust-events"`
	ClientID          string   `envconfig:"CLIENT_ID" default:"trustline"`
	Partitions        int32    `envconfig:"PARTITIONS" default:"3"`
	ReplicationFactor int16    `envconfig:"REPLICATION_FACTOR" default:"1"`
	AsyncBuffer       int      `envconfig:"ASYNC_BUFFER" default:"1024"`
}

type TrustConfig struct {
	LevelCacheTTL        time.Duration `envconfig:"LEVEL_CACHE_TTL" default:"1m"`
	ReconcileSchedule    string        `envconfig:"RECONCILE_SCHEDULE" default:"@every 1h"`
	ReconcileEnabled     bool          `envconfig:"RECONCILE_ENABLED" default:"true"`
	SyncFailureThreshold int           `envconfig:"SYNC_FAILURE_THRESHOLD" default:"5"`
	SyncCooldown         time.Duration `envconfig:"SYNC_COOLDOWN" default:"30s"`
	TxTimeout            time.Duration `envconfig:"TX_TIMEOUT" default:"5s"`

	// SeedDefaultLevels gives every community without levels the default ladder at startup.
	SeedDefaultLevels bool `envconfig:"SEED_DEFAULT_LEVELS" default:"true"`
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate rejects combinations envconfig cannot express with tags.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format))
	}
	if c.Postgres.MaxOpenConns <= 0 || c.Postgres.MaxIdleConns < 0 || c.Postgres.MaxIdleConns > c.Postgres.MaxOpenConns {
		errs = append(errs, errors.New("invalid POSTGRES_MAX_OPEN_CONNS/POSTGRES_MAX_IDLE_CONNS"))
	}
	if c.Redis.URL != "" && c.Redis.ViewCacheTTL <= 0 {
		errs = append(errs, errors.New("REDIS_VIEW_CACHE_TTL must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.Trust.SyncFailureThreshold <= 0 {
		errs = append(errs, errors.New("TRUST_SYNC_FAILURE_THRESHOLD must be positive"))
	}
	if c.Trust.TxTimeout <= 0 {
		errs = append(errs, errors.New("TRUST_TX_TIMEOUT must be positive"))
	}
	if c.IsProduction() && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required in production"))
	}
	return errors.Join(errs...)
}

// Load reads optional .env files, then the environment. Missing files are skipped.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
