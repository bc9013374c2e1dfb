package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	// Embedded so envconfig reads their tags without a prefix
	Database
	Log
	Karma
	Vote

	JWTSecret string        `envconfig:"JWT_SECRET"`
	TokenTTL  time.Duration `envconfig:"JWT_TTL" default:"72h"`
}

type Database struct {
	// Driver is pgx (default), postgres (lib/pq) or sqlite.
	Driver     string `envconfig:"DB_DRIVER" default:"pgx"`
	URL        string `envconfig:"DATABASE_URL"`
	Host       string `envconfig:"DB_HOST" default:"localhost"`
	Port       string `envconfig:"DB_PORT" default:"5432"`
	User       string `envconfig:"DB_USER" default:"postgres"`
	Password   string `envconfig:"DB_PASSWORD"`
	Name       string `envconfig:"DB_NAME" default:"baraza"`
	SSLMode    string `envconfig:"DB_SSLMODE" default:"disable"`
	SQLitePath string `envconfig:"SQLITE_PATH"`

	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"100"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
	SlowThreshold   time.Duration `envconfig:"DB_SLOW_THRESHOLD" default:"1s"`
}

type Log struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	Dev   bool   `envconfig:"LOG_DEV"`
}

type Karma struct {
	UseProcedure      bool          `envconfig:"KARMA_USE_PROCEDURE"`
	Concurrency       int           `envconfig:"KARMA_RECOMPUTE_CONCURRENCY" default:"4"`
	ReconcileInterval time.Duration `envconfig:"KARMA_RECONCILE_INTERVAL" default:"24h"`
	BatchSize         int           `envconfig:"KARMA_BATCH_SIZE" default:"50"`
	FlushInterval     time.Duration `envconfig:"KARMA_FLUSH_INTERVAL" default:"500ms"`
	QueueSize         int           `envconfig:"KARMA_QUEUE_SIZE" default:"1000"`
	CacheSize         int           `envconfig:"KARMA_CACHE_SIZE" default:"500"`
	CacheTTL          time.Duration `envconfig:"KARMA_CACHE_TTL" default:"1m"`
}

type Vote struct {
	MaxAttempts     int           `envconfig:"VOTE_MAX_ATTEMPTS" default:"3"`
	ConflictRetries int           `envconfig:"VOTE_CONFLICT_RETRIES" default:"1"`
	InitialBackoff  time.Duration `envconfig:"VOTE_INITIAL_BACKOFF" default:"100ms"`
	MaxBackoff      time.Duration `envconfig:"VOTE_MAX_BACKOFF" default:"2s"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	// Missing .env files are fine, the environment may already be populated
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPgx, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Karma.Concurrency < 1 {
		return fmt.Errorf("KARMA_RECOMPUTE_CONCURRENCY must be at least 1")
	}
	if c.Vote.MaxAttempts < 1 {
		return fmt.Errorf("VOTE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Karma.UseProcedure && c.Database.Driver == DriverSQLite {
		return fmt.Errorf("KARMA_USE_PROCEDURE requires a postgres driver")
	}
	return nil
}

// DSN builds the connection string for the configured driver.
func (d Database) DSN() string {
	if d.Driver == DriverSQLite {
		if d.SQLitePath == "" {
			return "file::memory:?cache=shared"
		}
		return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", d.SQLitePath)
	}
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}
