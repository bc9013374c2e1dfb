package database

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/emilythestrangee/baraza/backend/internal/config"
	"github.com/emilythestrangee/baraza/backend/internal/logging"
	"github.com/emilythestrangee/baraza/backend/internal/models"
)

// Service represents a service that interacts with a database.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error
	GetDB() *gorm.DB
}

type service struct {
	db     *gorm.DB
	name   string
	logger *zap.Logger
}

// New opens the configured database, runs migrations and tunes the pool.
func New(cfg config.Database, logger *zap.Logger) (Service, error) {
	logger = logging.OrNop(logger)

	db, err := Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("database connected", zap.String("driver", cfg.Driver))

	if err := Migrate(db); err != nil {
		return nil, err
	}
	logger.Info("database migrations completed")

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if cfg.Driver == config.DriverSQLite {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY churn
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &service{db: db, name: cfg.Name, logger: logger}, nil
}

// Open connects without migrating.
func Open(cfg config.Database, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DSN())
	case config.DriverPostgres:
		// lib/pq registers itself as "postgres"
		dialector = postgres.New(postgres.Config{DriverName: "postgres", DSN: cfg.DSN()})
	case config.DriverPgx, "":
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logging.Gorm(logger, cfg.SlowThreshold, false),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every table, and on Postgres installs the
// calculate_user_karma procedure.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.MigrateModels...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if IsPostgres(db) {
		if err := db.Exec(karmaProcedureSQL).Error; err != nil {
			return fmt.Errorf("failed to install karma procedure: %w", err)
		}
	}
	return nil
}

// IsPostgres reports whether db talks to Postgres, which enables row locks
// and the server-side karma procedure.
func IsPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// Wrap exposes an already opened and migrated db as a Service.
func Wrap(db *gorm.DB, name string, logger *zap.Logger) Service {
	return &service{db: db, name: name, logger: logging.OrNop(logger)}
}

func (s *service) GetDB() *gorm.DB {
	return s.db
}

// Health checks the health of the database connection by pinging the database.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats := make(map[string]string)

	// Get underlying SQL DB
	sqlDB, err := s.db.DB()
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db error: %v", err)
		return stats
	}

	// Ping the database
	err = sqlDB.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	// Database is up
	stats["status"] = "up"
	stats["message"] = "It's healthy"

	// Get database stats
	dbStats := sqlDB.Stats()
	stats["open_connections"] = fmt.Sprintf("%d", dbStats.OpenConnections)
	stats["in_use"] = fmt.Sprintf("%d", dbStats.InUse)
	stats["idle"] = fmt.Sprintf("%d", dbStats.Idle)

	return stats
}

// Close closes the database connection.
func (s *service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	s.logger.Info("disconnected from database", zap.String("name", s.name))
	return sqlDB.Close()
}
