package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erp/refundtracker/internal/infrastructure/config"
	"github.com/erp/refundtracker/internal/infrastructure/logger"
	"github.com/erp/refundtracker/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Database owns the gorm handle of the refund store and its connection pool
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// PoolStats is the part of sql.DBStats the health endpoint reports
type PoolStats struct {
	MaxOpen      int           `json:"maxOpen"`
	Open         int           `json:"open"`
	InUse        int           `json:"inUse"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"waitCount"`
	WaitDuration time.Duration `json:"waitDuration"`
}

// NewDatabase opens the database selected by cfg.Driver, sizes its pool and
// checks it is reachable. SQL is logged through log.
func NewDatabase(cfg *config.DatabaseConfig, log *zap.Logger) (*Database, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(log,
			logger.MapGormLogLevel(cfg.LogLevel),
			logger.WithSlowThreshold(cfg.SlowQueryThreshold),
		),
		SkipDefaultTransaction: true,
		PrepareStmt:            cfg.Driver != config.DriverSQLite,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", driverName(cfg), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	configurePool(sqlDB, cfg)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName(cfg), err)
	}
	return &Database{DB: db, sql: sqlDB}, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(cfg.SQLitePath()), nil
	case config.DriverPostgres, "":
		return postgres.Open(cfg.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func driverName(cfg *config.DatabaseConfig) string {
	if cfg.Driver == "" {
		return config.DriverPostgres
	}
	return cfg.Driver
}

func configurePool(sqlDB *sql.DB, cfg *config.DatabaseConfig) {
	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == config.DriverSQLite {
		// every sqlite connection to an in-memory database sees its own database
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(min(cfg.MaxIdleConns, maxOpen))
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
}

// AutoMigrate creates or updates the refund tables. Production deployments run cmd/migrate instead.
func (d *Database) AutoMigrate() error {
	if err := d.DB.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("auto-migrate refund schema: %w", err)
	}
	return nil
}

// SQL returns the pooled connection underneath the gorm handle
func (d *Database) SQL() *sql.DB {
	return d.sql
}

// Close closes the connection pool
func (d *Database) Close() error {
	return d.sql.Close()
}

// Ping checks that the database answers within ctx
func (d *Database) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

// Stats reports the connection pool state
func (d *Database) Stats() PoolStats {
	s := d.sql.Stats()
	return PoolStats{
		MaxOpen:      s.MaxOpenConnections,
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}
