package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// MigrationsTable records the applied schema version of the refund tables
const MigrationsTable = "refund_schema_migrations"

// Migrator applies the versioned SQL files of a migrations directory to postgres
type Migrator struct {
	migrate *migrate.Migrate
	dir     string
	log     *zap.Logger
}

// New creates a Migrator over an open postgres connection. Closing the
// Migrator also closes db.
func New(db *sql.DB, migrationsDir string, log *zap.Logger) (*Migrator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("open migrations in %s: %w", migrationsDir, err)
	}
	m.Log = migrateLogger{log: log.Named("migrate")}
	return &Migrator{migrate: m, dir: migrationsDir, log: log}, nil
}

// StopOn asks a running migration to stop after its current file once ctx is done.
// The returned function releases the watcher.
func (m *Migrator) StopOn(ctx context.Context) (release func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			m.log.Warn("Stopping after the current migration", zap.Error(ctx.Err()))
			m.migrate.GracefulStop <- true
		case <-done:
		}
	}()
	return func() { close(done) }
}

// run executes one migrate operation, treating "no change" as success, and logs
// the resulting version
func (m *Migrator) run(op string, fn func() error) error {
	m.log.Info("Running migration", zap.String("op", op))

	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		m.log.Info("Schema already up to date", zap.String("op", op))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration %s: %w", op, err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.log.Info("Migration completed",
		zap.String("op", op),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Up runs all pending migrations
func (m *Migrator) Up() error {
	return m.run("up", m.migrate.Up)
}

// Down rolls back all migrations
func (m *Migrator) Down() error {
	return m.run("down", m.migrate.Down)
}

// Steps applies n migrations (positive = up, negative = down)
func (m *Migrator) Steps(n int) error {
	return m.run(fmt.Sprintf("steps(%d)", n), func() error { return m.migrate.Steps(n) })
}

// GoTo migrates to a specific version
func (m *Migrator) GoTo(version uint) error {
	return m.run(fmt.Sprintf("goto(%d)", version), func() error { return m.migrate.Migrate(version) })
}

// Version returns the current migration version; 0 when nothing is applied
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

// Status is the applied version of the database against the migrations on disk
type Status struct {
	Version uint
	Dirty   bool
	Pending []Migration
}

// Status reports the applied version and the migrations Up would still run
func (m *Migrator) Status() (Status, error) {
	version, dirty, err := m.Version()
	if err != nil {
		return Status{}, err
	}
	available, err := ListMigrations(m.dir)
	if err != nil {
		return Status{}, err
	}
	return Status{Version: version, Dirty: dirty, Pending: pendingAfter(available, version)}, nil
}

func pendingAfter(available []Migration, version uint) []Migration {
	var pending []Migration
	for _, mg := range available {
		if mg.Version > version {
			pending = append(pending, mg)
		}
	}
	return pending
}

// Force sets the migration version without running migrations.
// It is meant for clearing a dirty state after a failed migration was fixed by hand.
func (m *Migrator) Force(version int) error {
	m.log.Warn("Forcing migration version", zap.Int("version", version))
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Drop drops every object in the database, including tables not owned by this service
func (m *Migrator) Drop() error {
	m.log.Warn("Dropping database - all data will be lost")
	if err := m.migrate.Drop(); err != nil {
		return fmt.Errorf("drop database: %w", err)
	}
	return nil
}

// Close releases the migration source and the database
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}

// migrateLogger forwards golang-migrate's progress messages to zap at debug level
type migrateLogger struct {
	log *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.log.Core().Enabled(zap.DebugLevel)
}
