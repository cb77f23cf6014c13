package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/erp/refundtracker/internal/infrastructure/config"
	"github.com/erp/refundtracker/internal/infrastructure/logger"
	"github.com/erp/refundtracker/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

// errUsage marks a command line that could not be parsed; usage has been printed
var errUsage = errors.New("invalid usage")

type options struct {
	migrationsPath string
	configPath     string
	logLevel       string
	confirm        bool
}

func main() {
	var opts options
	flag.StringVar(&opts.migrationsPath, "path", "", "Path to migrations directory (default: ./migrations)")
	flag.StringVar(&opts.configPath, "config", "", "Config file (default: config/config.toml lookup)")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.confirm, "confirm", false, "Confirm a destructive command (drop)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{
		Level:      opts.logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: logger.DefaultTimeFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, opts, args, log)
	stop()
	_ = logger.Sync(log)

	switch {
	case errors.Is(err, errUsage):
		os.Exit(2)
	case err != nil:
		log.Error("Migration command failed", zap.String("command", args[0]), zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, args []string, log *zap.Logger) error {
	command := args[0]
	dir, err := resolveMigrationsPath(opts.migrationsPath)
	if err != nil {
		return fmt.Errorf("resolve migrations directory: %w", err)
	}
	log.Debug("Migration CLI started", zap.String("command", command), zap.String("migrations_path", dir))

	// Commands that only touch the migrations directory
	switch command {
	case "create":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: migrate create <name> [description]")
			return errUsage
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		mf, err := migration.CreateMigration(dir, args[1], description)
		if err != nil {
			return err
		}
		log.Info("Migration created",
			zap.Uint("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return nil
	case "list":
		migrations, err := migration.ListMigrations(dir)
		if err != nil {
			return err
		}
		for _, m := range migrations {
			fmt.Println("  -", m)
		}
		log.Info("Available migrations", zap.Int("count", len(migrations)))
		return nil
	}

	m, err := openMigrator(opts, dir, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Closing migrator", zap.Error(err))
		}
	}()

	release := m.StopOn(ctx)
	defer release()
	return execute(m, command, args[1:], opts.confirm, log)
}

func openMigrator(opts options, dir string, log *zap.Logger) (*migration.Migrator, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return nil, fmt.Errorf("versioned migrations target postgres, got driver %q; sqlite databases are created by auto_migrate",
			cfg.Database.Driver)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, dir, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func execute(m *migration.Migrator, command string, args []string, confirm bool, log *zap.Logger) error {
	switch command {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "step":
		n, err := intArg(args, "step count", "migrate step <n>")
		if err != nil {
			return err
		}
		return m.Steps(n)
	case "goto":
		v, err := intArg(args, "version", "migrate goto <version>")
		if err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("version must not be negative, got %d", v)
		}
		return m.GoTo(uint(v))
	case "version", "status":
		status, err := m.Status()
		if err != nil {
			return err
		}
		for _, p := range status.Pending {
			fmt.Println("  pending", p)
		}
		log.Info("Current migration version",
			zap.Uint("version", status.Version),
			zap.Bool("dirty", status.Dirty),
			zap.Int("pending", len(status.Pending)),
		)
		return nil
	case "force":
		v, err := intArg(args, "version", "migrate force <version>")
		if err != nil {
			return err
		}
		return m.Force(v)
	case "drop":
		if !confirm {
			return errors.New("drop destroys every table; rerun with -confirm")
		}
		return m.Drop()
	default:
		printUsage()
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}
}

func intArg(args []string, what, usage string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%s required: %s", what, usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, args[0])
	}
	return n, nil
}

// resolveMigrationsPath returns path, or ./migrations, or the migrations directory
// two levels above the executable, as an absolute path
func resolveMigrationsPath(path string) (string, error) {
	if path == "" {
		path = defaultMigrationsPath
		if _, err := os.Stat(path); err != nil {
			if exec, err := os.Executable(); err == nil {
				candidate := filepath.Join(filepath.Dir(exec), "..", "..", defaultMigrationsPath)
				if _, err := os.Stat(candidate); err == nil {
					path = candidate
				}
			}
		}
	}
	return filepath.Abs(path)
}

func printUsage() {
	fmt.Println(`Refund tracker database migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  status                Show the applied version and pending migrations (alias: version)
  force <version>       Force set migration version after fixing a dirty state
  drop                  Drop all database objects (requires -confirm)
  create <name> [desc]  Create the next numbered migration file pair
  list                  List available migrations

Flags:
  -path string          Path to migrations directory (default: ./migrations)
  -config string        Config file to read database settings from
  -log-level string     Log level: debug, info, warn, error (default: info)
  -confirm              Confirm a destructive command

Interrupting a running migration stops it after the current file.

Environment Variables:
  REFUND_DATABASE_HOST, REFUND_DATABASE_PORT, REFUND_DATABASE_USER,
  REFUND_DATABASE_PASSWORD, REFUND_DATABASE_DBNAME, REFUND_DATABASE_SSLMODE`)
}
