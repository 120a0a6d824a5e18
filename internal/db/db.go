// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rovshanmuradov/topup-shop-bot/internal/logging"
)

//go:embed migrations
var migrationsFS embed.FS

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

const sqliteParams = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// DialectOf picks the database from the DSN: postgres URLs go to PostgreSQL,
// everything else is treated as a SQLite file path.
func DialectOf(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// Open connects, applies migrations and returns the handle.
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	dialect := DialectOf(dsn)
	logger := logging.With(zap.String("component", "db"), zap.String("dialect", string(dialect)))

	gcfg := &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(logger), gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var gdb *gorm.DB
	switch dialect {
	case Postgres:
		// The database container may still be starting.
		err := retry.Do(
			func() error {
				var err error
				gdb, err = gorm.Open(postgres.Open(dsn), gcfg)
				if err != nil {
					return err
				}
				sqlDB, err := gdb.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			retry.Context(ctx),
			retry.Attempts(15),
			retry.Delay(2*time.Second),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				logger.Warn("Database connection attempt failed", zap.Uint("attempt", n+1), zap.Error(err))
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to the database: %w", err)
		}
	default:
		var err error
		gdb, err = gorm.Open(sqlite.Open(sqliteDSN(dsn)), gcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("error getting sql.DB: %w", err)
	}
	if dialect == SQLite {
		// One writer keeps SQLite free of "database is locked" on writes.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := runMigrations(sqlDB, dialect); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	logger.Info("Database ready")
	return gdb, nil
}

func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("error getting sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func sqliteDSN(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?" + sqliteParams
}

func runMigrations(sqlDB *sql.DB, dialect Dialect) error {
	src, err := iofs.New(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return fmt.Errorf("error opening migrations source: %w", err)
	}

	var driver database.Driver
	switch dialect {
	case Postgres:
		driver, err = migratepg.WithInstance(sqlDB, &migratepg.Config{})
	default:
		driver, err = migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("error initializing migration driver: %w", err)
	}

	// m is not closed: that would close sqlDB which gorm keeps using.
	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		return fmt.Errorf("error initializing migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error applying migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		logging.Info("Migrations completed successfully", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}
