// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping for the supported
// drivers (pure-Go SQLite, PostgreSQL, MySQL) and schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/traderobots-backend/internal/domain"
)

// Supported values for Open's driver argument.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Open connects using the named driver. target is a file path for sqlite and
// a DSN for postgres and mysql. Every connection is instrumented with the
// GORM OpenTelemetry plugin.
func Open(driver, target string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case DriverSQLite, "":
		db, err = OpenSQLite(target)
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(target), gormConfig())
	case DriverMySQL:
		db, err = gorm.Open(mysql.Open(target), gormConfig())
	default:
		return nil, fmt.Errorf("repo: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("repo: tracing plugin: %w", err)
	}
	tunePool(db)
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	tunePool(db)
	return db, nil
}

func gormConfig() *gorm.Config {
	// TranslateError maps driver unique violations to gorm.ErrDuplicatedKey.
	return &gorm.Config{TranslateError: true}
}

func tunePool(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
}

// AutoMigrate creates or updates every table and the partial unique index
// that keeps a single active invite per (robot_name, email). MySQL has no
// filtered indexes; there the service-level supersession is the only guard.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Robot{},
		&domain.Profile{},
		&domain.Invite{},
		&domain.SharedRobot{},
		&domain.StrategyAnalysis{},
		&domain.Idempotency{},
	); err != nil {
		return err
	}

	switch db.Dialector.Name() {
	case "sqlite", DriverPostgres:
		return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_invites_active_pair
			ON invites (robot_name, email) WHERE is_active`).Error
	}
	return nil
}
