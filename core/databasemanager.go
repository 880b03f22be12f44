package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type LogLevel int

const (
	LogLevelSilent LogLevel = iota + 1
	LogLevelError
	LogLevelWarn
	LogLevelInfo
)

// DatabaseManager owns the global MySQL pool and is the one place where
// tenant subdomains become physical schema names. Every statement that
// creates, drops or inspects a tenant schema goes through here.
type DatabaseManager struct {
	SqlDB    *sql.DB
	LogLevel LogLevel

	// Excluded holds schema names that must never be treated as tenant
	// schemas, on top of the MySQL system schemas (the registry database
	// itself belongs in this list).
	Excluded []string
}

// NewDatabaseManager creates the global pool (e.g. 30 conns).
// dsn should NOT include a schema (just host/user/pass).
func NewDatabaseManager(dsn string, maxConnection int) (*DatabaseManager, error) {
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxConnection)
	sqlDB.SetMaxIdleConns(maxConnection)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping pool: %w", err)
	}

	return &DatabaseManager{SqlDB: sqlDB}, nil
}

// GetDB gets a *gorm.DB bound to a single connection
// and sets the schema with `USE schema`.
func (dm *DatabaseManager) GetDB(ctx context.Context, schema string) (*gorm.DB, *sql.Conn, error) {
	// Get a dedicated connection from pool
	conn, err := dm.SqlDB.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get conn: %w", err)
	}
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	// Switch schema
	if _, err := conn.ExecContext(ctx, "USE `"+schema+"`"); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to use schema %s: %w", schema, err)
	}

	// Wrap this single connection into GORM
	dialector := mysql.New(mysql.Config{
		Conn: conn, // lock GORM to this connection
	})
	gormLogLevel := logger.Silent
	switch dm.LogLevel {
	case LogLevelError:
		gormLogLevel = logger.Error
	case LogLevelWarn:
		gormLogLevel = logger.Warn
	case LogLevelInfo:
		gormLogLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	// cancel the deferred close; caller will close
	defer func() { conn = nil }()
	return db, conn, nil
}

// Exec runs fn against a gorm handle scoped to the given schema.
func (dm *DatabaseManager) Exec(ctx context.Context, schema string, fn func(db *gorm.DB) error) error {
	db, conn, err := dm.GetDB(ctx, schema)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(db)
}

// Close closes the global pool
func (dm *DatabaseManager) Close() error {
	return dm.SqlDB.Close()
}

// Create provisions an empty schema for the subdomain.
func (dm *DatabaseManager) Create(ctx context.Context, schema string) error {
	if _, err := dm.SqlDB.ExecContext(ctx, "CREATE DATABASE `"+schema+"` DEFAULT CHARACTER SET utf8mb4"); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	return nil
}

// Drop removes the schema and everything in it.
func (dm *DatabaseManager) Drop(ctx context.Context, schema string) error {
	if _, err := dm.SqlDB.ExecContext(ctx, "DROP DATABASE IF EXISTS `"+schema+"`"); err != nil {
		return fmt.Errorf("failed to drop schema %s: %w", schema, err)
	}
	return nil
}

// Exists answers "is this schema already present" independent of the
// registry. Tier 1 checks the schema catalog; if that view yields nothing
// it falls back to looking for tables registered under the name, since
// tables imply the schema is in active use.
func (dm *DatabaseManager) Exists(ctx context.Context, schema string) (bool, error) {
	var count int
	err := dm.SqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?",
		schema,
	).Scan(&count)
	if err == nil && count > 0 {
		return true, nil
	}

	var tables int
	err2 := dm.SqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ?",
		schema,
	).Scan(&tables)
	if err2 != nil {
		if err != nil {
			return false, fmt.Errorf("failed to check schema %s: %w", schema, err)
		}
		return false, fmt.Errorf("failed to check tables of schema %s: %w", schema, err2)
	}
	return tables > 0, nil
}

// List enumerates tenant schema names: everything SHOW DATABASES returns
// minus system schemas, the registry database and reserved names.
func (dm *DatabaseManager) List(ctx context.Context) ([]string, error) {
	rows, err := dm.SqlDB.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, fmt.Errorf("failed to query databases: %w", err)
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var db string
		if err := rows.Scan(&db); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}

		if dm.excluded(db) {
			continue
		}
		databases = append(databases, db)
	}

	return databases, rows.Err()
}

func (dm *DatabaseManager) excluded(name string) bool {
	switch name {
	case "information_schema", "mysql", "performance_schema", "sys":
		return true
	}
	for _, ex := range dm.Excluded {
		if name == ex {
			return true
		}
	}
	return ReservedSubdomain(name)
}

// EventCount reports the tenant's live event count, the metric checked
// before a plan downgrade is applied.
func (dm *DatabaseManager) EventCount(ctx context.Context, schema string) (int, error) {
	var count int64
	err := dm.Exec(ctx, schema, func(db *gorm.DB) error {
		return db.Table("events").Count(&count).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count events in %s: %w", schema, err)
	}
	return int(count), nil
}
