package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// MigrationRunner applies any migrations not yet recorded against one
// tenant schema. Implementations must be idempotent and must translate a
// driver-level "object already exists" failure into ErrDuplicateObject so
// the orchestrator never inspects driver error text.
type MigrationRunner interface {
	// Apply returns true when at least one migration was executed.
	Apply(ctx context.Context, schema string, dir string) (bool, error)
}

// SQLMigrationRunner executes the *.sql files of a directory in lexical
// order inside the tenant schema, recording applied files in a
// schema_migrations table it maintains itself.
type SQLMigrationRunner struct {
	dm *DatabaseManager
}

func NewSQLMigrationRunner(dm *DatabaseManager) *SQLMigrationRunner {
	return &SQLMigrationRunner{dm: dm}
}

var _ MigrationRunner = (*SQLMigrationRunner)(nil)

type migrationRow struct {
	File string `gorm:"column:file;primaryKey;size:255"`
}

func (migrationRow) TableName() string {
	return "schema_migrations"
}

func (r *SQLMigrationRunner) Apply(ctx context.Context, schema string, dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("failed to read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	applied := false
	err = r.dm.Exec(ctx, schema, func(db *gorm.DB) error {
		if err := db.AutoMigrate(&migrationRow{}); err != nil {
			return fmt.Errorf("failed to ensure schema_migrations: %w", err)
		}

		var done []migrationRow
		if err := db.Find(&done).Error; err != nil {
			return fmt.Errorf("failed to read schema_migrations: %w", err)
		}
		seen := map[string]bool{}
		for _, row := range done {
			seen[row.File] = true
		}

		for _, file := range files {
			if seen[file] {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(dir, file))
			if err != nil {
				return fmt.Errorf("failed to read migration %s: %w", file, err)
			}
			for _, stmt := range splitStatements(string(raw)) {
				if err := db.Exec(stmt).Error; err != nil {
					return fmt.Errorf("migration %s: %w", file, translateDuplicate(err))
				}
			}
			if err := db.Create(&migrationRow{File: file}).Error; err != nil {
				return fmt.Errorf("failed to record migration %s: %w", file, err)
			}
			applied = true
		}
		return nil
	})
	if err != nil {
		return applied, err
	}
	return applied, nil
}

// splitStatements cuts a migration file on ";" line ends. Good enough for
// the DDL these files contain; no procedures or custom delimiters.
func splitStatements(raw string) []string {
	var stmts []string
	for _, part := range strings.Split(raw, ";") {
		stmt := strings.TrimSpace(part)
		if stmt == "" || strings.HasPrefix(stmt, "--") {
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}

// MySQL error numbers meaning "the object is already there": table, column,
// index, constraint. These indicate a partially migrated schema from an
// earlier attempt, not a broken migration.
func translateDuplicate(err error) error {
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1050, 1060, 1061, 1826:
			return fmt.Errorf("%w: %s", ErrDuplicateObject, myErr.Message)
		}
	}
	return err
}
