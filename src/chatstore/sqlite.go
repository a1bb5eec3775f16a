package chatstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/001_initial_schema.sql
var initialSchema string

//go:embed migrations/sqlite/002_thread_mappings.sql
var threadMappings string

// DefaultRetention is how long a conversation survives after its last write.
const DefaultRetention = 24 * time.Hour

// DB is the sqlite-backed Store.
type DB struct {
	path      string
	db        *sql.DB
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Open opens (creating if necessary) the sqlite database at path and runs
// pending migrations.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &DB{
		path:      path,
		db:        db,
		retention: DefaultRetention,
		logger:    logger,
		now:       time.Now,
	}

	if err := store.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := store.PurgeExpired(context.Background()); err != nil {
		logger.Warn("retention purge on open failed", "error", err)
	}

	return store, nil
}

// OpenOrFallback opens the sqlite store at path and, when that fails,
// degrades to the in-memory store with identical semantics. Data written in
// fallback mode does not survive a restart.
func OpenOrFallback(path string, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := Open(path, logger)
	if err != nil {
		logger.Warn("sqlite store unavailable, falling back to in-memory store", "path", path, "error", err)
		return NewMemoryStore()
	}
	return db
}

// DB exposes the underlying handle for components sharing the database,
// such as the thread mapper.
func (d *DB) DB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// SetRetention overrides the retention window. Zero disables purging.
func (d *DB) SetRetention(retention time.Duration) {
	d.retention = retention
}

// PurgeExpired deletes conversations whose last write is older than the
// retention window. Message rows cascade.
func (d *DB) PurgeExpired(ctx context.Context) error {
	if d.retention <= 0 {
		return nil
	}
	cutoff := d.now().Add(-d.retention)
	res, err := d.db.ExecContext(ctx, `DELETE FROM conversations WHERE updated_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge expired conversations: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		d.logger.Info("purged expired conversations", "count", n)
	}
	return nil
}

// StartPurgeLoop runs PurgeExpired on the given interval until ctx is done.
func (d *DB) StartPurgeLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.PurgeExpired(ctx); err != nil {
					d.logger.Warn("retention purge failed", "error", err)
				}
			}
		}
	}()
}

// runMigrations runs database migrations.
func (d *DB) runMigrations() error {
	createMigrationsTable := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := d.db.Exec(createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := d.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migration versions: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, extractUpMigration(initialSchema)},
		{2, extractUpMigration(threadMappings)},
	}

	for _, migration := range migrations {
		if applied[migration.version] {
			continue
		}

		tx, err := d.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.version, err)
		}
	}

	return nil
}

// extractUpMigration extracts the UP migration from goose format.
func extractUpMigration(content string) string {
	lines := strings.Split(content, "\n")
	var upMigration []string
	inUp := false
	inStatement := false

	for _, line := range lines {
		if strings.Contains(line, "-- +goose Up") {
			inUp = true
			continue
		}
		if strings.Contains(line, "-- +goose Down") {
			break
		}
		if strings.Contains(line, "-- +goose StatementBegin") {
			inStatement = true
			continue
		}
		if strings.Contains(line, "-- +goose StatementEnd") {
			inStatement = false
			continue
		}
		if inUp && inStatement {
			upMigration = append(upMigration, line)
		}
	}

	return strings.Join(upMigration, "\n")
}
