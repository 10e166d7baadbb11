// Package sqlite provides the SQLite backend for the deployment engine: the
// journal of applied scripts, the script executor, and the connection
// manager, all backed by one database handle.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/moyolawal/dbup-RollBack/internal/engine"
	"github.com/moyolawal/dbup-RollBack/internal/scripts"
)

// journalTable records applied scripts. The seq column preserves the
// chronological execution order that cascading rollback depends on.
const journalTable = `
	CREATE TABLE IF NOT EXISTS deployed_scripts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		applied_at TEXT NOT NULL,
		digest TEXT NOT NULL,
		run_id TEXT NOT NULL DEFAULT ''
	);
`

// Store is the SQLite backend. It satisfies engine.Journal,
// engine.ScriptExecutor, and engine.ConnectionManager.
type Store struct {
	db     *sql.DB
	cfg    Config
	opLock chan struct{}
}

// Open validates the configuration, opens the database, and applies the
// PRAGMA settings.
func Open(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid sqlite configuration: %w", err)
	}

	if err := createDatabaseFile(cfg.DSN); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := configurePragmas(db, cfg); err != nil {
		db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &Store{
		db:     db,
		cfg:    cfg,
		opLock: make(chan struct{}, 1),
	}, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- engine.Journal implementation ---

// GetExecutedScripts returns the applied script names in the order they were
// journaled.
func (s *Store) GetExecutedScripts(ctx context.Context) ([]string, error) {
	if err := s.ensureJournal(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM deployed_scripts ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployed scripts: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan deployed script: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deployed scripts: %w", err)
	}
	return names, nil
}

// StoreExecutedScript records a script as applied, together with its content
// digest and the run ID of the operation that applied it.
func (s *Store) StoreExecutedScript(ctx context.Context, script engine.Script) error {
	if err := s.ensureJournal(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deployed_scripts (name, applied_at, digest, run_id) VALUES (?, ?, ?, ?)`,
		script.Name,
		time.Now().UTC().Format(time.RFC3339),
		scripts.Digest(script.Contents),
		engine.RunIDFromContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to journal script %s: %w", script.Name, err)
	}
	return nil
}

// RemoveExecutedScript retracts a journal entry by name.
func (s *Store) RemoveExecutedScript(ctx context.Context, name string) error {
	if err := s.ensureJournal(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM deployed_scripts WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to remove journal entry %s: %w", name, err)
	}
	return nil
}

func (s *Store) ensureJournal(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, journalTable); err != nil {
		return fmt.Errorf("failed to create deployed_scripts table: %w", err)
	}
	return nil
}

// --- engine.ScriptExecutor implementation ---

// VerifySchema checks that the target is reachable and the journal table can
// be created. It is the precondition check before any script runs.
func (s *Store) VerifySchema(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return s.ensureJournal(ctx)
}

// Execute runs one script inside a single transaction, statement by
// statement, after expanding the configured variables.
func (s *Store) Execute(ctx context.Context, script engine.Script, variables map[string]string) error {
	contents := scripts.ExpandVariables(script.Contents, variables)
	statements := scripts.SplitStatements(contents)
	if len(statements) == 0 {
		return fmt.Errorf("script %s contains no SQL statements", script.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", script.Name, err)
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("statement %d of %s failed (rollback error: %v): %w", i+1, script.Name, rbErr, err)
			}
			return fmt.Errorf("statement %d of %s failed: %w", i+1, script.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", script.Name, err)
	}
	return nil
}

// --- engine.ConnectionManager implementation ---

// TryConnect reports whether the database answers a ping.
func (s *Store) TryConnect(ctx context.Context, log *slog.Logger) (bool, string) {
	if err := s.db.PingContext(ctx); err != nil {
		if log != nil {
			log.Error("sqlite connection check failed", "dsn", s.cfg.DSN, "error", err)
		}
		return false, fmt.Sprintf("failed to connect to %s: %v", s.cfg.DSN, err)
	}
	return true, fmt.Sprintf("connected to %s", s.cfg.DSN)
}

// OperationStarting hands out the in-process exclusive guard for one
// operation. Cross-process exclusivity is left to SQLite's own file locking.
func (s *Store) OperationStarting(ctx context.Context, log *slog.Logger) (engine.Guard, error) {
	select {
	case s.opLock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if log != nil {
		log.Debug("operation guard acquired", "dsn", s.cfg.DSN)
	}
	return &guard{release: func() { <-s.opLock }}, nil
}

// ExecuteWithManagedConnection runs fn against the pooled handle.
func (s *Store) ExecuteWithManagedConnection(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type guard struct {
	release  func()
	released bool
}

// Release returns the guard. Safe against double release.
func (g *guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.release()
}

// configurePragmas applies the SQLite PRAGMA settings from the configuration.
func configurePragmas(db *sql.DB, cfg Config) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
	}
	if cfg.JournalMode != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA journal_mode = %s", cfg.JournalMode))
	}
	if cfg.Synchronous != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous))
	}
	if cfg.EnableForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

// createDatabaseFile creates the database file and its directory if needed.
// In-memory databases are left alone.
func createDatabaseFile(dsn string) error {
	if dsn == ":memory:" || dsn == "" {
		return nil
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	if _, err := os.Stat(dsn); err == nil {
		return nil
	}

	file, err := os.OpenFile(dsn, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create database file %s: %w", dsn, err)
	}
	return file.Close()
}
