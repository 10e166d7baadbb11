// Package postgres provides the PostgreSQL backend for the deployment
// engine: journal, script executor, and connection manager over lib/pq. The
// operation guard is backed by an advisory lock, so exclusivity holds across
// processes sharing one database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/moyolawal/dbup-RollBack/internal/engine"
	"github.com/moyolawal/dbup-RollBack/internal/scripts"
)

// Config holds PostgreSQL-specific configuration.
type Config struct {
	// URL is the connection string (postgres://... or key=value form).
	URL string

	// Schema qualifies the journal table. Defaults to "public".
	Schema string

	// ConnectTimeout bounds the initial connectivity check.
	ConnectTimeout time.Duration
}

// DefaultConfig returns a configuration with sensible defaults for the given
// connection URL.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		Schema:         "public",
		ConnectTimeout: 10 * time.Second,
	}
}

// Store is the PostgreSQL backend. It satisfies engine.Journal,
// engine.ScriptExecutor, and engine.ConnectionManager.
type Store struct {
	db      *sql.DB
	cfg     Config
	table   string // schema-qualified, quoted journal table
	lockKey int64
}

// Open opens the database and verifies connectivity.
func Open(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres URL cannot be empty")
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	ctx := context.Background()
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	table := qualifiedTable(cfg.Schema)
	return &Store{
		db:      db,
		cfg:     cfg,
		table:   table,
		lockKey: advisoryLockKey(table),
	}, nil
}

// qualifiedTable returns the quoted, schema-qualified journal table name.
func qualifiedTable(schema string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier("deployed_scripts")
}

// advisoryLockKey derives a stable advisory lock key for the journal table.
func advisoryLockKey(table string) int64 {
	h := fnv.New64a()
	h.Write([]byte("dbup:" + table))
	return int64(h.Sum64())
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureJournal(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			digest TEXT NOT NULL,
			run_id TEXT NOT NULL DEFAULT ''
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create journal table %s: %w", s.table, err)
	}
	return nil
}

// --- engine.Journal implementation ---

// GetExecutedScripts returns the applied script names in the order they were
// journaled.
func (s *Store) GetExecutedScripts(ctx context.Context) ([]string, error) {
	if err := s.ensureJournal(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM %s ORDER BY seq ASC`, s.table))
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

// StoreExecutedScript records a script as applied.
func (s *Store) StoreExecutedScript(ctx context.Context, script engine.Script) error {
	if err := s.ensureJournal(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (name, digest, run_id) VALUES ($1, $2, $3)`, s.table),
		script.Name,
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

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, s.table), name)
	if err != nil {
		return fmt.Errorf("failed to remove journal entry %s: %w", name, err)
	}
	return nil
}

// --- engine.ScriptExecutor implementation ---

// VerifySchema checks reachability and that the journal table is available.
func (s *Store) VerifySchema(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return s.ensureJournal(ctx)
}

// Execute runs one script inside a single transaction after expanding the
// configured variables.
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
			log.Error("postgres connection check failed", "error", err)
		}
		return false, fmt.Sprintf("failed to connect: %v", err)
	}
	return true, "connected"
}

// OperationStarting acquires a session scoped advisory lock on a dedicated
// connection. The guard releases the lock and returns the connection.
func (s *Store) OperationStarting(ctx context.Context, log *slog.Logger) (engine.Guard, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, s.lockKey); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if log != nil {
		log.Debug("advisory lock acquired", "key", s.lockKey)
	}

	return &advisoryGuard{store: s, conn: conn, log: log}, nil
}

// ExecuteWithManagedConnection runs fn against the pooled handle.
func (s *Store) ExecuteWithManagedConnection(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type advisoryGuard struct {
	store    *Store
	conn     *sql.Conn
	log      *slog.Logger
	released bool
}

// Release unlocks the advisory lock and returns the reserved connection.
// Safe against double release.
func (g *advisoryGuard) Release() {
	if g.released {
		return
	}
	g.released = true

	// Unlock on the same session that locked; closing the connection would
	// also drop the lock, the explicit unlock just keeps it prompt.
	if _, err := g.conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, g.store.lockKey); err != nil && g.log != nil {
		g.log.Warn("failed to release advisory lock", "key", g.store.lockKey, "error", err)
	}
	g.conn.Close()
}
