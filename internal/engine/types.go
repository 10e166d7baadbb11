package engine

import (
	"context"
	"log/slog"
	"strings"
)

// Script is an immutable schema change unit. Providers rebuild scripts fresh
// on every operation; the engine never persists them.
type Script struct {
	// Name uniquely identifies the script and drives ordering and journal
	// matching (e.g., "0002_add_index.sql").
	Name string

	// RunGroup is a coarse ordering bucket evaluated before the name. Lower
	// groups run first.
	RunGroup int

	// Contents holds the script body. The engine treats it as opaque and
	// hands it to the ScriptExecutor untouched.
	Contents string
}

// NameComparer imposes a total order over script names. The same comparer
// must be used for sequencing and for every name based match, otherwise the
// ordering guarantees of the engine break.
type NameComparer func(a, b string) int

// DefaultComparer orders names by byte-wise comparison.
func DefaultComparer(a, b string) int {
	return strings.Compare(a, b)
}

// ScriptProvider discovers candidate scripts. Implementations must be
// stateless per call; the engine may invoke them once per operation.
type ScriptProvider interface {
	GetScripts(ctx context.Context) ([]Script, error)
}

// Journal durably records which scripts have been applied.
type Journal interface {
	// GetExecutedScripts returns the applied script names in chronological
	// execution order. Cascading rollback depends on that order.
	GetExecutedScripts(ctx context.Context) ([]string, error)

	// StoreExecutedScript records a script as applied. The operation run ID
	// is available through RunIDFromContext.
	StoreExecutedScript(ctx context.Context, script Script) error

	// RemoveExecutedScript retracts a previously recorded script by name.
	RemoveExecutedScript(ctx context.Context, name string) error
}

// ScriptExecutor runs script contents against the target database.
type ScriptExecutor interface {
	// VerifySchema is the executor precondition check, invoked once per
	// upgrade or downgrade before any script runs.
	VerifySchema(ctx context.Context) error

	// Execute runs a single script, expanding the supplied variables.
	Execute(ctx context.Context, script Script, variables map[string]string) error
}

// Guard is the scope-bound exclusive token held for the duration of one
// mutating operation. Release must be safe to call exactly once per guard
// and is invoked on every exit path.
type Guard interface {
	Release()
}

// ConnectionManager owns connectivity to the target and hands out operation
// guards. Cross-process exclusivity, if any, is this collaborator's concern.
type ConnectionManager interface {
	// TryConnect reports whether the target is reachable together with a
	// human readable message. Connection faults are not returned as errors.
	TryConnect(ctx context.Context, log *slog.Logger) (bool, string)

	// OperationStarting acquires the exclusive guard for one operation. The
	// engine acquires it before reading the executed-set snapshot.
	OperationStarting(ctx context.Context, log *slog.Logger) (Guard, error)

	// ExecuteWithManagedConnection runs fn with a usable connection.
	ExecuteWithManagedConnection(ctx context.Context, fn func(ctx context.Context) error) error
}

// ScriptFilter selects which ordered candidates actually run. A filter may
// include or exclude scripts but must never reorder them.
type ScriptFilter interface {
	Filter(scripts []Script, executed []string, comparer NameComparer) []Script
}

// Config wires an Engine together. It is read once by New and never mutated
// afterward; every collaborator is injected as an interface value.
type Config struct {
	Providers   []ScriptProvider
	Journal     Journal
	Executor    ScriptExecutor
	Connections ConnectionManager

	// Filter defaults to the executed-set exclusion policy.
	Filter ScriptFilter

	// Comparer defaults to DefaultComparer.
	Comparer NameComparer

	// Variables are handed to the executor for every script.
	Variables map[string]string

	// Logger receives operation progress. A logger attached to the call
	// context takes precedence. Defaults to slog.Default.
	Logger *slog.Logger

	// OnScriptExecuted, when set, is invoked synchronously after each
	// script that runs to completion.
	OnScriptExecuted func(Script)
}

type runIDKey struct{}

// ContextWithRunID returns a derived context carrying the operation run ID.
// The engine attaches it before calling into collaborators so journals can
// record which operation applied a script.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext extracts the operation run ID, if any.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
