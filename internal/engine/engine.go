package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/moyolawal/dbup-RollBack/internal/logging"
)

// Engine coordinates script selection, ordering, execution, and journaling
// for one target database. Construct it with New; the zero value is not
// usable.
type Engine struct {
	cfg Config
}

// New validates the configuration and returns a ready engine. The
// configuration is copied; later mutation of the caller's value has no
// effect.
func New(cfg Config) (*Engine, error) {
	if cfg.Journal == nil {
		return nil, fmt.Errorf("%w: journal", ErrMissingCollaborator)
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: script executor", ErrMissingCollaborator)
	}
	if cfg.Connections == nil {
		return nil, fmt.Errorf("%w: connection manager", ErrMissingCollaborator)
	}
	if cfg.Filter == nil {
		cfg.Filter = DefaultFilter{}
	}
	if cfg.Comparer == nil {
		cfg.Comparer = DefaultComparer
	}
	return &Engine{cfg: cfg}, nil
}

// logger resolves the operation logger: a context-attached logger wins, then
// the configured logger, then the process default.
func (e *Engine) logger(ctx context.Context) *slog.Logger {
	if l := logging.FromContext(ctx); l != nil {
		return l
	}
	if e.cfg.Logger != nil {
		return e.cfg.Logger
	}
	return slog.Default()
}

// TryConnect reports whether the target database is reachable, with a
// descriptive message. Connection problems are never surfaced as errors.
func (e *Engine) TryConnect(ctx context.Context) (bool, string) {
	return e.cfg.Connections.TryConnect(ctx, e.logger(ctx))
}

// IsUpgradeRequired reports whether any discovered script is still pending.
func (e *Engine) IsUpgradeRequired(ctx context.Context) (bool, error) {
	pending, err := e.GetScriptsToExecute(ctx)
	if err != nil {
		return false, err
	}
	return len(pending) > 0, nil
}

// GetDiscoveredScripts returns every script the providers currently emit, in
// sequenced order.
func (e *Engine) GetDiscoveredScripts(ctx context.Context) ([]Script, error) {
	discovered, err := e.discover(ctx)
	if err != nil {
		return nil, err
	}
	return sequence(discovered, e.cfg.Comparer), nil
}

// GetScriptsToExecute returns the ordered scripts an upgrade would run now.
func (e *Engine) GetScriptsToExecute(ctx context.Context) ([]Script, error) {
	return e.selectScripts(ctx)
}

// GetExecutedScripts returns the journaled script names in chronological
// execution order.
func (e *Engine) GetExecutedScripts(ctx context.Context) ([]string, error) {
	executed, err := e.cfg.Journal.GetExecutedScripts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return executed, nil
}

// GetExecutedButNotDiscovered returns journaled names no provider currently
// emits, in chronological order. Useful for spotting orphaned journal rows.
func (e *Engine) GetExecutedButNotDiscovered(ctx context.Context) ([]string, error) {
	discovered, err := e.GetDiscoveredScripts(ctx)
	if err != nil {
		return nil, err
	}
	executed, err := e.cfg.Journal.GetExecutedScripts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	var orphaned []string
	for _, name := range executed {
		if _, ok := findScript(discovered, name, e.cfg.Comparer); !ok {
			orphaned = append(orphaned, name)
		}
	}
	return orphaned, nil
}

// PerformUpgrade runs every pending script in sequence and journals each one
// as it completes. The first fault stops the run; the Result retains every
// script that fully succeeded and names the script that was in flight.
func (e *Engine) PerformUpgrade(ctx context.Context) (res Result) {
	runID := uuid.NewString()
	ctx = ContextWithRunID(ctx, runID)
	log := e.logger(ctx).With("operation", "upgrade", "run_id", runID)
	defer e.recoverToResult(&res, runID, log)

	log.Info("upgrade starting")

	guard, err := e.cfg.Connections.OperationStarting(ctx, log)
	if err != nil {
		log.Error("failed to acquire operation guard", "error", err)
		return failed(runID, nil, "", fmt.Errorf("%w: %v", ErrConnection, err))
	}
	defer guard.Release()

	// Single executed-set snapshot for the whole operation, read under the
	// guard and never refreshed.
	selection, err := e.selectScripts(ctx)
	if err != nil {
		log.Error("failed to compute script selection", "error", err)
		return failed(runID, nil, "", err)
	}

	if len(selection) == 0 {
		log.Info("no pending scripts, database is up to date")
		return succeeded(runID, nil)
	}

	planned := make([]plannedScript, len(selection))
	for i, script := range selection {
		script := script
		planned[i] = plannedScript{
			script: script,
			notify: true,
			journal: func(ctx context.Context) error {
				return e.cfg.Journal.StoreExecutedScript(ctx, script)
			},
		}
	}

	e.runScripts(ctx, log, runID, planned, &res)
	if res.Successful {
		log.Info("upgrade succeeded", "scripts", len(res.Scripts))
	} else {
		log.Error("upgrade failed", "script", res.FailedScript, "error", res.Err)
	}
	return res
}

// selectScripts computes the canonical selection: aggregate, sequence, then
// filter against one executed-set snapshot. Mutating operations call it
// while holding the operation guard.
func (e *Engine) selectScripts(ctx context.Context) ([]Script, error) {
	discovered, err := e.discover(ctx)
	if err != nil {
		return nil, err
	}
	ordered := sequence(discovered, e.cfg.Comparer)
	executed, err := e.cfg.Journal.GetExecutedScripts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return e.cfg.Filter.Filter(ordered, executed, e.cfg.Comparer), nil
}

// plannedScript pairs a script with the journal mutation coupled to its
// successful execution: a store for forward scripts, a retraction of the
// matching forward entry for rollback scripts. Only forward scripts carry
// the executed notification.
type plannedScript struct {
	script  Script
	notify  bool
	journal func(ctx context.Context) error
}

// runScripts is the shared execution state machine: verify the schema once,
// then run each planned script strictly sequentially, coupling its journal
// mutation and notification to its completion. The first fault aborts.
// Progress is written through res step by step, so the recovery boundary
// reports exactly the scripts the journal holds even when a collaborator
// panics mid-run.
func (e *Engine) runScripts(ctx context.Context, log *slog.Logger, runID string, planned []plannedScript, res *Result) {
	log.Info("verifying target schema")
	if err := e.cfg.Executor.VerifySchema(ctx); err != nil {
		log.Error("schema verification failed", "error", err)
		*res = failed(runID, nil, "", fmt.Errorf("%w: %v", ErrSchemaVerification, err))
		return
	}

	for i, step := range planned {
		name := step.script.Name
		res.FailedScript = name
		log.Info("executing script", "script", name, "position", i+1, "total", len(planned))

		err := e.cfg.Connections.ExecuteWithManagedConnection(ctx, func(ctx context.Context) error {
			return e.cfg.Executor.Execute(ctx, step.script, e.cfg.Variables)
		})
		if err != nil {
			log.Error("script execution failed", "script", name, "error", err)
			*res = failed(runID, res.Scripts, name,
				NewScriptError(name, "execute", fmt.Errorf("%w: %v", ErrScriptFailed, err)))
			return
		}

		if err := step.journal(ctx); err != nil {
			log.Error("failed to update journal", "script", name, "error", err)
			*res = failed(runID, res.Scripts, name, NewScriptError(name, "journal", err))
			return
		}

		res.Scripts = append(res.Scripts, step.script)
		if e.cfg.OnScriptExecuted != nil && step.notify {
			e.cfg.OnScriptExecuted(step.script)
		}
		log.Info("script executed", "script", name)
	}

	*res = succeeded(runID, res.Scripts)
}

// recoverToResult is the catch-all boundary of every mutating operation: a
// panic from a collaborator becomes a failed Result instead of escaping. The
// partial progress and in-flight script already recorded on res survive.
func (e *Engine) recoverToResult(res *Result, runID string, log *slog.Logger) {
	if p := recover(); p != nil {
		log.Error("operation aborted by unexpected fault", "panic", p)
		*res = failed(runID, res.Scripts, res.FailedScript, fmt.Errorf("unexpected fault: %v", p))
	}
}
