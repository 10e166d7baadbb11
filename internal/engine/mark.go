package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MarkAsExecuted journals the current selection without executing any script
// contents. It reconciles environments whose schema changes were applied
// out-of-band: every script an upgrade would run now is recorded as applied,
// in order.
func (e *Engine) MarkAsExecuted(ctx context.Context) Result {
	return e.markAsExecuted(ctx, "")
}

// MarkAsExecutedThrough behaves like MarkAsExecuted but stops immediately
// after journaling the script with the given name, even if more selected
// scripts remain.
func (e *Engine) MarkAsExecutedThrough(ctx context.Context, latest string) Result {
	return e.markAsExecuted(ctx, latest)
}

func (e *Engine) markAsExecuted(ctx context.Context, latest string) (res Result) {
	runID := uuid.NewString()
	ctx = ContextWithRunID(ctx, runID)
	log := e.logger(ctx).With("operation", "mark-executed", "run_id", runID)
	defer e.recoverToResult(&res, runID, log)

	log.Info("marking scripts as executed")

	guard, err := e.cfg.Connections.OperationStarting(ctx, log)
	if err != nil {
		log.Error("failed to acquire operation guard", "error", err)
		return failed(runID, nil, "", fmt.Errorf("%w: %v", ErrConnection, err))
	}
	defer guard.Release()

	selection, err := e.selectScripts(ctx)
	if err != nil {
		log.Error("failed to compute script selection", "error", err)
		return failed(runID, nil, "", err)
	}

	// Progress goes through res so a journal panic still yields a Result
	// listing exactly the scripts that were recorded.
	stopped := false
	for _, script := range selection {
		res.FailedScript = script.Name
		if err := e.cfg.Journal.StoreExecutedScript(ctx, script); err != nil {
			log.Error("failed to journal script", "script", script.Name, "error", err)
			return failed(runID, res.Scripts, script.Name, NewScriptError(script.Name, "journal", err))
		}
		res.Scripts = append(res.Scripts, script)
		log.Info("script marked as executed", "script", script.Name)

		if latest != "" && e.cfg.Comparer(script.Name, latest) == 0 {
			stopped = true
			break
		}
	}

	if latest != "" && !stopped {
		log.Warn("stop script was not part of the selection", "script", latest)
	}

	log.Info("mark as executed finished", "scripts", len(res.Scripts))
	return succeeded(runID, res.Scripts)
}
