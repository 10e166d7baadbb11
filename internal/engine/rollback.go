package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"
)

// rollbackNameFor derives the undo counterpart of a script name by inserting
// the suffix before the extension: "V2.sql" with "_rollback" becomes
// "V2_rollback.sql". Names without an extension get the suffix appended.
func rollbackNameFor(name, suffix string) string {
	ext := path.Ext(name)
	return name[:len(name)-len(ext)] + suffix + ext
}

// rollbackStep pairs a rollback script with the forward journal entry it
// retracts once it has run.
type rollbackStep struct {
	forwardName string
	script      Script
}

// PerformDowngrade rolls back previously applied scripts.
//
// The target must already be journaled, otherwise the operation fails hard
// with no journal change. In single mode only the target's own rollback
// counterpart runs; a missing counterpart is logged as a warning and the
// operation succeeds with zero rollbacks. In cascading mode every script
// executed after the target is rolled back in reverse execution order, and
// candidates without a counterpart in the catalog are skipped silently.
//
// After each rollback script succeeds, the matching forward journal entry is
// removed immediately, so a mid-sequence failure leaves the journal
// consistent with exactly what was undone.
func (e *Engine) PerformDowngrade(ctx context.Context, target, suffix string, cascading bool) (res Result) {
	runID := uuid.NewString()
	ctx = ContextWithRunID(ctx, runID)
	log := e.logger(ctx).With("operation", "downgrade", "run_id", runID, "target", target)
	defer e.recoverToResult(&res, runID, log)

	log.Info("downgrade starting", "cascading", cascading, "suffix", suffix)

	guard, err := e.cfg.Connections.OperationStarting(ctx, log)
	if err != nil {
		log.Error("failed to acquire operation guard", "error", err)
		return failed(runID, nil, "", fmt.Errorf("%w: %v", ErrConnection, err))
	}
	defer guard.Release()

	// Chronological snapshot: cascading resolution depends on the original
	// execution order, not on name order.
	executed, err := e.cfg.Journal.GetExecutedScripts(ctx)
	if err != nil {
		log.Error("failed to read journal", "error", err)
		return failed(runID, nil, "", fmt.Errorf("failed to read journal: %w", err))
	}

	if !containsName(executed, target, e.cfg.Comparer) {
		log.Error("rollback target has never been executed", "script", target)
		return failed(runID, nil, "",
			NewScriptError(target, "resolve rollback", fmt.Errorf("%w: %s is not in the journal", ErrNotExecuted, target)))
	}

	discovered, err := e.discover(ctx)
	if err != nil {
		log.Error("script discovery failed", "error", err)
		return failed(runID, nil, "", err)
	}
	catalog := sequence(discovered, e.cfg.Comparer)

	steps := e.resolveRollbackSteps(log, catalog, executed, target, suffix, cascading)
	if len(steps) == 0 {
		log.Info("nothing to roll back")
		return succeeded(runID, nil)
	}

	planned := make([]plannedScript, len(steps))
	for i, step := range steps {
		step := step
		// Rollback steps do not carry the executed notification; it is a
		// forward-progress signal.
		planned[i] = plannedScript{
			script: step.script,
			journal: func(ctx context.Context) error {
				return e.cfg.Journal.RemoveExecutedScript(ctx, step.forwardName)
			},
		}
	}

	e.runScripts(ctx, log, runID, planned, &res)
	if res.Successful {
		log.Info("downgrade succeeded", "scripts", len(res.Scripts))
	} else {
		log.Error("downgrade failed", "script", res.FailedScript, "error", res.Err)
	}
	return res
}

// resolveRollbackSteps turns a journaled target into the ordered rollback
// scripts to run. Only catalog scripts matching the derived naming
// convention are ever eligible.
func (e *Engine) resolveRollbackSteps(log *slog.Logger, catalog []Script, executed []string, target, suffix string, cascading bool) []rollbackStep {
	if !cascading {
		derived := rollbackNameFor(target, suffix)
		script, ok := findScript(catalog, derived, e.cfg.Comparer)
		if !ok {
			// Tolerated in single mode: warn and roll back nothing.
			log.Warn("rollback script not found in catalog", "script", derived)
			return nil
		}
		return []rollbackStep{{forwardName: target, script: script}}
	}

	// Every script executed after the target is a candidate, target
	// excluded. Candidates without a catalog counterpart are skipped
	// without a warning.
	targetIdx := -1
	for i, name := range executed {
		if e.cfg.Comparer(name, target) == 0 {
			targetIdx = i
			break
		}
	}

	var steps []rollbackStep
	for _, name := range executed[targetIdx+1:] {
		derived := rollbackNameFor(name, suffix)
		script, ok := findScript(catalog, derived, e.cfg.Comparer)
		if !ok {
			continue
		}
		steps = append(steps, rollbackStep{forwardName: name, script: script})
	}

	// Most recently executed rolls back first.
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}
