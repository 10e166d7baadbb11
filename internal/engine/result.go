package engine

// Result reports the outcome of one public operation. It is created once per
// operation, returned, and never mutated afterward.
type Result struct {
	// RunID uniquely identifies the operation for log and journal
	// correlation.
	RunID string

	// Scripts lists every script that was fully processed, in execution
	// order. On failure it retains the scripts that succeeded before the
	// fault.
	Scripts []Script

	// Successful reports whether the operation completed without a fault.
	Successful bool

	// Err carries the structured cause on failure, nil otherwise. No raw
	// collaborator fault escapes a public operation.
	Err error

	// FailedScript names the script that was in flight when the operation
	// aborted, empty on success.
	FailedScript string
}

// ScriptNames returns the names of the processed scripts in order.
func (r Result) ScriptNames() []string {
	if len(r.Scripts) == 0 {
		return nil
	}
	names := make([]string, len(r.Scripts))
	for i, s := range r.Scripts {
		names[i] = s.Name
	}
	return names
}

func succeeded(runID string, scripts []Script) Result {
	return Result{RunID: runID, Scripts: scripts, Successful: true}
}

func failed(runID string, scripts []Script, failedScript string, err error) Result {
	return Result{
		RunID:        runID,
		Scripts:      scripts,
		Successful:   false,
		Err:          err,
		FailedScript: failedScript,
	}
}
