// Package engine decides which schema change scripts run against a target
// database, in what order, and how the outcome is recorded.
//
// The engine itself never touches a database. It is wired together from
// collaborator interfaces:
//
//   - ScriptProvider implementations discover candidate scripts
//   - a Journal durably records which script names have been applied
//   - a ScriptExecutor runs script contents against the target
//   - a ConnectionManager owns connectivity and the per-operation guard
//
// Each public operation computes one deterministic selection (aggregate the
// providers, order by run group then name, drop already journaled names),
// runs it strictly sequentially, and returns a Result describing exactly how
// far it got. Downgrades resolve rollback counterparts by naming convention
// and retract the matching forward journal entry after each rollback script
// succeeds, so an interrupted downgrade leaves the journal consistent with
// what was actually undone.
//
// Example usage:
//
//	eng, err := engine.New(engine.Config{
//		Providers:   []engine.ScriptProvider{provider},
//		Journal:     store,
//		Executor:    store,
//		Connections: store,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	result := eng.PerformUpgrade(ctx)
//	if !result.Successful {
//		log.Fatalf("upgrade failed at %s: %v", result.FailedScript, result.Err)
//	}
package engine
