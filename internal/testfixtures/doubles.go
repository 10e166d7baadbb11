// Package testfixtures provides reusable in-memory doubles for the engine's
// collaborator interfaces, shared by tests across packages.
package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/moyolawal/dbup-RollBack/internal/engine"
)

// MemoryJournal is an in-memory engine.Journal that preserves chronological
// order and records every mutation for assertions.
type MemoryJournal struct {
	Names   []string          // journaled names, chronological
	RunIDs  map[string]string // name -> run ID observed at store time
	Removed []string          // every retraction, in order

	GetErr    error
	StoreErr  map[string]error // name -> error to return from store
	RemoveErr map[string]error // name -> error to return from remove
	PanicOn   string           // name that makes store panic
}

// NewMemoryJournal returns a journal pre-populated with the given names, in
// chronological order.
func NewMemoryJournal(names ...string) *MemoryJournal {
	j := &MemoryJournal{RunIDs: make(map[string]string)}
	j.Names = append(j.Names, names...)
	return j
}

// GetExecutedScripts implements engine.Journal.
func (j *MemoryJournal) GetExecutedScripts(context.Context) ([]string, error) {
	if j.GetErr != nil {
		return nil, j.GetErr
	}
	out := make([]string, len(j.Names))
	copy(out, j.Names)
	return out, nil
}

// StoreExecutedScript implements engine.Journal.
func (j *MemoryJournal) StoreExecutedScript(ctx context.Context, script engine.Script) error {
	if j.PanicOn != "" && script.Name == j.PanicOn {
		panic(fmt.Sprintf("journal exploded on %s", script.Name))
	}
	if err := j.StoreErr[script.Name]; err != nil {
		return err
	}
	j.Names = append(j.Names, script.Name)
	if j.RunIDs == nil {
		j.RunIDs = make(map[string]string)
	}
	j.RunIDs[script.Name] = engine.RunIDFromContext(ctx)
	return nil
}

// RemoveExecutedScript implements engine.Journal.
func (j *MemoryJournal) RemoveExecutedScript(_ context.Context, name string) error {
	if err := j.RemoveErr[name]; err != nil {
		return err
	}
	for i, existing := range j.Names {
		if existing == name {
			j.Names = append(j.Names[:i], j.Names[i+1:]...)
			break
		}
	}
	j.Removed = append(j.Removed, name)
	return nil
}

// StubExecutor is an engine.ScriptExecutor that records calls and fails or
// panics on configured script names.
type StubExecutor struct {
	VerifyErr   error
	VerifyCalls int

	FailOn  map[string]error // name -> error to return from Execute
	PanicOn string           // name that triggers a panic

	Executed  []string          // executed names, in order
	Variables map[string]string // variables seen on the last Execute
}

// VerifySchema implements engine.ScriptExecutor.
func (e *StubExecutor) VerifySchema(context.Context) error {
	e.VerifyCalls++
	return e.VerifyErr
}

// Execute implements engine.ScriptExecutor.
func (e *StubExecutor) Execute(_ context.Context, script engine.Script, variables map[string]string) error {
	if e.PanicOn != "" && script.Name == e.PanicOn {
		panic(fmt.Sprintf("executor exploded on %s", script.Name))
	}
	if err := e.FailOn[script.Name]; err != nil {
		return err
	}
	e.Executed = append(e.Executed, script.Name)
	e.Variables = variables
	return nil
}

// StubConnections is an engine.ConnectionManager that counts guard
// acquisitions and releases.
type StubConnections struct {
	Unreachable bool
	GuardErr    error

	Acquired int
	Released int
	Managed  int
}

// TryConnect implements engine.ConnectionManager.
func (c *StubConnections) TryConnect(context.Context, *slog.Logger) (bool, string) {
	if c.Unreachable {
		return false, "target unreachable"
	}
	return true, "connected"
}

// OperationStarting implements engine.ConnectionManager.
func (c *StubConnections) OperationStarting(context.Context, *slog.Logger) (engine.Guard, error) {
	if c.GuardErr != nil {
		return nil, c.GuardErr
	}
	c.Acquired++
	return guardFunc(func() { c.Released++ }), nil
}

// ExecuteWithManagedConnection implements engine.ConnectionManager.
func (c *StubConnections) ExecuteWithManagedConnection(ctx context.Context, fn func(ctx context.Context) error) error {
	c.Managed++
	return fn(ctx)
}

type guardFunc func()

func (g guardFunc) Release() { g() }

// ProviderFunc adapts a function to engine.ScriptProvider.
type ProviderFunc func(ctx context.Context) ([]engine.Script, error)

// GetScripts implements engine.ScriptProvider.
func (f ProviderFunc) GetScripts(ctx context.Context) ([]engine.Script, error) {
	return f(ctx)
}

// Provider returns a provider emitting the given scripts.
func Provider(list ...engine.Script) ProviderFunc {
	return func(context.Context) ([]engine.Script, error) {
		out := make([]engine.Script, len(list))
		copy(out, list)
		return out, nil
	}
}

// FailingProvider returns a provider whose discovery always fails.
func FailingProvider(message string) ProviderFunc {
	return func(context.Context) ([]engine.Script, error) {
		return nil, errors.New(message)
	}
}

// SQL returns a script with the given name and trivial valid contents.
func SQL(name string) engine.Script {
	return engine.Script{Name: name, Contents: "SELECT 1;"}
}

// Grouped returns a script in the given run group.
func Grouped(name string, group int) engine.Script {
	return engine.Script{Name: name, RunGroup: group, Contents: "SELECT 1;"}
}
