package engine_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/moyolawal/dbup-RollBack/internal/engine"
	"github.com/moyolawal/dbup-RollBack/internal/logging"
	"github.com/moyolawal/dbup-RollBack/internal/testfixtures"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type world struct {
	journal     *testfixtures.MemoryJournal
	executor    *testfixtures.StubExecutor
	connections *testfixtures.StubConnections
}

// newEngine wires an engine over fresh doubles, applying optional config
// tweaks before construction.
func newEngine(t *testing.T, provider engine.ScriptProvider, tweak func(*engine.Config)) (*engine.Engine, *world) {
	t.Helper()

	w := &world{
		journal:     testfixtures.NewMemoryJournal(),
		executor:    &testfixtures.StubExecutor{},
		connections: &testfixtures.StubConnections{},
	}
	cfg := engine.Config{
		Providers:   []engine.ScriptProvider{provider},
		Journal:     w.journal,
		Executor:    w.executor,
		Connections: w.connections,
		Logger:      quietLogger(),
	}
	if tweak != nil {
		tweak(&cfg)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	return eng, w
}

func assertGuardBalanced(t *testing.T, w *world) {
	t.Helper()
	if w.connections.Acquired == 0 {
		t.Fatal("expected the operation guard to be acquired")
	}
	if w.connections.Acquired != w.connections.Released {
		t.Fatalf("guard leak: acquired %d, released %d", w.connections.Acquired, w.connections.Released)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := engine.New(engine.Config{})
	if !errors.Is(err, engine.ErrMissingCollaborator) {
		t.Fatalf("expected ErrMissingCollaborator, got %v", err)
	}
}

func TestPerformUpgrade_EmptySelectionShortCircuits(t *testing.T) {
	t.Parallel()

	provider := testfixtures.Provider(testfixtures.SQL("V1.sql"))
	eng, w := newEngine(t, provider, nil)
	w.journal.Names = []string{"V1.sql"}

	result := eng.PerformUpgrade(context.Background())

	if !result.Successful {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if len(result.Scripts) != 0 {
		t.Fatalf("expected empty executed list, got %v", result.ScriptNames())
	}
	if w.executor.VerifyCalls != 0 {
		t.Fatal("schema verification must not run for an empty selection")
	}
	assertGuardBalanced(t, w)
}

func TestPerformUpgrade_ExecutesSelectionInSequencedOrder(t *testing.T) {
	t.Parallel()

	notified := []string{}
	provider := testfixtures.Provider(
		testfixtures.Grouped("0001_post.sql", 1),
		testfixtures.SQL("V2.sql"),
		testfixtures.SQL("V1.sql"),
	)
	eng, w := newEngine(t, provider, func(cfg *engine.Config) {
		cfg.OnScriptExecuted = func(s engine.Script) { notified = append(notified, s.Name) }
	})

	result := eng.PerformUpgrade(context.Background())

	if !result.Successful {
		t.Fatalf("expected success, got %v", result.Err)
	}
	want := []string{"V1.sql", "V2.sql", "0001_post.sql"}
	for i, name := range want {
		if w.executor.Executed[i] != name {
			t.Fatalf("execution order %v, want %v", w.executor.Executed, want)
		}
		if w.journal.Names[i] != name {
			t.Fatalf("journal order %v, want %v", w.journal.Names, want)
		}
		if notified[i] != name {
			t.Fatalf("notification order %v, want %v", notified, want)
		}
	}
	if w.executor.VerifyCalls != 1 {
		t.Fatalf("expected exactly one schema verification, got %d", w.executor.VerifyCalls)
	}
	assertGuardBalanced(t, w)
}

func TestPerformUpgrade_FailureStopsRunAndKeepsPartialProgress(t *testing.T) {
	t.Parallel()

	provider := testfixtures.Provider(
		testfixtures.SQL("V1.sql"),
		testfixtures.SQL("V2.sql"),
		testfixtures.SQL("V3.sql"),
	)
	eng, w := newEngine(t, provider, nil)
	w.executor.FailOn = map[string]error{"V2.sql": errors.New("syntax error near WHERE")}

	result := eng.PerformUpgrade(context.Background())

	if result.Successful {
		t.Fatal("expected failure")
	}
	if got := result.ScriptNames(); len(got) != 1 || got[0] != "V1.sql" {
		t.Fatalf("expected exactly the first script to be retained, got %v", got)
	}
	if result.FailedScript != "V2.sql" {
		t.Fatalf("expected failure at V2.sql, got %q", result.FailedScript)
	}
	if !errors.Is(result.Err, engine.ErrScriptFailed) {
		t.Fatalf("expected ErrScriptFailed, got %v", result.Err)
	}
	if len(w.journal.Names) != 1 || w.journal.Names[0] != "V1.sql" {
		t.Fatalf("journal should hold only V1.sql, got %v", w.journal.Names)
	}
	assertGuardBalanced(t, w)
}

func TestPerformUpgrade_SchemaVerificationFailureAbortsWithZeroProgress(t *testing.T) {
	t.Parallel()

	eng, w := newEngine(t, testfixtures.Provider(testfixtures.SQL("V1.sql")), nil)
	w.executor.VerifyErr = errors.New("journal table is a view")

	result := eng.PerformUpgrade(context.Background())

	if result.Successful {
		t.Fatal("expected failure")
	}
	if !errors.Is(result.Err, engine.ErrSchemaVerification) {
		t.Fatalf("expected ErrSchemaVerification, got %v", result.Err)
	}
	if len(result.Scripts) != 0 || len(w.executor.Executed) != 0 {
		t.Fatal("no script may run when schema verification fails")
	}
	assertGuardBalanced(t, w)
}

func TestPerformUpgrade_GuardAcquisitionFailure(t *testing.T) {
	t.Parallel()

	eng, w := newEngine(t, testfixtures.Provider(testfixtures.SQL("V1.sql")), nil)
	w.connections.GuardErr = errors.New("database locked by another deployment")

	result := eng.PerformUpgrade(context.Background())

	if result.Successful {
		t.Fatal("expected failure")
	}
	if !errors.Is(result.Err, engine.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", result.Err)
	}
	if len(w.executor.Executed) != 0 {
		t.Fatal("no script may run without the operation guard")
	}
}

func TestPerformUpgrade_JournalStoreFailureStopsRun(t *testing.T) {
	t.Parallel()

	provider := testfixtures.Provider(testfixtures.SQL("V1.sql"), testfixtures.SQL("V2.sql"))
	eng, w := newEngine(t, provider, nil)
	w.journal.StoreErr = map[string]error{"V1.sql": errors.New("disk full")}

	result := eng.PerformUpgrade(context.Background())

	if result.Successful {
		t.Fatal("expected failure")
	}
	if result.FailedScript != "V1.sql" {
		t.Fatalf("expected failure at V1.sql, got %q", result.FailedScript)
	}
	if len(result.Scripts) != 0 {
		t.Fatalf("a script whose journaling failed must not count as processed, got %v", result.ScriptNames())
	}
	// V2 must never start once V1's bookkeeping failed.
	if len(w.executor.Executed) != 1 {
		t.Fatalf("expected execution to stop after V1.sql, got %v", w.executor.Executed)
	}
	assertGuardBalanced(t, w)
}

func TestPerformUpgrade_CollaboratorPanicBecomesFailedResult(t *testing.T) {
	t.Parallel()

	eng, w := newEngine(t, testfixtures.Provider(testfixtures.SQL("V1.sql")), nil)
	w.executor.PanicOn = "V1.sql"

	result := eng.PerformUpgrade(context.Background())

	if result.Successful {
		t.Fatal("expected failure")
	}
	if result.Err == nil {
		t.Fatal("expected a structured cause")
	}
	assertGuardBalanced(t, w)
}

func TestPerformUpgrade_PanicMidRunKeepsPartialProgressAndInFlightScript(t *testing.T) {
	t.Parallel()

	provider := testfixtures.Provider(testfixtures.SQL("V1.sql"), testfixtures.SQL("V2.sql"))
	eng, w := newEngine(t, provider, nil)
	w.executor.PanicOn = "V2.sql"

	result := eng.PerformUpgrade(context.Background())

	if result.Successful {
		t.Fatal("expected failure")
	}
	// The Result must agree with the journal: V1 was durably recorded
	// before the fault.
	if got := result.ScriptNames(); len(got) != 1 || got[0] != "V1.sql" {
		t.Fatalf("expected [V1.sql] retained, got %v", got)
	}
	if result.FailedScript != "V2.sql" {
		t.Fatalf("expected the in-flight script V2.sql, got %q", result.FailedScript)
	}
	if len(w.journal.Names) != 1 || w.journal.Names[0] != "V1.sql" {
		t.Fatalf("journal should hold only V1.sql, got %v", w.journal.Names)
	}
	assertGuardBalanced(t, w)
}

func TestMarkAsExecuted_JournalPanicKeepsPartialProgress(t *testing.T) {
	t.Parallel()

	provider := testfixtures.Provider(testfixtures.SQL("V1.sql"), testfixtures.SQL("V2.sql"))
	eng, w := newEngine(t, provider, nil)
	w.journal.PanicOn = "V2.sql"

	result := eng.MarkAsExecuted(context.Background())

	if result.Successful {
		t.Fatal("expected failure")
	}
	if got := result.ScriptNames(); len(got) != 1 || got[0] != "V1.sql" {
		t.Fatalf("expected [V1.sql] retained, got %v", got)
	}
	if result.FailedScript != "V2.sql" {
		t.Fatalf("expected the in-flight script V2.sql, got %q", result.FailedScript)
	}
	assertGuardBalanced(t, w)
}

func TestPerformUpgrade_RunIDReachesJournal(t *testing.T) {
	t.Parallel()

	eng, w := newEngine(t, testfixtures.Provider(testfixtures.SQL("V1.sql")), nil)

	result := eng.PerformUpgrade(context.Background())

	if result.RunID == "" {
		t.Fatal("expected a run ID")
	}
	if w.journal.RunIDs["V1.sql"] != result.RunID {
		t.Fatalf("journal saw run ID %q, result carries %q", w.journal.RunIDs["V1.sql"], result.RunID)
	}
}

func TestPerformUpgrade_PassesConfiguredVariables(t *testing.T) {
	t.Parallel()

	eng, w := newEngine(t, testfixtures.Provider(testfixtures.SQL("V1.sql")), func(cfg *engine.Config) {
		cfg.Variables = map[string]string{"schema": "reporting"}
	})

	if result := eng.PerformUpgrade(context.Background()); !result.Successful {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if w.executor.Variables["schema"] != "reporting" {
		t.Fatalf("executor saw variables %v", w.executor.Variables)
	}
}

func TestIsUpgradeRequired(t *testing.T) {
	t.Parallel()

	provider := testfixtures.Provider(testfixtures.SQL("V1.sql"), testfixtures.SQL("V2.sql"))
	eng, w := newEngine(t, provider, nil)

	required, err := eng.IsUpgradeRequired(context.Background())
	if err != nil || !required {
		t.Fatalf("expected upgrade required, got %v / %v", required, err)
	}

	w.journal.Names = []string{"V1.sql", "V2.sql"}
	required, err = eng.IsUpgradeRequired(context.Background())
	if err != nil || required {
		t.Fatalf("expected no upgrade required, got %v / %v", required, err)
	}
}

func TestGetExecutedButNotDiscovered(t *testing.T) {
	t.Parallel()

	eng, w := newEngine(t, testfixtures.Provider(testfixtures.SQL("V1.sql")), nil)
	w.journal.Names = []string{"V0.sql", "V1.sql", "Vx.sql"}

	orphaned, err := eng.GetExecutedButNotDiscovered(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orphaned) != 2 || orphaned[0] != "V0.sql" || orphaned[1] != "Vx.sql" {
		t.Fatalf("expected [V0.sql Vx.sql], got %v", orphaned)
	}
}

func TestTryConnect(t *testing.T) {
	t.Parallel()

	eng, w := newEngine(t, testfixtures.Provider(), nil)

	if ok, _ := eng.TryConnect(context.Background()); !ok {
		t.Fatal("expected connection to succeed")
	}

	w.connections.Unreachable = true
	ok, message := eng.TryConnect(context.Background())
	if ok {
		t.Fatal("expected connection to fail")
	}
	if message == "" {
		t.Fatal("expected a descriptive message")
	}
}

func TestPerformUpgrade_ProviderFailureProducesFailedResult(t *testing.T) {
	t.Parallel()

	eng, w := newEngine(t, testfixtures.FailingProvider("scripts directory vanished"), nil)

	result := eng.PerformUpgrade(context.Background())

	if result.Successful {
		t.Fatal("expected failure")
	}
	if len(w.executor.Executed) != 0 {
		t.Fatal("no script may run when discovery fails")
	}
	assertGuardBalanced(t, w)
}

func TestContextLoggerTakesPrecedence(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctxLogger := slog.New(slog.NewTextHandler(&buf, nil))

	eng, _ := newEngine(t, testfixtures.Provider(), nil)
	ctx := logging.ContextWithLogger(context.Background(), ctxLogger)

	if result := eng.PerformUpgrade(ctx); !result.Successful {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected the context logger to receive operation logs")
	}
}
