// Command dbup applies versioned schema change scripts to a target database,
// rolls them back, and reconciles the deployment journal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/moyolawal/dbup-RollBack/internal/config"
	"github.com/moyolawal/dbup-RollBack/internal/engine"
	"github.com/moyolawal/dbup-RollBack/internal/persistence/postgres"
	"github.com/moyolawal/dbup-RollBack/internal/persistence/sqlite"
	"github.com/moyolawal/dbup-RollBack/internal/scripts"
)

const usage = `usage: dbup <command> [arguments]

commands:
  upgrade                      apply every pending script
  downgrade [flags] <script>   roll back a previously applied script
      -cascade                 also roll back everything applied after it
      -suffix string           rollback naming suffix (default from config)
  status                       show discovered, executed, and pending scripts
  mark-executed [script]       journal the pending selection without running
                               it, optionally stopping after the named script
`

// backend is the collaborator trio every persistence driver provides.
type backend interface {
	engine.Journal
	engine.ScriptExecutor
	engine.ConnectionManager
	Close() error
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, logger, os.Args[1:]))
}

func run(ctx context.Context, logger *slog.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	command, args := args[0], args[1:]

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return 1
	}

	store, err := openBackend(cfg)
	if err != nil {
		logger.Error("failed to open target database", "driver", cfg.Driver, "error", err)
		return 1
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close target database", "error", cerr)
		}
	}()

	eng, err := engine.New(engine.Config{
		Providers: []engine.ScriptProvider{
			scripts.NewDirProvider(cfg.ScriptsDir),
		},
		Journal:     store,
		Executor:    store,
		Connections: store,
		// Keep rollback counterparts in the catalog but out of forward runs.
		Filter:    engine.NewSuffixFilter(cfg.RollbackSuffix, nil),
		Variables: cfg.Variables,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to construct engine", "error", err)
		return 1
	}

	switch command {
	case "upgrade":
		return reportResult(logger, eng.PerformUpgrade(ctx))
	case "downgrade":
		return runDowngrade(ctx, logger, eng, cfg, args)
	case "status":
		return runStatus(ctx, logger, eng)
	case "mark-executed":
		if len(args) > 0 {
			return reportResult(logger, eng.MarkAsExecutedThrough(ctx, args[0]))
		}
		return reportResult(logger, eng.MarkAsExecuted(ctx))
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}

func runDowngrade(ctx context.Context, logger *slog.Logger, eng *engine.Engine, cfg config.Config, args []string) int {
	flags := flag.NewFlagSet("downgrade", flag.ContinueOnError)
	cascade := flags.Bool("cascade", false, "roll back everything applied after the target as well")
	suffix := flags.String("suffix", cfg.RollbackSuffix, "rollback naming suffix")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "downgrade requires exactly one script name")
		return 2
	}
	return reportResult(logger, eng.PerformDowngrade(ctx, flags.Arg(0), *suffix, *cascade))
}

func runStatus(ctx context.Context, logger *slog.Logger, eng *engine.Engine) int {
	if ok, message := eng.TryConnect(ctx); !ok {
		logger.Error("target unreachable", "message", message)
		return 1
	}

	discovered, err := eng.GetDiscoveredScripts(ctx)
	if err != nil {
		logger.Error("failed to discover scripts", "error", err)
		return 1
	}
	executed, err := eng.GetExecutedScripts(ctx)
	if err != nil {
		logger.Error("failed to read journal", "error", err)
		return 1
	}
	pending, err := eng.GetScriptsToExecute(ctx)
	if err != nil {
		logger.Error("failed to compute pending scripts", "error", err)
		return 1
	}
	orphaned, err := eng.GetExecutedButNotDiscovered(ctx)
	if err != nil {
		logger.Error("failed to compute orphaned journal entries", "error", err)
		return 1
	}

	logger.Info("status",
		"discovered", len(discovered),
		"executed", len(executed),
		"pending", scriptNames(pending),
		"orphaned", orphaned,
	)
	return 0
}

func reportResult(logger *slog.Logger, result engine.Result) int {
	if !result.Successful {
		logger.Error("operation failed",
			"run_id", result.RunID,
			"completed", result.ScriptNames(),
			"failed_script", result.FailedScript,
			"error", result.Err,
		)
		return 1
	}
	logger.Info("operation succeeded", "run_id", result.RunID, "scripts", result.ScriptNames())
	return 0
}

func scriptNames(list []engine.Script) []string {
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Name
	}
	return names
}

func openBackend(cfg config.Config) (backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(postgres.DefaultConfig(cfg.PostgresURL))
	default:
		return sqlite.Open(sqlite.DefaultConfig(cfg.SQLiteDSN))
	}
}
