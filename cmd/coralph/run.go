package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zleao/coralph/internal/config"
	"github.com/zleao/coralph/internal/display"
	"github.com/zleao/coralph/internal/issues"
	"github.com/zleao/coralph/internal/journal"
	"github.com/zleao/coralph/internal/prompt"
	"github.com/zleao/coralph/internal/registry"
	"github.com/zleao/coralph/internal/session"
	"github.com/zleao/coralph/internal/state"
	"github.com/zleao/coralph/internal/tools"
	"github.com/zleao/coralph/internal/version"
)

var (
	runMaxIterations int
	runNoFetch       bool
	runRepo          string
	runShowReasoning bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the iteration loop until completion or the iteration cap",
	Long: `Run iterates model sessions against the project backlog.

Before each iteration the open issues, the task backlog, and the tail
of the progress journal are assembled into a fresh prompt, so every
iteration sees the current state rather than a stale conversation.

The loop stops when the model emits the completion marker on its own
line, when the iteration cap is reached, or on interrupt (Ctrl-C or
touching .coralph/signals/stop).

Exit codes: 0 when the marker was seen, 1 when iterations ran out or
the run was interrupted, 2 on any error.`,
	RunE:         runLoop,
	SilenceUsage: true,
}

func init() {
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Iteration cap (0 uses the configured value)")
	runCmd.Flags().BoolVar(&runNoFetch, "no-fetch", false, "Skip refreshing the issue snapshot from GitHub")
	runCmd.Flags().StringVar(&runRepo, "repo", "", "GitHub repository to fetch issues from (owner/name, default: current)")
	runCmd.Flags().BoolVar(&runShowReasoning, "show-reasoning", false, "Stream the model's text to the terminal")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runMaxIterations > 0 {
		cfg.Run.MaxIterations = runMaxIterations
	}
	if cmd.Flags().Changed("show-reasoning") {
		cfg.Display.ShowReasoning = runShowReasoning
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	printer := display.NewPrinter(os.Stdout, cfg.Display.Color, cfg.Display.ShowReasoning)
	printer.Banner(version.Get())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	watcher, err := session.NewStopWatcher(workDir)
	if err != nil {
		printer.Warn("stop-signal watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
		go func() {
			select {
			case <-watcher.Stopped():
				printer.Warn("stop signal received, finishing current iteration")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	if !runNoFetch {
		refreshIssues(ctx, cfg, printer)
	}

	template, err := os.ReadFile(cfg.Paths.Prompt)
	if err != nil {
		return fmt.Errorf("read prompt template %s (run 'coralph init' to scaffold): %w", cfg.Paths.Prompt, err)
	}

	reg := registry.New(cfg.Paths.Issues, cfg.Paths.Tasks)
	store := journal.NewStore(cfg.Paths.Progress)

	client, err := session.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	backend := session.NewAnthropicBackend(client, cfg.Run.MaxTokens, tools.Definitions())
	dispatcher := tools.NewDispatcher(reg, store)
	orch := session.NewOrchestrator(backend, dispatcher, store, printer)

	// Run history is bookkeeping; a broken database must not block the
	// loop.
	var (
		db    *state.DB
		runID string
	)
	if db, err = state.OpenProject(workDir); err != nil {
		printer.Warn("run history unavailable: %v", err)
		db = nil
	} else {
		defer db.Close()
		if runID, err = db.BeginRun(time.Now()); err != nil {
			printer.Warn("could not record run start: %v", err)
			runID = ""
		}
	}

	iterations := 0
	completed := false
	defer func() {
		if db == nil || runID == "" {
			return
		}
		in, out := client.Tracker().Total()
		if ferr := db.FinishRun(runID, time.Now(), iterations, completed, in, out); ferr != nil {
			printer.Warn("could not record run finish: %v", ferr)
		}
	}()

	var loopErr error
	completed, iterations, loopErr = iterate(ctx, orch, reg, store, string(template), cfg.Run.MaxIterations, printer)
	if loopErr != nil {
		return loopErr
	}
	in, out := client.Tracker().Total()
	printer.Success("completed after %d iteration(s), %d input / %d output tokens", iterations, in, out)
	return nil
}

// sessionRunner is the orchestrator surface the loop drives.
type sessionRunner interface {
	RunOnce(ctx context.Context, prompt string) session.Outcome
}

// iterate runs sessions until the completion marker, the iteration
// cap, or an interrupt. Registry and journal state are reloaded before
// every iteration so each prompt reflects the current files.
func iterate(ctx context.Context, runner sessionRunner, reg *registry.Registry, store *journal.Store, template string, maxIterations int, printer *display.Printer) (completed bool, iterations int, err error) {
	for i := 1; i <= maxIterations; i++ {
		if err := reg.Load(); err != nil {
			return false, iterations, fmt.Errorf("load registry: %w", err)
		}
		progress, err := store.Tail(prompt.ProgressWindow)
		if err != nil {
			return false, iterations, fmt.Errorf("load progress journal: %w", err)
		}

		assembled := prompt.Assemble(template, reg.OpenIssues(), reg.Tasks(), progress)

		printer.Info("iteration %d/%d", i, maxIterations)
		outcome := runner.RunOnce(ctx, assembled)
		iterations = outcome.Iteration
		if outcome.Err != nil {
			return false, iterations, fmt.Errorf("iteration %d: %w", i, outcome.Err)
		}
		if outcome.Completed {
			return true, iterations, nil
		}
		if outcome.Cancelled {
			printer.Warn("run interrupted after %d iteration(s)", i)
			return false, iterations, errNotCompleted
		}
	}

	printer.Warn("reached %d iteration(s) without completion", maxIterations)
	return false, iterations, errNotCompleted
}

// refreshIssues snapshots open issues via the gh CLI. The snapshot is
// best effort: without gh, or offline, the loop runs against the
// existing issues file.
func refreshIssues(ctx context.Context, cfg *config.Config, printer *display.Printer) {
	if err := issues.CheckCLI(); err != nil {
		printer.Warn("skipping issue refresh: %v", err)
		return
	}
	if err := issues.Snapshot(ctx, runRepo, cfg.Paths.Issues); err != nil {
		printer.Warn("issue refresh failed, using existing snapshot: %v", err)
		return
	}
	printer.Info("refreshed issue snapshot at %s", cfg.Paths.Issues)
}
