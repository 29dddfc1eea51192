package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zleao/coralph/internal/journal"
	"github.com/zleao/coralph/internal/registry"
	"github.com/zleao/coralph/internal/state"
	"github.com/zleao/coralph/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Show backlog counts, recent progress, and run history",
	RunE:         runStatus,
	SilenceUsage: true,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg := registry.New(cfg.Paths.Issues, cfg.Paths.Tasks)
	if err := reg.Load(); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	open := len(reg.OpenIssues())
	tasks := reg.Tasks()
	pending := len(models.FilterStatus(tasks, models.TaskStatusPending))
	inProgress := len(models.FilterStatus(tasks, models.TaskStatusInProgress))
	done := len(models.FilterStatus(tasks, models.TaskStatusDone))

	fmt.Printf("Backlog\n")
	fmt.Printf("  open issues: %d\n", open)
	fmt.Printf("  tasks:       %d pending, %d in progress, %d done\n", pending, inProgress, done)

	store := journal.NewStore(cfg.Paths.Progress)
	entries, err := store.Tail(3)
	if err != nil {
		return fmt.Errorf("load progress journal: %w", err)
	}
	fmt.Printf("\nRecent progress (%s)\n", cfg.Paths.Progress)
	if len(entries) == 0 {
		fmt.Println("  (no iterations recorded)")
	}
	for _, e := range entries {
		marker := " "
		if e.Completed {
			marker = "*"
		}
		fmt.Printf("  %s iteration %d [%s] %s\n", marker, e.Iteration, e.Status, firstLine(e.Summary))
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	db, err := state.OpenProject(workDir)
	if err != nil {
		// History is optional; the backlog view above still stands.
		fmt.Printf("\nRun history unavailable: %v\n", err)
		return nil
	}
	defer db.Close()

	runs, err := db.ListRuns(5)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	fmt.Printf("\nRecent runs\n")
	if len(runs) == 0 {
		fmt.Println("  (none)")
	}
	for _, r := range runs {
		outcome := "incomplete"
		if r.Completed {
			outcome = "completed"
		}
		when := r.StartedAt.Local().Format("2006-01-02 15:04")
		fmt.Printf("  %s  %-10s %d iteration(s), %d in / %d out tokens\n",
			when, outcome, r.Iterations, r.InputTokens, r.OutputTokens)
	}
	return nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
