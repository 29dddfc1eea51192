package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// errNotCompleted is returned when the run finishes without the model
// ever emitting the completion marker. It maps to exit code 1; any
// other failure maps to exit code 2.
var errNotCompleted = errors.New("run finished without completion")

var configPath string

var rootCmd = &cobra.Command{
	Use:   "coralph",
	Short: "Iterate a model session over a project backlog until done",
	Long: `Coralph feeds a project's open issues, task backlog, and its own
progress journal to a model, one iteration at a time, until the model
declares the work complete.

Each iteration streams one session: the model reads the current state
through a small set of read-only tools, reports what it accomplished,
and the report is appended to the progress journal so the next
iteration starts where this one left off.

Start with 'coralph init' to scaffold the project files, then run
'coralph run'.`,
}

// Execute runs the root command and translates the result into the
// process exit code: 0 on completion, 1 when iterations ran out, 2 on
// any error.
func Execute() {
	err := rootCmd.Execute()
	code := exitCode(err)
	if code == 2 {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	if code != 0 {
		os.Exit(code)
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errNotCompleted):
		return 1
	default:
		return 2
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (overrides discovery)")
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
