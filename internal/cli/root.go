// Package cli implements the prepdeck command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/conorfennell/prepdeck/internal/domain"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitValidation = 2
	ExitNotFound   = 3
	ExitDuplicate  = 4
	ExitStorage    = 5
)

// Env is the process environment a command runs in.
type Env struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
	Now func() time.Time // defaults to the wall clock in UTC
}

// DefaultEnv uses the process's standard streams.
func DefaultEnv() Env {
	return Env{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Run executes the command line args and returns the process exit code.
func Run(ctx context.Context, args []string, env Env) int {
	a := newApp(env)
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(env.In)
	root.SetOut(env.Out)
	root.SetErr(env.Err)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(env.Err, "prepdeck: %v\n", err)
		return ExitCode(err)
	}
	return ExitOK
}

// ExitCode maps an error to the exit code of its class.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrStorage):
		return ExitStorage
	case errors.Is(err, domain.ErrValidation):
		return ExitValidation
	case errors.Is(err, domain.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, domain.ErrDuplicateID):
		return ExitDuplicate
	}
	return ExitError
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "prepdeck",
		Short: "Interview prep entries with spaced review",
		Long: "prepdeck stores interview questions with model answers and schedules them for\n" +
			"review with an SM-2 style algorithm.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Path to config file (default $XDG_CONFIG_HOME/prepdeck/config.yaml)")
	pf.String("db", "", "Path to SQLite database file (overrides PREPDECK_DB_PATH)")
	pf.String("lock", "", "Path to the write lock file (default <db>.lock)")
	pf.Duration("lock-timeout", 10*time.Second, "How long to wait for the write lock")
	pf.String("log-level", "warn", "Log level: debug, info, warn or error")
	pf.String("log-format", "console", "Log format: console or json")
	pf.String("format", "", "Data format: text, csv, yaml or md (default text on screen, else from the file name)")

	root.AddCommand(
		newAddCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newUpdateCmd(a),
		newRemoveCmd(a),
		newReviewCmd(a),
		newDueCmd(a),
		newDrillCmd(a),
		newStatsCmd(a),
		newImportCmd(a),
		newExportCmd(a),
	)
	return root
}
