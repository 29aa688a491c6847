package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"printflog/internal/instrument"
	"printflog/internal/ir"
)

// NewCheckCommand creates the check command
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file.pir>",
		Short: "Parse and verify a program without rewriting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0])
		},
	}
}

func runCheck(cmd *cobra.Command, path string) error {
	start := time.Now()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	program, source, err := ir.LoadProgram(path)
	if err != nil {
		return fail(stderr, path, source, start, err)
	}
	if errs := ir.Verify(program); len(errs) > 0 {
		return fail(stderr, path, source, start, errs)
	}

	state := "not instrumented"
	if program.Function(instrument.OpenLogName) != nil {
		state = "instrumented"
	}
	calls := 0
	classifier := instrument.NewClassifier(instrument.TargetRoutine, instrument.NewProcessedSet())
	for _, fn := range program.Functions {
		calls += len(classifier.ScanAll(fn))
	}
	fmt.Fprintf(stdout, "program %q: %d functions, %d %s call sites, %s\n",
		program.Name, len(program.Functions), calls, instrument.TargetRoutine, state)

	success(stderr, start, "Checked %s", path)
	return nil
}
