package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"printflog/internal/instrument"
	"printflog/internal/ir"
)

// NewInstrumentCommand creates the instrument command
func NewInstrumentCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	var noVerify bool

	cmd := &cobra.Command{
		Use:   "instrument <file.pir>",
		Short: "Rewrite a program so its printf calls are logged",
		Long: `Instrument a textual IR program: main opens log.txt on entry and closes
it before returning, and every printf call is followed by a guarded fprintf
writing the same output to the log.

The rewritten program is printed to stdout unless --output is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstrument(rootOpts, cmd, args[0], output, !noVerify)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the instrumented IR to a file")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip IR verification after rewriting")

	return cmd
}

func runInstrument(opts *RootOptions, cmd *cobra.Command, path, output string, verify bool) error {
	start := time.Now()
	stderr := cmd.ErrOrStderr()

	program, source, err := ir.LoadProgram(path)
	if err != nil {
		return fail(stderr, path, source, start, err)
	}

	report, err := instrumentProgram(program, stderr, verify && opts.Config.Verify)
	if err != nil {
		return fail(stderr, path, source, start, err)
	}

	if output == "" {
		output = opts.Config.Output
	}
	text := ir.Print(program)
	if output == "" {
		fmt.Fprint(cmd.OutOrStdout(), text)
	} else if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
		return fail(stderr, path, source, start, errors.Wrap(err, "writing output"))
	}

	switch {
	case report.Skipped:
		success(stderr, start, "Left %s unchanged", path)
	case report.AlreadyInstrumented:
		success(stderr, start, "%s is already instrumented", path)
	default:
		success(stderr, start, "Instrumented %s: %d call sites, %d returns", path, report.Rewrites(), report.ReturnsInstrumented)
	}
	return nil
}

// instrumentProgram runs the logging pass, followed by the verifier when asked
func instrumentProgram(program *ir.Program, diagnostics io.Writer, verify bool) (*instrument.Report, error) {
	pass := instrument.NewPass()
	pass.Diagnostics = diagnostics

	pipeline := ir.NewPipeline(pass)
	if verify {
		pipeline.AddPass(&ir.VerifyPass{})
	}
	if _, err := pipeline.Run(program); err != nil {
		if instrument.IsInvariant(err) {
			log.Criticalf("engine defect: %s", err)
		}
		return nil, err
	}
	return pass.Report(), nil
}
