package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"printflog/internal/instrument"
	"printflog/internal/interp"
	"printflog/internal/ir"
)

// RunOptions holds the flags of the run command
type RunOptions struct {
	Plain    bool
	InMemory bool
	Dir      string
	MaxSteps int
	Raise    []string
	Args     []int64
}

// NewRunCommand creates the run command
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <file.pir>",
		Short: "Instrument a program and interpret it",
		Long: `Instrument a textual IR program, execute its main with the reference
interpreter and show the program output followed by the contents of log.txt.

Files are opened relative to --dir, or kept in memory with --in-memory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(rootOpts, opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Plain, "plain", false, "run the program without instrumenting it")
	cmd.Flags().BoolVar(&opts.InMemory, "in-memory", false, "keep files opened by the program in memory")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory the program opens files in")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "abort after this many executed instructions")
	cmd.Flags().StringSliceVar(&opts.Raise, "raise", nil, "external routines that raise instead of running")
	cmd.Flags().Int64SliceVar(&opts.Args, "arg", nil, "integer arguments passed to main")

	return cmd
}

func runRun(rootOpts *RootOptions, opts *RunOptions, cmd *cobra.Command, path string) error {
	start := time.Now()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	program, source, err := ir.LoadProgram(path)
	if err != nil {
		return fail(stderr, path, source, start, err)
	}
	if !opts.Plain {
		if _, err := instrumentProgram(program, stderr, rootOpts.Config.Verify); err != nil {
			return fail(stderr, path, source, start, err)
		}
	}

	dir := opts.Dir
	if dir == "" {
		dir = rootOpts.Config.Run.Dir
	}
	maxSteps := opts.MaxSteps
	if maxSteps == 0 {
		maxSteps = rootOpts.Config.Run.MaxSteps
	}

	var fs interp.FileSystem = interp.OSFileSystem{Dir: dir}
	memory := interp.NewMemoryFileSystem()
	if opts.InMemory {
		fs = memory
	}

	raise := make(map[string]bool, len(opts.Raise))
	for _, name := range opts.Raise {
		raise[name] = true
	}

	args := make([]interp.Value, len(opts.Args))
	for i, a := range opts.Args {
		args[i] = a
	}

	machine := interp.New(program, interp.Options{
		Stdout:   stdout,
		FS:       fs,
		MaxSteps: maxSteps,
		Raise:    raise,
	})
	status, err := machine.Run(args...)
	if err != nil {
		return fail(stderr, path, source, start, errors.Wrap(err, "execution failed"))
	}

	var logText string
	var logFound bool
	if opts.InMemory {
		logText, logFound = memory.Contents(instrument.LogPath), memory.Exists(instrument.LogPath)
	} else {
		data, err := os.ReadFile(filepath.Join(dir, instrument.LogPath))
		logText, logFound = string(data), err == nil
	}
	if logFound {
		fmt.Fprintln(stdout, color.New(color.Faint).Sprintf("--- %s ---", instrument.LogPath))
		fmt.Fprint(stdout, logText)
	}

	success(stderr, start, "%s exited with status %d", path, status)
	if status != 0 {
		return &ExitError{Code: int(status & 0xff), Message: fmt.Sprintf("exit status %d", status)}
	}
	return nil
}
