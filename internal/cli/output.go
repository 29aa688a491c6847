package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"printflog/internal/diag"
	"printflog/internal/ir"
)

// ExitError ends the process with Code once its cause has been shown
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func success(w io.Writer, start time.Time, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	color.New(color.FgGreen).Fprintf(w, "%s in %s\n", message, formatDuration(time.Since(start)))
}

// fail shows err with the source it refers to and returns the exit error
func fail(w io.Writer, path, source string, start time.Time, err error) error {
	fmt.Fprint(w, formatError(path, source, err))
	color.New(color.FgRed).Fprintf(w, "Failed after %s\n", formatDuration(time.Since(start)))
	return &ExitError{Code: 1, Message: err.Error()}
}

// formatError renders diagnostics against the source, other errors as one line
func formatError(path, source string, err error) string {
	var list diag.List
	if errors.As(err, &list) {
		return diag.NewReporter(path, source).FormatAll(list)
	}
	var verify ir.VerifyErrors
	if errors.As(err, &verify) {
		return diag.NewReporter(path, source).FormatAll(verificationDiagnostics(verify))
	}
	return fmt.Sprintf("%s: %s\n", color.RedString("error"), err)
}

func verificationDiagnostics(errs ir.VerifyErrors) diag.List {
	list := make(diag.List, len(errs))
	for i, e := range errs {
		list[i] = diag.Verification(e.Error())
	}
	return list
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
