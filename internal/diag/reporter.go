package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Level represents the severity of a diagnostic
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
)

// Position is a location in a source file; Line and Column start at 1
type Position struct {
	Filename string
	Line     int
	Column   int
}

// Diagnostic is a structured error or warning
type Diagnostic struct {
	Level    Level
	Code     string
	Message  string
	Position Position
	Length   int
	Notes    []string
	HelpText string
}

func (d Diagnostic) Error() string {
	if d.Position.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s[%s]: %s", d.Position.Filename, d.Position.Line, d.Position.Column, d.Level, d.Code, d.Message)
	}
	return fmt.Sprintf("%s[%s]: %s", d.Level, d.Code, d.Message)
}

// List collects diagnostics and is itself an error
type List []Diagnostic

func (l List) Error() string {
	msgs := make([]string, len(l))
	for i, d := range l {
		msgs[i] = d.Error()
	}
	return strings.Join(msgs, "\n")
}

// Errors returns the entries that are not warnings
func (l List) Errors() List {
	var errs List
	for _, d := range l {
		if d.Level == Error {
			errs = append(errs, d)
		}
	}
	return errs
}

// Err returns the list as an error when it holds at least one error-level entry
func (l List) Err() error {
	if len(l.Errors()) == 0 {
		return nil
	}
	return l
}

// Reporter formats diagnostics against the source they refer to
type Reporter struct {
	filename string
	lines    []string
}

// NewReporter creates a new reporter for a file
func NewReporter(filename, source string) *Reporter {
	return &Reporter{
		filename: filename,
		lines:    strings.Split(source, "\n"),
	}
}

// Format renders a diagnostic with its source line and a marker under the span
func (r *Reporter) Format(d Diagnostic) string {
	var result strings.Builder

	levelColor := r.getLevelColor(d.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if d.Code != "" {
		result.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor(string(d.Level)), d.Code, d.Message))
	} else {
		result.WriteString(fmt.Sprintf("%s: %s\n", levelColor(string(d.Level)), d.Message))
	}

	width := r.getLineNumberWidth(d.Position.Line)
	indent := strings.Repeat(" ", width)

	if d.Position.Line > 0 {
		result.WriteString(fmt.Sprintf("%s %s %s:%d:%d\n", indent, dim("-->"), r.filename, d.Position.Line, d.Position.Column))
		result.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))
	}

	if d.Position.Line > 0 && d.Position.Line <= len(r.lines) {
		result.WriteString(fmt.Sprintf("%s %s %s\n",
			bold(fmt.Sprintf("%*d", width, d.Position.Line)),
			dim("│"),
			r.lines[d.Position.Line-1]))
		result.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("│"), r.createMarker(d.Position.Column, d.Length, d.Level)))
	}

	for _, note := range d.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		result.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), noteColor("note:"), note))
	}

	if d.HelpText != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		result.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), helpColor("help:"), d.HelpText))
	}

	result.WriteString("\n")
	return result.String()
}

// FormatAll renders every diagnostic of the list
func (r *Reporter) FormatAll(list List) string {
	var result strings.Builder
	for _, d := range list {
		result.WriteString(r.Format(d))
	}
	return result.String()
}

func (r *Reporter) getLevelColor(level Level) func(...interface{}) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func (r *Reporter) createMarker(column, length int, level Level) string {
	if length <= 0 {
		length = 1
	}
	spaces := strings.Repeat(" ", max(0, column-1))
	markerColor := color.New(color.FgRed, color.Bold).SprintFunc()
	if level == Warning {
		markerColor = color.New(color.FgYellow, color.Bold).SprintFunc()
	}
	return spaces + markerColor(strings.Repeat("^", length))
}

func (r *Reporter) getLineNumberWidth(line int) int {
	width := len(fmt.Sprintf("%d", line))
	if width < 3 {
		width = 3 // minimum width for visual alignment
	}
	return width
}
