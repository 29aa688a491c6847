package grammar

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/fatih/color"
)

var parser = participle.MustBuild[Program](
	participle.Lexer(IRLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.Map(stripSigil, "Global", "Local"),
	participle.UseLookahead(3),
)

// stripSigil drops the leading @ or % of symbol tokens
func stripSigil(token lexer.Token) (lexer.Token, error) {
	token.Value = token.Value[1:]
	return token, nil
}

// ParseFile reads and parses a textual IR file. Syntax errors are reported
// to stderr with a caret under the offending token.
func ParseFile(path string) (*Program, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	program, err := ParseString(path, string(source))
	if err != nil {
		ReportParseError(os.Stderr, string(source), err)
		return nil, err
	}
	return program, nil
}

// ParseString parses textual IR held in memory
func ParseString(filename, source string) (*Program, error) {
	return parser.ParseString(filename, source)
}

// ReportParseError prints a friendly caret-style parse error message.
func ReportParseError(w io.Writer, src string, err error) {
	red := color.New(color.FgRed)
	hiRed := color.New(color.FgHiRed)

	pe, ok := err.(participle.Error)
	if !ok {
		red.Fprintf(w, "Unexpected error: %s\n", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		red.Fprintf(w, "Syntax error at unknown location: %s\n", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", max(0, pos.Column-1)) + "^"

	red.Fprintf(w, "Syntax error in %s at line %d, column %d:\n", pos.Filename, pos.Line, pos.Column)
	fmt.Fprintln(w, line)
	hiRed.Fprintln(w, caret)
	fmt.Fprintf(w, "→ %s\n", pe.Message())
}
