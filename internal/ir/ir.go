package ir

// This file provides the main entry points for the IR system

import (
	"os"

	"github.com/alecthomas/participle/v2"
	"github.com/pkg/errors"

	"printflog/grammar"
	"printflog/internal/diag"
)

// ParseProgram parses textual IR and lowers it into a Program. Syntax and
// lowering problems are returned as a diag.List.
func ParseProgram(filename, source string) (*Program, error) {
	ast, err := grammar.ParseString(filename, source)
	if err != nil {
		var pe participle.Error
		if errors.As(err, &pe) {
			pos := pe.Position()
			return nil, diag.List{diag.Syntax(pe.Message(), diag.Position{Filename: filename, Line: pos.Line, Column: pos.Column})}
		}
		return nil, err
	}
	return Lower(ast)
}

// LoadProgram reads and parses a textual IR file
func LoadProgram(path string) (*Program, string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to read %s", path)
	}
	program, err := ParseProgram(path, string(source))
	return program, string(source), err
}

// PrintProgram returns a pretty-printed representation of the IR
func PrintProgram(program *Program) string {
	return Print(program)
}
