package diag

import (
	"fmt"
	"sort"
	"strings"
)

// Builder provides a fluent interface for creating diagnostics
type Builder struct {
	d Diagnostic
}

// NewError creates a new error builder
func NewError(code, message string, pos Position) *Builder {
	return &Builder{d: Diagnostic{Level: Error, Code: code, Message: message, Position: pos, Length: 1}}
}

// NewWarning creates a new warning builder
func NewWarning(code, message string, pos Position) *Builder {
	return &Builder{d: Diagnostic{Level: Warning, Code: code, Message: message, Position: pos, Length: 1}}
}

// WithLength sets the length of the marked span
func (b *Builder) WithLength(length int) *Builder {
	b.d.Length = length
	return b
}

// WithNote adds a note
func (b *Builder) WithNote(note string) *Builder {
	b.d.Notes = append(b.d.Notes, note)
	return b
}

// WithHelp sets the help text
func (b *Builder) WithHelp(help string) *Builder {
	b.d.HelpText = help
	return b
}

// Build returns the completed diagnostic
func (b *Builder) Build() Diagnostic {
	return b.d
}

// Syntax wraps a parser message
func Syntax(message string, pos Position) Diagnostic {
	return NewError(ErrorSyntax, message, pos).Build()
}

// UndefinedValue reports a use of an unknown %name, suggesting close names
func UndefinedValue(name string, pos Position, known []string) Diagnostic {
	b := NewError(ErrorUndefinedValue, fmt.Sprintf("undefined value '%%%s'", name), pos).WithLength(len(name) + 1)
	return withSimilar(b, name, known, "%").Build()
}

// UndefinedLabel reports a branch to an unknown block
func UndefinedLabel(label, function string, pos Position, known []string) Diagnostic {
	b := NewError(ErrorUndefinedLabel, fmt.Sprintf("no block labelled '%s' in @%s", label, function), pos).WithLength(len(label) + 1)
	return withSimilar(b, label, known, "%").Build()
}

// UndefinedSymbol reports a reference to an unknown @name
func UndefinedSymbol(name string, pos Position, known []string) Diagnostic {
	b := NewError(ErrorUndefinedSymbol, fmt.Sprintf("undefined symbol '@%s'", name), pos).WithLength(len(name) + 1)
	if similar := findSimilarNames(name, known); len(similar) > 0 {
		return withSimilar(b, name, known, "@").Build()
	}
	return b.WithHelp("declare external routines with 'declare <type> @name(<params>)'").Build()
}

// DuplicateDefinition reports a name defined twice
func DuplicateDefinition(kind, name string, pos Position) Diagnostic {
	return NewError(ErrorDuplicateDefinition, fmt.Sprintf("%s '%s' is defined more than once", kind, name), pos).
		WithLength(len(name)).
		Build()
}

// UnknownType reports an unsupported type keyword
func UnknownType(name string, pos Position) Diagnostic {
	return NewError(ErrorUnknownType, fmt.Sprintf("unknown type '%s'", name), pos).
		WithLength(len(name)).
		WithHelp("supported types are void, ptr, i1, i8, i16, i32 and i64").
		Build()
}

// InvalidInstruction reports a malformed instruction
func InvalidInstruction(message string, pos Position) Diagnostic {
	return NewError(ErrorInvalidInstruction, message, pos).Build()
}

// Verification reports a broken structural invariant
func Verification(message string) Diagnostic {
	return NewError(ErrorVerification, message, Position{}).Build()
}

// MissingMain is the warning emitted when a program cannot be instrumented
func MissingMain(program string) Diagnostic {
	return NewWarning(WarningMissingMain,
		fmt.Sprintf("main() not found in program '%s'. Logging of printf() calls disabled for this program.", program),
		Position{}).Build()
}

func withSimilar(b *Builder, name string, known []string, sigil string) *Builder {
	similar := findSimilarNames(name, known)
	switch len(similar) {
	case 0:
		return b
	case 1:
		return b.WithHelp(fmt.Sprintf("did you mean '%s%s'?", sigil, similar[0]))
	default:
		return b.WithHelp(fmt.Sprintf("did you mean one of: '%s%s'?", sigil, strings.Join(similar, "', '"+sigil)))
	}
}

func findSimilarNames(target string, candidates []string) []string {
	var similar []string
	for _, candidate := range candidates {
		if candidate != target && levenshteinDistance(target, candidate) <= 2 && len(candidate) > 2 {
			similar = append(similar, candidate)
		}
	}
	sort.Strings(similar)
	return similar
}

// Simple Levenshtein distance implementation for finding similar names
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(b); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}
	return matrix[len(a)][len(b)]
}
