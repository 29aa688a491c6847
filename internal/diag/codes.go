package diag

// Diagnostic codes for the printflog toolchain
//
// Code ranges:
// P0001-P0099: Textual IR syntax errors
// P0100-P0199: Lowering errors (names, labels, types)
// P0200-P0299: Verification errors
// P0300-P0399: Instrumentation diagnostics
// W0001-W0099: Warnings

const (
	// P0001: Textual IR does not match the grammar
	ErrorSyntax = "P0001"

	// P0100: Use of a %value that is never defined
	ErrorUndefinedValue = "P0100"

	// P0101: Branch to a label that names no block
	ErrorUndefinedLabel = "P0101"

	// P0102: Reference to an @symbol that is not declared
	ErrorUndefinedSymbol = "P0102"

	// P0103: Name defined twice
	ErrorDuplicateDefinition = "P0103"

	// P0104: Unknown type keyword
	ErrorUnknownType = "P0104"

	// P0105: Malformed instruction operands
	ErrorInvalidInstruction = "P0105"

	// P0200: Structural invariant broken
	ErrorVerification = "P0200"

	// W0001: No main routine, the program is left untouched
	WarningMissingMain = "W0001"
)

// GetErrorDescription returns a human-readable description of the code
func GetErrorDescription(code string) string {
	switch code {
	case ErrorSyntax:
		return "Textual IR does not match the grammar"
	case ErrorUndefinedValue:
		return "Local value is used but never defined"
	case ErrorUndefinedLabel:
		return "Label does not name a block of the function"
	case ErrorUndefinedSymbol:
		return "Global symbol is not declared, defined or created"
	case ErrorDuplicateDefinition:
		return "Name is defined more than once"
	case ErrorUnknownType:
		return "Type keyword is not one of void, ptr, i1, i8, i16, i32, i64"
	case ErrorInvalidInstruction:
		return "Instruction is malformed"
	case ErrorVerification:
		return "Program breaks a structural invariant"
	case WarningMissingMain:
		return "Program has no main routine and is not instrumented"
	default:
		return "Unknown diagnostic code"
	}
}

// IsWarning returns true if the code represents a warning rather than an error
func IsWarning(code string) bool {
	return code != "" && code[0] == 'W'
}
