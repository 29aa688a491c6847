package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var IRLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{Name: "Comment", Pattern: `;[^\n]*`, Action: nil},

		// String literals with C-style escapes
		{Name: "String", Pattern: `"(\\.|[^"\\])*"`, Action: nil},

		// Symbols: @global and %local
		{Name: "Global", Pattern: `@[a-zA-Z_.$][a-zA-Z0-9_.$]*`, Action: nil},
		{Name: "Local", Pattern: `%[a-zA-Z0-9_.$]+`, Action: nil},

		// Integer literals
		{Name: "Int", Pattern: `-?[0-9]+`, Action: nil},

		// Keywords, types, labels (order matters)
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_.]*`, Action: nil},

		// Punctuation
		{Name: "Punct", Pattern: `\.\.\.|[(),:=\[\]{}]`, Action: nil},

		// Whitespace
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`, Action: nil},
	},
})
