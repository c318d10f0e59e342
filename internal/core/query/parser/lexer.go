package parser

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// FilterLexer defines the token types of the filter language.
var FilterLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Keywords
	{Name: "Keyword", Pattern: `\b(?i:and|like|in|true|false|null|asc|desc)\b`},

	// Literals
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},

	// Field paths, optionally dotted
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*`},

	// Comparison operators, longest first
	{Name: "Operator", Pattern: `!=|<>|>=|<=|=|>|<`},

	// Punctuation
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Comma", Pattern: `,`},

	{Name: "Whitespace", Pattern: `\s+`},
})
