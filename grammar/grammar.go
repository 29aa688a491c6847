package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

type Program struct {
	Pos   lexer.Position
	Name  string  `"program" @String`
	Items []*Item `@@*`
}

type Item struct {
	Declare *Declare `  @@`
	Global  *Global  `| @@`
	Define  *Define  `| @@`
}

type Declare struct {
	Pos    lexer.Position
	Return string   `"declare" @Ident`
	Name   string   `@Global`
	Params []string `"(" [ @( "..." | Ident ) { "," @( "..." | Ident ) } ] ")"`
}

type Global struct {
	Pos         lexer.Position
	Name        string   `"global" @Global ":"`
	Type        string   `@Ident "="`
	Initializer *Operand `@@`
}

type Define struct {
	Pos    lexer.Position
	Return string   `"define" @Ident`
	Name   string   `@Global`
	Params []*Param `"(" [ @@ { "," @@ } ] ")"`
	Blocks []*Block `"{" @@* "}"`
}

type Param struct {
	Type string `@Ident`
	Name string `@Local`
}

type Block struct {
	Pos        lexer.Position
	Label      string       `@Ident ":"`
	Statements []*Statement `@@+`
}

type Statement struct {
	Pos    lexer.Position
	Result *string `[ @Local "=" ]`
	Op     *Op     `@@`
}

type Op struct {
	Call        *Call        `  @@`
	Invoke      *Invoke      `| @@`
	Load        *Load        `| @@`
	Store       *Store       `| @@`
	Compare     *Compare     `| @@`
	Binary      *Binary      `| @@`
	Phi         *Phi         `| @@`
	Return      *Return      `| @@`
	Branch      *Branch      `| @@`
	Jump        *Jump        `| @@`
	Resume      *Resume      `| @@`
	Unreachable *Unreachable `| @@`
}

type Call struct {
	Type   string     `"call" @Ident`
	Callee *Operand   `@@`
	Args   []*Operand `"(" [ @@ { "," @@ } ] ")"`
}

type Invoke struct {
	Type   string     `"invoke" @Ident`
	Callee *Operand   `@@`
	Args   []*Operand `"(" [ @@ { "," @@ } ] ")"`
	Normal string     `"to" "label" @Local`
	Unwind string     `"unwind" "label" @Local`
}

type Load struct {
	Type    string   `"load" @Ident ","`
	Address *Operand `@@`
}

type Store struct {
	Value   *Operand `"store" @@ ","`
	Address *Operand `@@`
}

type Compare struct {
	Predicate string   `"cmp" @( "eq" | "ne" | "lt" | "le" | "gt" | "ge" )`
	Left      *Operand `@@ ","`
	Right     *Operand `@@`
}

type Binary struct {
	Op    string   `@( "add" | "sub" | "mul" | "div" | "rem" )`
	Left  *Operand `@@ ","`
	Right *Operand `@@`
}

type Phi struct {
	Type     string     `"phi" @Ident`
	Incoming []*PhiEdge `@@ { "," @@ }`
}

type PhiEdge struct {
	Value *Operand `"[" @@ ","`
	Block string   `@Local "]"`
}

type Return struct {
	Type  string   `"ret" @Ident`
	Value *Operand `[ @@ ]`
}

type Branch struct {
	Condition *Operand `"br" @@ ","`
	True      string   `"label" @Local ","`
	False     string   `"label" @Local`
}

type Jump struct {
	Target string `"jmp" "label" @Local`
}

type Resume struct {
	Keyword string `@"resume"`
}

type Unreachable struct {
	Keyword string `@"unreachable"`
}

type Operand struct {
	Pos    lexer.Position
	Null   bool     `  @"null"`
	Cast   *Operand `| "cast" "(" @@ ")"`
	Local  *string  `| @Local`
	Global *string  `| @Global`
	Int    *int64   `| @Int`
	String *string  `| @String`
}
