package ir

import (
	"fmt"
	"sort"

	"github.com/alecthomas/participle/v2/lexer"

	"printflog/grammar"
	"printflog/internal/diag"
)

// lowerer converts the textual IR syntax tree into a Program
type lowerer struct {
	program *Program
	diags   diag.List
}

// function-level scope
type scope struct {
	fn     *Function
	values map[string]*Value
}

// Lower builds a Program from a parsed syntax tree. All problems found are
// returned together as a diag.List.
func Lower(ast *grammar.Program) (*Program, error) {
	l := &lowerer{program: NewProgram(ast.Name)}

	var defines []*grammar.Define
	var functions []*Function
	for _, item := range ast.Items {
		switch {
		case item.Declare != nil:
			l.lowerDeclare(item.Declare)
		case item.Global != nil:
			l.lowerGlobal(item.Global)
		case item.Define != nil:
			if fn := l.declareFunction(item.Define); fn != nil {
				defines = append(defines, item.Define)
				functions = append(functions, fn)
			}
		}
	}

	for i, def := range defines {
		l.lowerBody(functions[i], def)
	}

	if err := l.diags.Err(); err != nil {
		return nil, err
	}
	return l.program, nil
}

func position(pos lexer.Position) diag.Position {
	return diag.Position{Filename: pos.Filename, Line: pos.Line, Column: pos.Column}
}

func (l *lowerer) report(d diag.Diagnostic) {
	l.diags = append(l.diags, d)
}

func (l *lowerer) parseType(name string, pos lexer.Position) Type {
	typ, err := ParseType(name)
	if err != nil {
		l.report(diag.UnknownType(name, position(pos)))
		return &IntType{Bits: 32}
	}
	return typ
}

func (l *lowerer) signature(ret string, params []string, pos lexer.Position) *FunctionType {
	sig := &FunctionType{Return: l.parseType(ret, pos)}
	for i, param := range params {
		if param == "..." {
			if i != len(params)-1 {
				l.report(diag.InvalidInstruction("'...' must be the last parameter", position(pos)))
			}
			sig.Variadic = true
			continue
		}
		sig.Params = append(sig.Params, l.parseType(param, pos))
	}
	return sig
}

func (l *lowerer) symbolNames() []string {
	var names []string
	for _, fn := range l.program.Functions {
		names = append(names, fn.Name)
	}
	for _, decl := range l.program.Declarations {
		names = append(names, decl.Name)
	}
	for _, g := range l.program.Globals {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return names
}

func (l *lowerer) lowerDeclare(decl *grammar.Declare) {
	if l.program.Lookup(decl.Name) != nil {
		l.report(diag.DuplicateDefinition("symbol", "@"+decl.Name, position(decl.Pos)))
		return
	}
	l.program.Declare(decl.Name, l.signature(decl.Return, decl.Params, decl.Pos))
}

func (l *lowerer) lowerGlobal(g *grammar.Global) {
	typ := l.parseType(g.Type, g.Pos)
	init := l.constant(g.Initializer)
	if _, err := l.program.AddGlobal(g.Name, typ, init); err != nil {
		l.report(diag.DuplicateDefinition("symbol", "@"+g.Name, position(g.Pos)))
	}
}

// constant lowers a global initializer, which must be a literal
func (l *lowerer) constant(op *grammar.Operand) *Value {
	switch {
	case op.Null:
		return NewNull()
	case op.Int != nil:
		return NewInt(32, *op.Int)
	case op.String != nil:
		return NewString(*op.String)
	default:
		l.report(diag.InvalidInstruction("global initializer must be null, an integer or a string", position(op.Pos)))
		return NewNull()
	}
}

func (l *lowerer) declareFunction(def *grammar.Define) *Function {
	params := make([]string, len(def.Params))
	for i, p := range def.Params {
		params[i] = p.Type
	}
	fn, err := l.program.AddFunction(def.Name, l.signature(def.Return, params, def.Pos))
	if err != nil {
		l.report(diag.DuplicateDefinition("symbol", "@"+def.Name, position(def.Pos)))
		return nil
	}
	return fn
}

func (l *lowerer) lowerBody(fn *Function, def *grammar.Define) {
	sc := &scope{fn: fn, values: make(map[string]*Value)}

	for i, p := range def.Params {
		if sc.values[p.Name] != nil {
			l.report(diag.DuplicateDefinition("parameter", "%"+p.Name, position(def.Pos)))
			continue
		}
		param := fn.AddParam(p.Name, fn.Type.Params[i])
		sc.values[p.Name] = param.Value
	}

	if len(def.Blocks) == 0 {
		l.report(diag.InvalidInstruction(fmt.Sprintf("function @%s has no blocks", fn.Name), position(def.Pos)))
		return
	}

	for _, b := range def.Blocks {
		if fn.Block(b.Label) != nil {
			l.report(diag.DuplicateDefinition("label", b.Label, position(b.Pos)))
			continue
		}
		fn.NewBlock(b.Label)
	}

	// results are created up front so phis can refer to values defined later
	for _, b := range def.Blocks {
		for _, stmt := range b.Statements {
			if stmt.Result == nil {
				continue
			}
			name := *stmt.Result
			if sc.values[name] != nil {
				l.report(diag.DuplicateDefinition("value", "%"+name, position(stmt.Pos)))
				continue
			}
			sc.values[name] = &Value{
				ID:   l.program.nextID(),
				Name: fn.FreshName(name),
				Kind: InstructionValue,
			}
		}
	}

	for _, b := range def.Blocks {
		block := fn.Block(b.Label)
		for i, stmt := range b.Statements {
			l.lowerStatement(sc, block, stmt, i == len(b.Statements)-1)
		}
		if block.Terminator == nil {
			l.report(diag.InvalidInstruction(fmt.Sprintf("block %s does not end with a terminator", b.Label), position(b.Pos)))
		}
	}

	fn.RebuildCFG()
}

func (l *lowerer) lowerStatement(sc *scope, block *BasicBlock, stmt *grammar.Statement, last bool) {
	var result *Value
	if stmt.Result != nil {
		result = sc.values[*stmt.Result]
	}
	pos := position(stmt.Pos)

	inst := l.lowerOp(sc, stmt, result)
	if inst == nil {
		return
	}
	if res := inst.GetResult(); res != nil {
		res.DefInst = inst
	} else if result != nil {
		l.report(diag.InvalidInstruction(fmt.Sprintf("instruction produces no value for %%%s", result.Name), pos))
	}

	if term, ok := inst.(Terminator); ok {
		if !last {
			l.report(diag.InvalidInstruction("terminator must be the last instruction of its block", pos))
			return
		}
		block.SetTerminator(term)
		return
	}
	if last {
		l.report(diag.InvalidInstruction("block must end with a terminator", pos))
	}
	inst.SetBlock(block)
	block.Instructions = append(block.Instructions, inst)
}

// result returns the named result, or a fresh unnamed one when the
// instruction produces a value the text does not name
func (l *lowerer) result(sc *scope, named *Value, typ Type) *Value {
	if IsVoid(typ) {
		return nil
	}
	if named == nil {
		named = &Value{
			ID:   l.program.nextID(),
			Name: sc.fn.FreshName(""),
			Kind: InstructionValue,
		}
	}
	named.Type = typ
	return named
}

func (l *lowerer) lowerOp(sc *scope, stmt *grammar.Statement, named *Value) Instruction {
	op := stmt.Op
	id := l.program.nextID()
	switch {
	case op.Call != nil:
		typ := l.parseType(op.Call.Type, stmt.Pos)
		return &CallInstruction{
			ID:     id,
			Result: l.result(sc, named, typ),
			Callee: l.operand(sc, op.Call.Callee),
			Args:   l.operands(sc, op.Call.Args),
		}
	case op.Invoke != nil:
		typ := l.parseType(op.Invoke.Type, stmt.Pos)
		return &InvokeTerminator{
			ID:     id,
			Result: l.result(sc, named, typ),
			Callee: l.operand(sc, op.Invoke.Callee),
			Args:   l.operands(sc, op.Invoke.Args),
			Normal: l.label(sc, op.Invoke.Normal, stmt.Pos),
			Unwind: l.label(sc, op.Invoke.Unwind, stmt.Pos),
		}
	case op.Load != nil:
		typ := l.parseType(op.Load.Type, stmt.Pos)
		return &LoadInstruction{
			ID:      id,
			Result:  l.result(sc, named, typ),
			Address: l.operand(sc, op.Load.Address),
		}
	case op.Store != nil:
		return &StoreInstruction{
			ID:      id,
			Value:   l.operand(sc, op.Store.Value),
			Address: l.operand(sc, op.Store.Address),
		}
	case op.Compare != nil:
		return &CompareInstruction{
			ID:        id,
			Result:    l.result(sc, named, &IntType{Bits: 1}),
			Predicate: Predicate(op.Compare.Predicate),
			Left:      l.operand(sc, op.Compare.Left),
			Right:     l.operand(sc, op.Compare.Right),
		}
	case op.Binary != nil:
		left := l.operand(sc, op.Binary.Left)
		typ := left.Type
		if typ == nil {
			typ = &IntType{Bits: 32}
		}
		return &BinaryInstruction{
			ID:     id,
			Result: l.result(sc, named, typ),
			Op:     op.Binary.Op,
			Left:   left,
			Right:  l.operand(sc, op.Binary.Right),
		}
	case op.Phi != nil:
		phi := &PhiInstruction{
			ID:     id,
			Result: l.result(sc, named, l.parseType(op.Phi.Type, stmt.Pos)),
		}
		for _, edge := range op.Phi.Incoming {
			phi.Incoming = append(phi.Incoming, PhiIncoming{
				Block: l.label(sc, edge.Block, stmt.Pos),
				Value: l.operand(sc, edge.Value),
			})
		}
		return phi
	case op.Return != nil:
		typ := l.parseType(op.Return.Type, stmt.Pos)
		ret := &ReturnTerminator{ID: id}
		if op.Return.Value != nil {
			ret.Value = l.operand(sc, op.Return.Value)
		}
		if IsVoid(typ) != (ret.Value == nil) {
			l.report(diag.InvalidInstruction(fmt.Sprintf("return of type %s does not match its operand", typ), position(stmt.Pos)))
		}
		return ret
	case op.Branch != nil:
		return &BranchTerminator{
			ID:         id,
			Condition:  l.operand(sc, op.Branch.Condition),
			TrueBlock:  l.label(sc, op.Branch.True, stmt.Pos),
			FalseBlock: l.label(sc, op.Branch.False, stmt.Pos),
		}
	case op.Jump != nil:
		return &JumpTerminator{ID: id, Target: l.label(sc, op.Jump.Target, stmt.Pos)}
	case op.Resume != nil:
		return &ResumeTerminator{ID: id}
	case op.Unreachable != nil:
		return &UnreachableTerminator{ID: id}
	}
	l.report(diag.InvalidInstruction("empty statement", position(stmt.Pos)))
	return nil
}

func (l *lowerer) label(sc *scope, label string, pos lexer.Position) *BasicBlock {
	if block := sc.fn.Block(label); block != nil {
		return block
	}
	known := make([]string, len(sc.fn.Blocks))
	for i, b := range sc.fn.Blocks {
		known[i] = b.Label
	}
	l.report(diag.UndefinedLabel(label, sc.fn.Name, position(pos), known))
	return sc.fn.Entry
}

func (l *lowerer) operands(sc *scope, ops []*grammar.Operand) []*Value {
	values := make([]*Value, len(ops))
	for i, op := range ops {
		values[i] = l.operand(sc, op)
	}
	return values
}

func (l *lowerer) operand(sc *scope, op *grammar.Operand) *Value {
	switch {
	case op.Null:
		return NewNull()
	case op.Cast != nil:
		return NewCast(l.operand(sc, op.Cast), &PointerType{})
	case op.Local != nil:
		if v := sc.values[*op.Local]; v != nil {
			return v
		}
		known := make([]string, 0, len(sc.values))
		for name := range sc.values {
			known = append(known, name)
		}
		l.report(diag.UndefinedValue(*op.Local, position(op.Pos), known))
		return NewNull()
	case op.Global != nil:
		if v := l.program.Lookup(*op.Global); v != nil {
			return v
		}
		l.report(diag.UndefinedSymbol(*op.Global, position(op.Pos), l.symbolNames()))
		return NewNull()
	case op.Int != nil:
		return NewInt(32, *op.Int)
	case op.String != nil:
		return NewString(*op.String)
	}
	l.report(diag.InvalidInstruction("empty operand", position(op.Pos)))
	return NewNull()
}
