package ir

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("printflog.ir")

// NewProgram creates an empty program
func NewProgram(name string) *Program {
	return &Program{
		Name:         name,
		Functions:    []*Function{},
		Globals:      []*Global{},
		Declarations: []*Declaration{},
	}
}

func (p *Program) nextID() int {
	id := p.idCounter
	p.idCounter++
	return id
}

// Function looks up a defined function by name
func (p *Program) Function(name string) *Function {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// Declaration looks up an external declaration by name
func (p *Program) Declaration(name string) *Declaration {
	for _, decl := range p.Declarations {
		if decl.Name == name {
			return decl
		}
	}
	return nil
}

// Global looks up a global cell by name
func (p *Program) Global(name string) *Global {
	for _, g := range p.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Lookup resolves a program-level symbol: a function, a declaration or a global
func (p *Program) Lookup(name string) *Value {
	if fn := p.Function(name); fn != nil {
		return fn.Value
	}
	if decl := p.Declaration(name); decl != nil {
		return decl.Value
	}
	if g := p.Global(name); g != nil {
		return g.Value
	}
	return nil
}

// Declare returns the handle of the routine called name, declaring it as an
// external routine with the given signature when the program does not know it.
// An existing symbol is returned as is even when its signature differs.
func (p *Program) Declare(name string, typ *FunctionType) *Value {
	if fn := p.Function(name); fn != nil {
		if !SameType(fn.Type, typ) {
			log.Warningf("routine %s is defined as %s, requested %s", name, fn.Type, typ)
		}
		return fn.Value
	}
	if decl := p.Declaration(name); decl != nil {
		if !SameType(decl.Type, typ) {
			log.Warningf("routine %s is declared as %s, requested %s", name, decl.Type, typ)
		}
		return decl.Value
	}

	decl := &Declaration{
		Name: name,
		Type: typ,
	}
	decl.Value = &Value{
		ID:   p.nextID(),
		Name: name,
		Kind: FunctionValue,
		Type: typ,
	}
	p.Declarations = append(p.Declarations, decl)
	return decl.Value
}

// AddGlobal creates a new global cell. The name must not be taken.
func (p *Program) AddGlobal(name string, typ Type, initializer *Value) (*Global, error) {
	if p.Lookup(name) != nil {
		return nil, fmt.Errorf("symbol @%s already exists", name)
	}
	g := &Global{
		Name:        name,
		Type:        typ,
		Initializer: initializer,
	}
	g.Value = &Value{
		ID:   p.nextID(),
		Name: name,
		Kind: GlobalValue,
		Type: &PointerType{},
	}
	p.Globals = append(p.Globals, g)
	return g, nil
}

// FreshGlobalName returns base, or base with a numeric suffix, so that it names no existing symbol
func (p *Program) FreshGlobalName(base string) string {
	name := base
	for i := 1; p.Lookup(name) != nil; i++ {
		name = fmt.Sprintf("%s.%d", base, i)
	}
	return name
}

// AddFunction creates an empty function definition. The name must not be taken.
func (p *Program) AddFunction(name string, typ *FunctionType) (*Function, error) {
	if p.Lookup(name) != nil {
		return nil, fmt.Errorf("symbol @%s already exists", name)
	}
	fn := &Function{
		Name:    name,
		Type:    typ,
		Params:  []*Parameter{},
		Blocks:  []*BasicBlock{},
		program: p,
		names:   make(map[string]bool),
		labels:  make(map[string]bool),
	}
	fn.Value = &Value{
		ID:   p.nextID(),
		Name: name,
		Kind: FunctionValue,
		Type: typ,
	}
	p.Functions = append(p.Functions, fn)
	return fn, nil
}

// Program returns the program the function belongs to
func (f *Function) Program() *Program {
	return f.program
}

// AddParam appends a parameter value to the function
func (f *Function) AddParam(name string, typ Type) *Parameter {
	value := &Value{
		ID:   f.program.nextID(),
		Name: f.FreshName(name),
		Kind: ParameterValue,
		Type: typ,
	}
	param := &Parameter{Name: value.Name, Type: typ, Value: value}
	f.Params = append(f.Params, param)
	return param
}

// FreshName reserves a local value name derived from base
func (f *Function) FreshName(base string) string {
	if base == "" {
		base = "v"
	}
	name := base
	for i := 1; f.names[name]; i++ {
		name = fmt.Sprintf("%s.%d", base, i)
	}
	f.names[name] = true
	return name
}

// FreshLabel reserves a block label derived from base
func (f *Function) FreshLabel(base string) string {
	name := base
	for i := 1; f.labels[name]; i++ {
		name = fmt.Sprintf("%s.%d", base, i)
	}
	f.labels[name] = true
	return name
}

// NewBlock creates a block with a fresh label and appends it to the function
func (f *Function) NewBlock(label string) *BasicBlock {
	block := &BasicBlock{
		Label:        f.FreshLabel(label),
		Instructions: []Instruction{},
		Parent:       f,
		Predecessors: []*BasicBlock{},
		Successors:   []*BasicBlock{},
	}
	f.Blocks = append(f.Blocks, block)
	if f.Entry == nil {
		f.Entry = block
	}
	return block
}

// BlockIndex returns the position of block in the function, or -1
func (f *Function) BlockIndex(block *BasicBlock) int {
	for i, b := range f.Blocks {
		if b == block {
			return i
		}
	}
	return -1
}

// Block looks up a block by label
func (f *Function) Block(label string) *BasicBlock {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// ReturnType returns the declared result type of the function
func (f *Function) ReturnType() Type {
	if f.Type == nil {
		return &VoidType{}
	}
	return f.Type.Return
}

// IndexOf returns the position of a non-terminator instruction, or -1
func (b *BasicBlock) IndexOf(inst Instruction) int {
	for i, candidate := range b.Instructions {
		if candidate == inst {
			return i
		}
	}
	return -1
}

// FirstInsertionIndex returns the first position after the block's phis
func (b *BasicBlock) FirstInsertionIndex() int {
	for i, inst := range b.Instructions {
		if _, ok := inst.(*PhiInstruction); !ok {
			return i
		}
	}
	return len(b.Instructions)
}

// Phis returns the phi instructions at the head of the block
func (b *BasicBlock) Phis() []*PhiInstruction {
	var phis []*PhiInstruction
	for _, inst := range b.Instructions {
		phi, ok := inst.(*PhiInstruction)
		if !ok {
			break
		}
		phis = append(phis, phi)
	}
	return phis
}

// SetTerminator installs the block terminator
func (b *BasicBlock) SetTerminator(term Terminator) {
	if term != nil {
		term.SetBlock(b)
	}
	b.Terminator = term
}

// Next returns the instruction executed after inst in the same block: the
// following instruction, or the terminator
func (b *BasicBlock) Next(inst Instruction) Instruction {
	idx := b.IndexOf(inst)
	if idx < 0 {
		return nil
	}
	if idx+1 < len(b.Instructions) {
		return b.Instructions[idx+1]
	}
	return b.Terminator
}

// CalleeName resolves the name of a called routine after stripping casts.
// Calls through a register have no name.
func CalleeName(call CallLike) string {
	callee := call.GetCallee().StripCasts()
	if callee == nil || callee.Kind != FunctionValue {
		return ""
	}
	return callee.Name
}
