package ir

import (
	"fmt"
	"strings"
)

// IR types and structures for instrumentation passes.
// The IR is in SSA form with explicit basic blocks, one terminator per block
// and a control flow graph derived from the terminators.

// Program represents a whole compilation unit in IR form
type Program struct {
	Name         string
	Functions    []*Function
	Globals      []*Global
	Declarations []*Declaration

	idCounter int
}

// Global is a program-level storage cell
type Global struct {
	Name        string
	Type        Type   // Type of the stored value
	Initializer *Value // Constant initial value
	Value       *Value // Address of the cell (a GlobalValue of pointer type)
}

// Declaration is an external routine known only by its signature
type Declaration struct {
	Name  string
	Type  *FunctionType
	Value *Value
}

// Function represents a function definition in IR form
type Function struct {
	Name   string
	Type   *FunctionType
	Params []*Parameter
	Entry  *BasicBlock
	Blocks []*BasicBlock
	Value  *Value

	program *Program
	names   map[string]bool
	labels  map[string]bool
}

// Parameter represents a function parameter
type Parameter struct {
	Name  string
	Type  Type
	Value *Value
}

// BasicBlock is a sequence of non-terminating instructions closed by exactly one terminator
type BasicBlock struct {
	Label        string
	Instructions []Instruction
	Terminator   Terminator
	Parent       *Function
	Predecessors []*BasicBlock
	Successors   []*BasicBlock
}

// ValueKind tells where a value comes from
type ValueKind int

const (
	ConstantValue    ValueKind = iota // Literal integer, string or null
	GlobalValue                       // Address of a global cell
	FunctionValue                     // A defined function or an external declaration
	InstructionValue                  // Result of an instruction
	ParameterValue                    // Function parameter
	CastValue                         // Pointer cast of another value
)

func (k ValueKind) String() string {
	switch k {
	case ConstantValue:
		return "constant"
	case GlobalValue:
		return "global"
	case FunctionValue:
		return "function"
	case InstructionValue:
		return "instruction"
	case ParameterValue:
		return "parameter"
	case CastValue:
		return "cast"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// Value represents a value in SSA form - each instruction value has exactly one definition
type Value struct {
	ID      int
	Name    string
	Kind    ValueKind
	Type    Type
	Data    interface{} // int64, string or nil for constants
	Operand *Value      // Source of a cast
	DefInst Instruction
}

// StripCasts returns the value underneath any chain of casts
func (v *Value) StripCasts() *Value {
	for v != nil && v.Kind == CastValue {
		v = v.Operand
	}
	return v
}

// IsNull reports whether the value is the null pointer constant
func (v *Value) IsNull() bool {
	return v != nil && v.Kind == ConstantValue && v.Data == nil
}

// NewInt creates an integer constant
func NewInt(bits int, value int64) *Value {
	return &Value{ID: -1, Kind: ConstantValue, Type: &IntType{Bits: bits}, Data: value}
}

// NewNull creates the null pointer constant
func NewNull() *Value {
	return &Value{ID: -1, Kind: ConstantValue, Type: &PointerType{}, Data: nil}
}

// NewString creates a string literal constant (a pointer to its characters)
func NewString(text string) *Value {
	return &Value{ID: -1, Kind: ConstantValue, Type: &PointerType{}, Data: text}
}

// NewCast wraps a value in a pointer cast
func NewCast(operand *Value, typ Type) *Value {
	return &Value{ID: -1, Kind: CastValue, Type: typ, Operand: operand}
}

// Instructions in SSA form

type Instruction interface {
	GetID() int
	GetResult() *Value
	GetOperands() []*Value
	GetBlock() *BasicBlock
	SetBlock(block *BasicBlock)
	IsTerminator() bool
	// ReplaceOperand swaps every use of old for new and reports whether any was found
	ReplaceOperand(old, new *Value) bool
}

// Terminators end basic blocks
type Terminator interface {
	Instruction
	GetSuccessors() []*BasicBlock
	ReplaceSuccessor(old, new *BasicBlock)
}

// CallLike is implemented by both shapes of call
type CallLike interface {
	Instruction
	GetCallee() *Value
	GetArgs() []*Value
}

// Predicate is a comparison predicate
type Predicate string

const (
	PredicateEQ Predicate = "eq"
	PredicateNE Predicate = "ne"
	PredicateLT Predicate = "lt"
	PredicateLE Predicate = "le"
	PredicateGT Predicate = "gt"
	PredicateGE Predicate = "ge"
)

// CallInstruction is an ordinary call: execution continues with the next instruction
type CallInstruction struct {
	ID     int
	Result *Value // nil for void calls
	Block  *BasicBlock
	Callee *Value
	Args   []*Value
}

type LoadInstruction struct {
	ID      int
	Result  *Value
	Block   *BasicBlock
	Address *Value
}

type StoreInstruction struct {
	ID      int
	Block   *BasicBlock
	Address *Value
	Value   *Value
}

type CompareInstruction struct {
	ID        int
	Result    *Value
	Block     *BasicBlock
	Predicate Predicate
	Left      *Value
	Right     *Value
}

type BinaryInstruction struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Op     string // "add", "sub", "mul", "div", "rem"
	Left   *Value
	Right  *Value
}

// PhiIncoming is one (predecessor, value) pair of a phi
type PhiIncoming struct {
	Block *BasicBlock
	Value *Value
}

type PhiInstruction struct {
	ID       int
	Result   *Value
	Block    *BasicBlock
	Incoming []PhiIncoming
}

// Terminators

type ReturnTerminator struct {
	ID    int
	Block *BasicBlock
	Value *Value
}

type BranchTerminator struct {
	ID         int
	Block      *BasicBlock
	Condition  *Value
	TrueBlock  *BasicBlock
	FalseBlock *BasicBlock
}

type JumpTerminator struct {
	ID     int
	Block  *BasicBlock
	Target *BasicBlock
}

// InvokeTerminator is a call that ends its block: control continues at Normal
// when the callee returns and at Unwind when it raises
type InvokeTerminator struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Callee *Value
	Args   []*Value
	Normal *BasicBlock
	Unwind *BasicBlock
}

// ResumeTerminator propagates the in-flight exception to the caller
type ResumeTerminator struct {
	ID    int
	Block *BasicBlock
}

type UnreachableTerminator struct {
	ID    int
	Block *BasicBlock
}

// Implementation of interfaces

func replaceIn(values []*Value, old, new *Value) bool {
	found := false
	for i, v := range values {
		if v == old {
			values[i] = new
			found = true
		}
	}
	return found
}

func replaceOne(slot **Value, old, new *Value) bool {
	if *slot == old {
		*slot = new
		return true
	}
	return false
}

func (c *CallInstruction) GetID() int                 { return c.ID }
func (c *CallInstruction) GetResult() *Value          { return c.Result }
func (c *CallInstruction) GetOperands() []*Value      { return append([]*Value{c.Callee}, c.Args...) }
func (c *CallInstruction) GetBlock() *BasicBlock      { return c.Block }
func (c *CallInstruction) SetBlock(block *BasicBlock) { c.Block = block }
func (c *CallInstruction) IsTerminator() bool         { return false }
func (c *CallInstruction) GetCallee() *Value          { return c.Callee }
func (c *CallInstruction) GetArgs() []*Value          { return c.Args }
func (c *CallInstruction) ReplaceOperand(old, new *Value) bool {
	callee := replaceOne(&c.Callee, old, new)
	args := replaceIn(c.Args, old, new)
	return callee || args
}

func (l *LoadInstruction) GetID() int                 { return l.ID }
func (l *LoadInstruction) GetResult() *Value          { return l.Result }
func (l *LoadInstruction) GetOperands() []*Value      { return []*Value{l.Address} }
func (l *LoadInstruction) GetBlock() *BasicBlock      { return l.Block }
func (l *LoadInstruction) SetBlock(block *BasicBlock) { l.Block = block }
func (l *LoadInstruction) IsTerminator() bool         { return false }
func (l *LoadInstruction) ReplaceOperand(old, new *Value) bool {
	return replaceOne(&l.Address, old, new)
}

func (s *StoreInstruction) GetID() int                 { return s.ID }
func (s *StoreInstruction) GetResult() *Value          { return nil }
func (s *StoreInstruction) GetOperands() []*Value      { return []*Value{s.Address, s.Value} }
func (s *StoreInstruction) GetBlock() *BasicBlock      { return s.Block }
func (s *StoreInstruction) SetBlock(block *BasicBlock) { s.Block = block }
func (s *StoreInstruction) IsTerminator() bool         { return false }
func (s *StoreInstruction) ReplaceOperand(old, new *Value) bool {
	address := replaceOne(&s.Address, old, new)
	value := replaceOne(&s.Value, old, new)
	return address || value
}

func (c *CompareInstruction) GetID() int                 { return c.ID }
func (c *CompareInstruction) GetResult() *Value          { return c.Result }
func (c *CompareInstruction) GetOperands() []*Value      { return []*Value{c.Left, c.Right} }
func (c *CompareInstruction) GetBlock() *BasicBlock      { return c.Block }
func (c *CompareInstruction) SetBlock(block *BasicBlock) { c.Block = block }
func (c *CompareInstruction) IsTerminator() bool         { return false }
func (c *CompareInstruction) ReplaceOperand(old, new *Value) bool {
	left := replaceOne(&c.Left, old, new)
	right := replaceOne(&c.Right, old, new)
	return left || right
}

func (b *BinaryInstruction) GetID() int                 { return b.ID }
func (b *BinaryInstruction) GetResult() *Value          { return b.Result }
func (b *BinaryInstruction) GetOperands() []*Value      { return []*Value{b.Left, b.Right} }
func (b *BinaryInstruction) GetBlock() *BasicBlock      { return b.Block }
func (b *BinaryInstruction) SetBlock(block *BasicBlock) { b.Block = block }
func (b *BinaryInstruction) IsTerminator() bool         { return false }
func (b *BinaryInstruction) ReplaceOperand(old, new *Value) bool {
	left := replaceOne(&b.Left, old, new)
	right := replaceOne(&b.Right, old, new)
	return left || right
}

func (p *PhiInstruction) GetID() int        { return p.ID }
func (p *PhiInstruction) GetResult() *Value { return p.Result }
func (p *PhiInstruction) GetOperands() []*Value {
	ops := make([]*Value, len(p.Incoming))
	for i, in := range p.Incoming {
		ops[i] = in.Value
	}
	return ops
}
func (p *PhiInstruction) GetBlock() *BasicBlock      { return p.Block }
func (p *PhiInstruction) SetBlock(block *BasicBlock) { p.Block = block }
func (p *PhiInstruction) IsTerminator() bool         { return false }
func (p *PhiInstruction) ReplaceOperand(old, new *Value) bool {
	found := false
	for i := range p.Incoming {
		if p.Incoming[i].Value == old {
			p.Incoming[i].Value = new
			found = true
		}
	}
	return found
}

// ValueFrom returns the incoming value for a predecessor block
func (p *PhiInstruction) ValueFrom(block *BasicBlock) (*Value, bool) {
	for _, in := range p.Incoming {
		if in.Block == block {
			return in.Value, true
		}
	}
	return nil, false
}

// Terminator implementations

func (r *ReturnTerminator) GetID() int        { return r.ID }
func (r *ReturnTerminator) GetResult() *Value { return nil }
func (r *ReturnTerminator) GetOperands() []*Value {
	if r.Value != nil {
		return []*Value{r.Value}
	}
	return []*Value{}
}
func (r *ReturnTerminator) GetBlock() *BasicBlock                 { return r.Block }
func (r *ReturnTerminator) SetBlock(block *BasicBlock)            { r.Block = block }
func (r *ReturnTerminator) IsTerminator() bool                    { return true }
func (r *ReturnTerminator) GetSuccessors() []*BasicBlock          { return []*BasicBlock{} }
func (r *ReturnTerminator) ReplaceSuccessor(old, new *BasicBlock) {}
func (r *ReturnTerminator) ReplaceOperand(old, new *Value) bool {
	return replaceOne(&r.Value, old, new)
}

func (b *BranchTerminator) GetID() int                 { return b.ID }
func (b *BranchTerminator) GetResult() *Value          { return nil }
func (b *BranchTerminator) GetOperands() []*Value      { return []*Value{b.Condition} }
func (b *BranchTerminator) GetBlock() *BasicBlock      { return b.Block }
func (b *BranchTerminator) SetBlock(block *BasicBlock) { b.Block = block }
func (b *BranchTerminator) IsTerminator() bool         { return true }
func (b *BranchTerminator) GetSuccessors() []*BasicBlock {
	return []*BasicBlock{b.TrueBlock, b.FalseBlock}
}
func (b *BranchTerminator) ReplaceSuccessor(old, new *BasicBlock) {
	if b.TrueBlock == old {
		b.TrueBlock = new
	}
	if b.FalseBlock == old {
		b.FalseBlock = new
	}
}
func (b *BranchTerminator) ReplaceOperand(old, new *Value) bool {
	return replaceOne(&b.Condition, old, new)
}

func (j *JumpTerminator) GetID() int                   { return j.ID }
func (j *JumpTerminator) GetResult() *Value            { return nil }
func (j *JumpTerminator) GetOperands() []*Value        { return []*Value{} }
func (j *JumpTerminator) GetBlock() *BasicBlock        { return j.Block }
func (j *JumpTerminator) SetBlock(block *BasicBlock)   { j.Block = block }
func (j *JumpTerminator) IsTerminator() bool           { return true }
func (j *JumpTerminator) GetSuccessors() []*BasicBlock { return []*BasicBlock{j.Target} }
func (j *JumpTerminator) ReplaceSuccessor(old, new *BasicBlock) {
	if j.Target == old {
		j.Target = new
	}
}
func (j *JumpTerminator) ReplaceOperand(old, new *Value) bool { return false }

func (i *InvokeTerminator) GetID() int                 { return i.ID }
func (i *InvokeTerminator) GetResult() *Value          { return i.Result }
func (i *InvokeTerminator) GetOperands() []*Value      { return append([]*Value{i.Callee}, i.Args...) }
func (i *InvokeTerminator) GetBlock() *BasicBlock      { return i.Block }
func (i *InvokeTerminator) SetBlock(block *BasicBlock) { i.Block = block }
func (i *InvokeTerminator) IsTerminator() bool         { return true }
func (i *InvokeTerminator) GetCallee() *Value          { return i.Callee }
func (i *InvokeTerminator) GetArgs() []*Value          { return i.Args }
func (i *InvokeTerminator) GetSuccessors() []*BasicBlock {
	return []*BasicBlock{i.Normal, i.Unwind}
}
func (i *InvokeTerminator) ReplaceSuccessor(old, new *BasicBlock) {
	if i.Normal == old {
		i.Normal = new
	}
	if i.Unwind == old {
		i.Unwind = new
	}
}
func (i *InvokeTerminator) ReplaceOperand(old, new *Value) bool {
	callee := replaceOne(&i.Callee, old, new)
	args := replaceIn(i.Args, old, new)
	return callee || args
}

func (r *ResumeTerminator) GetID() int                            { return r.ID }
func (r *ResumeTerminator) GetResult() *Value                     { return nil }
func (r *ResumeTerminator) GetOperands() []*Value                 { return []*Value{} }
func (r *ResumeTerminator) GetBlock() *BasicBlock                 { return r.Block }
func (r *ResumeTerminator) SetBlock(block *BasicBlock)            { r.Block = block }
func (r *ResumeTerminator) IsTerminator() bool                    { return true }
func (r *ResumeTerminator) GetSuccessors() []*BasicBlock          { return []*BasicBlock{} }
func (r *ResumeTerminator) ReplaceSuccessor(old, new *BasicBlock) {}
func (r *ResumeTerminator) ReplaceOperand(old, new *Value) bool   { return false }

func (u *UnreachableTerminator) GetID() int                            { return u.ID }
func (u *UnreachableTerminator) GetResult() *Value                     { return nil }
func (u *UnreachableTerminator) GetOperands() []*Value                 { return []*Value{} }
func (u *UnreachableTerminator) GetBlock() *BasicBlock                 { return u.Block }
func (u *UnreachableTerminator) SetBlock(block *BasicBlock)            { u.Block = block }
func (u *UnreachableTerminator) IsTerminator() bool                    { return true }
func (u *UnreachableTerminator) GetSuccessors() []*BasicBlock          { return []*BasicBlock{} }
func (u *UnreachableTerminator) ReplaceSuccessor(old, new *BasicBlock) {}
func (u *UnreachableTerminator) ReplaceOperand(old, new *Value) bool   { return false }

// Types

type Type interface {
	String() string
}

type IntType struct {
	Bits int
}

type PointerType struct{}

type VoidType struct{}

// FunctionType is the signature of a routine
type FunctionType struct {
	Return   Type
	Params   []Type
	Variadic bool
}

func (i *IntType) String() string     { return fmt.Sprintf("i%d", i.Bits) }
func (p *PointerType) String() string { return "ptr" }
func (v *VoidType) String() string    { return "void" }
func (f *FunctionType) String() string {
	params := make([]string, 0, len(f.Params)+1)
	for _, p := range f.Params {
		params = append(params, p.String())
	}
	if f.Variadic {
		params = append(params, "...")
	}
	return fmt.Sprintf("%s (%s)", f.Return.String(), strings.Join(params, ", "))
}

// SameType reports whether two types are structurally identical
func SameType(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// IsVoid reports whether typ is the void type
func IsVoid(typ Type) bool {
	_, ok := typ.(*VoidType)
	return ok
}

// ParseType converts a type keyword into a Type
func ParseType(name string) (Type, error) {
	switch name {
	case "void":
		return &VoidType{}, nil
	case "ptr":
		return &PointerType{}, nil
	case "i1":
		return &IntType{Bits: 1}, nil
	case "i8":
		return &IntType{Bits: 8}, nil
	case "i16":
		return &IntType{Bits: 16}, nil
	case "i32":
		return &IntType{Bits: 32}, nil
	case "i64":
		return &IntType{Bits: 64}, nil
	default:
		return nil, fmt.Errorf("unknown type %q", name)
	}
}
