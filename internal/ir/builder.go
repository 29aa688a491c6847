package ir

import (
	"fmt"
)

// Builder creates instructions at an insertion point.
// The insertion point is a block plus a position in its instruction list;
// a position of -1 appends after the last non-terminator instruction.
type Builder struct {
	program *Program
	block   *BasicBlock
	index   int
}

// NewBuilder creates a new IR builder for a program
func NewBuilder(program *Program) *Builder {
	return &Builder{
		program: program,
		index:   -1,
	}
}

// Program returns the program being built
func (b *Builder) Program() *Program {
	return b.program
}

// Block returns the current insertion block
func (b *Builder) Block() *BasicBlock {
	return b.block
}

// SetInsertPoint appends subsequent instructions to the end of block (before its terminator)
func (b *Builder) SetInsertPoint(block *BasicBlock) {
	b.block = block
	b.index = -1
}

// SetInsertBefore inserts subsequent instructions right before inst. When
// inst is a terminator this is the end of its block.
func (b *Builder) SetInsertBefore(inst Instruction) error {
	block := inst.GetBlock()
	if block == nil {
		return fmt.Errorf("instruction %d has no parent block", inst.GetID())
	}
	if inst.IsTerminator() {
		b.SetInsertPoint(block)
		return nil
	}
	idx := block.IndexOf(inst)
	if idx < 0 {
		return fmt.Errorf("instruction %d not found in block %s", inst.GetID(), block.Label)
	}
	b.block = block
	b.index = idx
	return nil
}

// SetInsertAtStart inserts subsequent instructions at the first insertion point of block (after phis)
func (b *Builder) SetInsertAtStart(block *BasicBlock) {
	b.block = block
	b.index = block.FirstInsertionIndex()
}

func (b *Builder) insert(inst Instruction) {
	inst.SetBlock(b.block)
	if b.index < 0 || b.index >= len(b.block.Instructions) {
		b.block.Instructions = append(b.block.Instructions, inst)
		b.index = -1
		return
	}
	b.block.Instructions = append(b.block.Instructions, nil)
	copy(b.block.Instructions[b.index+1:], b.block.Instructions[b.index:])
	b.block.Instructions[b.index] = inst
	b.index++
}

func (b *Builder) setTerminator(term Terminator) error {
	if b.block.Terminator != nil {
		return fmt.Errorf("block %s already has a terminator", b.block.Label)
	}
	b.block.SetTerminator(term)
	return nil
}

// createValue creates a new SSA value with a unique name in the current function
func (b *Builder) createValue(name string, typ Type) *Value {
	return &Value{
		ID:   b.program.nextID(),
		Name: b.block.Parent.FreshName(name),
		Kind: InstructionValue,
		Type: typ,
	}
}

// CreateCall emits an ordinary call. Calls returning void have no result.
func (b *Builder) CreateCall(ret Type, callee *Value, args []*Value, name string) *CallInstruction {
	inst := &CallInstruction{
		ID:     b.program.nextID(),
		Callee: callee,
		Args:   args,
	}
	b.insert(inst)
	if !IsVoid(ret) {
		inst.Result = b.createValue(name, ret)
		inst.Result.DefInst = inst
	}
	return inst
}

// CreateInvoke terminates the current block with a call that continues at
// normal on return and at unwind when the callee raises
func (b *Builder) CreateInvoke(ret Type, callee *Value, args []*Value, normal, unwind *BasicBlock, name string) (*InvokeTerminator, error) {
	inst := &InvokeTerminator{
		ID:     b.program.nextID(),
		Callee: callee,
		Args:   args,
		Normal: normal,
		Unwind: unwind,
	}
	if err := b.setTerminator(inst); err != nil {
		return nil, err
	}
	if !IsVoid(ret) {
		inst.Result = b.createValue(name, ret)
		inst.Result.DefInst = inst
	}
	return inst, nil
}

// CreateLoad reads a value of type typ from address
func (b *Builder) CreateLoad(typ Type, address *Value, name string) *Value {
	inst := &LoadInstruction{
		ID:      b.program.nextID(),
		Address: address,
	}
	b.insert(inst)
	inst.Result = b.createValue(name, typ)
	inst.Result.DefInst = inst
	return inst.Result
}

// CreateStore writes value to address
func (b *Builder) CreateStore(value, address *Value) *StoreInstruction {
	inst := &StoreInstruction{
		ID:      b.program.nextID(),
		Address: address,
		Value:   value,
	}
	b.insert(inst)
	return inst
}

// CreateCompare emits a comparison producing an i1
func (b *Builder) CreateCompare(pred Predicate, left, right *Value, name string) *Value {
	inst := &CompareInstruction{
		ID:        b.program.nextID(),
		Predicate: pred,
		Left:      left,
		Right:     right,
	}
	b.insert(inst)
	inst.Result = b.createValue(name, &IntType{Bits: 1})
	inst.Result.DefInst = inst
	return inst.Result
}

// CreateBinary emits an arithmetic instruction
func (b *Builder) CreateBinary(op string, left, right *Value, name string) *Value {
	inst := &BinaryInstruction{
		ID:    b.program.nextID(),
		Op:    op,
		Left:  left,
		Right: right,
	}
	b.insert(inst)
	typ := left.Type
	if typ == nil {
		typ = &IntType{Bits: 64}
	}
	inst.Result = b.createValue(name, typ)
	inst.Result.DefInst = inst
	return inst.Result
}

// CreatePhi emits a phi at the head of the current block
func (b *Builder) CreatePhi(typ Type, incoming []PhiIncoming, name string) *PhiInstruction {
	inst := &PhiInstruction{
		ID:       b.program.nextID(),
		Incoming: incoming,
	}
	saved := b.index
	b.index = 0
	b.insert(inst)
	if saved >= 0 {
		b.index = saved + 1
	} else {
		b.index = -1
	}
	inst.Result = b.createValue(name, typ)
	inst.Result.DefInst = inst
	return inst
}

// CreateCondBranch terminates the current block with a two-way branch
func (b *Builder) CreateCondBranch(cond *Value, ifTrue, ifFalse *BasicBlock) (*BranchTerminator, error) {
	term := &BranchTerminator{
		ID:         b.program.nextID(),
		Condition:  cond,
		TrueBlock:  ifTrue,
		FalseBlock: ifFalse,
	}
	return term, b.setTerminator(term)
}

// CreateJump terminates the current block with an unconditional jump
func (b *Builder) CreateJump(target *BasicBlock) (*JumpTerminator, error) {
	term := &JumpTerminator{
		ID:     b.program.nextID(),
		Target: target,
	}
	return term, b.setTerminator(term)
}

// CreateReturn terminates the current block with a return; value may be nil
func (b *Builder) CreateReturn(value *Value) (*ReturnTerminator, error) {
	term := &ReturnTerminator{
		ID:    b.program.nextID(),
		Value: value,
	}
	return term, b.setTerminator(term)
}

// CreateResume terminates the current block by propagating the in-flight exception
func (b *Builder) CreateResume() (*ResumeTerminator, error) {
	term := &ResumeTerminator{ID: b.program.nextID()}
	return term, b.setTerminator(term)
}

// CreateUnreachable terminates the current block with an unreachable marker
func (b *Builder) CreateUnreachable() (*UnreachableTerminator, error) {
	term := &UnreachableTerminator{ID: b.program.nextID()}
	return term, b.setTerminator(term)
}
