package ir

import (
	"fmt"
)

// RebuildCFG recomputes predecessor and successor lists from the terminators
func (f *Function) RebuildCFG() {
	for _, block := range f.Blocks {
		block.Predecessors = []*BasicBlock{}
		block.Successors = []*BasicBlock{}
	}
	for _, block := range f.Blocks {
		if block.Terminator == nil {
			continue
		}
		for _, succ := range block.Terminator.GetSuccessors() {
			if succ == nil || containsBlock(block.Successors, succ) {
				continue
			}
			block.Successors = append(block.Successors, succ)
			succ.Predecessors = append(succ.Predecessors, block)
		}
	}
}

func containsBlock(blocks []*BasicBlock, block *BasicBlock) bool {
	for _, b := range blocks {
		if b == block {
			return true
		}
	}
	return false
}

// insertBlockAfter moves block right after anchor in the function's block list
func (f *Function) insertBlockAfter(anchor, block *BasicBlock) {
	f.removeBlock(block)
	idx := f.BlockIndex(anchor)
	if idx < 0 {
		f.Blocks = append(f.Blocks, block)
		return
	}
	f.Blocks = append(f.Blocks, nil)
	copy(f.Blocks[idx+2:], f.Blocks[idx+1:])
	f.Blocks[idx+1] = block
}

func (f *Function) removeBlock(block *BasicBlock) {
	if idx := f.BlockIndex(block); idx >= 0 {
		f.Blocks = append(f.Blocks[:idx], f.Blocks[idx+1:]...)
	}
}

// EraseBlock removes an unreferenced block from the function
func (f *Function) EraseBlock(block *BasicBlock) error {
	if block == f.Entry {
		return fmt.Errorf("cannot erase entry block %s", block.Label)
	}
	for _, other := range f.Blocks {
		if other == block || other.Terminator == nil {
			continue
		}
		if containsBlock(other.Terminator.GetSuccessors(), block) {
			return fmt.Errorf("block %s is still a successor of %s", block.Label, other.Label)
		}
	}
	f.removeBlock(block)
	block.Parent = nil
	delete(f.labels, block.Label)
	return nil
}

// SplitBlock moves the instructions of block from position at onwards, and
// its terminator, into a new block placed right after it. The original block
// is left without a terminator. Phis in the successors are retargeted to
// the new block.
func (f *Function) SplitBlock(block *BasicBlock, at int, label string) (*BasicBlock, error) {
	if block.Parent != f {
		return nil, fmt.Errorf("block %s does not belong to function %s", block.Label, f.Name)
	}
	if at < 0 || at > len(block.Instructions) {
		return nil, fmt.Errorf("split position %d out of range in block %s", at, block.Label)
	}
	if at < block.FirstInsertionIndex() {
		return nil, fmt.Errorf("cannot split block %s inside its phis", block.Label)
	}

	tail := f.NewBlock(label)
	f.insertBlockAfter(block, tail)

	moved := make([]Instruction, len(block.Instructions)-at)
	copy(moved, block.Instructions[at:])
	block.Instructions = block.Instructions[:at:at]
	for _, inst := range moved {
		inst.SetBlock(tail)
	}
	tail.Instructions = moved

	term := block.Terminator
	block.Terminator = nil
	if term != nil {
		tail.SetTerminator(term)
		for _, succ := range term.GetSuccessors() {
			RetargetPhis(succ, block, tail)
		}
	}
	return tail, nil
}

// SplitBlockAndInsertIfThen splits the block of splitBefore right before it
// and makes the head branch on cond to a new then block, which continues to
// the tail. It returns the then block, terminated by a jump to the tail.
func SplitBlockAndInsertIfThen(cond *Value, splitBefore Instruction) (*BasicBlock, error) {
	head, tail, err := splitAt(splitBefore)
	if err != nil {
		return nil, err
	}
	f := head.Parent
	then := f.NewBlock("then")
	f.insertBlockAfter(head, then)

	b := NewBuilder(f.program)
	b.SetInsertPoint(then)
	if _, err := b.CreateJump(tail); err != nil {
		return nil, err
	}
	b.SetInsertPoint(head)
	if _, err := b.CreateCondBranch(cond, then, tail); err != nil {
		return nil, err
	}
	f.RebuildCFG()
	return then, nil
}

// SplitBlockAndInsertIfThenElse splits the block of splitBefore right before
// it into a diamond: the head branches on cond to a then and an else block,
// both jumping to the tail which starts with splitBefore.
func SplitBlockAndInsertIfThenElse(cond *Value, splitBefore Instruction) (then, els *BasicBlock, err error) {
	head, tail, err := splitAt(splitBefore)
	if err != nil {
		return nil, nil, err
	}
	f := head.Parent
	then = f.NewBlock("then")
	f.insertBlockAfter(head, then)
	els = f.NewBlock("else")
	f.insertBlockAfter(then, els)

	b := NewBuilder(f.program)
	b.SetInsertPoint(then)
	if _, err := b.CreateJump(tail); err != nil {
		return nil, nil, err
	}
	b.SetInsertPoint(els)
	if _, err := b.CreateJump(tail); err != nil {
		return nil, nil, err
	}
	b.SetInsertPoint(head)
	if _, err := b.CreateCondBranch(cond, then, els); err != nil {
		return nil, nil, err
	}
	f.RebuildCFG()
	return then, els, nil
}

func splitAt(splitBefore Instruction) (head, tail *BasicBlock, err error) {
	head = splitBefore.GetBlock()
	if head == nil || head.Parent == nil {
		return nil, nil, fmt.Errorf("instruction %d is not placed in a function", splitBefore.GetID())
	}
	at := len(head.Instructions)
	if !splitBefore.IsTerminator() {
		if at = head.IndexOf(splitBefore); at < 0 {
			return nil, nil, fmt.Errorf("instruction %d not found in block %s", splitBefore.GetID(), head.Label)
		}
	} else if head.Terminator != splitBefore {
		return nil, nil, fmt.Errorf("terminator %d does not end block %s", splitBefore.GetID(), head.Label)
	}
	tail, err = head.Parent.SplitBlock(head, at, "split")
	if err != nil {
		return nil, nil, err
	}
	return head, tail, nil
}

// MoveTerminator moves the terminator of from into to, replacing the
// terminator to currently has. Phis in the successors are retargeted.
func MoveTerminator(from, to *BasicBlock) error {
	term := from.Terminator
	if term == nil {
		return fmt.Errorf("block %s has no terminator to move", from.Label)
	}
	from.Terminator = nil
	to.SetTerminator(term)
	for _, succ := range term.GetSuccessors() {
		RetargetPhis(succ, from, to)
	}
	return nil
}

// RetargetPhis renames the incoming block old to new in the phis of block
func RetargetPhis(block, old, new *BasicBlock) {
	if block == nil {
		return
	}
	for _, phi := range block.Phis() {
		for i := range phi.Incoming {
			if phi.Incoming[i].Block == old {
				phi.Incoming[i].Block = new
			}
		}
	}
}

// DuplicatePhiIncoming adds an incoming edge from added to every phi of block
// that has one from existing, carrying the same value unless override maps it
func DuplicatePhiIncoming(block, existing, added *BasicBlock, override map[*Value]*Value) {
	if block == nil {
		return
	}
	for _, phi := range block.Phis() {
		value, ok := phi.ValueFrom(existing)
		if !ok {
			continue
		}
		if replacement, found := override[value]; found {
			value = replacement
		}
		phi.Incoming = append(phi.Incoming, PhiIncoming{Block: added, Value: value})
	}
}

// ReplaceAllUsesWith redirects every use of old in the function to new,
// skipping the instructions in except
func (f *Function) ReplaceAllUsesWith(old, new *Value, except ...Instruction) int {
	count := 0
	skip := make(map[Instruction]bool, len(except))
	for _, inst := range except {
		skip[inst] = true
	}
	for _, block := range f.Blocks {
		for _, inst := range block.Instructions {
			if !skip[inst] && inst.ReplaceOperand(old, new) {
				count++
			}
		}
		if block.Terminator != nil && !skip[block.Terminator] && block.Terminator.ReplaceOperand(old, new) {
			count++
		}
	}
	return count
}

// Uses returns the instructions of the function that read v
func (f *Function) Uses(v *Value) []Instruction {
	var users []Instruction
	for _, block := range f.Blocks {
		for _, inst := range block.Instructions {
			if usesValue(inst, v) {
				users = append(users, inst)
			}
		}
		if block.Terminator != nil && usesValue(block.Terminator, v) {
			users = append(users, block.Terminator)
		}
	}
	return users
}

func usesValue(inst Instruction, v *Value) bool {
	for _, op := range inst.GetOperands() {
		if op == v {
			return true
		}
	}
	return false
}
