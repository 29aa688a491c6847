package ir

import (
	"fmt"
	"strings"
)

// VerifyError describes one structural problem found in a function
type VerifyError struct {
	Function string
	Block    string
	Message  string
}

func (e *VerifyError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("@%s: %s", e.Function, e.Message)
	}
	return fmt.Sprintf("@%s/%s: %s", e.Function, e.Block, e.Message)
}

// VerifyErrors is the list of problems found in a program
type VerifyErrors []*VerifyError

func (errs VerifyErrors) Error() string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = err.Error()
	}
	return fmt.Sprintf("%d verification error(s):\n  %s", len(errs), strings.Join(lines, "\n  "))
}

// Verify checks the structural invariants of every function in the program
func Verify(program *Program) VerifyErrors {
	var errs VerifyErrors
	for _, fn := range program.Functions {
		errs = append(errs, VerifyFunction(program, fn)...)
	}
	return errs
}

type verifier struct {
	program *Program
	fn      *Function
	errs    VerifyErrors
}

func (v *verifier) report(block *BasicBlock, format string, args ...interface{}) {
	label := ""
	if block != nil {
		label = block.Label
	}
	v.errs = append(v.errs, &VerifyError{Function: v.fn.Name, Block: label, Message: fmt.Sprintf(format, args...)})
}

// VerifyFunction checks a single function
func VerifyFunction(program *Program, fn *Function) VerifyErrors {
	v := &verifier{program: program, fn: fn}

	if len(fn.Blocks) == 0 {
		v.report(nil, "function has no blocks")
		return v.errs
	}
	if fn.Entry != fn.Blocks[0] {
		v.report(nil, "entry block is not the first block")
	}

	members := make(map[*BasicBlock]bool, len(fn.Blocks))
	labels := make(map[string]bool, len(fn.Blocks))
	for _, block := range fn.Blocks {
		members[block] = true
		if labels[block.Label] {
			v.report(block, "duplicate block label")
		}
		labels[block.Label] = true
	}

	preds := make(map[*BasicBlock]map[*BasicBlock]bool, len(fn.Blocks))
	for _, block := range fn.Blocks {
		if block.Terminator == nil {
			v.report(block, "block has no terminator")
			continue
		}
		for _, succ := range block.Terminator.GetSuccessors() {
			if succ == nil || !members[succ] {
				v.report(block, "successor does not belong to the function")
				continue
			}
			if preds[succ] == nil {
				preds[succ] = make(map[*BasicBlock]bool)
			}
			preds[succ][block] = true
		}
	}
	if len(preds[fn.Entry]) > 0 {
		v.report(fn.Entry, "entry block has predecessors")
	}

	defined := make(map[*Value]bool)
	names := make(map[string]bool)
	for _, param := range fn.Params {
		defined[param.Value] = true
		names[param.Value.Name] = true
	}
	define := func(block *BasicBlock, result *Value) {
		if result == nil {
			return
		}
		if names[result.Name] {
			v.report(block, "value %%%s is defined more than once", result.Name)
		}
		names[result.Name] = true
		defined[result] = true
	}
	for _, block := range fn.Blocks {
		for _, inst := range block.Instructions {
			define(block, inst.GetResult())
		}
		if block.Terminator != nil {
			define(block, block.Terminator.GetResult())
		}
	}

	for _, block := range fn.Blocks {
		v.checkBlock(block, preds[block], defined)
	}
	return v.errs
}

func (v *verifier) checkBlock(block *BasicBlock, preds map[*BasicBlock]bool, defined map[*Value]bool) {
	if block.Parent != v.fn {
		v.report(block, "block parent is not the function")
	}

	inPhis := true
	for _, inst := range block.Instructions {
		if inst.IsTerminator() {
			v.report(block, "terminator found among the block instructions")
		}
		phi, isPhi := inst.(*PhiInstruction)
		if isPhi && !inPhis {
			v.report(block, "phi %%%s is not at the head of the block", phi.Result.Name)
		}
		if !isPhi {
			inPhis = false
		}
		if isPhi {
			v.checkPhi(block, phi, preds)
		}
		v.checkInstruction(block, inst, defined)
	}
	if block.Terminator != nil {
		v.checkInstruction(block, block.Terminator, defined)
	}
}

func (v *verifier) checkPhi(block *BasicBlock, phi *PhiInstruction, preds map[*BasicBlock]bool) {
	seen := make(map[*BasicBlock]bool, len(phi.Incoming))
	for _, in := range phi.Incoming {
		if !preds[in.Block] {
			v.report(block, "phi %%%s has incoming block %s which is not a predecessor", phi.Result.Name, in.Block.Label)
		}
		if seen[in.Block] {
			v.report(block, "phi %%%s has two entries for block %s", phi.Result.Name, in.Block.Label)
		}
		seen[in.Block] = true
	}
	for pred := range preds {
		if !seen[pred] {
			v.report(block, "phi %%%s has no entry for predecessor %s", phi.Result.Name, pred.Label)
		}
	}
}

func (v *verifier) checkInstruction(block *BasicBlock, inst Instruction, defined map[*Value]bool) {
	if inst.GetBlock() != block {
		v.report(block, "instruction %d has a stale parent block", inst.GetID())
	}
	for _, op := range inst.GetOperands() {
		v.checkOperand(block, op, defined)
	}
	if call, ok := inst.(CallLike); ok {
		v.checkCall(block, call)
	}
}

func (v *verifier) checkOperand(block *BasicBlock, op *Value, defined map[*Value]bool) {
	if op == nil {
		v.report(block, "nil operand")
		return
	}
	base := op.StripCasts()
	if base == nil {
		v.report(block, "cast without operand")
		return
	}
	switch base.Kind {
	case InstructionValue, ParameterValue:
		if !defined[base] {
			v.report(block, "use of undefined value %%%s", base.Name)
		}
	case GlobalValue, FunctionValue:
		if v.program.Lookup(base.Name) != base {
			v.report(block, "use of unknown symbol @%s", base.Name)
		}
	}
}

func (v *verifier) checkCall(block *BasicBlock, call CallLike) {
	callee := call.GetCallee().StripCasts()
	if callee == nil || callee.Kind != FunctionValue {
		return
	}
	sig, ok := callee.Type.(*FunctionType)
	if !ok {
		return
	}
	got, want := len(call.GetArgs()), len(sig.Params)
	if got < want || (!sig.Variadic && got > want) {
		v.report(block, "call to @%s passes %d arguments, signature %s", callee.Name, got, sig)
	}
}

// VerifyPass runs the verifier as a pipeline step
type VerifyPass struct{}

func (vp *VerifyPass) Name() string {
	return "Verify"
}

func (vp *VerifyPass) Description() string {
	return "Checks block termination, CFG membership, phi edges and value definitions"
}

func (vp *VerifyPass) Apply(program *Program) (bool, error) {
	if errs := Verify(program); len(errs) > 0 {
		return false, errs
	}
	return false, nil
}
