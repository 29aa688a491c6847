package instrument

import (
	"github.com/pkg/errors"

	"printflog/internal/ir"
)

// Rewriter duplicates calls to the target routine into guarded log calls
type Rewriter struct {
	session *Session
}

// guard loads the log handle and tests it against null at the builder's
// insertion point
func (r *Rewriter) guard(b *ir.Builder) (handle, enabled *ir.Value) {
	handle = b.CreateLoad(&ir.PointerType{}, r.session.LogHandle.Value, "logfile")
	enabled = b.CreateCompare(ir.PredicateNE, handle, ir.NewNull(), "logging")
	return handle, enabled
}

func prepend(handle *ir.Value, args []*ir.Value) []*ir.Value {
	out := make([]*ir.Value, 0, len(args)+1)
	out = append(out, handle)
	return append(out, args...)
}

// RewriteOrdinary guards a log call right after an ordinary call:
//
//	head:  call printf(args); h = load handle; br h != null, then, tail
//	then:  call fprintf(h, args); jmp tail
//	tail:  <continuation>
//
// It returns the cursor where scanning resumes: the start of the tail.
func (r *Rewriter) RewriteOrdinary(site CallSite) (Cursor, error) {
	call, ok := site.Call.(*ir.CallInstruction)
	if !ok || site.Kind != OrdinaryCall {
		return Cursor{}, invariantf("ordinary rewrite of a %s call", site.Kind)
	}
	if err := r.session.Processed.Record(call); err != nil {
		return Cursor{}, err
	}

	continuation := call.Block.Next(call)
	if continuation == nil {
		return Cursor{}, invariantf("call %d has no continuation", call.ID)
	}

	b := r.session.Builder
	if err := b.SetInsertBefore(continuation); err != nil {
		return Cursor{}, errors.Wrap(err, "positioning the log guard")
	}
	handle, enabled := r.guard(b)

	then, err := ir.SplitBlockAndInsertIfThen(enabled, continuation)
	if err != nil {
		return Cursor{}, errors.Wrap(err, "splitting after the call")
	}

	fprintf, err := r.session.Registry.Get(LogRoutine)
	if err != nil {
		return Cursor{}, err
	}
	if err := b.SetInsertBefore(then.Terminator); err != nil {
		return Cursor{}, err
	}
	b.CreateCall(returnType(fprintf), fprintf, prepend(handle, call.Args), "logged")

	tail := continuation.GetBlock()
	return Cursor{Block: site.Function.BlockIndex(tail), Index: 0}, nil
}

// RewriteTerminator handles a call that ends its block. The block becomes
// a diamond:
//
//	head:  h = load handle; br h != null, then, else
//	then:  d = call printf(args); invoke fprintf(h, args) to normal unwind unwind
//	else:  invoke printf(args) to normal unwind unwind
//
// When the result of the call is used, a phi merging d and the original
// result is placed at the head of the normal destination. The function must
// be rescanned from the start afterwards.
func (r *Rewriter) RewriteTerminator(site CallSite) error {
	invoke, ok := site.Call.(*ir.InvokeTerminator)
	if !ok || site.Kind != TerminatorCall {
		return invariantf("terminator rewrite of a %s call", site.Kind)
	}
	if err := r.session.Processed.Record(invoke); err != nil {
		return err
	}
	fn := site.Function
	head := invoke.Block
	normal, unwind := invoke.Normal, invoke.Unwind

	b := r.session.Builder
	b.SetInsertPoint(head)
	handle, enabled := r.guard(b)

	then, els, err := ir.SplitBlockAndInsertIfThenElse(enabled, invoke)
	if err != nil {
		return errors.Wrap(err, "splitting before the invoke")
	}
	tail := invoke.Block

	// the original call keeps its destinations on the disabled path
	if err := ir.MoveTerminator(tail, els); err != nil {
		return err
	}

	then.Terminator = nil
	b.SetInsertPoint(then)
	dup := b.CreateCall(returnType(invoke.Callee), invoke.Callee, invoke.Args, "printed")
	if err := r.session.Processed.Record(dup); err != nil {
		return err
	}
	fprintf, err := r.session.Registry.Get(LogRoutine)
	if err != nil {
		return err
	}
	if _, err := b.CreateInvoke(returnType(fprintf), fprintf, prepend(handle, invoke.Args), normal, unwind, "logged"); err != nil {
		return err
	}

	override := map[*ir.Value]*ir.Value{}
	if invoke.Result != nil && dup.Result != nil {
		override[invoke.Result] = dup.Result
	}
	ir.DuplicatePhiIncoming(normal, els, then, override)
	if unwind != normal {
		ir.DuplicatePhiIncoming(unwind, els, then, nil)
	}

	if err := fn.EraseBlock(tail); err != nil {
		return errors.Wrap(err, "erasing the merge block")
	}
	fn.RebuildCFG()

	if invoke.Result != nil && dup.Result != nil {
		r.mergeResult(fn, invoke.Result, dup.Result, then, els, normal)
	}
	return nil
}

// mergeResult redirects the uses of the original call result to a phi
// choosing between the duplicate and the original at the normal destination
func (r *Rewriter) mergeResult(fn *ir.Function, original, duplicate *ir.Value, then, els, normal *ir.BasicBlock) {
	existing := normal.Phis()
	except := make([]ir.Instruction, 0, len(existing)+1)
	for _, phi := range existing {
		except = append(except, phi)
	}

	users := 0
	for _, user := range fn.Uses(original) {
		if phi, ok := user.(*ir.PhiInstruction); !ok || phi.Block != normal {
			users++
		}
	}
	if users == 0 {
		return
	}

	b := r.session.Builder
	b.SetInsertPoint(normal)
	merge := b.CreatePhi(original.Type, nil, original.Name+".merged")
	for _, pred := range normal.Predecessors {
		switch pred {
		case then:
			merge.Incoming = append(merge.Incoming, ir.PhiIncoming{Block: pred, Value: duplicate})
		case els:
			merge.Incoming = append(merge.Incoming, ir.PhiIncoming{Block: pred, Value: original})
		default:
			merge.Incoming = append(merge.Incoming, ir.PhiIncoming{Block: pred, Value: merge.Result})
		}
	}
	except = append(except, merge)
	fn.ReplaceAllUsesWith(original, merge.Result, except...)
}
