package instrument

import (
	"fmt"

	"printflog/internal/ir"
)

// CallSiteKind tells the two shapes of call apart
type CallSiteKind int

const (
	// OrdinaryCall continues with the next instruction of its block
	OrdinaryCall CallSiteKind = iota
	// TerminatorCall ends its block with a normal and an unwind destination
	TerminatorCall
)

func (k CallSiteKind) String() string {
	if k == TerminatorCall {
		return "terminator"
	}
	return "ordinary"
}

// Cursor is a scan position: a block index and an instruction index within
// it. An index equal to the number of instructions points at the terminator.
type Cursor struct {
	Block int
	Index int
}

// CallSite is a view over one call to the target routine
type CallSite struct {
	Kind     CallSiteKind
	Call     ir.CallLike
	Function *ir.Function
	Block    *ir.BasicBlock
	Position Cursor

	// Continuation is the instruction executed after an ordinary call
	Continuation ir.Instruction

	// Normal and Unwind are the destinations of a terminator call
	Normal *ir.BasicBlock
	Unwind *ir.BasicBlock
}

// Args returns the arguments of the call
func (c CallSite) Args() []*ir.Value {
	return c.Call.GetArgs()
}

func (c CallSite) String() string {
	return fmt.Sprintf("%s call in @%s/%s: %s", c.Kind, c.Function.Name, c.Block.Label, ir.InstructionString(c.Call))
}

// ProcessedSet holds the call instructions already rewritten or created
// by the rewriter
type ProcessedSet struct {
	seen map[ir.Instruction]struct{}
}

// NewProcessedSet creates an empty set
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{seen: make(map[ir.Instruction]struct{})}
}

// Record adds inst to the set. Recording an instruction twice is an engine defect.
func (p *ProcessedSet) Record(inst ir.Instruction) error {
	if _, ok := p.seen[inst]; ok {
		return invariantf("instruction %d recorded twice", inst.GetID())
	}
	p.seen[inst] = struct{}{}
	return nil
}

// Contains reports whether inst was recorded
func (p *ProcessedSet) Contains(inst ir.Instruction) bool {
	_, ok := p.seen[inst]
	return ok
}

// Len returns the number of recorded instructions
func (p *ProcessedSet) Len() int {
	return len(p.seen)
}

// Classifier finds unprocessed calls to the target routine
type Classifier struct {
	target    string
	processed *ProcessedSet
}

// NewClassifier creates a classifier looking for calls to target
func NewClassifier(target string, processed *ProcessedSet) *Classifier {
	return &Classifier{target: target, processed: processed}
}

// Scan walks fn in program order from the cursor and returns the first
// unprocessed call to the target routine. Generated functions are skipped.
func (c *Classifier) Scan(fn *ir.Function, from Cursor) (CallSite, bool) {
	if IsReserved(fn.Name) {
		return CallSite{}, false
	}
	for bi := from.Block; bi < len(fn.Blocks); bi++ {
		block := fn.Blocks[bi]
		start := 0
		if bi == from.Block {
			start = from.Index
		}
		for ii := start; ii < len(block.Instructions); ii++ {
			if site, ok := c.match(fn, block, block.Instructions[ii], Cursor{Block: bi, Index: ii}); ok {
				return site, true
			}
		}
		if block.Terminator != nil && start <= len(block.Instructions) {
			if site, ok := c.match(fn, block, block.Terminator, Cursor{Block: bi, Index: len(block.Instructions)}); ok {
				return site, true
			}
		}
	}
	return CallSite{}, false
}

// ScanAll returns every unprocessed call to the target routine in fn
func (c *Classifier) ScanAll(fn *ir.Function) []CallSite {
	var sites []CallSite
	cursor := Cursor{}
	for {
		site, ok := c.Scan(fn, cursor)
		if !ok {
			return sites
		}
		sites = append(sites, site)
		cursor = Cursor{Block: site.Position.Block, Index: site.Position.Index + 1}
	}
}

func (c *Classifier) match(fn *ir.Function, block *ir.BasicBlock, inst ir.Instruction, at Cursor) (CallSite, bool) {
	call, ok := inst.(ir.CallLike)
	if !ok || ir.CalleeName(call) != c.target || c.processed.Contains(inst) {
		return CallSite{}, false
	}
	site := CallSite{
		Call:     call,
		Function: fn,
		Block:    block,
		Position: at,
	}
	if invoke, ok := inst.(*ir.InvokeTerminator); ok {
		site.Kind = TerminatorCall
		site.Normal = invoke.Normal
		site.Unwind = invoke.Unwind
	} else {
		site.Kind = OrdinaryCall
		site.Continuation = block.Next(inst)
	}
	return site, true
}
