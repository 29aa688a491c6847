package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jump(t *testing.T, program *Program, from, to *BasicBlock) {
	t.Helper()
	b := NewBuilder(program)
	b.SetInsertPoint(from)
	_, err := b.CreateJump(to)
	require.NoError(t, err)
}

func mustParse(t *testing.T, source string) *Program {
	t.Helper()
	program, err := ParseProgram("test.pir", source)
	require.NoError(t, err)
	require.Empty(t, Verify(program))
	return program
}

const straightLine = `program "s"
declare i32 @printf(ptr, ...)
global @h: ptr = null
define i32 @main() {
entry:
  %r = call i32 @printf("Hi!\n")
  %s = add %r, 1
  ret i32 %s
}
`

func TestSplitBlockAndInsertIfThen(t *testing.T) {
	program := mustParse(t, straightLine)
	fn := program.Function("main")
	entry := fn.Entry
	call := entry.Instructions[0]
	add := entry.Instructions[1]

	b := NewBuilder(program)
	require.NoError(t, b.SetInsertBefore(add))
	handle := b.CreateLoad(&PointerType{}, program.Global("h").Value, "h")
	cond := b.CreateCompare(PredicateNE, handle, NewNull(), "on")

	then, err := SplitBlockAndInsertIfThen(cond, add)
	require.NoError(t, err)

	require.Len(t, fn.Blocks, 3)
	assert.Equal(t, []string{"entry", "then", "split"}, []string{fn.Blocks[0].Label, fn.Blocks[1].Label, fn.Blocks[2].Label})
	tail := fn.Blocks[2]

	assert.Equal(t, []Instruction{call, handle.DefInst, cond.DefInst}, entry.Instructions)
	br, ok := entry.Terminator.(*BranchTerminator)
	require.True(t, ok)
	assert.Equal(t, then, br.TrueBlock)
	assert.Equal(t, tail, br.FalseBlock)

	jmp, ok := then.Terminator.(*JumpTerminator)
	require.True(t, ok)
	assert.Equal(t, tail, jmp.Target)

	assert.Equal(t, []Instruction{add}, tail.Instructions)
	assert.Equal(t, tail, add.GetBlock())
	assert.IsType(t, &ReturnTerminator{}, tail.Terminator)
	assert.ElementsMatch(t, []*BasicBlock{entry, then}, tail.Predecessors)

	assert.Empty(t, Verify(program))
}

func TestSplitBlockRetargetsSuccessorPhis(t *testing.T) {
	program := mustParse(t, `program "p"
define i32 @f(i1 %c) {
entry:
  %x = add 1, 2
  br %c, label %a, label %join
a:
  jmp label %join
join:
  %p = phi i32 [%x, %entry], [0, %a]
  ret i32 %p
}
`)
	fn := program.Function("f")
	tail, err := fn.SplitBlock(fn.Entry, 1, "rest")
	require.NoError(t, err)
	jump(t, program, fn.Entry, tail)
	fn.RebuildCFG()

	phi := fn.Block("join").Phis()[0]
	v, ok := phi.ValueFrom(tail)
	require.True(t, ok)
	assert.Equal(t, "x", v.Name)
	_, ok = phi.ValueFrom(fn.Entry)
	assert.False(t, ok)

	assert.Empty(t, Verify(program))
}

func TestSplitBlockAndInsertIfThenElse(t *testing.T) {
	program := mustParse(t, `program "eh"
declare i32 @printf(ptr, ...)
define i32 @main() {
entry:
  %r = invoke i32 @printf("x") to label %cont unwind label %lpad
cont:
  ret i32 %r
lpad:
  resume
}
`)
	fn := program.Function("main")
	invoke := fn.Entry.Terminator

	then, els, err := SplitBlockAndInsertIfThenElse(NewInt(1, 1), invoke)
	require.NoError(t, err)

	labels := make([]string, len(fn.Blocks))
	for i, b := range fn.Blocks {
		labels[i] = b.Label
	}
	assert.Equal(t, []string{"entry", "then", "else", "split", "cont", "lpad"}, labels)

	tail := fn.Block("split")
	assert.Equal(t, invoke, tail.Terminator)
	assert.Equal(t, tail, invoke.GetBlock())
	assert.ElementsMatch(t, []*BasicBlock{then, els}, tail.Predecessors)
	assert.Equal(t, []*BasicBlock{tail}, fn.Block("cont").Predecessors)

	// move the invoke into else and drop the empty tail
	require.NoError(t, MoveTerminator(tail, els))
	assert.Equal(t, els, invoke.GetBlock())
	jump(t, program, tail, fn.Block("cont"))
	assert.Error(t, fn.EraseBlock(tail), "tail is still the target of then")

	then.Terminator = nil
	jump(t, program, then, fn.Block("cont"))
	require.NoError(t, fn.EraseBlock(tail))
	fn.RebuildCFG()

	assert.ElementsMatch(t, []*BasicBlock{then, els}, fn.Block("cont").Predecessors)
	assert.Equal(t, []*BasicBlock{els}, fn.Block("lpad").Predecessors)
	assert.Empty(t, Verify(program))
}

func TestEraseBlock(t *testing.T) {
	program := mustParse(t, straightLine)
	fn := program.Function("main")

	assert.Error(t, fn.EraseBlock(fn.Entry))

	orphan := fn.NewBlock("orphan")
	jump(t, program, orphan, fn.Block("entry"))
	require.NoError(t, fn.EraseBlock(orphan))
	assert.Nil(t, fn.Block("orphan"))
	assert.Equal(t, "orphan", fn.NewBlock("orphan").Label, "label is free again")
}

func TestReplaceAllUsesWith(t *testing.T) {
	program := mustParse(t, straightLine)
	fn := program.Function("main")
	call := fn.Entry.Instructions[0].(*CallInstruction)
	add := fn.Entry.Instructions[1].(*BinaryInstruction)

	replacement := NewInt(32, 7)
	n := fn.ReplaceAllUsesWith(call.Result, replacement)
	assert.Equal(t, 1, n)
	assert.Equal(t, replacement, add.Left)
	assert.Empty(t, fn.Uses(call.Result))
	assert.Equal(t, []Instruction{fn.Entry.Terminator}, fn.Uses(add.Result))

	// excluded instructions keep their operand
	n = fn.ReplaceAllUsesWith(add.Result, replacement, fn.Entry.Terminator)
	assert.Equal(t, 0, n)
}
