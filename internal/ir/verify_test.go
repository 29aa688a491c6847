package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messages(errs VerifyErrors) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Message
	}
	return out
}

func TestVerifyDetectsMissingTerminator(t *testing.T) {
	program := mustParse(t, straightLine)
	fn := program.Function("main")
	fn.Entry.Terminator = nil

	errs := Verify(program)
	require.Len(t, errs, 1)
	assert.Equal(t, "block has no terminator", errs[0].Message)
	assert.Equal(t, "@main/entry: block has no terminator", errs[0].Error())
}

func TestVerifyDetectsPhiEdgeMismatch(t *testing.T) {
	program := mustParse(t, `program "p"
define i32 @f(i1 %c) {
entry:
  br %c, label %a, label %join
a:
  jmp label %join
join:
  %p = phi i32 [1, %entry], [0, %a]
  ret i32 %p
}
`)
	fn := program.Function("f")
	// a no longer reaches join
	fn.Block("a").Terminator = nil
	b := NewBuilder(program)
	b.SetInsertPoint(fn.Block("a"))
	_, err := b.CreateReturn(NewInt(32, 0))
	require.NoError(t, err)

	assert.Contains(t, messages(Verify(program)), "phi %p has incoming block a which is not a predecessor")
}

func TestVerifyDetectsForeignSuccessorAndEntryPreds(t *testing.T) {
	program := mustParse(t, straightLine)
	fn := program.Function("main")
	other, err := program.AddFunction("other", &FunctionType{Return: &VoidType{}})
	require.NoError(t, err)
	foreign := other.NewBlock("entry")

	loop := fn.NewBlock("loop")
	b := NewBuilder(program)
	b.SetInsertPoint(loop)
	_, err = b.CreateCondBranch(NewInt(1, 1), fn.Entry, foreign)
	require.NoError(t, err)

	msgs := messages(VerifyFunction(program, fn))
	assert.Contains(t, msgs, "successor does not belong to the function")
	assert.Contains(t, msgs, "entry block has predecessors")
}

func TestVerifyDetectsUndefinedOperandAndArity(t *testing.T) {
	program := mustParse(t, straightLine)
	fn := program.Function("main")
	call := fn.Entry.Instructions[0].(*CallInstruction)
	call.Args = nil

	stray := &Value{ID: 999, Name: "ghost", Kind: InstructionValue, Type: &IntType{Bits: 32}}
	fn.Entry.Terminator.(*ReturnTerminator).Value = stray

	msgs := messages(Verify(program))
	assert.Contains(t, msgs, "use of undefined value %ghost")
	assert.Contains(t, msgs, "call to @printf passes 0 arguments, signature i32 (ptr, ...)")
}

func TestVerifyPass(t *testing.T) {
	program := mustParse(t, straightLine)
	pass := &VerifyPass{}

	changed, err := pass.Apply(program)
	assert.False(t, changed)
	assert.NoError(t, err)

	program.Function("main").Entry.Terminator = nil
	_, err = pass.Apply(program)
	require.Error(t, err)
	var verr VerifyErrors
	assert.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "1 verification error(s)")
}
