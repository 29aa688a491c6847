package ir

import (
	"testing"
)

// ============================================================================
// Builder Basic Tests
// ============================================================================

func newTestFunction(t *testing.T) (*Program, *Function, *Value) {
	t.Helper()
	program := NewProgram("test")
	printf := program.Declare("printf", &FunctionType{Return: &IntType{Bits: 32}, Params: []Type{&PointerType{}}, Variadic: true})
	fn, err := program.AddFunction("main", &FunctionType{Return: &IntType{Bits: 32}})
	if err != nil {
		t.Fatalf("AddFunction failed: %v", err)
	}
	return program, fn, printf
}

func TestNewBuilder(t *testing.T) {
	program := NewProgram("test")
	builder := NewBuilder(program)

	if builder == nil {
		t.Fatal("NewBuilder should not return nil")
	}
	if builder.Program() != program {
		t.Error("Builder program not set correctly")
	}
	if builder.Block() != nil {
		t.Error("Builder should start without an insertion block")
	}
}

func TestBuilderAppendsInOrder(t *testing.T) {
	program, fn, printf := newTestFunction(t)
	b := NewBuilder(program)
	b.SetInsertPoint(fn.NewBlock("entry"))

	call := b.CreateCall(&IntType{Bits: 32}, printf, []*Value{NewString("Hi!\n")}, "r")
	if _, err := b.CreateReturn(NewInt(32, 0)); err != nil {
		t.Fatalf("CreateReturn failed: %v", err)
	}

	if fn.Entry.Label != "entry" {
		t.Errorf("Expected entry block, got %s", fn.Entry.Label)
	}
	if len(fn.Entry.Instructions) != 1 || fn.Entry.Instructions[0] != call {
		t.Fatalf("Expected the call as only instruction, got %d instructions", len(fn.Entry.Instructions))
	}
	if call.Result == nil || call.Result.Name != "r" {
		t.Error("Call result should be named r")
	}
	if call.Result.DefInst != call {
		t.Error("Call result should point back to its instruction")
	}
	if call.GetBlock() != fn.Entry {
		t.Error("Call should belong to the entry block")
	}
	if _, ok := fn.Entry.Terminator.(*ReturnTerminator); !ok {
		t.Error("Entry should end with a return")
	}
}

func TestBuilderSecondTerminatorFails(t *testing.T) {
	program, fn, _ := newTestFunction(t)
	b := NewBuilder(program)
	b.SetInsertPoint(fn.NewBlock("entry"))

	if _, err := b.CreateReturn(NewInt(32, 0)); err != nil {
		t.Fatalf("CreateReturn failed: %v", err)
	}
	if _, err := b.CreateUnreachable(); err == nil {
		t.Error("Expected an error when terminating a block twice")
	}
}

func TestBuilderInsertBefore(t *testing.T) {
	program, fn, printf := newTestFunction(t)
	b := NewBuilder(program)
	b.SetInsertPoint(fn.NewBlock("entry"))
	first := b.CreateCall(&IntType{Bits: 32}, printf, []*Value{NewString("a")}, "a")
	last := b.CreateCall(&IntType{Bits: 32}, printf, []*Value{NewString("b")}, "b")
	ret, _ := b.CreateReturn(NewInt(32, 0))

	if err := b.SetInsertBefore(last); err != nil {
		t.Fatalf("SetInsertBefore failed: %v", err)
	}
	x := b.CreateCall(&IntType{Bits: 32}, printf, []*Value{NewString("x")}, "x")
	y := b.CreateCall(&IntType{Bits: 32}, printf, []*Value{NewString("y")}, "y")

	want := []Instruction{first, x, y, last}
	if len(fn.Entry.Instructions) != len(want) {
		t.Fatalf("Expected %d instructions, got %d", len(want), len(fn.Entry.Instructions))
	}
	for i, inst := range want {
		if fn.Entry.Instructions[i] != inst {
			t.Errorf("Instruction %d out of order", i)
		}
	}

	// before a terminator means at the end of the block
	if err := b.SetInsertBefore(ret); err != nil {
		t.Fatalf("SetInsertBefore(ret) failed: %v", err)
	}
	z := b.CreateCall(&VoidType{}, printf, []*Value{NewString("z")}, "")
	if fn.Entry.Instructions[len(fn.Entry.Instructions)-1] != z {
		t.Error("Expected call before the terminator to be the last instruction")
	}
	if z.Result != nil {
		t.Error("Void call should have no result")
	}
}

func TestBuilderInsertAtStartSkipsPhis(t *testing.T) {
	program, fn, printf := newTestFunction(t)
	b := NewBuilder(program)
	entry := fn.NewBlock("entry")
	join := fn.NewBlock("join")

	b.SetInsertPoint(entry)
	_, _ = b.CreateJump(join)

	b.SetInsertPoint(join)
	call := b.CreateCall(&IntType{Bits: 32}, printf, []*Value{NewString("x")}, "x")
	phi := b.CreatePhi(&IntType{Bits: 32}, []PhiIncoming{{Block: entry, Value: NewInt(32, 1)}}, "p")
	_, _ = b.CreateReturn(phi.Result)

	if join.Instructions[0] != phi || join.Instructions[1] != call {
		t.Fatal("Phi should be placed at the head of the block")
	}

	b.SetInsertAtStart(join)
	head := b.CreateCall(&VoidType{}, printf, []*Value{NewString("head")}, "")
	if join.Instructions[1] != head {
		t.Error("Expected insertion right after the phi")
	}
	if join.FirstInsertionIndex() != 1 {
		t.Errorf("Expected first insertion index 1, got %d", join.FirstInsertionIndex())
	}
}

func TestFreshNames(t *testing.T) {
	program, fn, _ := newTestFunction(t)

	if got := fn.FreshName("r"); got != "r" {
		t.Errorf("Expected r, got %s", got)
	}
	if got := fn.FreshName("r"); got != "r.1" {
		t.Errorf("Expected r.1, got %s", got)
	}
	if got := fn.FreshName(""); got != "v" {
		t.Errorf("Expected v, got %s", got)
	}

	fn.NewBlock("then")
	if got := fn.NewBlock("then").Label; got != "then.1" {
		t.Errorf("Expected then.1, got %s", got)
	}

	if _, err := program.AddGlobal("msg", &PointerType{}, NewString("x")); err != nil {
		t.Fatalf("AddGlobal failed: %v", err)
	}
	if got := program.FreshGlobalName("msg"); got != "msg.1" {
		t.Errorf("Expected msg.1, got %s", got)
	}
	if _, err := program.AddGlobal("msg", &PointerType{}, NewNull()); err == nil {
		t.Error("Expected duplicate global to fail")
	}
}

func TestDeclareReturnsExistingSymbol(t *testing.T) {
	program, _, printf := newTestFunction(t)

	again := program.Declare("printf", &FunctionType{Return: &IntType{Bits: 32}, Params: []Type{&PointerType{}}, Variadic: true})
	if again != printf {
		t.Error("Declare should return the cached handle")
	}

	other := program.Declare("printf", &FunctionType{Return: &VoidType{}})
	if other != printf {
		t.Error("Declare with a different signature should keep the existing symbol")
	}
	if len(program.Declarations) != 1 {
		t.Errorf("Expected one declaration, got %d", len(program.Declarations))
	}
}

func TestCalleeNameStripsCasts(t *testing.T) {
	program, fn, printf := newTestFunction(t)
	b := NewBuilder(program)
	b.SetInsertPoint(fn.NewBlock("entry"))

	direct := b.CreateCall(&IntType{Bits: 32}, printf, nil, "")
	cast := b.CreateCall(&IntType{Bits: 32}, NewCast(NewCast(printf, &PointerType{}), &PointerType{}), nil, "")
	load := b.CreateLoad(&PointerType{}, NewNull(), "fp")
	indirect := b.CreateCall(&IntType{Bits: 32}, load, nil, "")

	if CalleeName(direct) != "printf" {
		t.Error("Direct call should resolve to printf")
	}
	if CalleeName(cast) != "printf" {
		t.Error("Cast call should resolve to printf")
	}
	if CalleeName(indirect) != "" {
		t.Error("Indirect call should not resolve")
	}
}
