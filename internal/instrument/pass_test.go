package instrument

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printflog/internal/interp"
	"printflog/internal/ir"
)

const hello = `program "hello"
declare i32 @printf(ptr, ...)
define i32 @main() {
entry:
  %r = call i32 @printf("Hi!\n")
  ret i32 0
}
`

const invokeHello = `program "invoke"
declare i32 @printf(ptr, ...)
define i32 @main() {
entry:
  %r = invoke i32 @printf("Hi!\n") to label %ok unwind label %lpad
ok:
  ret i32 %r
lpad:
  ret i32 99
}
`

func instrument(t *testing.T, source string) (*ir.Program, *Pass) {
	t.Helper()
	program, err := ir.ParseProgram("test.pir", source)
	require.NoError(t, err)

	pass := NewPass()
	pass.Diagnostics = &bytes.Buffer{}
	_, err = pass.Run(program)
	require.NoError(t, err)
	require.Empty(t, ir.Verify(program), ir.Print(program))
	return program, pass
}

type execution struct {
	status  int64
	stdout  string
	fs      *interp.MemoryFileSystem
	machine *interp.Machine
}

// execute runs main with the log file either writable or unavailable
func execute(t *testing.T, program *ir.Program, logging bool, raise ...string) execution {
	t.Helper()
	fs := interp.NewMemoryFileSystem()
	if !logging {
		fs.Unavailable[LogPath] = true
	}
	raises := map[string]bool{}
	for _, name := range raise {
		raises[name] = true
	}
	var out bytes.Buffer
	m := interp.New(program, interp.Options{Stdout: &out, FS: fs, Raise: raises})
	status, err := m.Run()
	require.NoError(t, err)
	return execution{status: status, stdout: out.String(), fs: fs, machine: m}
}

func TestOrdinaryCallIsDuplicated(t *testing.T) {
	program, pass := instrument(t, hello)
	main := program.Function("main")
	report := pass.Report()

	assert.Equal(t, 1, report.OrdinaryRewrites)
	assert.Equal(t, 0, report.TerminatorRewrites)
	assert.Equal(t, 1, report.ReturnsInstrumented)
	assert.Equal(t, 1, report.FunctionsScanned)
	assert.Equal(t, []string{"entry", "then", "split"}, labels(main))

	entry := main.Entry
	assert.Equal(t, OpenLogName, calleeOf(t, entry.Instructions[0]))
	assert.Equal(t, TargetRoutine, calleeOf(t, entry.Instructions[1]))
	load := entry.Instructions[2].(*ir.LoadInstruction)
	assert.Same(t, pass.Session().LogHandle.Value, load.Address)
	br := entry.Terminator.(*ir.BranchTerminator)
	assert.Same(t, main.Blocks[1], br.TrueBlock)
	assert.Same(t, main.Blocks[2], br.FalseBlock)

	then := main.Blocks[1]
	require.Len(t, then.Instructions, 1)
	logged := then.Instructions[0].(*ir.CallInstruction)
	assert.Equal(t, LogRoutine, ir.CalleeName(logged))
	require.Len(t, logged.Args, 2)
	assert.Same(t, load.Result, logged.Args[0])
	assert.Equal(t, "Hi!\n", logged.Args[1].Data)
	assert.IsType(t, &ir.JumpTerminator{}, then.Terminator)

	split := main.Blocks[2]
	require.Len(t, split.Instructions, 1)
	assert.Equal(t, CloseLogName, calleeOf(t, split.Instructions[0]))
	assert.IsType(t, &ir.ReturnTerminator{}, split.Terminator)
}

func TestOrdinaryCallBehaviour(t *testing.T) {
	program, _ := instrument(t, hello)

	run := execute(t, program, true)
	assert.Equal(t, int64(0), run.status)
	assert.Equal(t, "Hi!\n", run.stdout)
	assert.Equal(t, "Hi!\n", run.fs.Contents(LogPath))
	assert.Equal(t, 0, run.fs.OpenCount(LogPath))
	assert.Equal(t, 1, run.machine.CallCount(OpenRoutine))
	assert.Equal(t, 1, run.machine.CallCount(CloseRoutine))

	run = execute(t, program, false)
	assert.Equal(t, int64(0), run.status)
	assert.Equal(t, FailureMessage+"Hi!\n", run.stdout)
	assert.False(t, run.fs.Exists(LogPath))
	assert.Equal(t, 0, run.machine.CallCount(LogRoutine))
	assert.Equal(t, 0, run.machine.CallCount(CloseRoutine))
}

func TestTerminatorCallIsDuplicated(t *testing.T) {
	program, err := ir.ParseProgram("invoke.pir", invokeHello)
	require.NoError(t, err)
	original := program.Function("main").Entry.Terminator.(*ir.InvokeTerminator)

	pass := NewPass()
	_, err = pass.Run(program)
	require.NoError(t, err)
	require.Empty(t, ir.Verify(program), ir.Print(program))

	main := program.Function("main")
	assert.Equal(t, 1, pass.Report().TerminatorRewrites)
	assert.Equal(t, 2, pass.Report().ReturnsInstrumented)
	assert.Equal(t, []string{"entry", "then", "else", "ok", "lpad"}, labels(main))

	then, els := main.Blocks[1], main.Blocks[2]
	ok, lpad := main.Block("ok"), main.Block("lpad")

	require.Len(t, then.Instructions, 1)
	printed := then.Instructions[0].(*ir.CallInstruction)
	assert.Equal(t, TargetRoutine, ir.CalleeName(printed))
	assert.True(t, pass.Session().Processed.Contains(printed))

	logged := then.Terminator.(*ir.InvokeTerminator)
	assert.Equal(t, LogRoutine, ir.CalleeName(logged))
	assert.Same(t, ok, logged.Normal)
	assert.Same(t, lpad, logged.Unwind)

	assert.Empty(t, els.Instructions)
	assert.Same(t, original, els.Terminator)
	assert.Same(t, ok, original.Normal)
	assert.Same(t, lpad, original.Unwind)
	assert.True(t, pass.Session().Processed.Contains(original))

	// the used result is merged at the normal destination
	phis := ok.Phis()
	require.Len(t, phis, 1)
	merged := phis[0]
	fromThen, found := merged.ValueFrom(then)
	require.True(t, found)
	assert.Same(t, printed.Result, fromThen)
	fromElse, found := merged.ValueFrom(els)
	require.True(t, found)
	assert.Same(t, original.Result, fromElse)
	ret := ok.Terminator.(*ir.ReturnTerminator)
	assert.Same(t, merged.Result, ret.Value)

	assert.Equal(t, CloseLogName, calleeOf(t, ok.Instructions[len(ok.Instructions)-1]))
	assert.Equal(t, CloseLogName, calleeOf(t, lpad.Instructions[len(lpad.Instructions)-1]))
}

func TestTerminatorCallBehaviour(t *testing.T) {
	program, _ := instrument(t, invokeHello)

	run := execute(t, program, true)
	assert.Equal(t, int64(4), run.status)
	assert.Equal(t, "Hi!\n", run.stdout)
	assert.Equal(t, "Hi!\n", run.fs.Contents(LogPath))
	assert.Equal(t, 0, run.fs.OpenCount(LogPath))

	run = execute(t, program, false)
	assert.Equal(t, int64(4), run.status)
	assert.Equal(t, FailureMessage+"Hi!\n", run.stdout)
	assert.Equal(t, 0, run.machine.CallCount(LogRoutine))
}

func TestTerminatorCallUnwindsThroughTheLogCall(t *testing.T) {
	program, _ := instrument(t, invokeHello)

	run := execute(t, program, true, LogRoutine)
	assert.Equal(t, int64(99), run.status)
	assert.Equal(t, "Hi!\n", run.stdout)
	assert.Empty(t, run.fs.Contents(LogPath))
	assert.Equal(t, 0, run.fs.OpenCount(LogPath))
}

func TestTerminatorCallFeedingAPhi(t *testing.T) {
	program, pass := instrument(t, `program "join"
declare i32 @printf(ptr, ...)
define i32 @main() {
entry:
  br 1, label %a, label %b
a:
  %r = invoke i32 @printf("a\n") to label %join unwind label %lpad
b:
  jmp label %join
join:
  %v = phi i32 [%r, %a], [7, %b]
  ret i32 %v
lpad:
  ret i32 99
}
`)
	main := program.Function("main")
	join := main.Block("join")
	phis := join.Phis()
	require.Len(t, phis, 1)
	assert.Len(t, phis[0].Incoming, 3)

	printed := main.Block("then").Instructions[0].(*ir.CallInstruction)
	fromThen, found := phis[0].ValueFrom(main.Block("then"))
	require.True(t, found)
	assert.Same(t, printed.Result, fromThen)
	assert.Equal(t, 1, pass.Report().TerminatorRewrites)

	run := execute(t, program, true)
	assert.Equal(t, int64(2), run.status)
	assert.Equal(t, "a\n", run.fs.Contents(LogPath))

	run = execute(t, program, false)
	assert.Equal(t, int64(2), run.status)
}

func TestConsecutiveCallsKeepTheirOrder(t *testing.T) {
	program, pass := instrument(t, `program "seq"
declare i32 @printf(ptr, ...)
define i32 @main() {
entry:
  call i32 @printf("one %d\n", 1)
  call i32 @printf("two %s\n", "x")
  call i32 @printf("three\n")
  ret i32 0
}
`)
	assert.Equal(t, 3, pass.Report().OrdinaryRewrites)

	run := execute(t, program, true)
	want := "one 1\ntwo x\nthree\n"
	assert.Equal(t, want, run.stdout)
	assert.Equal(t, want, run.fs.Contents(LogPath))
}

func TestCallsInLoopsAndOtherFunctions(t *testing.T) {
	program, pass := instrument(t, `program "loop"
declare i32 @printf(ptr, ...)
define void @greet(ptr %who) {
entry:
  call i32 @printf("hello %s\n", %who)
  ret void
}
define i32 @main() {
entry:
  jmp label %loop
loop:
  %i = phi i32 [0, %entry], [%n, %loop]
  %p = call i32 @printf("i=%d\n", %i)
  %n = add %i, 1
  %c = cmp lt %n, 3
  br %c, label %loop, label %exit
exit:
  call void @greet("world")
  ret i32 0
}
`)
	assert.Equal(t, 2, pass.Report().OrdinaryRewrites)
	assert.Equal(t, 2, pass.Report().FunctionsScanned)

	run := execute(t, program, true)
	want := "i=0\ni=1\ni=2\nhello world\n"
	assert.Equal(t, want, run.stdout)
	assert.Equal(t, want, run.fs.Contents(LogPath))
	assert.Equal(t, 1, run.machine.CallCount(OpenLogName))
}

func TestEveryReturnOfMainClosesTheLog(t *testing.T) {
	program, pass := instrument(t, `program "exits"
declare i32 @printf(ptr, ...)
define i32 @main(i32 %argc) {
entry:
  %c = cmp eq %argc, 0
  br %c, label %early, label %late
early:
  ret i32 1
late:
  call i32 @printf("late\n")
  ret i32 2
}
`)
	assert.Equal(t, 2, pass.Report().ReturnsInstrumented)

	for _, argc := range []int64{0, 1} {
		fs := interp.NewMemoryFileSystem()
		m := interp.New(program, interp.Options{FS: fs})
		_, err := m.Run(argc)
		require.NoError(t, err)
		assert.Equal(t, 1, m.CallCount(CloseLogName))
		assert.Equal(t, 0, fs.OpenCount(LogPath))
	}
}

func TestProgramWithoutCallsStillOpensTheLog(t *testing.T) {
	program, pass := instrument(t, `program "quiet"
define i32 @main() {
entry:
  ret i32 0
}
`)
	assert.Equal(t, 0, pass.Report().Rewrites())
	for _, name := range []string{OpenRoutine, CloseRoutine, TargetRoutine, LogRoutine} {
		assert.NotNil(t, program.Declaration(name), name)
	}
	assert.NotNil(t, program.Function(OpenLogName))
	assert.NotNil(t, program.Function(CloseLogName))

	run := execute(t, program, true)
	assert.True(t, run.fs.Exists(LogPath))
	assert.Empty(t, run.fs.Contents(LogPath))
}

func TestMissingMainLeavesProgramUntouched(t *testing.T) {
	source := `program "library"
declare i32 @printf(ptr, ...)
define void @helper() {
entry:
  call i32 @printf("x")
  ret void
}
`
	program, err := ir.ParseProgram("lib.pir", source)
	require.NoError(t, err)
	before := ir.Print(program)

	var diagnostics bytes.Buffer
	pass := NewPass()
	pass.Diagnostics = &diagnostics
	changed, err := pass.Apply(program)
	require.NoError(t, err)

	assert.False(t, changed)
	assert.True(t, pass.Report().Skipped)
	assert.Nil(t, pass.Session())
	assert.Equal(t, "main() not found in program 'library'. Logging of printf() calls disabled for this program.\n", diagnostics.String())
	assert.Equal(t, before, ir.Print(program))
}

func TestSecondRunIsANoOp(t *testing.T) {
	program, _ := instrument(t, hello)
	before := ir.Print(program)

	pass := NewPass()
	changed, err := pass.Apply(program)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, pass.Report().AlreadyInstrumented)
	assert.Equal(t, before, ir.Print(program))
}

func TestRescanFindsNothingAfterRun(t *testing.T) {
	_, pass := instrument(t, invokeHello)
	assert.Empty(t, pass.Session().Rescan())

	_, pass = instrument(t, hello)
	assert.Empty(t, pass.Session().Rescan())
}

func TestUserFunctionsWithTheReservedPrefixAreSkipped(t *testing.T) {
	program, pass := instrument(t, `program "reserved"
declare i32 @printf(ptr, ...)
define void @__printflog_custom() {
entry:
  call i32 @printf("x")
  ret void
}
define i32 @main() {
entry:
  ret i32 0
}
`)
	assert.Equal(t, 1, pass.Report().FunctionsScanned)
	assert.Len(t, program.Function("__printflog_custom").Blocks, 1)
}

func TestPassInPipeline(t *testing.T) {
	program, err := ir.ParseProgram("hello.pir", hello)
	require.NoError(t, err)

	pass := NewPass()
	changed, err := ir.NewPipeline(pass, &ir.VerifyPass{}).Run(program)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, pass.Report().String(), "1 ordinary and 0 terminator calls rewritten")
}

func TestReportString(t *testing.T) {
	assert.Equal(t, `program "p" skipped: no main()`, (&Report{Program: "p", Skipped: true}).String())
	assert.Equal(t, `program "p" is already instrumented`, (&Report{Program: "p", AlreadyInstrumented: true}).String())
}
