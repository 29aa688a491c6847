package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printflog/internal/ir"
)

func TestRegistryInitDeclaresLibraryRoutines(t *testing.T) {
	program := ir.NewProgram("empty")
	r := NewRegistry(program)
	require.NoError(t, r.Init())

	for _, name := range []string{OpenRoutine, CloseRoutine, TargetRoutine, LogRoutine} {
		decl := program.Declaration(name)
		require.NotNil(t, decl, name)
		handle, err := r.Get(name)
		require.NoError(t, err)
		assert.Same(t, decl.Value, handle)
	}

	ret, err := r.ReturnType(OpenRoutine)
	require.NoError(t, err)
	assert.Equal(t, "ptr", ret.String())

	sig := program.Declaration(LogRoutine).Type
	assert.True(t, sig.Variadic)
	assert.Len(t, sig.Params, 2)
}

func TestRegistryInitTwiceIsAnInvariantViolation(t *testing.T) {
	r := NewRegistry(ir.NewProgram("p"))
	require.NoError(t, r.Init())

	err := r.Init()
	require.Error(t, err)
	assert.True(t, IsInvariant(err))
}

func TestRegistryMissIsAnInvariantViolation(t *testing.T) {
	r := NewRegistry(ir.NewProgram("p"))
	require.NoError(t, r.Init())

	_, err := r.Get("puts")
	require.Error(t, err)
	assert.True(t, IsInvariant(err))
	assert.Contains(t, err.Error(), "puts")
}

func TestRegistryReusesExistingSymbol(t *testing.T) {
	program, err := ir.ParseProgram("p.pir", `program "p"
declare i32 @printf(ptr)
define i32 @main() {
entry:
  ret i32 0
}
`)
	require.NoError(t, err)
	existing := program.Declaration("printf").Value

	r := NewRegistry(program)
	require.NoError(t, r.Init())

	handle, err := r.Get(TargetRoutine)
	require.NoError(t, err)
	assert.Same(t, existing, handle)
	assert.Same(t, handle, r.DeclareOrGet(TargetRoutine, printfType))
	assert.False(t, program.Declaration("printf").Type.Variadic)
	assert.Len(t, program.Declarations, 4)
}

func TestIsReserved(t *testing.T) {
	assert.True(t, IsReserved(OpenLogName))
	assert.True(t, IsReserved(LogHandleName))
	assert.False(t, IsReserved("main"))
	assert.False(t, IsReserved("printflog_open_log"))
}
