package instrument

import (
	"printflog/internal/ir"
)

// Signatures of the library routines the rewritten program uses
var (
	fopenType   = &ir.FunctionType{Return: &ir.PointerType{}, Params: []ir.Type{&ir.PointerType{}, &ir.PointerType{}}}
	fcloseType  = &ir.FunctionType{Return: &ir.IntType{Bits: 32}, Params: []ir.Type{&ir.PointerType{}}}
	printfType  = &ir.FunctionType{Return: &ir.IntType{Bits: 32}, Params: []ir.Type{&ir.PointerType{}}, Variadic: true}
	fprintfType = &ir.FunctionType{Return: &ir.IntType{Bits: 32}, Params: []ir.Type{&ir.PointerType{}, &ir.PointerType{}}, Variadic: true}
)

// Registry caches the handles of external routines declared into a program
type Registry struct {
	program     *ir.Program
	handles     map[string]*ir.Value
	initialized bool
}

// NewRegistry creates an empty registry for program
func NewRegistry(program *ir.Program) *Registry {
	return &Registry{
		program: program,
		handles: make(map[string]*ir.Value),
	}
}

// DeclareOrGet returns the cached handle of name, declaring the routine with
// sig on first use. A program symbol that already exists under a different
// signature is reused as is.
func (r *Registry) DeclareOrGet(name string, sig *ir.FunctionType) *ir.Value {
	if handle, ok := r.handles[name]; ok {
		return handle
	}
	handle := r.program.Declare(name, sig)
	r.handles[name] = handle
	return handle
}

// Init declares the four library routines. It runs once per program.
func (r *Registry) Init() error {
	if r.initialized {
		return invariantf("registry for program %q initialised twice", r.program.Name)
	}
	r.DeclareOrGet(OpenRoutine, fopenType)
	r.DeclareOrGet(CloseRoutine, fcloseType)
	r.DeclareOrGet(TargetRoutine, printfType)
	r.DeclareOrGet(LogRoutine, fprintfType)
	r.initialized = true
	return nil
}

// Get returns a routine handle; a miss after Init is an engine defect
func (r *Registry) Get(name string) (*ir.Value, error) {
	handle, ok := r.handles[name]
	if !ok {
		return nil, invariantf("routine %q missing from the registry", name)
	}
	return handle, nil
}

// ReturnType returns the result type of a registered routine
func (r *Registry) ReturnType(name string) (ir.Type, error) {
	handle, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return returnType(handle), nil
}

// returnType resolves the result type of a callee, defaulting to i32
func returnType(callee *ir.Value) ir.Type {
	if base := callee.StripCasts(); base != nil {
		if sig, ok := base.Type.(*ir.FunctionType); ok {
			return sig.Return
		}
	}
	return &ir.IntType{Bits: 32}
}
