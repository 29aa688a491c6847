package interp

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"printflog/internal/ir"
)

var log = commonlog.GetLogger("printflog.interp")

// Value is a runtime value: int64, string, *Cell, *Handle, Routine or nil
type Value = any

// Cell is the storage behind a global
type Cell struct {
	Name  string
	Value Value
}

// Handle is a file opened through fopen
type Handle struct {
	Path string
	File File
}

// Routine refers to a function or an external routine by name
type Routine string

// Exception is raised by an external routine and caught by invoke
type Exception struct {
	Routine string
}

func (e *Exception) Error() string {
	return fmt.Sprintf("uncaught exception raised by %s", e.Routine)
}

// IsException reports whether err carries an in-flight exception
func IsException(err error) bool {
	var exc *Exception
	return errors.As(err, &exc)
}

// Options configures a machine
type Options struct {
	Stdout   io.Writer
	FS       FileSystem
	MaxSteps int
	// Raise lists external routines that raise instead of running
	Raise map[string]bool
	Seed  int64
}

const DefaultMaxSteps = 1_000_000

// Machine executes a program
type Machine struct {
	program *ir.Program
	options Options
	globals map[string]*Cell
	rand    *rand.Rand
	steps   int
	depth   int

	// Calls lists every routine called, in order
	Calls []string
}

// New creates a machine for program with its globals at their initial values
func New(program *ir.Program, options Options) *Machine {
	if options.Stdout == nil {
		options.Stdout = io.Discard
	}
	if options.FS == nil {
		options.FS = OSFileSystem{}
	}
	if options.MaxSteps == 0 {
		options.MaxSteps = DefaultMaxSteps
	}
	m := &Machine{
		program: program,
		options: options,
		globals: make(map[string]*Cell),
		rand:    rand.New(rand.NewSource(options.Seed)),
	}
	for _, g := range program.Globals {
		var init Value
		if g.Initializer != nil {
			init = g.Initializer.Data
		}
		m.globals[g.Name] = &Cell{Name: g.Name, Value: init}
	}
	return m
}

// Global returns the current value of a global
func (m *Machine) Global(name string) (Value, bool) {
	cell, ok := m.globals[name]
	if !ok {
		return nil, false
	}
	return cell.Value, true
}

// CallCount returns how many times routine was called
func (m *Machine) CallCount(routine string) int {
	count := 0
	for _, name := range m.Calls {
		if name == routine {
			count++
		}
	}
	return count
}

// Run executes main and returns its exit status
func (m *Machine) Run(args ...Value) (int64, error) {
	result, err := m.Call("main", args...)
	if err != nil {
		return 0, err
	}
	status, _ := result.(int64)
	return status, nil
}

// Call runs the routine called name
func (m *Machine) Call(name string, args ...Value) (Value, error) {
	m.Calls = append(m.Calls, name)
	if fn := m.program.Function(name); fn != nil {
		return m.execute(fn, args)
	}
	if m.program.Declaration(name) == nil {
		return nil, errors.Errorf("call to unknown routine %s", name)
	}
	if m.options.Raise[name] {
		log.Debugf("%s raises", name)
		return nil, &Exception{Routine: name}
	}
	return m.external(name, args)
}

type frame struct {
	fn     *ir.Function
	values map[*ir.Value]Value
}

func (m *Machine) execute(fn *ir.Function, args []Value) (Value, error) {
	if len(args) < len(fn.Params) {
		return nil, errors.Errorf("@%s expects %d arguments, got %d", fn.Name, len(fn.Params), len(args))
	}
	m.depth++
	defer func() { m.depth-- }()
	if m.depth > 1000 {
		return nil, errors.Errorf("call depth exceeded in @%s", fn.Name)
	}

	f := &frame{fn: fn, values: make(map[*ir.Value]Value)}
	for i, param := range fn.Params {
		f.values[param.Value] = args[i]
	}

	var prev *ir.BasicBlock
	block := fn.Entry
	for {
		if block == nil {
			return nil, errors.Errorf("@%s: control reached a missing block", fn.Name)
		}
		if err := m.enter(f, prev, block); err != nil {
			return nil, err
		}
		for _, inst := range block.Instructions {
			if _, ok := inst.(*ir.PhiInstruction); ok {
				continue
			}
			if err := m.step(f, inst); err != nil {
				return nil, err
			}
		}

		if err := m.tick(); err != nil {
			return nil, err
		}
		prev = block
		switch term := block.Terminator.(type) {
		case *ir.ReturnTerminator:
			if term.Value == nil {
				return nil, nil
			}
			return m.eval(f, term.Value)
		case *ir.BranchTerminator:
			cond, err := m.eval(f, term.Condition)
			if err != nil {
				return nil, err
			}
			if truthy(cond) {
				block = term.TrueBlock
			} else {
				block = term.FalseBlock
			}
		case *ir.JumpTerminator:
			block = term.Target
		case *ir.InvokeTerminator:
			result, err := m.call(f, term.Callee, term.Args)
			if err != nil {
				if !IsException(err) {
					return nil, err
				}
				block = term.Unwind
				continue
			}
			if term.Result != nil {
				f.values[term.Result] = result
			}
			block = term.Normal
		case *ir.ResumeTerminator:
			return nil, &Exception{Routine: fn.Name}
		case *ir.UnreachableTerminator:
			return nil, errors.Errorf("@%s/%s: reached unreachable", fn.Name, block.Label)
		default:
			return nil, errors.Errorf("@%s/%s: block has no terminator", fn.Name, block.Label)
		}
	}
}

// enter evaluates the phis of block for the edge coming from prev, all at once
func (m *Machine) enter(f *frame, prev, block *ir.BasicBlock) error {
	phis := block.Phis()
	if len(phis) == 0 {
		return nil
	}
	values := make([]Value, len(phis))
	for i, phi := range phis {
		incoming, ok := phi.ValueFrom(prev)
		if !ok {
			from := "<entry>"
			if prev != nil {
				from = prev.Label
			}
			return errors.Errorf("@%s/%s: phi %%%s has no value for %s", f.fn.Name, block.Label, phi.Result.Name, from)
		}
		v, err := m.eval(f, incoming)
		if err != nil {
			return err
		}
		values[i] = v
	}
	for i, phi := range phis {
		f.values[phi.Result] = values[i]
	}
	return nil
}

func (m *Machine) tick() error {
	m.steps++
	if m.steps > m.options.MaxSteps {
		return errors.Errorf("step limit of %d exceeded", m.options.MaxSteps)
	}
	return nil
}

func (m *Machine) step(f *frame, inst ir.Instruction) error {
	if err := m.tick(); err != nil {
		return err
	}
	switch inst := inst.(type) {
	case *ir.CallInstruction:
		result, err := m.call(f, inst.Callee, inst.Args)
		if err != nil {
			return err
		}
		if inst.Result != nil {
			f.values[inst.Result] = result
		}
	case *ir.LoadInstruction:
		cell, err := m.cell(f, inst.Address)
		if err != nil {
			return err
		}
		f.values[inst.Result] = cell.Value
	case *ir.StoreInstruction:
		cell, err := m.cell(f, inst.Address)
		if err != nil {
			return err
		}
		v, err := m.eval(f, inst.Value)
		if err != nil {
			return err
		}
		cell.Value = v
	case *ir.CompareInstruction:
		left, right, err := m.operands(f, inst.Left, inst.Right)
		if err != nil {
			return err
		}
		result, err := compare(inst.Predicate, left, right)
		if err != nil {
			return err
		}
		f.values[inst.Result] = result
	case *ir.BinaryInstruction:
		left, right, err := m.operands(f, inst.Left, inst.Right)
		if err != nil {
			return err
		}
		result, err := arithmetic(inst.Op, left, right)
		if err != nil {
			return err
		}
		f.values[inst.Result] = result
	default:
		return errors.Errorf("cannot execute %T", inst)
	}
	return nil
}

func (m *Machine) call(f *frame, callee *ir.Value, args []*ir.Value) (Value, error) {
	target, err := m.eval(f, callee)
	if err != nil {
		return nil, err
	}
	name, ok := target.(Routine)
	if !ok {
		return nil, errors.Errorf("call through a non-routine value %v", target)
	}
	values := make([]Value, len(args))
	for i, arg := range args {
		if values[i], err = m.eval(f, arg); err != nil {
			return nil, err
		}
	}
	return m.Call(string(name), values...)
}

func (m *Machine) eval(f *frame, v *ir.Value) (Value, error) {
	switch v.Kind {
	case ir.ConstantValue:
		return v.Data, nil
	case ir.GlobalValue:
		cell, ok := m.globals[v.Name]
		if !ok {
			return nil, errors.Errorf("unknown global @%s", v.Name)
		}
		return cell, nil
	case ir.FunctionValue:
		return Routine(v.Name), nil
	case ir.CastValue:
		return m.eval(f, v.Operand)
	}
	value, ok := f.values[v]
	if !ok {
		return nil, errors.Errorf("@%s: %%%s used before it is defined", f.fn.Name, v.Name)
	}
	return value, nil
}

func (m *Machine) operands(f *frame, left, right *ir.Value) (Value, Value, error) {
	l, err := m.eval(f, left)
	if err != nil {
		return nil, nil, err
	}
	r, err := m.eval(f, right)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

func (m *Machine) cell(f *frame, address *ir.Value) (*Cell, error) {
	v, err := m.eval(f, address)
	if err != nil {
		return nil, err
	}
	cell, ok := v.(*Cell)
	if !ok {
		return nil, errors.Errorf("memory access through %v", v)
	}
	return cell, nil
}

func truthy(v Value) bool {
	switch v := v.(type) {
	case nil:
		return false
	case int64:
		return v != 0
	case bool:
		return v
	}
	return true
}

func boolean(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func compare(pred ir.Predicate, left, right Value) (int64, error) {
	switch pred {
	case ir.PredicateEQ:
		return boolean(left == right), nil
	case ir.PredicateNE:
		return boolean(left != right), nil
	}
	l, lok := left.(int64)
	r, rok := right.(int64)
	if !lok || !rok {
		return 0, errors.Errorf("cmp %s needs integers, got %T and %T", pred, left, right)
	}
	switch pred {
	case ir.PredicateLT:
		return boolean(l < r), nil
	case ir.PredicateLE:
		return boolean(l <= r), nil
	case ir.PredicateGT:
		return boolean(l > r), nil
	case ir.PredicateGE:
		return boolean(l >= r), nil
	}
	return 0, errors.Errorf("unknown predicate %q", pred)
}

func arithmetic(op string, left, right Value) (int64, error) {
	l, lok := left.(int64)
	r, rok := right.(int64)
	if !lok || !rok {
		return 0, errors.Errorf("%s needs integers, got %T and %T", op, left, right)
	}
	switch op {
	case "add":
		return l + r, nil
	case "sub":
		return l - r, nil
	case "mul":
		return l * r, nil
	case "div", "rem":
		if r == 0 {
			return 0, errors.Errorf("%s by zero", op)
		}
		if op == "div" {
			return l / r, nil
		}
		return l % r, nil
	}
	return 0, errors.Errorf("unknown operator %q", op)
}
