package instrument

import (
	"github.com/pkg/errors"

	"printflog/internal/ir"
)

// OperandKind selects where a command argument comes from
type OperandKind int

const (
	StringOperand OperandKind = iota // a string literal
	LastOperand                      // the value produced by the previous command
	HandleOperand                    // the log handle last stored or loaded
)

// Operand is one argument of a routine call command
type Operand struct {
	Kind OperandKind
	Text string
}

// Str is a string literal operand
func Str(text string) Operand {
	return Operand{Kind: StringOperand, Text: text}
}

// Handle is the log handle operand
func Handle() Operand {
	return Operand{Kind: HandleOperand}
}

// CommandKind enumerates the block commands of a helper routine
type CommandKind int

const (
	CallRoutine CommandKind = iota // call a registered routine
	StoreHandle                    // store the last value into the log handle global
	LoadHandle                     // load the log handle global
	CompareNull                    // compare the last value with null
)

// Command is plain data describing one step of a helper block
type Command struct {
	Kind      CommandKind
	Routine   string
	Args      []Operand
	Record    bool // the emitted call is marked as processed
	Predicate ir.Predicate
}

// RoutineSpec describes a helper routine: condition, then one block per outcome
type RoutineSpec struct {
	Name      string // logical name, the reserved prefix is added
	Condition []Command
	OnTrue    []Command
	OnFalse   []Command
}

// OpenLogSpec opens the log file, storing the handle, and reports through
// an unguarded printf when that fails
func OpenLogSpec() RoutineSpec {
	return RoutineSpec{
		Name: "open_log",
		Condition: []Command{
			{Kind: CallRoutine, Routine: OpenRoutine, Args: []Operand{Str(LogPath), Str(LogMode)}},
			{Kind: StoreHandle},
			{Kind: CompareNull, Predicate: ir.PredicateEQ},
		},
		OnTrue: []Command{
			{Kind: CallRoutine, Routine: TargetRoutine, Args: []Operand{Str(FailureMessage)}, Record: true},
		},
	}
}

// CloseLogSpec closes the log file when it was opened
func CloseLogSpec() RoutineSpec {
	return RoutineSpec{
		Name: "close_log",
		Condition: []Command{
			{Kind: LoadHandle},
			{Kind: CompareNull, Predicate: ir.PredicateNE},
		},
		OnTrue: []Command{
			{Kind: CallRoutine, Routine: CloseRoutine, Args: []Operand{Handle()}},
		},
	}
}

// BuildConditionalRoutine creates a void routine without parameters made of
// three blocks: condition, true and false. Both outcome blocks return.
func BuildConditionalRoutine(s *Session, spec RoutineSpec) (*ir.Function, error) {
	fn, err := s.Program.AddFunction(Prefix+spec.Name, &ir.FunctionType{Return: &ir.VoidType{}})
	if err != nil {
		return nil, errors.Wrapf(err, "creating helper %s", spec.Name)
	}
	condition := fn.NewBlock("condition")
	onTrue := fn.NewBlock("true")
	onFalse := fn.NewBlock("false")

	e := &emitter{session: s, builder: ir.NewBuilder(s.Program)}

	e.builder.SetInsertPoint(condition)
	if err := e.emit(spec.Condition); err != nil {
		return nil, err
	}
	if e.last == nil {
		return nil, invariantf("helper %s: condition produces no value", spec.Name)
	}
	if _, err := e.builder.CreateCondBranch(e.last, onTrue, onFalse); err != nil {
		return nil, err
	}

	for _, outcome := range []struct {
		block    *ir.BasicBlock
		commands []Command
	}{{onTrue, spec.OnTrue}, {onFalse, spec.OnFalse}} {
		e.builder.SetInsertPoint(outcome.block)
		if err := e.emit(outcome.commands); err != nil {
			return nil, err
		}
		if _, err := e.builder.CreateReturn(nil); err != nil {
			return nil, err
		}
	}

	fn.RebuildCFG()
	log.Debugf("synthesised helper @%s", fn.Name)
	return fn, nil
}

// emitter turns commands into instructions, tracking the last produced
// value and the current log handle
type emitter struct {
	session *Session
	builder *ir.Builder
	last    *ir.Value
	handle  *ir.Value
}

func (e *emitter) emit(commands []Command) error {
	for _, cmd := range commands {
		if err := e.emitOne(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (e *emitter) emitOne(cmd Command) error {
	global := e.session.LogHandle.Value
	switch cmd.Kind {
	case CallRoutine:
		callee, err := e.session.Registry.Get(cmd.Routine)
		if err != nil {
			return err
		}
		args := make([]*ir.Value, len(cmd.Args))
		for i, op := range cmd.Args {
			if args[i], err = e.operand(op); err != nil {
				return err
			}
		}
		call := e.builder.CreateCall(returnType(callee), callee, args, cmd.Routine)
		if cmd.Record {
			if err := e.session.Processed.Record(call); err != nil {
				return err
			}
		}
		e.last = call.Result
	case StoreHandle:
		if e.last == nil {
			return invariantf("store of the log handle without a value")
		}
		e.builder.CreateStore(e.last, global)
		e.handle = e.last
	case LoadHandle:
		e.handle = e.builder.CreateLoad(&ir.PointerType{}, global, "logfile")
		e.last = e.handle
	case CompareNull:
		if e.last == nil {
			return invariantf("null comparison without a value")
		}
		e.last = e.builder.CreateCompare(cmd.Predicate, e.last, ir.NewNull(), "cond")
	default:
		return invariantf("unknown helper command %d", cmd.Kind)
	}
	return nil
}

func (e *emitter) operand(op Operand) (*ir.Value, error) {
	switch op.Kind {
	case StringOperand:
		return ir.NewString(op.Text), nil
	case LastOperand:
		if e.last == nil {
			return nil, invariantf("operand refers to a missing previous value")
		}
		return e.last, nil
	case HandleOperand:
		if e.handle == nil {
			return nil, invariantf("operand refers to the log handle before it is loaded")
		}
		return e.handle, nil
	}
	return nil, invariantf("unknown operand kind %d", op.Kind)
}
