package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Printer provides pretty-printing for IR. The output is the textual IR
// accepted by the grammar package, so a printed program parses back.
type Printer struct {
	indent int
	output strings.Builder
}

// NewPrinter creates a new IR printer
func NewPrinter() *Printer {
	return &Printer{indent: 0}
}

// Print returns the string representation of an IR program
func Print(program *Program) string {
	p := NewPrinter()
	p.printProgram(program)
	return p.output.String()
}

// PrintFunction returns the string representation of a single function
func PrintFunction(fn *Function) string {
	p := NewPrinter()
	p.printFunction(fn)
	return p.output.String()
}

// Helper methods

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printProgram(program *Program) {
	p.writeLine("program %s", strconv.Quote(program.Name))

	if len(program.Declarations) > 0 {
		p.writeLine("")
		for _, decl := range program.Declarations {
			p.writeLine("declare %s @%s(%s)", decl.Type.Return, decl.Name, paramList(decl.Type))
		}
	}

	if len(program.Globals) > 0 {
		p.writeLine("")
		for _, g := range program.Globals {
			p.writeLine("global @%s: %s = %s", g.Name, g.Type, p.valueString(g.Initializer))
		}
	}

	for _, fn := range program.Functions {
		p.writeLine("")
		p.printFunction(fn)
	}
}

func paramList(typ *FunctionType) string {
	params := make([]string, 0, len(typ.Params)+1)
	for _, param := range typ.Params {
		params = append(params, param.String())
	}
	if typ.Variadic {
		params = append(params, "...")
	}
	return strings.Join(params, ", ")
}

// printFunction prints a function definition
func (p *Printer) printFunction(fn *Function) {
	params := make([]string, len(fn.Params))
	for i, param := range fn.Params {
		params[i] = fmt.Sprintf("%s %%%s", param.Type, param.Name)
	}
	p.writeLine("define %s @%s(%s) {", fn.ReturnType(), fn.Name, strings.Join(params, ", "))
	for _, block := range fn.Blocks {
		p.printBasicBlock(block)
	}
	p.writeLine("}")
}

// printBasicBlock prints a basic block in IR form
func (p *Printer) printBasicBlock(block *BasicBlock) {
	p.writeLine("%s:", block.Label)
	p.indent++
	for _, inst := range block.Instructions {
		p.writeLine("%s", p.instructionString(inst))
	}
	if block.Terminator != nil {
		p.writeLine("%s", p.instructionString(block.Terminator))
	}
	p.indent--
}

// InstructionString renders one instruction the way the printer does
func InstructionString(inst Instruction) string {
	return NewPrinter().instructionString(inst)
}

func (p *Printer) instructionString(inst Instruction) string {
	switch i := inst.(type) {
	case *CallInstruction:
		return p.withResult(i.Result, fmt.Sprintf("call %s %s(%s)", p.resultType(i.Result), p.valueString(i.Callee), p.valueList(i.Args)))
	case *LoadInstruction:
		return p.withResult(i.Result, fmt.Sprintf("load %s, %s", i.Result.Type, p.valueString(i.Address)))
	case *StoreInstruction:
		return fmt.Sprintf("store %s, %s", p.valueString(i.Value), p.valueString(i.Address))
	case *CompareInstruction:
		return p.withResult(i.Result, fmt.Sprintf("cmp %s %s, %s", i.Predicate, p.valueString(i.Left), p.valueString(i.Right)))
	case *BinaryInstruction:
		return p.withResult(i.Result, fmt.Sprintf("%s %s, %s", i.Op, p.valueString(i.Left), p.valueString(i.Right)))
	case *PhiInstruction:
		incoming := make([]string, len(i.Incoming))
		for k, in := range i.Incoming {
			incoming[k] = fmt.Sprintf("[%s, %%%s]", p.valueString(in.Value), in.Block.Label)
		}
		return p.withResult(i.Result, fmt.Sprintf("phi %s %s", i.Result.Type, strings.Join(incoming, ", ")))
	case *ReturnTerminator:
		if i.Value == nil {
			return "ret void"
		}
		return fmt.Sprintf("ret %s %s", p.typeOf(i.Value), p.valueString(i.Value))
	case *BranchTerminator:
		return fmt.Sprintf("br %s, label %%%s, label %%%s", p.valueString(i.Condition), i.TrueBlock.Label, i.FalseBlock.Label)
	case *JumpTerminator:
		return fmt.Sprintf("jmp label %%%s", i.Target.Label)
	case *InvokeTerminator:
		return p.withResult(i.Result, fmt.Sprintf("invoke %s %s(%s) to label %%%s unwind label %%%s",
			p.resultType(i.Result), p.valueString(i.Callee), p.valueList(i.Args), i.Normal.Label, i.Unwind.Label))
	case *ResumeTerminator:
		return "resume"
	case *UnreachableTerminator:
		return "unreachable"
	default:
		return fmt.Sprintf("; unknown instruction %T", inst)
	}
}

func (p *Printer) withResult(result *Value, text string) string {
	if result == nil {
		return text
	}
	return fmt.Sprintf("%%%s = %s", result.Name, text)
}

func (p *Printer) resultType(result *Value) Type {
	if result == nil {
		return &VoidType{}
	}
	return result.Type
}

func (p *Printer) typeOf(v *Value) Type {
	if v.Type == nil {
		return &IntType{Bits: 32}
	}
	return v.Type
}

func (p *Printer) valueList(values []*Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = p.valueString(v)
	}
	return strings.Join(parts, ", ")
}

// valueString returns the operand syntax of a value
func (p *Printer) valueString(v *Value) string {
	if v == nil {
		return "null"
	}
	switch v.Kind {
	case ConstantValue:
		switch data := v.Data.(type) {
		case nil:
			return "null"
		case int64:
			return strconv.FormatInt(data, 10)
		case string:
			return strconv.Quote(data)
		default:
			return fmt.Sprintf("%v", data)
		}
	case GlobalValue, FunctionValue:
		return "@" + v.Name
	case CastValue:
		return fmt.Sprintf("cast(%s)", p.valueString(v.Operand))
	default:
		return "%" + v.Name
	}
}
