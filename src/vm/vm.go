// Package vm implements the stack-based interpreter that executes an
// ir.IRModule directly. Grounded on original_source/src/vm/mod.rs
// (execute_function/execute_instruction and the binary_*/unary_*/
// to_boolean/to_number/to_string helpers) and the teacher's util.Stack for
// the operand-stack pattern.
package vm

import (
	"fmt"
	"math"
	"strconv"

	"vslang/src/ir"
	"vslang/src/util"
)

// ValueKind tags a VM Value's variant.
type ValueKind int

const (
	VNull ValueKind = iota
	VNumber
	VString
	VBoolean
	VObject
	VUndefined
)

// Value is the VM's tagged runtime value.
type Value struct {
	Kind   ValueKind
	Number float64
	Str    string
	Bool   bool
	Object map[string]Value
}

var Null = Value{Kind: VNull}
var Undefined = Value{Kind: VUndefined}

func Number(n float64) Value { return Value{Kind: VNumber, Number: n} }
func String(s string) Value  { return Value{Kind: VString, Str: s} }
func Boolean(b bool) Value   { return Value{Kind: VBoolean, Bool: b} }

// String implements fmt.Stringer so a Value printed by the driver renders
// using the same coercion table as the language's own string conversion.
func (v Value) String() string { return toString(v) }

// Native is a Go-implemented function registered under a name, callable the
// same way as an IR function.
type Native func(args []Value) Value

// frame is a single call's activation record.
type frame struct {
	fn        *ir.IRFunction
	ip        int
	locals    map[string]Value
	stackBase int
}

// VM holds the value stack, globals, the function table, and the active
// call frame stack.
type VM struct {
	stack   []Value
	globals map[string]Value
	funcs   map[string]*ir.IRFunction
	natives map[string]Native
	frames  []*frame
}

// New returns a VM with mod's functions registered and the built-in `print`
// native pre-registered (spec §4.4/§6).
func New(mod *ir.IRModule) *VM {
	v := &VM{
		globals: map[string]Value{},
		funcs:   map[string]*ir.IRFunction{},
		natives: map[string]Native{},
	}
	for _, fn := range mod.Functions {
		v.funcs[fn.Name] = fn
	}
	v.natives["print"] = nativePrint
	return v
}

// RegisterNative adds or replaces a native function binding.
func (v *VM) RegisterNative(name string, fn Native) {
	v.natives[name] = fn
}

// RunMain invokes `main` with no arguments, as end-to-end scenarios in
// spec §8 require.
func (v *VM) RunMain() (Value, error) {
	return v.Call("main", nil)
}

// Call invokes the function or native named name with args and returns its
// result.
func (v *VM) Call(name string, args []Value) (Value, error) {
	if nat, ok := v.natives[name]; ok {
		return nat(args), nil
	}
	fn, ok := v.funcs[name]
	if !ok {
		return Undefined, util.Newf(util.RuntimeError, 0, 0, "unknown function %q", name)
	}
	return v.callFunction(fn, args)
}

func (v *VM) callFunction(fn *ir.IRFunction, args []Value) (Value, error) {
	base := len(v.stack)
	fr := &frame{fn: fn, locals: map[string]Value{}, stackBase: base}
	for i, p := range fn.Params {
		if i < len(args) {
			fr.locals[p] = args[i]
		} else {
			fr.locals[p] = Undefined
		}
	}
	v.frames = append(v.frames, fr)
	defer func() { v.frames = v.frames[:len(v.frames)-1] }()

	ret, err := v.run(fr)
	if err != nil {
		return Undefined, err
	}

	v.stack = v.stack[:base]
	return ret, nil
}

func (v *VM) currentFrame() *frame {
	if len(v.frames) == 0 {
		return nil
	}
	return v.frames[len(v.frames)-1]
}

func (v *VM) push(val Value) { v.stack = append(v.stack, val) }

// pop pops and returns the top of the operand stack; stack underflow yields
// Undefined as a defensive default (spec §4.4).
func (v *VM) pop() Value {
	if len(v.stack) == 0 {
		return Undefined
	}
	val := v.stack[len(v.stack)-1]
	v.stack = v.stack[:len(v.stack)-1]
	return val
}

func (v *VM) top() Value {
	if len(v.stack) == 0 {
		return Undefined
	}
	return v.stack[len(v.stack)-1]
}

// run steps fr's instructions to completion and returns the value produced
// by its Return.
func (v *VM) run(fr *frame) (Value, error) {
	for fr.ip < len(fr.fn.Instructions) {
		ins := fr.fn.Instructions[fr.ip]
		switch ins.Op {
		case ir.OpPop:
			v.pop()
		case ir.OpDup:
			v.push(v.top())
		case ir.OpPushConst:
			v.push(constValue(ins))
		case ir.OpLoad:
			v.push(v.load(fr, ins.Name))
		case ir.OpStore:
			v.store(fr, ins.Name, v.pop())
		case ir.OpBinary:
			b := v.pop()
			a := v.pop()
			v.push(binary(ins.BinOp, a, b))
		case ir.OpUnary:
			v.push(unary(ins.UnOp, v.pop()))
		case ir.OpLabel:
			// no-op at execution time
		case ir.OpJump:
			idx := ir.FindLabel(fr.fn, ins.Name)
			if idx < 0 {
				return Undefined, util.Newf(util.RuntimeError, 0, 0, "unknown label %q", ins.Name)
			}
			fr.ip = idx
			continue
		case ir.OpJumpIf:
			cond := v.pop()
			if truthy(cond) {
				idx := ir.FindLabel(fr.fn, ins.Name)
				if idx < 0 {
					return Undefined, util.Newf(util.RuntimeError, 0, 0, "unknown label %q", ins.Name)
				}
				fr.ip = idx
				continue
			}
		case ir.OpCall:
			args := make([]Value, ins.ArgCount)
			for i := ins.ArgCount - 1; i >= 0; i-- {
				args[i] = v.pop()
			}
			result, err := v.Call(ins.CallName, args)
			if err != nil {
				return Undefined, err
			}
			v.push(result)
		case ir.OpReturn:
			if ins.HasValue {
				return v.pop(), nil
			}
			return Undefined, nil
		}
		fr.ip++
	}
	return Undefined, nil
}

func constValue(ins ir.Instruction) Value {
	switch ins.ConstKind {
	case ir.ConstNumber:
		return Number(ins.Number)
	case ir.ConstString:
		return String(ins.Str)
	case ir.ConstBoolean:
		return Boolean(ins.Boolean)
	default:
		return Null
	}
}

// load looks up n in the current frame's locals first, then globals (spec
// §4.4).
func (v *VM) load(fr *frame, n string) Value {
	if val, ok := fr.locals[n]; ok {
		return val
	}
	if val, ok := v.globals[n]; ok {
		return val
	}
	return Undefined
}

// store always writes to the current frame's locals, shadowing globals
// inside a call; with no active frame it writes to globals (spec §4.4).
func (v *VM) store(fr *frame, n string, val Value) {
	if fr != nil {
		fr.locals[n] = val
		return
	}
	v.globals[n] = val
}

// truthy implements the coercion table in spec §4.4.
func truthy(val Value) bool {
	switch val.Kind {
	case VBoolean:
		return val.Bool
	case VNumber:
		return val.Number != 0 && !math.IsNaN(val.Number)
	case VString:
		return len(val.Str) > 0
	case VObject:
		return true
	default:
		return false
	}
}

// epsilon matches f64::EPSILON (spec §4.4's "tolerance of machine epsilon").
const epsilon = 2.220446049250313e-16

func binary(op ir.BinOp, a, b Value) Value {
	switch op {
	case ir.Add:
		if a.Kind == VNumber && b.Kind == VNumber {
			return Number(a.Number + b.Number)
		}
		if a.Kind == VString || b.Kind == VString {
			return String(toString(a) + toString(b))
		}
		return Undefined
	case ir.Sub:
		return numericBinary(a, b, func(x, y float64) float64 { return x - y })
	case ir.Mul:
		return numericBinary(a, b, func(x, y float64) float64 { return x * y })
	case ir.Div:
		return numericBinary(a, b, func(x, y float64) float64 {
			if y == 0 {
				return math.NaN()
			}
			return x / y
		})
	case ir.Mod:
		return numericBinary(a, b, math.Mod)
	case ir.Eq:
		return Boolean(valueEqual(a, b))
	case ir.Neq:
		return Boolean(!valueEqual(a, b))
	case ir.Lt:
		return compare(a, b, func(c int) bool { return c < 0 })
	case ir.Le:
		return compare(a, b, func(c int) bool { return c <= 0 })
	case ir.Gt:
		return compare(a, b, func(c int) bool { return c > 0 })
	case ir.Ge:
		return compare(a, b, func(c int) bool { return c >= 0 })
	case ir.And, ir.Or:
		// Lowered via jumps; the VM should never execute Binary(And/Or)
		// directly (spec §4.5 note). For defensiveness, return the
		// contributing operand, chosen by truthiness.
		if op == ir.And {
			if !truthy(a) {
				return a
			}
			return b
		}
		if truthy(a) {
			return a
		}
		return b
	default:
		return Undefined
	}
}

func numericBinary(a, b Value, f func(x, y float64) float64) Value {
	if a.Kind != VNumber || b.Kind != VNumber {
		return Undefined
	}
	return Number(f(a.Number, b.Number))
}

func valueEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case VNumber:
		return math.Abs(a.Number-b.Number) < epsilon
	case VString:
		return a.Str == b.Str
	case VBoolean:
		return a.Bool == b.Bool
	case VNull, VUndefined:
		return true
	default:
		return false
	}
}

func compare(a, b Value, pred func(int) bool) Value {
	if a.Kind == VNumber && b.Kind == VNumber {
		switch {
		case a.Number < b.Number:
			return Boolean(pred(-1))
		case a.Number > b.Number:
			return Boolean(pred(1))
		default:
			return Boolean(pred(0))
		}
	}
	if a.Kind == VString && b.Kind == VString {
		switch {
		case a.Str < b.Str:
			return Boolean(pred(-1))
		case a.Str > b.Str:
			return Boolean(pred(1))
		default:
			return Boolean(pred(0))
		}
	}
	return Undefined
}

func unary(op ir.UnOp, v Value) Value {
	switch op {
	case ir.Neg:
		if v.Kind == VNumber {
			return Number(-v.Number)
		}
		return Undefined
	case ir.Not:
		return Boolean(!truthy(v))
	default:
		return Undefined
	}
}

// toString implements the coercion table in spec §4.4.
func toString(v Value) string {
	switch v.Kind {
	case VNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case VString:
		return v.Str
	case VBoolean:
		if v.Bool {
			return "true"
		}
		return "false"
	case VNull:
		return "null"
	case VUndefined:
		return "undefined"
	case VObject:
		return "[object Object]"
	default:
		return ""
	}
}

// nativePrint writes each argument's string form separated by single spaces
// followed by a newline; returns Undefined (spec §6).
func nativePrint(args []Value) Value {
	strs := make([]interface{}, len(args))
	for i, a := range args {
		strs[i] = toString(a)
	}
	format := ""
	for i := range strs {
		if i > 0 {
			format += " "
		}
		format += "%s"
	}
	fmt.Println(fmt.Sprintf(format, strs...))
	return Undefined
}
