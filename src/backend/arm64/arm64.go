// Package arm64 emits Apple-dialect AArch64 assembly text from an
// ir.IRModule. Grounded on _examples/original_source/src/codegen/arm64.rs
// for the prologue/epilogue shape, @PAGE/@PAGEOFF addressing, and x19-x28
// callee-saved set, adapted to doubles throughout per the spec's backend
// type-uniformity resolution (the original mixes integer and double
// registers inconsistently; every value here is an IEEE-754 double carried
// in a d-register, matching the x86-64 and VM backends).
package arm64

import (
	"fmt"
	"strconv"

	"vslang/src/backend/regfile"
	"vslang/src/ir"
	"vslang/src/util"
)

// argRegs are the AArch64 AAPCS64 floating-point argument registers (every
// value is a double per the backend type-uniformity resolution); the spec
// hard-caps calls and functions at 8 parameters (no stack-passing
// fallback).
var argRegs = []string{"d0", "d1", "d2", "d3", "d4", "d5", "d6", "d7"}

var calleeSaved = regfile.File{
	SP: regfile.NewReg(31, regfile.Int, "sp"),
	FP: regfile.NewReg(29, regfile.Int, "fp"),
	LR: regfile.NewReg(30, regfile.Int, "lr"),
	CalleeSaved: []regfile.Register{
		regfile.NewReg(19, regfile.Int, "x19"),
		regfile.NewReg(20, regfile.Int, "x20"),
		regfile.NewReg(21, regfile.Int, "x21"),
		regfile.NewReg(22, regfile.Int, "x22"),
		regfile.NewReg(23, regfile.Int, "x23"),
		regfile.NewReg(24, regfile.Int, "x24"),
		regfile.NewReg(25, regfile.Int, "x25"),
		regfile.NewReg(26, regfile.Int, "x26"),
		regfile.NewReg(27, regfile.Int, "x27"),
		regfile.NewReg(28, regfile.Int, "x28"),
	},
}

// Generate emits Apple-dialect AArch64 assembly text for every function in
// mod.
func Generate(mod *ir.IRModule) (string, error) {
	w := util.Writer{}
	g := &gen{w: &w, strings: map[string]string{}}

	for _, fn := range mod.Functions {
		if err := g.function(fn); err != nil {
			return "", err
		}
	}

	if len(g.constData) > 0 {
		w.WriteString("\t.section __DATA,__data\n")
		w.WriteString(g.constData)
	}

	return w.String(), nil
}

type gen struct {
	w         *util.Writer
	fn        *ir.IRFunction
	slots     map[string]int
	nextSlot  int
	strings   map[string]string // literal -> label, deduplicated
	constData string
	constSeq  int
}

func (g *gen) function(fn *ir.IRFunction) error {
	if len(fn.Params) > len(argRegs) {
		return util.Newf(util.CodeGenError, 0, 0, "arm64: %s takes %d parameters, exceeds the 8 AAPCS64 argument registers", fn.Name, len(fn.Params))
	}

	g.fn = fn
	g.slots = map[string]int{}
	g.nextSlot = 0

	frameSize := align16(8 * (fn.MaxLocals + fn.MaxStack + 2))

	g.w.Write("\t.global _%s\n", fn.Name)
	g.w.WriteString("\t.p2align 2\n")
	g.w.Label("_" + fn.Name)

	g.w.Ins3("stp", "fp", "lr", "[sp, #-16]!")
	g.w.Ins2("mov", "fp", "sp")
	if frameSize > 0 {
		g.w.Ins3("sub", "sp", "sp", fmt.Sprintf("#%d", frameSize))
	}
	for i := 0; i < len(calleeSaved.CalleeSaved); i += 2 {
		g.w.Ins3("stp", calleeSaved.CalleeSaved[i].String(), calleeSaved.CalleeSaved[i+1].String(), "[sp, #-16]!")
	}

	for i, p := range fn.Params {
		off := g.slotFor(p)
		g.w.Write("\tstr\t%s, [fp, #%d]\n", argRegs[i], off)
	}

	for _, ins := range fn.Instructions {
		if err := g.instruction(ins); err != nil {
			return err
		}
	}

	return nil
}

func (g *gen) slotFor(name string) int {
	if off, ok := g.slots[name]; ok {
		return off
	}
	g.nextSlot += 8
	off := -g.nextSlot
	g.slots[name] = off
	return off
}

func (g *gen) instruction(ins ir.Instruction) error {
	switch ins.Op {
	case ir.OpPop:
		g.w.Ins3("add", "sp", "sp", "#8")
	case ir.OpDup:
		g.w.WriteString("\tldr\td0, [sp]\n")
		g.w.WriteString("\tstr\td0, [sp, #-8]!\n")
	case ir.OpPushConst:
		g.pushConst(ins)
	case ir.OpLoad:
		off := g.slotFor(ins.Name)
		g.w.Write("\tldr\td0, [fp, #%d]\n", off)
		g.w.WriteString("\tstr\td0, [sp, #-8]!\n")
	case ir.OpStore:
		g.w.WriteString("\tldr\td0, [sp], #8\n")
		off := g.slotFor(ins.Name)
		g.w.Write("\tstr\td0, [fp, #%d]\n", off)
	case ir.OpBinary:
		g.binary(ins.BinOp)
	case ir.OpUnary:
		g.unary(ins.UnOp)
	case ir.OpLabel:
		g.w.Label(ins.Name)
	case ir.OpJump:
		g.w.Ins1("b", ins.Name)
	case ir.OpJumpIf:
		g.w.WriteString("\tldr\td0, [sp], #8\n")
		g.w.Ins2("fcmp", "d0", "#0.0")
		g.w.Ins1("b.ne", ins.Name)
	case ir.OpCall:
		if err := g.call(ins); err != nil {
			return err
		}
	case ir.OpReturn:
		g.ret(ins)
	default:
		return util.Newf(util.CodeGenError, 0, 0, "arm64: unsupported instruction %d", ins.Op)
	}
	return nil
}

func (g *gen) pushConst(ins ir.Instruction) {
	switch ins.ConstKind {
	case ir.ConstNumber:
		lbl := g.constLabel("num:"+strconv.FormatFloat(ins.Number, 'g', -1, 64), func(l string) {
			g.constData += fmt.Sprintf("%s:\n\t.double %s\n", l, strconv.FormatFloat(ins.Number, 'g', -1, 64))
		})
		g.w.Ins2("adrp", "x0", lbl+"@PAGE")
		g.w.Write("\tldr\td0, [x0, %s@PAGEOFF]\n", lbl)
		g.w.WriteString("\tstr\td0, [sp, #-8]!\n")
	case ir.ConstString:
		lbl := g.constLabel("str:"+ins.Str, func(l string) {
			g.constData += fmt.Sprintf("%s:\n\t.asciz %q\n", l, ins.Str)
		})
		g.w.Ins2("adrp", "x0", lbl+"@PAGE")
		g.w.Ins3("add", "x0", "x0", fmt.Sprintf("%s@PAGEOFF", lbl))
		g.w.WriteString("\tstr\tx0, [sp, #-8]!\n")
	case ir.ConstBoolean:
		v := 0
		if ins.Boolean {
			v = 1
		}
		g.w.Ins2("fmov", "d0", fmt.Sprintf("#%d.0", v))
		g.w.WriteString("\tstr\td0, [sp, #-8]!\n")
	default:
		g.w.Ins2("fmov", "d0", "#0.0")
		g.w.WriteString("\tstr\td0, [sp, #-8]!\n")
	}
}

func (g *gen) constLabel(key string, emit func(string)) string {
	if lbl, ok := g.strings[key]; ok {
		return lbl
	}
	lbl := fmt.Sprintf(".LC%d", g.constSeq)
	g.constSeq++
	g.strings[key] = lbl
	emit(lbl)
	return lbl
}

func (g *gen) binary(op ir.BinOp) {
	g.w.WriteString("\tldr\td1, [sp], #8\n")
	g.w.WriteString("\tldr\td0, [sp], #8\n")

	switch op {
	case ir.Add:
		g.w.Ins3("fadd", "d0", "d0", "d1")
	case ir.Sub:
		g.w.Ins3("fsub", "d0", "d0", "d1")
	case ir.Mul:
		g.w.Ins3("fmul", "d0", "d0", "d1")
	case ir.Div:
		g.w.Ins3("fdiv", "d0", "d0", "d1")
	case ir.Mod:
		g.w.Comment("%% lowers to fmod via a runtime call; d0/d1 hold the operands")
		g.w.Ins1("bl", "_vslang_fmod")
	case ir.Eq, ir.Neq, ir.Lt, ir.Le, ir.Gt, ir.Ge:
		g.w.Ins2("fcmp", "d0", "d1")
		cond := map[ir.BinOp]string{ir.Eq: "eq", ir.Neq: "ne", ir.Lt: "lt", ir.Le: "le", ir.Gt: "gt", ir.Ge: "ge"}[op]
		g.w.Ins2("cset", "x0", cond)
		g.w.Ins2("scvtf", "d0", "x0")
	}
	g.w.WriteString("\tstr\td0, [sp, #-8]!\n")
}

func (g *gen) unary(op ir.UnOp) {
	g.w.WriteString("\tldr\td0, [sp], #8\n")
	switch op {
	case ir.Neg:
		g.w.Ins2("fneg", "d0", "d0")
	case ir.Not:
		g.w.Ins2("fcmp", "d0", "#0.0")
		g.w.Ins2("cset", "x0", "eq")
		g.w.Ins2("scvtf", "d0", "x0")
	}
	g.w.WriteString("\tstr\td0, [sp, #-8]!\n")
}

// call pops exactly ArgCount arguments in last-pushed-first order into
// d0-d7 (reconstructing the left-to-right vector the lowering pushed),
// calls with bl, and pushes d0 as the result. A call passing more than 8
// arguments is a CodeGenError (spec §7), matching the >8-parameter
// rejection function() already applies on the declaration side.
func (g *gen) call(ins ir.Instruction) error {
	if ins.ArgCount > len(argRegs) {
		return util.Newf(util.CodeGenError, 0, 0,
			"arm64: call to %s passes %d arguments, exceeds the 8 AAPCS64 argument registers", ins.CallName, ins.ArgCount)
	}
	n := ins.ArgCount
	for i := n - 1; i >= 0; i-- {
		g.w.Write("\tldr\td%d, [sp], #8\n", i)
	}
	g.w.Ins1("bl", "_"+ins.CallName)
	g.w.WriteString("\tstr\td0, [sp, #-8]!\n")
	return nil
}

func (g *gen) ret(ins ir.Instruction) {
	if ins.HasValue {
		g.w.WriteString("\tldr\td0, [sp], #8\n")
	} else {
		g.w.Ins2("fmov", "d0", "#0.0")
	}
	for i := len(calleeSaved.CalleeSaved) - 2; i >= 0; i -= 2 {
		g.w.Ins3("ldp", calleeSaved.CalleeSaved[i].String(), calleeSaved.CalleeSaved[i+1].String(), "[sp], #16")
	}
	g.w.Ins2("mov", "sp", "fp")
	g.w.Ins3("ldp", "fp", "lr", "[sp], #16")
	g.w.WriteString("\tret\n")
}

func align16(n int) int {
	if n%16 == 0 {
		return n
	}
	return n + (16 - n%16)
}
