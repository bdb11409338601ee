package codegen

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// IR — a low-level, register-agnostic intermediate representation
//
// Functions are control-flow graphs of basic blocks.  Every block ends in
// exactly one terminator (jump, conditional branch, or return).  Operands
// are virtual registers (assigned exactly once), immediates, frame slots,
// symbolic global references, indirect addresses, and labels.  Memory
// operands carry an access size (4 or 8 bytes) because int and long have
// different widths.
// ---------------------------------------------------------------------------

// ---------------------------------------------------------------------------
// Operand kinds
// ---------------------------------------------------------------------------

// OpKind describes what an IR operand represents.
type OpKind int

const (
	OpNone      OpKind = iota // unused operand slot
	OpVirtReg                 // virtual register (numbered, single assignment)
	OpImmediate               // integer literal
	OpFrameSlot               // a local's home slot: [x29 - Off]
	OpGlobalRef               // symbolic reference to a global variable
	OpAddr                    // indirect address: [vreg + Off]
	OpLabel                   // label reference (branch target / callee name)
)

// Operand is a single value in an IR instruction.
type Operand struct {
	Kind  OpKind
	Reg   int    // virtual register number (OpVirtReg, OpAddr base)
	Imm   int64  // integer value (OpImmediate)
	Label string // label name (OpLabel)
	Sym   string // symbol name (OpGlobalRef)
	Off   int64  // byte offset (OpFrameSlot: below x29; OpAddr: from base)
	Size  int    // access size in bytes for memory operands (4 or 8)
}

func (o Operand) String() string {
	switch o.Kind {
	case OpNone:
		return "<none>"
	case OpVirtReg:
		return fmt.Sprintf("v%d", o.Reg)
	case OpImmediate:
		return fmt.Sprintf("$%d", o.Imm)
	case OpFrameSlot:
		return fmt.Sprintf("slot[-%d]:%d", o.Off, o.Size)
	case OpGlobalRef:
		return fmt.Sprintf("global(%s):%d", o.Sym, o.Size)
	case OpAddr:
		if o.Off != 0 {
			return fmt.Sprintf("[v%d + %d]:%d", o.Reg, o.Off, o.Size)
		}
		return fmt.Sprintf("[v%d]:%d", o.Reg, o.Size)
	case OpLabel:
		return o.Label
	default:
		return "?"
	}
}

// Convenience constructors for operands.
func VReg(n int) Operand          { return Operand{Kind: OpVirtReg, Reg: n} }
func Imm(val int64) Operand       { return Operand{Kind: OpImmediate, Imm: val} }
func LabelOp(name string) Operand { return Operand{Kind: OpLabel, Label: name} }
func None() Operand               { return Operand{Kind: OpNone} }

// Slot references a local's frame slot at [x29 - off].
func Slot(off int64, size int) Operand {
	return Operand{Kind: OpFrameSlot, Off: off, Size: size}
}

// Global references a global variable symbol.
func Global(sym string, size int) Operand {
	return Operand{Kind: OpGlobalRef, Sym: sym, Size: size}
}

// Addr references memory at [vreg + off].
func Addr(reg int, off int64, size int) Operand {
	return Operand{Kind: OpAddr, Reg: reg, Off: off, Size: size}
}

// ---------------------------------------------------------------------------
// IR opcodes
// ---------------------------------------------------------------------------

// IROp is an IR instruction opcode.
type IROp int

const (
	// Data movement
	IRMov        IROp = iota // dst = src1 (vreg or immediate)
	IRLea                    // dst = address of frame slot src1
	IRGlobalAddr             // dst = address of global src1
	IRLoad                   // dst = *(src1)  — src1 is a slot or addr operand
	IRStore                  // *(dst) = src1  — dst is a slot or addr operand

	// Arithmetic
	IRAdd // dst = src1 + src2
	IRSub // dst = src1 - src2
	IRMul // dst = src1 * src2
	IRDiv // dst = src1 / src2 (signed)
	IRMod // dst = src1 % src2 (signed)
	IRNeg // dst = -src1
	IRNot // dst = (src1 == 0)

	// Comparison — sets dst to 0 or 1
	IRCmpEq // dst = (src1 == src2)
	IRCmpNe // dst = (src1 != src2)
	IRCmpLt // dst = (src1 < src2)
	IRCmpLe // dst = (src1 <= src2)
	IRCmpGt // dst = (src1 > src2)
	IRCmpGe // dst = (src1 >= src2)

	// Terminators
	IRJmp // unconditional jump to label dst
	IRBr  // if src1 != 0 goto dst else goto src2
	IRRet // return from function (optional src1 = return value)

	// Calls
	IRCall // dst = call src1(args...) — dst is None for void calls
)

var irOpNames = map[IROp]string{
	IRMov: "mov", IRLea: "lea", IRGlobalAddr: "gaddr",
	IRLoad: "load", IRStore: "store",
	IRAdd: "add", IRSub: "sub", IRMul: "mul", IRDiv: "div", IRMod: "mod",
	IRNeg: "neg", IRNot: "not",
	IRCmpEq: "cmp_eq", IRCmpNe: "cmp_ne", IRCmpLt: "cmp_lt", IRCmpLe: "cmp_le",
	IRCmpGt: "cmp_gt", IRCmpGe: "cmp_ge",
	IRJmp: "jmp", IRBr: "br", IRRet: "ret",
	IRCall: "call",
}

func (op IROp) String() string {
	if s, ok := irOpNames[op]; ok {
		return s
	}
	return fmt.Sprintf("irop_%d", int(op))
}

// IsTerminator reports whether the opcode ends a basic block.
func (op IROp) IsTerminator() bool {
	return op == IRJmp || op == IRBr || op == IRRet
}

// ---------------------------------------------------------------------------
// IR Instruction
// ---------------------------------------------------------------------------

// IRInstr is a single IR instruction.
type IRInstr struct {
	Op   IROp
	Dst  Operand   // destination (or target label for IRJmp/IRBr)
	Src1 Operand   // first source
	Src2 Operand   // second source (false label for IRBr)
	Args []Operand // call arguments (IRCall only)
}

func (i IRInstr) String() string {
	s := i.Op.String()
	if i.Dst.Kind != OpNone {
		s += " " + i.Dst.String()
	}
	if i.Src1.Kind != OpNone {
		s += ", " + i.Src1.String()
	}
	if i.Src2.Kind != OpNone {
		s += ", " + i.Src2.String()
	}
	for _, a := range i.Args {
		s += ", " + a.String()
	}
	return s
}

// ---------------------------------------------------------------------------
// Basic blocks
// ---------------------------------------------------------------------------

// Block is a basic block: a label, straight-line instructions, and a single
// terminator as the final instruction.
type Block struct {
	Label  string // empty for the function entry block
	Instrs []IRInstr
}

// Emit appends an instruction to the block.
func (b *Block) Emit(instr IRInstr) {
	b.Instrs = append(b.Instrs, instr)
}

// Terminated reports whether the block already ends in a terminator.
func (b *Block) Terminated() bool {
	if len(b.Instrs) == 0 {
		return false
	}
	return b.Instrs[len(b.Instrs)-1].Op.IsTerminator()
}

// ---------------------------------------------------------------------------
// IR Function / Module
// ---------------------------------------------------------------------------

// IRFunc represents a single function in IR form.
type IRFunc struct {
	Name         string
	ParamCount   int
	ParamOffsets []int64 // frame offset of each parameter's home slot
	Blocks       []*Block
	LocalBytes   int // bytes of local/parameter home slots below x29
	NumVRegs     int // number of virtual registers issued
	ReturnsVal   bool
}

// NewBlock appends an empty block with the given label and returns it.
func (f *IRFunc) NewBlock(label string) *Block {
	b := &Block{Label: label}
	f.Blocks = append(f.Blocks, b)
	return b
}

// IRGlobal is a global variable definition placed in the data section.
type IRGlobal struct {
	Sym   string
	Size  int // 4 or 8
	Value int64
}

// IRModule is the top-level IR container for an entire compilation unit.
type IRModule struct {
	Globals   []IRGlobal
	Functions []*IRFunc
}

// DebugDump returns a human-readable representation of the entire IR module.
func (m *IRModule) DebugDump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== IR Module (%d globals, %d functions) ===\n",
		len(m.Globals), len(m.Functions))
	for _, g := range m.Globals {
		fmt.Fprintf(&b, "  global %s:%d = %d\n", g.Sym, g.Size, g.Value)
	}
	for _, fn := range m.Functions {
		fmt.Fprintf(&b, "\nfunc %s (params=%d, localbytes=%d, vregs=%d):\n",
			fn.Name, fn.ParamCount, fn.LocalBytes, fn.NumVRegs)
		for _, blk := range fn.Blocks {
			if blk.Label != "" {
				fmt.Fprintf(&b, "%s:\n", blk.Label)
			}
			for _, instr := range blk.Instrs {
				fmt.Fprintf(&b, "  %s\n", instr.String())
			}
		}
	}
	return b.String()
}
