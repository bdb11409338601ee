package codegen

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// ARM64 (AArch64) Assembly Emitter
//
// Produces GAS assembly for macOS ARM64 and Linux ARM64 (aarch64), using
// the AAPCS64 calling convention: x0-x7 for arguments, x0 for the return
// value, arguments nine and up on the stack in 8-byte slots.
//
// Virtual registers live in the callee-saved registers x19-x26 assigned by
// the linear-scan allocator; spilled values and all named variables live in
// the stack frame below x29. x9-x15 serve as statement-local scratch and
// x16/x17 as address-computation scratch, so they never carry values across
// an instruction boundary.
//
// int values are kept sign-extended to 64 bits in registers: 4-byte memory
// is read with ldrsw and written with str w<n>, and all arithmetic runs on
// the full x registers.
// ---------------------------------------------------------------------------

// EmitARM64 converts an IRModule to ARM64 assembly text.
func EmitARM64(mod *IRModule, target *Target) (string, error) {
	e := &arm64Emitter{
		mod:    mod,
		target: target,
		b:      &strings.Builder{},
	}
	if err := e.emit(); err != nil {
		return "", err
	}
	return e.b.String(), nil
}

type arm64Emitter struct {
	mod    *IRModule
	target *Target
	b      *strings.Builder

	// Per-function state.
	fn        *IRFunc
	alloc     *Allocation
	frameSize int
}

// toW converts an x-register name to its 32-bit w counterpart ("x10"→"w10").
func toW(reg string) string {
	if len(reg) > 0 && reg[0] == 'x' {
		return "w" + reg[1:]
	}
	return reg
}

func alignUp16(n int) int {
	return (n + 15) &^ 15
}

// ---------------------------------------------------------------------------
// Top-level emission
// ---------------------------------------------------------------------------

func (e *arm64Emitter) emit() error {
	w := e.b

	// Data section: one initialised word per global.
	if len(e.mod.Globals) > 0 {
		if e.target.OS == OS_Darwin {
			w.WriteString(".section __DATA,__data\n")
		} else {
			w.WriteString(".data\n")
		}
		for _, g := range e.mod.Globals {
			sym := e.target.Sym(g.Sym)
			if g.Size == 8 {
				w.WriteString(".p2align 3\n")
				w.WriteString(fmt.Sprintf("%s:\n", sym))
				w.WriteString(fmt.Sprintf("    .quad %d\n", g.Value))
			} else {
				w.WriteString(".p2align 2\n")
				w.WriteString(fmt.Sprintf("%s:\n", sym))
				w.WriteString(fmt.Sprintf("    .word %d\n", g.Value))
			}
		}
		w.WriteString("\n")
	}

	// Text section.
	if e.target.OS == OS_Darwin {
		w.WriteString(".section __TEXT,__text\n")
	} else {
		w.WriteString(".text\n")
	}

	for _, fn := range e.mod.Functions {
		if err := e.emitFunction(fn); err != nil {
			return err
		}
	}
	return nil
}

func (e *arm64Emitter) emitFunction(fn *IRFunc) error {
	alloc, err := allocateRegisters(fn)
	if err != nil {
		return err
	}
	e.fn = fn
	e.alloc = alloc
	e.frameSize = alignUp16(alloc.FrameSize + 8*len(alloc.UsedRegs))

	w := e.b
	sym := e.target.Sym(fn.Name)
	w.WriteString(fmt.Sprintf(".globl %s\n", sym))
	w.WriteString(".p2align 2\n")
	w.WriteString(fmt.Sprintf("%s:\n", sym))

	// Prologue: frame record, frame space, callee-saved spills, parameter
	// homing into the slots the lowerer assigned.
	w.WriteString("    stp x29, x30, [sp, #-16]!\n")
	w.WriteString("    mov x29, sp\n")
	if e.frameSize > 0 {
		w.WriteString(fmt.Sprintf("    sub sp, sp, #%d\n", e.frameSize))
	}
	for i, r := range alloc.UsedRegs {
		e.storeSlot(e.xname(r), int64(alloc.FrameSize+8*(i+1)))
	}
	for i, off := range fn.ParamOffsets {
		if i < len(e.target.ArgRegs) {
			e.storeSlot(e.target.ArgRegs[i], off)
		} else {
			// Stack argument: above the frame record, 8-byte slots.
			w.WriteString(fmt.Sprintf("    ldr x9, [x29, #%d]\n", 16+8*(i-len(e.target.ArgRegs))))
			e.storeSlot("x9", off)
		}
	}

	for _, blk := range fn.Blocks {
		if blk.Label != "" {
			w.WriteString(fmt.Sprintf("%s:\n", e.target.Local(blk.Label)))
		}
		for _, instr := range blk.Instrs {
			e.emitInstr(instr)
		}
	}
	w.WriteString("\n")
	return nil
}

// emitEpilogue restores callee-saved registers and tears the frame down.
func (e *arm64Emitter) emitEpilogue() {
	w := e.b
	for i, r := range e.alloc.UsedRegs {
		e.loadSlot(e.xname(r), int64(e.alloc.FrameSize+8*(i+1)))
	}
	w.WriteString("    mov sp, x29\n")
	w.WriteString("    ldp x29, x30, [sp], #16\n")
	w.WriteString("    ret\n")
}

// ---------------------------------------------------------------------------
// Instruction emission
// ---------------------------------------------------------------------------

func (e *arm64Emitter) emitInstr(instr IRInstr) {
	w := e.b

	switch instr.Op {
	case IRMov:
		dst := e.dstReg(instr.Dst, "x9")
		if instr.Src1.Kind == OpImmediate {
			e.loadImm(dst, instr.Src1.Imm)
		} else {
			src := e.srcReg(instr.Src1, "x10")
			if src != dst {
				w.WriteString(fmt.Sprintf("    mov %s, %s\n", dst, src))
			}
		}
		e.finishDst(instr.Dst, dst)

	case IRLea:
		dst := e.dstReg(instr.Dst, "x9")
		off := instr.Src1.Off
		if off <= 4095 {
			w.WriteString(fmt.Sprintf("    sub %s, x29, #%d\n", dst, off))
		} else {
			e.loadImm("x16", off)
			w.WriteString(fmt.Sprintf("    sub %s, x29, x16\n", dst))
		}
		e.finishDst(instr.Dst, dst)

	case IRGlobalAddr:
		dst := e.dstReg(instr.Dst, "x9")
		e.loadGlobalAddr(dst, instr.Src1.Sym)
		e.finishDst(instr.Dst, dst)

	case IRLoad:
		dst := e.dstReg(instr.Dst, "x9")
		e.loadMemOperand(dst, instr.Src1)
		e.finishDst(instr.Dst, dst)

	case IRStore:
		src := e.srcReg(instr.Src1, "x9")
		e.storeMemOperand(src, instr.Dst)

	case IRAdd:
		e.emitBinOp(instr, "add")
	case IRSub:
		e.emitBinOp(instr, "sub")
	case IRMul:
		e.emitBinOp(instr, "mul")
	case IRDiv:
		e.emitBinOp(instr, "sdiv")
	case IRMod:
		dst := e.dstReg(instr.Dst, "x9")
		src1 := e.srcReg(instr.Src1, "x10")
		src2 := e.srcReg(instr.Src2, "x11")
		w.WriteString(fmt.Sprintf("    sdiv x16, %s, %s\n", src1, src2))
		w.WriteString(fmt.Sprintf("    msub %s, x16, %s, %s\n", dst, src2, src1))
		e.finishDst(instr.Dst, dst)

	case IRNeg:
		dst := e.dstReg(instr.Dst, "x9")
		src := e.srcReg(instr.Src1, "x10")
		w.WriteString(fmt.Sprintf("    neg %s, %s\n", dst, src))
		e.finishDst(instr.Dst, dst)

	case IRNot:
		dst := e.dstReg(instr.Dst, "x9")
		src := e.srcReg(instr.Src1, "x10")
		w.WriteString(fmt.Sprintf("    cmp %s, #0\n", src))
		w.WriteString(fmt.Sprintf("    cset %s, eq\n", dst))
		e.finishDst(instr.Dst, dst)

	case IRCmpEq:
		e.emitCmp(instr, "eq")
	case IRCmpNe:
		e.emitCmp(instr, "ne")
	case IRCmpLt:
		e.emitCmp(instr, "lt")
	case IRCmpLe:
		e.emitCmp(instr, "le")
	case IRCmpGt:
		e.emitCmp(instr, "gt")
	case IRCmpGe:
		e.emitCmp(instr, "ge")

	case IRJmp:
		w.WriteString(fmt.Sprintf("    b %s\n", e.target.Local(instr.Dst.Label)))

	case IRBr:
		cond := e.srcReg(instr.Src1, "x9")
		w.WriteString(fmt.Sprintf("    cbz %s, %s\n", cond, e.target.Local(instr.Src2.Label)))
		w.WriteString(fmt.Sprintf("    b %s\n", e.target.Local(instr.Dst.Label)))

	case IRCall:
		e.emitCall(instr)

	case IRRet:
		if instr.Src1.Kind != OpNone {
			if instr.Src1.Kind == OpImmediate {
				e.loadImm("x0", instr.Src1.Imm)
			} else {
				src := e.srcReg(instr.Src1, "x0")
				if src != "x0" {
					w.WriteString(fmt.Sprintf("    mov x0, %s\n", src))
				}
			}
		}
		e.emitEpilogue()
	}
}

func (e *arm64Emitter) emitBinOp(instr IRInstr, mnemonic string) {
	dst := e.dstReg(instr.Dst, "x9")
	src1 := e.srcReg(instr.Src1, "x10")
	src2 := e.srcReg(instr.Src2, "x11")
	e.b.WriteString(fmt.Sprintf("    %s %s, %s, %s\n", mnemonic, dst, src1, src2))
	e.finishDst(instr.Dst, dst)
}

func (e *arm64Emitter) emitCmp(instr IRInstr, cond string) {
	dst := e.dstReg(instr.Dst, "x9")
	src1 := e.srcReg(instr.Src1, "x10")
	src2 := e.srcReg(instr.Src2, "x11")
	e.b.WriteString(fmt.Sprintf("    cmp %s, %s\n", src1, src2))
	e.b.WriteString(fmt.Sprintf("    cset %s, %s\n", dst, cond))
	e.finishDst(instr.Dst, dst)
}

// emitCall marshals arguments per AAPCS64: the first eight in x0-x7, the
// rest in 8-byte stack slots (the total kept 16-byte aligned).
func (e *arm64Emitter) emitCall(instr IRInstr) {
	w := e.b
	argRegs := e.target.ArgRegs

	stackArgs := len(instr.Args) - len(argRegs)
	stackSpace := 0
	if stackArgs > 0 {
		stackSpace = alignUp16(stackArgs * 8)
		w.WriteString(fmt.Sprintf("    sub sp, sp, #%d\n", stackSpace))
		// Frame slots and spill slots are addressed off x29, so moving sp
		// here does not disturb operand access.
		for i := len(argRegs); i < len(instr.Args); i++ {
			src := e.srcReg(instr.Args[i], "x9")
			w.WriteString(fmt.Sprintf("    str %s, [sp, #%d]\n", src, 8*(i-len(argRegs))))
		}
	}

	for i := 0; i < len(instr.Args) && i < len(argRegs); i++ {
		arg := instr.Args[i]
		if arg.Kind == OpImmediate {
			e.loadImm(argRegs[i], arg.Imm)
			continue
		}
		src := e.srcReg(arg, argRegs[i])
		if src != argRegs[i] {
			w.WriteString(fmt.Sprintf("    mov %s, %s\n", argRegs[i], src))
		}
	}

	w.WriteString(fmt.Sprintf("    bl %s\n", e.target.Sym(instr.Src1.Label)))
	if stackSpace > 0 {
		w.WriteString(fmt.Sprintf("    add sp, sp, #%d\n", stackSpace))
	}

	if instr.Dst.Kind != OpNone {
		dst := e.dstReg(instr.Dst, "x9")
		if dst != "x0" {
			w.WriteString(fmt.Sprintf("    mov %s, x0\n", dst))
		}
		e.finishDst(instr.Dst, dst)
	}
}

// ---------------------------------------------------------------------------
// Memory access helpers
// ---------------------------------------------------------------------------

// loadMemOperand loads from a frame slot or a computed address, widening
// 4-byte reads with sign extension.
func (e *arm64Emitter) loadMemOperand(dst string, op Operand) {
	w := e.b
	switch op.Kind {
	case OpFrameSlot:
		e.loadSlot(dst, op.Off)
	case OpAddr:
		base := e.srcReg(VReg(op.Reg), "x17")
		if op.Size == 4 {
			if op.Off >= 0 && op.Off <= 16380 && op.Off%4 == 0 {
				w.WriteString(fmt.Sprintf("    ldrsw %s, [%s, #%d]\n", dst, base, op.Off))
			} else {
				e.addOffset("x16", base, op.Off)
				w.WriteString(fmt.Sprintf("    ldrsw %s, [x16]\n", dst))
			}
			return
		}
		if op.Off >= 0 && op.Off <= 32760 && op.Off%8 == 0 {
			w.WriteString(fmt.Sprintf("    ldr %s, [%s, #%d]\n", dst, base, op.Off))
		} else {
			e.addOffset("x16", base, op.Off)
			w.WriteString(fmt.Sprintf("    ldr %s, [x16]\n", dst))
		}
	}
}

// storeMemOperand stores src to a frame slot or a computed address,
// truncating 4-byte writes to the w register.
func (e *arm64Emitter) storeMemOperand(src string, op Operand) {
	w := e.b
	switch op.Kind {
	case OpFrameSlot:
		e.storeSlot(src, op.Off)
	case OpAddr:
		base := e.srcReg(VReg(op.Reg), "x17")
		if op.Size == 4 {
			if op.Off >= 0 && op.Off <= 16380 && op.Off%4 == 0 {
				w.WriteString(fmt.Sprintf("    str %s, [%s, #%d]\n", toW(src), base, op.Off))
			} else {
				e.addOffset("x16", base, op.Off)
				w.WriteString(fmt.Sprintf("    str %s, [x16]\n", toW(src)))
			}
			return
		}
		if op.Off >= 0 && op.Off <= 32760 && op.Off%8 == 0 {
			w.WriteString(fmt.Sprintf("    str %s, [%s, #%d]\n", src, base, op.Off))
		} else {
			e.addOffset("x16", base, op.Off)
			w.WriteString(fmt.Sprintf("    str %s, [x16]\n", src))
		}
	}
}

// loadSlot reads the 8-byte frame slot at [x29 - off] into dst.
func (e *arm64Emitter) loadSlot(dst string, off int64) {
	w := e.b
	if off <= 256 {
		w.WriteString(fmt.Sprintf("    ldur %s, [x29, #-%d]\n", dst, off))
		return
	}
	e.frameAddr("x16", off)
	w.WriteString(fmt.Sprintf("    ldr %s, [x16]\n", dst))
}

// storeSlot writes src into the 8-byte frame slot at [x29 - off].
func (e *arm64Emitter) storeSlot(src string, off int64) {
	w := e.b
	if off <= 256 {
		w.WriteString(fmt.Sprintf("    stur %s, [x29, #-%d]\n", src, off))
		return
	}
	e.frameAddr("x16", off)
	w.WriteString(fmt.Sprintf("    str %s, [x16]\n", src))
}

// frameAddr materialises x29 - off into reg.
func (e *arm64Emitter) frameAddr(reg string, off int64) {
	w := e.b
	if off <= 4095 {
		w.WriteString(fmt.Sprintf("    sub %s, x29, #%d\n", reg, off))
		return
	}
	e.loadImm(reg, off)
	w.WriteString(fmt.Sprintf("    sub %s, x29, %s\n", reg, reg))
}

// addOffset materialises base + off into reg.
func (e *arm64Emitter) addOffset(reg, base string, off int64) {
	w := e.b
	if off >= 0 && off <= 4095 {
		w.WriteString(fmt.Sprintf("    add %s, %s, #%d\n", reg, base, off))
		return
	}
	if off < 0 && off >= -4095 {
		w.WriteString(fmt.Sprintf("    sub %s, %s, #%d\n", reg, base, -off))
		return
	}
	e.loadImm(reg, off)
	w.WriteString(fmt.Sprintf("    add %s, %s, %s\n", reg, base, reg))
}

// loadGlobalAddr forms the address of a global via adrp plus the low-12
// relocation, which differs in spelling between ELF and Mach-O.
func (e *arm64Emitter) loadGlobalAddr(dst, name string) {
	w := e.b
	sym := e.target.Sym(name)
	if e.target.OS == OS_Darwin {
		w.WriteString(fmt.Sprintf("    adrp %s, %s@PAGE\n", dst, sym))
		w.WriteString(fmt.Sprintf("    add %s, %s, %s@PAGEOFF\n", dst, dst, sym))
	} else {
		w.WriteString(fmt.Sprintf("    adrp %s, %s\n", dst, sym))
		w.WriteString(fmt.Sprintf("    add %s, %s, :lo12:%s\n", dst, dst, sym))
	}
}

// ---------------------------------------------------------------------------
// Register plumbing
// ---------------------------------------------------------------------------

func (e *arm64Emitter) xname(n int) string {
	return fmt.Sprintf("x%d", n)
}

// srcReg returns a register holding the operand's value, reloading spilled
// virtual registers into scratch.
func (e *arm64Emitter) srcReg(op Operand, scratch string) string {
	switch op.Kind {
	case OpVirtReg:
		if r, ok := e.alloc.Reg[op.Reg]; ok {
			return e.xname(r)
		}
		e.loadSlot(scratch, e.alloc.SpillOff[op.Reg])
		return scratch
	case OpImmediate:
		e.loadImm(scratch, op.Imm)
		return scratch
	}
	return scratch
}

// dstReg returns the register an instruction should write its result to.
// Spilled destinations write to scratch; finishDst stores them back.
func (e *arm64Emitter) dstReg(op Operand, scratch string) string {
	if op.Kind == OpVirtReg {
		if r, ok := e.alloc.Reg[op.Reg]; ok {
			return e.xname(r)
		}
	}
	return scratch
}

func (e *arm64Emitter) finishDst(op Operand, reg string) {
	if op.Kind != OpVirtReg {
		return
	}
	if _, ok := e.alloc.Reg[op.Reg]; ok {
		return
	}
	e.storeSlot(reg, e.alloc.SpillOff[op.Reg])
}

// loadImm synthesises a 64-bit constant. Values within one mov alias stay
// a single instruction; everything else is movz plus movk per non-zero
// 16-bit chunk.
func (e *arm64Emitter) loadImm(reg string, val int64) {
	w := e.b
	if val >= -65536 && val <= 65535 {
		w.WriteString(fmt.Sprintf("    mov %s, #%d\n", reg, val))
		return
	}
	uval := uint64(val)
	w.WriteString(fmt.Sprintf("    movz %s, #%d, lsl #0\n", reg, uval&0xFFFF))
	for shift := 16; shift <= 48; shift += 16 {
		chunk := (uval >> shift) & 0xFFFF
		if chunk != 0 {
			w.WriteString(fmt.Sprintf("    movk %s, #%d, lsl #%d\n", reg, chunk, shift))
		}
	}
}
