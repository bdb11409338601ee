package codegen

import (
	"fmt"

	"occ/internal/ast"
	"occ/internal/types"
)

// ---------------------------------------------------------------------------
// Lowering — walks the analysed AST and produces the IR module
//
// Every local and parameter gets a home slot in the stack frame; scalar
// slots are 8 bytes wide and hold the value sign-extended to 64 bits,
// struct slots cover the struct's full layout. Virtual registers only ever
// hold scalar temporaries, so a value that must survive a call or a loop
// back-edge is always rematerialised from its slot.
// ---------------------------------------------------------------------------

// localVar records where a named variable lives inside the current frame.
type localVar struct {
	off    int64 // slot offset below x29
	typ    types.Type
	layout *types.Struct // non-nil for struct variables
}

// Lowerer converts one analysed program into an IRModule.
type Lowerer struct {
	module *IRModule
	fn     *IRFunc
	cur    *Block

	scopes     []map[string]localVar
	globals    map[string]int // symbol -> size in bytes
	frameOff   int64
	nextVReg   int
	nextLabel  int
	breakLbls  []string
	contLbls   []string
	voidCallee map[string]bool
}

// Lower converts the analysed program to IR. The program must have passed
// semantic analysis without errors.
func Lower(prog *ast.Program) *IRModule {
	l := &Lowerer{
		module:     &IRModule{},
		globals:    make(map[string]int),
		voidCallee: make(map[string]bool),
	}

	for _, g := range prog.Globals {
		size := 8
		if g.Type.Resolved != nil {
			size = g.Type.Resolved.Size()
		}
		l.globals[g.Name] = size
		l.module.Globals = append(l.module.Globals, IRGlobal{
			Sym:   g.Name,
			Size:  size,
			Value: g.ConstValue,
		})
	}

	for _, fn := range prog.Functions {
		if fn.ReturnType.Resolved == types.Void {
			l.voidCallee[fn.Name] = true
		}
	}

	for _, fn := range prog.Functions {
		l.module.Functions = append(l.module.Functions, l.lowerFunc(fn))
	}
	return l.module
}

// ---------------------------------------------------------------------------
// Function lowering
// ---------------------------------------------------------------------------

func (l *Lowerer) lowerFunc(decl *ast.FuncDecl) *IRFunc {
	l.fn = &IRFunc{
		Name:       decl.Name,
		ParamCount: len(decl.Params),
		ReturnsVal: decl.ReturnType.Resolved != types.Void,
	}
	l.cur = l.fn.NewBlock("")
	l.frameOff = 0
	l.nextVReg = 0
	l.scopes = nil
	l.breakLbls = nil
	l.contLbls = nil

	l.pushScope()
	for _, p := range decl.Params {
		off := l.allocSlot(8)
		l.fn.ParamOffsets = append(l.fn.ParamOffsets, off)
		l.defineVar(p.Name, localVar{off: off, typ: p.Type.Resolved})
	}

	l.pushScope()
	l.lowerBlockStmts(decl.Body)
	l.popScope()
	l.popScope()

	// Void functions may fall off the end; give them an explicit return.
	if !l.cur.Terminated() {
		l.emit(IRInstr{Op: IRRet})
	}

	l.fn.LocalBytes = int(l.frameOff)
	l.fn.NumVRegs = l.nextVReg
	return l.fn
}

// ---------------------------------------------------------------------------
// Lowerer plumbing
// ---------------------------------------------------------------------------

func (l *Lowerer) pushScope() {
	l.scopes = append(l.scopes, make(map[string]localVar))
}

func (l *Lowerer) popScope() {
	l.scopes = l.scopes[:len(l.scopes)-1]
}

func (l *Lowerer) defineVar(name string, v localVar) {
	l.scopes[len(l.scopes)-1][name] = v
}

// lookupVar walks scopes innermost-first, mirroring the analyser's rules.
func (l *Lowerer) lookupVar(name string) (localVar, bool) {
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if v, ok := l.scopes[i][name]; ok {
			return v, true
		}
	}
	return localVar{}, false
}

// allocSlot reserves size bytes below x29 (8-byte aligned) and returns the
// offset of the slot base, so the slot occupies [x29-off, x29-off+size).
func (l *Lowerer) allocSlot(size int64) int64 {
	l.frameOff = alignUp(l.frameOff+size, 8)
	return l.frameOff
}

func alignUp(n, align int64) int64 {
	return (n + align - 1) &^ (align - 1)
}

func (l *Lowerer) newVReg() Operand {
	v := VReg(l.nextVReg)
	l.nextVReg++
	return v
}

func (l *Lowerer) newLabel(hint string) string {
	name := fmt.Sprintf("%s_%s_%d", l.fn.Name, hint, l.nextLabel)
	l.nextLabel++
	return name
}

// emit appends to the current block. Instructions that follow a terminator
// are unreachable; they go into a fresh block that nothing jumps to, which
// keeps the one-terminator-per-block invariant intact.
func (l *Lowerer) emit(instr IRInstr) {
	if l.cur.Terminated() {
		l.cur = l.fn.NewBlock(l.newLabel("dead"))
	}
	l.cur.Emit(instr)
}

// startBlock begins a new labelled block and makes it current.
func (l *Lowerer) startBlock(label string) {
	l.cur = l.fn.NewBlock(label)
}

func (l *Lowerer) branch(cond Operand, trueLbl, falseLbl string) {
	l.emit(IRInstr{Op: IRBr, Dst: LabelOp(trueLbl), Src1: cond, Src2: LabelOp(falseLbl)})
}

func (l *Lowerer) jump(label string) {
	l.emit(IRInstr{Op: IRJmp, Dst: LabelOp(label)})
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (l *Lowerer) lowerBlockStmts(block *ast.BlockStmt) {
	for _, stmt := range block.Stmts {
		l.lowerStmt(stmt)
	}
}

func (l *Lowerer) lowerStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.DeclStmt:
		l.lowerDeclStmt(s)
	case *ast.ReturnStmt:
		if s.Value != nil {
			v := l.lowerExpr(s.Value)
			l.emit(IRInstr{Op: IRRet, Src1: v})
		} else {
			l.emit(IRInstr{Op: IRRet})
		}
	case *ast.IfStmt:
		l.lowerIfStmt(s)
	case *ast.WhileStmt:
		l.lowerWhileStmt(s)
	case *ast.ForStmt:
		l.lowerForStmt(s)
	case *ast.BreakStmt:
		l.jump(l.breakLbls[len(l.breakLbls)-1])
	case *ast.ContinueStmt:
		l.jump(l.contLbls[len(l.contLbls)-1])
	case *ast.ExprStmt:
		l.lowerExpr(s.Expression)
	case *ast.BlockStmt:
		l.pushScope()
		l.lowerBlockStmts(s)
		l.popScope()
	}
}

func (l *Lowerer) lowerDeclStmt(s *ast.DeclStmt) {
	for _, d := range s.Decls {
		t := d.Type.Resolved
		if st, ok := t.(*types.Struct); ok {
			off := l.allocSlot(int64(st.Size()))
			l.defineVar(d.Name, localVar{off: off, typ: t, layout: st})
			continue
		}

		off := l.allocSlot(8)
		l.defineVar(d.Name, localVar{off: off, typ: t})
		if d.Init != nil {
			v := l.lowerExpr(d.Init)
			l.emit(IRInstr{Op: IRStore, Dst: Slot(off, 8), Src1: v})
		}
	}
}

func (l *Lowerer) lowerIfStmt(s *ast.IfStmt) {
	thenLbl := l.newLabel("if_then")
	endLbl := l.newLabel("if_end")
	elseLbl := endLbl
	if s.Else != nil {
		elseLbl = l.newLabel("if_else")
	}

	cond := l.lowerExpr(s.Condition)
	l.branch(cond, thenLbl, elseLbl)

	l.startBlock(thenLbl)
	l.pushScope()
	l.lowerBlockStmts(s.Then)
	l.popScope()
	if !l.cur.Terminated() {
		l.jump(endLbl)
	}

	if s.Else != nil {
		l.startBlock(elseLbl)
		switch e := s.Else.(type) {
		case *ast.BlockStmt:
			l.pushScope()
			l.lowerBlockStmts(e)
			l.popScope()
		case *ast.IfStmt:
			l.lowerIfStmt(e)
		}
		if !l.cur.Terminated() {
			l.jump(endLbl)
		}
	}

	l.startBlock(endLbl)
}

func (l *Lowerer) lowerWhileStmt(s *ast.WhileStmt) {
	headLbl := l.newLabel("while_head")
	bodyLbl := l.newLabel("while_body")
	endLbl := l.newLabel("while_end")

	l.jump(headLbl)
	l.startBlock(headLbl)
	cond := l.lowerExpr(s.Condition)
	l.branch(cond, bodyLbl, endLbl)

	l.breakLbls = append(l.breakLbls, endLbl)
	l.contLbls = append(l.contLbls, headLbl)

	l.startBlock(bodyLbl)
	l.pushScope()
	l.lowerBlockStmts(s.Body)
	l.popScope()
	if !l.cur.Terminated() {
		l.jump(headLbl)
	}

	l.breakLbls = l.breakLbls[:len(l.breakLbls)-1]
	l.contLbls = l.contLbls[:len(l.contLbls)-1]

	l.startBlock(endLbl)
}

func (l *Lowerer) lowerForStmt(s *ast.ForStmt) {
	headLbl := l.newLabel("for_head")
	bodyLbl := l.newLabel("for_body")
	stepLbl := l.newLabel("for_step")
	endLbl := l.newLabel("for_end")

	// The init declaration scopes over the header and the body.
	l.pushScope()
	if s.Init != nil {
		l.lowerStmt(s.Init)
	}

	l.jump(headLbl)
	l.startBlock(headLbl)
	if s.Condition != nil {
		cond := l.lowerExpr(s.Condition)
		l.branch(cond, bodyLbl, endLbl)
	} else {
		l.jump(bodyLbl)
	}

	l.breakLbls = append(l.breakLbls, endLbl)
	l.contLbls = append(l.contLbls, stepLbl)

	l.startBlock(bodyLbl)
	l.pushScope()
	l.lowerBlockStmts(s.Body)
	l.popScope()
	if !l.cur.Terminated() {
		l.jump(stepLbl)
	}

	l.breakLbls = l.breakLbls[:len(l.breakLbls)-1]
	l.contLbls = l.contLbls[:len(l.contLbls)-1]

	l.startBlock(stepLbl)
	if s.Update != nil {
		l.lowerExpr(s.Update)
	}
	l.jump(headLbl)

	l.startBlock(endLbl)
	l.popScope()
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// lowerExpr lowers an expression and returns the virtual register holding
// its value (sign-extended to 64 bits).
func (l *Lowerer) lowerExpr(expr ast.Expr) Operand {
	switch e := expr.(type) {
	case *ast.IntLitExpr:
		dst := l.newVReg()
		l.emit(IRInstr{Op: IRMov, Dst: dst, Src1: Imm(e.Value)})
		return dst
	case *ast.IdentExpr:
		return l.loadFrom(l.lvalueAddr(e))
	case *ast.MemberExpr:
		return l.loadFrom(l.lvalueAddr(e))
	case *ast.GroupExpr:
		return l.lowerExpr(e.Expression)
	case *ast.UnaryExpr:
		return l.lowerUnaryExpr(e)
	case *ast.BinaryExpr:
		return l.lowerBinaryExpr(e)
	case *ast.AssignExpr:
		return l.lowerAssignExpr(e)
	case *ast.CallExpr:
		return l.lowerCallExpr(e)
	default:
		panic(fmt.Sprintf("lower: unexpected expression %T", expr))
	}
}

func (l *Lowerer) loadFrom(addr Operand) Operand {
	dst := l.newVReg()
	l.emit(IRInstr{Op: IRLoad, Dst: dst, Src1: addr})
	return dst
}

// lvalueAddr resolves an assignable expression to a memory operand.
// Globals go through an address register; struct members become an address
// register plus the accumulated field offset.
func (l *Lowerer) lvalueAddr(expr ast.Expr) Operand {
	switch e := expr.(type) {
	case *ast.GroupExpr:
		return l.lvalueAddr(e.Expression)

	case *ast.IdentExpr:
		if e.Global {
			size := l.globals[e.Name]
			addr := l.newVReg()
			l.emit(IRInstr{Op: IRGlobalAddr, Dst: addr, Src1: Global(e.Name, size)})
			return Addr(addr.Reg, 0, size)
		}
		v, ok := l.lookupVar(e.Name)
		if !ok {
			panic(fmt.Sprintf("lower: unresolved local %q", e.Name))
		}
		return Slot(v.off, 8)

	case *ast.MemberExpr:
		// Walk nested member accesses down to the named struct variable,
		// accumulating the constant field offset.
		var fieldOff int64
		size := e.FieldInfo.Type.Size()
		node := ast.Expr(e)
		for {
			m, ok := node.(*ast.MemberExpr)
			if !ok {
				break
			}
			fieldOff += int64(m.FieldInfo.Offset)
			node = m.Object
			if g, ok := node.(*ast.GroupExpr); ok {
				node = g.Expression
			}
		}
		ident, ok := node.(*ast.IdentExpr)
		if !ok {
			panic("lower: member access base is not a variable")
		}
		v, ok := l.lookupVar(ident.Name)
		if !ok || v.layout == nil {
			panic(fmt.Sprintf("lower: unresolved struct variable %q", ident.Name))
		}
		base := l.newVReg()
		l.emit(IRInstr{Op: IRLea, Dst: base, Src1: Slot(v.off, v.layout.Size())})
		return Addr(base.Reg, fieldOff, size)

	default:
		panic(fmt.Sprintf("lower: %T is not an lvalue", expr))
	}
}

func (l *Lowerer) lowerUnaryExpr(e *ast.UnaryExpr) Operand {
	// Fold negated literals so small constants stay single instructions.
	if lit, ok := e.Operand.(*ast.IntLitExpr); ok && e.Op == "-" {
		dst := l.newVReg()
		l.emit(IRInstr{Op: IRMov, Dst: dst, Src1: Imm(-lit.Value)})
		return dst
	}

	v := l.lowerExpr(e.Operand)
	dst := l.newVReg()
	switch e.Op {
	case "-":
		l.emit(IRInstr{Op: IRNeg, Dst: dst, Src1: v})
	case "!":
		l.emit(IRInstr{Op: IRNot, Dst: dst, Src1: v})
	default:
		panic(fmt.Sprintf("lower: unexpected unary operator %q", e.Op))
	}
	return dst
}

var binaryOps = map[string]IROp{
	"+": IRAdd, "-": IRSub, "*": IRMul, "/": IRDiv, "%": IRMod,
	"==": IRCmpEq, "!=": IRCmpNe,
	"<": IRCmpLt, "<=": IRCmpLe, ">": IRCmpGt, ">=": IRCmpGe,
}

func (l *Lowerer) lowerBinaryExpr(e *ast.BinaryExpr) Operand {
	if e.Op == "&&" || e.Op == "||" {
		return l.lowerShortCircuit(e)
	}

	op, ok := binaryOps[e.Op]
	if !ok {
		panic(fmt.Sprintf("lower: unexpected binary operator %q", e.Op))
	}
	left := l.lowerExpr(e.Left)
	right := l.lowerExpr(e.Right)
	dst := l.newVReg()
	l.emit(IRInstr{Op: op, Dst: dst, Src1: left, Src2: right})
	return dst
}

// lowerShortCircuit lowers && and || with a frame-slot temporary so the
// result survives the branch without needing cross-block virtual registers.
func (l *Lowerer) lowerShortCircuit(e *ast.BinaryExpr) Operand {
	tmp := Slot(l.allocSlot(8), 8)
	rhsLbl := l.newLabel("sc_rhs")
	doneLbl := l.newLabel("sc_done")

	// Seed the temporary with the answer the left side alone decides.
	seed := l.newVReg()
	if e.Op == "&&" {
		l.emit(IRInstr{Op: IRMov, Dst: seed, Src1: Imm(0)})
	} else {
		l.emit(IRInstr{Op: IRMov, Dst: seed, Src1: Imm(1)})
	}
	l.emit(IRInstr{Op: IRStore, Dst: tmp, Src1: seed})

	left := l.lowerExpr(e.Left)
	if e.Op == "&&" {
		l.branch(left, rhsLbl, doneLbl) // false short-circuits to 0
	} else {
		l.branch(left, doneLbl, rhsLbl) // true short-circuits to 1
	}

	l.startBlock(rhsLbl)
	right := l.lowerExpr(e.Right)
	zero := l.newVReg()
	l.emit(IRInstr{Op: IRMov, Dst: zero, Src1: Imm(0)})
	norm := l.newVReg()
	l.emit(IRInstr{Op: IRCmpNe, Dst: norm, Src1: right, Src2: zero})
	l.emit(IRInstr{Op: IRStore, Dst: tmp, Src1: norm})
	l.jump(doneLbl)

	l.startBlock(doneLbl)
	return l.loadFrom(tmp)
}

func (l *Lowerer) lowerAssignExpr(e *ast.AssignExpr) Operand {
	value := l.lowerExpr(e.Value)
	addr := l.lvalueAddr(e.Target)
	l.emit(IRInstr{Op: IRStore, Dst: addr, Src1: value})
	return value
}

func (l *Lowerer) lowerCallExpr(e *ast.CallExpr) Operand {
	args := make([]Operand, len(e.Args))
	for i, arg := range e.Args {
		args[i] = l.lowerExpr(arg)
	}

	dst := None()
	if !l.voidCallee[e.Callee] {
		dst = l.newVReg()
	}
	l.emit(IRInstr{Op: IRCall, Dst: dst, Src1: LabelOp(e.Callee), Args: args})
	return dst
}
