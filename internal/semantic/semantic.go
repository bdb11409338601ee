package semantic

import (
	"fmt"
	"math"

	"occ/internal/ast"
	"occ/internal/types"
)

// ---------------------------------------------------------------------------
// Diagnostic severity
// ---------------------------------------------------------------------------

// Severity indicates whether a diagnostic is an error or a warning.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// ---------------------------------------------------------------------------
// Diagnostic
// ---------------------------------------------------------------------------

// Kind classifies a diagnostic so that callers (and tests) can tell what
// rule was violated without string matching.
type Kind string

const (
	KindType       Kind = "type"
	KindUndeclared Kind = "undeclared"
	KindArity      Kind = "arity"
	KindLvalue     Kind = "lvalue"
)

// Diagnostic represents a single message produced by the semantic analyser.
type Diagnostic struct {
	Kind     Kind
	Message  string
	Pos      ast.Position
	Severity Severity
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("line %d, col %d: %s: %s", d.Pos.Line, d.Pos.Column, d.Severity, d.Message)
}

// HasErrors returns true if any diagnostic in the slice is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Symbol
// ---------------------------------------------------------------------------

// SymbolKind describes what a symbol represents.
type SymbolKind int

const (
	SymGlobal SymbolKind = iota // file-scope variable
	SymLocal                    // block-scope variable
	SymParam                    // function parameter
	SymFunc                     // function definition
)

// Symbol records the declaration of a name in a scope.
type Symbol struct {
	Name string
	Kind SymbolKind
	Type types.Type // for variables: the declared type; for functions: the return type
	Pos  ast.Position

	// Function-only fields.
	Params     []types.Type
	ReturnType types.Type
}

// ---------------------------------------------------------------------------
// Scope
// ---------------------------------------------------------------------------

// Scope is a symbol table with an optional parent (lexical scoping).
type Scope struct {
	parent  *Scope
	symbols map[string]*Symbol
}

func newScope(parent *Scope) *Scope {
	return &Scope{parent: parent, symbols: make(map[string]*Symbol)}
}

// define adds a symbol to this scope (overwrites if already present).
func (s *Scope) define(sym *Symbol) {
	s.symbols[sym.Name] = sym
}

// lookupLocal returns the symbol with the given name in this scope only.
func (s *Scope) lookupLocal(name string) *Symbol {
	return s.symbols[name]
}

// lookup traverses the scope chain (current → parent → …) to find a symbol.
func (s *Scope) lookup(name string) *Symbol {
	if sym := s.symbols[name]; sym != nil {
		return sym
	}
	if s.parent != nil {
		return s.parent.lookup(name)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Analyser
// ---------------------------------------------------------------------------

// Analyzer holds the state for a single semantic-analysis pass. It resolves
// names against the scope chain, checks types, and annotates the AST in
// place (TypeExpr.Resolved, expression T fields, member offsets) for the
// lowering stage.
type Analyzer struct {
	diagnostics []Diagnostic
	scope       *Scope
	structTags  map[string]*types.Struct // struct tags live in their own namespace
	currentFunc *ast.FuncDecl
	currentRet  types.Type
	loopDepth   int // > 0 when inside a loop
}

// Analyze runs semantic analysis on the given AST program and returns all
// diagnostics (errors and warnings). The returned slice is empty when the
// program is semantically valid.
func Analyze(program *ast.Program) []Diagnostic {
	a := &Analyzer{
		scope:      newScope(nil), // global scope
		structTags: make(map[string]*types.Struct),
	}
	a.analyzeProgram(program)
	return a.diagnostics
}

// ---- helpers ----

func (a *Analyzer) error(kind Kind, pos ast.Position, msg string) {
	a.diagnostics = append(a.diagnostics, Diagnostic{
		Kind:     kind,
		Message:  msg,
		Pos:      pos,
		Severity: Error,
	})
}

func (a *Analyzer) warn(pos ast.Position, msg string) {
	a.diagnostics = append(a.diagnostics, Diagnostic{
		Kind:     KindType,
		Message:  msg,
		Pos:      pos,
		Severity: Warning,
	})
}

func (a *Analyzer) pushScope() {
	a.scope = newScope(a.scope)
}

func (a *Analyzer) popScope() {
	a.scope = a.scope.parent
}

// ---------------------------------------------------------------------------
// Program analysis
// ---------------------------------------------------------------------------

func (a *Analyzer) analyzeProgram(prog *ast.Program) {
	// Struct declarations first: later declarations may use earlier tags.
	for _, s := range prog.Structs {
		a.registerStruct(s)
	}

	// Globals next, then every function signature, so that functions can
	// call each other (including recursion) regardless of source order.
	for _, g := range prog.Globals {
		a.registerGlobal(g)
	}
	for _, fn := range prog.Functions {
		a.registerFunction(fn)
	}

	for _, fn := range prog.Functions {
		if sym := a.scope.lookupLocal(fn.Name); sym == nil || sym.Kind != SymFunc {
			continue // registration failed
		}
		a.analyzeFunction(fn)
	}

	if a.scope.lookupLocal("main") == nil {
		a.warn(prog.Pos, "no 'main' function defined; the linked program will have no entry point")
	}
}

func (a *Analyzer) registerStruct(s *ast.StructDecl) {
	if _, exists := a.structTags[s.Name]; exists {
		a.error(KindType, s.Pos, fmt.Sprintf("redefinition of struct %q", s.Name))
		return
	}

	var members []types.Field
	seen := make(map[string]bool)
	for _, f := range s.Fields {
		ft := a.resolveType(f.Type)
		if ft == nil {
			continue
		}
		if ft == types.Void {
			a.error(KindType, f.Pos, fmt.Sprintf("field %q cannot have type void", f.Name))
			continue
		}
		if seen[f.Name] {
			a.error(KindType, f.Pos, fmt.Sprintf("duplicate field %q in struct %q", f.Name, s.Name))
			continue
		}
		seen[f.Name] = true
		members = append(members, types.Field{Name: f.Name, Type: ft})
	}

	s.Layout = types.NewStruct(s.Name, members)
	a.structTags[s.Name] = s.Layout
}

func (a *Analyzer) registerGlobal(g *ast.VarDecl) {
	t := a.resolveType(g.Type)
	if t == nil {
		return
	}
	if t == types.Void {
		a.error(KindType, g.Pos, fmt.Sprintf("variable %q declared void", g.Name))
		return
	}
	if !types.IsNumeric(t) {
		a.error(KindType, g.Pos, fmt.Sprintf("global %q: struct-typed globals are not supported", g.Name))
		return
	}

	if existing := a.scope.lookupLocal(g.Name); existing != nil {
		a.error(KindType, g.Pos, fmt.Sprintf("%q already declared at %s", g.Name, existing.Pos))
		return
	}

	if g.Init != nil {
		value, ok := a.constEval(g.Init)
		if !ok {
			a.error(KindType, g.Init.GetPos(),
				fmt.Sprintf("initializer for global %q must be a constant expression", g.Name))
		}
		g.ConstValue = value
	}

	a.scope.define(&Symbol{
		Name: g.Name,
		Kind: SymGlobal,
		Type: t,
		Pos:  g.Pos,
	})
}

func (a *Analyzer) registerFunction(fn *ast.FuncDecl) {
	if existing := a.scope.lookupLocal(fn.Name); existing != nil {
		a.error(KindType, fn.Pos, fmt.Sprintf("%q already declared at %s", fn.Name, existing.Pos))
		return
	}

	retType := a.resolveType(fn.ReturnType)
	if retType != nil && retType != types.Void && !types.IsNumeric(retType) {
		a.error(KindType, fn.Pos,
			fmt.Sprintf("function %q: struct return types are not supported", fn.Name))
		retType = nil
	}

	paramTypes := make([]types.Type, len(fn.Params))
	for i, p := range fn.Params {
		pt := a.resolveType(p.Type)
		if pt == types.Void {
			a.error(KindType, p.Pos, fmt.Sprintf("parameter %q cannot have type void", p.Name))
			pt = nil
		}
		if pt != nil && !types.IsNumeric(pt) {
			a.error(KindType, p.Pos,
				fmt.Sprintf("parameter %q: struct parameters are not supported", p.Name))
			pt = nil
		}
		paramTypes[i] = pt
	}

	a.scope.define(&Symbol{
		Name:       fn.Name,
		Kind:       SymFunc,
		Type:       retType,
		Pos:        fn.Pos,
		Params:     paramTypes,
		ReturnType: retType,
	})
}

func (a *Analyzer) analyzeFunction(fn *ast.FuncDecl) {
	a.currentFunc = fn
	a.currentRet = a.resolveType(fn.ReturnType)
	a.pushScope()

	// Register parameters in the function scope.
	for _, param := range fn.Params {
		pType := a.resolveType(param.Type)
		if existing := a.scope.lookupLocal(param.Name); existing != nil {
			a.error(KindType, param.Pos, fmt.Sprintf("duplicate parameter %q", param.Name))
			continue
		}
		a.scope.define(&Symbol{
			Name: param.Name,
			Kind: SymParam,
			Type: pType,
			Pos:  param.Pos,
		})
	}

	// Analyse the function body in a nested scope so that body-level
	// declarations shadow (warn) rather than duplicate (error) parameters.
	a.pushScope()
	a.analyzeBlock(fn.Body)
	a.popScope()

	// Non-void functions must return a value on every path.
	if a.currentRet != nil && a.currentRet != types.Void && !a.blockReturns(fn.Body) {
		a.error(KindType, fn.Pos,
			fmt.Sprintf("function %q must return a value of type %s on all paths", fn.Name, a.currentRet))
	}

	a.popScope()
	a.currentFunc = nil
	a.currentRet = nil
}

func (a *Analyzer) analyzeBlock(block *ast.BlockStmt) {
	for _, stmt := range block.Stmts {
		a.analyzeStmt(stmt)
	}
}

func (a *Analyzer) analyzeStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.DeclStmt:
		a.analyzeDeclStmt(s)
	case *ast.ReturnStmt:
		a.analyzeReturnStmt(s)
	case *ast.IfStmt:
		a.analyzeIfStmt(s)
	case *ast.WhileStmt:
		a.analyzeWhileStmt(s)
	case *ast.ForStmt:
		a.analyzeForStmt(s)
	case *ast.BreakStmt:
		if a.loopDepth == 0 {
			a.error(KindType, s.Pos, "break statement not within a loop")
		}
	case *ast.ContinueStmt:
		if a.loopDepth == 0 {
			a.error(KindType, s.Pos, "continue statement not within a loop")
		}
	case *ast.ExprStmt:
		a.analyzeExpr(s.Expression)
	case *ast.BlockStmt:
		a.pushScope()
		a.analyzeBlock(s)
		a.popScope()
	}
}

func (a *Analyzer) analyzeDeclStmt(s *ast.DeclStmt) {
	for _, d := range s.Decls {
		t := a.resolveType(d.Type)
		if t == nil {
			continue
		}
		if t == types.Void {
			a.error(KindType, d.Pos, fmt.Sprintf("variable %q declared void", d.Name))
			continue
		}

		if existing := a.scope.lookupLocal(d.Name); existing != nil {
			a.error(KindType, d.Pos, fmt.Sprintf("redeclaration of %q (first declared at %s)", d.Name, existing.Pos))
			continue
		}
		if outer := a.scope.lookup(d.Name); outer != nil && outer.Kind != SymFunc {
			a.warn(d.Pos, fmt.Sprintf("declaration of %q shadows a previous declaration at %s", d.Name, outer.Pos))
		}

		if d.Init != nil {
			if _, isStruct := t.(*types.Struct); isStruct {
				a.error(KindType, d.Init.GetPos(), "struct initializers are not supported")
			} else if vt := a.analyzeExpr(d.Init); vt != nil && !types.IsNumeric(vt) {
				a.error(KindType, d.Init.GetPos(),
					fmt.Sprintf("cannot initialize %s with a value of type %s", t, vt))
			}
		}

		a.scope.define(&Symbol{
			Name: d.Name,
			Kind: SymLocal,
			Type: t,
			Pos:  d.Pos,
		})
	}
}

func (a *Analyzer) analyzeReturnStmt(s *ast.ReturnStmt) {
	if a.currentRet == types.Void {
		if s.Value != nil {
			a.error(KindType, s.Pos,
				fmt.Sprintf("void function %q should not return a value", a.currentFunc.Name))
			a.analyzeExpr(s.Value)
		}
		return
	}

	if s.Value == nil {
		a.error(KindType, s.Pos,
			fmt.Sprintf("non-void function %q must return a value", a.currentFunc.Name))
		return
	}

	if vt := a.analyzeExpr(s.Value); vt != nil && !types.IsNumeric(vt) {
		a.error(KindType, s.Value.GetPos(),
			fmt.Sprintf("cannot return a value of type %s from a function returning %s", vt, a.currentRet))
	}
}

func (a *Analyzer) analyzeCondition(cond ast.Expr) {
	if t := a.analyzeExpr(cond); t != nil && !types.IsNumeric(t) {
		a.error(KindType, cond.GetPos(), fmt.Sprintf("condition has non-arithmetic type %s", t))
	}
}

func (a *Analyzer) analyzeIfStmt(s *ast.IfStmt) {
	a.analyzeCondition(s.Condition)

	a.pushScope()
	a.analyzeBlock(s.Then)
	a.popScope()

	if s.Else != nil {
		switch e := s.Else.(type) {
		case *ast.BlockStmt:
			a.pushScope()
			a.analyzeBlock(e)
			a.popScope()
		case *ast.IfStmt:
			a.analyzeIfStmt(e)
		}
	}
}

func (a *Analyzer) analyzeWhileStmt(s *ast.WhileStmt) {
	a.analyzeCondition(s.Condition)
	a.loopDepth++
	a.pushScope()
	a.analyzeBlock(s.Body)
	a.popScope()
	a.loopDepth--
}

func (a *Analyzer) analyzeForStmt(s *ast.ForStmt) {
	// The init declaration lives in its own scope enclosing the body.
	a.pushScope()
	if s.Init != nil {
		a.analyzeStmt(s.Init)
	}
	if s.Condition != nil {
		a.analyzeCondition(s.Condition)
	}
	if s.Update != nil {
		a.analyzeExpr(s.Update)
	}

	a.loopDepth++
	a.pushScope()
	a.analyzeBlock(s.Body)
	a.popScope()
	a.loopDepth--

	a.popScope()
}

// ---------------------------------------------------------------------------
// Expression analysis
// ---------------------------------------------------------------------------

// analyzeExpr type-checks an expression, annotates it, and returns its type.
// A nil result means a diagnostic has already been recorded.
func (a *Analyzer) analyzeExpr(expr ast.Expr) types.Type {
	switch e := expr.(type) {
	case *ast.IntLitExpr:
		return a.analyzeIntLit(e)
	case *ast.IdentExpr:
		return a.analyzeIdentExpr(e)
	case *ast.UnaryExpr:
		return a.analyzeUnaryExpr(e)
	case *ast.BinaryExpr:
		return a.analyzeBinaryExpr(e)
	case *ast.AssignExpr:
		return a.analyzeAssignExpr(e)
	case *ast.CallExpr:
		return a.analyzeCallExpr(e)
	case *ast.MemberExpr:
		return a.analyzeMemberExpr(e)
	case *ast.GroupExpr:
		return a.analyzeExpr(e.Expression)
	default:
		return nil
	}
}

func (a *Analyzer) analyzeIntLit(e *ast.IntLitExpr) types.Type {
	e.T = types.Int
	if e.Value > math.MaxInt32 || e.Value < math.MinInt32 {
		e.T = types.Long
	}
	return e.T
}

func (a *Analyzer) analyzeIdentExpr(e *ast.IdentExpr) types.Type {
	sym := a.scope.lookup(e.Name)
	if sym == nil {
		a.error(KindUndeclared, e.Pos, fmt.Sprintf("use of undeclared identifier %q", e.Name))
		return nil
	}
	if sym.Kind == SymFunc {
		a.error(KindType, e.Pos, fmt.Sprintf("function %q used as a value", e.Name))
		return nil
	}
	e.T = sym.Type
	e.Global = sym.Kind == SymGlobal
	return e.T
}

func (a *Analyzer) analyzeUnaryExpr(e *ast.UnaryExpr) types.Type {
	t := a.analyzeExpr(e.Operand)
	if t == nil {
		return nil
	}
	if !types.IsNumeric(t) {
		a.error(KindType, e.Pos, fmt.Sprintf("invalid operand of type %s to unary %q", t, e.Op))
		return nil
	}
	switch e.Op {
	case "-":
		e.T = t
	case "!":
		e.T = types.Int
	}
	return e.T
}

func (a *Analyzer) analyzeBinaryExpr(e *ast.BinaryExpr) types.Type {
	lt := a.analyzeExpr(e.Left)
	rt := a.analyzeExpr(e.Right)
	if lt == nil || rt == nil {
		return nil
	}
	if !types.IsNumeric(lt) || !types.IsNumeric(rt) {
		a.error(KindType, e.Pos,
			fmt.Sprintf("invalid operands to binary %q (%s and %s)", e.Op, lt, rt))
		return nil
	}

	switch e.Op {
	case "+", "-", "*", "/", "%":
		e.T = types.Arith(lt, rt)
	case "==", "!=", "<", "<=", ">", ">=", "&&", "||":
		e.T = types.Int
	}
	return e.T
}

func (a *Analyzer) analyzeAssignExpr(e *ast.AssignExpr) types.Type {
	// C permits parentheses around an assignment target.
	target := e.Target
	for {
		g, ok := target.(*ast.GroupExpr)
		if !ok {
			break
		}
		target = g.Expression
	}

	var tt types.Type
	switch lhs := target.(type) {
	case *ast.IdentExpr:
		sym := a.scope.lookup(lhs.Name)
		if sym == nil {
			a.error(KindUndeclared, lhs.Pos, fmt.Sprintf("use of undeclared identifier %q", lhs.Name))
			return nil
		}
		if sym.Kind == SymFunc {
			a.error(KindLvalue, lhs.Pos, fmt.Sprintf("cannot assign to function %q", lhs.Name))
			return nil
		}
		lhs.T = sym.Type
		lhs.Global = sym.Kind == SymGlobal
		tt = sym.Type
	case *ast.MemberExpr:
		tt = a.analyzeMemberExpr(lhs)
	default:
		a.error(KindLvalue, e.Pos, "expression is not assignable")
		a.analyzeExpr(e.Value)
		return nil
	}

	if tt != nil {
		if _, isStruct := tt.(*types.Struct); isStruct {
			a.error(KindType, e.Pos, "struct assignment is not supported")
			return nil
		}
	}

	if vt := a.analyzeExpr(e.Value); vt != nil && tt != nil && !types.IsNumeric(vt) {
		a.error(KindType, e.Value.GetPos(),
			fmt.Sprintf("cannot assign a value of type %s to %s", vt, tt))
	}

	e.T = tt
	return e.T
}

func (a *Analyzer) analyzeCallExpr(e *ast.CallExpr) types.Type {
	sym := a.scope.lookup(e.Callee)
	if sym == nil {
		a.error(KindUndeclared, e.Pos, fmt.Sprintf("call to undeclared function %q", e.Callee))
		for _, arg := range e.Args {
			a.analyzeExpr(arg)
		}
		return nil
	}
	if sym.Kind != SymFunc {
		a.error(KindType, e.Pos, fmt.Sprintf("called object %q is not a function", e.Callee))
		return nil
	}

	if len(e.Args) != len(sym.Params) {
		a.error(KindArity, e.Pos,
			fmt.Sprintf("function %q expects %d argument(s), got %d", e.Callee, len(sym.Params), len(e.Args)))
	}

	for _, arg := range e.Args {
		if at := a.analyzeExpr(arg); at != nil && !types.IsNumeric(at) {
			a.error(KindType, arg.GetPos(),
				fmt.Sprintf("cannot pass a value of type %s as an argument", at))
		}
	}

	e.T = sym.ReturnType
	return e.T
}

func (a *Analyzer) analyzeMemberExpr(e *ast.MemberExpr) types.Type {
	ot := a.analyzeExpr(e.Object)
	if ot == nil {
		return nil
	}
	st, ok := ot.(*types.Struct)
	if !ok {
		a.error(KindType, e.Pos, fmt.Sprintf("request for member %q in a non-struct value of type %s", e.Field, ot))
		return nil
	}
	field, ok := st.FieldByName(e.Field)
	if !ok {
		a.error(KindType, e.Pos, fmt.Sprintf("struct %q has no member named %q", st.Name, e.Field))
		return nil
	}
	e.FieldInfo = field
	e.T = field.Type
	return e.T
}

// ---------------------------------------------------------------------------
// Types and constants
// ---------------------------------------------------------------------------

// resolveType maps a syntactic type to a types.Type, caching the result on
// the node. Unknown struct tags produce a diagnostic and nil.
func (a *Analyzer) resolveType(te *ast.TypeExpr) types.Type {
	if te == nil {
		return nil
	}
	if te.Resolved != nil {
		return te.Resolved
	}

	if te.IsStruct {
		st, ok := a.structTags[te.Name]
		if !ok {
			a.error(KindUndeclared, te.Pos, fmt.Sprintf("unknown struct tag %q", te.Name))
			return nil
		}
		te.Resolved = st
		return st
	}

	switch te.Name {
	case "int":
		te.Resolved = types.Int
	case "long":
		te.Resolved = types.Long
	case "void":
		te.Resolved = types.Void
	default:
		return nil
	}
	return te.Resolved
}

// constEval folds a constant expression (used for global initializers).
func (a *Analyzer) constEval(expr ast.Expr) (int64, bool) {
	switch e := expr.(type) {
	case *ast.IntLitExpr:
		return e.Value, true
	case *ast.GroupExpr:
		return a.constEval(e.Expression)
	case *ast.UnaryExpr:
		v, ok := a.constEval(e.Operand)
		if !ok {
			return 0, false
		}
		switch e.Op {
		case "-":
			return -v, true
		case "!":
			if v == 0 {
				return 1, true
			}
			return 0, true
		}
		return 0, false
	case *ast.BinaryExpr:
		l, lok := a.constEval(e.Left)
		r, rok := a.constEval(e.Right)
		if !lok || !rok {
			return 0, false
		}
		switch e.Op {
		case "+":
			return l + r, true
		case "-":
			return l - r, true
		case "*":
			return l * r, true
		case "/":
			if r == 0 {
				return 0, false
			}
			return l / r, true
		case "%":
			if r == 0 {
				return 0, false
			}
			return l % r, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// ---------------------------------------------------------------------------
// Return-path analysis
// ---------------------------------------------------------------------------

// blockReturns reports whether every execution path through the block ends
// in a return statement.
func (a *Analyzer) blockReturns(block *ast.BlockStmt) bool {
	for _, stmt := range block.Stmts {
		if a.stmtReturns(stmt) {
			return true
		}
	}
	return false
}

func (a *Analyzer) stmtReturns(stmt ast.Stmt) bool {
	switch s := stmt.(type) {
	case *ast.ReturnStmt:
		return true
	case *ast.BlockStmt:
		return a.blockReturns(s)
	case *ast.IfStmt:
		if s.Else == nil {
			return false
		}
		elseReturns := false
		switch e := s.Else.(type) {
		case *ast.BlockStmt:
			elseReturns = a.blockReturns(e)
		case *ast.IfStmt:
			elseReturns = a.stmtReturns(e)
		}
		return a.blockReturns(s.Then) && elseReturns
	default:
		// Loops may run zero times, so they never guarantee a return.
		return false
	}
}
