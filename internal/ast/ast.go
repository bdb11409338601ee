package ast

import (
	"fmt"
	"strings"

	"occ/internal/types"
)

// ---------------------------------------------------------------------------
// Source position
// ---------------------------------------------------------------------------

// Position represents a line/column pair in source code (1-based).
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// Node is implemented by every AST node.
type Node interface {
	GetPos() Position
}

// Stmt is implemented by every statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by every expression node.
type Expr interface {
	Node
	exprNode()
}

// ---------------------------------------------------------------------------
// Program (root)
// ---------------------------------------------------------------------------

type Program struct {
	Structs   []*StructDecl
	Globals   []*VarDecl
	Functions []*FuncDecl
	Pos       Position
}

func (n *Program) GetPos() Position { return n.Pos }

// ---------------------------------------------------------------------------
// Top-level declarations
// ---------------------------------------------------------------------------

// TypeExpr represents a type written in source: "int", "long", "void", or
// "struct <tag>". Resolved is filled in by semantic analysis.
type TypeExpr struct {
	Name     string // "int", "long", "void", or the struct tag
	IsStruct bool
	Pos      Position
	Resolved types.Type // set by semantic analysis
}

func (t *TypeExpr) String() string {
	if t.IsStruct {
		return "struct " + t.Name
	}
	return t.Name
}

// StructDecl: struct <tag> { <fields> };
type StructDecl struct {
	Name   string
	Fields []*FieldDecl
	Pos    Position
	Layout *types.Struct // set by semantic analysis
}

func (n *StructDecl) GetPos() Position { return n.Pos }

// FieldDecl is one member of a struct declaration.
type FieldDecl struct {
	Name string
	Type *TypeExpr
	Pos  Position
}

func (n *FieldDecl) GetPos() Position { return n.Pos }

// VarDecl is a single declarator: <type> <name> [= <init>];
// Used both for globals and for local declaration statements.
type VarDecl struct {
	Name string
	Type *TypeExpr
	Init Expr // nil when there is no initializer
	Pos  Position

	// ConstValue is the evaluated initializer for globals, set by semantic
	// analysis (global initializers must be constant expressions).
	ConstValue int64
}

func (n *VarDecl) GetPos() Position { return n.Pos }

// Param represents a single function parameter.
type Param struct {
	Name string
	Type *TypeExpr
	Pos  Position
}

// FuncDecl: <return-type> <name>(<params>) { <body> }
type FuncDecl struct {
	Name       string
	Params     []*Param
	ReturnType *TypeExpr
	Body       *BlockStmt
	Pos        Position
}

func (n *FuncDecl) GetPos() Position { return n.Pos }

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// BlockStmt is a brace-delimited list of statements.
type BlockStmt struct {
	Stmts []Stmt
	Pos   Position
}

func (n *BlockStmt) GetPos() Position { return n.Pos }
func (n *BlockStmt) stmtNode()        {}

// DeclStmt: <type> <name> [= <init>] {, <name> [= <init>]};
type DeclStmt struct {
	Decls []*VarDecl
	Pos   Position
}

func (n *DeclStmt) GetPos() Position { return n.Pos }
func (n *DeclStmt) stmtNode()        {}

// ReturnStmt: return [<value>];
type ReturnStmt struct {
	Value Expr // nil for bare "return;"
	Pos   Position
}

func (n *ReturnStmt) GetPos() Position { return n.Pos }
func (n *ReturnStmt) stmtNode()        {}

// BreakStmt: break;
type BreakStmt struct {
	Pos Position
}

func (n *BreakStmt) GetPos() Position { return n.Pos }
func (n *BreakStmt) stmtNode()        {}

// ContinueStmt: continue;
type ContinueStmt struct {
	Pos Position
}

func (n *ContinueStmt) GetPos() Position { return n.Pos }
func (n *ContinueStmt) stmtNode()        {}

// IfStmt: if (<cond>) <then> [else <else>]
type IfStmt struct {
	Condition Expr
	Then      *BlockStmt
	Else      Stmt // nil, *BlockStmt, or *IfStmt (else-if chain)
	Pos       Position
}

func (n *IfStmt) GetPos() Position { return n.Pos }
func (n *IfStmt) stmtNode()        {}

// WhileStmt: while (<cond>) <body>
type WhileStmt struct {
	Condition Expr
	Body      *BlockStmt
	Pos       Position
}

func (n *WhileStmt) GetPos() Position { return n.Pos }
func (n *WhileStmt) stmtNode()        {}

// ForStmt: for (<init>; <cond>; <update>) <body>
// Any of the three header parts may be absent.
type ForStmt struct {
	Init      Stmt // *DeclStmt or *ExprStmt, nil when empty
	Condition Expr // nil when empty (loops forever)
	Update    Expr // nil when empty
	Body      *BlockStmt
	Pos       Position
}

func (n *ForStmt) GetPos() Position { return n.Pos }
func (n *ForStmt) stmtNode()        {}

// ExprStmt wraps a bare expression used as a statement.
type ExprStmt struct {
	Expression Expr
	Pos        Position
}

func (n *ExprStmt) GetPos() Position { return n.Pos }
func (n *ExprStmt) stmtNode()        {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// IdentExpr is a plain identifier reference.
type IdentExpr struct {
	Name string
	Pos  Position

	// Set by semantic analysis.
	T      types.Type
	Global bool
}

func (n *IdentExpr) GetPos() Position { return n.Pos }
func (n *IdentExpr) exprNode()        {}

// IntLitExpr is an integer literal (lexeme kept alongside the parsed value).
type IntLitExpr struct {
	Text  string
	Value int64
	Pos   Position

	T types.Type
}

func (n *IntLitExpr) GetPos() Position { return n.Pos }
func (n *IntLitExpr) exprNode()        {}

// UnaryExpr: <op><operand>  (e.g. !x, -y)
type UnaryExpr struct {
	Op      string
	Operand Expr
	Pos     Position

	T types.Type
}

func (n *UnaryExpr) GetPos() Position { return n.Pos }
func (n *UnaryExpr) exprNode()        {}

// BinaryExpr: <left> <op> <right>
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
	Pos   Position

	T types.Type
}

func (n *BinaryExpr) GetPos() Position { return n.Pos }
func (n *BinaryExpr) exprNode()        {}

// AssignExpr: <target> = <value>  (right associative, yields the value)
type AssignExpr struct {
	Target Expr // *IdentExpr or *MemberExpr
	Value  Expr
	Pos    Position

	T types.Type
}

func (n *AssignExpr) GetPos() Position { return n.Pos }
func (n *AssignExpr) exprNode()        {}

// CallExpr: <callee>(<args>)
type CallExpr struct {
	Callee string
	Args   []Expr
	Pos    Position

	T types.Type
}

func (n *CallExpr) GetPos() Position { return n.Pos }
func (n *CallExpr) exprNode()        {}

// MemberExpr: <object>.<field>
type MemberExpr struct {
	Object Expr
	Field  string
	Pos    Position

	// Set by semantic analysis.
	T         types.Type
	FieldInfo *types.Field
}

func (n *MemberExpr) GetPos() Position { return n.Pos }
func (n *MemberExpr) exprNode()        {}

// GroupExpr: (<expression>)
type GroupExpr struct {
	Expression Expr
	Pos        Position
}

func (n *GroupExpr) GetPos() Position { return n.Pos }
func (n *GroupExpr) exprNode()        {}

// ---------------------------------------------------------------------------
// Debug printer – produces a human-readable tree representation
// ---------------------------------------------------------------------------

// DebugString returns a readable multi-line representation of the AST.
func DebugString(prog *Program) string {
	var b strings.Builder
	debugProgram(&b, prog, 0)
	return b.String()
}

func writeIndent(b *strings.Builder, level int) {
	for i := 0; i < level; i++ {
		b.WriteString("  ")
	}
}

func debugProgram(b *strings.Builder, prog *Program, level int) {
	writeIndent(b, level)
	b.WriteString("Program\n")

	for _, s := range prog.Structs {
		writeIndent(b, level+1)
		fields := make([]string, len(s.Fields))
		for i, f := range s.Fields {
			fields[i] = f.Type.String() + " " + f.Name
		}
		fmt.Fprintf(b, "Struct %s { %s }\n", s.Name, strings.Join(fields, "; "))
	}
	for _, g := range prog.Globals {
		writeIndent(b, level+1)
		if g.Init != nil {
			fmt.Fprintf(b, "Global: %s %s = %s\n", g.Type, g.Name, ExprString(g.Init))
		} else {
			fmt.Fprintf(b, "Global: %s %s\n", g.Type, g.Name)
		}
	}
	for _, fn := range prog.Functions {
		debugFuncDecl(b, fn, level+1)
	}
}

func debugFuncDecl(b *strings.Builder, fn *FuncDecl, level int) {
	writeIndent(b, level)
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.Type.String() + " " + p.Name
	}
	fmt.Fprintf(b, "Func %s %s(%s)\n", fn.ReturnType, fn.Name, strings.Join(params, ", "))
	debugBlock(b, fn.Body, level+1)
}

func debugBlock(b *strings.Builder, block *BlockStmt, level int) {
	writeIndent(b, level)
	fmt.Fprintf(b, "Block [%d statements]\n", len(block.Stmts))
	for _, s := range block.Stmts {
		debugStmt(b, s, level+1)
	}
}

func debugStmt(b *strings.Builder, s Stmt, level int) {
	switch s := s.(type) {
	case *DeclStmt:
		for _, d := range s.Decls {
			writeIndent(b, level)
			if d.Init != nil {
				fmt.Fprintf(b, "DeclStmt %s %s = %s\n", d.Type, d.Name, ExprString(d.Init))
			} else {
				fmt.Fprintf(b, "DeclStmt %s %s\n", d.Type, d.Name)
			}
		}
	case *ReturnStmt:
		writeIndent(b, level)
		if s.Value != nil {
			fmt.Fprintf(b, "ReturnStmt %s\n", ExprString(s.Value))
		} else {
			b.WriteString("ReturnStmt\n")
		}
	case *BreakStmt:
		writeIndent(b, level)
		b.WriteString("BreakStmt\n")
	case *ContinueStmt:
		writeIndent(b, level)
		b.WriteString("ContinueStmt\n")
	case *IfStmt:
		writeIndent(b, level)
		fmt.Fprintf(b, "IfStmt (%s)\n", ExprString(s.Condition))
		debugBlock(b, s.Then, level+1)
		if s.Else != nil {
			writeIndent(b, level+1)
			b.WriteString("Else:\n")
			switch e := s.Else.(type) {
			case *BlockStmt:
				debugBlock(b, e, level+2)
			case *IfStmt:
				debugStmt(b, e, level+2)
			}
		}
	case *WhileStmt:
		writeIndent(b, level)
		fmt.Fprintf(b, "WhileStmt (%s)\n", ExprString(s.Condition))
		debugBlock(b, s.Body, level+1)
	case *ForStmt:
		writeIndent(b, level)
		b.WriteString("ForStmt\n")
		if s.Init != nil {
			writeIndent(b, level+1)
			b.WriteString("Init:\n")
			debugStmt(b, s.Init, level+2)
		}
		if s.Condition != nil {
			writeIndent(b, level+1)
			fmt.Fprintf(b, "Cond: %s\n", ExprString(s.Condition))
		}
		if s.Update != nil {
			writeIndent(b, level+1)
			fmt.Fprintf(b, "Update: %s\n", ExprString(s.Update))
		}
		debugBlock(b, s.Body, level+1)
	case *ExprStmt:
		writeIndent(b, level)
		fmt.Fprintf(b, "ExprStmt %s\n", ExprString(s.Expression))
	case *BlockStmt:
		debugBlock(b, s, level)
	default:
		writeIndent(b, level)
		b.WriteString("<unknown stmt>\n")
	}
}

// ExprString returns a concise one-line representation of an expression.
func ExprString(e Expr) string {
	if e == nil {
		return "<nil>"
	}
	switch e := e.(type) {
	case *IdentExpr:
		return e.Name
	case *IntLitExpr:
		return e.Text
	case *UnaryExpr:
		return fmt.Sprintf("(%s%s)", e.Op, ExprString(e.Operand))
	case *BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", ExprString(e.Left), e.Op, ExprString(e.Right))
	case *AssignExpr:
		return fmt.Sprintf("(%s = %s)", ExprString(e.Target), ExprString(e.Value))
	case *CallExpr:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = ExprString(a)
		}
		return fmt.Sprintf("%s(%s)", e.Callee, strings.Join(args, ", "))
	case *MemberExpr:
		return fmt.Sprintf("%s.%s", ExprString(e.Object), e.Field)
	case *GroupExpr:
		return fmt.Sprintf("(%s)", ExprString(e.Expression))
	default:
		return "<unknown expr>"
	}
}
