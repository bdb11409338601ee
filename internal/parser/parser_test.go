package parser_test

import (
	"strings"
	"testing"

	"occ/internal/ast"
	"occ/internal/lexer"
	"occ/internal/parser"
)

// parseSource lexes and parses src, failing the test on any error.
func parseSource(t *testing.T, src string) *ast.Program {
	t.Helper()
	tokens, lexErrs := lexer.Lex(src)
	if len(lexErrs) > 0 {
		t.Fatalf("lex errors: %v", lexErrs)
	}
	prog, parseErrs := parser.Parse(tokens)
	if len(parseErrs) > 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}
	return prog
}

// parseExprFromReturn parses "int f() { return <src>; }" and hands back the
// returned expression.
func parseExprFromReturn(t *testing.T, src string) ast.Expr {
	t.Helper()
	prog := parseSource(t, "int f() { return "+src+"; }")
	if len(prog.Functions) != 1 {
		t.Fatalf("function count: got %d, want 1", len(prog.Functions))
	}
	ret, ok := prog.Functions[0].Body.Stmts[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("first statement is %T, want *ast.ReturnStmt", prog.Functions[0].Body.Stmts[0])
	}
	return ret.Value
}

func TestParseGlobalVar(t *testing.T) {
	prog := parseSource(t, "int g = 42;")
	if len(prog.Globals) != 1 {
		t.Fatalf("global count: got %d, want 1", len(prog.Globals))
	}
	g := prog.Globals[0]
	if g.Name != "g" || g.Type.Name != "int" {
		t.Errorf("got %s %s, want int g", g.Type.Name, g.Name)
	}
	if got := ast.ExprString(g.Init); got != "42" {
		t.Errorf("init: got %s, want 42", got)
	}
}

func TestParseNegativeGlobalInit(t *testing.T) {
	prog := parseSource(t, "int x = -42;")
	if got := ast.ExprString(prog.Globals[0].Init); got != "(-42)" {
		t.Errorf("init: got %s, want (-42)", got)
	}
}

func TestParseStructDecl(t *testing.T) {
	prog := parseSource(t, "struct Point { int x; int y; };")
	if len(prog.Structs) != 1 {
		t.Fatalf("struct count: got %d, want 1", len(prog.Structs))
	}
	s := prog.Structs[0]
	if s.Name != "Point" {
		t.Errorf("tag: got %s, want Point", s.Name)
	}
	if len(s.Fields) != 2 || s.Fields[0].Name != "x" || s.Fields[1].Name != "y" {
		t.Errorf("fields: got %v", s.Fields)
	}
}

func TestParseStructFieldList(t *testing.T) {
	prog := parseSource(t, "struct P { int x, y; long id; };")
	s := prog.Structs[0]
	if len(s.Fields) != 3 {
		t.Fatalf("field count: got %d, want 3", len(s.Fields))
	}
	if s.Fields[2].Type.Name != "long" {
		t.Errorf("third field type: got %s, want long", s.Fields[2].Type.Name)
	}
}

func TestParseFunction(t *testing.T) {
	prog := parseSource(t, "int add(int a, int b) { return a + b; }")
	if len(prog.Functions) != 1 {
		t.Fatalf("function count: got %d, want 1", len(prog.Functions))
	}
	fn := prog.Functions[0]
	if fn.Name != "add" || fn.ReturnType.Name != "int" {
		t.Errorf("signature: got %s %s", fn.ReturnType.Name, fn.Name)
	}
	if len(fn.Params) != 2 || fn.Params[0].Name != "a" || fn.Params[1].Name != "b" {
		t.Errorf("params: got %v", fn.Params)
	}
}

func TestParseVoidParamList(t *testing.T) {
	prog := parseSource(t, "int main(void) { return 0; }")
	if len(prog.Functions[0].Params) != 0 {
		t.Errorf("params: got %d, want 0", len(prog.Functions[0].Params))
	}
}

func TestParseStructParam(t *testing.T) {
	src := "struct Point { int x; int y; }; int take(struct Point p) { return p.x; }"
	prog := parseSource(t, src)
	param := prog.Functions[0].Params[0]
	if !param.Type.IsStruct || param.Type.Name != "Point" {
		t.Errorf("param type: got %s", param.Type)
	}
}

func TestArithmeticPrecedence(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"1 * 2 + 3", "((1 * 2) + 3)"},
		{"10 - 4 - 3", "((10 - 4) - 3)"},
		{"a < b == c", "((a < b) == c)"},
		{"a && b || c", "((a && b) || c)"},
		{"!a && -b", "((!a) && (-b))"},
		{"(1 + 2) * 3", "(((1 + 2)) * 3)"},
		{"a % 2 == 0", "((a % 2) == 0)"},
	}
	for _, c := range cases {
		expr := parseExprFromReturn(t, c.src)
		if got := ast.ExprString(expr); got != c.want {
			t.Errorf("%s: got %s, want %s", c.src, got, c.want)
		}
	}
}

func TestMemberBindsTighterThanArithmetic(t *testing.T) {
	expr := parseExprFromReturn(t, "p.x + p.y")
	if got := ast.ExprString(expr); got != "(p.x + p.y)" {
		t.Errorf("got %s", got)
	}
}

func TestAssignmentIsRightAssociative(t *testing.T) {
	expr := parseExprFromReturn(t, "a = b = c")
	if got := ast.ExprString(expr); got != "(a = (b = c))" {
		t.Errorf("got %s", got)
	}
}

func TestParseCallWithNineArguments(t *testing.T) {
	expr := parseExprFromReturn(t, "sum9(1, 2, 3, 4, 5, 6, 7, 8, 9)")
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		t.Fatalf("got %T, want *ast.CallExpr", expr)
	}
	if call.Callee != "sum9" || len(call.Args) != 9 {
		t.Errorf("call: got %s with %d args", call.Callee, len(call.Args))
	}
}

func TestParseHexLiteral(t *testing.T) {
	expr := parseExprFromReturn(t, "0x2A")
	lit, ok := expr.(*ast.IntLitExpr)
	if !ok {
		t.Fatalf("got %T, want *ast.IntLitExpr", expr)
	}
	if lit.Value != 42 {
		t.Errorf("value: got %d, want 42", lit.Value)
	}
}

func TestParseIfElseChain(t *testing.T) {
	src := `int sign(int x) {
		if (x < 0) { return -1; } else if (x > 0) { return 1; } else { return 0; }
	}`
	prog := parseSource(t, src)
	ifStmt, ok := prog.Functions[0].Body.Stmts[0].(*ast.IfStmt)
	if !ok {
		t.Fatalf("got %T, want *ast.IfStmt", prog.Functions[0].Body.Stmts[0])
	}
	elseIf, ok := ifStmt.Else.(*ast.IfStmt)
	if !ok {
		t.Fatalf("else branch: got %T, want *ast.IfStmt", ifStmt.Else)
	}
	if _, ok := elseIf.Else.(*ast.BlockStmt); !ok {
		t.Errorf("final else: got %T, want *ast.BlockStmt", elseIf.Else)
	}
}

func TestParseForLoop(t *testing.T) {
	src := `int sum(int n) {
		int total = 0;
		for (int i = 1; i <= n; i = i + 1) {
			total = total + i;
		}
		return total;
	}`
	prog := parseSource(t, src)
	forStmt, ok := prog.Functions[0].Body.Stmts[1].(*ast.ForStmt)
	if !ok {
		t.Fatalf("got %T, want *ast.ForStmt", prog.Functions[0].Body.Stmts[1])
	}
	if _, ok := forStmt.Init.(*ast.DeclStmt); !ok {
		t.Errorf("init: got %T, want *ast.DeclStmt", forStmt.Init)
	}
	if forStmt.Condition == nil || forStmt.Update == nil {
		t.Error("condition and update should both be present")
	}
}

func TestParseWhileWithSingleStatementBody(t *testing.T) {
	src := "int f(int n) { while (n > 0) n = n - 1; return n; }"
	prog := parseSource(t, src)
	while, ok := prog.Functions[0].Body.Stmts[0].(*ast.WhileStmt)
	if !ok {
		t.Fatalf("got %T, want *ast.WhileStmt", prog.Functions[0].Body.Stmts[0])
	}
	if len(while.Body.Stmts) != 1 {
		t.Errorf("body statements: got %d, want 1", len(while.Body.Stmts))
	}
}

func TestParseDeclStmtMultipleDeclarators(t *testing.T) {
	src := "int f() { int a = 1, b, c = 3; return a + c; }"
	prog := parseSource(t, src)
	decl, ok := prog.Functions[0].Body.Stmts[0].(*ast.DeclStmt)
	if !ok {
		t.Fatalf("got %T, want *ast.DeclStmt", prog.Functions[0].Body.Stmts[0])
	}
	if len(decl.Decls) != 3 {
		t.Fatalf("declarator count: got %d, want 3", len(decl.Decls))
	}
	if decl.Decls[1].Init != nil {
		t.Error("second declarator should have no initializer")
	}
}

func TestParseErrorCarriesPosition(t *testing.T) {
	tokens, _ := lexer.Lex("int main() {\n  return 1 +;\n}")
	_, errs := parser.Parse(tokens)
	if len(errs) == 0 {
		t.Fatal("expected a parse error")
	}
	if errs[0].Line != 2 {
		t.Errorf("line: got %d, want 2", errs[0].Line)
	}
	if !strings.Contains(errs[0].Message, "unexpected token") {
		t.Errorf("message: got %q", errs[0].Message)
	}
}

func TestParseStopsAtFirstError(t *testing.T) {
	tokens, _ := lexer.Lex("int main() { return 1 +; } int g() { return ); }")
	_, errs := parser.Parse(tokens)
	if len(errs) != 1 {
		t.Errorf("error count: got %d, want 1 (no recovery)", len(errs))
	}
}

func TestParseMissingSemicolon(t *testing.T) {
	tokens, _ := lexer.Lex("int g = 42")
	_, errs := parser.Parse(tokens)
	if len(errs) == 0 {
		t.Fatal("expected a parse error for missing semicolon")
	}
	if !strings.Contains(errs[0].Message, "';'") {
		t.Errorf("message: got %q", errs[0].Message)
	}
}
