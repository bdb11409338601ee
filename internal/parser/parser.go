package parser

import (
	"fmt"
	"strconv"

	"occ/internal/ast"
	"occ/internal/lexer"
)

// ---------------------------------------------------------------------------
// Precedence levels for Pratt expression parsing
// ---------------------------------------------------------------------------

const (
	precNone       = iota
	precAssign     // =   (right associative)
	precOr         // ||
	precAnd        // &&
	precEquality   // == !=
	precComparison // < > <= >=
	precAdditive   // + -
	precMultiply   // * / %
	precUnary      // ! -
	precCall       // () .
)

// ---------------------------------------------------------------------------
// ParseError
// ---------------------------------------------------------------------------

// ParseError represents a single error found during parsing.
type ParseError struct {
	Message string
	Line    int
	Column  int
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d, col %d: %s", e.Line, e.Column, e.Message)
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// Parser holds the state for a single parse pass over a token stream.
// The first error aborts the parse: no partial AST is handed downstream.
type Parser struct {
	tokens []lexer.Token
	pos    int
	errors []ParseError
}

// Parse is the main entry point. It takes a token slice (as produced by
// lexer.Lex) and returns an AST program plus any parse errors. When errors
// are returned the program must not be used.
func Parse(tokens []lexer.Token) (*ast.Program, []ParseError) {
	p := &Parser{tokens: tokens, pos: 0}
	prog := p.parseProgram()
	return prog, p.errors
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

// peek returns the current token without consuming it.
func (p *Parser) peek() lexer.Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return lexer.Token{Type: lexer.EOF}
}

// peekAt returns the token at a given offset from the current position.
func (p *Parser) peekAt(offset int) lexer.Token {
	idx := p.pos + offset
	if idx >= 0 && idx < len(p.tokens) {
		return p.tokens[idx]
	}
	return lexer.Token{Type: lexer.EOF}
}

// advance consumes and returns the current token.
func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if tok.Type != lexer.EOF {
		p.pos++
	}
	return tok
}

// check returns true if the current token has the given type.
func (p *Parser) check(typ string) bool {
	return p.peek().Type == typ
}

// match consumes the current token if it matches any of the given types.
func (p *Parser) match(types ...string) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

// expect consumes the current token if it matches typ; otherwise it records
// an error and returns the current token WITHOUT advancing.
func (p *Parser) expect(typ string, msg string) lexer.Token {
	if p.check(typ) {
		return p.advance()
	}
	tok := p.peek()
	p.addError(tok, fmt.Sprintf("%s (got %s %q)", msg, tok.Type, tok.Value))
	return tok
}

// addError appends a ParseError at the given token's location.
func (p *Parser) addError(tok lexer.Token, msg string) {
	p.errors = append(p.errors, ParseError{
		Message: msg,
		Line:    tok.Line,
		Column:  tok.Column,
	})
}

// failed reports whether an error has been recorded. The parser stops at
// the first error instead of attempting recovery.
func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

// position converts a token into an ast.Position.
func (p *Parser) position(tok lexer.Token) ast.Position {
	return ast.Position{Line: tok.Line, Column: tok.Column}
}

// isTypeStart returns true for tokens that can begin a type: a type keyword,
// the const qualifier, or the struct keyword.
func isTypeStart(typ string) bool {
	switch typ {
	case lexer.KW_INT, lexer.KW_LONG, lexer.KW_VOID, lexer.CONST, lexer.STRUCT:
		return true
	}
	return false
}

// =========================================================================
// Top-level parsing
// =========================================================================

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{Pos: p.position(p.peek())}

	for !p.check(lexer.EOF) && !p.failed() {
		switch {
		// struct <tag> { … };  — a struct declaration, not a variable of
		// struct type (which would be  struct <tag> <name>).
		case p.check(lexer.STRUCT) && p.peekAt(2).Type == lexer.LBRACE:
			s := p.parseStructDecl()
			if s != nil {
				prog.Structs = append(prog.Structs, s)
			}
		case isTypeStart(p.peek().Type):
			p.parseTopLevelDecl(prog)
		default:
			p.addError(p.peek(), fmt.Sprintf("expected declaration, got %s %q",
				p.peek().Type, p.peek().Value))
		}
	}

	return prog
}

// parseStructDecl parses: struct <tag> { <type> <name>; … };
func (p *Parser) parseStructDecl() *ast.StructDecl {
	tok := p.advance() // consume STRUCT
	name := p.expect(lexer.IDENT, "expected struct tag")
	p.expect(lexer.LBRACE, "expected '{' after struct tag")

	decl := &ast.StructDecl{Name: name.Value, Pos: p.position(tok)}
	for !p.check(lexer.RBRACE) && !p.check(lexer.EOF) && !p.failed() {
		typ := p.parseType()
		fieldName := p.expect(lexer.IDENT, "expected field name")
		decl.Fields = append(decl.Fields, &ast.FieldDecl{
			Name: fieldName.Value,
			Type: typ,
			Pos:  p.position(fieldName),
		})
		for p.match(lexer.COMMA) {
			fieldName = p.expect(lexer.IDENT, "expected field name")
			decl.Fields = append(decl.Fields, &ast.FieldDecl{
				Name: fieldName.Value,
				Type: typ,
				Pos:  p.position(fieldName),
			})
		}
		p.expect(lexer.SEMICOLON, "expected ';' after struct field")
	}

	p.expect(lexer.RBRACE, "expected '}' after struct fields")
	p.expect(lexer.SEMICOLON, "expected ';' after struct declaration")
	return decl
}

// parseTopLevelDecl parses a global variable or function definition. Both
// start with  <type> <name>, and a '(' afterwards means a function.
func (p *Parser) parseTopLevelDecl(prog *ast.Program) {
	typ := p.parseType()
	name := p.expect(lexer.IDENT, "expected declaration name")

	if p.check(lexer.LPAREN) {
		fn := p.parseFuncDecl(typ, name)
		if fn != nil {
			prog.Functions = append(prog.Functions, fn)
		}
		return
	}

	prog.Globals = append(prog.Globals, p.parseDeclarators(typ, name)...)
	p.expect(lexer.SEMICOLON, "expected ';' after global variable declaration")
}

// parseDeclarators parses the remainder of a declarator list after the type
// and first name:  <name> [= <init>] {, <name> [= <init>]}
func (p *Parser) parseDeclarators(typ *ast.TypeExpr, first lexer.Token) []*ast.VarDecl {
	decls := []*ast.VarDecl{p.parseDeclaratorRest(typ, first)}
	for p.match(lexer.COMMA) {
		name := p.expect(lexer.IDENT, "expected declarator name")
		decls = append(decls, p.parseDeclaratorRest(typ, name))
	}
	return decls
}

func (p *Parser) parseDeclaratorRest(typ *ast.TypeExpr, name lexer.Token) *ast.VarDecl {
	d := &ast.VarDecl{Name: name.Value, Type: typ, Pos: p.position(name)}
	if p.match(lexer.ASSIGN) {
		d.Init = p.parseExpression()
	}
	return d
}

func (p *Parser) parseFuncDecl(retType *ast.TypeExpr, name lexer.Token) *ast.FuncDecl {
	p.expect(lexer.LPAREN, "expected '(' after function name")
	params := p.parseParamList()
	p.expect(lexer.RPAREN, "expected ')' after parameters")
	body := p.parseBlock()

	return &ast.FuncDecl{
		Name:       name.Value,
		Params:     params,
		ReturnType: retType,
		Body:       body,
		Pos:        p.position(name),
	}
}

func (p *Parser) parseParamList() []*ast.Param {
	var params []*ast.Param

	if p.check(lexer.RPAREN) {
		return params
	}
	// (void) — an explicitly empty parameter list.
	if p.check(lexer.KW_VOID) && p.peekAt(1).Type == lexer.RPAREN {
		p.advance()
		return params
	}

	params = append(params, p.parseParam())
	for p.match(lexer.COMMA) {
		params = append(params, p.parseParam())
	}
	return params
}

func (p *Parser) parseParam() *ast.Param {
	typ := p.parseType()
	name := p.expect(lexer.IDENT, "expected parameter name")
	return &ast.Param{
		Name: name.Value,
		Type: typ,
		Pos:  p.position(name),
	}
}

// parseType parses a type: [const] int | long [long] [int] | void |
// struct <tag>. The const qualifier is accepted and discarded.
func (p *Parser) parseType() *ast.TypeExpr {
	for p.match(lexer.CONST) {
	}
	tok := p.peek()

	switch tok.Type {
	case lexer.KW_INT:
		p.advance()
		return &ast.TypeExpr{Name: "int", Pos: p.position(tok)}
	case lexer.KW_LONG:
		p.advance()
		p.match(lexer.KW_LONG) // long long
		p.match(lexer.KW_INT)  // long [long] int
		return &ast.TypeExpr{Name: "long", Pos: p.position(tok)}
	case lexer.KW_VOID:
		p.advance()
		return &ast.TypeExpr{Name: "void", Pos: p.position(tok)}
	case lexer.STRUCT:
		p.advance()
		tag := p.expect(lexer.IDENT, "expected struct tag after 'struct'")
		return &ast.TypeExpr{Name: tag.Value, IsStruct: true, Pos: p.position(tok)}
	}

	p.addError(tok, fmt.Sprintf("expected type name, got %s %q", tok.Type, tok.Value))
	return &ast.TypeExpr{Name: "<error>", Pos: p.position(tok)}
}

// =========================================================================
// Block and statement parsing
// =========================================================================

func (p *Parser) parseBlock() *ast.BlockStmt {
	tok := p.expect(lexer.LBRACE, "expected '{'")
	block := &ast.BlockStmt{Pos: p.position(tok)}

	for !p.check(lexer.RBRACE) && !p.check(lexer.EOF) && !p.failed() {
		stmt := p.parseStatement()
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}
	}

	p.expect(lexer.RBRACE, "expected '}'")
	return block
}

func (p *Parser) parseStatement() ast.Stmt {
	switch p.peek().Type {
	case lexer.RETURN:
		return p.parseReturnStmt()
	case lexer.BREAK:
		return p.parseBreakStmt()
	case lexer.CONTINUE:
		return p.parseContinueStmt()
	case lexer.IF:
		return p.parseIfStmt()
	case lexer.WHILE:
		return p.parseWhileStmt()
	case lexer.FOR:
		return p.parseForStmt()
	case lexer.LBRACE:
		return p.parseBlock()
	default:
		if isTypeStart(p.peek().Type) {
			return p.parseDeclStmt()
		}
		return p.parseExprStmt()
	}
}

// ---- Declaration ----

// parseDeclStmt parses: <type> <name> [= <init>] {, <name> [= <init>]};
func (p *Parser) parseDeclStmt() *ast.DeclStmt {
	tok := p.peek()
	typ := p.parseType()
	name := p.expect(lexer.IDENT, "expected variable name")
	decls := p.parseDeclarators(typ, name)
	p.expect(lexer.SEMICOLON, "expected ';' after declaration")
	return &ast.DeclStmt{Decls: decls, Pos: p.position(tok)}
}

// ---- Return ----

func (p *Parser) parseReturnStmt() *ast.ReturnStmt {
	tok := p.advance() // consume RETURN
	var value ast.Expr
	if !p.check(lexer.SEMICOLON) {
		value = p.parseExpression()
	}
	p.expect(lexer.SEMICOLON, "expected ';' after return statement")
	return &ast.ReturnStmt{Value: value, Pos: p.position(tok)}
}

// ---- Break / Continue ----

func (p *Parser) parseBreakStmt() *ast.BreakStmt {
	tok := p.advance()
	p.expect(lexer.SEMICOLON, "expected ';' after break")
	return &ast.BreakStmt{Pos: p.position(tok)}
}

func (p *Parser) parseContinueStmt() *ast.ContinueStmt {
	tok := p.advance()
	p.expect(lexer.SEMICOLON, "expected ';' after continue")
	return &ast.ContinueStmt{Pos: p.position(tok)}
}

// ---- If ----

func (p *Parser) parseIfStmt() *ast.IfStmt {
	tok := p.advance() // consume IF
	p.expect(lexer.LPAREN, "expected '(' after 'if'")
	cond := p.parseExpression()
	p.expect(lexer.RPAREN, "expected ')' after if condition")
	body := p.parseBranchBody()

	var elseStmt ast.Stmt
	if p.match(lexer.ELSE) {
		if p.check(lexer.IF) {
			elseStmt = p.parseIfStmt()
		} else {
			elseStmt = p.parseBranchBody()
		}
	}

	return &ast.IfStmt{
		Condition: cond,
		Then:      body,
		Else:      elseStmt,
		Pos:       p.position(tok),
	}
}

// parseBranchBody parses a brace-delimited block or a single statement
// (C allows both as if/while/for bodies); single statements are wrapped in
// a block so downstream stages only see blocks.
func (p *Parser) parseBranchBody() *ast.BlockStmt {
	if p.check(lexer.LBRACE) {
		return p.parseBlock()
	}
	stmt := p.parseStatement()
	block := &ast.BlockStmt{Pos: stmt.GetPos()}
	block.Stmts = append(block.Stmts, stmt)
	return block
}

// ---- While ----

func (p *Parser) parseWhileStmt() *ast.WhileStmt {
	tok := p.advance() // consume WHILE
	p.expect(lexer.LPAREN, "expected '(' after 'while'")
	cond := p.parseExpression()
	p.expect(lexer.RPAREN, "expected ')' after while condition")
	body := p.parseBranchBody()
	return &ast.WhileStmt{Condition: cond, Body: body, Pos: p.position(tok)}
}

// ---- For ----

func (p *Parser) parseForStmt() *ast.ForStmt {
	tok := p.advance() // consume FOR
	p.expect(lexer.LPAREN, "expected '(' after 'for'")

	// Init clause (including its trailing semicolon). May be empty.
	var init ast.Stmt
	switch {
	case p.check(lexer.SEMICOLON):
		p.advance()
	case isTypeStart(p.peek().Type):
		init = p.parseDeclStmt() // consumes trailing ;
	default:
		init = p.parseExprStmt() // consumes trailing ;
	}

	// Condition expression, then semicolon. May be empty.
	var cond ast.Expr
	if !p.check(lexer.SEMICOLON) {
		cond = p.parseExpression()
	}
	p.expect(lexer.SEMICOLON, "expected ';' after for condition")

	// Update clause – no trailing semicolon before ')'. May be empty.
	var update ast.Expr
	if !p.check(lexer.RPAREN) {
		update = p.parseExpression()
	}

	p.expect(lexer.RPAREN, "expected ')' after for clauses")
	body := p.parseBranchBody()

	return &ast.ForStmt{
		Init:      init,
		Condition: cond,
		Update:    update,
		Body:      body,
		Pos:       p.position(tok),
	}
}

// ---- Expression statement ----

func (p *Parser) parseExprStmt() ast.Stmt {
	expr := p.parseExpression()
	p.expect(lexer.SEMICOLON, "expected ';' after expression statement")
	return &ast.ExprStmt{Expression: expr, Pos: expr.GetPos()}
}

// =========================================================================
// Pratt expression parser
// =========================================================================

// parseExpression is the public entry point for expression parsing.
func (p *Parser) parseExpression() ast.Expr {
	return p.parsePrecedence(precAssign)
}

// parsePrecedence parses an expression with at least the given minimum
// precedence. This is the core of the Pratt algorithm.
func (p *Parser) parsePrecedence(minPrec int) ast.Expr {
	left := p.parsePrefix()

	for !p.failed() {
		prec := infixPrecedence(p.peek().Type)
		if prec < minPrec {
			break
		}
		left = p.parseInfix(left, prec)
	}

	return left
}

// ---- Prefix (atoms & unary operators) ----

func (p *Parser) parsePrefix() ast.Expr {
	tok := p.peek()

	switch tok.Type {
	case lexer.IDENT:
		p.advance()
		return &ast.IdentExpr{Name: tok.Value, Pos: p.position(tok)}

	case lexer.INT:
		p.advance()
		// Base 0 handles both decimal and 0x literals.
		value, err := strconv.ParseInt(tok.Value, 0, 64)
		if err != nil {
			p.addError(tok, fmt.Sprintf("integer literal %q out of range", tok.Value))
		}
		return &ast.IntLitExpr{Text: tok.Value, Value: value, Pos: p.position(tok)}

	case lexer.LPAREN:
		return p.parseGroupExpr()

	case lexer.BANG, lexer.MINUS:
		p.advance()
		operand := p.parsePrecedence(precUnary)
		return &ast.UnaryExpr{Op: tok.Value, Operand: operand, Pos: p.position(tok)}

	default:
		p.addError(tok, fmt.Sprintf("unexpected token %s %q in expression", tok.Type, tok.Value))
		return &ast.IdentExpr{Name: "<error>", Pos: p.position(tok)}
	}
}

// parseGroupExpr parses a parenthesised expression: ( <expr> )
func (p *Parser) parseGroupExpr() ast.Expr {
	tok := p.advance() // consume (
	expr := p.parseExpression()
	p.expect(lexer.RPAREN, "expected ')' after expression")
	return &ast.GroupExpr{Expression: expr, Pos: p.position(tok)}
}

// ---- Infix precedence table ----

func infixPrecedence(typ string) int {
	switch typ {
	case lexer.ASSIGN:
		return precAssign
	case lexer.OR:
		return precOr
	case lexer.AND:
		return precAnd
	case lexer.EQ, lexer.NEQ:
		return precEquality
	case lexer.LT, lexer.GT, lexer.LTE, lexer.GTE:
		return precComparison
	case lexer.PLUS, lexer.MINUS:
		return precAdditive
	case lexer.STAR, lexer.SLASH, lexer.PERCENT:
		return precMultiply
	case lexer.LPAREN, lexer.DOT:
		return precCall
	default:
		return precNone
	}
}

// ---- Infix / postfix dispatch ----

func (p *Parser) parseInfix(left ast.Expr, prec int) ast.Expr {
	tok := p.peek()

	switch tok.Type {
	case lexer.LPAREN:
		return p.parseCallExpr(left)
	case lexer.DOT:
		return p.parseMemberExpr(left)
	case lexer.ASSIGN:
		// Right-associative: recurse at the SAME precedence so that
		// a = b = c parses as a = (b = c).
		p.advance()
		value := p.parsePrecedence(prec)
		return &ast.AssignExpr{
			Target: left,
			Value:  value,
			Pos:    p.position(tok),
		}
	default:
		// Binary operator (left-associative: recurse with prec+1).
		p.advance()
		right := p.parsePrecedence(prec + 1)
		return &ast.BinaryExpr{
			Op:    tok.Value,
			Left:  left,
			Right: right,
			Pos:   p.position(tok),
		}
	}
}

// parseCallExpr: <callee> ( [args] )
// The callee must be a plain identifier; there are no function pointers.
func (p *Parser) parseCallExpr(callee ast.Expr) ast.Expr {
	tok := p.advance() // consume (

	ident, ok := callee.(*ast.IdentExpr)
	if !ok {
		p.addError(tok, "called object is not a function name")
		return callee
	}

	var args []ast.Expr
	if !p.check(lexer.RPAREN) {
		args = append(args, p.parseExpression())
		for p.match(lexer.COMMA) {
			args = append(args, p.parseExpression())
		}
	}

	p.expect(lexer.RPAREN, "expected ')' after arguments")
	return &ast.CallExpr{Callee: ident.Name, Args: args, Pos: ident.Pos}
}

// parseMemberExpr: <object> . <field>
func (p *Parser) parseMemberExpr(object ast.Expr) ast.Expr {
	dotTok := p.advance() // consume .
	tok := p.expect(lexer.IDENT, "expected field name after '.'")
	return &ast.MemberExpr{
		Object: object,
		Field:  tok.Value,
		Pos:    p.position(dotTok),
	}
}
