package lexer

import (
	"strings"
	"testing"
)

func tokenTypes(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Type
	}
	return out
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	tokens, errs := Lex("int long void struct const if else while for return break continue sum9 _tmp fib2")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	expected := []struct {
		typ string
		val string
	}{
		{KW_INT, "int"},
		{KW_LONG, "long"},
		{KW_VOID, "void"},
		{STRUCT, "struct"},
		{CONST, "const"},
		{IF, "if"},
		{ELSE, "else"},
		{WHILE, "while"},
		{FOR, "for"},
		{RETURN, "return"},
		{BREAK, "break"},
		{CONTINUE, "continue"},
		{IDENT, "sum9"},
		{IDENT, "_tmp"},
		{IDENT, "fib2"},
		{EOF, ""},
	}
	if len(tokens) != len(expected) {
		t.Fatalf("token count: got %d, want %d", len(tokens), len(expected))
	}
	for i, exp := range expected {
		if tokens[i].Type != exp.typ || tokens[i].Value != exp.val {
			t.Errorf("token[%d]: got (%s, %q), want (%s, %q)",
				i, tokens[i].Type, tokens[i].Value, exp.typ, exp.val)
		}
	}
}

func TestIntegerLiterals(t *testing.T) {
	tokens, errs := Lex("0 42 0xFF 0X1A")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	expected := []string{"0", "42", "0xFF", "0X1A"}
	for i, exp := range expected {
		if tokens[i].Type != INT || tokens[i].Value != exp {
			t.Errorf("token[%d]: got (%s, %q), want (INT, %q)",
				i, tokens[i].Type, tokens[i].Value, exp)
		}
	}
}

func TestMalformedLiterals(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"0x", "malformed hexadecimal literal"},
		{"0xZZ", "malformed hexadecimal literal"},
		{"123abc", "malformed integer literal"},
	}
	for _, c := range cases {
		_, errs := Lex(c.input)
		if len(errs) != 1 {
			t.Errorf("Lex(%q): got %d errors, want 1", c.input, len(errs))
			continue
		}
		if !strings.Contains(errs[0].Message, c.want) {
			t.Errorf("Lex(%q): got message %q, want %q", c.input, errs[0].Message, c.want)
		}
	}
}

func TestMemberAccess(t *testing.T) {
	tokens, errs := Lex("p.x + p.y")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	types := tokenTypes(tokens)
	expected := []string{IDENT, DOT, IDENT, PLUS, IDENT, DOT, IDENT, EOF}
	if len(types) != len(expected) {
		t.Fatalf("token count: got %d, want %d; types: %v", len(types), len(expected), types)
	}
	for i, exp := range expected {
		if types[i] != exp {
			t.Errorf("token[%d]: got %s, want %s (value=%q)", i, types[i], exp, tokens[i].Value)
		}
	}
}

func TestOperators(t *testing.T) {
	tokens, errs := Lex("= == != < <= > >= + - * / % ! && ||")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	expected := []string{
		ASSIGN, EQ, NEQ, LT, LTE, GT, GTE,
		PLUS, MINUS, STAR, SLASH, PERCENT, BANG, AND, OR, EOF,
	}
	types := tokenTypes(tokens)
	if len(types) != len(expected) {
		t.Fatalf("token count: got %d, want %d; types: %v", len(types), len(expected), types)
	}
	for i, exp := range expected {
		if types[i] != exp {
			t.Errorf("token[%d]: got %s, want %s", i, types[i], exp)
		}
	}
}

func TestComments(t *testing.T) {
	src := `// leading comment
int g = 42; /* block
comment */ int h = 8;`
	tokens, errs := Lex(src)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	types := tokenTypes(tokens)
	expected := []string{
		KW_INT, IDENT, ASSIGN, INT, SEMICOLON,
		KW_INT, IDENT, ASSIGN, INT, SEMICOLON, EOF,
	}
	if len(types) != len(expected) {
		t.Fatalf("token count: got %d, want %d; types: %v", len(types), len(expected), types)
	}
	for i, exp := range expected {
		if types[i] != exp {
			t.Errorf("token[%d]: got %s, want %s", i, types[i], exp)
		}
	}
}

func TestUnterminatedBlockComment(t *testing.T) {
	_, errs := Lex("int x; /* never closed")
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if !strings.Contains(errs[0].Message, "unterminated block comment") {
		t.Errorf("got message %q", errs[0].Message)
	}
}

func TestPositions(t *testing.T) {
	tokens, errs := Lex("int main() {\n  return 0;\n}")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	// "return" starts at line 2, column 3.
	for _, tok := range tokens {
		if tok.Type == RETURN {
			if tok.Line != 2 || tok.Column != 3 {
				t.Errorf("return position: got %d:%d, want 2:3", tok.Line, tok.Column)
			}
			return
		}
	}
	t.Fatal("no RETURN token found")
}

func TestUnexpectedCharacter(t *testing.T) {
	_, errs := Lex("int x = @;")
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if errs[0].Lexeme != "@" {
		t.Errorf("lexeme: got %q, want %q", errs[0].Lexeme, "@")
	}
}

func TestNegativeLiteralLexesAsMinusInt(t *testing.T) {
	tokens, errs := Lex("-42")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	types := tokenTypes(tokens)
	expected := []string{MINUS, INT, EOF}
	if len(types) != len(expected) {
		t.Fatalf("token count: got %d, want %d; types: %v", len(types), len(expected), types)
	}
	for i, exp := range expected {
		if types[i] != exp {
			t.Errorf("token[%d]: got %s, want %s", i, types[i], exp)
		}
	}
}
