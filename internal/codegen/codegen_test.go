package codegen

import (
	"fmt"
	"strings"
	"testing"

	"occ/internal/ast"
	"occ/internal/lexer"
	"occ/internal/parser"
	"occ/internal/semantic"
)

// helper: parse source, run semantic analysis, return program.
func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	tokens, lexErrs := lexer.Lex(src)
	if len(lexErrs) > 0 {
		t.Fatalf("lex errors: %v", lexErrs)
	}
	prog, parseErrs := parser.Parse(tokens)
	if len(parseErrs) > 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}
	diags := semantic.Analyze(prog)
	if semantic.HasErrors(diags) {
		t.Fatalf("semantic errors: %v", diags)
	}
	return prog
}

func linuxARM64Target() *Target {
	tgt, _ := ResolveTarget("linux", "arm64")
	return tgt
}

func darwinARM64Target() *Target {
	tgt, _ := ResolveTarget("darwin", "arm64")
	return tgt
}

// allInstrs flattens a function's blocks for structural assertions.
func allInstrs(fn *IRFunc) []IRInstr {
	var out []IRInstr
	for _, blk := range fn.Blocks {
		out = append(out, blk.Instrs...)
	}
	return out
}

func countOps(fn *IRFunc, op IROp) int {
	n := 0
	for _, instr := range allInstrs(fn) {
		if instr.Op == op {
			n++
		}
	}
	return n
}

func emitForTest(t *testing.T, src string, target *Target) string {
	t.Helper()
	prog := mustParse(t, src)
	asm, err := EmitAssembly(prog, target)
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	return asm
}

// ---------------------------------------------------------------------------
// IR lowering tests
// ---------------------------------------------------------------------------

func TestLowerReturnConstant(t *testing.T) {
	prog := mustParse(t, "int main() { return 0; }")
	mod := Lower(prog)

	if len(mod.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(mod.Functions))
	}
	fn := mod.Functions[0]
	if fn.Name != "main" {
		t.Fatalf("expected function name 'main', got %q", fn.Name)
	}
	if countOps(fn, IRRet) != 1 {
		t.Fatal("expected exactly one ret")
	}
}

func TestLowerLocalDeclAndReturn(t *testing.T) {
	prog := mustParse(t, "int main() { int x = 42; return x; }")
	fn := Lower(prog).Functions[0]

	if fn.LocalBytes < 8 {
		t.Fatalf("expected at least one 8-byte slot, got %d bytes", fn.LocalBytes)
	}
	if countOps(fn, IRStore) == 0 {
		t.Fatal("expected a store for the initializer")
	}
	if countOps(fn, IRLoad) == 0 {
		t.Fatal("expected a load for the returned variable")
	}
}

func TestLowerArithmeticOps(t *testing.T) {
	src := `int main() {
		int a = 10;
		int b = 3;
		int c = a - b;
		int d = a * b;
		int e = a / b;
		int f = a % b;
		return c + d + e + f;
	}`
	fn := Lower(mustParse(t, src)).Functions[0]

	for _, want := range []IROp{IRAdd, IRSub, IRMul, IRDiv, IRMod} {
		if countOps(fn, want) == 0 {
			t.Errorf("expected %s instruction", want)
		}
	}
}

func TestLowerWhileLoopShape(t *testing.T) {
	src := `int main() {
		int i = 0;
		while (i < 10) { i = i + 1; }
		return i;
	}`
	fn := Lower(mustParse(t, src)).Functions[0]

	if countOps(fn, IRBr) == 0 {
		t.Error("expected a conditional branch for the loop header")
	}
	if countOps(fn, IRJmp) == 0 {
		t.Error("expected a back-edge jump")
	}
	if countOps(fn, IRCmpLt) == 0 {
		t.Error("expected IRCmpLt for i < 10")
	}
	if len(fn.Blocks) < 4 {
		t.Errorf("expected entry/head/body/end blocks, got %d", len(fn.Blocks))
	}
}

func TestLowerForLoopHasStepBlock(t *testing.T) {
	src := `int main() {
		int total = 0;
		for (int i = 0; i < 5; i = i + 1) {
			if (i == 3) { continue; }
			total = total + i;
		}
		return total;
	}`
	fn := Lower(mustParse(t, src)).Functions[0]

	hasStep := false
	for _, blk := range fn.Blocks {
		if strings.Contains(blk.Label, "for_step") {
			hasStep = true
		}
	}
	if !hasStep {
		t.Fatal("expected a dedicated step block (continue target)")
	}
}

func TestLowerGlobals(t *testing.T) {
	src := `
int counter = 50;
long big = 1;
int main() { return counter; }
`
	mod := Lower(mustParse(t, src))

	if len(mod.Globals) != 2 {
		t.Fatalf("expected 2 globals, got %d", len(mod.Globals))
	}
	if mod.Globals[0].Sym != "counter" || mod.Globals[0].Size != 4 || mod.Globals[0].Value != 50 {
		t.Errorf("counter: got %+v", mod.Globals[0])
	}
	if mod.Globals[1].Size != 8 {
		t.Errorf("big: expected size 8, got %d", mod.Globals[1].Size)
	}

	fn := mod.Functions[0]
	if countOps(fn, IRGlobalAddr) == 0 {
		t.Fatal("expected a global address formation for the read of counter")
	}
}

func TestLowerStructMemberAccess(t *testing.T) {
	src := `
struct Point { int x; int y; };
int main() {
	struct Point p;
	p.x = 40;
	p.y = 2;
	return p.x + p.y;
}
`
	fn := Lower(mustParse(t, src)).Functions[0]

	if fn.LocalBytes < 8 {
		t.Fatalf("expected space for the struct, got %d bytes", fn.LocalBytes)
	}
	if countOps(fn, IRLea) == 0 {
		t.Fatal("expected address formation for member access")
	}

	// Stores into p.x and p.y must be 4-byte accesses at offsets 0 and 4.
	offsets := make(map[int64]bool)
	for _, instr := range allInstrs(fn) {
		if instr.Op == IRStore && instr.Dst.Kind == OpAddr {
			if instr.Dst.Size != 4 {
				t.Errorf("member store size: got %d, want 4", instr.Dst.Size)
			}
			offsets[instr.Dst.Off] = true
		}
	}
	if !offsets[0] || !offsets[4] {
		t.Errorf("expected member stores at offsets 0 and 4, got %v", offsets)
	}
}

func TestLowerCallArguments(t *testing.T) {
	src := `
int add(int a, int b) { return a + b; }
int main() { return add(1, 2); }
`
	mod := Lower(mustParse(t, src))
	mainFn := mod.Functions[1]

	found := false
	for _, instr := range allInstrs(mainFn) {
		if instr.Op == IRCall {
			found = true
			if instr.Src1.Label != "add" {
				t.Errorf("callee: got %q, want add", instr.Src1.Label)
			}
			if len(instr.Args) != 2 {
				t.Errorf("args: got %d, want 2", len(instr.Args))
			}
		}
	}
	if !found {
		t.Fatal("expected IRCall instruction")
	}
}

func TestLowerVoidCallHasNoDestination(t *testing.T) {
	src := `
void touch() { return; }
int main() { touch(); return 0; }
`
	mod := Lower(mustParse(t, src))
	for _, instr := range allInstrs(mod.Functions[1]) {
		if instr.Op == IRCall && instr.Dst.Kind != OpNone {
			t.Fatal("void call should not have a destination register")
		}
	}
}

func TestLowerShortCircuitUsesBranches(t *testing.T) {
	src := `
int side = 0;
int bump() { side = side + 1; return 1; }
int main() {
	int ok = 0 && bump();
	return ok + side;
}
`
	fn := Lower(mustParse(t, src)).Functions[1]

	// The right-hand side call must sit behind a conditional branch.
	if countOps(fn, IRBr) == 0 {
		t.Fatal("expected a branch guarding the right operand")
	}
	hasRHSBlock := false
	for _, blk := range fn.Blocks {
		if strings.Contains(blk.Label, "sc_rhs") {
			hasRHSBlock = true
			found := false
			for _, instr := range blk.Instrs {
				if instr.Op == IRCall {
					found = true
				}
			}
			if !found {
				t.Error("expected the call inside the short-circuit block")
			}
		}
	}
	if !hasRHSBlock {
		t.Fatal("expected a short-circuit right-operand block")
	}
}

func TestLowerShadowedNamesGetDistinctSlots(t *testing.T) {
	src := `int main() {
		int x = 1;
		{
			int x = 2;
			x = x + 1;
		}
		return x;
	}`
	fn := Lower(mustParse(t, src)).Functions[0]

	// Two distinct 8-byte slots must exist.
	if fn.LocalBytes < 16 {
		t.Fatalf("expected two slots (16 bytes), got %d", fn.LocalBytes)
	}
}

func TestLowerBlocksEndInTerminators(t *testing.T) {
	src := `
int sign(int x) {
	if (x < 0) { return -1; } else if (x > 0) { return 1; }
	return 0;
}
int main() { return sign(-5); }
`
	mod := Lower(mustParse(t, src))
	for _, fn := range mod.Functions {
		for _, blk := range fn.Blocks {
			if !blk.Terminated() {
				t.Errorf("%s: block %q does not end in a terminator", fn.Name, blk.Label)
			}
		}
	}
}

func TestIRModuleDebugDump(t *testing.T) {
	src := `
int g = 7;
int main() { return g; }
`
	dump := Lower(mustParse(t, src)).DebugDump()

	if !strings.Contains(dump, "func main") {
		t.Error("expected 'func main' in IR dump")
	}
	if !strings.Contains(dump, "global g:4 = 7") {
		t.Errorf("expected global line in IR dump, got:\n%s", dump)
	}
}

// ---------------------------------------------------------------------------
// Assembly emission tests — ARM64
// ---------------------------------------------------------------------------

func TestEmitPrologueEpilogue(t *testing.T) {
	asm := emitForTest(t, "int main() { int x = 42; return x; }", linuxARM64Target())

	if !strings.Contains(asm, "stp x29, x30, [sp, #-16]!") {
		t.Error("expected frame record push in prologue")
	}
	if !strings.Contains(asm, "ldp x29, x30, [sp], #16") {
		t.Error("expected frame record pop in epilogue")
	}
	if !strings.Contains(asm, "    ret\n") {
		t.Error("expected ret instruction")
	}
	if !strings.Contains(asm, ".globl main") {
		t.Error("expected .globl main")
	}
}

func TestEmitDarwinSymbolDecoration(t *testing.T) {
	asm := emitForTest(t, `
int helper() { return 1; }
int main() { return helper(); }
`, darwinARM64Target())

	if !strings.Contains(asm, ".globl _main") {
		t.Error("expected underscore-prefixed _main on darwin")
	}
	if !strings.Contains(asm, "bl _helper") {
		t.Error("expected underscore-prefixed call target on darwin")
	}
}

func TestEmitGlobalAddressing(t *testing.T) {
	src := `
int g = 50;
int main() { return g; }
`
	linux := emitForTest(t, src, linuxARM64Target())
	if !strings.Contains(linux, ":lo12:g") {
		t.Error("expected :lo12: relocation on linux")
	}
	if !strings.Contains(linux, "adrp") {
		t.Error("expected adrp on linux")
	}
	if !strings.Contains(linux, ".word 50") {
		t.Error("expected 4-byte data definition for int global")
	}
	if !strings.Contains(linux, "ldrsw") {
		t.Error("expected sign-extending load for 4-byte global read")
	}

	darwin := emitForTest(t, src, darwinARM64Target())
	if !strings.Contains(darwin, "_g@PAGE") || !strings.Contains(darwin, "_g@PAGEOFF") {
		t.Error("expected @PAGE/@PAGEOFF relocations on darwin")
	}
}

func TestEmitLongGlobalUsesQuad(t *testing.T) {
	asm := emitForTest(t, `
long big = 123456789012345;
int main() { return 0; }
`, linuxARM64Target())

	if !strings.Contains(asm, ".quad 123456789012345") {
		t.Error("expected 8-byte data definition for long global")
	}
}

func TestEmitNegativeGlobalInitializer(t *testing.T) {
	asm := emitForTest(t, `
int x = -42;
int main() { return x; }
`, linuxARM64Target())

	if !strings.Contains(asm, ".word -42") {
		t.Error("expected .word -42 in data section")
	}
}

func TestEmitStackArguments(t *testing.T) {
	src := `
int sum9(int a, int b, int c, int d, int e, int f, int g, int h, int i) {
	return a + b + c + d + e + f + g + h + i;
}
int main() { return sum9(1, 2, 3, 4, 5, 6, 7, 8, 9); }
`
	asm := emitForTest(t, src, linuxARM64Target())

	// The ninth argument goes into a stack slot before the call...
	if !strings.Contains(asm, "str") || !strings.Contains(asm, "[sp, #0]") {
		t.Error("expected a stack store for the ninth argument")
	}
	// ...and the callee reads it from above its frame record.
	if !strings.Contains(asm, "[x29, #16]") {
		t.Error("expected the callee to load the ninth argument at [x29, #16]")
	}
}

func TestEmitCalleeSavedSpills(t *testing.T) {
	asm := emitForTest(t, "int main() { return 1 + 2; }", linuxARM64Target())

	if !strings.Contains(asm, "x19") {
		t.Error("expected temporaries in callee-saved registers")
	}
}

func TestEmitModuloUsesMsub(t *testing.T) {
	asm := emitForTest(t, `
int main() {
	int a = 44;
	return a % 43;
}
`, linuxARM64Target())

	if !strings.Contains(asm, "sdiv") || !strings.Contains(asm, "msub") {
		t.Error("expected sdiv+msub sequence for %")
	}
}

func TestEmitComparisonUsesCset(t *testing.T) {
	asm := emitForTest(t, `
int main() {
	int a = 1;
	int b = 2;
	return a < b;
}
`, linuxARM64Target())

	if !strings.Contains(asm, "cset") {
		t.Error("expected cset to materialise the comparison result")
	}
}

func TestEmitLdurSturOffsetsInRange(t *testing.T) {
	// Enough locals to exercise both the short and long offset paths.
	var b strings.Builder
	b.WriteString("int main() {\n")
	for i := 0; i < 48; i++ {
		fmt.Fprintf(&b, "\tint v%d = %d;\n", i, i)
	}
	b.WriteString("\treturn v47;\n}\n")
	asm := emitForTest(t, b.String(), linuxARM64Target())

	for i, line := range strings.Split(asm, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "ldur") && !strings.HasPrefix(trimmed, "stur") {
			continue
		}
		hashIdx := strings.Index(trimmed, "#")
		if hashIdx < 0 {
			continue
		}
		bracketIdx := strings.Index(trimmed[hashIdx:], "]")
		if bracketIdx < 0 {
			continue
		}
		offsetStr := trimmed[hashIdx+1 : hashIdx+bracketIdx]
		var offset int
		if _, err := fmt.Sscanf(offsetStr, "%d", &offset); err != nil {
			continue
		}
		if offset < -256 || offset > 255 {
			t.Errorf("line %d: ldur/stur offset %d out of range [-256,255]: %s", i+1, offset, trimmed)
		}
	}
}

func TestEmitLargeImmediateSynthesis(t *testing.T) {
	asm := emitForTest(t, `
long main_value() { return 4294967296; }
int main() { return 0; }
`, linuxARM64Target())

	if !strings.Contains(asm, "movz") {
		t.Error("expected movz for a constant beyond the mov alias range")
	}
	if !strings.Contains(asm, "lsl #32") {
		t.Error("expected the 2^32 chunk via movk/movz lsl #32")
	}
}

func TestEmitBranchLabelsAreLocal(t *testing.T) {
	src := `int main() {
		int i = 0;
		while (i < 3) { i = i + 1; }
		return i;
	}`
	linux := emitForTest(t, src, linuxARM64Target())
	if !strings.Contains(linux, ".Lmain_while_head_0:") {
		t.Errorf("expected .L-prefixed labels on linux, got:\n%s", linux)
	}
	darwin := emitForTest(t, src, darwinARM64Target())
	if !strings.Contains(darwin, "Lmain_while_head_0:") || strings.Contains(darwin, ".Lmain_while_head_0:") {
		t.Error("expected bare L-prefixed labels on darwin")
	}
}

func TestEmitConditionalBranchShape(t *testing.T) {
	asm := emitForTest(t, `
int main() {
	int x = 1;
	if (x) { return 2; }
	return 3;
}
`, linuxARM64Target())

	if !strings.Contains(asm, "cbz") {
		t.Error("expected cbz for the false edge of a conditional branch")
	}
}

// ---------------------------------------------------------------------------
// Integration: Generate (full pipeline, asm-only)
// ---------------------------------------------------------------------------

func TestGenerateAsmOnly(t *testing.T) {
	prog := mustParse(t, "int main() { return 0; }")

	opts := DefaultOptions()
	opts.Target = linuxARM64Target()
	opts.AsmOnly = true
	opts.BuildDir = t.TempDir()

	result, err := Generate(prog, opts)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.AsmFile == "" {
		t.Fatal("expected assembly file path")
	}
	if result.IRDump == "" {
		t.Fatal("expected IR dump")
	}
	if !strings.HasSuffix(result.AsmFile, ".s") {
		t.Errorf("assembly path: got %s", result.AsmFile)
	}
}

func TestGenerateCreatesPlatformSubdir(t *testing.T) {
	prog := mustParse(t, "int main() { return 0; }")

	opts := DefaultOptions()
	opts.Target = darwinARM64Target()
	opts.AsmOnly = true
	opts.BuildDir = t.TempDir()
	opts.OutputName = "prog"

	result, err := Generate(prog, opts)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.Contains(result.AsmFile, "darwin_arm64") {
		t.Errorf("expected darwin_arm64 subdirectory, got %s", result.AsmFile)
	}
}
