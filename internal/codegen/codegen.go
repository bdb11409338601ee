package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"occ/internal/ast"
)

// ---------------------------------------------------------------------------
// Options controls the behaviour of the code-generation pipeline.
// ---------------------------------------------------------------------------

// Options configures the codegen pipeline.
type Options struct {
	// Target platform. If nil, the host platform is auto-detected.
	Target *Target

	// BuildDir is the directory where all build artifacts are written.
	// Defaults to "./build" relative to the working directory.
	BuildDir string

	// OutputName is the base name for the output files (without extension).
	// Defaults to "output".
	OutputName string

	// Verbose enables extra diagnostic output.
	Verbose bool

	// AsmOnly stops after emitting the assembly file (skip assemble + link).
	AsmOnly bool

	// SkipLink stops after assembling (produce .o but don't link).
	SkipLink bool
}

// DefaultOptions returns sensible defaults (host target, build/ directory).
func DefaultOptions() *Options {
	return &Options{
		BuildDir: "build",
	}
}

// ---------------------------------------------------------------------------
// Result is returned by Generate with paths to all produced artifacts.
// ---------------------------------------------------------------------------

type Result struct {
	AsmFile  string   // path to the assembly file
	ObjFile  string   // path to the object file (empty if AsmOnly)
	ExeFile  string   // path to the executable (empty if AsmOnly or SkipLink)
	IRDump   string   // human-readable IR dump (for debugging)
	Warnings []string // non-fatal notes (e.g. missing external tools)
}

// ---------------------------------------------------------------------------
// Generate — the public entry point for the full codegen pipeline
//
// Pipeline: AST → IR (lower) → Assembly text (emit) → Object (assemble)
// → Executable (link)
// ---------------------------------------------------------------------------

// Generate runs the full code-generation pipeline on the given AST program.
// The program must already have passed semantic analysis.
func Generate(program *ast.Program, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	target := opts.Target
	if target == nil {
		var err error
		target, err = HostTarget()
		if err != nil {
			return nil, fmt.Errorf("cannot detect host target: %w", err)
		}
	}

	outputName := opts.OutputName
	if outputName == "" {
		outputName = "output"
	}
	outputName = strings.Map(func(r rune) rune {
		if r == '.' || r == ' ' || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, outputName)

	buildDir := opts.BuildDir
	if buildDir == "" {
		buildDir = "build"
	}
	platformDir := filepath.Join(buildDir, fmt.Sprintf("%s_%s", target.OSName(), target.ArchName()))
	if err := os.MkdirAll(platformDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create build directory %s: %w", platformDir, err)
	}

	result := &Result{}

	// --- Step 1: Lower AST to IR ---
	if opts.Verbose {
		fmt.Println("[codegen] Lowering AST to IR...")
	}
	irMod := Lower(program)
	result.IRDump = irMod.DebugDump()

	if opts.Verbose {
		fmt.Println(result.IRDump)
	}

	// --- Step 2: Emit assembly ---
	if opts.Verbose {
		fmt.Printf("[codegen] Emitting arm64 assembly for %s/arm64...\n", target.OSName())
	}
	asmText, err := EmitARM64(irMod, target)
	if err != nil {
		return nil, err
	}

	// --- Step 3: Write assembly file ---
	tc := NewToolchain(target, platformDir, outputName)
	tc.Verbose = opts.Verbose

	if err := tc.WriteAssembly(asmText); err != nil {
		return nil, fmt.Errorf("cannot write assembly file: %w", err)
	}
	result.AsmFile = tc.AsmFile

	if opts.Verbose {
		fmt.Printf("[codegen] Assembly written to %s\n", result.AsmFile)
	}

	if opts.AsmOnly {
		return result, nil
	}

	// --- Step 4: Assemble ---
	if missing := DetectToolchain(target); len(missing) > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("missing toolchain components: %s; assembly was written to %s",
				strings.Join(missing, ", "), result.AsmFile))
		return result, nil
	}

	if opts.Verbose {
		fmt.Println("[codegen] Assembling...")
	}
	if err := tc.Assemble(); err != nil {
		return result, fmt.Errorf("assembly failed: %w", err)
	}
	result.ObjFile = tc.ObjFile

	if opts.SkipLink {
		return result, nil
	}

	// --- Step 5: Link ---
	if opts.Verbose {
		fmt.Println("[codegen] Linking...")
	}
	if err := tc.Link(); err != nil {
		return result, fmt.Errorf("linking failed: %w", err)
	}
	result.ExeFile = tc.ExeFile

	if opts.Verbose {
		fmt.Printf("[codegen] Executable written to %s\n", result.ExeFile)
	}

	return result, nil
}

// EmitAssembly lowers and emits assembly text without touching the
// filesystem. Used by tests and the fixture harness.
func EmitAssembly(program *ast.Program, target *Target) (string, error) {
	if target == nil {
		var err error
		target, err = HostTarget()
		if err != nil {
			return "", err
		}
	}
	return EmitARM64(Lower(program), target)
}
