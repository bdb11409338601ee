package main

import (
	"fmt"
	"occ/internal/ast"
	"occ/internal/codegen"
	"occ/internal/lexer"
	"occ/internal/parser"
	"occ/internal/semantic"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xyproto/env/v2"
)

const VERSION = "0.3.0"

var debugMode = false

func main() {
	start := time.Now()
	exitCode := run()
	if exitCode == 0 {
		fmt.Printf("Compile time: %s\n", time.Since(start))
	}
	os.Exit(exitCode)
}

func run() int {
	// Check for --debug flag early so flag parsing itself can be traced.
	debugMode = env.Bool("OCC_DEBUG")
	for _, arg := range os.Args[1:] {
		if arg == "--debug" {
			debugMode = true
			break
		}
	}

	fmt.Println("occ compiler V" + VERSION)
	printDebug("Using debug mode.")

	if len(os.Args) < 2 {
		usage()
		return 1
	}

	// Find the source file (first non-flag argument).
	var filePath string
	for _, arg := range os.Args[1:] {
		if len(arg) > 0 && arg[0] != '-' {
			filePath = arg
			break
		}
	}
	if filePath == "" {
		usage()
		return 1
	}

	if !fileExists(filePath) {
		fmt.Println("Error: File does not exist.")
		return 1
	}
	printDebug("File found, building: " + filePath)

	opts := codegen.DefaultOptions()
	opts.Verbose = debugMode
	opts.BuildDir = env.Str("OCC_BUILD_DIR", "build")
	opts.OutputName = outputNameFor(filePath)

	watchMode := false
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--asm-only":
			opts.AsmOnly = true
		case "--skip-link":
			opts.SkipLink = true
		case "--watch":
			watchMode = true
		}
	}

	// Target comes from --target=os/arch, then OCC_TARGET, then the host.
	targetSpec := env.Str("OCC_TARGET")
	for _, arg := range os.Args[1:] {
		if len(arg) > 9 && arg[:9] == "--target=" {
			targetSpec = arg[9:]
		}
	}
	if targetSpec != "" {
		parts := splitTarget(targetSpec)
		if len(parts) != 2 {
			fmt.Printf("Error: invalid target format %q (expected os/arch, e.g. linux/arm64)\n", targetSpec)
			return 1
		}
		target, err := codegen.ResolveTarget(parts[0], parts[1])
		if err != nil {
			fmt.Printf("Error: %s\n", err)
			return 1
		}
		opts.Target = target
	}

	code := compileFile(filePath, opts)
	if !watchMode {
		return code
	}
	return watch(filePath, opts)
}

/**
* Runs the full compile pipeline for one source file.
* @param filePath The path to the source file.
* @param opts Code generation options.
* @return Process exit code (0 on success).
 */
func compileFile(filePath string, opts *codegen.Options) int {
	fileContent, err := getFileContent(filePath)
	if err != nil {
		fmt.Println("Error: Could not read file.")
		fmt.Println("Error details: " + err.Error())
		return 1
	}

	printDebug("Starting lexing process...")
	tokens, lexErrors := lexer.Lex(fileContent)
	if len(lexErrors) > 0 {
		fmt.Println("Lexing errors:")
		for _, e := range lexErrors {
			fmt.Printf("  %s\n", e.Error())
		}
		return 1
	}
	printDebug(fmt.Sprintf("Lexing complete. %d tokens produced.", len(tokens)))
	printTokens(tokens)

	// --- Parsing ---
	printDebug("Starting parsing process...")
	program, parseErrors := parser.Parse(tokens)
	if len(parseErrors) > 0 {
		fmt.Println("Parse errors:")
		for _, e := range parseErrors {
			fmt.Printf("  %s\n", e.Error())
		}
		return 1
	}
	printDebug("Parsing complete. No errors.")

	printDebug("--- AST ---")
	printDebug(ast.DebugString(program))
	printDebug("--- End AST ---")

	// --- Semantic analysis ---
	printDebug("Starting semantic analysis...")
	diagnostics := semantic.Analyze(program)

	var semWarnings, semErrors []semantic.Diagnostic
	for _, d := range diagnostics {
		if d.Severity == semantic.Warning {
			semWarnings = append(semWarnings, d)
		} else {
			semErrors = append(semErrors, d)
		}
	}

	// Always print warnings.
	if len(semWarnings) > 0 {
		fmt.Println("Warnings:")
		for _, w := range semWarnings {
			fmt.Printf("  %s\n", w.Error())
		}
	}

	if len(semErrors) > 0 {
		fmt.Println("Semantic errors:")
		for _, e := range semErrors {
			fmt.Printf("  %s\n", e.Error())
		}
		return 1
	}
	printDebug("Semantic analysis complete. No errors.")
	for _, sd := range program.Structs {
		if sd.Layout != nil {
			printDebug(sd.Layout.Describe())
		}
	}

	// --- Code generation ---
	printDebug("Starting code generation...")
	result, err := codegen.Generate(program, opts)
	if err != nil {
		fmt.Printf("Codegen error: %s\n", err)
		return 1
	}

	fmt.Println("Build artifacts:")
	if result.AsmFile != "" {
		fmt.Printf("  Assembly: %s\n", result.AsmFile)
	}
	if result.ObjFile != "" {
		fmt.Printf("  Object:   %s\n", result.ObjFile)
	}
	if result.ExeFile != "" {
		fmt.Printf("  Binary:   %s\n", result.ExeFile)
	}

	if len(result.Warnings) > 0 {
		fmt.Println()
		for _, w := range result.Warnings {
			fmt.Printf("  %s\n", w)
		}
	}

	printDebug("Compilation pipeline finished successfully.")
	return 0
}

/**
* Recompiles the file every time it changes on disk. Blocks forever.
* @param filePath The path to the source file to watch.
* @param opts Code generation options reused for every rebuild.
* @return Process exit code (nonzero only if the watcher cannot start).
 */
func watch(filePath string, opts *codegen.Options) int {
	fw, err := NewFileWatcher(func(path string) {
		fmt.Printf("\n--- %s changed, rebuilding ---\n", path)
		start := time.Now()
		if compileFile(path, opts) == 0 {
			fmt.Printf("Compile time: %s\n", time.Since(start))
		}
	})
	if err != nil {
		fmt.Printf("Error: cannot start watch mode: %s\n", err)
		return 1
	}
	defer fw.Close()

	if err := fw.AddFile(filePath); err != nil {
		fmt.Printf("Error: %s\n", err)
		return 1
	}

	fmt.Printf("Watching %s for changes (Ctrl-C to stop)...\n", filePath)
	fw.Watch()
	return 0
}

func usage() {
	fmt.Println("Usage: occ [flags] <file.c>")
	fmt.Println("Flags:")
	fmt.Println("  --debug            verbose compiler tracing")
	fmt.Println("  --asm-only         stop after writing the .s file")
	fmt.Println("  --skip-link        assemble but do not link")
	fmt.Println("  --target=os/arch   cross-compile (linux/arm64 or darwin/arm64)")
	fmt.Println("  --watch            rebuild whenever the file changes")
}

func splitTarget(s string) []string {
	for i, c := range s {
		if c == '/' {
			return []string{s[:i], s[i+1:]}
		}
	}
	return []string{s}
}

// outputNameFor derives the artifact base name from the source file name.
func outputNameFor(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

/**
* Prints a debug message to the console.
* @param message The message to print.
 */
func printDebug(message string) {
	if !debugMode {
		return
	}
	fmt.Println("[DEBUG] " + message)
}

func printTokens(tokens []lexer.Token) {
	if !debugMode {
		return
	}
	for _, token := range tokens {
		fmt.Printf("[DEBUG] Token: %s, Value: %s, Line: %d, Column: %d\n", token.Type, token.Value, token.Line, token.Column)
	}
}

/**
* Checks if a file exists at the given path.
* @param filePath The path to the file to check.
* @return true if the file exists, false otherwise.
 */
func fileExists(filePath string) bool {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return false
	}
	return true
}

/**
* Gets content of a file at the given path.
* @param filePath The path to the file to read.
* @return The content of the file as a string, or an error if the file cannot be read.
 */
func getFileContent(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(content), nil
}
