package codegen

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ---------------------------------------------------------------------------
// Toolchain — assembler + linker invocation for each target
// ---------------------------------------------------------------------------

// Toolchain represents the external programs used to assemble and link.
type Toolchain struct {
	Target   *Target
	BuildDir string
	AsmFile  string // path to the assembly file
	ObjFile  string // path to the object file
	ExeFile  string // path to the final executable
	Verbose  bool
}

// NewToolchain creates a Toolchain for the given target and build directory.
func NewToolchain(target *Target, buildDir, baseName string) *Toolchain {
	return &Toolchain{
		Target:   target,
		BuildDir: buildDir,
		AsmFile:  filepath.Join(buildDir, baseName+".s"),
		ObjFile:  filepath.Join(buildDir, baseName+".o"),
		ExeFile:  filepath.Join(buildDir, baseName),
	}
}

// WriteAssembly writes the assembly string to the .s file.
func (tc *Toolchain) WriteAssembly(asm string) error {
	return os.WriteFile(tc.AsmFile, []byte(asm), 0644)
}

// Assemble invokes the system assembler to produce an object file.
func (tc *Toolchain) Assemble() error {
	var cmd *exec.Cmd
	switch tc.Target.OS {
	case OS_Darwin:
		cmd = exec.Command("as", "-arch", "arm64", "-o", tc.ObjFile, tc.AsmFile)
	default:
		cmd = exec.Command("as", "-o", tc.ObjFile, tc.AsmFile)
	}
	return tc.runCmd(cmd, "assemble")
}

// Link produces the final executable. The emitted code defines a regular
// `main` and relies on the C runtime for process startup, so the system C
// compiler driver does the link: it knows where crt1 and libc live on both
// Linux and macOS.
func (tc *Toolchain) Link() error {
	cmd := exec.Command("cc", "-o", tc.ExeFile, tc.ObjFile)
	if tc.Target.OS == OS_Darwin {
		cmd = exec.Command("cc", "-arch", "arm64", "-o", tc.ExeFile, tc.ObjFile)
	}
	return tc.runCmd(cmd, "link")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (tc *Toolchain) runCmd(cmd *exec.Cmd, stage string) error {
	if tc.Verbose {
		fmt.Printf("[toolchain] %s: %s\n", stage, strings.Join(cmd.Args, " "))
	}

	var stderr strings.Builder
	cmd.Stderr = &stderr
	cmd.Stdout = os.Stdout

	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("%s failed: %v\n%s", stage, err, stderr.String())
	}
	return nil
}

// DetectToolchain checks whether the required external tools are available
// for the given target and returns a list of missing tools.
func DetectToolchain(target *Target) []string {
	var missing []string
	if _, err := exec.LookPath("as"); err != nil {
		missing = append(missing, "as (assembler)")
	}
	if _, err := exec.LookPath("cc"); err != nil {
		missing = append(missing, "cc (linker driver)")
	}
	return missing
}
