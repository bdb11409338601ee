package codegen

import (
	"fmt"
	"runtime"
)

// ---------------------------------------------------------------------------
// OS / Target
// ---------------------------------------------------------------------------

// OS represents a target operating system.
type OS int

const (
	OS_Linux  OS = iota
	OS_Darwin    // macOS
)

func (o OS) String() string {
	switch o {
	case OS_Linux:
		return "linux"
	case OS_Darwin:
		return "darwin"
	default:
		return "unknown"
	}
}

// ObjFormat is the object file format produced by the assembler.
type ObjFormat int

const (
	ObjELF   ObjFormat = iota // Linux
	ObjMachO                  // macOS
)

func (f ObjFormat) String() string {
	switch f {
	case ObjELF:
		return "elf64"
	case ObjMachO:
		return "macho64"
	default:
		return "unknown"
	}
}

// Target holds everything the emitter and toolchain need to know about a
// compilation target. Code generation is AArch64 only; the OS decides the
// object format, symbol decoration, and how global addresses are formed.
type Target struct {
	OS     OS
	ObjFmt ObjFormat

	// SymbolPrefix: Mach-O prepends "_" to global symbols.
	SymbolPrefix string

	// LocalLabelPrefix makes branch targets assembler-local so they stay
	// out of the symbol table (".L" on ELF, "L" on Mach-O).
	LocalLabelPrefix string

	// ArgRegs are the AAPCS64 integer argument registers, in order.
	ArgRegs []string
}

// HostTarget returns a Target matching the current Go runtime (GOOS).
func HostTarget() (*Target, error) {
	return ResolveTarget(runtime.GOOS, runtime.GOARCH)
}

// ResolveTarget builds a Target from OS/arch name strings (Go spellings).
func ResolveTarget(osName, archName string) (*Target, error) {
	switch archName {
	case "arm64", "aarch64":
	default:
		return nil, fmt.Errorf("unsupported architecture: %s (only arm64 is supported)", archName)
	}

	t := &Target{
		ArgRegs: []string{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"},
	}
	switch osName {
	case "linux":
		t.OS = OS_Linux
		t.ObjFmt = ObjELF
		t.SymbolPrefix = ""
		t.LocalLabelPrefix = ".L"
	case "darwin":
		t.OS = OS_Darwin
		t.ObjFmt = ObjMachO
		t.SymbolPrefix = "_"
		t.LocalLabelPrefix = "L"
	default:
		return nil, fmt.Errorf("unsupported OS: %s", osName)
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Helper queries
// ---------------------------------------------------------------------------

// Sym returns a symbol name with the target prefix applied.
func (t *Target) Sym(name string) string {
	return t.SymbolPrefix + name
}

// Local returns a branch label with the assembler-local prefix applied.
func (t *Target) Local(name string) string {
	return t.LocalLabelPrefix + name
}

// OSName returns the OS as a lowercase string.
func (t *Target) OSName() string {
	return t.OS.String()
}

// ArchName returns the architecture using the Go spelling.
func (t *Target) ArchName() string {
	return "arm64"
}
