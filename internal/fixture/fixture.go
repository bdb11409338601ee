// Package fixture loads compiler test cases from markdown documents.
//
// A fixture document holds any number of cases. Each case starts with a
// heading of the form "Test: <name>" followed by fenced code blocks: a
// block tagged `c` is the source program, and every other tagged block is
// an expectation checked by the test runner:
//
//	exit           expected process exit status of the compiled program
//	asm            substrings that must appear in the emitted assembly
//	ir             substrings that must appear in the IR dump
//	compile-error  fragments that must appear in a reported diagnostic
package fixture

import (
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Check is a single expectation attached to a case.
type Check struct {
	Kind  string // "exit", "asm", "ir", "compile-error"
	Value string // block content, trailing newline trimmed
}

// Case is one named compiler test: a source program plus its expectations.
type Case struct {
	Name   string
	Source string
	Checks []Check
}

// ChecksOf returns the checks with the given kind.
func (c *Case) ChecksOf(kind string) []Check {
	var out []Check
	for _, ch := range c.Checks {
		if ch.Kind == kind {
			out = append(out, ch)
		}
	}
	return out
}

// Load reads and parses a fixture document from disk.
func Load(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cases, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// Parse extracts the cases from a markdown document.
func Parse(data []byte) ([]Case, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(data))

	var cases []Case
	var cur *Case

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			title := string(node.Text(data))
			if name, ok := strings.CutPrefix(title, "Test: "); ok {
				cases = append(cases, Case{Name: name})
				cur = &cases[len(cases)-1]
			}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			if cur == nil {
				return ast.WalkContinue, nil
			}
			lang := string(node.Language(data))
			content := blockContent(node, data)
			if lang == "c" {
				if cur.Source != "" {
					return ast.WalkStop, fmt.Errorf("case %q has more than one source block", cur.Name)
				}
				cur.Source = content
			} else if lang != "" {
				cur.Checks = append(cur.Checks, Check{Kind: lang, Value: strings.TrimRight(content, "\n")})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	for i := range cases {
		if cases[i].Source == "" {
			return nil, fmt.Errorf("case %q has no source block", cases[i].Name)
		}
	}
	return cases, nil
}

func blockContent(node *ast.FencedCodeBlock, data []byte) string {
	var b strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(data))
	}
	return b.String()
}
