// Package strayrand detects direct math/rand imports outside pkg/entropy.
// All randomness in the engine flows through the injectable seeded source so
// runs stay reproducible; a stray import silently breaks that.
package strayrand

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
)

// Issue represents a detected direct usage of math/rand
type Issue struct {
	File    string
	Line    int
	Column  int
	Message string
}

// ExemptFile contains information about a file exempt from stray randomness checks
type ExemptFile struct {
	Path   string
	Reason string
}

// Config contains configuration for the linter
type Config struct {
	// ExemptFiles is a list of files exempt from stray randomness checks
	ExemptFiles []ExemptFile

	// ExemptDirectories is a list of directories exempt from stray randomness checks
	ExemptDirectories []string

	// LogExemptions determines whether to log when an exemption is used
	LogExemptions bool
}

// NewDefaultConfig creates a default configuration. pkg/entropy is the one
// place allowed to touch math/rand.
func NewDefaultConfig() *Config {
	return &Config{
		ExemptFiles:       []ExemptFile{},
		ExemptDirectories: []string{"pkg/entropy", "_examples", "vendor"},
		LogExemptions:     false,
	}
}

// LintProject checks all Go files in a project for direct math/rand imports
func LintProject(rootDir string, config *Config) ([]Issue, error) {
	if config == nil {
		config = NewDefaultConfig()
	}

	var issues []Issue

	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			for _, exemptDir := range config.ExemptDirectories {
				exemptPath := filepath.Join(rootDir, exemptDir)
				if strings.HasPrefix(path, exemptPath) {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		for _, exemptFile := range config.ExemptFiles {
			if strings.HasSuffix(path, exemptFile.Path) {
				if config.LogExemptions {
					fmt.Printf("Skipping exempt file: %s (Reason: %s)\n", path, exemptFile.Reason)
				}
				return nil
			}
		}

		fileIssues, err := LintFile(path)
		if err != nil {
			return fmt.Errorf("error linting file %s: %w", path, err)
		}

		issues = append(issues, fileIssues...)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}

	return issues, nil
}

// LintFile checks a single Go file for direct math/rand imports
func LintFile(filePath string) ([]Issue, error) {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filePath, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("error parsing file: %w", err)
	}

	var issues []Issue

	for _, imp := range node.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		if importPath != "math/rand" && importPath != "math/rand/v2" &&
			!strings.HasPrefix(importPath, "math/rand/") {
			continue
		}

		pos := fset.Position(imp.Pos())
		message := fmt.Sprintf("direct import of %s is prohibited. Use pkg/entropy so the run stays seeded and reproducible.", importPath)
		if imp.Name != nil {
			message = fmt.Sprintf("aliased import of %s as '%s' is prohibited. Use pkg/entropy so the run stays seeded and reproducible.", importPath, imp.Name.Name)
		}
		issues = append(issues, Issue{
			File:    filePath,
			Line:    pos.Line,
			Column:  pos.Column,
			Message: message,
		})
	}

	return issues, nil
}
