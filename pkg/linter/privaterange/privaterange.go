// Package privaterange detects IPv4 address literals outside the private
// ranges in non-test code. The engine must never carry a routable address:
// a hardcoded public IP in source is either a mistake or a containment bug
// waiting to happen.
package privaterange

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
)

// Issue represents a detected public IPv4 address literal
type Issue struct {
	File    string
	Line    int
	Column  int
	Literal string
	Message string
}

// ExemptFile contains information about a file exempt from address checks
type ExemptFile struct {
	Path   string
	Reason string
}

// Config contains configuration for the linter
type Config struct {
	// ExemptFiles is a list of files exempt from address checks
	ExemptFiles []ExemptFile

	// ExemptDirectories is a list of directories exempt from address checks
	ExemptDirectories []string

	// IncludeTests also checks _test.go files
	IncludeTests bool

	// LogExemptions determines whether to log when an exemption is used
	LogExemptions bool
}

// NewDefaultConfig creates a default configuration
func NewDefaultConfig() *Config {
	return &Config{
		ExemptFiles:       []ExemptFile{},
		ExemptDirectories: []string{"_examples", "vendor"},
		IncludeTests:      false,
		LogExemptions:     false,
	}
}

// LintProject checks all Go files in a project for public IPv4 literals
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
		if !config.IncludeTests && strings.HasSuffix(path, "_test.go") {
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

// LintFile checks a single Go file for public IPv4 literals
func LintFile(filePath string) ([]Issue, error) {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filePath, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("error parsing file: %w", err)
	}

	var issues []Issue

	ast.Inspect(node, func(n ast.Node) bool {
		lit, ok := n.(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			return true
		}

		value := strings.Trim(lit.Value, "\"`")
		addr, ok := extractIPv4(value)
		if !ok || addrIsContained(addr) {
			return true
		}

		pos := fset.Position(lit.Pos())
		issues = append(issues, Issue{
			File:    filePath,
			Line:    pos.Line,
			Column:  pos.Column,
			Literal: value,
			Message: fmt.Sprintf("IPv4 literal '%s' is outside the private ranges. Engine sources and targets must stay within RFC1918 or loopback space.", value),
		})
		return true
	})

	return issues, nil
}

// extractIPv4 pulls an IPv4 address out of a literal that may carry a port,
// a URL scheme, or a CIDR suffix.
func extractIPv4(value string) (netip.Addr, bool) {
	candidate := value
	if i := strings.Index(candidate, "://"); i >= 0 {
		candidate = candidate[i+3:]
	}
	if i := strings.Index(candidate, "/"); i >= 0 {
		if prefix, err := netip.ParsePrefix(candidate); err == nil && prefix.Addr().Is4() {
			return prefix.Addr(), true
		}
		candidate = candidate[:i]
	}
	if host, _, err := net.SplitHostPort(candidate); err == nil {
		candidate = host
	}
	addr, err := netip.ParseAddr(candidate)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, false
	}
	return addr, true
}

// addrIsContained reports whether addr may legitimately appear in source:
// private, loopback, link-local, unspecified, or multicast addresses.
func addrIsContained(addr netip.Addr) bool {
	if addr.IsLoopback() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() || addr.IsMulticast() {
		return true
	}
	if addr.IsPrivate() {
		return true
	}
	// Broadcast and documentation ranges show up in protocol tests and
	// comments pulled into string form.
	for _, p := range []string{"255.255.255.255/32", "192.0.2.0/24", "198.51.100.0/24", "203.0.113.0/24"} {
		if netip.MustParsePrefix(p).Contains(addr) {
			return true
		}
	}
	return false
}
