package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofeint/gofeint/pkg/linter/privaterange"
)

var (
	rootDir      = flag.String("dir", ".", "Root directory to scan")
	outputFormat = flag.String("format", "text", "Output format (text, json)")
	includeTests = flag.Bool("include-tests", false, "Also check _test.go files")
	exemptFile   = flag.String("exempt-file", "", "Path to a JSON file containing exemptions")
	silentMode   = flag.Bool("silent", false, "Only output if issues are found")
	exitWithCode = flag.Bool("exit-code", true, "Exit with non-zero code if issues found")
)

func main() {
	flag.Parse()

	config := privaterange.NewDefaultConfig()
	config.IncludeTests = *includeTests

	if *exemptFile != "" {
		exemptions, err := loadExemptionsFromFile(*exemptFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading exemptions: %v\n", err)
			os.Exit(1)
		}
		config.ExemptFiles = exemptions
	}

	absRootDir, err := filepath.Abs(*rootDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving path: %v\n", err)
		os.Exit(1)
	}

	if !*silentMode {
		fmt.Printf("Scanning directory: %s\n", absRootDir)
	}

	issues, err := privaterange.LintProject(absRootDir, config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during linting: %v\n", err)
		os.Exit(1)
	}

	if len(issues) == 0 {
		if !*silentMode {
			fmt.Println("No issues found.")
		}
		return
	}

	if *outputFormat == "json" {
		outputJSON(issues)
	} else {
		outputText(issues)
	}
	if *exitWithCode {
		os.Exit(1)
	}
}

func outputText(issues []privaterange.Issue) {
	fmt.Printf("Found %d issues:\n\n", len(issues))
	for i, issue := range issues {
		relativePath, err := filepath.Rel(*rootDir, issue.File)
		if err != nil {
			relativePath = issue.File
		}
		fmt.Printf("%d) %s:%d:%d: %s\n", i+1, relativePath, issue.Line, issue.Column, issue.Message)
	}
	fmt.Println("\nEvery address the engine touches must stay inside RFC1918 or loopback space.")
}

func outputJSON(issues []privaterange.Issue) {
	type jsonOutput struct {
		Issues []privaterange.Issue `json:"issues"`
		Total  int                  `json:"total_issues"`
	}

	jsonData, err := json.MarshalIndent(jsonOutput{Issues: issues, Total: len(issues)}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling to JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(jsonData))
}

func loadExemptionsFromFile(filePath string) ([]privaterange.ExemptFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var exemptions []privaterange.ExemptFile
	if err := json.Unmarshal(data, &exemptions); err != nil {
		return nil, err
	}
	return exemptions, nil
}
