package privaterange

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLintFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		source     string
		wantIssues int
	}{
		{
			name: "public_ip_literal_flagged",
			source: `package x
var target = "8.8.8.8"
`,
			wantIssues: 1,
		},
		{
			name: "public_ip_with_port_flagged",
			source: `package x
var target = "1.2.3.4:443"
`,
			wantIssues: 1,
		},
		{
			name: "public_ip_in_url_flagged",
			source: `package x
var target = "http://93.184.216.34:8080/path"
`,
			wantIssues: 1,
		},
		{
			name: "private_and_loopback_allowed",
			source: `package x
var a = "10.1.2.3"
var b = "172.16.0.1:8080"
var c = "192.168.56.10"
var d = "127.0.0.1:1080"
var e = "0.0.0.0"
`,
			wantIssues: 0,
		},
		{
			name: "cidr_and_documentation_allowed",
			source: `package x
var a = "10.0.0.0/8"
var b = "192.0.2.1"
`,
			wantIssues: 0,
		},
		{
			name: "non_address_strings_ignored",
			source: `package x
var a = "not an address"
var b = "1.2.3"
var c = "version 10.20.30.40.50"
`,
			wantIssues: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSource(t, dir, tt.name+".go", tt.source)
			issues, err := LintFile(path)
			require.NoError(t, err)
			assert.Len(t, issues, tt.wantIssues)
		})
	}
}

func TestLintProject_skips_tests_by_default(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "prod.go", `package x
var target = "8.8.8.8"
`)
	writeSource(t, dir, "prod_test.go", `package x
var testTarget = "9.9.9.9"
`)

	issues, err := LintProject(dir, nil)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].File, "prod.go")

	cfg := NewDefaultConfig()
	cfg.IncludeTests = true
	issues, err = LintProject(dir, cfg)
	require.NoError(t, err)
	assert.Len(t, issues, 2)
}

func TestLintProject_respects_exemptions(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "prod.go", `package x
var target = "8.8.8.8"
`)

	cfg := NewDefaultConfig()
	cfg.ExemptFiles = []ExemptFile{{Path: "prod.go", Reason: "documented upstream resolver"}}
	issues, err := LintProject(dir, cfg)
	require.NoError(t, err)
	assert.Empty(t, issues)
}
