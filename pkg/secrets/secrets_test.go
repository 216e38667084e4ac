package secrets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leakedKey = `const apiKey = "sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz"`

func TestScanner_CleanContent(t *testing.T) {
	findings, err := Detect("package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n", nil)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestScanner_FindsKey(t *testing.T) {
	s, err := NewScanner(nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		content string
		line    int
	}{
		{"first line", leakedKey + "\n", 1},
		{"second line", "\n" + leakedKey + "\n", 2},
		{"after code", "import x from 'y';\n\nconst a = 1;\n" + leakedKey + "\n", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := s.Scan("src/client.ts", tt.content)
			require.NotEmpty(t, findings)
			assert.Equal(t, "src/client.ts", findings[0].File)
			assert.NotEmpty(t, findings[0].RuleID)
			assert.Equal(t, tt.line, findings[0].Line)
		})
	}
}

func TestScanner_PathAllowlist(t *testing.T) {
	s, err := NewScanner(&Allowlist{Paths: []string{`^fixtures/`}})
	require.NoError(t, err)

	assert.True(t, s.Allowed("fixtures/keys.ts"))
	assert.Empty(t, s.Scan("fixtures/keys.ts", leakedKey))
}

func TestScanner_ContentAllowlist(t *testing.T) {
	content := `export DEMO_API_KEY="this-is-a-demo-key-12345"`
	findings, err := Detect(content, &Allowlist{Regexes: []string{`DEMO_API_KEY`}})
	require.NoError(t, err)
	for _, f := range findings {
		assert.NotContains(t, f.Match, "DEMO_API_KEY")
	}
}

func TestNewScanner_InvalidPattern(t *testing.T) {
	_, err := NewScanner(&Allowlist{Paths: []string{`([`}})
	assert.ErrorIs(t, err, ErrInvalidRegex)
}

func TestLoadAllowlists(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, ".gitleaks.toml")
	require.NoError(t, os.WriteFile(project, []byte(`
[allowlist]
paths = ['''^testdata/''']
regexes = ['''EXAMPLE_KEY''']
`), 0o600))
	user := filepath.Join(dir, "user.toml")
	require.NoError(t, os.WriteFile(user, []byte("[allowlist]\nregexes = ['''DUMMY''']\n"), 0o600))

	a, err := LoadAllowlists(project, "", filepath.Join(dir, "missing.toml"), user)
	require.NoError(t, err)
	assert.Equal(t, []string{`^testdata/`}, a.Paths)
	assert.Equal(t, []string{"EXAMPLE_KEY", "DUMMY"}, a.Regexes)
}

func TestLoadAllowlists_Invalid(t *testing.T) {
	dir := t.TempDir()

	badTOML := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(badTOML, []byte("[allowlist\n"), 0o600))
	_, err := LoadAllowlists(badTOML)
	assert.ErrorIs(t, err, ErrInvalidTOML)

	badRegex := filepath.Join(dir, "regex.toml")
	require.NoError(t, os.WriteFile(badRegex, []byte("[allowlist]\npaths = ['''([''']\n"), 0o600))
	_, err = LoadAllowlists(badRegex)
	assert.ErrorIs(t, err, ErrInvalidRegex)
}

func TestBuildReport(t *testing.T) {
	findings := []Finding{
		{File: "b.ts", RuleID: "generic-api-key", Line: 3, Match: "sk-proj-secretvalue"},
		{File: "a.ts", RuleID: "generic-api-key", Line: 9, Match: "abc"},
		{File: "a.ts", RuleID: "github-pat", Line: 1, Match: "ghp_xxxxxxxx"},
	}

	r := BuildReport(findings, 4, 1500*time.Millisecond)
	assert.False(t, r.Clean())
	require.Len(t, r.Redactions, 3)
	assert.Equal(t, "a.ts", r.Redactions[0].File)
	assert.Equal(t, 1, r.Redactions[0].LineNumber)
	assert.Equal(t, "ghp_", r.Redactions[0].Preview)
	assert.Equal(t, "abc", r.Redactions[1].Preview)
	assert.Equal(t, 2, r.Summary.UniqueRules)
	assert.Equal(t, 4, r.Summary.FilesScanned)
	assert.Equal(t, int64(1500), r.Summary.ProcessingTimeMs)

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secretvalue")

	assert.True(t, BuildReport(nil, 0, 0).Clean())
}
