package manifest_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathmine/internal/manifest"
)

func lintSource(t *testing.T, src string) []manifest.Finding {
	t.Helper()
	m, err := manifest.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return manifest.Lint(m)
}

func rules(findings []manifest.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Rule)
	}
	return out
}

func TestLint_ShippedManifestHasNoErrors(t *testing.T) {
	m, err := manifest.ParseFile("testdata/requirements.txt")
	require.NoError(t, err)

	require.NoError(t, manifest.Validate(m))

	warnings := manifest.Filter(manifest.Lint(m), manifest.SeverityWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, manifest.RuleStdlibShadow, warnings[0].Rule)
	assert.Equal(t, "pathlib", warnings[0].Package)
}

func TestLint_Conflict(t *testing.T) {
	findings := manifest.Filter(lintSource(t, "numpy>=1.24.3\nNumPy>=1.26.0\n"), manifest.SeverityWarning)

	require.Len(t, findings, 1)
	assert.Equal(t, manifest.RuleConflict, findings[0].Rule)
	assert.Equal(t, manifest.SeverityError, findings[0].Severity)
	assert.Equal(t, 2, findings[0].Line)
}

func TestLint_ConflictOnComparator(t *testing.T) {
	findings := manifest.Filter(lintSource(t, "flask>=2.3.3\nflask==2.3.3\n"), manifest.SeverityError)

	require.Len(t, findings, 1)
	assert.Equal(t, manifest.RuleConflict, findings[0].Rule)
}

func TestLint_ExactDuplicateIsWarning(t *testing.T) {
	findings := manifest.Filter(lintSource(t, "rich>=13.6.0\nrich>=13.6.0\n"), manifest.SeverityWarning)

	require.Len(t, findings, 1)
	assert.Equal(t, manifest.RuleDuplicate, findings[0].Rule)
	assert.Equal(t, manifest.SeverityWarning, findings[0].Severity)
}

func TestLint_StdlibDeclared(t *testing.T) {
	src := "json>=2.0.0\n\n# Standard library modules (no installation needed):\n# json, os\n"
	findings := manifest.Filter(lintSource(t, src), manifest.SeverityError)

	require.Len(t, findings, 1)
	assert.Equal(t, manifest.RuleStdlibDeclared, findings[0].Rule)
	assert.Equal(t, 1, findings[0].Line)
	assert.Contains(t, findings[0].Message, "line 4")
}

func TestLint_StdlibDeclaredSuppressesShadow(t *testing.T) {
	src := "os>=1.0\n# standard library: os\n"
	got := rules(manifest.Filter(lintSource(t, src), manifest.SeverityWarning))

	assert.Equal(t, []string{manifest.RuleStdlibDeclared}, got)
}

func TestLint_Unbounded(t *testing.T) {
	findings := lintSource(t, "rich\n")

	require.Len(t, findings, 1)
	assert.Equal(t, manifest.RuleUnbounded, findings[0].Rule)
}

func TestLint_LowerBoundIsInfo(t *testing.T) {
	findings := lintSource(t, "tqdm>=4.66.1\n")

	require.Len(t, findings, 1)
	assert.Equal(t, manifest.RuleNoUpperBound, findings[0].Rule)
	assert.Equal(t, manifest.SeverityInfo, findings[0].Severity)
	assert.Empty(t, manifest.Filter(findings, manifest.SeverityWarning))
}

func TestLint_OrderedByLine(t *testing.T) {
	findings := lintSource(t, "b>=1\na\nb>=2\n")

	for i := 1; i < len(findings); i++ {
		assert.LessOrEqual(t, findings[i-1].Line, findings[i].Line)
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	m, err := manifest.Parse(strings.NewReader("a>=1\na>=2\nb>=1\nb<3\n"))
	require.NoError(t, err)

	verr := manifest.Validate(m)
	require.Error(t, verr)
	assert.Contains(t, verr.Error(), "2 errors occurred")
}
