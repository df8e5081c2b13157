package manifest_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathmine/internal/manifest"
)

func TestSatisfies(t *testing.T) {
	tests := []struct {
		spec    string
		version string
		want    bool
	}{
		{"numpy>=1.24.3", "1.26.4", true},
		{"numpy>=1.24.3", "1.24.3", true},
		{"numpy>=1.24.3", "1.24.2", false},
		{"regex>=2023.10.3", "2024.5.15", true},
		{"flask==2.3.3", "2.3.3", true},
		{"flask==2.3", "2.3.0", true},
		{"flask!=2.3.3", "2.3.3", false},
		{"tqdm~=4.66", "4.99.0", true},
		{"tqdm~=4.66", "5.0.0", false},
		{"tqdm~=4.66.1", "4.66.5", true},
		{"tqdm~=4.66.1", "4.67.0", false},
		{"numpy==1.24.*", "1.24.9", true},
		{"numpy==1.24.*", "1.25.0", false},
		{"numpy!=1.24.*", "1.25.0", true},
		{"pandas<2", "1.5.3", true},
		{"pandas<2", "2.0.0", false},
		{"rich", "13.6.0", true},
		{"wandb===0.16.0", "0.16.0", true},
		{"wandb===0.16.0", "0.16", false},
		{"openai>=1.3.0", "1.3.0.post1", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec+"@"+tt.version, func(t *testing.T) {
			req, _, err := manifest.ParseLine(tt.spec)
			require.NoError(t, err)

			got, err := manifest.Satisfies(req, tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSatisfies_UnparseableVersion(t *testing.T) {
	req, _, err := manifest.ParseLine("numpy>=1.24.3")
	require.NoError(t, err)

	_, err = manifest.Satisfies(req, "dev")
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	m, err := manifest.Parse(strings.NewReader("numpy>=1.24.3\npandas>=2.0.3\nrich>=13.6.0\n"))
	require.NoError(t, err)

	installed, err := manifest.Parse(strings.NewReader("numpy==1.26.4\nPandas==1.5.3\n"))
	require.NoError(t, err)

	results := manifest.Check(m, installed)
	require.Len(t, results, 3)

	assert.Equal(t, manifest.StatusSatisfied, results[0].Status)
	assert.Equal(t, "1.26.4", results[0].Installed)
	assert.Equal(t, manifest.StatusViolated, results[1].Status)
	assert.Contains(t, results[1].Detail, "1.5.3")
	assert.Equal(t, manifest.StatusMissing, results[2].Status)
}
