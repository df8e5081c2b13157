package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearLLMEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("MATHMINE_DB", "")
	t.Setenv("MATHMINE_S3_ENDPOINT", "")
	t.Setenv("MATHMINE_S3_ACCESS_KEY", "")
	t.Setenv("MATHMINE_S3_SECRET_KEY", "")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "math", cfg.Arxiv.Category)
	assert.Equal(t, 100, cfg.Arxiv.PageSize)
	assert.Equal(t, 5, cfg.Arxiv.MaxRetries)
	assert.Equal(t, 30, cfg.Arxiv.TimeWindowDays)
	assert.Equal(t, int64(42), cfg.Extract.Seed)
	assert.True(t, cfg.Extract.SkipAppendix)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearLLMEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.APIKey = "sk-test"
	cfg.Arxiv.Category = "math.CO"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", loaded.LLM.Provider)
	assert.Equal(t, "sk-test", loaded.LLM.APIKey)
	assert.Equal(t, "math.CO", loaded.Arxiv.Category)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearLLMEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Arxiv, cfg.Arxiv)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearLLMEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("arxiv:\n  page_size: 50\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Arxiv.PageSize)
	assert.Equal(t, "math", cfg.Arxiv.Category)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("arxiv: [unclosed"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MATHMINE_TEST_DOTENV=from-file\n"), 0600))

	t.Setenv("MATHMINE_TEST_DOTENV", "")
	os.Unsetenv("MATHMINE_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("MATHMINE_TEST_DOTENV"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestLoadDotEnv_DoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MATHMINE_TEST_KEEP=file\n"), 0600))

	t.Setenv("MATHMINE_TEST_KEEP", "shell")
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "shell", os.Getenv("MATHMINE_TEST_KEEP"))
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3*time.Second, cfg.GetArxivDelay())
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())

	cfg.Arxiv.Delay = "nonsense"
	assert.Equal(t, 3*time.Second, cfg.GetArxivDelay())

	cfg.Server.ReadTimeout = "2s"
	read, write := cfg.GetServerTimeouts()
	assert.Equal(t, 2*time.Second, read)
	assert.Equal(t, 30*time.Second, write)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad provider", func(c *Config) { c.LLM.Provider = "zai" }, "invalid LLM provider"},
		{"zero page size", func(c *Config) { c.Arxiv.PageSize = 0 }, "page_size"},
		{"zero window", func(c *Config) { c.Arxiv.TimeWindowDays = 0 }, "time_window_days"},
		{"zero concurrency", func(c *Config) { c.Extract.Concurrency = 0 }, "concurrency"},
		{"no database", func(c *Config) { c.Store.DatabasePath = "" }, "database_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateS3(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.ValidateS3())

	cfg.Export.S3 = S3Config{Endpoint: "localhost:9000", Bucket: "theorems"}
	assert.ErrorContains(t, cfg.ValidateS3(), "credentials")

	cfg.Export.S3.AccessKey = "minio"
	cfg.Export.S3.SecretKey = "minio123"
	assert.NoError(t, cfg.ValidateS3())
}
