package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration.
const DefaultPath = ".mathmine/config.yaml"

// Config holds all mathmine configuration.
type Config struct {
	// LLM configuration for theorem evaluation
	LLM LLMConfig `yaml:"llm"`

	// arXiv retrieval
	Arxiv ArxivConfig `yaml:"arxiv"`

	// Theorem extraction
	Extract ExtractConfig `yaml:"extract"`

	// Dataset storage
	Store StoreConfig `yaml:"store"`

	// Dataset export and object storage
	Export ExportConfig `yaml:"export"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the model used to judge theorems.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// ArxivConfig configures the arXiv API client and retriever.
type ArxivConfig struct {
	BaseURL        string `yaml:"base_url"`
	Category       string `yaml:"category"`
	PageSize       int    `yaml:"page_size"`
	Delay          string `yaml:"delay"`
	MaxRetries     int    `yaml:"max_retries"`
	TimeWindowDays int    `yaml:"time_window_days"`
	Timeout        string `yaml:"timeout"`
}

// ExtractConfig configures the theorem pipeline.
type ExtractConfig struct {
	SkipAppendix bool  `yaml:"skip_appendix"`
	Concurrency  int   `yaml:"concurrency"`
	Seed         int64 `yaml:"seed"`

	// CompileCheck runs pdflatex on each accepted theorem.
	CompileCheck   bool   `yaml:"compile_check"`
	LatexCommand   string `yaml:"latex_command"`
	CompileTimeout string `yaml:"compile_timeout"`
}

// StoreConfig configures the SQLite dataset store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ExportConfig configures dataset export targets.
type ExportConfig struct {
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

// S3Config configures an S3-compatible object store.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ServerConfig configures the JSON API.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "o3-mini-2025-01-31",
			Timeout:  "120s",
		},

		Arxiv: ArxivConfig{
			BaseURL:        "http://export.arxiv.org/api/query",
			Category:       "math",
			PageSize:       100,
			Delay:          "3s",
			MaxRetries:     5,
			TimeWindowDays: 30,
			Timeout:        "60s",
		},

		Extract: ExtractConfig{
			SkipAppendix:   true,
			Concurrency:    4,
			Seed:           42,
			LatexCommand:   "pdflatex",
			CompileTimeout: "60s",
		},

		Store: StoreConfig{
			DatabasePath: ".mathmine/mathmine.db",
		},

		Export: ExportConfig{
			Dir: "exports",
		},

		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  "10s",
			WriteTimeout: "30s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. A .env file next to the working directory is loaded first so
// its keys take part in the environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment. A key for the configured provider wins;
	// otherwise the first key found selects its provider.
	keys := []struct {
		provider string
		env      string
	}{
		{"openai", "OPENAI_API_KEY"},
		{"anthropic", "ANTHROPIC_API_KEY"},
		{"gemini", "GEMINI_API_KEY"},
	}
	if c.LLM.APIKey == "" {
		for _, k := range keys {
			if k.provider == c.LLM.Provider {
				c.LLM.APIKey = os.Getenv(k.env)
			}
		}
	}
	if c.LLM.APIKey == "" {
		for _, k := range keys {
			if key := os.Getenv(k.env); key != "" {
				c.LLM.APIKey = key
				c.LLM.Provider = k.provider
				break
			}
		}
	}

	if path := os.Getenv("MATHMINE_DB"); path != "" {
		c.Store.DatabasePath = path
	}

	if v := os.Getenv("MATHMINE_S3_ENDPOINT"); v != "" {
		c.Export.S3.Endpoint = v
	}
	if v := os.Getenv("MATHMINE_S3_ACCESS_KEY"); v != "" {
		c.Export.S3.AccessKey = v
	}
	if v := os.Getenv("MATHMINE_S3_SECRET_KEY"); v != "" {
		c.Export.S3.SecretKey = v
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetArxivDelay returns the minimum spacing between arXiv requests.
func (c *Config) GetArxivDelay() time.Duration {
	return parseDuration(c.Arxiv.Delay, 3*time.Second)
}

// GetArxivTimeout returns the per-request arXiv timeout.
func (c *Config) GetArxivTimeout() time.Duration {
	return parseDuration(c.Arxiv.Timeout, 60*time.Second)
}

// GetCompileTimeout returns the pdflatex timeout.
func (c *Config) GetCompileTimeout() time.Duration {
	return parseDuration(c.Extract.CompileTimeout, 60*time.Second)
}

// GetServerTimeouts returns the read and write timeouts of the API server.
func (c *Config) GetServerTimeouts() (read, write time.Duration) {
	return parseDuration(c.Server.ReadTimeout, 10*time.Second),
		parseDuration(c.Server.WriteTimeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "anthropic", "gemini"}

// Validate checks settings that every command depends on.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Arxiv.PageSize <= 0 {
		return fmt.Errorf("arxiv.page_size must be positive, got %d", c.Arxiv.PageSize)
	}
	if c.Arxiv.TimeWindowDays <= 0 {
		return fmt.Errorf("arxiv.time_window_days must be positive, got %d", c.Arxiv.TimeWindowDays)
	}
	if c.Extract.Concurrency <= 0 {
		return fmt.Errorf("extract.concurrency must be positive, got %d", c.Extract.Concurrency)
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}

	return nil
}

// ValidateLLM checks that an API key is available for the configured provider.
func (c *Config) ValidateLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY, ANTHROPIC_API_KEY or GEMINI_API_KEY)")
	}
	return nil
}

// ValidateS3 checks that an object store target is configured.
func (c *Config) ValidateS3() error {
	s3 := c.Export.S3
	if s3.Endpoint == "" || s3.Bucket == "" {
		return fmt.Errorf("export.s3.endpoint and export.s3.bucket are required for upload")
	}
	if s3.AccessKey == "" || s3.SecretKey == "" {
		return fmt.Errorf("S3 credentials not configured (set MATHMINE_S3_ACCESS_KEY and MATHMINE_S3_SECRET_KEY)")
	}
	return nil
}
