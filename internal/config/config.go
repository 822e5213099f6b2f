package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/wikiqa/internal/domain"
)

// Config holds the wikiqa configuration.
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Cache         CacheConfig         `yaml:"cache"`
	Budget        BudgetConfig        `yaml:"budget"`
	Auth          AuthConfig          `yaml:"auth"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. Empty disables auth on /api routes.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// OpenAIConfig holds model provider settings.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	TimeoutSec     int    `yaml:"timeout_sec"`
}

// ElasticsearchConfig holds search engine settings.
// Addresses overrides CloudID for self-hosted clusters and tests.
type ElasticsearchConfig struct {
	CloudID          string   `yaml:"cloud_id"`
	APIKey           string   `yaml:"api_key"`
	Addresses        []string `yaml:"addresses"`
	Index            string   `yaml:"index"`
	VectorField      string   `yaml:"vector_field"`
	K                int      `yaml:"k"`
	NumCandidates    int      `yaml:"num_candidates"`
	TimeoutSec       int      `yaml:"timeout_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Answer question sources.
const (
	AnswerQuestionOriginal   = "original"
	AnswerQuestionTranslated = "translated"
)

// PipelineConfig holds question pipeline settings.
type PipelineConfig struct {
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	AnswerQuestion    string `yaml:"answer_question"` // original | translated
	AnswerChoices     int    `yaml:"answer_choices"`
	MaxQuestionRunes  int    `yaml:"max_question_runes"`
}

// CacheConfig holds the optional Redis embedding cache settings.
type CacheConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	TTLSec   int      `yaml:"ttl_sec"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// Enabled reports whether any limit is set.
func (b BudgetConfig) Enabled() bool {
	return b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// The secrets file (SECRETS_FILE, default .env) is loaded into the environment first.
func Load(env string) (Config, error) {
	if err := loadSecrets(); err != nil {
		return Config{}, err
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("%w: failed to read config %s: %w", domain.ErrConfiguration, configPath, err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: failed to parse config: %w", domain.ErrConfiguration, err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// loadSecrets populates the environment from the dotenv secrets file.
// A missing default file is fine; a missing explicit SECRETS_FILE is not.
func loadSecrets() error {
	path := os.Getenv("SECRETS_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	// godotenv.Load never overrides variables that are already set.
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: load secrets file %s: %w", domain.ErrConfiguration, path, err)
	}
	return nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8501
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 90
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-3.5-turbo"
	}
	if c.OpenAI.EmbeddingModel == "" {
		c.OpenAI.EmbeddingModel = "text-embedding-ada-002"
	}
	if c.OpenAI.TimeoutSec <= 0 {
		c.OpenAI.TimeoutSec = 30
	}
	if c.Elasticsearch.Index == "" {
		c.Elasticsearch.Index = domain.DefaultIndex
	}
	if c.Elasticsearch.VectorField == "" {
		c.Elasticsearch.VectorField = domain.DefaultVectorField
	}
	if c.Elasticsearch.K <= 0 {
		c.Elasticsearch.K = domain.DefaultK
	}
	if c.Elasticsearch.NumCandidates <= 0 {
		c.Elasticsearch.NumCandidates = domain.DefaultNumCandidates
	}
	if c.Elasticsearch.TimeoutSec <= 0 {
		c.Elasticsearch.TimeoutSec = 10
	}
	if c.Elasticsearch.ReadinessTimeout <= 0 {
		c.Elasticsearch.ReadinessTimeout = 10
	}
	if c.Pipeline.RequestTimeoutSec <= 0 {
		c.Pipeline.RequestTimeoutSec = 60
	}
	if c.Pipeline.AnswerQuestion == "" {
		c.Pipeline.AnswerQuestion = AnswerQuestionOriginal
	}
	if c.Pipeline.AnswerChoices <= 0 {
		c.Pipeline.AnswerChoices = 1
	}
	if c.Pipeline.MaxQuestionRunes <= 0 {
		c.Pipeline.MaxQuestionRunes = domain.DefaultMaxQuestionRunes
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 7 * 24 * 3600
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if len(c.Elasticsearch.Addresses) == 0 && c.Elasticsearch.CloudID == "" {
		return fmt.Errorf("elasticsearch.cloud_id is required")
	}
	if c.Elasticsearch.APIKey == "" {
		return fmt.Errorf("elasticsearch.api_key is required")
	}
	if c.Elasticsearch.NumCandidates < c.Elasticsearch.K {
		return fmt.Errorf(
			"elasticsearch.num_candidates (%d) must be >= elasticsearch.k (%d)",
			c.Elasticsearch.NumCandidates, c.Elasticsearch.K,
		)
	}
	switch c.Pipeline.AnswerQuestion {
	case AnswerQuestionOriginal, AnswerQuestionTranslated:
		// ok
	default:
		return fmt.Errorf(
			"pipeline.answer_question must be %q or %q, got %q",
			AnswerQuestionOriginal, AnswerQuestionTranslated, c.Pipeline.AnswerQuestion,
		)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache.enabled is true")
	}
	switch c.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf("budget.action must be \"warn\" or \"reject\", got %q", c.Budget.Action)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Explicit CONFIG_DIR
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, filename)
	}

	// 2. ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 3. Relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
