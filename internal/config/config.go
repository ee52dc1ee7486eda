package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/curator/internal/models"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// DefaultPromptTemplate is used when the curation section sets no prompt.
const DefaultPromptTemplate = `Write a professional weekly digest from the articles below.

For each article:
1. Summarize the core point in 2-3 sentences.
2. List 3-5 key takeaways.
3. Explain why it matters to practitioners.

Group articles by category, use Markdown headings, and keep the tone concise and objective.`

type Config struct {
	Curation  models.Settings `yaml:"curation"`
	Collector Collector       `yaml:"collector"`
	LLM       LLM             `yaml:"llm"`
	Report    Report          `yaml:"report"`
	Publisher Publisher       `yaml:"publisher"`
	Storage   Storage         `yaml:"storage"`
	Output    Output          `yaml:"output"`
	Server    Server          `yaml:"server"`
	Logging   Logging         `yaml:"logging"`
}

type Collector struct {
	MaxPerFeed     int  `yaml:"max_per_feed"`
	DaysBack       int  `yaml:"days_back"`
	FetchContent   bool `yaml:"fetch_content"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
}

type LLM struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	OllamaURL       string `yaml:"ollama_url"`
	OpenAIModel     string `yaml:"openai_model"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	APIKeyEnv       string `yaml:"api_key_env"`
	MaxTokens       int    `yaml:"max_tokens"`
	ReportMaxTokens int    `yaml:"report_max_tokens"`
}

type Report struct {
	Generator string `yaml:"generator"`
}

type Publisher struct {
	Kind       string `yaml:"kind"`
	Dir        string `yaml:"dir"`
	WebhookURL string `yaml:"webhook_url"`
	TokenEnv   string `yaml:"token_env"`
}

type Storage struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Debug reports whether logging.level asks for verbose process logs.
func (l Logging) Debug() bool {
	return strings.EqualFold(strings.TrimSpace(l.Level), "DEBUG")
}

// ConfigDir returns the XDG config directory for curator.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "curator")
}

// DataDir returns the XDG data directory for curator.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "curator")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/curator/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'curator init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults. The curation
// section is filled after unmarshalling, since yaml merges into maps rather
// than replacing them.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Collector: Collector{
			MaxPerFeed:     20,
			DaysBack:       7,
			FetchContent:   true,
			TimeoutSeconds: 15,
		},
		LLM: LLM{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			APIKeyEnv:       "OPENAI_API_KEY",
			MaxTokens:       512,
			ReportMaxTokens: 2048,
		},
		Report:    Report{Generator: "llm"},
		Publisher: Publisher{Kind: "file", TokenEnv: "CURATOR_PUBLISH_TOKEN"},
		Storage:   Storage{Driver: "sqlite"},
		Server:    Server{Port: 8000},
		Logging:   Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyCurationDefaults(&cfg.Curation)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyCurationDefaults(c *models.Settings) {
	if len(c.Categories) == 0 {
		c.Categories = []string{"AI Technology", "Industry Applications", "Policy & Regulation", "Market Trends"}
		if c.CategoryQuotas == nil {
			c.CategoryQuotas = map[string]int{
				"AI Technology":         2,
				"Industry Applications": 2,
				"Policy & Regulation":   1,
				"Market Trends":         2,
			}
		}
	}
	if c.CategoryQuotas == nil {
		c.CategoryQuotas = map[string]int{}
	}
	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = 4
	}
	if c.Schedule.Frequency == "" {
		c.Schedule = models.Schedule{Frequency: models.FrequencyWeekly, Day: "Friday", Hour: 9}
	}
	if strings.TrimSpace(c.PromptTemplate) == "" {
		c.PromptTemplate = DefaultPromptTemplate
	}
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if err := c.Curation.Validate(); err != nil {
		return fmt.Errorf("curation: %w", err)
	}
	switch c.Report.Generator {
	case "llm", "template":
	default:
		return fmt.Errorf("report.generator must be llm or template, got %q", c.Report.Generator)
	}
	switch c.Publisher.Kind {
	case "file":
	case "webhook":
		if c.Publisher.WebhookURL == "" {
			return fmt.Errorf("publisher.webhook_url is required for the webhook publisher")
		}
	default:
		return fmt.Errorf("publisher.kind must be file or webhook, got %q", c.Publisher.Kind)
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("storage.driver must be sqlite or memory, got %q", c.Storage.Driver)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DatabasePath returns the SQLite file path.
func (c *Config) DatabasePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.GetDataDir(), "curator.db")
}

// PublishDir returns the directory used by the file publisher.
func (c *Config) PublishDir() string {
	if c.Publisher.Dir != "" {
		return c.Publisher.Dir
	}
	return filepath.Join(c.GetDataDir(), "published")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
