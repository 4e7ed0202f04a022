package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures runner, server, generation, training and storage settings
// for TraceLens.
type Config struct {
	Runner     RunnerConfig       `yaml:"runner"`
	Server     ServerConfig       `yaml:"server"`
	Generation GenerationDefaults `yaml:"generation"`
	Training   TrainingConfig     `yaml:"training"`
	Data       DataConfig         `yaml:"data"`
	Index      IndexConfig        `yaml:"index"`
	Analytics  AnalyticsConfig    `yaml:"analytics"`
	Corpus     CorpusConfig       `yaml:"corpus"`
	Assets     AssetsConfig       `yaml:"assets"`
}

// RunnerConfig locates the external model runner that hosts the tokenizer and
// the forward pass.
type RunnerConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
	Model   string `yaml:"model"`
}

// ServerConfig defines HTTP settings for the trace service.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Enabled bool   `yaml:"enabled"`
}

// GenerationDefaults allows overriding common inference parameters globally.
type GenerationDefaults struct {
	MaxNewTokens      int     `yaml:"max_new_tokens"`
	TopK              int     `yaml:"top_k"`
	Temperature       float64 `yaml:"temperature"`
	ApplyChatTemplate *bool   `yaml:"apply_chat_template"`
}

// TrainingConfig governs teacher-forced trace recording.
type TrainingConfig struct {
	MaxTokens int `yaml:"max_tokens"`
}

// DataConfig decides where trace documents are written.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// IndexConfig configures the trace catalog.
type IndexConfig struct {
	Path    string `yaml:"path"`
	Catalog string `yaml:"catalog"`
}

// AnalyticsConfig configures the trace statistics store.
type AnalyticsConfig struct {
	Path string `yaml:"path"`
}

// CorpusConfig governs which files the training corpus loader accepts.
type CorpusConfig struct {
	Extensions []string `yaml:"extensions"`
}

// AssetsConfig locates downloadable UI assets such as web fonts.
type AssetsConfig struct {
	Dir    string `yaml:"dir"`
	CSSURL string `yaml:"css_url"`
}

const defaultConfigFile = "tracelens.yaml"

// Default returns a Config pre-populated with defaults for a local runner.
func Default() Config {
	applyChat := true
	return Config{
		Runner: RunnerConfig{
			BaseURL: "http://127.0.0.1:8008",
			Timeout: "60s",
		},
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    5000,
			Enabled: true,
		},
		Generation: GenerationDefaults{
			MaxNewTokens:      30,
			TopK:              10,
			Temperature:       0.0,
			ApplyChatTemplate: &applyChat,
		},
		Training: TrainingConfig{
			MaxTokens: 100,
		},
		Data: DataConfig{
			Dir: "data",
		},
		Index: IndexConfig{
			Path:    "tracelens_index.db",
			Catalog: "examples.json",
		},
		Analytics: AnalyticsConfig{
			Path: "tracelens_stats.duckdb",
		},
		Corpus: CorpusConfig{
			Extensions: []string{".txt", ".md", ".markdown", ".pdf"},
		},
		Assets: AssetsConfig{
			Dir:    filepath.Join("assets", "fonts"),
			CSSURL: "https://fonts.googleapis.com/css2?family=JetBrains+Mono:wght@400;700&display=swap",
		},
	}
}

// Resolve loads configuration from file and environment variables.
func Resolve() (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(os.Getenv("APP_CONFIG"))
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	} else if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("provided APP_CONFIG file %q not found", path)
	}

	if path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = merge(cfg, loaded)
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	return cfg, nil
}

func merge(base, override Config) Config {
	result := base

	if override.Runner.BaseURL != "" {
		result.Runner.BaseURL = override.Runner.BaseURL
	}
	if override.Runner.Timeout != "" {
		result.Runner.Timeout = override.Runner.Timeout
	}
	if override.Runner.Model != "" {
		result.Runner.Model = override.Runner.Model
	}

	if override.Server.Host != "" {
		result.Server.Host = override.Server.Host
	}
	if override.Server.Port != 0 {
		result.Server.Port = override.Server.Port
	}
	if override.Server.Enabled {
		result.Server.Enabled = override.Server.Enabled
	}

	g := override.Generation
	if g.MaxNewTokens != 0 {
		result.Generation.MaxNewTokens = g.MaxNewTokens
	}
	if g.TopK != 0 {
		result.Generation.TopK = g.TopK
	}
	if g.Temperature != 0 {
		result.Generation.Temperature = g.Temperature
	}
	if g.ApplyChatTemplate != nil {
		result.Generation.ApplyChatTemplate = g.ApplyChatTemplate
	}

	if override.Training.MaxTokens != 0 {
		result.Training.MaxTokens = override.Training.MaxTokens
	}

	if override.Data.Dir != "" {
		result.Data.Dir = override.Data.Dir
	}

	if override.Index.Path != "" {
		result.Index.Path = override.Index.Path
	}
	if override.Index.Catalog != "" {
		result.Index.Catalog = override.Index.Catalog
	}

	if override.Analytics.Path != "" {
		result.Analytics.Path = override.Analytics.Path
	}

	if len(override.Corpus.Extensions) != 0 {
		result.Corpus.Extensions = append([]string(nil), override.Corpus.Extensions...)
	}

	if override.Assets.Dir != "" {
		result.Assets.Dir = override.Assets.Dir
	}
	if override.Assets.CSSURL != "" {
		result.Assets.CSSURL = override.Assets.CSSURL
	}

	return result
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("APP_RUNNER_BASEURL")); v != "" {
		cfg.Runner.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_RUNNER_TIMEOUT")); v != "" {
		cfg.Runner.Timeout = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_RUNNER_MODEL")); v != "" {
		cfg.Runner.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_SERVER_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_SERVER_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_SERVER_ENABLED")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Server.Enabled = enabled
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_GEN_MAXNEWTOKENS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Generation.MaxNewTokens = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_GEN_TOPK")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Generation.TopK = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_GEN_TEMPERATURE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Generation.Temperature = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_GEN_CHAT_TEMPLATE")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Generation.ApplyChatTemplate = &enabled
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_TRAIN_MAXTOKENS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Training.MaxTokens = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_DATA_DIR")); v != "" {
		cfg.Data.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_INDEX_PATH")); v != "" {
		cfg.Index.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_ANALYTICS_PATH")); v != "" {
		cfg.Analytics.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_CORPUS_EXTENSIONS")); v != "" {
		parts := strings.Split(v, ",")
		cfg.Corpus.Extensions = make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if !strings.HasPrefix(trimmed, ".") {
				trimmed = "." + trimmed
			}
			cfg.Corpus.Extensions = append(cfg.Corpus.Extensions, strings.ToLower(trimmed))
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_ASSETS_DIR")); v != "" {
		cfg.Assets.Dir = v
	}
}

// ServerEnabled reports if the HTTP server should be started.
func (c Config) ServerEnabled() bool {
	return c.Server.Enabled
}

// ServerAddr returns the host:port the HTTP server binds to.
func (c Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// RunnerTimeout parses the runner timeout, falling back to a minute when the
// value is missing or malformed.
func (c Config) RunnerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Runner.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// ApplyChatTemplate reports the generation default, true when unset.
func (c Config) ApplyChatTemplate() bool {
	if c.Generation.ApplyChatTemplate == nil {
		return true
	}
	return *c.Generation.ApplyChatTemplate
}
