package model

import (
	"strconv"
	"strings"
)

// Config is the complete entrole configuration
type Config struct {
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	NER          NERConfig          `yaml:"ner" mapstructure:"ner"`
	Pacer        PacerConfig        `yaml:"pacer" mapstructure:"pacer"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Scoring      ScoringConfig      `yaml:"scoring" mapstructure:"scoring"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// LLMConfig holds one profile per pipeline stage
type LLMConfig struct {
	Generation ProfileConfig `yaml:"generation" mapstructure:"generation"`
	Correction ProfileConfig `yaml:"correction" mapstructure:"correction"`
	Judge      ProfileConfig `yaml:"judge" mapstructure:"judge"`

	// TemplatesFile optionally overrides the built-in prompt templates
	TemplatesFile string `yaml:"templates_file,omitempty" mapstructure:"templates_file"`
}

// ProfileConfig describes the model behind one logical profile
type ProfileConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
}

// NERConfig configures the upstream NER service
type NERConfig struct {
	URL          string `yaml:"url" mapstructure:"url"`
	Source       string `yaml:"source" mapstructure:"source"`
	SessionID    string `yaml:"session_id" mapstructure:"session_id"`
	Timeout      int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxAttempts  int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// PacerConfig configures the shared model-call gate
type PacerConfig struct {
	IntervalSeconds float64 `yaml:"interval_seconds" mapstructure:"interval_seconds"`
}

// RateLimitingConfig limits requests per NER host
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// CacheConfig configures the NER response cache
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	MemoryTTL int    `yaml:"memory_ttl_minutes" mapstructure:"memory_ttl_minutes"`
	DiskDir   string `yaml:"disk_dir,omitempty" mapstructure:"disk_dir"` // empty disables the disk layer
	DiskTTL   int    `yaml:"disk_ttl_hours" mapstructure:"disk_ttl_hours"`
}

// ConcurrencyConfig sizes the batch worker pool
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ScoringConfig selects how rewards are computed
type ScoringConfig struct {
	EvalMode string `yaml:"eval_mode" mapstructure:"eval_mode"` // llm, human, judge
	Goal     string `yaml:"goal" mapstructure:"goal"`
}

// HTTPConfig carries proxy settings shared by outbound clients
type HTTPConfig struct {
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file,omitempty" mapstructure:"file"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Generation: ProfileConfig{
				Provider:    "openai",
				Model:       "glm-4.5-flash",
				Timeout:     300,
				Temperature: 0.01,
			},
			Correction: ProfileConfig{
				Provider:    "openai",
				Model:       "glm-4.7",
				Timeout:     300,
				Temperature: 0.01,
			},
			Judge: ProfileConfig{
				Provider:    "openai",
				Model:       "glm-4.7",
				Timeout:     300,
				Temperature: 0.01,
			},
		},
		NER: NERConfig{
			URL:          "http://localhost:30803/ner_pred",
			Source:       "wind.search",
			SessionID:    "11",
			Timeout:      60,
			MaxBodyBytes: 2_000_000,
			MaxAttempts:  3,
		},
		Pacer: PacerConfig{
			IntervalSeconds: 1.0,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 30,
			DiskDir:   ".entrole-cache",
			DiskTTL:   24,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Scoring: ScoringConfig{
			EvalMode: "llm",
			Goal:     "Identify entity roles",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// EnvDefaults maps the conventional environment variables onto config keys.
// The values belong just above the built-in defaults: a config file,
// ENTROLE_* variables and flags all override them.
//
//	LLM_API_KEY / LLM_BASE_URL / LLM_MODEL_NAME                   all profiles
//	ROLLOUT_API_KEY / ROLLOUT_BASE_URL / ROLLOUT_MODEL_NAME       generation
//	OPTIMIZER_API_KEY / OPTIMIZER_BASE_URL / OPTIMIZER_MODEL_NAME judge
//	LLM_REQUEST_INTERVAL                                          pacer seconds
//	NER_URL                                                       NER endpoint
func EnvDefaults(getenv func(string) string) map[string]any {
	out := make(map[string]any)

	profiles := []struct {
		key      string
		prefixes []string
	}{
		{"llm.generation", []string{"ROLLOUT", "LLM"}},
		{"llm.correction", []string{"LLM"}},
		{"llm.judge", []string{"OPTIMIZER", "LLM"}},
	}
	fields := []struct{ key, suffix string }{
		{"api_key", "API_KEY"},
		{"base_url", "BASE_URL"},
		{"model", "MODEL_NAME"},
	}
	for _, p := range profiles {
		for _, f := range fields {
			if v := firstEnv(getenv, f.suffix, p.prefixes...); v != "" {
				out[p.key+"."+f.key] = v
			}
		}
	}

	if v := getenv("LLM_REQUEST_INTERVAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out["pacer.interval_seconds"] = f
		}
	}
	if v := getenv("NER_URL"); v != "" {
		out["ner.url"] = v
	}
	return out
}

func firstEnv(getenv func(string) string, suffix string, prefixes ...string) string {
	for _, prefix := range prefixes {
		if v := getenv(prefix + "_" + suffix); v != "" {
			return v
		}
	}
	return ""
}

// ApplyEnv fills credentials that are still empty from the provider's own
// variable: OPENAI_API_KEY, ANTHROPIC_API_KEY or OLLAMA_BASE_URL
func ApplyEnv(cfg *Config, getenv func(string) string) {
	for _, p := range []*ProfileConfig{&cfg.LLM.Generation, &cfg.LLM.Correction, &cfg.LLM.Judge} {
		switch strings.ToLower(p.Provider) {
		case "openai":
			if p.APIKey == "" {
				p.APIKey = getenv("OPENAI_API_KEY")
			}
		case "anthropic", "claude":
			if p.APIKey == "" {
				p.APIKey = getenv("ANTHROPIC_API_KEY")
			}
		case "ollama":
			if p.BaseURL == "" {
				p.BaseURL = getenv("OLLAMA_BASE_URL")
			}
		}
	}
}
