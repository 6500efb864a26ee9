package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full run configuration: the backends under test, the
// optional judge backend, and the execution/evaluation/storage knobs.
// It is loaded once at startup and treated as immutable for the run.
type Config struct {
	Targets   []BackendConfig `json:"targets" yaml:"targets"`
	Judge     *BackendConfig  `json:"judge,omitempty" yaml:"judge,omitempty"`
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Reporting ReportingConfig `json:"reporting" yaml:"reporting"`
}

// BackendConfig describes one callable model endpoint.
type BackendConfig struct {
	Name      string `json:"name" yaml:"name"`
	Kind      string `json:"kind" yaml:"kind"`
	ModelName string `json:"model_name" yaml:"model_name"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	// APIKey is usually given as ${SOME_ENV_VAR} in the config file and
	// resolved during load.
	APIKey string `json:"api_key" yaml:"api_key"`

	Generation GenerationParams `json:"generation" yaml:"generation"`

	TimeoutSec   int `json:"timeout_sec" yaml:"timeout_sec"`
	MaxRetries   int `json:"max_retries" yaml:"max_retries"`
	RateLimitRPM int `json:"rate_limit_rpm" yaml:"rate_limit_rpm"`
	RateWaitSec  int `json:"rate_wait_sec" yaml:"rate_wait_sec"`
	PoolSize     int `json:"pool_size" yaml:"pool_size"`
	PoolWaitSec  int `json:"pool_wait_sec" yaml:"pool_wait_sec"`

	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

type GenerationParams struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	TimeoutSec       int `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type ExecutionConfig struct {
	MaxConcurrentAttacks   int `json:"max_concurrent_attacks" yaml:"max_concurrent_attacks"`
	DelayBetweenAttacksMS  int `json:"delay_between_attacks_ms" yaml:"delay_between_attacks_ms"`
	HealthCheckConcurrency int `json:"health_check_concurrency" yaml:"health_check_concurrency"`
}

type StoreConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	MaxConns int32  `json:"max_conns" yaml:"max_conns"`
}

type TelemetryConfig struct {
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string  `json:"service_name" yaml:"service_name"`
	SampleRatio  float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

type ReportingConfig struct {
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		if len(sub) >= 3 {
			return sub[2]
		}
		return ""
	})
}

func Default() Config {
	return Config{
		Execution: ExecutionConfig{
			MaxConcurrentAttacks:   5,
			DelayBetweenAttacksMS:  0,
			HealthCheckConcurrency: 4,
		},
		Store: StoreConfig{
			MaxConns: 10,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "quinine",
			SampleRatio: 1,
		},
		Reporting: ReportingConfig{
			OutputDir: "./reports",
		},
	}
}

// Load reads a YAML or JSON config file, expands ${ENV} references, and
// applies defaults for anything left unset.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	expanded := []byte(expandEnvVars(string(data)))
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(expanded, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json config: %w", err)
		}
	default:
		if yamlErr := yaml.Unmarshal(expanded, &cfg); yamlErr == nil {
			break
		}
		if err := json.Unmarshal(expanded, &cfg); err != nil {
			return cfg, errors.New("config format not recognized (expected yaml/json)")
		}
	}
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	for i := range cfg.Targets {
		normalizeBackend(&cfg.Targets[i])
	}
	if cfg.Judge != nil {
		normalizeBackend(cfg.Judge)
	}
	if cfg.Execution.MaxConcurrentAttacks <= 0 {
		cfg.Execution.MaxConcurrentAttacks = 5
	}
	if cfg.Execution.DelayBetweenAttacksMS < 0 {
		cfg.Execution.DelayBetweenAttacksMS = 0
	}
	if cfg.Execution.HealthCheckConcurrency <= 0 {
		cfg.Execution.HealthCheckConcurrency = 4
	}
	if cfg.Store.MaxConns <= 0 {
		cfg.Store.MaxConns = 10
	}
	if cfg.Telemetry.SampleRatio <= 0 || cfg.Telemetry.SampleRatio > 1 {
		cfg.Telemetry.SampleRatio = 1
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "quinine"
	}
	if strings.TrimSpace(cfg.Reporting.OutputDir) == "" {
		cfg.Reporting.OutputDir = "./reports"
	}
}

func normalizeBackend(b *BackendConfig) {
	if b.TimeoutSec <= 0 {
		b.TimeoutSec = 30
	}
	if b.MaxRetries < 0 {
		b.MaxRetries = 0
	}
	if b.MaxRetries == 0 {
		b.MaxRetries = 3
	}
	if b.RateLimitRPM <= 0 {
		b.RateLimitRPM = 60
	}
	if b.RateWaitSec <= 0 {
		b.RateWaitSec = 120
	}
	if b.PoolSize <= 0 {
		b.PoolSize = 3
	}
	if b.PoolWaitSec <= 0 {
		b.PoolWaitSec = 60
	}
	if b.CircuitBreaker.FailureThreshold <= 0 {
		b.CircuitBreaker.FailureThreshold = 5
	}
	if b.CircuitBreaker.TimeoutSec <= 0 {
		b.CircuitBreaker.TimeoutSec = 60
	}
}

func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Targets))
	for _, t := range cfg.Targets {
		if strings.TrimSpace(t.Name) == "" {
			return errors.New("target with empty name")
		}
		if strings.TrimSpace(t.Kind) == "" {
			return fmt.Errorf("target %q has no backend kind", t.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = true
	}
	if cfg.Judge != nil {
		if strings.TrimSpace(cfg.Judge.Name) == "" {
			return errors.New("judge backend has no name")
		}
		if strings.TrimSpace(cfg.Judge.Kind) == "" {
			return fmt.Errorf("judge backend %q has no backend kind", cfg.Judge.Name)
		}
	}
	return nil
}
