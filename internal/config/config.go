package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all engine settings.
type Config struct {
	// Storage configuration
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Spam classification settings
	Spam SpamConfig `yaml:"spam" mapstructure:"spam"`

	// Retention windows
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`

	// Consensus computation settings
	Consensus ConsensusConfig `yaml:"consensus" mapstructure:"consensus"`

	// Score integration settings
	Integrator IntegratorConfig `yaml:"integrator" mapstructure:"integrator"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

type StorageConfig struct {
	// FeedbackDBPath is the SQLite database holding feedback records.
	FeedbackDBPath string `yaml:"feedback_db_path" mapstructure:"feedback_db_path"`
	// KVPath is the bbolt database backing the key-value tiers
	// (reputation, clusters, key material fallback).
	KVPath string `yaml:"kv_path" mapstructure:"kv_path"`
	// QuotaBytes is the store size ceiling. Cleanup triggers at 90% usage.
	QuotaBytes int64 `yaml:"quota_bytes" mapstructure:"quota_bytes"`
}

// CombinePolicy selects how the combined content score and the discrete
// risk factors are merged into a single spam decision. The source signal
// blend is deliberately tunable policy, not contract.
type CombinePolicy string

const (
	CombineMax    CombinePolicy = "max"
	CombineSmooth CombinePolicy = "smooth"
)

type SpamConfig struct {
	// Threshold above which the strongest signal marks a submission spam.
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
	// CombinePolicy: "max" (default) or "smooth".
	CombinePolicy CombinePolicy `yaml:"combine_policy" mapstructure:"combine_policy"`
	// Rate ceilings per submitter.
	MaxPerMinute int `yaml:"max_per_minute" mapstructure:"max_per_minute"`
	MaxPerHour   int `yaml:"max_per_hour" mapstructure:"max_per_hour"`
	MaxPerDay    int `yaml:"max_per_day" mapstructure:"max_per_day"`
	// LowReputation is the reputation below which a risk factor fires.
	LowReputation float64 `yaml:"low_reputation" mapstructure:"low_reputation"`
	// HistoryDepth is how many recent texts are kept per submitter for
	// self-similarity checks.
	HistoryDepth int `yaml:"history_depth" mapstructure:"history_depth"`
}

type RetentionConfig struct {
	// Standard is how long non-spam records are kept.
	Standard time.Duration `yaml:"standard" mapstructure:"standard"`
	// Spam is the shorter window for spam records, kept briefly for
	// abuse-pattern learning.
	Spam time.Duration `yaml:"spam" mapstructure:"spam"`
	// Cluster is pruned after this window of inactivity.
	Cluster time.Duration `yaml:"cluster" mapstructure:"cluster"`
}

type ConsensusConfig struct {
	// MaxRecords caps how many recent valid records feed one snapshot.
	MaxRecords int `yaml:"max_records" mapstructure:"max_records"`
	// TrendWindow is the recent period compared against all-time agreement.
	TrendWindow time.Duration `yaml:"trend_window" mapstructure:"trend_window"`
	// TrendShift is the agreement-rate delta that flips the trend.
	TrendShift float64 `yaml:"trend_shift" mapstructure:"trend_shift"`
}

type IntegratorConfig struct {
	// BaseWeight is the nominal influence of one submission.
	BaseWeight float64 `yaml:"base_weight" mapstructure:"base_weight"`
	// MaxWeight caps the influence of any single submission.
	MaxWeight float64 `yaml:"max_weight" mapstructure:"max_weight"`
	// MinVolume is the count of valid historical records required before
	// any adjustment applies.
	MinVolume int `yaml:"min_volume" mapstructure:"min_volume"`
	// MaterialityDelta is the minimum |adjusted-original| worth persisting.
	MaterialityDelta float64 `yaml:"materiality_delta" mapstructure:"materiality_delta"`
	// ExplorationRate is the small probability of boosting the weight to
	// gather signal on low-quality feedback.
	ExplorationRate float64 `yaml:"exploration_rate" mapstructure:"exploration_rate"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	OutputFile string `yaml:"output_file" mapstructure:"output_file"`
	JSONFormat bool   `yaml:"json_format" mapstructure:"json_format"`
}

// Default returns default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Storage: StorageConfig{
			FeedbackDBPath: filepath.Join(homeDir, ".credlens", "feedback.db"),
			KVPath:         filepath.Join(homeDir, ".credlens", "state.db"),
			QuotaBytes:     256 * 1024 * 1024, // 256MB
		},
		Spam: SpamConfig{
			Threshold:     0.68,
			CombinePolicy: CombineMax,
			MaxPerMinute:  5,
			MaxPerHour:    50,
			MaxPerDay:     200,
			LowReputation: 0.3,
			HistoryDepth:  10,
		},
		Retention: RetentionConfig{
			Standard: 365 * 24 * time.Hour,
			Spam:     90 * 24 * time.Hour,
			Cluster:  180 * 24 * time.Hour,
		},
		Consensus: ConsensusConfig{
			MaxRecords:  500,
			TrendWindow: 7 * 24 * time.Hour,
			TrendShift:  0.1,
		},
		Integrator: IntegratorConfig{
			BaseWeight:       0.05,
			MaxWeight:        0.15,
			MinVolume:        3,
			MaterialityDelta: 2,
			ExplorationRate:  0.05,
		},
		Logging: LoggingConfig{
			Level:      "info",
			JSONFormat: true,
		},
	}
}

// Load loads configuration from file, environment, and defaults, in
// ascending precedence: defaults < config file < CREDLENS_* env vars.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("spam", cfg.Spam)
	v.SetDefault("retention", cfg.Retention)
	v.SetDefault("consensus", cfg.Consensus)
	v.SetDefault("integrator", cfg.Integrator)
	v.SetDefault("logging", cfg.Logging)

	v.SetEnvPrefix("CREDLENS")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".credlens")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".credlens"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine, defaults apply.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would break pipeline invariants.
func (c *Config) Validate() error {
	if c.Spam.Threshold <= 0 || c.Spam.Threshold >= 1 {
		return fmt.Errorf("spam threshold %.2f outside (0,1)", c.Spam.Threshold)
	}
	if c.Spam.CombinePolicy != CombineMax && c.Spam.CombinePolicy != CombineSmooth {
		return fmt.Errorf("unknown spam combine policy %q", c.Spam.CombinePolicy)
	}
	if c.Integrator.MaxWeight <= 0 || c.Integrator.MaxWeight > 0.15 {
		return fmt.Errorf("integrator max weight %.3f outside (0,0.15]", c.Integrator.MaxWeight)
	}
	if c.Integrator.BaseWeight <= 0 || c.Integrator.BaseWeight > c.Integrator.MaxWeight {
		return fmt.Errorf("integrator base weight %.3f outside (0,%.3f]", c.Integrator.BaseWeight, c.Integrator.MaxWeight)
	}
	if c.Integrator.MinVolume < 0 {
		return fmt.Errorf("integrator min volume must be non-negative")
	}
	if c.Consensus.MaxRecords <= 0 {
		return fmt.Errorf("consensus max records must be positive")
	}
	if c.Retention.Standard <= 0 || c.Retention.Spam <= 0 {
		return fmt.Errorf("retention windows must be positive")
	}
	return nil
}

// loadEnvFiles loads .env files in order of precedence.
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".credlens", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides for the
// settings operators most often change per deployment.
func applyEnvOverrides(cfg *Config) {
	if path := os.Getenv("CREDLENS_FEEDBACK_DB"); path != "" {
		cfg.Storage.FeedbackDBPath = expandPath(path)
	}
	if path := os.Getenv("CREDLENS_KV_PATH"); path != "" {
		cfg.Storage.KVPath = expandPath(path)
	}
	if quota := os.Getenv("CREDLENS_QUOTA_BYTES"); quota != "" {
		if n, err := strconv.ParseInt(quota, 10, 64); err == nil {
			cfg.Storage.QuotaBytes = n
		}
	}
	if threshold := os.Getenv("CREDLENS_SPAM_THRESHOLD"); threshold != "" {
		if f, err := strconv.ParseFloat(threshold, 64); err == nil {
			cfg.Spam.Threshold = f
		}
	}
	if policy := os.Getenv("CREDLENS_SPAM_COMBINE_POLICY"); policy != "" {
		cfg.Spam.CombinePolicy = CombinePolicy(policy)
	}
	if level := os.Getenv("CREDLENS_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("storage", c.Storage)
	v.Set("spam", c.Spam)
	v.Set("retention", c.Retention)
	v.Set("consensus", c.Consensus)
	v.Set("integrator", c.Integrator)
	v.Set("logging", c.Logging)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
