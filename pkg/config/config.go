package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ghsampler/pkg/logger"
	"ghsampler/pkg/ratelimit"
)

// MaxSearchableFileSize is the largest file size, in bytes, that GitHub
// Code Search will index (384 KB).
const MaxSearchableFileSize = 393216

// Config holds all configuration options for the sampler
type Config struct {
	// GitHub API access
	GitHub GitHubConfig `yaml:"github"`

	// Stratified search parameters
	Search SearchConfig `yaml:"search"`

	// Durable output locations
	Output OutputConfig `yaml:"output"`

	// Logging configuration
	Logging logger.Config `yaml:"logging"`
}

// GitHubConfig holds GitHub-specific configuration
type GitHubConfig struct {
	Token          string        `yaml:"token"`
	APIBaseURL     string        `yaml:"api_base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SearchConfig holds the stratified sampling parameters
type SearchConfig struct {
	Query            string        `yaml:"-"`
	MinSize          int           `yaml:"min_size"`
	MaxSize          int           `yaml:"max_size"`
	StratumSize      int           `yaml:"stratum_size"`
	PerPage          int           `yaml:"per_page"`
	Throttle         bool          `yaml:"throttle"`
	ThrottleInterval time.Duration `yaml:"throttle_interval"`
}

// OutputConfig holds the paths of the two durable stores
type OutputConfig struct {
	Database   string `yaml:"database"`
	Statistics string `yaml:"statistics"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			APIBaseURL:     "https://api.github.com",
			RequestTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			MinSize:          1,
			MaxSize:          MaxSearchableFileSize,
			StratumSize:      1,
			PerPage:          100,
			Throttle:         true,
			ThrottleInterval: ratelimit.PerHour(5000),
		},
		Output: OutputConfig{
			Database:   "results.db",
			Statistics: "sampling.csv",
		},
		Logging: logger.Config{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c.GitHub.Token = token
	}
	if base := os.Getenv("GHSAMPLER_API_BASE_URL"); base != "" {
		c.GitHub.APIBaseURL = base
	}
	if level := os.Getenv("GHSAMPLER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if throttle := os.Getenv("GHSAMPLER_THROTTLE"); throttle != "" {
		c.Search.Throttle = strings.ToLower(throttle) != "false"
	}
	if interval := os.Getenv("GHSAMPLER_THROTTLE_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil && d > 0 {
			c.Search.ThrottleInterval = d
		}
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func findConfigFile() string {
	locations := []string{
		".ghsampler.yaml",
		".ghsampler.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "ghsampler", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".ghsampler.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if query, ok := flags["query"].(string); ok && query != "" {
		c.Search.Query = query
	}
	if database, ok := flags["database"].(string); ok && database != "" {
		c.Output.Database = database
	}
	if statistics, ok := flags["statistics"].(string); ok && statistics != "" {
		c.Output.Statistics = statistics
	}
	if minSize, ok := flags["min-size"].(int); ok {
		c.Search.MinSize = minSize
	}
	if maxSize, ok := flags["max-size"].(int); ok {
		c.Search.MaxSize = maxSize
	}
	if stratumSize, ok := flags["stratum-size"].(int); ok {
		c.Search.StratumSize = stratumSize
	}
	if throttle, ok := flags["throttle"].(bool); ok {
		c.Search.Throttle = throttle
	}
	if token, ok := flags["token"].(string); ok && token != "" {
		c.GitHub.Token = token
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Validate checks if the configuration is valid. It runs before any
// durable state is opened, so a failure here leaves nothing behind.
func (c *Config) Validate() error {
	var errs []error

	if c.Search.Query == "" {
		errs = append(errs, errors.New("search query is required"))
	}
	if c.Search.MinSize < 1 {
		errs = append(errs, errors.New("min_size must be positive"))
	}
	if c.Search.MaxSize < 1 {
		errs = append(errs, errors.New("max_size must be positive"))
	}
	if c.Search.MaxSize < c.Search.MinSize {
		errs = append(errs, errors.New("max_size must be greater than or equal to min_size"))
	}
	if c.Search.MaxSize > MaxSearchableFileSize {
		errs = append(errs, errors.New("max_size must be less than or equal to "+strconv.Itoa(MaxSearchableFileSize)))
	}
	if c.Search.StratumSize < 1 {
		errs = append(errs, errors.New("stratum_size must be positive"))
	}
	if c.Search.PerPage < 1 || c.Search.PerPage > 100 {
		errs = append(errs, errors.New("per_page must be between 1 and 100"))
	}
	if c.Output.Database == "" {
		errs = append(errs, errors.New("results database path is required"))
	}
	if c.Output.Statistics == "" {
		errs = append(errs, errors.New("sampling statistics file path is required"))
	}
	if c.GitHub.APIBaseURL == "" {
		errs = append(errs, errors.New("GitHub API base URL is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".ghsampler.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config.LoadFromEnv()
	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
