// Package config provides configuration management for the matching servers.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir     string // Base directory for generated files
	PatientsDir string // Patient profile JSON files
	TrialsDir   string // One sub-directory of trial profiles per patient

	// Cache settings
	CacheMaxItems int           // Maximum patient profiles kept in memory
	CacheTTL      time.Duration // Memory cache TTL

	// Text generation, optional
	OpenAIAPIKey string
	OpenAIModel  string

	MaxConcurrency int

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".trial-matching")

	return &LiteConfig{
		DataDir:        dataDir,
		PatientsDir:    filepath.Join("data", "patient_profiles"),
		TrialsDir:      filepath.Join("data", "trial_profiles"),
		CacheMaxItems:  256,
		CacheTTL:       15 * time.Minute,
		OpenAIModel:    "gpt-4o-mini",
		MaxConcurrency: 8,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("TRIAL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TRIAL_PATIENTS_DIR"); v != "" {
		cfg.PatientsDir = v
	}
	if v := os.Getenv("TRIAL_TRIALS_DIR"); v != "" {
		cfg.TrialsDir = v
	}

	if v := os.Getenv("TRIAL_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("TRIAL_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}
	if v := os.Getenv("TRIAL_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrency = n
		}
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}

	if v := os.Getenv("TRIAL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TRIAL_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// PreferencesDBPath returns the path to the preference SQLite database.
func (c *LiteConfig) PreferencesDBPath() string {
	return filepath.Join(c.DataDir, "preferences.db")
}

// ResultsDir returns the directory for batch eligibility results.
func (c *LiteConfig) ResultsDir() string {
	return filepath.Join(c.DataDir, "eligibility_results")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ResultsDir(), 0755)
}
