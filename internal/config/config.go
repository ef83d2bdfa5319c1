package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

const configFileName = "rehearsal_config.yaml"

// Environment variables that override values from the YAML file
const (
	EnvDatabaseDriver = "REHEARSAL_DATABASE_DRIVER"
	EnvDatabaseURL    = "REHEARSAL_DATABASE_URL"
	EnvSQLitePath     = "REHEARSAL_SQLITE_PATH"
)

// DatabaseConfig selects and addresses the store
type DatabaseConfig struct {
	Driver     string `yaml:"driver" validate:"required,oneof=postgres sqlite"`
	URL        string `yaml:"url,omitempty" validate:"required_if=Driver postgres"`
	SQLitePath string `yaml:"sqlitePath,omitempty" validate:"required_if=Driver sqlite"`
}

// SuggestionConfig tunes the slot search
type SuggestionConfig struct {
	StepMinutes    int `yaml:"stepMinutes,omitempty" validate:"omitempty,min=5,max=240"`
	Workers        int `yaml:"workers,omitempty" validate:"omitempty,min=1,max=64"`
	ChunkSize      int `yaml:"chunkSize,omitempty" validate:"omitempty,min=1"`
	DefaultLimit   int `yaml:"defaultLimit,omitempty" validate:"omitempty,min=1"`
	MaxHorizonDays int `yaml:"maxHorizonDays,omitempty" validate:"omitempty,min=1,max=366"`
}

// PolicyConfig holds conflict precedence settings
type PolicyConfig struct {
	EscalateMemberConflicts bool `yaml:"escalateMemberConflicts"`
}

// MaintenanceConfig schedules housekeeping jobs
type MaintenanceConfig struct {
	// ExpireProposalsCron is a standard 5-field cron spec
	ExpireProposalsCron string `yaml:"expireProposalsCron,omitempty"`
	ProposalGraceHours  int    `yaml:"proposalGraceHours,omitempty" validate:"min=0"`
}

// Blackout defines a recurring period in which no rehearsal is suggested
type Blackout struct {
	RRule           string `yaml:"rrule" validate:"required"`
	DurationMinutes int    `yaml:"durationMinutes" validate:"required,min=1"`
	Reason          string `yaml:"reason,omitempty"`
}

// Config represents the application configuration
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Timezone    string            `yaml:"timezone,omitempty"`
	LogDir      string            `yaml:"logDir,omitempty"`
	Suggestion  SuggestionConfig  `yaml:"suggestion,omitempty"`
	Policy      PolicyConfig      `yaml:"policy,omitempty"`
	Maintenance MaintenanceConfig `yaml:"maintenance,omitempty"`
	Blackouts   []Blackout        `yaml:"blackouts,omitempty" validate:"dive"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// LoadDotEnv loads a .env file from the current directory when one exists
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

// Load loads and validates the configuration from rehearsal_config.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	configPath, err := findConfigFile(configFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadWithEnv prefers <env>_rehearsal_config.yaml and falls back to rehearsal_config.yaml
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findConfigFile(env+"_"+configFileName, configFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration struct, the timezone, the cron spec
// and the blackout rrule syntax
func Validate(cfg *Config) error {
	// Run struct validation
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	if cfg.Maintenance.ExpireProposalsCron != "" {
		if _, err := cron.ParseStandard(cfg.Maintenance.ExpireProposalsCron); err != nil {
			return fmt.Errorf("invalid maintenance.expireProposalsCron: %w", err)
		}
	}

	// Validate rrule syntax for each blackout
	for i, b := range cfg.Blackouts {
		if _, err := rrule.StrToRRule(b.RRule); err != nil {
			return fmt.Errorf("invalid rrule in blackouts[%d]: %w", i, err)
		}
	}

	return nil
}

// Location loads the configured default timezone, UTC when unset
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Step is the suggestion grid step
func (c *Config) Step() time.Duration {
	return time.Duration(c.Suggestion.StepMinutes) * time.Minute
}

// MaxHorizon bounds the width of a suggestion search
func (c *Config) MaxHorizon() time.Duration {
	return time.Duration(c.Suggestion.MaxHorizonDays) * 24 * time.Hour
}

// ProposalGrace is how long a past proposal survives before expiry
func (c *Config) ProposalGrace() time.Duration {
	return time.Duration(c.Maintenance.ProposalGraceHours) * time.Hour
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvDatabaseDriver); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv(EnvSQLitePath); v != "" {
		cfg.Database.SQLitePath = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Suggestion.StepMinutes == 0 {
		cfg.Suggestion.StepMinutes = 30
	}
	if cfg.Suggestion.Workers == 0 {
		cfg.Suggestion.Workers = 4
	}
	if cfg.Suggestion.ChunkSize == 0 {
		cfg.Suggestion.ChunkSize = 48
	}
	if cfg.Suggestion.DefaultLimit == 0 {
		cfg.Suggestion.DefaultLimit = 5
	}
	if cfg.Suggestion.MaxHorizonDays == 0 {
		cfg.Suggestion.MaxHorizonDays = 31
	}
	if cfg.Maintenance.ProposalGraceHours == 0 {
		cfg.Maintenance.ProposalGraceHours = 24
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}
}

// findConfigFile searches for the first of names in current directory and home directory
func findConfigFile(names ...string) (string, error) {
	homeDir, homeErr := os.UserHomeDir()

	for _, name := range names {
		// Check current directory
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}

		// Check home directory
		if homeErr == nil {
			homeConfigPath := filepath.Join(homeDir, name)
			if _, err := os.Stat(homeConfigPath); err == nil {
				return homeConfigPath, nil
			}
		}
	}

	if homeErr != nil {
		return "", fmt.Errorf("failed to get home directory: %w", homeErr)
	}
	return "", fmt.Errorf("config file not found in current directory or home directory")
}
