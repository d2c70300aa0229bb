// Package config loads ledger.yaml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/dvloznov/statement-ledger/internal/alias"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level ledger.yaml configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Upload   UploadConfig   `yaml:"upload"`
	Parser   ParserConfig   `yaml:"parser"`
	Grouping GroupingConfig `yaml:"grouping"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
	Notion   NotionConfig   `yaml:"notion"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig selects the zerolog level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig controls the HTTP API and its parse workers.
type ServerConfig struct {
	Port      string `yaml:"port"`
	QueueSize int    `yaml:"queue_size"`
	Workers   int    `yaml:"workers"`
}

// UploadConfig controls artifact storage. A non-empty GCSBucket stores
// artifacts in Cloud Storage instead of LocalDir.
type UploadConfig struct {
	MaxBytes  int64  `yaml:"max_bytes"`
	LocalDir  string `yaml:"local_dir"`
	GCSBucket string `yaml:"gcs_bucket,omitempty"`
}

// ParserConfig tunes the text extractor.
type ParserConfig struct {
	AmountCeilingMinor int64 `yaml:"amount_ceiling_minor"`
}

// GroupingConfig tunes counterparty clustering.
type GroupingConfig struct {
	MinGroupSize int      `yaml:"min_group_size"`
	BatchSize    int      `yaml:"batch_size"`
	Blacklist    []string `yaml:"blacklist"`
}

// GeminiConfig enables PDF text extraction through Gemini.
type GeminiConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model"`
}

// BigQueryConfig enables the analytics export. Empty Project disables it.
type BigQueryConfig struct {
	Project string `yaml:"project,omitempty"`
	Dataset string `yaml:"dataset"`
}

// NotionConfig enables mirroring counterparties to a Notion database.
type NotionConfig struct {
	Token      string `yaml:"token,omitempty"`
	DatabaseID string `yaml:"database_id,omitempty"`
}

// Environment variables that override file values.
const (
	EnvDBPath           = "LEDGER_DB_PATH"
	EnvLogLevel         = "LEDGER_LOG_LEVEL"
	EnvPort             = "LEDGER_PORT"
	EnvGCSBucket        = "GCS_BUCKET"
	EnvGeminiAPIKey     = "GEMINI_API_KEY"
	EnvBigQueryProject  = "BIGQUERY_PROJECT"
	EnvNotionToken      = "NOTION_TOKEN"
	EnvNotionDatabaseID = "NOTION_DATABASE_ID"
	EnvAmountCeiling    = "LEDGER_AMOUNT_CEILING_MINOR"
)

// Default returns a Config with sensible defaults for a local install.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "ledger.db"},
		Log:      LogConfig{Level: "info"},
		Server:   ServerConfig{Port: "8080", QueueSize: 100, Workers: 5},
		Upload: UploadConfig{
			MaxBytes: 20 << 20,
			LocalDir: "data/statements",
		},
		Parser: ParserConfig{AmountCeilingMinor: 1_000_000_000_000},
		Grouping: GroupingConfig{
			MinGroupSize: 2,
			BatchSize:    100,
			Blacklist:    append([]string(nil), alias.DefaultBlacklist...),
		},
		Gemini:   GeminiConfig{Model: "gemini-2.5-flash"},
		BigQuery: BigQueryConfig{Dataset: "statement_ledger"},
	}
}

// Load reads path over the defaults and then applies environment
// overrides. A missing file is not an error when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptional is Load, except a missing file falls back to defaults.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Load("")
	}
	return cfg, err
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvDBPath, &c.Database.Path)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvPort, &c.Server.Port)
	str(EnvGCSBucket, &c.Upload.GCSBucket)
	str(EnvGeminiAPIKey, &c.Gemini.APIKey)
	str(EnvBigQueryProject, &c.BigQuery.Project)
	str(EnvNotionToken, &c.Notion.Token)
	str(EnvNotionDatabaseID, &c.Notion.DatabaseID)

	if v, ok := lookup(EnvAmountCeiling); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvAmountCeiling, err)
		}
		c.Parser.AmountCeilingMinor = n
	}
	return nil
}
