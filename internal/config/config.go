// Package config loads the pipeline configuration from YAML with
// environment-variable overrides.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the quantpipe pipeline stages.
type Config struct {
	Storage   Storage         `yaml:"storage"`
	Provider  ProviderConfig  `yaml:"provider"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Import    ImportConfig    `yaml:"import"`
	Export    ExportConfig    `yaml:"export"`
	Logging   Logging         `yaml:"logging"`
}

// Storage holds the persistent store location.
type Storage struct {
	DBPath string `yaml:"db_path"`
}

// ProviderConfig controls the market-data HTTP client.
type ProviderConfig struct {
	TimeoutSec   int `yaml:"timeout_sec"`
	RequestGapMS int `yaml:"request_gap_ms"`
	JitterMS     int `yaml:"jitter_ms"`
	MaxRetries   int `yaml:"max_retries"`
}

// IngestConfig holds parameters for the full-history backfill.
type IngestConfig struct {
	StartDate  string `yaml:"start_date"` // YYYY-MM-DD, inclusive
	EndDate    string `yaml:"end_date"`   // YYYY-MM-DD, inclusive
	MaxWorkers int    `yaml:"max_workers"`
}

// BenchmarkConfig identifies the benchmark index series.
type BenchmarkConfig struct {
	ProviderCode string `yaml:"provider_code"` // secid used by the provider, e.g. "1.000300"
	TargetCode   string `yaml:"target_code"`   // code stored and exported, e.g. "SH000300"
}

// ImportConfig locates collaborator-produced Parquet files for the
// auxiliary factor and sentiment tables.
type ImportConfig struct {
	FactorDir    string `yaml:"factor_dir"`
	SentimentDir string `yaml:"sentiment_dir"`
}

// ExportConfig controls the consolidation/export stage.
type ExportConfig struct {
	CSVDir         string   `yaml:"csv_dir"`
	OutDir         string   `yaml:"out_dir"`
	SectorStrategy string   `yaml:"sector_strategy"`
	TotalStrategy  string   `yaml:"total_strategy"`
	DumpCommand    []string `yaml:"dump_command"` // argv prefix of the conversion tool
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the built-in configuration used when no YAML file is
// present. The values mirror a local single-host deployment.
func Default() *Config {
	return &Config{
		Storage: Storage{DBPath: "data/quantpipe.db"},
		Provider: ProviderConfig{
			TimeoutSec:   5,
			RequestGapMS: 200,
			JitterMS:     150,
			MaxRetries:   3,
		},
		Ingest: IngestConfig{
			StartDate:  "2020-01-01",
			EndDate:    "2025-12-31",
			MaxWorkers: 4,
		},
		Benchmark: BenchmarkConfig{
			ProviderCode: "1.000300",
			TargetCode:   "SH000300",
		},
		Import: ImportConfig{
			FactorDir:    "data/factors",
			SentimentDir: "data/sentiment",
		},
		Export: ExportConfig{
			CSVDir:         "qlib_data/csv_temp",
			OutDir:         "qlib_data/cn_data",
			SectorStrategy: "sector_rotation_v1",
			TotalStrategy:  "multi_factor_v1",
			DumpCommand:    []string{"python3", "dump_bin.py", "dump_all"},
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads the YAML configuration file at the given path over the
// defaults, then applies environment variable overrides. A missing file is
// not an error: the defaults are returned so each stage binary can run
// without any local setup.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUANTPIPE_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("QUANTPIPE_START_DATE"); v != "" {
		cfg.Ingest.StartDate = v
	}
	if v := os.Getenv("QUANTPIPE_END_DATE"); v != "" {
		cfg.Ingest.EndDate = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
