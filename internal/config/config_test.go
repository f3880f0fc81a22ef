package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	os.Unsetenv("QUANTPIPE_DB_PATH")
	os.Unsetenv("QUANTPIPE_START_DATE")
	os.Unsetenv("QUANTPIPE_END_DATE")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() returned error for missing file: %v", err)
	}

	if cfg.Ingest.MaxWorkers != 4 {
		t.Errorf("Ingest.MaxWorkers = %d, want 4", cfg.Ingest.MaxWorkers)
	}
	if cfg.Benchmark.TargetCode != "SH000300" {
		t.Errorf("Benchmark.TargetCode = %q, want %q", cfg.Benchmark.TargetCode, "SH000300")
	}
	if cfg.Export.SectorStrategy != "sector_rotation_v1" {
		t.Errorf("Export.SectorStrategy = %q, want %q", cfg.Export.SectorStrategy, "sector_rotation_v1")
	}
	if len(cfg.Export.DumpCommand) == 0 {
		t.Error("Export.DumpCommand should have a default command")
	}
}

func TestLoadYAML(t *testing.T) {
	yamlContent := []byte(`
storage:
  db_path: "/tmp/quantpipe/test.db"
ingest:
  start_date: "2021-06-01"
  end_date: "2021-12-31"
  max_workers: 8
export:
  sector_strategy: "sector_rotation_v2"
  dump_command: ["python3", "tools/dump_bin.py", "dump_all"]
logging:
  level: "debug"
  format: "json"
`)

	path := filepath.Join(t.TempDir(), "quantpipe.yaml")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	os.Unsetenv("QUANTPIPE_DB_PATH")
	os.Unsetenv("QUANTPIPE_START_DATE")
	os.Unsetenv("QUANTPIPE_END_DATE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DBPath != "/tmp/quantpipe/test.db" {
		t.Errorf("Storage.DBPath = %q, want %q", cfg.Storage.DBPath, "/tmp/quantpipe/test.db")
	}
	if cfg.Ingest.StartDate != "2021-06-01" {
		t.Errorf("Ingest.StartDate = %q, want %q", cfg.Ingest.StartDate, "2021-06-01")
	}
	if cfg.Ingest.MaxWorkers != 8 {
		t.Errorf("Ingest.MaxWorkers = %d, want 8", cfg.Ingest.MaxWorkers)
	}
	if cfg.Export.SectorStrategy != "sector_rotation_v2" {
		t.Errorf("Export.SectorStrategy = %q, want %q", cfg.Export.SectorStrategy, "sector_rotation_v2")
	}
	if len(cfg.Export.DumpCommand) != 3 || cfg.Export.DumpCommand[1] != "tools/dump_bin.py" {
		t.Errorf("Export.DumpCommand = %v, want custom argv", cfg.Export.DumpCommand)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}

	// Fields absent from the YAML keep their defaults.
	if cfg.Export.TotalStrategy != "multi_factor_v1" {
		t.Errorf("Export.TotalStrategy = %q, want default %q", cfg.Export.TotalStrategy, "multi_factor_v1")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := []byte(`
storage:
  db_path: "/original/quantpipe.db"
ingest:
  start_date: "2020-01-01"
`)

	path := filepath.Join(t.TempDir(), "quantpipe.yaml")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	os.Setenv("QUANTPIPE_DB_PATH", "/env/quantpipe.db")
	os.Setenv("QUANTPIPE_START_DATE", "2022-01-01")
	defer os.Unsetenv("QUANTPIPE_DB_PATH")
	defer os.Unsetenv("QUANTPIPE_START_DATE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DBPath != "/env/quantpipe.db" {
		t.Errorf("Storage.DBPath = %q, want env override", cfg.Storage.DBPath)
	}
	if cfg.Ingest.StartDate != "2022-01-01" {
		t.Errorf("Ingest.StartDate = %q, want env override", cfg.Ingest.StartDate)
	}
}
