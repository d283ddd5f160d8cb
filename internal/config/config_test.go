package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestDelayMS != DefaultConfig().RequestDelayMS {
		t.Fatalf("RequestDelayMS = %d, want %d", cfg.RequestDelayMS, DefaultConfig().RequestDelayMS)
	}
	if len(cfg.Regions) != len(DefaultRegions) {
		t.Fatalf("Regions length = %d, want %d", len(cfg.Regions), len(DefaultRegions))
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	data := `{"api_base_url": "https://api.example.test", "request_delay_ms": 750, "max_empty_batches": 3}`
	if err := os.WriteFile(configPath, []byte(data), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != "https://api.example.test" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.RequestDelayMS != 750 {
		t.Errorf("RequestDelayMS = %d, want 750", cfg.RequestDelayMS)
	}
	if cfg.MaxEmptyBatches != 3 {
		t.Errorf("MaxEmptyBatches = %d, want 3", cfg.MaxEmptyBatches)
	}
	// Untouched fields keep their defaults
	if cfg.ChatroomDelayMS != DefaultConfig().ChatroomDelayMS {
		t.Errorf("ChatroomDelayMS = %d, want default", cfg.ChatroomDelayMS)
	}
}

func TestLoad_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	data := "api_base_url: https://yaml.example.test\nregions: [jp, kr, jp]\nregion_cap: 4\n"
	if err := os.WriteFile(configPath, []byte(data), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != "https://yaml.example.test" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if len(cfg.Regions) != 2 || cfg.Regions[0] != "JP" || cfg.Regions[1] != "KR" {
		t.Errorf("Regions = %v, want [JP KR]", cfg.Regions)
	}
	if cfg.RegionCap != 4 {
		t.Errorf("RegionCap = %d, want 4", cfg.RegionCap)
	}
}

func TestLoad_JSONWinsOverYAML(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{"locale": "ko"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("locale: ja\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Locale != "ko" {
		t.Errorf("Locale = %q, want %q", cfg.Locale, "ko")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoadWithEnv(t *testing.T) {
	baseDir := t.TempDir()
	workDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(workDir, ".env"), []byte("HERD_LOG_LEVEL=debug\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("HERD_API_BASE_URL", "https://env.example.test")
	// godotenv.Load sets variables process-wide; make sure the test cleans up.
	t.Setenv("HERD_LOG_LEVEL", "")
	os.Unsetenv("HERD_LOG_LEVEL")

	cfg, err := LoadWithEnv(baseDir, workDir)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.APIBaseURL != "https://env.example.test" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want debug", cfg.SlogLevel())
	}
}

func TestMerge(t *testing.T) {
	base := &Config{
		RequestDelayMS: 100,
		Regions:        []string{"US"},
		DisabledTools:  []string{"ledger_clear"},
	}
	overlay := &Config{
		ChatroomDelayMS: 200,
		Regions:         []string{" de ", "fr"},
		DisabledTools:   []string{"ledger_clear", "token_delete"},
	}

	result := Merge(base, overlay)

	if result.RequestDelayMS != 100 {
		t.Errorf("RequestDelayMS = %d, want 100", result.RequestDelayMS)
	}
	if result.ChatroomDelayMS != 200 {
		t.Errorf("ChatroomDelayMS = %d, want 200", result.ChatroomDelayMS)
	}
	if len(result.Regions) != 2 || result.Regions[0] != "DE" {
		t.Errorf("Regions = %v, want [DE FR]", result.Regions)
	}
	if len(result.DisabledTools) != 2 {
		t.Errorf("DisabledTools = %v, want 2 entries", result.DisabledTools)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration(1500); got != 1500*time.Millisecond {
		t.Errorf("Duration(1500) = %v", got)
	}
	cfg := DefaultConfig()
	if cfg.RequestTimeout() != 15*time.Second {
		t.Errorf("RequestTimeout() = %v, want 15s", cfg.RequestTimeout())
	}
}

func TestSlogLevel_Default(t *testing.T) {
	cfg := &Config{LogLevel: "nonsense"}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("SlogLevel() = %v, want info", cfg.SlogLevel())
	}
}
