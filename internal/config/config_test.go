package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPipelineConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg PipelineConfig
	cfg.SetDefaults()

	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Replay.Driver != "file" {
		t.Errorf("Replay.Driver = %q, want %q", cfg.Replay.Driver, "file")
	}
	if cfg.Replay.Dir != "./replay-packs" {
		t.Errorf("Replay.Dir = %q, want %q", cfg.Replay.Dir, "./replay-packs")
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, "sqlite")
	}
	if cfg.Flags.Driver != "static" {
		t.Errorf("Flags.Driver = %q, want %q", cfg.Flags.Driver, "static")
	}
}

func TestPipelineConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := PipelineConfig{
		Concurrency: 16,
		LogLevel:    "debug",
		Storage:     StorageConfig{Driver: "memory"},
		Replay:      ReplayConfig{Driver: "memory", Dir: "/tmp/packs"},
		Flags:       FlagsConfig{Driver: "memory"},
	}

	cfg.SetDefaults()

	if cfg.Concurrency != 16 {
		t.Errorf("Concurrency was overwritten: got %d, want 16", cfg.Concurrency)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel was overwritten: got %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver was overwritten: got %q, want %q", cfg.Storage.Driver, "memory")
	}
	if cfg.Replay.Dir != "/tmp/packs" {
		t.Errorf("Replay.Dir was overwritten: got %q, want %q", cfg.Replay.Dir, "/tmp/packs")
	}
}

func TestPipelineConfig_SetDevDefaults_NoopWhenDisabled(t *testing.T) {
	t.Parallel()

	cfg := PipelineConfig{
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:catalog.db"},
	}
	cfg.SetDevDefaults()

	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver changed without DevMode: got %q", cfg.Storage.Driver)
	}
}

func TestPipelineConfig_SetDevDefaults_Enabled(t *testing.T) {
	t.Parallel()

	cfg := PipelineConfig{DevMode: true}
	cfg.SetDevDefaults()

	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, "memory")
	}
	if cfg.Replay.Driver != "memory" {
		t.Errorf("Replay.Driver = %q, want %q", cfg.Replay.Driver, "memory")
	}
	if cfg.Flags.Driver != "memory" {
		t.Errorf("Flags.Driver = %q, want %q", cfg.Flags.Driver, "memory")
	}
	if len(cfg.Flags.Manifest) != 1 || cfg.Flags.Manifest[0] != "dev-flag" {
		t.Errorf("Flags.Manifest = %v, want [dev-flag]", cfg.Flags.Manifest)
	}
}

func TestPipelineConfig_SetDevDefaults_PreservesManifest(t *testing.T) {
	t.Parallel()

	cfg := PipelineConfig{
		DevMode: true,
		Flags:   FlagsConfig{Manifest: []string{"enable_strain_lookup"}},
	}
	cfg.SetDevDefaults()

	if len(cfg.Flags.Manifest) != 1 || cfg.Flags.Manifest[0] != "enable_strain_lookup" {
		t.Errorf("Flags.Manifest was overwritten: got %v", cfg.Flags.Manifest)
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ingestpipe.yaml")
	_ = os.WriteFile(cfgPath, []byte("env: production\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ingestpipe.yml")
	_ = os.WriteFile(cfgPath, []byte("env: production\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "ingestpipe" with no extension.
	_ = os.WriteFile(filepath.Join(dir, "ingestpipe"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "ingestpipe.yaml")
	ymlPath := filepath.Join(dir, "ingestpipe.yml")
	_ = os.WriteFile(yamlPath, []byte("env: production\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("env: staging\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
