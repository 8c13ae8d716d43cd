package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.TimeoutSeconds != 300 {
		t.Errorf("expected timeout 300, got %d", cfg.TimeoutSeconds)
	}
	if len(cfg.Modules) != 9 {
		t.Errorf("expected 9 modules, got %d", len(cfg.Modules))
	}
	critical := 0
	for _, m := range cfg.Modules {
		if m.Critical {
			critical++
		}
	}
	if critical != 3 {
		t.Errorf("expected 3 critical modules, got %d", critical)
	}
	if cfg.AutoSuffix != "auto" || cfg.OrderedSuffix != "ordenado" {
		t.Errorf("unexpected suffixes: %s / %s", cfg.AutoSuffix, cfg.OrderedSuffix)
	}
}

func TestLoadMissingImplicitConfig(t *testing.T) {
	wd, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load without config file: %v", err)
	}
	if cfg.TimeoutSeconds != 300 {
		t.Errorf("defaults not applied: timeout %d", cfg.TimeoutSeconds)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowrun.yaml")
	doc := `
flowsheet: plant.fsd
timeout_seconds: 60
keep_existing: true
modules:
  - name: libcustom.so
    critical: true
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Flowsheet != "plant.fsd" {
		t.Errorf("expected flowsheet plant.fsd, got %s", cfg.Flowsheet)
	}
	if cfg.Timeout() != 60*time.Second {
		t.Errorf("expected 60s timeout, got %s", cfg.Timeout())
	}
	if !cfg.KeepExisting {
		t.Error("expected keep_existing true")
	}
	if len(cfg.Modules) != 1 || !cfg.Modules[0].Critical {
		t.Errorf("module list not honored: %+v", cfg.Modules)
	}
	// defaults still fill unset fields
	if cfg.AutoSuffix != "auto" {
		t.Errorf("expected default auto suffix, got %s", cfg.AutoSuffix)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(cfg.Modules) != 9 {
		t.Errorf("modules lost in round trip: %d", len(cfg.Modules))
	}
}
