package CF

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kite.toml")
	body := "max_registers = 64\nlog_verbosity = 2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxRegisters != 64 {
		t.Errorf("MaxRegisters = %d, want 64", cfg.MaxRegisters)
	}
	if cfg.MaxCursors != Default().MaxCursors {
		t.Errorf("MaxCursors should keep default, got %d", cfg.MaxCursors)
	}
	if cfg.LogVerbosity != 2 {
		t.Errorf("LogVerbosity = %d, want 2", cfg.LogVerbosity)
	}
}

func TestLoadRejectsBadLimits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kite.toml")
	if err := os.WriteFile(path, []byte("max_cursors = 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for max_cursors = 0")
	}
}
