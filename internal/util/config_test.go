package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hexza.toml")
	content := "engine = \"vm\"\nlog_level = \"debug\"\nlog_file = \"/tmp/hexza.log\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Configuration{Engine: "eval", LogLevel: "info"}
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Engine != "vm" || cfg.LogLevel != "debug" || cfg.LogFile != "/tmp/hexza.log" {
		t.Errorf("loaded config = %+v", cfg)
	}
}

func TestLoadFilePartialOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hexza.toml")
	if err := os.WriteFile(path, []byte("log_level = \"warn\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Configuration{Engine: "eval", LogLevel: "info"}
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	// Keys absent from the file keep their existing values.
	if cfg.Engine != "eval" || cfg.LogLevel != "warn" {
		t.Errorf("loaded config = %+v", cfg)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := &Configuration{}
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("missing file loaded without error")
	}
}
