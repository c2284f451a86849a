package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfig_WriteReadRoundTrip(t *testing.T) {
	cfg := NewConfig("/data/shelf")
	cfg.Library.Extensions = []string{".pdf", ".epub"}

	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != cfg.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, cfg.BaseDir)
	}
	if got.Database.Type != "sqlite" || got.Database.DataDir != filepath.Join("/data/shelf", "db") {
		t.Errorf("Database = %+v, want sqlite in base dir", got.Database)
	}
	if got.Shadow.Type != "leveldb" || got.Shadow.DataDir != filepath.Join("/data/shelf", "shadow") {
		t.Errorf("Shadow = %+v, want leveldb in base dir", got.Shadow)
	}
	if len(got.Library.Extensions) != 2 || got.Library.Extensions[1] != ".epub" {
		t.Errorf("Extensions = %v, want [.pdf .epub]", got.Library.Extensions)
	}
}

func TestManager_Read_DefaultsExtensions(t *testing.T) {
	raw := `
base_dir = "/data/shelf"

[database]
type = "memory"

[shadow]
type = "memory"
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if len(cfg.Library.Extensions) != 1 || cfg.Library.Extensions[0] != ".pdf" {
		t.Errorf("Extensions = %v, want the .pdf default", cfg.Library.Extensions)
	}
	if cfg.Database.Type != "memory" {
		t.Errorf("Database.Type = %q, want %q", cfg.Database.Type, "memory")
	}
}

func TestManager_Read_InvalidTOML(t *testing.T) {
	m := &Manager{}
	if _, err := m.Read(strings.NewReader("not valid = [toml")); err == nil {
		t.Error("Read(invalid toml) = nil error, want error")
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "shelf.toml")
	cfg := NewConfig(filepath.Join(dir, "data"))

	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if got.BaseDir != cfg.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, cfg.BaseDir)
	}

	// Initializing over an existing file is refused.
	if err := Init(path, cfg); err == nil {
		t.Error("Init() over an existing file = nil error, want error")
	}
}
