package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.Editor.AutosaveDebounce != 30*time.Second {
		t.Fatalf("debounce = %v", d.Editor.AutosaveDebounce)
	}
	if d.Editor.AutosaveInterval != 2*time.Minute {
		t.Fatalf("interval = %v", d.Editor.AutosaveInterval)
	}
	if d.Server.Port != "3000" {
		t.Fatalf("port = %q", d.Server.Port)
	}
}

func TestLoadFileMergesYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.yaml")
	yml := []byte(`
server:
  port: "8080"
editor:
  autosave_debounce: 10s
  retry_attempts: 5
storage:
  bucket: yaml-bucket
`)
	if err := os.WriteFile(path, yml, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvBucket, "env-bucket")
	t.Setenv(EnvInterval, "45s")

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if s.Server.Port != "8080" {
		t.Errorf("port = %q, want 8080", s.Server.Port)
	}
	if s.Editor.AutosaveDebounce != 10*time.Second {
		t.Errorf("debounce = %v, want 10s", s.Editor.AutosaveDebounce)
	}
	if s.Editor.RetryAttempts != 5 {
		t.Errorf("retry attempts = %d, want 5", s.Editor.RetryAttempts)
	}
	if s.Editor.AutosaveInterval != 45*time.Second {
		t.Errorf("interval = %v, want 45s", s.Editor.AutosaveInterval)
	}
	if s.Storage.Bucket != "env-bucket" {
		t.Errorf("bucket = %q, want env override", s.Storage.Bucket)
	}
	// untouched default survives the merge
	if s.Editor.ThumbnailMaxEdge != 300 {
		t.Errorf("thumbnail max edge = %d", s.Editor.ThumbnailMaxEdge)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestInvalidEnvDurationIgnored(t *testing.T) {
	t.Setenv(EnvDebounce, "soon")
	s, err := LoadFile("")
	if err != nil {
		t.Fatal(err)
	}
	if s.Editor.AutosaveDebounce != 30*time.Second {
		t.Fatalf("debounce = %v", s.Editor.AutosaveDebounce)
	}
}
