package log

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.log")
	Init(Options{Level: "debug", Format: "json", File: path})
	t.Cleanup(func() { Init(Options{}) })

	WithComponent("autosave").Info("save dispatched", slog.String("design_id", "d-1"))

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var last string
	sc := bufio.NewScanner(strings.NewReader(string(b)))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(last), &rec); err != nil {
		t.Fatalf("unmarshal %q: %v", last, err)
	}
	if rec["msg"] != "save dispatched" || rec["component"] != "autosave" || rec["design_id"] != "d-1" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["app"] != "design-studio" {
		t.Fatalf("missing app attr: %v", rec)
	}
}
