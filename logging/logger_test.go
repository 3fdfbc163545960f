package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetup(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	tempDir, err := os.MkdirTemp("", "logging-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tempDir)

	var buf bytes.Buffer
	file := filepath.Join(tempDir, "logs", "app.log")
	logger, closer, err := Setup(Options{Level: "info", File: file}, &buf)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("analysis finished", "score", 81)
	if err := closer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "analysis finished" || entry["service"] != "seo-backend" {
		t.Errorf("unexpected entry %v", entry)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !bytes.Contains(data, []byte("analysis finished")) {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected the default logger without one in context")
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil)).With("request_id", "abc")
	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("hello")

	if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"abc"`)) {
		t.Errorf("request logger not used: %q", buf.String())
	}
}
