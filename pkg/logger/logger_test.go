package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, level Level) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log, err := NewLogger(&Config{Level: level, Format: JSONFormat, Writer: &buf, DisableTimestamp: true})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	return log, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q", line)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"debug", DebugConfig(), false},
		{"bad level", &Config{Level: "trace", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", &Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"bad output", &Config{Level: InfoLevel, Format: TextFormat, Output: "syslog"}, true},
		{"file without path", &Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
		{"writer overrides output", &Config{Level: InfoLevel, Format: TextFormat, Writer: &bytes.Buffer{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFieldsSurviveChaining(t *testing.T) {
	log, buf := newBufferLogger(t, DebugLevel)

	log.WithComponent("matcher").
		WithField("project", "P-1").
		WithFields(Fields{"cells": 3}).
		WithError(errors.New("boom")).
		Info("matched")

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["component"] != "matcher" || entry["project"] != "P-1" || entry["error"] != "boom" {
		t.Errorf("fields lost: %v", entry)
	}
	if entry["cells"] != float64(3) {
		t.Errorf("expected cells=3, got %v", entry["cells"])
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferLogger(t, WarnLevel)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	entries := decodeLines(t, buf)
	if len(entries) != 1 || entries[0]["msg"] != "shown" {
		t.Errorf("expected only the warning, got %v", entries)
	}
}

func TestTimedOperation(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	if err := TimedOperation("import P-1", log, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failure := errors.New("disk full")
	if err := TimedOperation("import P-2", log, func() error { return failure }); err != failure {
		t.Fatalf("expected the function error, got %v", err)
	}

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["status"] != "success" || entries[0]["operation"] != "import P-1" {
		t.Errorf("unexpected success entry: %v", entries[0])
	}
	if entries[1]["status"] != "error" || entries[1]["error"] != "disk full" {
		t.Errorf("unexpected error entry: %v", entries[1])
	}
}

func TestGlobalLogger(t *testing.T) {
	previous := GetGlobalLogger()
	defer SetGlobalLogger(previous)

	log, buf := newBufferLogger(t, InfoLevel)
	SetGlobalLogger(log)

	WithField("run", "r-1").Info("global")
	entries := decodeLines(t, buf)
	if len(entries) != 1 || entries[0]["run"] != "r-1" {
		t.Errorf("expected global logger to be used, got %v", entries)
	}

	Discard().Error("nothing")
}
