package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestInitLogger_ValidLevels(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"warn", "warn"},
		{"error", "error"},
		{"大文字", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := InitLogger(tt.level)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			logger := GetLogger()
			if logger == nil {
				t.Fatal("GetLogger() returned nil")
			}
		})
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger("invalid")
	if err == nil {
		t.Error("expected error for invalid log level, got nil")
	}
}

func TestInitLoggerWithFormat(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"テキスト形式", "info", "text", false},
		{"JSON形式", "info", "json", false},
		{"形式省略はテキスト", "debug", "", false},
		{"不正な形式", "info", "xml", true},
		{"不正なレベル", "verbose", "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := InitLoggerWithFormat(tt.level, tt.format, &buf)
			if (err != nil) != tt.wantErr {
				t.Fatalf("InitLoggerWithFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInitLoggerWithFormat_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := InitLoggerWithFormat("info", "json", &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	GetLogger().Info("Playback started", "voices", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "Playback started" {
		t.Errorf("msg = %v, want %q", record["msg"], "Playback started")
	}
	if record["voices"] != float64(3) {
		t.Errorf("voices = %v, want 3", record["voices"])
	}
}

func TestInitLoggerWithFormat_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	if err := InitLoggerWithFormat("warn", "text", &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	GetLogger().Info("hidden")
	GetLogger().Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != slog.LevelDebug {
		t.Errorf("ParseLevel(debug) = %v, want %v", level, slog.LevelDebug)
	}
}

func TestGetLogger_BeforeInit(t *testing.T) {
	// globalLoggerをリセット
	globalLogger = nil

	logger := GetLogger()
	if logger == nil {
		t.Error("GetLogger() should return default logger when not initialized")
	}

	// デフォルトロガーが返されることを確認
	if logger != slog.Default() {
		t.Error("GetLogger() should return slog.Default() when not initialized")
	}
}

func TestGetLogger_AfterInit(t *testing.T) {
	err := InitLogger("info")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger := GetLogger()
	if logger == nil {
		t.Error("GetLogger() returned nil after initialization")
	}

	if logger != globalLogger {
		t.Error("GetLogger() should return the initialized logger")
	}
}
