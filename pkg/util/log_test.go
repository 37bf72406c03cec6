package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"ERROR":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerWithFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "venue.log")
	logger, err := NewLoggerWithFile(path, "info")
	if err != nil {
		t.Fatal(err)
	}
	logger.Sugar().Infow("book_created", "instrument", "BTC-USD")
	logger.Sugar().Debugw("hidden_at_info")
	_ = logger.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	if !strings.Contains(out, `"msg":"book_created"`) || !strings.Contains(out, `"instrument":"BTC-USD"`) {
		t.Errorf("unexpected log output: %s", out)
	}
	if strings.Contains(out, "hidden_at_info") {
		t.Error("debug entry written at info level")
	}
}
