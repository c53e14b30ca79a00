package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		env, level string
		want       zapcore.Level
	}{
		{"production", "", zapcore.InfoLevel},
		{"development", "", zapcore.DebugLevel},
		{"production", "warn", zapcore.WarnLevel},
		{"development", "bogus", zapcore.DebugLevel},
	}
	for _, tt := range tests {
		l, err := New(tt.env, tt.level)
		if err != nil {
			t.Fatalf("New(%q, %q) error = %v", tt.env, tt.level, err)
		}
		if got := l.Level(); got != tt.want {
			t.Errorf("New(%q, %q) level = %v, want %v", tt.env, tt.level, got, tt.want)
		}
	}
}
