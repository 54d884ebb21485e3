package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		production bool
		level      string
		want       zapcore.Level
	}{
		{true, "", zapcore.InfoLevel},
		{false, "", zapcore.DebugLevel},
		{true, "warn", zapcore.WarnLevel},
	}
	for _, tc := range cases {
		l, err := New(tc.production, tc.level)
		if err != nil {
			t.Fatalf("New(%v, %q): %v", tc.production, tc.level, err)
		}
		if !l.Core().Enabled(tc.want) || (tc.want > zapcore.DebugLevel && l.Core().Enabled(tc.want-1)) {
			t.Fatalf("New(%v, %q) has wrong level", tc.production, tc.level)
		}
	}
	if _, err := New(true, "loud"); err == nil {
		t.Fatal("invalid level accepted")
	}
}
