package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env, level string
		wantErr    bool
		enabled    zapcore.Level
		disabled   zapcore.Level
	}{
		{env: "local", enabled: zapcore.DebugLevel, disabled: zapcore.DebugLevel - 1},
		{env: "prod", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
		{env: "dev", level: "warn", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel},
		{env: "prod", level: "error", enabled: zapcore.ErrorLevel, disabled: zapcore.WarnLevel},
		{env: "staging", wantErr: true},
		{env: "local", level: "loud", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.env+"/"+tc.level, func(t *testing.T) {
			l, err := NewLogger(tc.env, tc.level)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !l.Core().Enabled(tc.enabled) {
				t.Errorf("level %s must be enabled", tc.enabled)
			}
			if l.Core().Enabled(tc.disabled) {
				t.Errorf("level %s must be disabled", tc.disabled)
			}
		})
	}
}

func TestContextLogger(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext must never return nil")
	}

	fallback := zap.NewExample()
	if got := FromContextOr(context.Background(), fallback); got != fallback {
		t.Error("expected fallback without a stored logger")
	}

	stored := zap.NewNop().With(zap.String("request_id", "r1"))
	ctx := ContextWithLogger(context.Background(), stored)
	if got := FromContextOr(ctx, fallback); got != stored {
		t.Error("expected the stored logger")
	}
	if got := FromContextOr(ContextWithLogger(context.Background(), nil), fallback); got != fallback {
		t.Error("a nil stored logger must fall back")
	}
}
