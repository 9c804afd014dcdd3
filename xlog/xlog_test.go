package xlog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/benz9527/xtree/lib/infra"
)

func TestGetLogLevelOrDefault(t *testing.T) {
	testcases := []struct {
		env      string
		expected zapcore.Level
	}{
		{"", zapcore.DebugLevel},
		{"  ", zapcore.DebugLevel},
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"WARN", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
		{"unknown", zapcore.DebugLevel},
	}
	for _, tc := range testcases {
		t.Run(tc.env, func(tt *testing.T) {
			require.Equal(tt, tc.expected, getLogLevelOrDefault(tc.env))
		})
	}
}

func TestXLogger_LevelFromEnv(t *testing.T) {
	t.Setenv("XLOG_LVL", "WARN")
	out := &lockedBuffer{}
	logger := NewXLogger(WithXLoggerWriter(out))
	require.Equal(t, zapcore.WarnLevel.String(), logger.Level())
	logger.Info("hidden")
	logger.Warn("shown")
	require.NotContains(t, out.String(), "hidden")
	require.Contains(t, out.String(), "shown")
}

func TestXLogger_ErrorStack(t *testing.T) {
	out := &lockedBuffer{}
	logger := NewXLogger(
		WithXLoggerLevel(LogLevelDebug),
		WithXLoggerEncoder(JSON),
		WithXLoggerWriter(out),
	)
	logger.ErrorStack(infra.NewErrorStack("stack failure"), "with stack")
	require.Contains(t, out.String(), `"error":"stack failure"`)
	require.Contains(t, out.String(), `"errorStack":[`)

	logger.ErrorStack(errors.New("plain failure"), "without stack")
	require.Contains(t, out.String(), `"error":"plain failure"`)

	logger.Error(errors.New("error failure"), "error", zap.Int("n", 1))
	require.Contains(t, out.String(), `"error":"error failure"`)
	require.Contains(t, out.String(), `"n":1`)
	require.NoError(t, logger.Sync())
}

func TestXLogger_ContextFields(t *testing.T) {
	out := &lockedBuffer{}
	logger := NewXLogger(
		WithXLoggerLevel(LogLevelDebug),
		WithXLoggerEncoder(JSON),
		WithXLoggerWriter(out),
		WithXLoggerContextFieldExtract("traceId", "trace"),
		WithXLoggerContextFieldExtract("tenant", ContextKeyMapToOmitempty),
		WithXLoggerContextFieldExtract("svc"),
	)
	ctx := ContextWithField(context.Background(), "traceId", "abc-123")
	ctx = ContextWithField(ctx, "tenant", "t1")
	logger.InfoContext(ctx, "ctx fields")
	require.Contains(t, out.String(), `"trace":"abc-123"`)
	require.Contains(t, out.String(), `"svc":"nil"`)
	require.NotContains(t, out.String(), "t1")

	logger.ErrorContext(ctx, errors.New("ctx failure"), "ctx error")
	require.Contains(t, out.String(), `"error":"ctx failure"`)
}

func TestXLogger_InvalidOptions(t *testing.T) {
	require.Panics(t, func() {
		NewXLogger(WithXLoggerEncoder(_encMax))
	})
	require.Panics(t, func() {
		NewXLogger(WithXLoggerWriter(nil))
	})
}
