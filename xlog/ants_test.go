package xlog

import (
	"bytes"
	"sync"
	"testing"
	"time"

	antsv2 "github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type lockedBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Sync() error { return nil }

func (b *lockedBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

func TestAntsXLogger_ParentLogLevelChanged(t *testing.T) {
	var (
		parentLogger XLogger      = nil
		logger       *AntsXLogger = nil
		out                       = &lockedBuffer{}
	)
	logger.Printf("test %d", 123)
	require.Nil(t, NewAntsXLogger(nil))

	opts := []XLoggerOption{
		WithXLoggerLevel(LogLevelDebug),
		WithXLoggerEncoder(JSON),
		WithXLoggerWriter(out),
		WithXLoggerTimeEncoder(zapcore.ISO8601TimeEncoder),
		WithXLoggerLevelEncoder(zapcore.CapitalLevelEncoder),
	}
	parentLogger = NewXLogger(opts...)
	logger = NewAntsXLogger(parentLogger)
	parentLogger.IncreaseLogLevel(zapcore.ErrorLevel)
	parentLogger.Debug("abc")
	require.NotContains(t, out.String(), "abc")
	logger.Printf("test %d", 123)
	require.Contains(t, out.String(), "test 123")
	require.Contains(t, out.String(), `"component":"Ants"`)

	parentLogger.IncreaseLogLevel(zapcore.DebugLevel)
	parentLogger.Debug("abc")
	require.Contains(t, out.String(), "abc")
	_ = parentLogger.Sync()
}

func TestAntsXLogger_AntsPool(t *testing.T) {
	out := &lockedBuffer{}
	parentLogger := NewXLogger(
		WithXLoggerLevel(LogLevelDebug),
		WithXLoggerEncoder(JSON),
		WithXLoggerWriter(out),
	)
	logger := NewAntsXLogger(parentLogger)

	p, err := antsv2.NewPool(10, antsv2.WithLogger(logger))
	require.NoError(t, err)
	var wg sync.WaitGroup
	wg.Add(1)
	err = p.Submit(func() {
		defer wg.Done()
		parentLogger.Logf(LogLevelDebug.zapLevel(), "test %d", 123)
	})
	require.NoError(t, err)
	wg.Wait()
	require.NoError(t, p.ReleaseTimeout(time.Second))
	require.Contains(t, out.String(), "test 123")
}
