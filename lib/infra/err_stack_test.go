package infra

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func caller() Frame {
	var pcs [3]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	frame, _ := frames.Next()
	return Frame(frame.PC + 1)
}

func TestFrameFormat(t *testing.T) {
	f := caller()
	require.Equal(t, "err_stack_test.go", fmt.Sprintf("%s", f))
	require.Equal(t, "TestFrameFormat", fmt.Sprintf("%n", f))
	require.True(t, strings.HasPrefix(fmt.Sprintf("%v", f), "err_stack_test.go:"))
	require.True(t, strings.Contains(fmt.Sprintf("%+s", f), "lib/infra.TestFrameFormat\n\t"))

	require.Equal(t, "unknownFile", fmt.Sprintf("%s", Frame(0)))
	require.Equal(t, "unknownFunc", fmt.Sprintf("%n", Frame(0)))
	require.Equal(t, "0", fmt.Sprintf("%d", Frame(0)))

	text, err := Frame(0).MarshalText()
	require.NoError(t, err)
	require.Equal(t, "unknownFrame", string(text))
}

func TestErrorStack(t *testing.T) {
	cause := errors.New("cause")

	err := NewErrorStack("new error")
	require.Equal(t, "new error", err.Error())
	var es ErrorStack
	require.True(t, errors.As(err, &es))
	require.NotEmpty(t, es.Frames())
	require.Equal(t, "TestErrorStack", fmt.Sprintf("%n", es.Frames()[0]))

	err = WrapErrorStack(cause)
	require.True(t, errors.Is(err, cause))
	require.Equal(t, "cause", err.Error())
	require.Equal(t, err, WrapErrorStack(err))
	require.Nil(t, WrapErrorStack(nil))

	err = WrapErrorStackWithMessage(cause, "wrapped")
	require.True(t, errors.Is(err, cause))
	require.Equal(t, "wrapped: cause", err.Error())
	require.Nil(t, WrapErrorStackWithMessage(nil, "wrapped"))

	enc := zapcore.NewMapObjectEncoder()
	require.True(t, errors.As(err, &es))
	require.NoError(t, es.MarshalLogObject(enc))
	require.Equal(t, "wrapped: cause", enc.Fields["error"])
	require.NotEmpty(t, enc.Fields["errorStack"])
}
