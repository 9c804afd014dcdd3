package xlog

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxevent"
)

func TestFxXLogger_LifecycleEvents(t *testing.T) {
	var logger *FxXLogger
	logger.LogEvent(&fxevent.Started{})
	require.Nil(t, NewFxXLogger(nil))

	out := &lockedBuffer{}
	parent := NewXLogger(
		WithXLoggerLevel(LogLevelDebug),
		WithXLoggerEncoder(JSON),
		WithXLoggerWriter(out),
	)
	logger = NewFxXLogger(parent)

	type testcase struct {
		name     string
		event    fxevent.Event
		contains []string
	}
	testcases := []testcase{
		{
			name:     "provided",
			event:    &fxevent.Provided{ConstructorName: "main.newTree()", OutputTypeNames: []string{"tree.XConcBST[int64]"}},
			contains: []string{"component provided", "main.newTree()", "tree.XConcBST[int64]"},
		}, {
			name:     "start hook",
			event:    &fxevent.OnStartExecuted{FunctionName: "main.newLoader.func1()", CallerName: "main.newLoader", Runtime: time.Millisecond},
			contains: []string{"start hook done", `"hook":"main.newLoader.func1()"`, `"runtime"`},
		}, {
			name:     "started",
			event:    &fxevent.Started{},
			contains: []string{`"lvl":"INFO"`, "stress components started"},
		}, {
			name:     "stopping",
			event:    &fxevent.Stopping{Signal: os.Interrupt},
			contains: []string{"stress components stopping", `"signal":"interrupt"`},
		}, {
			name:     "stop hook failed",
			event:    &fxevent.OnStopExecuted{FunctionName: "main.newTree.func1()", Err: errors.New("tree closed")},
			contains: []string{`"lvl":"ERROR"`, "stop hook done failed", "tree closed"},
		}, {
			name:     "rolling back",
			event:    &fxevent.RollingBack{StartErr: errors.New("bind failed")},
			contains: []string{`"lvl":"WARN"`, "start failed, rolling back", "bind failed"},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(tt *testing.T) {
			logger.LogEvent(tc.event)
			for _, c := range tc.contains {
				require.Contains(tt, out.String(), c)
			}
		})
	}
	require.Contains(t, out.String(), `"component":"Fx"`)

	// Graph details are only reported on failure.
	logger.LogEvent(&fxevent.Decorated{DecoratorName: "main.decorate()"})
	require.NotContains(t, out.String(), "main.decorate()")
	logger.LogEvent(&fxevent.Decorated{DecoratorName: "main.decorate()", Err: errors.New("bad decorator")})
	require.Contains(t, out.String(), "component decorated failed")
	_ = parent.Sync()
}
