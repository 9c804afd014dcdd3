package observability

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"

	"github.com/benz9527/xtree/lib/tree"
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

func (b *lockedBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

func TestNewMetricsExporter_Unknown(t *testing.T) {
	shutdown, err := NewMetricsExporter("otlp")
	require.Error(t, err)
	require.Nil(t, shutdown)

	shutdown, err = NewMetricsExporter(NoneExporter)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestConsoleExporter_TreeAndAppStats(t *testing.T) {
	out := &lockedBuffer{}
	shutdown, err := NewMetricsExporter(
		ConsoleExporter,
		WithExportInterval(time.Hour, time.Second),
		WithConsoleOptions(stdoutmetric.WithWriter(out)),
	)
	require.NoError(t, err)

	stats, err := InitAppStats("")
	require.NoError(t, err)
	require.NotNil(t, stats)

	bst, err := tree.NewXConcBST[int](tree.WithXConcBSTStats[int]("console"))
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		require.NoError(t, bst.Insert(i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))

	res := out.String()
	require.Contains(t, res, "xtree/xbst/console")
	require.Contains(t, res, "xbst.op.count")
	require.Contains(t, res, "xbst.len")
	require.Contains(t, res, "xtree/app/default")
	require.Contains(t, res, "app.core.goroutines")
}
