package infra

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAscAndDescComparator(t *testing.T) {
	testcases := []struct {
		name string
		i, j int64
		asc  int64
	}{
		{"equal", 7, 7, 0},
		{"less", 3, 7, -1},
		{"greater", 7, 3, 1},
		{"no overflow", math.MinInt64, math.MaxInt64, -1},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(tt *testing.T) {
			require.Equal(tt, tc.asc, AscComparator[int64](tc.i, tc.j))
			require.Equal(tt, -tc.asc, DescComparator[int64](tc.i, tc.j))
		})
	}
}

func TestStringComparator(t *testing.T) {
	var cmp OrderedKeyComparator[string] = AscComparator[string]
	require.Equal(t, int64(-1), cmp("abc", "abd"))
	require.Equal(t, int64(0), cmp("", ""))
	require.Equal(t, int64(1), cmp("b", "a"))
}

func TestFloatComparatorNaN(t *testing.T) {
	nan := math.NaN()
	require.Equal(t, int64(0), AscComparator[float64](nan, nan))
	require.Equal(t, int64(-1), AscComparator[float64](nan, math.Inf(-1)))
	require.Equal(t, int64(1), AscComparator[float64](0, nan))
	require.Equal(t, int64(1), DescComparator[float64](nan, 1.5))
	require.Equal(t, int64(0), AscComparator[float32](float32(nan), float32(nan)))
}
