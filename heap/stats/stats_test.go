package stats

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCStats_MinMaxTotal(t *testing.T) {
	s := New()
	s.StatisticYoungGC(3*time.Millisecond, Bytes{Before: 100, Survived: 40, Freed: 60})
	s.StatisticYoungGC(1*time.Millisecond, Bytes{Before: 200, Survived: 50, Promoted: 10, Freed: 150})
	s.StatisticYoungGC(2*time.Millisecond, Bytes{})

	y := s.Kind(Young)
	assert.Equal(t, 3, y.Count)
	assert.Equal(t, 1*time.Millisecond, y.Min)
	assert.Equal(t, 3*time.Millisecond, y.Max)
	assert.Equal(t, 6*time.Millisecond, y.Total)
	assert.Equal(t, 2*time.Millisecond, y.Average())
	assert.Equal(t, Bytes{Before: 300, Survived: 90, Promoted: 10, Freed: 210}, y.Bytes)

	assert.Equal(t, 0, s.Count(Old))
	assert.Equal(t, time.Duration(0), s.Kind(Full).Average())
}

func TestGCStats_Phases(t *testing.T) {
	s := New()
	s.StatisticConcurrentMark(time.Millisecond)
	s.StatisticConcurrentMark(2 * time.Millisecond)
	s.StatisticConcurrentMarkWait(time.Microsecond)
	s.StatisticConcurrentRemark(5 * time.Microsecond)
	s.StatisticConcurrentEvacuate(7 * time.Microsecond)

	assert.Equal(t, 2, s.Phase(Mark).Count)
	assert.Equal(t, 3*time.Millisecond, s.Phase(Mark).Total)
	assert.Equal(t, 1, s.Phase(Wait).Count)
	assert.Equal(t, 5*time.Microsecond, s.Phase(Remark).Max)
	assert.Equal(t, 7*time.Microsecond, s.Phase(Evacuate).Min)
}

func TestGCStats_Concurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.StatisticOldGC(time.Microsecond, Bytes{Freed: 1})
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, s.Count(Old))
	assert.Equal(t, int64(800), s.Kind(Old).Bytes.Freed)
}

func TestPrintStatisticResult(t *testing.T) {
	s := New()
	var buf bytes.Buffer
	require.NoError(t, s.PrintStatisticResult(&buf, false))
	assert.Empty(t, buf.String(), "nothing recorded and not forced")

	require.NoError(t, s.PrintStatisticResult(&buf, true))
	assert.Contains(t, buf.String(), "GC statistics")
	assert.Contains(t, buf.String(), "mixed  count=0")

	buf.Reset()
	s.StatisticFullGC(time.Millisecond, Bytes{Before: 1048576, Freed: 2097152})
	s.StatisticConcurrentRemark(time.Millisecond)
	require.NoError(t, s.PrintStatisticResult(&buf, false))
	out := buf.String()
	assert.Contains(t, out, "before=1,048,576")
	assert.Contains(t, out, "freed=2,097,152")
	assert.Contains(t, out, "remark")
	assert.NotContains(t, out, "evacuate")
}

func TestPrintHeapStatisticResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New().PrintHeapStatisticResult(&buf, HeapSummary{
		SemiSpaceCapacity: 4194304,
		Regions:           12,
		NativeAllocated:   3145728,
	}))
	assert.Contains(t, buf.String(), "capacity=4,194,304")
	assert.Contains(t, buf.String(), "regions=12")
	assert.Contains(t, buf.String(), "native=3,145,728 bytes")
}

func TestSnapshot_JSON(t *testing.T) {
	s := New()
	s.StatisticYoungGC(time.Millisecond, Bytes{Before: 10, Survived: 4, Freed: 6})
	s.StatisticConcurrentMark(time.Millisecond)

	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	young := got["young"].(map[string]any)
	assert.Equal(t, float64(1), young["count"])
	assert.Equal(t, float64(4), young["bytes"].(map[string]any)["survived"])
	assert.Contains(t, got["phases"], "mark")

	s.Reset()
	assert.Equal(t, 0, s.Count(Young))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "young", Young.String())
	assert.Equal(t, "mixed", Old.String())
	assert.Equal(t, "full", Full.String())
	assert.Equal(t, "Kind(7)", Kind(7).String())
}
