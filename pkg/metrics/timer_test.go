package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestNewTimerStartsImmediately(t *testing.T) {
	timer := NewTimer()

	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestTimerDurationTracksElapsedTime(t *testing.T) {
	timer := NewTimer()

	sleepDuration := 20 * time.Millisecond
	time.Sleep(sleepDuration)

	duration := timer.Duration()

	assert.GreaterOrEqual(t, duration, sleepDuration)
	assert.Less(t, duration, 2*sleepDuration+50*time.Millisecond)
}

func TestTimerObserveDurationRecordsToReconciliationHistogram(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)

	before := sampleCount(t, ReconciliationDuration)
	timer.ObserveDuration(ReconciliationDuration)
	after := sampleCount(t, ReconciliationDuration)

	assert.Equal(t, before+1, after)
}

func TestTimerObserveDurationVecRecordsToRPCHistogram(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)

	// Should not panic and should accept the "kind" label RPCRequestDuration
	// is declared with.
	series := RPCRequestDuration.WithLabelValues("get_block").(prometheus.Histogram)
	before := sampleCount(t, series)
	timer.ObserveDurationVec(RPCRequestDuration, "get_block")

	assert.Equal(t, before+1, sampleCount(t, series))
	assert.NotZero(t, timer.Duration())
}

func TestTimerDurationIsMonotonicallyIncreasing(t *testing.T) {
	timer := NewTimer()

	var last time.Duration
	for i := 0; i < 5; i++ {
		time.Sleep(5 * time.Millisecond)
		d := timer.Duration()
		assert.Greater(t, d, last)
		last = d
	}
}

func TestMultipleTimersAreIndependent(t *testing.T) {
	timer1 := NewTimer()
	time.Sleep(20 * time.Millisecond)
	timer2 := NewTimer()
	time.Sleep(20 * time.Millisecond)

	assert.Greater(t, timer1.Duration(), timer2.Duration())
}
