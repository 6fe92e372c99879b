package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTickerFires(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count int32
	s.AddTicker("sweep", 20*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(120 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestTickerReplacedByName(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var old, replacement int32
	s.AddTicker("sweep", 20*time.Millisecond, func() { atomic.AddInt32(&old, 1) })
	time.Sleep(30 * time.Millisecond)
	s.AddTicker("sweep", 20*time.Millisecond, func() { atomic.AddInt32(&replacement, 1) })
	time.Sleep(80 * time.Millisecond)

	snap := atomic.LoadInt32(&old)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&old), "replaced ticker must stop")
	assert.Positive(t, atomic.LoadInt32(&replacement))
}

func TestDelayFiresOnceAndReplaces(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count int32
	s.AddDelay("d", 500*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	s.AddDelay("d", 30*time.Millisecond, func() { atomic.AddInt32(&count, 10) })
	time.Sleep(120 * time.Millisecond)

	// Only the replacement fired.
	assert.Equal(t, int32(10), atomic.LoadInt32(&count))
}

func TestRemove(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var ticks, delays int32
	s.AddTicker("t", 20*time.Millisecond, func() { atomic.AddInt32(&ticks, 1) })
	s.AddDelay("d", 100*time.Millisecond, func() { atomic.AddInt32(&delays, 1) })
	time.Sleep(50 * time.Millisecond)
	s.Remove("t")
	s.Remove("d")
	s.Remove("missing") // no-op

	snap := atomic.LoadInt32(&ticks)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&ticks))
	assert.Equal(t, int32(0), atomic.LoadInt32(&delays))
}

func TestStopHaltsEverything(t *testing.T) {
	s := New(zap.NewNop())

	var count int32
	s.AddTicker("a", 20*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	s.Stop() // idempotent

	time.Sleep(30 * time.Millisecond)
	snap := atomic.LoadInt32(&count)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&count))
}

func TestListTickers(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	require.Empty(t, s.ListTickers())
	s.AddTicker("quest_reset", time.Hour, func() {})
	s.AddTicker("session_gc", time.Hour, func() {})
	names := s.ListTickers()
	assert.Len(t, names, 2)
	assert.Contains(t, names, "quest_reset")

	s.Remove("session_gc")
	assert.Equal(t, []string{"quest_reset"}, s.ListTickers())
}

func TestTickerPanicDoesNotKillScheduler(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var after int32
	s.AddTicker("panics", 20*time.Millisecond, func() { panic("boom") })
	time.Sleep(60 * time.Millisecond)
	s.AddTicker("healthy", 20*time.Millisecond, func() { atomic.AddInt32(&after, 1) })
	time.Sleep(60 * time.Millisecond)
	assert.Positive(t, atomic.LoadInt32(&after))
}
