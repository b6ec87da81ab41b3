package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/raceline/internal/models"
	"github.com/ukydev/raceline/internal/track"
)

func openWorld(t *testing.T, maxTicks int) *World {
	t.Helper()
	tr := track.New(400, 400)
	tr.FillRect(0, 0, 399, 399, false)
	tr.StartX = 200
	tr.StartY = 200

	p := testProfile()
	p.MaxTicks = maxTicks
	p.StallTimeout = 1 << 30
	w := NewWorld(tr, p)
	w.ResetEpisode(1)
	return w
}

func TestLoopFinishesAndReportsRecords(t *testing.T) {
	// All-grass arena: every agent dies on the first tick.
	tr := track.New(100, 100)
	w := NewWorld(tr, testProfile())
	w.ResetEpisode(3)

	done := make(chan []models.Record, 1)
	l := NewLoop(w, fullThrottle(3))
	l.OnFinish = func(records []models.Record) { done <- records }
	l.Start()

	select {
	case records := <-done:
		require.Len(t, records, 3)
		for _, rec := range records {
			assert.True(t, rec.Crashed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not finish")
	}

	// The goroutine winds down after OnFinish.
	deadline := time.Now().Add(time.Second)
	for l.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.False(t, l.Running())
}

func TestLoopPauseHoldsState(t *testing.T) {
	w := openWorld(t, 1<<30)
	l := NewLoop(w, []Policy{scriptedPolicy{steer: 0, throttle: 0}})
	l.Start()
	defer l.Stop()

	l.Pause()
	assert.True(t, l.Paused())

	// Let any in-flight tick complete, then the tick counter must hold.
	time.Sleep(50 * time.Millisecond)
	t1 := w.Tick()
	time.Sleep(50 * time.Millisecond)
	t2 := w.Tick()
	assert.Equal(t, t1, t2)

	l.Resume()
	assert.False(t, l.Paused())
	deadline := time.Now().Add(2 * time.Second)
	for w.Tick() == t2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Greater(t, w.Tick(), t2)
}

func TestLoopConcurrentPolling(t *testing.T) {
	// Tick, Done and Snapshot are read from other goroutines while the loop
	// writes; all three go through the published snapshot's guard.
	w := openWorld(t, 1<<30)
	l := NewLoop(w, []Policy{scriptedPolicy{steer: 0, throttle: 0}})
	l.Start()

	stop := make(chan struct{})
	polled := make(chan int, 1)
	go func() {
		last := 0
		for {
			select {
			case <-stop:
				polled <- last
				return
			default:
				last = w.Tick()
				_ = w.Done()
				_ = w.Snapshot()
			}
		}
	}()

	time.Sleep(100 * time.Millisecond)
	close(stop)
	last := <-polled
	l.Stop()

	assert.Greater(t, last, 0)
	assert.False(t, w.Done())
}

func TestLoopStopIsIdempotent(t *testing.T) {
	w := openWorld(t, 1<<30)
	l := NewLoop(w, []Policy{scriptedPolicy{steer: 0, throttle: 0}})
	l.Start()
	require.True(t, l.Running())

	l.Stop()
	assert.False(t, l.Running())
	l.Stop() // second stop is a no-op
	assert.False(t, l.Running())
}

func TestLoopStartWhileRunningIsNoop(t *testing.T) {
	w := openWorld(t, 1<<30)
	l := NewLoop(w, []Policy{scriptedPolicy{steer: 0, throttle: 0}})
	l.Start()
	defer l.Stop()

	l.Start()
	assert.True(t, l.Running())
}
