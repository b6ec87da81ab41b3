package sim

import (
	"math"
	"sync"

	"github.com/ukydev/raceline/internal/models"
	"github.com/ukydev/raceline/internal/track"
)

// World runs one episode: a batch of agents on a single track under one
// immutable profile snapshot. All agents advance by exactly one tick before
// any agent's next sensor vector is computed. The tick loop is the only
// writer; the current snapshot is published under a reader/writer guard.
type World struct {
	Track   *track.Track
	Profile models.Profile

	batch *Batch
	tick  int

	mu        sync.RWMutex
	snapshot  models.Snapshot
	observers []chan models.Snapshot

	// IncludeRays adds per-ray endpoint geometry to published snapshots.
	IncludeRays bool
}

// NewWorld creates an episode driver. The profile is captured by value;
// edits to the caller's copy do not affect a running episode.
func NewWorld(tr *track.Track, profile models.Profile) *World {
	return &World{Track: tr, Profile: profile}
}

// ResetEpisode spawns a fresh batch of count agents at the track start.
func (w *World) ResetEpisode(count int) {
	w.batch = NewBatch(count, w.Track.StartX, w.Track.StartY, w.Track.StartAngle)
	w.tick = 0
	w.publish(false)
}

// Batch exposes the live batch for stats teardown. Callers must not mutate
// it while the tick loop runs.
func (w *World) Batch() *Batch {
	return w.batch
}

// Tick returns the tick index of the most recently published snapshot.
func (w *World) Tick() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot.Tick
}

// Done reports whether the most recently published tick ended the episode.
// Safe to poll while the tick loop runs.
func (w *World) Done() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot.Finished
}

// episodeOver is the loop-side terminal check: every agent dead or the tick
// budget exhausted. Only the tick goroutine reads the live batch.
func (w *World) episodeOver() bool {
	return w.batch == nil || w.batch.AllDead() || w.tick >= w.Profile.MaxTicks
}

// Step advances the episode by one tick: sensor vectors, one policy
// activation per live agent, saturation, then the batch physics step.
// Returns false once the episode is over.
func (w *World) Step(policies []Policy) bool {
	if w.episodeOver() {
		return false
	}
	if len(policies) != w.batch.Count {
		panic("sim: policy count does not match batch size")
	}

	inputs := w.batch.SensorInputs(w.Track, w.Profile)

	steering := make([]float64, w.batch.Count)
	throttle := make([]float64, w.batch.Count)
	for i := 0; i < w.batch.Count; i++ {
		if !w.batch.Alive[i] {
			continue
		}
		out := policies[i].Activate(inputs[i])
		if len(out) < 2 {
			panic("sim: policy returned fewer than 2 outputs")
		}
		// Mandatory saturation: the step algorithm assumes controls are
		// already in [-1,1].
		steering[i] = math.Tanh(out[0])
		throttle[i] = math.Tanh(out[1])
	}

	w.batch.Step(steering, throttle, w.Profile, w.Track)
	w.tick++
	over := w.episodeOver()
	w.publish(over)
	return !over
}

// Records tears the episode down into per-agent scoring records.
func (w *World) Records() []models.Record {
	return w.batch.Records(w.Profile, w.Track)
}

// Snapshot returns the most recently published tick state.
func (w *World) Snapshot() models.Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// Subscribe registers an observer for published snapshots and returns it
// with a cancel func that removes the observer and closes its channel.
// Slow observers miss ticks rather than stalling the loop.
func (w *World) Subscribe() (<-chan models.Snapshot, func()) {
	ch := make(chan models.Snapshot, 8)
	w.mu.Lock()
	w.observers = append(w.observers, ch)
	w.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			for i, o := range w.observers {
				if o == ch {
					w.observers = append(w.observers[:i], w.observers[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (w *World) publish(finished bool) {
	snap := models.Snapshot{
		Tick:     w.tick,
		MaxTicks: w.Profile.MaxTicks,
		Finished: finished,
	}
	if w.batch != nil {
		snap.Agents = w.agentSnapshots()
	}

	// Sends happen under the guard so a concurrent cancel can never close a
	// channel mid-send.
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snapshot = snap
	for _, ch := range w.observers {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (w *World) agentSnapshots() []models.AgentSnapshot {
	b := w.batch
	offsets := w.Profile.RayAngles()
	rays := b.LastRays()

	agents := make([]models.AgentSnapshot, b.Count)
	for i := 0; i < b.Count; i++ {
		a := models.AgentSnapshot{
			X:                b.PosX[i],
			Y:                b.PosY[i],
			Angle:            b.Angle[i],
			VelocityAngle:    b.VelocityAngle[i],
			Speed:            b.Speed[i],
			Alive:            b.Alive[i],
			Lap:              b.Laps[i],
			Checkpoint:       b.NextGate[i],
			TotalCheckpoints: b.TotalCheckpoints[i],
		}
		if w.IncludeRays && rays != nil && b.Alive[i] {
			a.Rays = make([]models.Ray, len(offsets))
			for j, off := range offsets {
				angle := b.Angle[i] + off
				dist := rays[i][j] * w.Profile.RayLength
				a.Rays[j] = models.Ray{
					X1:       b.PosX[i],
					Y1:       b.PosY[i],
					X2:       b.PosX[i] + math.Cos(angle)*dist,
					Y2:       b.PosY[i] + math.Sin(angle)*dist,
					Distance: rays[i][j],
				}
			}
		}
		agents[i] = a
	}
	return agents
}
