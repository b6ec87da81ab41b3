// Package race replays trained controllers against each other on one track.
// Each racer runs its own single-car batch under its own profile, stepped
// with the same per-tick physics as training episodes.
package race

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/raceline/internal/models"
	"github.com/ukydev/raceline/internal/sim"
	"github.com/ukydev/raceline/internal/track"
)

var racerColors = []string{
	"#FF4444", "#4488FF", "#44CC44", "#FFAA00", "#CC44CC",
	"#44CCCC", "#FF8844", "#8844FF", "#CCCC44", "#FF44AA",
}

// Racer is one entrant: a trained policy with the profile it was trained
// under.
type Racer struct {
	ID      uuid.UUID
	Name    string
	Color   string
	Profile models.Profile
	Policy  sim.Policy
}

// Manager runs a race to completion: every racer either finishes the
// required lap count or dies. Standings order finished racers by completion
// time, then unfinished ones by total checkpoints, with DNFs last.
type Manager struct {
	// Realtime paces the race at 60 ticks/sec for live viewing; off, the
	// race runs as fast as possible.
	Realtime bool

	track  *track.Track
	racers []Racer
	laps   int

	batches     []*sim.Batch
	finishTimes map[int]float64

	mu       sync.RWMutex
	snapshot models.RaceSnapshot
	tick     int
	running  bool
	finished bool
	stopc    chan struct{}
	donec    chan struct{}
	stopOnce *sync.Once
}

// NewManager validates the entrants and prepares a race of the given lap
// count. Racer names and colors are assigned here; profiles must pass
// validation.
func NewManager(tr *track.Track, racers []Racer, laps int) (*Manager, error) {
	if len(racers) == 0 {
		return nil, fmt.Errorf("race: no racers")
	}
	if laps < 1 {
		return nil, fmt.Errorf("race: lap count must be at least 1")
	}
	entrants := make([]Racer, len(racers))
	for i, r := range racers {
		if r.Policy == nil {
			return nil, fmt.Errorf("race: racer %q has no policy", r.Name)
		}
		if err := r.Profile.Validate(); err != nil {
			return nil, fmt.Errorf("race: racer %q: %w", r.Name, err)
		}
		if r.ID == uuid.Nil {
			r.ID = uuid.NewV4()
		}
		if r.Color == "" {
			r.Color = racerColors[i%len(racerColors)]
		}
		entrants[i] = r
	}

	m := &Manager{
		track:       tr,
		racers:      entrants,
		laps:        laps,
		finishTimes: make(map[int]float64),
	}
	m.resetBatches()
	return m, nil
}

func (m *Manager) resetBatches() {
	m.batches = make([]*sim.Batch, len(m.racers))
	for i := range m.racers {
		m.batches[i] = sim.NewBatch(1, m.track.StartX, m.track.StartY, m.track.StartAngle)
	}
	m.tick = 0
	m.finished = false
	m.finishTimes = make(map[int]float64)
	m.publish()
}

// Start launches the race loop on its own goroutine.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopc = make(chan struct{})
	m.donec = make(chan struct{})
	m.stopOnce = &sync.Once{}
	stopc, donec := m.stopc, m.donec
	m.mu.Unlock()

	log.WithFields(log.Fields{
		"racers": len(m.racers),
		"laps":   m.laps,
	}).Info("race started")

	go m.run(stopc, donec)
}

func (m *Manager) run(stopc chan struct{}, donec chan struct{}) {
	defer close(donec)
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	var ticker *time.Ticker
	if m.Realtime {
		ticker = time.NewTicker(time.Second / 60)
		defer ticker.Stop()
	}

	for {
		select {
		case <-stopc:
			return
		default:
		}

		if m.step() {
			log.WithField("tick", m.tick).Info("race finished")
			return
		}

		if ticker != nil {
			<-ticker.C
		}
	}
}

// step advances every live racer one tick and reports whether the race is
// over. Racers do not interact: each collides only with the track.
func (m *Manager) step() bool {
	m.tick++

	for i, r := range m.racers {
		b := m.batches[i]
		if !b.Alive[0] || m.hasFinished(i) {
			continue
		}

		inputs := b.SensorInputs(m.track, r.Profile)
		out := r.Policy.Activate(inputs[0])
		if len(out) < 2 {
			panic("race: policy returned fewer than 2 outputs")
		}
		steering := []float64{math.Tanh(out[0])}
		throttle := []float64{math.Tanh(out[1])}
		b.Step(steering, throttle, r.Profile, m.track)

		if b.Alive[0] && b.Laps[0] >= m.laps {
			m.finishTimes[i] = float64(m.tick) * sim.DT
		}
	}

	done := true
	for i, b := range m.batches {
		if b.Alive[0] && !m.hasFinished(i) {
			done = false
			break
		}
	}

	m.mu.Lock()
	m.finished = done
	m.mu.Unlock()
	m.publish()
	return done
}

func (m *Manager) hasFinished(i int) bool {
	_, ok := m.finishTimes[i]
	return ok
}

// Standings returns the most recently published ranking.
func (m *Manager) Standings() []models.Standing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.Standings
}

// standings ranks the racers: finished first by completion time ascending,
// then unfinished by total checkpoints descending, DNFs last. Called from
// the race loop only.
func (m *Manager) standings() []models.Standing {
	rows := make([]models.Standing, len(m.racers))
	for i, r := range m.racers {
		b := m.batches[i]
		finished := m.hasFinished(i)
		rows[i] = models.Standing{
			Name:        r.Name,
			Color:       r.Color,
			Lap:         b.Laps[0],
			Checkpoints: b.TotalCheckpoints[0],
			TimeSeconds: m.finishTimes[i],
			Finished:    finished,
			DNF:         !b.Alive[0] && !finished,
		}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		ra, rb := rows[a], rows[b]
		if ra.Finished != rb.Finished {
			return ra.Finished
		}
		if ra.Finished {
			return ra.TimeSeconds < rb.TimeSeconds
		}
		if ra.DNF != rb.DNF {
			return rb.DNF
		}
		return ra.Checkpoints > rb.Checkpoints
	})
	return rows
}

func (m *Manager) publish() {
	cars := make([]models.AgentSnapshot, len(m.racers))
	names := make([]string, len(m.racers))
	colors := make([]string, len(m.racers))
	for i, r := range m.racers {
		b := m.batches[i]
		cars[i] = models.AgentSnapshot{
			X:                b.PosX[0],
			Y:                b.PosY[0],
			Angle:            b.Angle[0],
			VelocityAngle:    b.VelocityAngle[0],
			Speed:            b.Speed[0],
			Alive:            b.Alive[0],
			Lap:              b.Laps[0],
			Checkpoint:       b.NextGate[0],
			TotalCheckpoints: b.TotalCheckpoints[0],
		}
		names[i] = r.Name
		colors[i] = r.Color
	}
	snap := models.RaceSnapshot{
		Tick:      m.tick,
		Cars:      cars,
		Names:     names,
		Colors:    colors,
		Standings: m.standings(),
	}

	m.mu.Lock()
	snap.Finished = m.finished
	m.snapshot = snap
	m.mu.Unlock()
}

// Snapshot returns the most recently published race state.
func (m *Manager) Snapshot() models.RaceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Finished reports whether the race has completed.
func (m *Manager) Finished() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finished
}

// Running reports whether the race loop is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Stop terminates the race loop at the next tick boundary and waits for it
// to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	stopc, donec, once := m.stopc, m.donec, m.stopOnce
	m.mu.Unlock()

	once.Do(func() { close(stopc) })
	<-donec
}

// Wait blocks until the race loop exits.
func (m *Manager) Wait() {
	m.mu.RLock()
	donec := m.donec
	m.mu.RUnlock()
	if donec != nil {
		<-donec
	}
}

