package sim

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/raceline/internal/models"
)

// Loop drives a World's tick loop on a dedicated goroutine with cooperative
// pause and stop, both checked once per tick boundary and never mid-step.
type Loop struct {
	world    *World
	policies []Policy

	// Realtime paces the loop at the simulation tick rate (60/s). When
	// false the loop runs as fast as it can, which is what training wants.
	Realtime bool

	// OnFinish receives the episode's scoring records when the loop ends
	// on its own (not via Stop).
	OnFinish func([]models.Record)

	mu       sync.Mutex
	running  bool
	paused   bool
	stopc    chan struct{}
	donec    chan struct{}
	stopOnce *sync.Once
}

// NewLoop wires a world and its per-agent policies. The policy slice length
// must match the batch size at Start time.
func NewLoop(world *World, policies []Policy) *Loop {
	return &Loop{world: world, policies: policies}
}

// World returns the driven world.
func (l *Loop) World() *World {
	return l.world
}

// Start launches the tick loop. It is a no-op when already running.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.paused = false
	l.stopc = make(chan struct{})
	l.donec = make(chan struct{})
	l.stopOnce = &sync.Once{}
	go l.run(l.stopc, l.donec)
}

func (l *Loop) run(stopc chan struct{}, donec chan struct{}) {
	defer close(donec)
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	var ticker *time.Ticker
	if l.Realtime {
		ticker = time.NewTicker(time.Second / 60)
		defer ticker.Stop()
	}

	for {
		select {
		case <-stopc:
			log.Debug("tick loop: stop requested")
			return
		default:
		}

		if l.Paused() {
			// Idle-wait: hold state, keep checking for stop/resume.
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if !l.world.Step(l.policies) {
			log.WithFields(log.Fields{
				"tick":   l.world.Tick(),
				"agents": l.world.Batch().Count,
			}).Info("episode finished")
			if l.OnFinish != nil {
				l.OnFinish(l.world.Records())
			}
			return
		}

		if ticker != nil {
			<-ticker.C
		}
	}
}

// Pause suspends ticking at the next tick boundary.
func (l *Loop) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

// Resume continues a paused loop.
func (l *Loop) Resume() {
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
}

// Paused reports whether the loop is paused.
func (l *Loop) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// Running reports whether the loop goroutine is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Stop terminates the loop at the next tick boundary and waits for the
// goroutine to exit. In-flight state stays consistent: a step is never
// interrupted midway.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	stopc, donec, once := l.stopc, l.donec, l.stopOnce
	l.mu.Unlock()

	once.Do(func() { close(stopc) })
	<-donec
}
