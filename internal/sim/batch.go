package sim

import (
	"math"

	"github.com/ukydev/raceline/internal/models"
	"github.com/ukydev/raceline/internal/track"
)

// Fixed simulation constants. DT is the tick length; SpeedScale maps
// configured speed units to arena pixels per second, so a profile speed of
// 10 moves 200 px/sec. MaxStepPx caps per-substep displacement so agents
// cannot tunnel through thin grass boundaries.
const (
	DT         = 1.0 / 60.0
	SpeedScale = 20.0
	MaxStepPx  = 8.0

	// DriftThresholdRad is the heading/velocity divergence above which a
	// tick counts as drifting.
	DriftThresholdRad = 0.05

	// WallContactPx is the clearance under which a tick counts as wall
	// contact.
	WallContactPx = 5.0
)

// Batch is the data-parallel state for N agents sharing one track and one
// profile. One slot per agent across all slices; a dead agent's slot is
// frozen and never mutated again.
type Batch struct {
	Count int

	PosX          []float64
	PosY          []float64
	Angle         []float64
	VelocityAngle []float64
	Speed         []float64
	PrevSpeed     []float64
	Alive         []bool

	NextGate         []int // progress pointer, wraps mod gate count
	TotalCheckpoints []int
	Laps             []int

	TimeAlive     []int
	StallTimer    []int
	TotalDistance []float64
	MaxSpeedSeen  []float64
	SpeedSum      []float64
	DriftTicks    []int
	Crashed       []bool
	TimedOut      []bool
	WallContacts  []int
	MinWallDist   []float64 // +Inf until first sample
	WallDistSum   []float64
	DistToGate    []float64

	lastRays [][]float64 // cached raycast of the current tick
}

// NewBatch allocates a batch of count agents at the given spawn pose.
func NewBatch(count int, startX, startY, startAngle float64) *Batch {
	b := &Batch{}
	b.Reset(count, startX, startY, startAngle)
	return b
}

// Reset re-initializes every agent at the spawn pose. All counters and
// flags are cleared; the batch is ready for a fresh episode.
func (b *Batch) Reset(count int, startX, startY, startAngle float64) {
	b.Count = count
	b.PosX = filled(count, startX)
	b.PosY = filled(count, startY)
	b.Angle = filled(count, startAngle)
	b.VelocityAngle = filled(count, startAngle)
	b.Speed = make([]float64, count)
	b.PrevSpeed = make([]float64, count)
	b.Alive = make([]bool, count)
	for i := range b.Alive {
		b.Alive[i] = true
	}
	b.NextGate = make([]int, count)
	b.TotalCheckpoints = make([]int, count)
	b.Laps = make([]int, count)
	b.TimeAlive = make([]int, count)
	b.StallTimer = make([]int, count)
	b.TotalDistance = make([]float64, count)
	b.MaxSpeedSeen = make([]float64, count)
	b.SpeedSum = make([]float64, count)
	b.DriftTicks = make([]int, count)
	b.Crashed = make([]bool, count)
	b.TimedOut = make([]bool, count)
	b.WallContacts = make([]int, count)
	b.MinWallDist = filled(count, math.Inf(1))
	b.WallDistSum = make([]float64, count)
	b.DistToGate = make([]float64, count)
	b.lastRays = nil
}

func filled(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// AllDead reports whether no agent remains alive.
func (b *Batch) AllDead() bool {
	for _, a := range b.Alive {
		if a {
			return false
		}
	}
	return true
}

// SensorInputs marches the tick's raycast and assembles the per-agent
// policy input vectors: ray distances, then normalized speed, heading and
// acceleration state, then the drift angle when drift is modeled. The ray
// matrix is cached and reused by Step for wall-proximity stats, so rays are
// marched exactly once per tick.
func (b *Batch) SensorInputs(tr *track.Track, p models.Profile) [][]float64 {
	offsets := p.RayAngles()
	rays := tr.Raycast(b.PosX, b.PosY, b.Angle, offsets, p.RayLength)
	b.lastRays = rays

	accelDenom := p.Acceleration
	if accelDenom < 1e-6 {
		accelDenom = 1e-6
	}

	inputs := make([][]float64, b.Count)
	for i := 0; i < b.Count; i++ {
		in := make([]float64, 0, p.NumInputs())
		in = append(in, rays[i]...)
		in = append(in, b.Speed[i]/p.MaxSpeed)
		in = append(in, b.Angle[i]/math.Pi)
		in = append(in, clamp((b.Speed[i]-b.PrevSpeed[i])/accelDenom, -1, 1))
		if p.DriftEnabled {
			in = append(in, clamp((b.Angle[i]-b.VelocityAngle[i])/math.Pi, -1, 1))
		}
		inputs[i] = in
	}
	return inputs
}

// LastRays returns the raycast cached by the most recent SensorInputs call,
// or nil before the first call of an episode.
func (b *Batch) LastRays() [][]float64 {
	return b.lastRays
}

// Step advances every agent by one fixed timestep. Controls must already be
// saturated to [-1,1]. Collision against the track is checked after every
// substep; gate crossing is tested once against the whole tick's
// displacement.
func (b *Batch) Step(steering, throttle []float64, p models.Profile, tr *track.Track) {
	if len(steering) != b.Count || len(throttle) != b.Count {
		panic("sim: control vector length does not match batch size")
	}

	copy(b.PrevSpeed, b.Speed)

	// Heading and speed integration, dead agents frozen.
	for i := 0; i < b.Count; i++ {
		if !b.Alive[i] {
			continue
		}
		b.Angle[i] += steering[i] * p.RotationSpeed * DT

		var accel, brake float64
		if throttle[i] > 0 {
			accel = throttle[i] * p.Acceleration
		} else if throttle[i] < 0 {
			brake = throttle[i] * p.BrakeForce
		}
		b.Speed[i] = clamp(b.Speed[i]+(accel+brake)*DT, 0, p.MaxSpeed)
	}

	// Velocity direction: locked to heading without drift, otherwise
	// relaxing toward it by the grip coefficient.
	if p.DriftEnabled {
		for i := 0; i < b.Count; i++ {
			if !b.Alive[i] {
				continue
			}
			diff := b.Angle[i] - b.VelocityAngle[i]
			b.VelocityAngle[i] += diff * p.Grip
			if math.Abs(diff) > DriftThresholdRad {
				b.DriftTicks[i]++
			}
		}
	} else {
		for i := 0; i < b.Count; i++ {
			if b.Alive[i] {
				b.VelocityAngle[i] = b.Angle[i]
			}
		}
	}

	// Per-tick displacement, then shared substep count across the batch so
	// no agent moves more than MaxStepPx between collision checks.
	tickDX := make([]float64, b.Count)
	tickDY := make([]float64, b.Count)
	maxPx := 0.0
	for i := 0; i < b.Count; i++ {
		if !b.Alive[i] {
			continue
		}
		px := b.Speed[i] * SpeedScale * DT
		tickDX[i] = math.Cos(b.VelocityAngle[i]) * px
		tickDY[i] = math.Sin(b.VelocityAngle[i]) * px
		if px > maxPx {
			maxPx = px
		}
	}

	substeps := 1
	if maxPx > MaxStepPx {
		substeps = int(math.Ceil(maxPx / MaxStepPx))
	}

	oldX := make([]float64, b.Count)
	oldY := make([]float64, b.Count)
	copy(oldX, b.PosX)
	copy(oldY, b.PosY)

	inv := 1.0 / float64(substeps)
	for s := 0; s < substeps; s++ {
		for i := 0; i < b.Count; i++ {
			if !b.Alive[i] {
				continue
			}
			b.PosX[i] += tickDX[i] * inv
			b.PosY[i] += tickDY[i] * inv
			if tr.Classify(b.PosX[i], b.PosY[i]) {
				// Killed in place at the lethal cell, not rolled back,
				// and excluded from further substeps this tick.
				b.Alive[i] = false
				b.Crashed[i] = true
			}
		}
	}

	// Gate crossing over the full-tick sweep. Substeps keep collisions
	// fine-grained; gates are crossed transversally and need no sub-tick
	// precision.
	b.sweepGates(tr.Gates, oldX, oldY)

	// Bookkeeping over the displacement actually realized this tick.
	for i := 0; i < b.Count; i++ {
		dx := b.PosX[i] - oldX[i]
		dy := b.PosY[i] - oldY[i]
		b.TotalDistance[i] += math.Hypot(dx, dy)
		if !b.Alive[i] {
			continue
		}
		if b.Speed[i] > b.MaxSpeedSeen[i] {
			b.MaxSpeedSeen[i] = b.Speed[i]
		}
		b.SpeedSum[i] += b.Speed[i]
		b.TimeAlive[i]++
		b.StallTimer[i]++
	}

	// Stall kill: no gate progress for the configured number of ticks.
	for i := 0; i < b.Count; i++ {
		if b.Alive[i] && b.StallTimer[i] >= p.StallTimeout {
			b.Alive[i] = false
			b.TimedOut[i] = true
		}
	}

	b.updateWallStats(p.RayLength)
	b.updateGateDistance(tr.Gates)
}

// sweepGates advances each live agent's progress pointer when its full-tick
// motion segment crosses its current next gate. The pointer advances by at
// most one gate per tick; a wrap to gate 0 completes a lap.
func (b *Batch) sweepGates(gates []track.Gate, oldX, oldY []float64) {
	if len(gates) == 0 {
		return
	}
	n := len(gates)
	for i := 0; i < b.Count; i++ {
		if !b.Alive[i] {
			continue
		}
		g := gates[b.NextGate[i]]
		if !g.Intersects(oldX[i], oldY[i], b.PosX[i], b.PosY[i]) {
			continue
		}
		b.TotalCheckpoints[i]++
		b.NextGate[i] = (b.NextGate[i] + 1) % n
		if b.NextGate[i] == 0 {
			b.Laps[i]++
		}
		b.StallTimer[i] = 0
	}
}

// updateWallStats consumes the tick's cached raycast: the shortest ray is a
// proxy for clearance to the nearest lethal boundary.
func (b *Batch) updateWallStats(rayLength float64) {
	if b.lastRays == nil {
		return
	}
	for i := 0; i < b.Count; i++ {
		if !b.Alive[i] {
			continue
		}
		minRay := 1.0
		for _, d := range b.lastRays[i] {
			if d < minRay {
				minRay = d
			}
		}
		clearance := minRay * rayLength
		if clearance < WallContactPx {
			b.WallContacts[i]++
		}
		if clearance < b.MinWallDist[i] {
			b.MinWallDist[i] = clearance
		}
		b.WallDistSum[i] += clearance
	}
}

func (b *Batch) updateGateDistance(gates []track.Gate) {
	if len(gates) == 0 {
		return
	}
	for i := 0; i < b.Count; i++ {
		if !b.Alive[i] {
			continue
		}
		mx, my := gates[b.NextGate[i]].Midpoint()
		b.DistToGate[i] = math.Hypot(b.PosX[i]-mx, b.PosY[i]-my)
	}
}

// Records tears the batch down into per-agent scoring records. Safe to call
// at any tick; conventionally called once at episode end.
func (b *Batch) Records(p models.Profile, tr *track.Track) []models.Record {
	maxDist := float64(tr.Width)
	if tr.Height > tr.Width {
		maxDist = float64(tr.Height)
	}

	records := make([]models.Record, b.Count)
	for i := 0; i < b.Count; i++ {
		ticks := b.TimeAlive[i]
		if ticks < 1 {
			ticks = 1
		}
		minWall := b.MinWallDist[i]
		if math.IsInf(minWall, 1) {
			minWall = 0
		}
		records[i] = models.Record{
			CheckpointsReached: b.NextGate[i],
			TotalCheckpoints:   b.TotalCheckpoints[i],
			Laps:               b.Laps[i],
			TimeAlive:          b.TimeAlive[i],
			TotalTime:          p.MaxTicks,
			TotalDistance:      b.TotalDistance[i],
			AverageSpeed:       b.SpeedSum[i] / float64(ticks),
			MaxSpeedReached:    b.MaxSpeedSeen[i],
			CurrentSpeed:       b.Speed[i],
			DistanceToNextGate: math.Min(b.DistToGate[i]/maxDist, 1.0),
			DriftCount:         b.DriftTicks[i],
			IsAlive:            b.Alive[i],
			Crashed:            b.Crashed[i],
			TimedOut:           b.TimedOut[i],
			WallContacts:       b.WallContacts[i],
			MinWallDistance:    minWall,
			AvgWallDistance:    b.WallDistSum[i] / float64(ticks),
		}
	}
	return records
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
