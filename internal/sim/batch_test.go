package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/raceline/internal/models"
	"github.com/ukydev/raceline/internal/track"
)

// allRoad returns a track whose entire arena is drivable.
func allRoad(width, height int) *track.Track {
	t := track.New(width, height)
	t.FillRect(0, 0, width-1, height-1, false)
	return t
}

// testProfile is tuned so a vehicle reaches full speed within one tick and
// never stalls out mid-test unless the test wants it to.
func testProfile() models.Profile {
	p := models.DefaultProfile()
	p.Acceleration = 600.0
	p.StallTimeout = 1 << 20
	p.MaxTicks = 1 << 20
	return p
}

func constControls(n int, steering, throttle float64) ([]float64, []float64) {
	s := make([]float64, n)
	th := make([]float64, n)
	for i := range s {
		s[i] = steering
		th[i] = throttle
	}
	return s, th
}

func TestResetState(t *testing.T) {
	b := NewBatch(3, 50, 60, 1.5)
	require.Equal(t, 3, b.Count)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 50.0, b.PosX[i])
		assert.Equal(t, 60.0, b.PosY[i])
		assert.Equal(t, 1.5, b.Angle[i])
		assert.Equal(t, 1.5, b.VelocityAngle[i])
		assert.True(t, b.Alive[i])
		assert.Equal(t, 0, b.NextGate[i])
		assert.True(t, math.IsInf(b.MinWallDist[i], 1))
	}
	assert.False(t, b.AllDead())
}

func TestCrashAtSpawn(t *testing.T) {
	tr := track.New(100, 100) // all grass
	b := NewBatch(1, 50, 50, 0)
	p := testProfile()

	s, th := constControls(1, 0, 1)
	b.Step(s, th, p, tr)

	require.False(t, b.Alive[0])
	assert.True(t, b.Crashed[0])
	assert.False(t, b.TimedOut[0])
	assert.Equal(t, 0, b.TimeAlive[0])
	assert.Equal(t, 0, b.TotalCheckpoints[0])
	// Killed on the first tick: at most one tick's displacement realized.
	assert.Less(t, b.TotalDistance[0], p.MaxSpeed*SpeedScale*DT+1e-9)

	rec := b.Records(p, tr)[0]
	assert.True(t, rec.Crashed)
	assert.False(t, rec.IsAlive)
	assert.Equal(t, 0.0, rec.AverageSpeed)
	assert.Equal(t, 0.0, rec.MinWallDistance)
}

func TestDeadAgentsAreFrozen(t *testing.T) {
	tr := track.New(100, 100)
	b := NewBatch(2, 50, 50, 0)
	p := testProfile()

	s, th := constControls(2, 0, 1)
	b.Step(s, th, p, tr)
	require.True(t, b.AllDead())

	x, y, dist := b.PosX[0], b.PosY[0], b.TotalDistance[0]
	for i := 0; i < 5; i++ {
		b.Step(s, th, p, tr)
	}
	assert.Equal(t, x, b.PosX[0])
	assert.Equal(t, y, b.PosY[0])
	assert.Equal(t, dist, b.TotalDistance[0])
	assert.Equal(t, 0, b.TimeAlive[0])
}

func TestSpeedClampedToProfile(t *testing.T) {
	tr := allRoad(4000, 200)
	b := NewBatch(1, 50, 100, 0)
	p := testProfile()

	s, th := constControls(1, 0, 1)
	for i := 0; i < 50; i++ {
		b.Step(s, th, p, tr)
		assert.LessOrEqual(t, b.Speed[0], p.MaxSpeed)
	}
	assert.Equal(t, p.MaxSpeed, b.Speed[0])

	// Braking never produces reverse motion.
	s, th = constControls(1, 0, -1)
	for i := 0; i < 2000 && b.Speed[0] > 0; i++ {
		b.Step(s, th, p, tr)
	}
	assert.Equal(t, 0.0, b.Speed[0])
}

func TestNoTunnelingThroughWall(t *testing.T) {
	for _, speed := range []float64{10, 30, 60, 100} {
		tr := allRoad(1000, 100)
		tr.FillRect(200, 0, 207, 99, true) // wall as thick as the substep cap

		p := testProfile()
		p.MaxSpeed = speed
		b := NewBatch(1, 50, 50, 0)
		b.Speed[0] = speed

		s, th := constControls(1, 0, 0)
		for i := 0; i < 500 && b.Alive[0]; i++ {
			b.Step(s, th, p, tr)
		}
		require.False(t, b.Alive[0], "speed %v must hit the wall", speed)
		assert.True(t, b.Crashed[0])
		assert.Less(t, b.PosX[0], 208.0, "speed %v must not pass the wall", speed)
		assert.GreaterOrEqual(t, b.PosX[0], 200.0, "speed %v must die inside the wall", speed)
	}
}

func TestNoTunnelingAtAnAngle(t *testing.T) {
	tr := allRoad(1000, 1000)
	tr.FillRect(400, 0, 407, 999, true)

	p := testProfile()
	p.MaxSpeed = 80
	b := NewBatch(1, 100, 100, 0.6)
	b.Speed[0] = 80
	b.VelocityAngle[0] = 0.6

	s, th := constControls(1, 0, 0)
	for i := 0; i < 1000 && b.Alive[0]; i++ {
		b.Step(s, th, p, tr)
	}
	require.False(t, b.Alive[0])
	assert.Less(t, b.PosX[0], 408.0)
}

func TestGateProgressAndLapCounting(t *testing.T) {
	tr := allRoad(1000, 100)
	tr.Gates = []track.Gate{
		{X1: 200, Y1: 0, X2: 200, Y2: 100, Index: 0},
		{X1: 400, Y1: 0, X2: 400, Y2: 100, Index: 1},
	}

	p := testProfile()
	b := NewBatch(1, 50, 50, 0)

	s, th := constControls(1, 0, 1)
	for i := 0; i < 400 && b.Laps[0] == 0 && b.Alive[0]; i++ {
		b.Step(s, th, p, tr)
	}

	require.True(t, b.Alive[0])
	assert.Equal(t, 1, b.Laps[0])
	assert.Equal(t, 2, b.TotalCheckpoints[0])
	assert.Equal(t, 0, b.NextGate[0]) // wrapped back to the first gate
}

func TestOnlyNextGateCounts(t *testing.T) {
	tr := allRoad(1000, 100)
	// The second gate in sequence sits behind the first along the path.
	tr.Gates = []track.Gate{
		{X1: 300, Y1: 0, X2: 300, Y2: 100, Index: 0},
		{X1: 150, Y1: 0, X2: 150, Y2: 100, Index: 1},
	}

	p := testProfile()
	b := NewBatch(1, 50, 50, 0)

	s, th := constControls(1, 0, 1)
	for i := 0; i < 300 && b.Alive[0] && b.PosX[0] < 900; i++ {
		b.Step(s, th, p, tr)
	}

	// Crossed both lines, but only gate 0 was eligible.
	require.Greater(t, b.PosX[0], 300.0)
	assert.Equal(t, 1, b.TotalCheckpoints[0])
	assert.Equal(t, 1, b.NextGate[0])
	assert.Equal(t, 0, b.Laps[0])
}

func TestProgressNeverDecreases(t *testing.T) {
	tr := track.DefaultCircuit(600, 400, 100)
	p := testProfile()
	b := NewBatch(1, tr.StartX, tr.StartY, tr.StartAngle)

	s, th := constControls(1, 0, 1)
	prev := 0
	for i := 0; i < 500 && b.Alive[0]; i++ {
		b.Step(s, th, p, tr)
		total := b.TotalCheckpoints[0]
		assert.GreaterOrEqual(t, total, prev)
		assert.LessOrEqual(t, total-prev, 1, "at most one gate per tick")
		prev = total
	}
}

func TestStallTimeoutExactTick(t *testing.T) {
	tr := allRoad(200, 200)
	p := testProfile()
	p.StallTimeout = 10

	b := NewBatch(1, 100, 100, 0)
	s, th := constControls(1, 0, 0) // never moves, never progresses

	for i := 0; i < 9; i++ {
		b.Step(s, th, p, tr)
		assert.True(t, b.Alive[0], "alive through tick %d", i+1)
	}
	b.Step(s, th, p, tr)
	require.False(t, b.Alive[0])
	assert.True(t, b.TimedOut[0])
	assert.False(t, b.Crashed[0])
	assert.Equal(t, 10, b.TimeAlive[0])
}

func TestGateCrossingResetsStallTimer(t *testing.T) {
	tr := allRoad(1000, 100)
	tr.Gates = []track.Gate{{X1: 60, Y1: 0, X2: 60, Y2: 100, Index: 0}}

	p := testProfile()
	p.StallTimeout = 10
	b := NewBatch(1, 50, 50, 0)
	b.Speed[0] = p.MaxSpeed

	s, th := constControls(1, 0, 0)
	// Crossing x=60 happens within the first few ticks and resets the timer.
	for i := 0; i < 5; i++ {
		b.Step(s, th, p, tr)
	}
	require.Equal(t, 1, b.TotalCheckpoints[0])
	assert.Less(t, b.StallTimer[0], 5)
}

func TestDriftTicksCounted(t *testing.T) {
	tr := allRoad(2000, 2000)
	p := testProfile()
	p.DriftEnabled = true
	p.Grip = 0.3
	p.RotationSpeed = 6.0

	b := NewBatch(1, 1000, 1000, 0)
	s, th := constControls(1, 1, 1) // hard steering
	for i := 0; i < 30 && b.Alive[0]; i++ {
		b.Step(s, th, p, tr)
	}
	assert.Greater(t, b.DriftTicks[0], 0)

	// Straight driving never drifts.
	b2 := NewBatch(1, 1000, 1000, 0)
	s2, th2 := constControls(1, 0, 1)
	for i := 0; i < 30; i++ {
		b2.Step(s2, th2, p, tr)
	}
	assert.Equal(t, 0, b2.DriftTicks[0])
}

func TestVelocityLockedWithoutDrift(t *testing.T) {
	tr := allRoad(2000, 2000)
	p := testProfile()
	p.DriftEnabled = false

	b := NewBatch(1, 1000, 1000, 0)
	s, th := constControls(1, 0.7, 1)
	for i := 0; i < 20; i++ {
		b.Step(s, th, p, tr)
		assert.Equal(t, b.Angle[0], b.VelocityAngle[0])
	}
}

func TestSensorInputLayout(t *testing.T) {
	tr := allRoad(2000, 2000)
	p := testProfile() // 5 rays, no drift
	p.Acceleration = 0.5

	b := NewBatch(2, 1000, 1000, math.Pi/2)
	b.Speed[0] = 5.0
	b.PrevSpeed[0] = 0.0

	inputs := b.SensorInputs(tr, p)
	require.Len(t, inputs, 2)
	require.Len(t, inputs[0], 8)

	// Open space in every direction within ray range.
	for j := 0; j < 5; j++ {
		assert.Equal(t, 1.0, inputs[0][j], "ray %d", j)
	}
	assert.InDelta(t, 0.5, inputs[0][5], 1e-12)  // speed / max
	assert.InDelta(t, 0.5, inputs[0][6], 1e-12)  // heading / pi
	assert.InDelta(t, 1.0, inputs[0][7], 1e-12)  // accel term, clamped
	assert.Equal(t, 0.0, inputs[1][5])           // second agent still parked
}

func TestSensorInputDriftTerm(t *testing.T) {
	tr := allRoad(2000, 2000)
	p := testProfile()
	p.DriftEnabled = true

	b := NewBatch(1, 1000, 1000, 0)
	b.Angle[0] = math.Pi / 4
	b.VelocityAngle[0] = 0

	inputs := b.SensorInputs(tr, p)
	require.Len(t, inputs[0], 9)
	assert.InDelta(t, 0.25, inputs[0][8], 1e-12)
}

func TestSensorRaysCachedForWallStats(t *testing.T) {
	tr := allRoad(1000, 100)
	tr.FillRect(200, 0, 999, 99, true)
	p := testProfile()
	p.RayLength = 200

	b := NewBatch(1, 197, 50, 0)
	require.Nil(t, b.LastRays())

	inputs := b.SensorInputs(tr, p)
	require.NotNil(t, b.LastRays())
	require.Equal(t, inputs[0][:5], b.LastRays()[0])

	s, th := constControls(1, 0, 0)
	b.Step(s, th, p, tr)
	// Forward clearance is ~2px, inside the contact threshold.
	assert.Equal(t, 1, b.WallContacts[0])
	assert.Less(t, b.MinWallDist[0], WallContactPx)
	assert.Greater(t, b.WallDistSum[0], 0.0)
}

func TestStepPanicsOnControlLengthMismatch(t *testing.T) {
	tr := allRoad(100, 100)
	b := NewBatch(2, 50, 50, 0)
	p := testProfile()

	assert.Panics(t, func() {
		b.Step([]float64{0}, []float64{1, 1}, p, tr)
	})
}

func TestRecordsNormalization(t *testing.T) {
	tr := allRoad(1000, 100)
	tr.Gates = []track.Gate{{X1: 900, Y1: 0, X2: 900, Y2: 100, Index: 0}}
	p := testProfile()

	b := NewBatch(1, 50, 50, 0)
	s, th := constControls(1, 0, 1)
	for i := 0; i < 10; i++ {
		b.SensorInputs(tr, p)
		b.Step(s, th, p, tr)
	}

	rec := b.Records(p, tr)[0]
	assert.True(t, rec.IsAlive)
	assert.Equal(t, 10, rec.TimeAlive)
	assert.Equal(t, p.MaxTicks, rec.TotalTime)
	assert.Greater(t, rec.TotalDistance, 0.0)
	assert.Greater(t, rec.AverageSpeed, 0.0)
	assert.LessOrEqual(t, rec.DistanceToNextGate, 1.0)
	assert.GreaterOrEqual(t, rec.DistanceToNextGate, 0.0)
	assert.Equal(t, p.MaxSpeed, rec.MaxSpeedReached)
}
