package track

// DefaultCircuit builds a simple rectangular ring circuit: a road loop of
// the given corridor width around a grass island, with four gates, one per
// side, ordered counter-clockwise from the start. Used when no track
// document is configured and as a fixture for race runs.
func DefaultCircuit(width, height, corridor int) *Track {
	t := New(width, height)

	// Outer road ring, leaving a one-cell grass border.
	t.FillRect(1, 1, width-2, height-2, false)
	// Grass island in the middle.
	t.FillRect(corridor, corridor, width-1-corridor, height-1-corridor, true)

	midY := float64(height) / 2
	midX := float64(width) / 2
	c := float64(corridor)
	w := float64(width)
	h := float64(height)

	t.StartX = w - c/2
	t.StartY = midY
	t.StartAngle = -1.5707963267948966 // facing up (y decreases)

	t.Gates = []Gate{
		{X1: midX, Y1: 0, X2: midX, Y2: c, Index: 0},
		{X1: 0, Y1: midY, X2: c, Y2: midY, Index: 1},
		{X1: midX, Y1: h - c, X2: midX, Y2: h, Index: 2},
		{X1: w - c, Y1: midY, X2: w, Y2: midY, Index: 3},
	}
	return t
}
