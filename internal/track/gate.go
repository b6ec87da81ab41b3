package track

import "math"

// parallelEpsilon bounds the cross product under which two segments are
// treated as parallel and therefore never intersecting.
const parallelEpsilon = 1e-10

// Gate is a checkpoint: a line segment agents must cross in order. Index is
// the gate's position in the track's gate sequence.
type Gate struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Index int     `json:"-"`
}

// Intersects reports whether the motion segment (px,py)->(qx,qy) crosses
// the gate. Exact for straight-line motion within a tick.
func (g Gate) Intersects(px, py, qx, qy float64) bool {
	return segmentsIntersect(g.X1, g.Y1, g.X2, g.Y2, px, py, qx, qy)
}

// IntersectsBatch is the pointwise vectorized form of Intersects over the
// per-agent motion segments (oldX[i],oldY[i]) -> (newX[i],newY[i]).
func (g Gate) IntersectsBatch(oldX, oldY, newX, newY []float64) []bool {
	out := make([]bool, len(oldX))
	for i := range out {
		out[i] = segmentsIntersect(g.X1, g.Y1, g.X2, g.Y2, oldX[i], oldY[i], newX[i], newY[i])
	}
	return out
}

// Midpoint is the gate's center, used as the target for the
// distance-to-next-gate stat.
func (g Gate) Midpoint() (float64, float64) {
	return (g.X1 + g.X2) / 2, (g.Y1 + g.Y2) / 2
}

func cross(ax, ay, bx, by float64) float64 {
	return ax*by - ay*bx
}

// segmentsIntersect solves A + t*dA = B + u*dB for segments A and B and
// reports intersection when both parameters land in [0,1]. Parallel or
// degenerate segments never intersect.
func segmentsIntersect(ax1, ay1, ax2, ay2, bx1, by1, bx2, by2 float64) bool {
	dxA := ax2 - ax1
	dyA := ay2 - ay1
	dxB := bx2 - bx1
	dyB := by2 - by1

	denom := cross(dxA, dyA, dxB, dyB)
	if math.Abs(denom) < parallelEpsilon {
		return false
	}

	dxAB := bx1 - ax1
	dyAB := by1 - ay1

	t := cross(dxAB, dyAB, dxB, dyB) / denom
	u := cross(dxAB, dyAB, dxA, dyA) / denom

	return t >= 0 && t <= 1 && u >= 0 && u <= 1
}
