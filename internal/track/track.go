package track

import "math"

// RayStepPx is the fixed ray-march step in arena pixels. It trades sensor
// precision for cost and is independent of the configured ray range.
const RayStepPx = 2.0

// Track is the raster representation of a circuit: a boolean mask over a
// rectangular arena where true means grass (lethal) and false means road,
// plus a spawn pose and an ordered gate sequence. A Track is immutable for
// the duration of an episode.
type Track struct {
	Width      int
	Height     int
	StartX     float64
	StartY     float64
	StartAngle float64
	Gates      []Gate

	mask []bool // row-major, true = grass
}

// New returns an all-grass track of the given size.
func New(width, height int) *Track {
	t := &Track{Width: width, Height: height, mask: make([]bool, width*height)}
	for i := range t.mask {
		t.mask[i] = true
	}
	return t
}

// SetCell marks one raster cell as grass or road. Out-of-range coordinates
// are ignored.
func (t *Track) SetCell(x, y int, grass bool) {
	if x < 0 || x >= t.Width || y < 0 || y >= t.Height {
		return
	}
	t.mask[y*t.Width+x] = grass
}

// FillRect marks a rectangle of cells, clamped to the arena.
func (t *Track) FillRect(x0, y0, x1, y1 int, grass bool) {
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			t.SetCell(x, y, grass)
		}
	}
}

// Cell reports the raw raster value; out-of-range is grass.
func (t *Track) Cell(x, y int) bool {
	if x < 0 || x >= t.Width || y < 0 || y >= t.Height {
		return true
	}
	return t.mask[y*t.Width+x]
}

// Classify reports whether the point is lethal. Anything outside
// [0,W)x[0,H) is lethal, including points just touching the boundary.
func (t *Track) Classify(x, y float64) bool {
	ix, iy := int(math.Floor(x)), int(math.Floor(y))
	if ix < 0 || ix >= t.Width || iy < 0 || iy >= t.Height {
		return true
	}
	return t.mask[iy*t.Width+ix]
}

// ClassifyBatch is the vectorized form of Classify; it agrees pointwise
// with repeated scalar calls.
func (t *Track) ClassifyBatch(xs, ys []float64) []bool {
	out := make([]bool, len(xs))
	for i := range xs {
		out[i] = t.Classify(xs[i], ys[i])
	}
	return out
}

// Raycast marches sensor rays for all agents and returns normalized hit
// distances in [0,1], one row per agent and one column per ray offset.
// 1.0 means no hit within maxRange. All rays advance in lockstep by step
// index so the march can stop globally once every ray has resolved.
func (t *Track) Raycast(xs, ys, headings, rayOffsets []float64, maxRange float64) [][]float64 {
	n := len(xs)
	r := len(rayOffsets)

	out := make([][]float64, n)
	cosA := make([]float64, n*r)
	sinA := make([]float64, n*r)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, r)
		for j := 0; j < r; j++ {
			out[i][j] = 1.0
			a := headings[i] + rayOffsets[j]
			cosA[i*r+j] = math.Cos(a)
			sinA[i*r+j] = math.Sin(a)
		}
	}

	pending := n * r
	unresolved := make([]bool, n*r)
	for i := range unresolved {
		unresolved[i] = true
	}

	steps := int(maxRange / RayStepPx)
	for s := 1; s <= steps && pending > 0; s++ {
		dist := float64(s) * RayStepPx
		for i := 0; i < n; i++ {
			for j := 0; j < r; j++ {
				k := i*r + j
				if !unresolved[k] {
					continue
				}
				sx := xs[i] + cosA[k]*dist
				sy := ys[i] + sinA[k]*dist
				if t.Classify(sx, sy) {
					out[i][j] = dist / maxRange
					unresolved[k] = false
					pending--
				}
			}
		}
	}

	return out
}
