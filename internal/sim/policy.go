package sim

// Policy is the external decision function: given a sensor input vector of
// length Profile.NumInputs(), it returns at least two real values
// (steering, throttle). Outputs are saturated with tanh by the caller
// before reaching the physics step.
type Policy interface {
	Activate(inputs []float64) []float64
}

// ReflexPolicy is a dependency-free baseline controller: full throttle,
// steering proportional to the clearance imbalance between the left and
// right halves of the ray fan. Useful as a demo racer and in tests; real
// controllers come from the external evolution collaborator.
type ReflexPolicy struct {
	Rays     int     // number of ray entries leading the input vector
	Throttle float64 // constant forward control, 1.0 when zero
}

// Activate implements Policy.
func (r ReflexPolicy) Activate(inputs []float64) []float64 {
	throttle := r.Throttle
	if throttle == 0 {
		throttle = 1.0
	}
	rays := r.Rays
	if rays > len(inputs) {
		rays = len(inputs)
	}
	if rays < 2 {
		return []float64{0, throttle}
	}

	half := rays / 2
	var left, right float64
	for i := 0; i < half; i++ {
		left += inputs[i]
	}
	for i := rays - half; i < rays; i++ {
		right += inputs[i]
	}
	// Ray offsets run from -spread/2 to +spread/2; more clearance on the
	// positive side steers positive.
	steer := (right - left) / float64(half)
	return []float64{steer, throttle}
}
