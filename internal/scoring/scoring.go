// Package scoring wraps the user-supplied fitness function: an opaque pure
// function from a per-agent record to a scalar. It is validated once before
// being accepted and sandboxed at evaluation time so a misbehaving function
// can never abort an episode.
package scoring

import (
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/raceline/internal/models"
)

// Func maps an agent's end-of-episode record to a fitness scalar.
type Func func(models.Record) float64

var ErrNilFunc = errors.New("scoring: function is nil")

// syntheticRecord exercises a candidate function once before acceptance.
var syntheticRecord = models.Record{
	CheckpointsReached: 0,
	TotalCheckpoints:   0,
	Laps:               0,
	TimeAlive:          100,
	TotalTime:          2000,
	TotalDistance:      50.0,
	AverageSpeed:       5.0,
	MaxSpeedReached:    8.0,
	CurrentSpeed:       3.0,
	DistanceToNextGate: 0.5,
	DriftCount:         0,
	IsAlive:            false,
	Crashed:            true,
	TimedOut:           false,
	WallContacts:       5,
	MinWallDistance:    3.0,
	AvgWallDistance:    10.0,
}

// Validate checks a scoring function against a synthetic record. A function
// that panics or returns a non-finite value is a configuration error and is
// rejected before any simulation runs.
func Validate(f Func) (err error) {
	if f == nil {
		return ErrNilFunc
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoring: function panicked during validation: %v", r)
		}
	}()
	v := f(syntheticRecord)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("scoring: function returned non-finite value %v", v)
	}
	return nil
}

// Evaluate runs an accepted scoring function for one agent. Any per-agent
// failure (panic, NaN, infinity) yields a fitness of zero for that agent
// only; the episode is never aborted.
func Evaluate(f Func, record models.Record) (fitness float64) {
	if f == nil {
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Warn("scoring function panicked; agent fitness set to 0")
			fitness = 0
		}
	}()
	v := f(record)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// EvaluateAll scores a whole episode's records.
func EvaluateAll(f Func, records []models.Record) []float64 {
	out := make([]float64, len(records))
	for i, rec := range records {
		out[i] = Evaluate(f, rec)
	}
	return out
}
