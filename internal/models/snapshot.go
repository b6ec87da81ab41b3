package models

// Ray is one sensor ray's endpoint geometry for visualization.
type Ray struct {
	X1       float64 `json:"x1"`
	Y1       float64 `json:"y1"`
	X2       float64 `json:"x2"`
	Y2       float64 `json:"y2"`
	Distance float64 `json:"distance"` // normalized [0,1]
}

// AgentSnapshot is one agent's published state for a tick.
type AgentSnapshot struct {
	X                float64 `json:"x"`
	Y                float64 `json:"y"`
	Angle            float64 `json:"angle"`
	VelocityAngle    float64 `json:"velocity_angle"`
	Speed            float64 `json:"speed"`
	Alive            bool    `json:"alive"`
	Lap              int     `json:"lap"`
	Checkpoint       int     `json:"checkpoint"` // next gate index
	TotalCheckpoints int     `json:"total_checkpoints"`
	Rays             []Ray   `json:"rays,omitempty"`
}

// Snapshot is the per-tick state published for external polling and for the
// display layer. The tick loop is the only writer.
type Snapshot struct {
	Tick     int             `json:"tick"`
	MaxTicks int             `json:"max_ticks"`
	Finished bool            `json:"finished"`
	Agents   []AgentSnapshot `json:"agents"`
}

// Standing is one row of a race result, ordered best first.
type Standing struct {
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	Lap         int     `json:"lap"`
	Checkpoints int     `json:"checkpoints"` // total gates crossed
	TimeSeconds float64 `json:"time"`        // completion time, 0 if unfinished
	Finished    bool    `json:"finished"`
	DNF         bool    `json:"dnf"`
}

// RaceSnapshot is the published state of a running race.
type RaceSnapshot struct {
	Tick      int             `json:"tick"`
	Finished  bool            `json:"finished"`
	Cars      []AgentSnapshot `json:"cars"`
	Names     []string        `json:"names"`
	Colors    []string        `json:"colors"`
	Standings []Standing      `json:"standings"`
}
