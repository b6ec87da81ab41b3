package models

// Record is the read-only end-of-episode statistics snapshot for one agent.
// It is the sole interface between the simulation and the external scoring
// function.
type Record struct {
	CheckpointsReached int     `json:"checkpoints_reached"` // progress within the current lap
	TotalCheckpoints   int     `json:"total_checkpoints"`   // gates ever crossed
	Laps               int     `json:"laps"`
	TimeAlive          int     `json:"time_alive"` // ticks
	TotalTime          int     `json:"total_time"` // episode tick budget
	TotalDistance      float64 `json:"total_distance"`
	AverageSpeed       float64 `json:"average_speed"`
	MaxSpeedReached    float64 `json:"max_speed_reached"`
	CurrentSpeed       float64 `json:"current_speed"`
	DistanceToNextGate float64 `json:"distance_to_next_cp"` // normalized [0,1]
	DriftCount         int     `json:"drift_count"`
	IsAlive            bool    `json:"is_alive"`
	Crashed            bool    `json:"crashed"`
	TimedOut           bool    `json:"timed_out"`
	WallContacts       int     `json:"wall_hits"`
	MinWallDistance    float64 `json:"min_wall_distance"` // pixels, 0 if never sampled
	AvgWallDistance    float64 `json:"avg_wall_distance"`
}
