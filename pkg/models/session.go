package models

import "time"

// Session tracks one end-to-end research invocation. It is created at
// invocation start, mutated by the loop each iteration, and discarded
// at a terminal state. Sessions are never persisted or resumed.
type Session struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	IterationCount int       `json:"iteration_count"`
	MaxIterations  int       `json:"max_iterations"`
	Deadline       time.Time `json:"deadline,omitempty"`
}
