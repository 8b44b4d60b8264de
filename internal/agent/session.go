package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/deepscribe/pkg/models"
)

// NewSession creates the per-invocation session record. A new invocation
// always gets a fresh session; terminal sessions are never resumed.
func NewSession(maxIterations int, wallClock time.Duration) *models.Session {
	s := &models.Session{
		ID:            uuid.NewString(),
		Status:        string(StateIdle),
		StartedAt:     time.Now().UTC(),
		MaxIterations: maxIterations,
	}
	if wallClock > 0 {
		s.Deadline = s.StartedAt.Add(wallClock)
	}
	return s
}
