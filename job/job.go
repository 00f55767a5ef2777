package job

import (
	"context"
	"sync"
	"time"
)

type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateProbing    State = "probing"
	StateBuilding   State = "building"
	StateComposing  State = "composing"
	StateExecuting  State = "executing"
	StateDelivering State = "delivering"
	StateCleanup    State = "cleanup"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Job tracks one stitch request from registration to cleanup.
type Job struct {
	ID        string
	Clips     int
	CreatedAt time.Time

	mu          sync.RWMutex
	state       State
	startedAt   time.Time
	completedAt time.Time
	err         string
	canceled    bool
	cancelFunc  context.CancelFunc
}

// Snapshot is the read-only view of a job returned by the API.
type Snapshot struct {
	ID          string    `json:"id"`
	State       State     `json:"state"`
	Clips       int       `json:"clips"`
	Error       string    `json:"error,omitempty"`
	Canceled    bool      `json:"canceled,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Snapshot{
		ID:          j.ID,
		State:       j.state,
		Clips:       j.Clips,
		Error:       j.err,
		Canceled:    j.canceled,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
	}
}

// setState moves the job to s unless it already finished. It reports whether the
// state changed.
func (j *Job) setState(s State) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	if j.state == StateIdle && s != StateIdle {
		j.startedAt = time.Now()
	}
	j.state = s
	return true
}

func (j *Job) finish(err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.completedAt = time.Now()
	if err != nil {
		j.state = StateFailed
		j.err = err.Error()
	} else {
		j.state = StateDone
	}
	if j.cancelFunc != nil {
		j.cancelFunc()
	}
	return true
}

func (j *Job) completedBefore(t time.Time) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state.Terminal() && j.completedAt.Before(t)
}

// Canceled reports whether Cancel was called on the job.
func (j *Job) Canceled() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.canceled
}
