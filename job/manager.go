// Package job keeps the registry of stitch jobs and the execution slots they share.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"clipstitch/config"

	"github.com/lithammer/shortuuid/v4"
)

var (
	ErrNotFound = errors.New("job not found")
	// ErrFinished is returned when canceling a job that already completed.
	ErrFinished = errors.New("job already finished")
)

type Manager struct {
	cfg    *config.Config
	jobs   sync.Map
	slots  chan struct{}
	logger *slog.Logger
}

func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	n := cfg.MaxConcurrency
	if n <= 0 {
		n = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		slots:  make(chan struct{}, n),
		logger: logger.With("component", "job"),
	}
}

// Start runs the retention sweep until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("job manager started",
		"max_concurrency", cap(m.slots),
		"retention", m.cfg.JobRetention.String(),
	)
	if m.cfg.JobRetention > 0 {
		go m.cleanupLoop(ctx)
	}
}

// cleanupLoop periodically forgets finished jobs older than the retention window.
func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.JobRetention / 4) // Check 4 times per lifetime
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("cleanup loop shutting down")
			return
		case now := <-ticker.C:
			m.prune(now.Add(-m.cfg.JobRetention))
		}
	}
}

// prune removes finished jobs that completed before cutoff and returns how many it removed.
func (m *Manager) prune(cutoff time.Time) int {
	removed := 0
	m.jobs.Range(func(key, value interface{}) bool {
		if value.(*Job).completedBefore(cutoff) {
			m.jobs.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		m.logger.Debug("pruned finished jobs", "count", removed)
	}
	return removed
}

// Register records a new idle job. The returned context is canceled by Cancel or
// when the job finishes.
func (m *Manager) Register(ctx context.Context, clips int) (*Job, context.Context) {
	jobCtx, cancel := context.WithCancel(ctx)
	j := &Job{
		ID:         fmt.Sprintf("%s_%d", shortuuid.New(), time.Now().Unix()),
		Clips:      clips,
		CreatedAt:  time.Now(),
		state:      StateIdle,
		cancelFunc: cancel,
	}
	m.jobs.Store(j.ID, j)
	m.logger.Debug("job registered", "job_id", j.ID, "clips", clips)
	return j, jobCtx
}

// Transition advances j to s. Finished jobs are left untouched.
func (m *Manager) Transition(j *Job, s State) {
	if j.setState(s) {
		m.logger.Debug("job state", "job_id", j.ID, "state", string(s))
	}
}

// Finish marks j done, or failed when err is non-nil. Only the first call has effect.
func (m *Manager) Finish(j *Job, err error) {
	if !j.finish(err) {
		return
	}
	snap := j.Snapshot()
	elapsed := snap.CompletedAt.Sub(snap.CreatedAt).Milliseconds()
	if err != nil {
		m.logger.Warn("job failed", "job_id", j.ID, "error", err.Error(), "duration_ms", elapsed)
		return
	}
	m.logger.Info("job completed", "job_id", j.ID, "duration_ms", elapsed)
}

// Acquire waits for a free execution slot.
func (m *Manager) Acquire(ctx context.Context) error {
	select {
	case m.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (m *Manager) Release() {
	select {
	case <-m.slots:
	default:
	}
}

func (m *Manager) Get(id string) (*Job, bool) {
	if val, ok := m.jobs.Load(id); ok {
		return val.(*Job), true
	}
	return nil, false
}

// List returns all known jobs, oldest first.
func (m *Manager) List() []*Job {
	var list []*Job
	m.jobs.Range(func(key, value interface{}) bool {
		list = append(list, value.(*Job))
		return true
	})
	sort.Slice(list, func(a, b int) bool {
		return list[a].CreatedAt.Before(list[b].CreatedAt)
	})
	return list
}

// Cancel interrupts an in-flight job through its context.
func (m *Manager) Cancel(id string) error {
	j, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	j.mu.Lock()
	if j.state.Terminal() {
		state := j.state
		j.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel job in state %s", ErrFinished, state)
	}
	j.canceled = true
	cancel := j.cancelFunc
	j.mu.Unlock()

	cancel()
	m.logger.Info("cancellation signal sent", "job_id", id)
	return nil
}
