package academia

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"academia-backend/lib/timezone"

	"github.com/google/uuid"
)

type JobStatus string

// the status strings are the wire contract of /api/status; clients
// poll until they see "completed" or "error"
const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobError     JobStatus = "error"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// ArtifactResult is the per-artifact outcome of a run; a run can
// deliver attendance while timetable failed.
type ArtifactResult struct {
	Artifact string `json:"artifact"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

type Job struct {
	ID        string           `json:"id"`
	Owner     string           `json:"owner"`
	Kind      string           `json:"kind"`
	Status    JobStatus        `json:"status"`
	Error     string           `json:"error,omitempty"`
	Artifacts []ArtifactResult `json:"artifacts,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	// nil until the job reaches a terminal status
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

const (
	jobRetention     = 2 * time.Hour
	jobSweepInterval = 30 * time.Minute
)

// JobStore tracks jobs in memory and enforces one active job per owner.
// Terminal jobs stay queryable for the retention window, then the sweep
// daemon drops them.
type JobStore struct {
	mu sync.Mutex
	// job id -> job
	jobs map[string]*Job
	// owner -> active (non-terminal) job id
	active map[string]string
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs:   map[string]*Job{},
		active: map[string]string{},
	}
}

// Begin registers a job for the owner. ok is false while the owner
// already has a non-terminal job; the existing job is returned so the
// caller can report the conflict. Jobs are born running; the handoff
// to the worker goroutine is immediate, there is no queue.
func (s *JobStore) Begin(owner, kind string) (job Job, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if activeId, busy := s.active[owner]; busy {
		return *s.jobs[activeId], false
	}

	j := &Job{
		ID:        uuid.NewString(),
		Owner:     owner,
		Kind:      kind,
		Status:    JobRunning,
		CreatedAt: timezone.Now(),
	}
	s.jobs[j.ID] = j
	s.active[owner] = j.ID
	return *j, true
}

func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Finish moves the job to a terminal status exactly once and releases
// the owner's exclusivity. Later calls on the same job are ignored.
func (s *JobStore) Finish(id string, errText string, artifacts []ArtifactResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status.Terminal() {
		return
	}

	j.Artifacts = artifacts
	now := timezone.Now()
	j.FinishedAt = &now
	if errText == "" {
		j.Status = JobCompleted
	} else {
		j.Status = JobError
		j.Error = errText
	}

	if s.active[j.Owner] == id {
		delete(s.active, j.Owner)
	}
}

// ActiveCount reports how many non-terminal jobs exist, used by the
// health endpoints.
func (s *JobStore) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *JobStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, j := range s.jobs {
		if j.Status.Terminal() && j.FinishedAt != nil && now.Sub(*j.FinishedAt) > jobRetention {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// SweepDaemon drops expired terminal jobs on a fixed cadence until the
// context ends. Run it as a goroutine next to the server.
func (s *JobStore) SweepDaemon(ctx context.Context) {
	ticker := time.NewTicker(jobSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.sweep(timezone.Now()); removed > 0 {
				slog.InfoContext(ctx, "swept expired jobs", "count", removed)
			}
		}
	}
}
