package academia

import (
	"encoding/json"
	"testing"
	"time"

	"academia-backend/lib/timezone"

	"github.com/stretchr/testify/require"
)

func TestJobStoreOwnerExclusivity(t *testing.T) {
	s := NewJobStore()

	first, ok := s.Begin("a@srmist.edu.in", "scrape")
	require.True(t, ok)

	// a second submit for the same owner is rejected and reports the
	// job already in flight
	conflict, ok := s.Begin("a@srmist.edu.in", "scrape-all")
	require.False(t, ok)
	require.Equal(t, first.ID, conflict.ID)

	// a different owner is unaffected
	_, ok = s.Begin("b@srmist.edu.in", "scrape")
	require.True(t, ok)

	// finishing releases the owner
	s.Finish(first.ID, "", nil)
	_, ok = s.Begin("a@srmist.edu.in", "scrape")
	require.True(t, ok)
}

func TestJobStoreFinishIsTerminalOnce(t *testing.T) {
	s := NewJobStore()
	job, ok := s.Begin("a@srmist.edu.in", "scrape")
	require.True(t, ok)

	got, _ := s.Get(job.ID)
	require.Equal(t, JobRunning, got.Status)
	require.Nil(t, got.FinishedAt)

	s.Finish(job.ID, "browser died", []ArtifactResult{{Artifact: "attendance", OK: false, Error: "browser died"}})
	got, _ = s.Get(job.ID)
	require.Equal(t, JobError, got.Status)
	require.Equal(t, "browser died", got.Error)
	require.NotNil(t, got.FinishedAt)

	// a second finish does not overwrite the terminal state
	s.Finish(job.ID, "", nil)
	got, _ = s.Get(job.ID)
	require.Equal(t, JobError, got.Status)
	require.Equal(t, "browser died", got.Error)

	// terminal jobs stay queryable until swept
	_, ok = s.Get(job.ID)
	require.True(t, ok)
}

func TestJobStoreSweepHonorsRetention(t *testing.T) {
	s := NewJobStore()

	done, _ := s.Begin("a@srmist.edu.in", "scrape")
	s.Finish(done.ID, "", nil)

	running, _ := s.Begin("b@srmist.edu.in", "scrape")

	// nothing is old enough yet
	require.Zero(t, s.sweep(timezone.Now()))

	// past the retention window the terminal job goes, the running one
	// stays no matter how old
	removed := s.sweep(timezone.Now().Add(jobRetention + time.Minute))
	require.Equal(t, 1, removed)

	_, ok := s.Get(done.ID)
	require.False(t, ok)
	_, ok = s.Get(running.ID)
	require.True(t, ok)
}

func TestJobStatusWireFormat(t *testing.T) {
	s := NewJobStore()
	job, ok := s.Begin("a@srmist.edu.in", "scrape")
	require.True(t, ok)

	// in-flight jobs report "running" and no finished timestamp
	raw, err := json.Marshal(job)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"status":"running"`)
	require.NotContains(t, string(raw), "finished_at")

	s.Finish(job.ID, "", nil)
	final, _ := s.Get(job.ID)
	raw, err = json.Marshal(final)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"status":"completed"`)
	require.Contains(t, string(raw), `"finished_at"`)
	require.NotContains(t, string(raw), "0001-01-01")
}

func TestJobStoreUnknownJob(t *testing.T) {
	s := NewJobStore()
	_, ok := s.Get("nope")
	require.False(t, ok)
}
