package academia

import (
	"context"
	"fmt"
	"testing"
	"time"

	"academia-backend/lib/browser"
	"academia-backend/lib/token"
	"academia-backend/services/academia/store"

	"github.com/stretchr/testify/require"
)

func testService(run func(ctx context.Context, req RunRequest) ([]ArtifactResult, error)) *Service {
	s := NewService(nil, token.NewIssuer("test-secret"), browser.Options{}, nil)
	s.run = run
	return s
}

func waitTerminal(t *testing.T, s *Service, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := s.Jobs().Get(id)
		require.True(t, ok)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
	return Job{}
}

func TestSubmitRunsToCompletion(t *testing.T) {
	artifacts := []ArtifactResult{
		{Artifact: store.ArtifactAttendance, OK: true},
		{Artifact: store.ArtifactMarks, OK: true},
	}
	s := testService(func(ctx context.Context, req RunRequest) ([]ArtifactResult, error) {
		return artifacts, nil
	})

	job, err := s.Submit(context.Background(), RunRequest{Email: "a@srmist.edu.in", Kind: KindScrape})
	require.NoError(t, err)
	require.Equal(t, JobRunning, job.Status)

	final := waitTerminal(t, s, job.ID)
	require.Equal(t, JobCompleted, final.Status)
	require.Equal(t, artifacts, final.Artifacts)
}

func TestSubmitRejectsConcurrentOwner(t *testing.T) {
	release := make(chan struct{})
	s := testService(func(ctx context.Context, req RunRequest) ([]ArtifactResult, error) {
		<-release
		return nil, nil
	})

	first, err := s.Submit(context.Background(), RunRequest{Email: "a@srmist.edu.in", Kind: KindScrape})
	require.NoError(t, err)

	conflict, err := s.Submit(context.Background(), RunRequest{Email: "a@srmist.edu.in", Kind: KindAll})
	require.ErrorIs(t, err, ErrOwnerBusy)
	require.Equal(t, first.ID, conflict.ID, "the conflict carries the job already in flight")

	// other owners are not serialized behind it
	_, err = s.Submit(context.Background(), RunRequest{Email: "b@srmist.edu.in", Kind: KindScrape})
	require.NoError(t, err)

	close(release)
	waitTerminal(t, s, first.ID)

	// the owner is free again after the job finishes
	_, err = s.Submit(context.Background(), RunRequest{Email: "a@srmist.edu.in", Kind: KindScrape})
	require.NoError(t, err)
}

func TestSubmitPartialFailureKeepsArtifacts(t *testing.T) {
	s := testService(func(ctx context.Context, req RunRequest) ([]ArtifactResult, error) {
		artifacts := []ArtifactResult{
			{Artifact: store.ArtifactAttendance, OK: true},
			{Artifact: store.ArtifactTimetable, OK: false, Error: "could not resolve batch"},
		}
		return artifacts, fmt.Errorf("timetable: could not resolve batch")
	})

	job, err := s.Submit(context.Background(), RunRequest{Email: "a@srmist.edu.in", Kind: KindAll})
	require.NoError(t, err)

	final := waitTerminal(t, s, job.ID)
	require.Equal(t, JobError, final.Status)
	require.Contains(t, final.Error, "could not resolve batch")
	// the successful artifact is still reported
	require.Len(t, final.Artifacts, 2)
	require.True(t, final.Artifacts[0].OK)
}

func TestSubmitPanicBecomesJobError(t *testing.T) {
	s := testService(func(ctx context.Context, req RunRequest) ([]ArtifactResult, error) {
		panic("selector vanished")
	})

	job, err := s.Submit(context.Background(), RunRequest{Email: "a@srmist.edu.in", Kind: KindScrape})
	require.NoError(t, err)

	final := waitTerminal(t, s, job.ID)
	require.Equal(t, JobError, final.Status)
	require.Contains(t, final.Error, "selector vanished")

	// the panic released the owner
	_, err = s.Submit(context.Background(), RunRequest{Email: "a@srmist.edu.in", Kind: KindScrape})
	require.NoError(t, err)
}
