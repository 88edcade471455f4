package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"academia-backend/lib/retryutil"
	"academia-backend/lib/scrapers/academia"

	"github.com/stretchr/testify/require"
)

// flakyStore fails every call until `failures` runs out.
type flakyStore struct {
	failures int
	calls    int
	last     academia.AttendanceSnapshot
	material map[string]academia.SessionMaterial
}

func (f *flakyStore) step() error {
	f.calls++
	if f.calls <= f.failures {
		return fmt.Errorf("backend down")
	}
	return nil
}

func (f *flakyStore) UpsertUser(ctx context.Context, owner, registrationNumber string) error {
	return f.step()
}

func (f *flakyStore) UpsertAttendance(ctx context.Context, owner string, snapshot academia.AttendanceSnapshot) error {
	if err := f.step(); err != nil {
		return err
	}
	f.last = snapshot
	return nil
}

func (f *flakyStore) UpsertMarks(ctx context.Context, owner string, snapshot academia.MarksSnapshot) error {
	return f.step()
}

func (f *flakyStore) UpsertTimetable(ctx context.Context, owner string, snapshot academia.TimetableSnapshot) error {
	return f.step()
}

func (f *flakyStore) SetSessionMaterial(ctx context.Context, owner string, material academia.SessionMaterial) error {
	return f.step()
}

func (f *flakyStore) GetSessionMaterial(ctx context.Context, owner string) (academia.SessionMaterial, error) {
	material, ok := f.material[owner]
	if !ok {
		return academia.SessionMaterial{}, ErrNotFound
	}
	return material, nil
}

func fastStorageRetries(t *testing.T) {
	t.Helper()
	prev := retryutil.Storage
	retryutil.Storage.Interval = time.Millisecond
	t.Cleanup(func() { retryutil.Storage = prev })
}

func TestReliableRetriesThroughTransientFailure(t *testing.T) {
	fastStorageRetries(t)
	inner := &flakyStore{failures: 2}
	r := NewReliable(inner, t.TempDir())

	snapshot := academia.AttendanceSnapshot{RegistrationNumber: "RA2211003010042"}
	err := r.UpsertAttendance(context.Background(), "a@srmist.edu.in", snapshot)
	require.NoError(t, err)
	require.Equal(t, 3, inner.calls, "succeeds on the third attempt")
	require.Equal(t, "RA2211003010042", inner.last.RegistrationNumber)
}

func TestReliableFallsBackToLocalDump(t *testing.T) {
	fastStorageRetries(t)
	dir := t.TempDir()
	inner := &flakyStore{failures: 1 << 30}
	r := NewReliable(inner, dir)

	snapshot := academia.AttendanceSnapshot{
		RegistrationNumber: "RA2211003010042",
		Records:            []academia.AttendanceRecord{{CourseCode: "21CSC204J"}},
	}
	err := r.UpsertAttendance(context.Background(), "a@srmist.edu.in", snapshot)
	require.NoError(t, err, "a dumped snapshot is not a failed run")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Name(), "a@srmist.edu.in-attendance-")

	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	var dumped academia.AttendanceSnapshot
	require.NoError(t, json.Unmarshal(raw, &dumped))
	require.Equal(t, snapshot.RegistrationNumber, dumped.RegistrationNumber)
}

func TestReliableNoFallbackDirSurfacesError(t *testing.T) {
	fastStorageRetries(t)
	inner := &flakyStore{failures: 1 << 30}
	r := NewReliable(inner, "")

	err := r.UpsertMarks(context.Background(), "a@srmist.edu.in", academia.MarksSnapshot{})
	require.Error(t, err)
}

func TestReliableMissingSessionIsNotRetried(t *testing.T) {
	fastStorageRetries(t)
	inner := &flakyStore{material: map[string]academia.SessionMaterial{}}
	r := NewReliable(inner, t.TempDir())

	_, err := r.GetSessionMaterial(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}
