package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"academia-backend/lib/retryutil"
	"academia-backend/lib/scrapers/academia"
	"academia-backend/lib/timezone"
)

// Reliable wraps a backend with the storage retry schedule and, for
// snapshot upserts, a local json dump as the backstop. A scrape costs a
// full browser session; its output is written somewhere no matter what
// the backend is doing.
type Reliable struct {
	inner Store
	// FallbackDir receives `<owner>-<artifact>-<unix>.json` dumps when
	// the backend stays down through the retry budget.
	fallbackDir string
}

func NewReliable(inner Store, fallbackDir string) Reliable {
	return Reliable{inner: inner, fallbackDir: fallbackDir}
}

func (r Reliable) dumpFallback(ctx context.Context, owner, artifact string, snapshot any) error {
	if r.fallbackDir == "" {
		return fmt.Errorf("no fallback directory configured")
	}
	if err := os.MkdirAll(r.fallbackDir, 0o755); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%s-%d.json", owner, artifact, timezone.Now().Unix())
	path := filepath.Join(r.fallbackDir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return err
	}

	slog.WarnContext(
		ctx, "store unavailable, snapshot dumped locally",
		"artifact", artifact,
		"path", path,
	)
	return nil
}

func (r Reliable) upsert(ctx context.Context, owner, artifact string, snapshot any, op func() error) error {
	err := retryutil.Storage.Do(ctx, "upsert "+artifact, op)
	if err == nil {
		return nil
	}
	if dumpErr := r.dumpFallback(ctx, owner, artifact, snapshot); dumpErr != nil {
		return fmt.Errorf("store failed (%w) and fallback dump failed (%v)", err, dumpErr)
	}
	// the data is preserved on disk, the run itself can report success
	return nil
}

func (r Reliable) UpsertUser(ctx context.Context, owner, registrationNumber string) error {
	return retryutil.Storage.Do(ctx, "upsert user", func() error {
		return r.inner.UpsertUser(ctx, owner, registrationNumber)
	})
}

func (r Reliable) UpsertAttendance(ctx context.Context, owner string, snapshot academia.AttendanceSnapshot) error {
	return r.upsert(ctx, owner, ArtifactAttendance, snapshot, func() error {
		return r.inner.UpsertAttendance(ctx, owner, snapshot)
	})
}

func (r Reliable) UpsertMarks(ctx context.Context, owner string, snapshot academia.MarksSnapshot) error {
	return r.upsert(ctx, owner, ArtifactMarks, snapshot, func() error {
		return r.inner.UpsertMarks(ctx, owner, snapshot)
	})
}

func (r Reliable) UpsertTimetable(ctx context.Context, owner string, snapshot academia.TimetableSnapshot) error {
	return r.upsert(ctx, owner, ArtifactTimetable, snapshot, func() error {
		return r.inner.UpsertTimetable(ctx, owner, snapshot)
	})
}

func (r Reliable) SetSessionMaterial(ctx context.Context, owner string, material academia.SessionMaterial) error {
	return retryutil.Storage.Do(ctx, "set session material", func() error {
		return r.inner.SetSessionMaterial(ctx, owner, material)
	})
}

func (r Reliable) GetSessionMaterial(ctx context.Context, owner string) (academia.SessionMaterial, error) {
	return retryutil.DoValue(ctx, retryutil.Storage, "get session material", func() (academia.SessionMaterial, error) {
		material, err := r.inner.GetSessionMaterial(ctx, owner)
		if err == ErrNotFound {
			// absence is an answer, not a transient fault
			return material, retryutil.Permanent(err)
		}
		return material, err
	})
}
