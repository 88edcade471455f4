package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"academia-backend/lib/scrapers/academia"
	"academia-backend/lib/timezone"
	"academia-backend/services/academia/store/db"
)

// Sqlite persists everything in the embedded database opened from
// configsqlite; the default backend for single-node deployments.
type Sqlite struct {
	qry *db.Queries
}

func NewSqlite(database *sql.DB) Sqlite {
	return Sqlite{qry: db.New(database)}
}

func (s Sqlite) UpsertUser(ctx context.Context, owner, registrationNumber string) error {
	return s.qry.UpsertUser(ctx, db.UpsertUserParams{
		Email:              owner,
		RegistrationNumber: registrationNumber,
		CreatedAt:          timezone.Now().Unix(),
	})
}

func (s Sqlite) upsertSnapshot(ctx context.Context, owner, artifact string, snapshot any) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", artifact, err)
	}
	return s.qry.UpsertSnapshot(ctx, db.UpsertSnapshotParams{
		Owner:     owner,
		Artifact:  artifact,
		Payload:   string(payload),
		UpdatedAt: timezone.Now().Unix(),
	})
}

func (s Sqlite) UpsertAttendance(ctx context.Context, owner string, snapshot academia.AttendanceSnapshot) error {
	return s.upsertSnapshot(ctx, owner, ArtifactAttendance, snapshot)
}

func (s Sqlite) UpsertMarks(ctx context.Context, owner string, snapshot academia.MarksSnapshot) error {
	return s.upsertSnapshot(ctx, owner, ArtifactMarks, snapshot)
}

func (s Sqlite) UpsertTimetable(ctx context.Context, owner string, snapshot academia.TimetableSnapshot) error {
	return s.upsertSnapshot(ctx, owner, ArtifactTimetable, snapshot)
}

func (s Sqlite) SetSessionMaterial(ctx context.Context, owner string, material academia.SessionMaterial) error {
	cookies, err := json.Marshal(material.Cookies)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	return s.qry.SetSession(ctx, db.SetSessionParams{
		Owner:     owner,
		Cookies:   string(cookies),
		Token:     material.Token,
		UpdatedAt: material.UpdatedAt.Unix(),
	})
}

func (s Sqlite) GetSessionMaterial(ctx context.Context, owner string) (academia.SessionMaterial, error) {
	row, err := s.qry.GetSession(ctx, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return academia.SessionMaterial{}, ErrNotFound
	}
	if err != nil {
		return academia.SessionMaterial{}, err
	}

	var cookies map[string]string
	if err := json.Unmarshal([]byte(row.Cookies), &cookies); err != nil {
		return academia.SessionMaterial{}, fmt.Errorf("decode cookies: %w", err)
	}
	return academia.SessionMaterial{
		Cookies:   cookies,
		Token:     row.Token,
		UpdatedAt: time.Unix(row.UpdatedAt, 0).In(timezone.Location),
	}, nil
}

// GetSnapshot returns the raw stored payload for an artifact, used by
// the read endpoints and the CLI.
func (s Sqlite) GetSnapshot(ctx context.Context, owner, artifact string) (string, error) {
	row, err := s.qry.GetSnapshot(ctx, db.GetSnapshotParams{Owner: owner, Artifact: artifact})
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return row.Payload, nil
}
