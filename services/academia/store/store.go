// Package store persists scraped snapshots and session material. Two
// backends exist, the embedded sqlite database and a Supabase table
// set; Reliable wraps either with retries and a local fallback so a
// completed scrape is never thrown away because the store was down.
package store

import (
	"context"
	"errors"

	"academia-backend/lib/scrapers/academia"
)

var ErrNotFound = errors.New("not found")

// artifact names, also the filenames of fallback dumps
const (
	ArtifactAttendance = "attendance"
	ArtifactMarks      = "marks"
	ArtifactTimetable  = "timetable"
)

type Store interface {
	// UpsertUser records the owner; idempotent. A non-empty
	// registrationNumber fills in or replaces the stored one, an empty
	// value leaves whatever is already recorded untouched.
	UpsertUser(ctx context.Context, owner, registrationNumber string) error
	// the snapshot upserts replace the previous snapshot wholesale
	UpsertAttendance(ctx context.Context, owner string, snapshot academia.AttendanceSnapshot) error
	UpsertMarks(ctx context.Context, owner string, snapshot academia.MarksSnapshot) error
	UpsertTimetable(ctx context.Context, owner string, snapshot academia.TimetableSnapshot) error

	SetSessionMaterial(ctx context.Context, owner string, material academia.SessionMaterial) error
	// GetSessionMaterial returns ErrNotFound when the owner has never
	// logged in through this deployment.
	GetSessionMaterial(ctx context.Context, owner string) (academia.SessionMaterial, error)
}
