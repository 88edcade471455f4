package db

import (
	"context"
)

const upsertUser = `
INSERT INTO users (email, registration_number, created_at)
VALUES (?, ?, ?)
ON CONFLICT (email) DO UPDATE
SET registration_number = excluded.registration_number
WHERE excluded.registration_number != ''
`

type UpsertUserParams struct {
	Email              string
	RegistrationNumber string
	CreatedAt          int64
}

func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) error {
	_, err := q.db.ExecContext(ctx, upsertUser, arg.Email, arg.RegistrationNumber, arg.CreatedAt)
	return err
}

const getUser = `
SELECT registration_number, created_at FROM users
WHERE email = ?
`

type GetUserRow struct {
	RegistrationNumber string
	CreatedAt          int64
}

func (q *Queries) GetUser(ctx context.Context, email string) (GetUserRow, error) {
	row := q.db.QueryRowContext(ctx, getUser, email)
	var out GetUserRow
	err := row.Scan(&out.RegistrationNumber, &out.CreatedAt)
	return out, err
}

const upsertSnapshot = `
INSERT INTO snapshots (owner, artifact, payload, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (owner, artifact) DO UPDATE
SET payload = excluded.payload, updated_at = excluded.updated_at
`

type UpsertSnapshotParams struct {
	Owner     string
	Artifact  string
	Payload   string
	UpdatedAt int64
}

func (q *Queries) UpsertSnapshot(ctx context.Context, arg UpsertSnapshotParams) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshot, arg.Owner, arg.Artifact, arg.Payload, arg.UpdatedAt)
	return err
}

const getSnapshot = `
SELECT payload, updated_at FROM snapshots
WHERE owner = ? AND artifact = ?
`

type GetSnapshotParams struct {
	Owner    string
	Artifact string
}

type GetSnapshotRow struct {
	Payload   string
	UpdatedAt int64
}

func (q *Queries) GetSnapshot(ctx context.Context, arg GetSnapshotParams) (GetSnapshotRow, error) {
	row := q.db.QueryRowContext(ctx, getSnapshot, arg.Owner, arg.Artifact)
	var out GetSnapshotRow
	err := row.Scan(&out.Payload, &out.UpdatedAt)
	return out, err
}

const setSession = `
INSERT INTO sessions (owner, cookies, token, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (owner) DO UPDATE
SET cookies = excluded.cookies, token = excluded.token, updated_at = excluded.updated_at
`

type SetSessionParams struct {
	Owner     string
	Cookies   string
	Token     string
	UpdatedAt int64
}

func (q *Queries) SetSession(ctx context.Context, arg SetSessionParams) error {
	_, err := q.db.ExecContext(ctx, setSession, arg.Owner, arg.Cookies, arg.Token, arg.UpdatedAt)
	return err
}

const getSession = `
SELECT cookies, token, updated_at FROM sessions
WHERE owner = ?
`

type GetSessionRow struct {
	Cookies   string
	Token     string
	UpdatedAt int64
}

func (q *Queries) GetSession(ctx context.Context, owner string) (GetSessionRow, error) {
	row := q.db.QueryRowContext(ctx, getSession, owner)
	var out GetSessionRow
	err := row.Scan(&out.Cookies, &out.Token, &out.UpdatedAt)
	return out, err
}
