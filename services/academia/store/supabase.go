package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"academia-backend/lib/restyutil"
	"academia-backend/lib/scrapers/academia"
	"academia-backend/lib/timezone"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var supabaseTracer = otel.Tracer("services/academia/store/supabase")

type SupabaseConfig struct {
	Url string `json:"url"`
	Key string `json:"key"`
	// Table defaults to "users"
	Table string `json:"table"`
}

// Supabase persists through the PostgREST api of a hosted postgres.
// One row per owner; each artifact lives in its own json column and is
// replaced on upsert.
type Supabase struct {
	client *resty.Client
	table  string
}

func NewSupabase(config SupabaseConfig, output restyutil.InstrumentOutput) Supabase {
	table := config.Table
	if table == "" {
		table = "users"
	}
	client := resty.New().
		SetBaseURL(config.Url+"/rest/v1").
		SetTimeout(30*time.Second).
		SetHeader("apikey", config.Key).
		SetHeader("Authorization", "Bearer "+config.Key).
		SetHeader("Content-Type", "application/json")
	restyutil.InstrumentClient(client, supabaseTracer, output)
	return Supabase{client: client, table: table}
}

func (s Supabase) rowExists(ctx context.Context, owner string) (bool, error) {
	var rows []map[string]any
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("email", "eq."+owner).
		SetQueryParam("select", "email").
		SetResult(&rows).
		Get("/" + s.table)
	if err != nil {
		return false, err
	}
	if res.IsError() {
		return false, fmt.Errorf("select %s: %s", s.table, res.Status())
	}
	return len(rows) > 0, nil
}

// upsertColumns implements the select-then-update-else-insert dance;
// PostgREST's native upsert needs a unique constraint configured on the
// table, which hosted instances do not always have.
func (s Supabase) upsertColumns(ctx context.Context, owner string, columns map[string]any) error {
	exists, err := s.rowExists(ctx, owner)
	if err != nil {
		return err
	}

	columns["updated_at"] = timezone.Now().Format(time.RFC3339)

	var res *resty.Response
	if exists {
		res, err = s.client.R().
			SetContext(ctx).
			SetQueryParam("email", "eq."+owner).
			SetBody(columns).
			Patch("/" + s.table)
	} else {
		columns["email"] = owner
		res, err = s.client.R().
			SetContext(ctx).
			SetBody(columns).
			Post("/" + s.table)
	}
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("upsert %s: %s", s.table, res.Status())
	}
	return nil
}

func (s Supabase) UpsertUser(ctx context.Context, owner, registrationNumber string) error {
	if registrationNumber != "" {
		return s.upsertColumns(ctx, owner, map[string]any{
			"registration_number": registrationNumber,
		})
	}
	exists, err := s.rowExists(ctx, owner)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.upsertColumns(ctx, owner, map[string]any{})
}

func (s Supabase) upsertArtifact(ctx context.Context, owner, artifact string, snapshot any) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", artifact, err)
	}
	return s.upsertColumns(ctx, owner, map[string]any{
		artifact: json.RawMessage(payload),
	})
}

func (s Supabase) UpsertAttendance(ctx context.Context, owner string, snapshot academia.AttendanceSnapshot) error {
	return s.upsertArtifact(ctx, owner, ArtifactAttendance, snapshot)
}

func (s Supabase) UpsertMarks(ctx context.Context, owner string, snapshot academia.MarksSnapshot) error {
	return s.upsertArtifact(ctx, owner, ArtifactMarks, snapshot)
}

func (s Supabase) UpsertTimetable(ctx context.Context, owner string, snapshot academia.TimetableSnapshot) error {
	return s.upsertArtifact(ctx, owner, ArtifactTimetable, snapshot)
}

func (s Supabase) SetSessionMaterial(ctx context.Context, owner string, material academia.SessionMaterial) error {
	cookies, err := json.Marshal(material.Cookies)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	return s.upsertColumns(ctx, owner, map[string]any{
		"cookies": json.RawMessage(cookies),
		"token":   material.Token,
	})
}

func (s Supabase) GetSessionMaterial(ctx context.Context, owner string) (academia.SessionMaterial, error) {
	var rows []struct {
		Cookies   map[string]string `json:"cookies"`
		Token     string            `json:"token"`
		UpdatedAt time.Time         `json:"updated_at"`
	}
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("email", "eq."+owner).
		SetQueryParam("select", "cookies,token,updated_at").
		SetResult(&rows).
		Get("/" + s.table)
	if err != nil {
		return academia.SessionMaterial{}, err
	}
	// a rejected request (bad key, rls denial) decodes to zero rows
	// too; it must surface as an error, not as an absent session
	if res.IsError() {
		if res.StatusCode() == http.StatusNotFound {
			return academia.SessionMaterial{}, ErrNotFound
		}
		return academia.SessionMaterial{}, fmt.Errorf("select %s: %s", s.table, res.Status())
	}
	if len(rows) == 0 {
		return academia.SessionMaterial{}, ErrNotFound
	}
	row := rows[0]
	if row.Token == "" && len(row.Cookies) == 0 {
		return academia.SessionMaterial{}, ErrNotFound
	}
	return academia.SessionMaterial{
		Cookies:   row.Cookies,
		Token:     row.Token,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
