// Package academia is the job layer over the portal scraper: it owns
// the browser lifecycle per run, enforces one run per student at a
// time, and lands every scraped artifact in the store.
package academia

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"academia-backend/lib/browser"
	"academia-backend/lib/restyutil"
	portal "academia-backend/lib/scrapers/academia"
	"academia-backend/lib/token"
	"academia-backend/services/academia/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/academia")

// ErrOwnerBusy rejects a submit while the owner already has a job in
// flight; the response carries the existing job so clients can poll it.
var ErrOwnerBusy = errors.New("a job is already running for this user")

const (
	KindScrape    = "scrape"
	KindTimetable = "scrape-timetable"
	KindAll       = "scrape-all"
)

// one detached run may at worst do a login plus three slow page loads
const runTimeout = 10 * time.Minute

type RunRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Batch overrides batch extraction when set; must be "1" or "2".
	Batch string `json:"batch"`
	Kind  string `json:"-"`
}

type Service struct {
	store   store.Store
	jobs    *JobStore
	issuer  token.Issuer
	browser browser.Options
	output  restyutil.InstrumentOutput

	// run is swappable so job plumbing is testable without a browser
	run func(ctx context.Context, req RunRequest) ([]ArtifactResult, error)
}

func NewService(st store.Store, issuer token.Issuer, opts browser.Options, output restyutil.InstrumentOutput) *Service {
	s := &Service{
		store:   st,
		jobs:    NewJobStore(),
		issuer:  issuer,
		browser: opts,
		output:  output,
	}
	s.run = s.execute
	return s
}

func (s *Service) Jobs() *JobStore {
	return s.jobs
}

// Submit registers a job and runs it detached from the caller's
// request. An owner with a job already in flight gets ErrOwnerBusy and
// the conflicting job.
func (s *Service) Submit(ctx context.Context, req RunRequest) (Job, error) {
	job, ok := s.jobs.Begin(req.Email, req.Kind)
	if !ok {
		return job, ErrOwnerBusy
	}

	slog.InfoContext(ctx, "job submitted", "job", job.ID, "kind", req.Kind)
	go s.runJob(job.ID, req)
	return job, nil
}

func (s *Service) runJob(jobId string, req RunRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "RunJob")
	defer span.End()
	span.SetAttributes(
		attribute.String("job", jobId),
		attribute.String("kind", req.Kind),
	)

	var artifacts []ArtifactResult
	err := func() (err error) {
		// a scraper panic fails the job, never the process
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(
					ctx, "job panicked",
					"job", jobId,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		artifacts, err = s.run(ctx, req)
		return err
	}()

	errText := ""
	if err != nil {
		errText = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, errText)
	}
	s.jobs.Finish(jobId, errText, artifacts)
	slog.InfoContext(ctx, "job finished", "job", jobId, "err", errText)
}

// login gets the client to a verified session, reusing stored cookies
// when a cheap liveness probe says they still work.
func (s *Service) login(ctx context.Context, client *portal.Client, owner string) error {
	material, err := s.store.GetSessionMaterial(ctx, owner)
	if err == nil && len(material.Cookies) > 0 {
		alive, livenessErr := portal.CheckCookieLiveness(ctx, material.Cookies, s.output)
		if livenessErr != nil {
			slog.WarnContext(ctx, "cookie liveness probe failed", "err", livenessErr)
		}
		if alive || livenessErr != nil {
			err := client.LoginWithCookies(ctx, material.Cookies)
			if err == nil {
				return nil
			}
			if !errors.Is(err, portal.ErrCookiesInvalid) {
				return err
			}
			slog.InfoContext(ctx, "stored cookies rejected, falling back to credentials")
		}
	} else if !errors.Is(err, store.ErrNotFound) && err != nil {
		slog.WarnContext(ctx, "could not load session material", "err", err)
	}

	return client.Login(ctx)
}

func (s *Service) execute(ctx context.Context, req RunRequest) ([]ArtifactResult, error) {
	ctx, span := tracer.Start(ctx, "Execute")
	defer span.End()

	if err := s.store.UpsertUser(ctx, req.Email, ""); err != nil {
		return nil, fmt.Errorf("record user: %w", err)
	}

	session, err := browser.Acquire(ctx, s.browser)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer session.Release()

	client := portal.NewClient(session, s.issuer, storeSink{s.store}, req.Email, req.Password)
	if err := s.login(ctx, client, req.Email); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var artifacts []ArtifactResult
	record := func(artifact string, err error) {
		result := ArtifactResult{Artifact: artifact, OK: err == nil}
		if err != nil {
			result.Error = err.Error()
			slog.ErrorContext(ctx, "artifact failed", "artifact", artifact, "err", err)
		}
		artifacts = append(artifacts, result)
	}

	// attendance and marks come off one page load; they always run
	// before the timetable so a timetable failure cannot cost them
	if req.Kind == KindScrape || req.Kind == KindAll {
		attendance, marks, err := client.ScrapeAttendanceAndMarks(ctx)
		if attendance != nil {
			record(store.ArtifactAttendance, s.store.UpsertAttendance(ctx, req.Email, *attendance))
			// the user record learns its registration number from the
			// first attendance scrape that resolves one
			if regErr := s.store.UpsertUser(ctx, req.Email, attendance.RegistrationNumber); regErr != nil {
				slog.WarnContext(ctx, "could not record registration number", "err", regErr)
			}
		} else {
			record(store.ArtifactAttendance, err)
		}
		if marks != nil {
			record(store.ArtifactMarks, s.store.UpsertMarks(ctx, req.Email, *marks))
		} else {
			record(store.ArtifactMarks, err)
		}
	}

	if req.Kind == KindTimetable || req.Kind == KindAll {
		snapshot, err := client.ScrapeTimetable(ctx, req.Batch)
		if snapshot != nil {
			record(store.ArtifactTimetable, s.store.UpsertTimetable(ctx, req.Email, *snapshot))
		} else {
			record(store.ArtifactTimetable, err)
		}
	}

	for _, a := range artifacts {
		if !a.OK {
			return artifacts, fmt.Errorf("%s: %s", a.Artifact, a.Error)
		}
	}
	return artifacts, nil
}

// Login runs the credential flow synchronously and returns the minted
// session token. Used by the login endpoint; scrape jobs go through
// Submit.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	if err := s.store.UpsertUser(ctx, email, ""); err != nil {
		return "", fmt.Errorf("record user: %w", err)
	}

	session, err := browser.Acquire(ctx, s.browser)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer session.Release()

	client := portal.NewClient(session, s.issuer, storeSink{s.store}, email, password)
	if err := client.Login(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	material, err := s.store.GetSessionMaterial(ctx, email)
	if err != nil {
		return "", fmt.Errorf("load minted session: %w", err)
	}
	return material.Token, nil
}

// storeSink adapts the store to the scraper's session sink.
type storeSink struct {
	store store.Store
}

func (s storeSink) SetSessionMaterial(ctx context.Context, owner string, material portal.SessionMaterial) error {
	return s.store.SetSessionMaterial(ctx, owner, material)
}
