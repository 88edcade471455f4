package academia

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mazen160/go-random"
)

// PageKind selects the readiness profile for a portal page: how long
// its widget usually takes to render and what text marks it done.
type PageKind int

const (
	PageAttendance PageKind = iota
	PageTimetable
	PageProfile
)

// settle budgets are vars so tests can shrink them
var (
	attendanceSettle = 15 * time.Second
	timetableSettle  = 20 * time.Second
	profileSettle    = 5 * time.Second

	readyPollInterval = 2 * time.Second
)

func (k PageKind) url() string {
	switch k {
	case PageTimetable:
		return TimetablePageURL
	case PageProfile:
		return ProfilePageURL
	}
	return AttendancePageURL
}

func (k PageKind) settleBudget() time.Duration {
	switch k {
	case PageTimetable:
		return timetableSettle
	case PageProfile:
		return profileSettle
	}
	return attendanceSettle
}

func (k PageKind) marker() string {
	switch k {
	case PageTimetable:
		return "Course Code"
	case PageProfile:
		return "Academic Profile"
	}
	return "Course Code"
}

func (k PageKind) String() string {
	switch k {
	case PageTimetable:
		return "timetable"
	case PageProfile:
		return "profile"
	}
	return "attendance"
}

// settle sleeps for roughly d plus up to an eighth of random jitter so
// repeated runs do not hit the portal on a fixed cadence. Context
// cancellation cuts the sleep short.
func settle(ctx context.Context, d time.Duration) {
	jitter := time.Duration(0)
	if n, err := random.IntRange(0, int(d/8)+1); err == nil {
		jitter = time.Duration(n)
	}
	select {
	case <-ctx.Done():
	case <-time.After(d + jitter):
	}
}

// OpenPage navigates to the page and polls until its marker text shows
// up in the rendered document. Exhausting the settle budget is not an
// error: the current HTML is returned and extraction decides whether
// anything usable rendered.
func (c *Client) OpenPage(ctx context.Context, kind PageKind) (string, error) {
	ctx, span := tracer.Start(ctx, "academia.OpenPage."+kind.String())
	defer span.End()

	if err := c.ensurePage(ctx); err != nil {
		return "", err
	}
	if err := c.dom.Navigate(kind.url()); err != nil {
		return "", err
	}

	deadline := time.Now().Add(kind.settleBudget())
	var raw string
	for {
		settle(ctx, readyPollInterval)

		var err error
		raw, err = c.dom.HTML()
		if err != nil {
			return "", err
		}
		if strings.Contains(raw, kind.marker()) {
			return raw, nil
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			break
		}
	}

	slog.WarnContext(
		ctx, "page marker never rendered, proceeding with current html",
		"page", kind.String(),
		"marker", kind.marker(),
	)
	return raw, nil
}
