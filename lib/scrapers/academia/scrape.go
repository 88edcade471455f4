package academia

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"academia-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

func parseDocument(raw string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(raw))
}

// ScrapeAttendanceAndMarks loads the attendance page once and extracts
// both artifacts from it; the portal renders the marks table on the
// same page. Marks extraction failing does not discard attendance, the
// caller gets whatever succeeded plus the first error.
func (c *Client) ScrapeAttendanceAndMarks(ctx context.Context) (*AttendanceSnapshot, *MarksSnapshot, error) {
	ctx, span := tracer.Start(ctx, "academia.ScrapeAttendanceAndMarks")
	defer span.End()

	raw, err := c.OpenPage(ctx, PageAttendance)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse attendance page: %w", err)
	}

	regNumber, err := ExtractRegistrationNumber(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("registration number: %w", err)
	}

	now := timezone.Now()

	records, skipped, err := ExtractAttendance(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("attendance: %w", err)
	}
	if skipped > 0 {
		slog.WarnContext(ctx, "skipped malformed attendance rows", "count", skipped)
	}
	attendance := &AttendanceSnapshot{
		RegistrationNumber: regNumber,
		LastUpdated:        now,
		Records:            records,
	}

	marksRecords, skipped, err := ExtractMarks(doc, records)
	if err != nil {
		slog.WarnContext(ctx, "marks extraction failed", "err", err)
		return attendance, nil, fmt.Errorf("marks: %w", err)
	}
	if skipped > 0 {
		slog.WarnContext(ctx, "skipped malformed marks rows", "count", skipped)
	}
	marks := &MarksSnapshot{
		RegistrationNumber: regNumber,
		LastUpdated:        now,
		Records:            marksRecords,
	}

	return attendance, marks, nil
}

// ScrapeTimetable loads the timetable page, resolves the batch
// (explicit override first, then the page itself, then the profile
// page) and reconciles the course table against the canonical schedule.
func (c *Client) ScrapeTimetable(ctx context.Context, explicitBatch string) (*TimetableSnapshot, error) {
	ctx, span := tracer.Start(ctx, "academia.ScrapeTimetable")
	defer span.End()

	raw, err := c.OpenPage(ctx, PageTimetable)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("parse timetable page: %w", err)
	}

	// the script probe reads the widget's own row data, which is often
	// populated before the table finishes materializing in the DOM
	rows, probeErr := c.courseRowsFromScript()
	if probeErr != nil {
		slog.DebugContext(ctx, "script probe for course rows failed", "err", probeErr)
	}
	if len(rows) == 0 {
		rows = ExtractCourseTable(doc)
	}
	if len(rows) == 0 {
		err := fmt.Errorf("course table: %w", ErrExtractionNotFound)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	extracted, err := ExtractBatch(doc)
	if err != nil {
		slog.DebugContext(ctx, "batch not on timetable page, trying profile", "err", err)
		extracted, err = c.batchFromProfile(ctx)
		if err != nil {
			slog.DebugContext(ctx, "batch not on profile page either", "err", err)
		}
	}

	batch, err := ResolveBatch(explicitBatch, extracted)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	merged, err := MergeTimetable(rows, batch)
	if err != nil {
		return nil, err
	}

	return &TimetableSnapshot{
		Batch:       batch,
		Merged:      merged,
		Courses:     rows,
		LastUpdated: timezone.Now(),
	}, nil
}

// courseRowsJS maps the rendered course table into json inside the
// page, mirroring the header-index column mapping done in Go.
const courseRowsJS = `() => {
	const table = document.querySelector("table.course_tbl");
	if (!table) return "";
	const rows = Array.from(table.querySelectorAll("tr"));
	if (rows.length < 2) return "";
	const headers = Array.from(rows[0].querySelectorAll("th, td"))
		.map(c => c.innerText.trim());
	const col = name => headers.findIndex(h => h.includes(name));
	const idx = {
		code: col("Course Code"), title: col("Course Title"), slot: col("Slot"),
		gcr: col("GCR Code"), faculty: col("Faculty"), type: col("Course Type"),
		room: col("Room"),
	};
	if (idx.code < 0 || idx.title < 0 || idx.slot < 0) return "";
	const pick = (cells, i) => (i >= 0 && i < cells.length) ? cells[i].innerText.trim() : "";
	const out = [];
	for (const row of rows.slice(1)) {
		const cells = Array.from(row.querySelectorAll("td"));
		const code = pick(cells, idx.code);
		const title = pick(cells, idx.title);
		if (!code || !title) continue;
		out.push({
			course_code: code, course_title: title, slot: pick(cells, idx.slot),
			gcr_code: pick(cells, idx.gcr), faculty_name: pick(cells, idx.faculty),
			course_type: pick(cells, idx.type), room_no: pick(cells, idx.room),
		});
	}
	return out.length ? JSON.stringify(out) : "";
}`

func (c *Client) courseRowsFromScript() ([]CourseRow, error) {
	raw, err := c.dom.Eval(courseRowsJS)
	if err != nil || raw == "" {
		return nil, err
	}
	var rows []CourseRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("decode script probe rows: %w", err)
	}
	return rows, nil
}

func (c *Client) batchFromProfile(ctx context.Context) (string, error) {
	raw, err := c.OpenPage(ctx, PageProfile)
	if err != nil {
		return "", err
	}
	doc, err := parseDocument(raw)
	if err != nil {
		return "", err
	}
	return ExtractBatch(doc)
}
