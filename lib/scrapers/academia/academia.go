// Package academia scrapes the SRM Academia portal. The portal is a
// javascript-heavy single page app with no API surface: everything here
// works against rendered DOM reached through a real browser, with tiered
// fallbacks because the markup changes without notice.
package academia

import (
	"errors"
	"time"
)

const (
	BaseURL           = "https://academia.srmist.edu.in"
	LoginURL          = BaseURL
	AttendancePageURL = BaseURL + "/#Page:My_Attendance"
	TimetablePageURL  = BaseURL + "/#Page:My_Time_Table_2023_24"
	ProfilePageURL    = BaseURL + "/#Page:Student_Profile"

	// cookie injection needs the bare host
	CookieDomain = "academia.srmist.edu.in"
)

var (
	ErrLoginFailed        = errors.New("failed to login to the portal")
	ErrCookiesInvalid     = errors.New("supplied session cookies were rejected by the portal")
	ErrExtractionNotFound = errors.New("no extraction strategy produced a result")
	ErrBatchUnresolved    = errors.New("could not resolve batch (must be 1 or 2)")
)

type AttendanceRecord struct {
	CourseCode           string  `json:"course_code"`
	CourseTitle          string  `json:"course_title"`
	Category             string  `json:"category"`
	Faculty              string  `json:"faculty"`
	Slot                 string  `json:"slot"`
	HoursConducted       int     `json:"hours_conducted"`
	HoursAbsent          int     `json:"hours_absent"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// AttendanceSnapshot fully replaces the previous snapshot for an owner
// on every run, it is never merged field by field.
type AttendanceSnapshot struct {
	RegistrationNumber string             `json:"registration_number"`
	LastUpdated        time.Time          `json:"last_updated"`
	Records            []AttendanceRecord `json:"records"`
}

type TestScore struct {
	TestCode string  `json:"test_code"`
	MaxMarks float64 `json:"max_marks"`
	// ObtainedMarks is a float when the portal renders a number and the
	// raw string otherwise ("Ab" for absent, "*" for withheld)
	ObtainedMarks any `json:"obtained_marks"`
}

type MarksRecord struct {
	CourseName string      `json:"course_name"`
	Tests      []TestScore `json:"tests"`
}

type MarksSnapshot struct {
	RegistrationNumber string        `json:"registration_number"`
	LastUpdated        time.Time     `json:"last_updated"`
	Records            []MarksRecord `json:"records"`
}

// CourseRow is one row of the timetable page's course table, slot kept
// raw until reconciliation.
type CourseRow struct {
	CourseCode  string `json:"course_code"`
	CourseTitle string `json:"course_title"`
	Slot        string `json:"slot"`
	GcrCode     string `json:"gcr_code"`
	FacultyName string `json:"faculty_name"`
	CourseType  string `json:"course_type"`
	RoomNo      string `json:"room_no"`
}

type CourseInfo struct {
	Title   string `json:"title"`
	Faculty string `json:"faculty"`
	Room    string `json:"room"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	GcrCode string `json:"gcr_code"`
}

// MergedCell is one day x period cell of the reconciled timetable.
type MergedCell struct {
	Time         string       `json:"time"`
	OriginalSlot string       `json:"original_slot"`
	Display      string       `json:"display"`
	Courses      []CourseInfo `json:"courses"`
}

// MergedTimetable maps day name -> time range -> cell.
type MergedTimetable map[string]map[string]MergedCell

type TimetableSnapshot struct {
	Batch       string          `json:"batch"`
	Merged      MergedTimetable `json:"merged_timetable"`
	Courses     []CourseRow     `json:"course_data"`
	LastUpdated time.Time       `json:"last_updated"`
}

// SessionMaterial is what gets persisted after a verified login so
// later runs can skip the credential flow.
type SessionMaterial struct {
	Cookies   map[string]string `json:"cookies"`
	Token     string            `json:"token"`
	UpdatedAt time.Time         `json:"updated_at"`
}
