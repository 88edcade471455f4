package academia

import (
	"slices"
	"strings"
)

// Slot grammar, as the course table renders it:
//
//	"A"                    single slot
//	"A/X"                  alternate pairing, both halves taught
//	"P37-P38-P39-"         multi-period lab block
//	"P37-38-39-"           the same block with the P prefix elided
//
// Every expanded part keeps its trailing "-" because that is how the
// canonical schedules spell lab codes.

// expandSlot returns the individual slot codes a raw slot string covers.
func expandSlot(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.Contains(raw, "/") {
		var out []string
		for _, part := range strings.Split(raw, "/") {
			out = append(out, expandSlot(part)...)
		}
		return out
	}

	if strings.HasSuffix(raw, "-") && strings.Contains(strings.TrimSuffix(raw, "-"), "-") {
		parts := strings.Split(strings.TrimSuffix(raw, "-"), "-")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if part == "" {
				continue
			}
			// prefix-elided members ("38") inherit the P from the block
			if !strings.HasPrefix(part, "P") {
				part = "P" + part
			}
			out = append(out, part+"-")
		}
		return out
	}

	return []string{raw}
}

// BuildSlotMap indexes course rows by each slot code they occupy. One
// slot can carry several courses (the alternate-week pairings), order
// following the course table. The raw slot string is registered next
// to its expanded parts, so a canonical cell spelled as the whole lab
// block still resolves.
func BuildSlotMap(rows []CourseRow) map[string][]CourseInfo {
	slots := make(map[string][]CourseInfo)
	for _, row := range rows {
		info := CourseInfo{
			Title:   row.CourseTitle,
			Faculty: row.FacultyName,
			Room:    row.RoomNo,
			Code:    row.CourseCode,
			Type:    row.CourseType,
			GcrCode: row.GcrCode,
		}
		codes := expandSlot(row.Slot)
		if raw := strings.TrimSpace(row.Slot); raw != "" && !slices.Contains(codes, raw) {
			codes = append(codes, raw)
		}
		for _, code := range codes {
			slots[code] = append(slots[code], info)
		}
	}
	return slots
}

// isBreakMarker recognizes the codes that always render blank no
// matter what the student is enrolled in.
func isBreakMarker(code string) bool {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "", "-", "break", "x":
		return true
	}
	return false
}

// a canonical code is a break for this student when neither it nor any
// of its alternate halves maps to an enrolled course
func isBreak(code string, slots map[string][]CourseInfo) bool {
	if _, ok := slots[code]; ok {
		return false
	}
	for _, part := range strings.Split(code, "/") {
		if _, ok := slots[part]; ok {
			return false
		}
	}
	return true
}

// cellCourses collects every course the cell's code reaches, the exact
// key first and then the alternate halves, each course at most once.
func cellCourses(code string, slots map[string][]CourseInfo) []CourseInfo {
	seen := map[string]bool{}
	var out []CourseInfo
	add := func(courses []CourseInfo) {
		for _, c := range courses {
			key := c.Code + "\x00" + c.Title
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
		}
	}
	add(slots[code])
	for _, part := range strings.Split(code, "/") {
		add(slots[part])
	}
	return out
}

func displayFor(code string, courses []CourseInfo) string {
	if len(courses) == 0 {
		// unresolved non-break codes show the raw code so gaps in the
		// course table stay visible instead of turning into fake breaks
		return code
	}
	titles := make([]string, len(courses))
	for i, c := range courses {
		titles[i] = c.Title
	}
	return strings.Join(titles, " / ")
}

// ResolveBatch decides which canonical schedule applies. An explicit
// batch wins over the profile-extracted one; anything other than "1" or
// "2" is ErrBatchUnresolved, reconciliation never guesses.
func ResolveBatch(explicit, extracted string) (string, error) {
	for _, candidate := range []string{explicit, extracted} {
		candidate = strings.TrimSpace(candidate)
		if _, ok := CanonicalSchedule(candidate); ok {
			return candidate, nil
		}
	}
	return "", ErrBatchUnresolved
}

// MergeTimetable reconciles the course table against the batch's
// canonical weekly template. Every day x period cell of the template is
// present in the result. Break-marker cells are always blank; once any
// courses exist, canonical codes nothing maps to are this student's
// free periods and render blank too. With no course data at all the
// codes pass through literally so the template stays inspectable.
func MergeTimetable(rows []CourseRow, batch string) (MergedTimetable, error) {
	schedule, ok := CanonicalSchedule(batch)
	if !ok {
		return nil, ErrBatchUnresolved
	}

	slots := BuildSlotMap(rows)
	merged := make(MergedTimetable, len(schedule))
	for _, day := range DayNames {
		template := schedule[day]
		cells := make(map[string]MergedCell, len(TimeRanges))
		for _, tr := range TimeRanges {
			code := template[tr]
			cell := MergedCell{Time: tr, OriginalSlot: code}
			blank := isBreakMarker(code) || (len(slots) > 0 && isBreak(code, slots))
			if !blank {
				cell.Courses = cellCourses(code, slots)
				cell.Display = displayFor(code, cell.Courses)
			}
			cells[tr] = cell
		}
		merged[day] = cells
	}
	return merged, nil
}
