package academia

import (
	"regexp"
	"strconv"
	"strings"

	"academia-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
	"golang.org/x/net/html"
)

var registrationPattern = regexp.MustCompile(`\bRA\d{10}\b`)

// each extraction target is resolved by an ordered strategy list; the
// first strategy producing a non-empty, shape-valid result wins
type textStrategy struct {
	name string
	try  func(doc *goquery.Document) string
}

func runStrategies(doc *goquery.Document, strategies []textStrategy) (string, string) {
	for _, s := range strategies {
		if out := s.try(doc); out != "" {
			return out, s.name
		}
	}
	return "", ""
}

var registrationStrategies = []textStrategy{
	{"meta-tag", func(doc *goquery.Document) string {
		content := doc.Find(`meta[name="registration-number"]`).AttrOr("content", "")
		return registrationPattern.FindString(content)
	}},
	{"profile-data-attr", func(doc *goquery.Document) string {
		return strings.TrimSpace(doc.Find("div.profile-info").AttrOr("data-registration", ""))
	}},
	{"profile-table", func(doc *goquery.Document) string {
		out := ""
		doc.Find("table.profile-table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			cells := row.Find("td")
			if cells.Length() < 2 || !strings.Contains(cells.First().Text(), "Registration") {
				return true
			}
			if match := registrationPattern.FindString(cells.Eq(1).Text()); match != "" {
				out = match
				return false
			}
			return true
		})
		return out
	}},
	{"hidden-input", func(doc *goquery.Document) string {
		return strings.TrimSpace(doc.Find(`input[name="reg_number"]`).AttrOr("value", ""))
	}},
	{"body-text", func(doc *goquery.Document) string {
		return registrationPattern.FindString(doc.Text())
	}},
}

// ExtractRegistrationNumber resolves the student's registration number
// through the strategy chain. This is a required field; exhausting
// every strategy returns ErrExtractionNotFound.
func ExtractRegistrationNumber(doc *goquery.Document) (string, error) {
	out, _ := runStrategies(doc, registrationStrategies)
	if out == "" {
		return "", ErrExtractionNotFound
	}
	return out, nil
}

// lenient numeric parsing: the portal renders placeholders ("-", "NA")
// in count cells, those become zero rather than a row failure
func parseCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func parsePercent(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// attendance column layout, used when the header row is missing or
// unrecognizable
var attendanceDefaultColumns = [8]int{0, 1, 2, 3, 4, 5, 6, 7}

func attendanceColumns(table *goquery.Selection) [8]int {
	idx := htmlutil.NewHeaderIndex(table)
	cols := [8]int{
		idx.Column("Course Code"),
		idx.Column("Course Title"),
		idx.Column("Category"),
		idx.Column("Faculty"),
		idx.Column("Slot"),
		idx.Column("Hours Conducted"),
		idx.Column("Hours Absent"),
		idx.Column("Attn"),
	}
	for _, c := range cols {
		if c < 0 {
			return attendanceDefaultColumns
		}
	}
	return cols
}

// ExtractAttendance pulls attendance rows from every table mentioning
// "Course Code". Rows with fewer than 8 cells are skipped and counted,
// never aborting the rest of the table. No qualifying table at all
// returns ErrExtractionNotFound.
func ExtractAttendance(doc *goquery.Document) (records []AttendanceRecord, skipped int, err error) {
	tables := htmlutil.TablesContaining(doc, "Course Code")
	if len(tables) == 0 {
		return nil, 0, ErrExtractionNotFound
	}

	for _, table := range tables {
		cols := attendanceColumns(table)
		width := 0
		for _, c := range cols {
			if c >= width {
				width = c + 1
			}
		}
		for _, row := range htmlutil.DataRows(table) {
			cells := htmlutil.Cells(row)
			if len(cells) < 8 || len(cells) < width {
				if len(cells) > 0 {
					skipped++
				}
				continue
			}
			records = append(records, AttendanceRecord{
				CourseCode:           cells[cols[0]],
				CourseTitle:          cells[cols[1]],
				Category:             cells[cols[2]],
				Faculty:              cells[cols[3]],
				Slot:                 cells[cols[4]],
				HoursConducted:       parseCount(cells[cols[5]]),
				HoursAbsent:          parseCount(cells[cols[6]]),
				AttendancePercentage: parsePercent(cells[cols[7]]),
			})
		}
	}

	return DedupAttendance(records), skipped, nil
}

func completeness(r AttendanceRecord) int {
	score := 0
	for _, s := range []string{r.CourseCode, r.CourseTitle, r.Category, r.Faculty, r.Slot} {
		if s != "" {
			score++
		}
	}
	if r.HoursConducted != 0 {
		score++
	}
	if r.HoursAbsent != 0 {
		score++
	}
	if r.AttendancePercentage != 0 {
		score++
	}
	return score
}

// DedupAttendance keeps one record per (course_code, category) key: the
// one with the most non-empty fields, first encountered winning ties.
// Running it on already-deduplicated input is a no-op.
func DedupAttendance(records []AttendanceRecord) []AttendanceRecord {
	type key struct{ code, category string }
	best := map[key]int{}
	var order []key

	for i, r := range records {
		k := key{r.CourseCode, r.Category}
		existing, seen := best[k]
		if !seen {
			best[k] = i
			order = append(order, k)
			continue
		}
		if completeness(r) > completeness(records[existing]) {
			best[k] = i
		}
	}

	out := make([]AttendanceRecord, 0, len(order))
	for _, k := range order {
		out = append(out, records[best[k]])
	}
	return out
}

// jaroWinklerFloor is deliberately strict: title resolution is a
// convenience, a wrong match is worse than falling back to the raw code
const jaroWinklerFloor = 0.93

func stripRegular(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "Regular", ""))
}

// ResolveCourseTitle maps a marks-row course code onto the title from
// the attendance records: exact case-insensitive match, then match with
// the "Regular" suffix stripped from both sides, then a strict fuzzy
// match, finally the marks table's own fallback text.
func ResolveCourseTitle(courseCode, fallback string, attendance []AttendanceRecord) string {
	lowered := strings.ToLower(strings.TrimSpace(courseCode))
	stripped := strings.ToLower(stripRegular(courseCode))

	for _, r := range attendance {
		stored := strings.ToLower(strings.TrimSpace(r.CourseCode))
		if stored == lowered {
			return r.CourseTitle
		}
		if strings.ToLower(stripRegular(r.CourseCode)) == stripped {
			return r.CourseTitle
		}
	}

	bestScore := 0.0
	bestTitle := ""
	for _, r := range attendance {
		score := matchr.JaroWinkler(lowered, strings.ToLower(r.CourseCode), false)
		if score > bestScore {
			bestScore = score
			bestTitle = r.CourseTitle
		}
	}
	if bestScore >= jaroWinklerFloor && bestTitle != "" {
		return bestTitle
	}

	if fallback != "" {
		return fallback
	}
	return courseCode
}

// textAfterBr returns the text immediately following the first <br>
// inside the node; the portal renders obtained marks that way.
func textAfterBr(node *html.Node) string {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == "br" {
			if child.NextSibling != nil && child.NextSibling.Type == html.TextNode {
				return strings.TrimSpace(child.NextSibling.Data)
			}
			return ""
		}
		if child.Type == html.ElementNode {
			if found := textAfterBr(child); found != "" {
				return found
			}
		}
	}
	return ""
}

func parseTestCell(cell *goquery.Selection) (TestScore, bool) {
	strong := cell.Find("strong").First()
	if strong.Length() == 0 {
		return TestScore{}, false
	}
	info := htmlutil.CleanText(strong.Text())
	if info == "" {
		return TestScore{}, false
	}

	parts := strings.SplitN(info, "/", 2)
	score := TestScore{TestCode: strings.TrimSpace(parts[0])}
	if len(parts) == 2 {
		score.MaxMarks = parsePercent(parts[1])
	}

	obtained := "0"
	if len(cell.Nodes) > 0 {
		if text := textAfterBr(cell.Nodes[0]); text != "" {
			obtained = text
		}
	}
	if f, err := strconv.ParseFloat(obtained, 64); err == nil {
		score.ObtainedMarks = f
	} else {
		// non-numeric marks ("Ab", "*") pass through raw
		score.ObtainedMarks = obtained
	}
	return score, true
}

// ownRows returns the rows belonging to the table itself, excluding
// rows of any nested tables. The marks table nests a per-test table in
// every course row.
func ownRows(table *goquery.Selection) []*goquery.Selection {
	if len(table.Nodes) == 0 {
		return nil
	}
	root := table.Nodes[0]
	var rows []*goquery.Selection
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		for n := row.Nodes[0].Parent; n != nil; n = n.Parent {
			if n.Type == html.ElementNode && n.Data == "table" {
				if n == root {
					rows = append(rows, row)
				}
				return
			}
		}
	})
	return rows
}

// ExtractMarks parses the "Test Performance" table. Each course row
// holds a nested table of per-test cells. Row-level failures are
// skipped; a missing marks table returns ErrExtractionNotFound.
func ExtractMarks(doc *goquery.Document, attendance []AttendanceRecord) (records []MarksRecord, skipped int, err error) {
	var marksTable *goquery.Selection
	for _, table := range htmlutil.TablesContaining(doc, "Test Performance") {
		header := table.Find("tr").First()
		if strings.Contains(header.Text(), "Test Performance") {
			marksTable = table
			break
		}
	}
	if marksTable == nil {
		return nil, 0, ErrExtractionNotFound
	}

	for i, row := range ownRows(marksTable) {
		if i == 0 {
			// header row
			continue
		}
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 3 {
			skipped++
			continue
		}

		courseCode := htmlutil.CleanText(cells.Eq(0).Text())
		fallbackTitle := htmlutil.CleanText(cells.Eq(1).Text())
		if courseCode == "" {
			skipped++
			continue
		}

		var tests []TestScore
		cells.Eq(2).Find("table td").Each(func(_ int, cell *goquery.Selection) {
			if score, ok := parseTestCell(cell); ok {
				tests = append(tests, score)
			}
		})

		records = append(records, MarksRecord{
			CourseName: ResolveCourseTitle(courseCode, fallbackTitle, attendance),
			Tests:      tests,
		})
	}

	return DedupMarks(records), skipped, nil
}

// DedupMarks keeps one record per course name, preferring the one with
// more test scores, first encountered winning ties.
func DedupMarks(records []MarksRecord) []MarksRecord {
	best := map[string]int{}
	var order []string

	for i, r := range records {
		existing, seen := best[r.CourseName]
		if !seen {
			best[r.CourseName] = i
			order = append(order, r.CourseName)
			continue
		}
		if len(r.Tests) > len(records[existing].Tests) {
			best[r.CourseName] = i
		}
	}

	out := make([]MarksRecord, 0, len(order))
	for _, name := range order {
		out = append(out, records[best[name]])
	}
	return out
}

var batchInlinePattern = regexp.MustCompile(`(?i)Batch:?\s*</td>\s*<td[^>]*>\s*(\d+)\s*</td>`)

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

var batchStrategies = []textStrategy{
	{"label-cell", func(doc *goquery.Document) string {
		out := htmlutil.CellAfterLabel(doc, "Batch:")
		if isDigits(out) {
			return out
		}
		return ""
	}},
	{"bare-label-cell", func(doc *goquery.Document) string {
		out := htmlutil.CellAfterLabel(doc, "Batch")
		if isDigits(out) {
			return out
		}
		return ""
	}},
	{"row-scan", func(doc *goquery.Document) string {
		out := ""
		doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			cells := row.Find("td")
			for i := 0; i < cells.Length()-1; i++ {
				if !strings.Contains(cells.Eq(i).Text(), "Batch") {
					continue
				}
				text := htmlutil.CleanText(cells.Eq(i + 1).Text())
				if isDigits(text) {
					out = text
					return false
				}
			}
			return true
		})
		return out
	}},
	{"inline-html", func(doc *goquery.Document) string {
		raw, err := doc.Html()
		if err != nil {
			return ""
		}
		if groups := batchInlinePattern.FindStringSubmatch(raw); len(groups) == 2 {
			return groups[1]
		}
		return ""
	}},
	{"strong-digit", func(doc *goquery.Document) string {
		out := ""
		doc.Find("strong").EachWithBreak(func(_ int, strong *goquery.Selection) bool {
			text := strings.TrimSpace(strong.Text())
			if len(text) == 1 && isDigits(text) {
				out = text
				return false
			}
			return true
		})
		return out
	}},
}

// ExtractBatch pulls the student's batch number from a profile or
// timetable page. The result is raw text; validity (must be "1" or
// "2") is the reconciliation engine's concern.
func ExtractBatch(doc *goquery.Document) (string, error) {
	out, _ := runStrategies(doc, batchStrategies)
	if out == "" {
		return "", ErrExtractionNotFound
	}
	return out, nil
}

// ExtractCourseTable parses the timetable page's course table:
// `table.course_tbl` when present, otherwise any table mentioning
// "Course Code", with columns resolved from the header row.
func ExtractCourseTable(doc *goquery.Document) []CourseRow {
	table := doc.Find("table.course_tbl").First()
	if table.Length() == 0 {
		for _, t := range htmlutil.TablesContaining(doc, "Course Code") {
			table = t
			break
		}
	}
	if table == nil || table.Length() == 0 {
		return nil
	}

	idx := htmlutil.NewHeaderIndex(table)
	col := func(name string) int { return idx.Column(name) }
	idxCode := col("Course Code")
	idxTitle := col("Course Title")
	idxSlot := col("Slot")
	idxGcr := col("GCR Code")
	idxFaculty := col("Faculty")
	idxType := col("Course Type")
	idxRoom := col("Room")
	if idxCode < 0 || idxTitle < 0 || idxSlot < 0 {
		return nil
	}

	pick := func(cells []string, i int) string {
		if i < 0 || i >= len(cells) {
			return ""
		}
		return cells[i]
	}

	var rows []CourseRow
	for _, row := range htmlutil.DataRows(table) {
		cells := htmlutil.Cells(row)
		code := pick(cells, idxCode)
		title := pick(cells, idxTitle)
		if code == "" || title == "" {
			continue
		}
		rows = append(rows, CourseRow{
			CourseCode:  code,
			CourseTitle: title,
			Slot:        pick(cells, idxSlot),
			GcrCode:     pick(cells, idxGcr),
			FacultyName: pick(cells, idxFaculty),
			CourseType:  pick(cells, idxType),
			RoomNo:      pick(cells, idxRoom),
		})
	}
	return rows
}
