package academia

// The institution publishes one fixed weekly template per batch; a
// student's actual courses only fill the template in. These tables are
// reference data, never derived from scraped content.

// TimeRanges are the 12 teaching periods of a day, in order.
var TimeRanges = []string{
	"08:00-08:50",
	"08:50-09:40",
	"09:45-10:35",
	"10:40-11:30",
	"11:35-12:25",
	"12:30-01:20",
	"01:25-02:15",
	"02:20-03:10",
	"03:10-04:00",
	"04:00-04:50",
	"04:50-05:30",
	"05:30-06:10",
}

// DayNames index the five teaching days.
var DayNames = []string{"Day 1", "Day 2", "Day 3", "Day 4", "Day 5"}

func dayTemplate(codes ...string) map[string]string {
	day := make(map[string]string, len(TimeRanges))
	for i, tr := range TimeRanges {
		day[tr] = codes[i]
	}
	return day
}

var batch1Schedule = map[string]map[string]string{
	"Day 1": dayTemplate("A", "A/X", "F/X", "F", "G", "P6-", "P7-", "P8-", "P9-", "P10-", "L11", "L11"),
	"Day 2": dayTemplate("P11-", "P12-/X", "P13-/X", "P14-", "P15-", "B", "B", "G", "G", "A", "L21", "L22"),
	"Day 3": dayTemplate("C", "C/X", "A/X", "D", "B", "P26-", "P27-", "P28-", "P29-", "P30-", "L31", "L32"),
	"Day 4": dayTemplate("P31-", "P32-/X", "P33-/X", "P34-", "P35-", "D", "D", "B", "E", "C", "L41", "L42"),
	"Day 5": dayTemplate("E", "E/X", "C/X", "F", "D", "P46-", "P47-", "P48-", "P49-", "P50-", "L51", "L52"),
}

var batch2Schedule = map[string]map[string]string{
	"Day 1": dayTemplate("P1-", "P2-/X", "P3-/X", "P4-", "P5-", "A", "A", "F", "F", "G", "L11", "L12"),
	"Day 2": dayTemplate("B", "B/X", "G/X", "G", "A", "P16-", "P17-", "P18-", "P19-", "P20-", "L21", "L22"),
	"Day 3": dayTemplate("P21-", "P22-/X", "P23-/X", "P24-", "P25-", "C", "C", "A", "D", "B", "L31", "L32"),
	"Day 4": dayTemplate("D", "D/X", "B/X", "E", "C", "P36-", "P37-", "P38-", "P39-", "P40-", "L41", "L42"),
	"Day 5": dayTemplate("P41-", "P42-/X", "P43-/X", "P44-", "P45-", "E", "E", "C", "F", "D", "L51", "L52"),
}

// CanonicalSchedule returns the fixed weekly template for batch "1" or
// "2"; ok is false for anything else.
func CanonicalSchedule(batch string) (map[string]map[string]string, bool) {
	switch batch {
	case "1":
		return batch1Schedule, true
	case "2":
		return batch2Schedule, true
	}
	return nil, false
}
