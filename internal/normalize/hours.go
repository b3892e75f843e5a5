package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/dealer-scraper/internal/model"
)

const (
	dayPattern  = `(mon(?:day)?|tue(?:s(?:day)?)?|wed(?:nesday|s)?|thu(?:r(?:s(?:day)?)?)?|fri(?:day)?|sat(?:urday)?|sun(?:day)?)`
	timePattern = `(\d{1,2})(?::(\d{2}))?\s*(?:([ap])\.?\s?m\b\.?)?`
)

var (
	dayRe      = regexp.MustCompile(`(?i)\b` + dayPattern + `\b\.?`)
	dayRangeRe = regexp.MustCompile(`(?i)\b` + dayPattern + `\b\.?\s*(?:-|–|—|to|through|thru)\s*\b` + dayPattern + `\b\.?`)
	rangeRe    = regexp.MustCompile(`(?i)` + timePattern + `\s*(?:-|–|—|to|until)\s*` + timePattern)
	closedRe   = regexp.MustCompile(`(?i)\b(closed|by\s+appointment(?:\s+only)?)\b`)
	allDayRe   = regexp.MustCompile(`(?i)\b(24\s*(?:hours?|hrs?|/\s*7)|open\s*24)\b`)
	noonRe     = regexp.MustCompile(`(?i)\bnoon\b`)
	midnightRe = regexp.MustCompile(`(?i)\bmidnight\b`)
)

// DayIndex maps a day token ("Mon", "thurs", "Sunday") to 0..6, Monday first.
func DayIndex(token string) (int, bool) {
	t := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(token), "."))
	if len(t) < 3 {
		return 0, false
	}
	switch t[:3] {
	case "mon":
		return 0, true
	case "tue":
		return 1, true
	case "wed":
		return 2, true
	case "thu":
		return 3, true
	case "fri":
		return 4, true
	case "sat":
		return 5, true
	case "sun":
		return 6, true
	}
	return 0, false
}

// ExpandDayRange returns the day indexes from start through end inclusive,
// wrapping past Sunday ("Sat-Mon" is Saturday, Sunday, Monday).
func ExpandDayRange(start, end int) []int {
	var out []int
	for i := start; ; i = (i + 1) % 7 {
		out = append(out, i)
		if i == end || len(out) == 7 {
			return out
		}
	}
}

// TimeRange normalizes one time range ("9am-6pm", "9:00 AM - 6:00 PM",
// "09:00-18:00") to "9:00 AM – 6:00 PM". ok is false when no range is found.
func TimeRange(s string) (string, bool) {
	s = noonRe.ReplaceAllString(s, "12:00 pm")
	s = midnightRe.ReplaceAllString(s, "12:00 am")
	m := rangeRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return formatRange(m)
}

// TimeRanges normalizes every range in s, joining split shifts with "; ".
func TimeRanges(s string) (string, bool) {
	s = noonRe.ReplaceAllString(s, "12:00 pm")
	s = midnightRe.ReplaceAllString(s, "12:00 am")
	var parts []string
	for _, m := range rangeRe.FindAllStringSubmatch(s, -1) {
		if r, ok := formatRange(m); ok {
			parts = append(parts, r)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "; "), true
}

// HoursValue normalizes the value part of one hours line.
func HoursValue(s string) (string, bool) {
	if closedRe.MatchString(s) && !rangeRe.MatchString(s) {
		return model.HoursClosed, true
	}
	if allDayRe.MatchString(s) {
		return model.HoursAllDay, true
	}
	return TimeRanges(s)
}

type clock struct {
	hour, min int
	mer       string // "AM", "PM" or "" when not given
}

func parseClock(h, m, mer string) (clock, bool) {
	hour, err := strconv.Atoi(h)
	if err != nil || hour > 23 {
		return clock{}, false
	}
	minute := 0
	if m != "" {
		minute, _ = strconv.Atoi(m)
		if minute > 59 {
			return clock{}, false
		}
	}
	c := clock{hour: hour, min: minute}
	switch strings.ToLower(mer) {
	case "a":
		c.mer = "AM"
	case "p":
		c.mer = "PM"
	}
	if c.mer == "" && hour > 12 {
		c.hour -= 12
		c.mer = "PM"
	} else if c.mer == "" && hour == 0 {
		c.hour = 12
		c.mer = "AM"
	}
	if c.mer != "" && (c.hour == 0 || c.hour > 12) {
		return clock{}, false
	}
	return c, true
}

func formatRange(m []string) (string, bool) {
	start, ok1 := parseClock(m[1], m[2], m[3])
	end, ok2 := parseClock(m[4], m[5], m[6])
	if !ok1 || !ok2 {
		return "", false
	}
	// Bare numbers like "2-6" are ambiguous outside an hours context.
	if m[3] == "" && m[6] == "" && (m[2] == "" || m[5] == "") {
		return "", false
	}
	switch {
	case start.mer == "" && end.mer == "":
		start.mer, end.mer = inferMeridiem(start.hour, end.hour)
	case start.mer == "":
		start.mer = end.mer
		if start.hour%12 > end.hour%12 {
			start.mer = flip(end.mer)
		}
	case end.mer == "":
		end.mer = start.mer
		if end.hour%12 <= start.hour%12 {
			end.mer = flip(start.mer)
		}
	}
	return fmt.Sprintf("%d:%02d %s – %d:%02d %s", start.hour, start.min, start.mer, end.hour, end.min, end.mer), true
}

func inferMeridiem(start, end int) (string, string) {
	if end <= start {
		return "AM", "PM"
	}
	if start >= 7 || start == 12 {
		return "AM", "AM"
	}
	return "PM", "PM"
}

func flip(mer string) string {
	if mer == "AM" {
		return "PM"
	}
	return "AM"
}

// HoursParse is the result of reading a block of hours text.
type HoursParse struct {
	Table model.HoursTable
	// Days counts the days given a value.
	Days int
	// ClosedMarker is set when the block says "closed" without naming days.
	ClosedMarker bool
}

// ParseHours reads free-form hours text, one entry per line. A line names
// one or more days (ranges expand, with wrap-around) followed by a time
// range, "Closed" or "24 hours". A line holding only days applies to the
// value on the next line. Days never mentioned stay empty (Unsure).
func ParseHours(text string) HoursParse {
	var res HoursParse
	var pendingDays []int
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		days, rest := lineDays(line)
		if len(days) == 0 {
			if len(pendingDays) > 0 {
				if v, ok := HoursValue(line); ok {
					res.set(pendingDays, v)
				}
				pendingDays = nil
			} else if closedRe.MatchString(line) && !rangeRe.MatchString(line) {
				res.ClosedMarker = true
			}
			continue
		}
		if v, ok := HoursValue(rest); ok {
			res.set(days, v)
			pendingDays = nil
			continue
		}
		pendingDays = days
	}
	return res
}

func (h *HoursParse) set(days []int, value string) {
	for _, d := range days {
		if h.Table[d] == "" {
			h.Days++
		}
		h.Table[d] = value
	}
}

// lineDays returns the days named on a line and the remainder with the day
// tokens removed.
func lineDays(line string) ([]int, string) {
	var days []int
	seen := make(map[int]bool)
	add := func(d int) {
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	rest := line
	for _, m := range dayRangeRe.FindAllStringSubmatch(line, -1) {
		s, ok1 := DayIndex(m[1])
		e, ok2 := DayIndex(m[2])
		if ok1 && ok2 {
			for _, d := range ExpandDayRange(s, e) {
				add(d)
			}
		}
	}
	rest = dayRangeRe.ReplaceAllString(rest, " ")
	for _, m := range dayRe.FindAllStringSubmatch(rest, -1) {
		if d, ok := DayIndex(m[1]); ok {
			add(d)
		}
	}
	rest = dayRe.ReplaceAllString(rest, " ")
	return days, rest
}
