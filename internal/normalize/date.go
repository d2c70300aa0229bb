package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

var (
	// DatePrefix matches a DD/MM/YY[YY] (or dash separated) date at the start
	// of a line.
	DatePrefix = regexp.MustCompile(`^(\d{1,2})[/\-](\d{1,2})[/\-](\d{2,4})(?:\s|$)`)

	dayMonthYear = regexp.MustCompile(`^(\d{1,2})[/\-](\d{1,2})[/\-](\d{2,4})$`)
	dayMonName   = regexp.MustCompile(`^(\d{1,2})[\s/\-]([A-Za-z]{3})[A-Za-z]*[\s/\-](\d{2,4})$`)
	isoDate      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Date parses the date layouts found on Indian bank statements: DD/MM/YY,
// DD/MM/YYYY, DD-MM-YY, DD-Mon-YYYY and ISO YYYY-MM-DD. Two-digit years are
// expanded with a "20" prefix. Invalid calendar dates are rejected.
func Date(raw string) (civil.Date, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return civil.Date{}, false
	}

	if isoDate.MatchString(s) {
		d, err := civil.ParseDate(s)
		if err != nil {
			return civil.Date{}, false
		}
		return d, true
	}

	if m := dayMonthYear.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return build(m[3], time.Month(month), day)
	}

	if m := dayMonName.FindStringSubmatch(s); m != nil {
		month, ok := monthNames[strings.ToLower(m[2])]
		if !ok {
			return civil.Date{}, false
		}
		day, _ := strconv.Atoi(m[1])
		return build(m[3], month, day)
	}

	return civil.Date{}, false
}

func build(yearRaw string, month time.Month, day int) (civil.Date, bool) {
	if len(yearRaw) == 2 {
		yearRaw = "20" + yearRaw
	}
	if len(yearRaw) != 4 {
		return civil.Date{}, false
	}
	year, err := strconv.Atoi(yearRaw)
	if err != nil {
		return civil.Date{}, false
	}

	d := civil.Date{Year: year, Month: month, Day: day}
	if !d.IsValid() {
		return civil.Date{}, false
	}
	return d, true
}

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}
