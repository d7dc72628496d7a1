package calendar

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

var (
	isoDatePattern  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	colonPattern    = regexp.MustCompile(`\b([01]?\d|2[0-3])[:.]([0-5]\d)\b`)
	spokenPattern   = regexp.MustCompile(`\b(?:alle|ore|per le|verso le|dalle)\s+([01]?\d|2[0-3])(?:\s+e\s+(mezza|un quarto|tre quarti|[0-5]\d))?\b`)
	bareHourPattern = regexp.MustCompile(`^\s*([01]?\d|2[0-3])\s*$`)
)

// PickupRequest is a pickup time read from free text
type PickupRequest struct {
	Minutes   int
	DayOffset int
	Date      string
}

// ParseClock reads a time of day from text such as "19:30", "19.30",
// "alle 19", "ore 20 e 30" or a bare "19". It returns minutes since midnight.
func ParseClock(text string) (int, bool) {
	t := strings.ToLower(text)

	if m := colonPattern.FindStringSubmatch(t); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		return h*60 + min, true
	}
	if m := spokenPattern.FindStringSubmatch(t); m != nil {
		h, _ := strconv.Atoi(m[1])
		min := 0
		switch m[2] {
		case "":
		case "mezza":
			min = 30
		case "un quarto":
			min = 15
		case "tre quarti":
			min = 45
		default:
			min, _ = strconv.Atoi(m[2])
		}
		return h*60 + min, true
	}
	if m := bareHourPattern.FindStringSubmatch(t); m != nil {
		h, _ := strconv.Atoi(m[1])
		return h * 60, true
	}
	return 0, false
}

// ClockPhrase returns the part of text that names a time of day, together
// with any day word. Bare numbers are ignored since they usually are
// quantities.
func ClockPhrase(text string) (string, bool) {
	t := strings.ToLower(text)
	phrase := colonPattern.FindString(t)
	if phrase == "" {
		phrase = spokenPattern.FindString(t)
	}
	if phrase == "" {
		return "", false
	}
	switch {
	case isoDatePattern.MatchString(t):
		phrase = isoDatePattern.FindString(t) + " " + phrase
	case strings.Contains(t, "dopodomani"):
		phrase = "dopodomani " + phrase
	case strings.Contains(t, "domani"):
		phrase = "domani " + phrase
	}
	return phrase, true
}

// ParsePickup reads a pickup time plus an optional day ("oggi", "domani",
// "dopodomani" or an ISO date) from text
func ParsePickup(text string) (PickupRequest, bool) {
	minutes, ok := ParseClock(text)
	if !ok {
		return PickupRequest{}, false
	}
	req := PickupRequest{Minutes: minutes}

	t := strings.ToLower(text)
	switch {
	case isoDatePattern.MatchString(t):
		req.Date = isoDatePattern.FindStringSubmatch(t)[1]
	case strings.Contains(t, "dopodomani"):
		req.DayOffset = 2
	case strings.Contains(t, "domani"):
		req.DayOffset = 1
	}
	return req, true
}

// day returns the calendar day the request refers to, relative to now
func (r PickupRequest) day(now time.Time, loc *time.Location) (time.Time, error) {
	if r.Date != "" {
		return time.ParseInLocation(domain.DateLayout, r.Date, loc)
	}
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+r.DayOffset, 0, 0, 0, 0, loc), nil
}
