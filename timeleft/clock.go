package timeleft

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	hhmmssRe = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})$`)
	mmssRe   = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	tokenRe  = regexp.MustCompile(`(?i)(?:(\d+)\s*d)?\s*(?:(\d+)\s*h)?\s*(?:(\d+)\s*m)?\s*(?:(\d+)\s*s)?`)
	wsRe     = regexp.MustCompile(`\s+`)
)

// FromClock parses display countdowns like "1d 2h 3m", "3h 5m", "45s",
// "00:12:30" (HH:MM:SS) or "12:30" (MM:SS) into seconds.
func FromClock(text string) (int64, bool) {
	t := strings.ToLower(wsRe.ReplaceAllString(strings.TrimSpace(text), " "))
	if t == "" {
		return 0, false
	}

	if m := hhmmssRe.FindStringSubmatch(t); m != nil {
		hh, _ := strconv.ParseInt(m[1], 10, 64)
		mm, _ := strconv.ParseInt(m[2], 10, 64)
		ss, _ := strconv.ParseInt(m[3], 10, 64)
		return hh*3600 + mm*60 + ss, true
	}
	if m := mmssRe.FindStringSubmatch(t); m != nil {
		mm, _ := strconv.ParseInt(m[1], 10, 64)
		ss, _ := strconv.ParseInt(m[2], 10, 64)
		return mm*60 + ss, true
	}

	m := tokenRe.FindStringSubmatch(t)
	if m == nil || strings.TrimSpace(m[0]) == "" {
		return 0, false
	}
	days := atoi0(m[1])
	hours := atoi0(m[2])
	mins := atoi0(m[3])
	secs := atoi0(m[4])
	total := days*86400 + hours*3600 + mins*60 + secs
	if total <= 0 {
		return 0, false
	}
	return total, true
}

// FromHoursMinutes builds seconds from separate countdown cells, as rendered
// by Proxibid's gallery timer.
func FromHoursMinutes(hoursText, minutesText string) (int64, bool) {
	var hrs, mins int64
	if v, err := strconv.ParseInt(strings.TrimSpace(hoursText), 10, 64); err == nil {
		hrs = v
	}
	if v, err := strconv.ParseInt(strings.TrimSpace(minutesText), 10, 64); err == nil {
		mins = v
	}
	total := hrs*3600 + mins*60
	if total <= 0 {
		return 0, false
	}
	return total, true
}

// Fixed offsets for the US abbreviations ReneBates prints. time.Parse cannot
// resolve bare abbreviations portably, so the adapter carries its own table.
var usZoneOffsets = map[string]int{
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
}

// FromLocalClose parses an event close like date="September 23, 2025",
// clock="1:00 PM", tz="CDT" into seconds remaining after now, clamped to
// zero. Unknown abbreviations fall back to US Central.
func FromLocalClose(date, clock, tz string, now time.Time) (int64, bool) {
	local, err := time.Parse("January 2, 2006 3:04 PM",
		strings.TrimSpace(date)+" "+strings.ToUpper(strings.TrimSpace(clock)))
	if err != nil {
		return 0, false
	}
	offset, ok := usZoneOffsets[strings.ToUpper(strings.TrimSpace(tz))]
	if !ok {
		if strings.HasSuffix(strings.ToUpper(tz), "DT") {
			offset = -5
		} else {
			offset = -6
		}
	}
	end := time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), 0, 0, time.FixedZone(tz, offset*3600))
	rem := int64(end.Sub(now).Seconds())
	if rem < 0 {
		rem = 0
	}
	return rem, true
}

func atoi0(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
