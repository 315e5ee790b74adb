package spot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var bareHourRe = regexp.MustCompile(`^\d{1,2}$`)

// QuarterOf rounds minutes down to the quarter label used in hour keys.
func QuarterOf(mins int) string {
	switch {
	case mins < 15:
		return "00"
	case mins < 30:
		return "15"
	case mins < 45:
		return "30"
	default:
		return "45"
	}
}

// CurrentHourKey renders t as the "H:MM" key of its quarter hour.
func CurrentHourKey(t time.Time) string {
	return fmt.Sprintf("%d:%s", t.Hour(), QuarterOf(t.Minute()))
}

// NormalizeHourKey accepts "H", "H:M" or "H:MM" and returns the canonical
// "H:MM" quarter key.
func NormalizeHourKey(hour string) string {
	hour = strings.TrimSpace(hour)
	if bareHourRe.MatchString(hour) {
		return hour + ":00"
	}
	parts := strings.SplitN(hour, ":", 2)
	if len(parts) != 2 {
		return hour
	}
	mins, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return hour
	}
	return strings.TrimSpace(parts[0]) + ":" + QuarterOf(mins)
}

// ExpandLowTariffHours turns "0,1,2" into the quarter keys
// ["0:00","0:15","0:30","0:45","1:00",...] so membership checks work for
// both hourly and 15-minute price days.
func ExpandLowTariffHours(csv string) []string {
	var keys []string
	for _, tok := range strings.Split(csv, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		for _, q := range []string{"00", "15", "30", "45"} {
			keys = append(keys, tok+":"+q)
		}
	}
	return keys
}

// hourKeyOrder maps "H:MM" to minutes since midnight, for chronological
// sorting and stable tie-breaks.
func hourKeyOrder(key string) int {
	parts := strings.SplitN(key, ":", 2)
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 1 << 30
	}
	m := 0
	if len(parts) == 2 {
		if v, err := strconv.Atoi(parts[1]); err == nil {
			m = v
		}
	}
	return h*60 + m
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
