package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// englishToCron translates Komodo's small English scheduling grammar to a
// 6-field cron expression (seconds minutes hours day-of-month month
// day-of-week — cron has no year field, spec.md §4.6/§9). No library in the
// retrieval pack covers this bespoke grammar; it is intentionally small and
// implemented directly against strings/strconv.
//
// Supported forms:
//
//	"every <N> minutes"
//	"every <N> hours"
//	"every day at HH:MM"
//	"every <weekday>"
//	"every <weekday> at HH:MM"
func englishToCron(expr string) (string, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(expr)))
	if len(fields) < 2 || fields[0] != "every" {
		return "", fmt.Errorf("english schedule must start with \"every\": %q", expr)
	}

	switch {
	case len(fields) == 3 && fields[2] == "minutes":
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return "", fmt.Errorf("invalid interval %q in %q", fields[1], expr)
		}
		return fmt.Sprintf("0 */%d * * * *", n), nil

	case len(fields) == 3 && fields[2] == "hours":
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return "", fmt.Errorf("invalid interval %q in %q", fields[1], expr)
		}
		return fmt.Sprintf("0 0 */%d * * *", n), nil

	case len(fields) == 2 && fields[1] == "day":
		return "0 0 0 * * *", nil

	case len(fields) >= 4 && fields[1] == "day" && fields[2] == "at":
		hh, mm, err := parseClock(fields[3])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("0 %d %d * * *", mm, hh), nil

	case len(fields) == 2:
		dow, ok := weekdayNum(fields[1])
		if !ok {
			return "", fmt.Errorf("unknown weekday %q in %q", fields[1], expr)
		}
		return fmt.Sprintf("0 0 0 * * %d", dow), nil

	case len(fields) == 4 && fields[2] == "at":
		dow, ok := weekdayNum(fields[1])
		if !ok {
			return "", fmt.Errorf("unknown weekday %q in %q", fields[1], expr)
		}
		hh, mm, err := parseClock(fields[3])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("0 %d %d * * %d", mm, hh, dow), nil
	}

	return "", fmt.Errorf("unrecognized english schedule: %q", expr)
}

func parseClock(s string) (hh, mm int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hh, err = strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err = strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hh, mm, nil
}

func weekdayNum(name string) (int, bool) {
	days := map[string]int{
		"sunday": 0, "monday": 1, "tuesday": 2, "wednesday": 3,
		"thursday": 4, "friday": 5, "saturday": 6,
	}
	n, ok := days[name]
	return n, ok
}
