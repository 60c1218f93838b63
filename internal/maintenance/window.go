// Package maintenance evaluates whether a MaintenanceWindow is currently
// active (spec.md §4.5), suppressing new/escalating alerts while true.
package maintenance

import (
	"time"

	"github.com/komodo-run/komodo/internal/models"
	"github.com/rs/zerolog/log"
)

// Active renders `at` in the window's configured timezone and tests
// whether it falls inside today's (or this weekday's, or this date's)
// configured start/end span, handling the midnight-wrap case.
//
// Invalid timezones or OneTime dates evaluate to false and log a warning
// (spec.md §4.5) rather than erroring — this is a background-evaluation
// path and must never halt a monitoring loop (spec.md §7 propagation
// policy).
func Active(w models.MaintenanceWindow, at time.Time) bool {
	if !w.Enabled {
		return false
	}

	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", w.Timezone).Msg("maintenance window: invalid timezone")
		return false
	}
	local := at.In(loc)

	// A window starting today, and one starting yesterday that may still
	// be running now, are both candidates: a window that wraps midnight
	// (e.g. 23:30 for 90 minutes) is still active at 00:15 the next day,
	// when `local` itself matches today's schedule, not yesterday's.
	if activeFromScheduleDay(w, local, local) {
		return true
	}
	return activeFromScheduleDay(w, local.AddDate(0, 0, -1), local)
}

// activeFromScheduleDay tests whether a window starting on scheduleDay's
// calendar date covers local.
func activeFromScheduleDay(w models.MaintenanceWindow, scheduleDay, local time.Time) bool {
	if !scheduleMatches(w, scheduleDay) {
		return false
	}
	start := time.Date(scheduleDay.Year(), scheduleDay.Month(), scheduleDay.Day(), w.Hour, w.Minute, 0, 0, scheduleDay.Location())
	end := start.Add(time.Duration(w.DurationMinutes) * time.Minute)
	return !local.Before(start) && !local.After(end)
}

func scheduleMatches(w models.MaintenanceWindow, local time.Time) bool {
	switch w.ScheduleType {
	case models.MaintenanceDaily:
		return true
	case models.MaintenanceWeekly:
		return local.Weekday() == w.Weekday
	case models.MaintenanceOneTime:
		parsed, err := time.ParseInLocation("2006-01-02", w.Date, local.Location())
		if err != nil {
			log.Warn().Err(err).Str("date", w.Date).Msg("maintenance window: invalid one-time date")
			return false
		}
		// OneTime windows with a past date are retained, never garbage
		// collected (spec.md §9 Open Question, decided in SPEC_FULL.md §6):
		// they simply stop matching once their date has passed, which
		// this equality check already achieves without any cleanup pass.
		return parsed.Year() == local.Year() && parsed.YearDay() == local.YearDay()
	default:
		return false
	}
}
