package maintenance

import (
	"testing"
	"time"

	"github.com/komodo-run/komodo/internal/models"
	"github.com/stretchr/testify/assert"
)

func mustLoc(t *testing.T, name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestActive_DailyWindowWithin(t *testing.T) {
	loc := mustLoc(t, "UTC")
	w := models.MaintenanceWindow{
		Enabled: true, ScheduleType: models.MaintenanceDaily,
		Hour: 2, Minute: 0, DurationMinutes: 60, Timezone: "UTC",
	}
	at := time.Date(2026, 7, 31, 2, 15, 0, 0, loc)
	assert.True(t, Active(w, at))
}

func TestActive_DailyWindowOutside(t *testing.T) {
	loc := mustLoc(t, "UTC")
	w := models.MaintenanceWindow{
		Enabled: true, ScheduleType: models.MaintenanceDaily,
		Hour: 2, Minute: 0, DurationMinutes: 60, Timezone: "UTC",
	}
	at := time.Date(2026, 7, 31, 4, 0, 0, 0, loc)
	assert.False(t, Active(w, at))
}

func TestActive_MidnightWrap(t *testing.T) {
	loc := mustLoc(t, "UTC")
	w := models.MaintenanceWindow{
		Enabled: true, ScheduleType: models.MaintenanceDaily,
		Hour: 23, Minute: 30, DurationMinutes: 90, Timezone: "UTC",
	}
	// window is 23:30 -> 01:00 next day; 00:15 should be active.
	at := time.Date(2026, 7, 31, 0, 15, 0, 0, loc)
	assert.True(t, Active(w, at))
	outside := time.Date(2026, 7, 31, 12, 0, 0, 0, loc)
	assert.False(t, Active(w, outside))
}

func TestActive_WeeklyMatchesOnlyConfiguredDay(t *testing.T) {
	loc := mustLoc(t, "UTC")
	w := models.MaintenanceWindow{
		Enabled: true, ScheduleType: models.MaintenanceWeekly, Weekday: time.Friday,
		Hour: 2, Minute: 0, DurationMinutes: 60, Timezone: "UTC",
	}
	friday := time.Date(2026, 7, 31, 2, 15, 0, 0, loc) // a Friday
	assert.True(t, Active(w, friday))
	saturday := friday.Add(24 * time.Hour)
	assert.False(t, Active(w, saturday))
}

func TestActive_InvalidTimezoneIsFalse(t *testing.T) {
	w := models.MaintenanceWindow{Enabled: true, ScheduleType: models.MaintenanceDaily, Timezone: "Not/AZone"}
	assert.False(t, Active(w, time.Now()))
}

func TestActive_Disabled(t *testing.T) {
	w := models.MaintenanceWindow{Enabled: false, ScheduleType: models.MaintenanceDaily, Timezone: "UTC"}
	assert.False(t, Active(w, time.Now()))
}

func TestActive_OneTimePastDateNeverMatchesAgain(t *testing.T) {
	loc := mustLoc(t, "UTC")
	w := models.MaintenanceWindow{
		Enabled: true, ScheduleType: models.MaintenanceOneTime, Date: "2020-01-01",
		Hour: 2, Minute: 0, DurationMinutes: 60, Timezone: "UTC",
	}
	assert.False(t, Active(w, time.Date(2026, 7, 31, 2, 15, 0, 0, loc)))
}
