package models

import "time"

// ScheduleFormat is the expression syntax a procedure's schedule string is
// written in.
type ScheduleFormat string

const (
	ScheduleCron    ScheduleFormat = "Cron"
	ScheduleEnglish ScheduleFormat = "English"
)

// ScheduleRow is one entry of the schedule table: a procedure id mapped to
// either its next occurrence (ms since epoch, UTC) or a parse error.
//
// Pending marks a row the executor just fired: its next-run is "unknown"
// until the next updater tick rearms it (spec.md §4.6).
type ScheduleRow struct {
	ProcedureID string
	NextRunMs   int64
	ParseError  string // non-empty means NextRunMs is not valid
	Pending     bool
}

// OK reports whether the row holds a valid next-run time rather than a
// parse error or a not-yet-rearmed pending state.
func (r ScheduleRow) OK() bool {
	return r.ParseError == "" && !r.Pending
}

// MaintenanceScheduleType is the recurrence rule of a maintenance window.
type MaintenanceScheduleType string

const (
	MaintenanceDaily   MaintenanceScheduleType = "Daily"
	MaintenanceWeekly  MaintenanceScheduleType = "Weekly"
	MaintenanceOneTime MaintenanceScheduleType = "OneTime"
)

// MaintenanceWindow is a recurring or one-time suppression window for a
// server (spec.md §4.5).
type MaintenanceWindow struct {
	Enabled         bool
	ScheduleType    MaintenanceScheduleType
	Weekday         time.Weekday // only used when ScheduleType == Weekly
	Date            string       // "2006-01-02", only used when ScheduleType == OneTime
	Hour            int
	Minute          int
	DurationMinutes int
	Timezone        string // IANA name
}
