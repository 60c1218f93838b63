// Package schedule implements the procedure scheduler (spec.md §4.6): a
// minute updater that rebuilds next-run times and a per-second executor
// that fires due rows, cooperating over a single reader/writer-locked
// table (spec.md §5 "Ordering").
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/komodo-run/komodo/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ProcedureSchedule is the subset of a Procedure's config the scheduler
// needs; the procedure store/engine supplies these each updater tick.
type ProcedureSchedule struct {
	ID      string
	Enabled bool
	Format  models.ScheduleFormat
	Expr    string
	Tz      string // IANA name; "" defaults to UTC
}

// RowID satisfies internal/store.Row so a ProcedureSchedule can live in a
// store.Collection without this package importing internal/store.
func (ps ProcedureSchedule) RowID() string { return ps.ID }

// NextOccurrence computes the next run at-or-after `from`, in the
// procedure's timezone, returning a UTC unix-ms timestamp.
func NextOccurrence(ps ProcedureSchedule, from time.Time) (int64, error) {
	cronExpr := ps.Expr
	if ps.Format == models.ScheduleEnglish {
		translated, err := englishToCron(ps.Expr)
		if err != nil {
			return 0, err
		}
		cronExpr = translated
	}

	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return 0, err
	}

	tzName := ps.Tz
	if tzName == "" {
		tzName = "UTC"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return 0, err
	}

	next := sched.Next(from.In(loc))
	return next.UTC().UnixMilli(), nil
}

// ProcedureLister returns the current set of procedures to schedule; the
// resource engine's ListForUser(procedure user) stands behind this in
// production.
type ProcedureLister func() []ProcedureSchedule

// Runner starts a procedure run under the built-in "procedure" user
// (spec.md §4.6) and must not block — it is expected to spawn and return.
type Runner func(procedureID string)

// Scheduler owns the shared schedule table and runs the updater/executor
// loops concurrently (spec.md §5).
type Scheduler struct {
	mu    sync.RWMutex
	rows  map[string]models.ScheduleRow
	list  ProcedureLister
	run   Runner
	clock func() time.Time
}

func New(list ProcedureLister, run Runner) *Scheduler {
	return &Scheduler{
		rows:  make(map[string]models.ScheduleRow),
		list:  list,
		run:   run,
		clock: time.Now,
	}
}

// Rows returns a snapshot of the schedule table (for ListSchedules).
func (s *Scheduler) Rows() []models.ScheduleRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ScheduleRow, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	return out
}

// CancelSchedule removes a row; any in-flight run owns its own ActionState
// guard and is unaffected (spec.md §4.6).
func (s *Scheduler) CancelSchedule(procedureID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, procedureID)
}

// RunUpdater ticks once a minute, dropping rows for procedures that no
// longer exist and recomputing next-run for every schedule-enabled one.
func (s *Scheduler) RunUpdater(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	s.updateOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateOnce()
		}
	}
}

func (s *Scheduler) updateOnce() {
	procedures := s.list()
	byID := make(map[string]ProcedureSchedule, len(procedures))
	for _, p := range procedures {
		byID[p.ID] = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.rows {
		if _, exists := byID[id]; !exists {
			delete(s.rows, id)
		}
	}

	now := s.clock()
	for _, p := range procedures {
		if !p.Enabled || p.Expr == "" {
			delete(s.rows, p.ID)
			continue
		}
		nextMs, err := NextOccurrence(p, now)
		if err != nil {
			s.rows[p.ID] = models.ScheduleRow{ProcedureID: p.ID, ParseError: err.Error()}
			log.Warn().Err(err).Str("procedure", p.ID).Msg("schedule: parse error")
			continue
		}
		s.rows[p.ID] = models.ScheduleRow{ProcedureID: p.ID, NextRunMs: nextMs}
	}
}

// RunExecutor ticks once a second, atomically draining the table, firing
// rows whose next_run <= now, and reinserting every row — fired rows with
// Pending=true, others unchanged (spec.md §4.6).
func (s *Scheduler) RunExecutor(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.executeOnce()
		}
	}
}

func (s *Scheduler) executeOnce() {
	now := s.clock().UnixMilli()

	s.mu.Lock()
	due := make([]string, 0)
	for id, row := range s.rows {
		if row.OK() && row.NextRunMs <= now {
			due = append(due, id)
			s.rows[id] = models.ScheduleRow{ProcedureID: id, Pending: true}
		}
	}
	s.mu.Unlock()

	for _, id := range due {
		s.run(id)
	}
}
