// Package procedurereg is the in-memory procedure-schedule registry that
// backs internal/schedule.Scheduler's ProcedureLister. A full Procedure
// resource kind (steps, executions, create/update hooks through
// internal/resource.Engine) is a follow-on; this registry is the narrow
// slice of it the scheduler needs today, mirroring the shape of the
// process-wide caches spec.md §9 describes (optionally snapshotted to
// disk, never backed by the embedded SQLite store itself).
package procedurereg

import (
	"github.com/komodo-run/komodo/internal/schedule"
	"github.com/komodo-run/komodo/internal/store"
)

// Registry is a mutex-protected, optionally disk-snapshotted set of
// procedure schedules.
type Registry struct {
	docs store.Collection[schedule.ProcedureSchedule]
}

// New builds a registry. If snapshotPath is non-empty, the registry loads
// its rows from that JSON file at construction and saves after every
// mutation (internal/store.JSONFileSnapshotter); an empty path keeps the
// registry purely in-memory.
func New(snapshotPath string) *Registry {
	var snap store.Snapshotter[schedule.ProcedureSchedule]
	if snapshotPath != "" {
		snap = store.NewJSONFileSnapshotter[schedule.ProcedureSchedule](snapshotPath)
	}
	return &Registry{docs: store.NewMemCollection[schedule.ProcedureSchedule](snap)}
}

func (r *Registry) Get(id string) (schedule.ProcedureSchedule, bool) { return r.docs.Get(id) }

func (r *Registry) List() []schedule.ProcedureSchedule { return r.docs.List() }

// Upsert inserts a new procedure schedule or replaces an existing one.
func (r *Registry) Upsert(ps schedule.ProcedureSchedule) error {
	if _, ok := r.docs.Get(ps.ID); ok {
		return r.docs.Replace(ps)
	}
	return r.docs.Insert(ps)
}

func (r *Registry) Delete(id string) error { return r.docs.Delete(id) }
