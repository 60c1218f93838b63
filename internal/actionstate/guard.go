// Package actionstate implements the per-resource ActionState guard
// (spec.md §3, §4.11): a process-wide map of currently-running action
// flags used to deny overlapping mutations, released on every exit path.
package actionstate

import (
	"fmt"
	"sync"

	"github.com/komodo-run/komodo/internal/models"
)

// ErrBusy is returned when a guard is already held for the flag.
type ErrBusy struct {
	ResourceID string
	Flag       models.ActionFlag
}

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("resource %s is busy (%s)", e.ResourceID, e.Flag)
}

// Map is the process-wide table: resourceID -> set of active flags. It is
// reconstructed empty on every process start (spec.md §9).
type Map struct {
	mu    sync.Mutex
	flags map[string]map[models.ActionFlag]bool
}

func New() *Map {
	return &Map{flags: make(map[string]map[models.ActionFlag]bool)}
}

// Busy reports whether any flag is currently set for the resource.
func (m *Map) Busy(resourceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.flags[resourceID]) > 0
}

// Acquire sets flag for resourceID, failing with ErrBusy if it is already
// set. The returned release func must be called exactly once, on every
// exit path, to clear the flag.
func (m *Map) Acquire(resourceID string, flag models.ActionFlag) (release func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.flags[resourceID]
	if set != nil && set[flag] {
		return nil, &ErrBusy{ResourceID: resourceID, Flag: flag}
	}
	if set == nil {
		set = make(map[models.ActionFlag]bool)
		m.flags[resourceID] = set
	}
	set[flag] = true

	var once sync.Once
	release = func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.flags[resourceID], flag)
			if len(m.flags[resourceID]) == 0 {
				delete(m.flags, resourceID)
			}
		})
	}
	return release, nil
}
