// Package alertengine implements the alert open/update/resolve lifecycle
// with two-tick debouncing and maintenance suppression (spec.md §4.4),
// generalizing the debounce-buffer-plus-open-alert-map shape of the
// teacher's internal/alerts package (see DESIGN.md).
package alertengine

import (
	"sync"
	"time"

	"github.com/komodo-run/komodo/internal/models"
	"github.com/rs/zerolog/log"
)

// Store persists alert lifecycle transitions. Implementations may be
// backed by internal/store; failures are logged, never fatal, and never
// block notification (spec.md §4.4 "Persisted writes ... run in parallel;
// a persistence failure logs but does not block notification").
type Store interface {
	Open(alert models.Alert) error
	UpdateAlert(alert models.Alert) error
	Resolve(alert models.Alert) error
}

// Notifier dispatches an alert to configured alerters. Called only when
// the per-resource send flag is true.
type Notifier interface {
	Notify(alert models.Alert)
}

// Sample is one metric observation fed into the engine per server per
// category per poll (spec.md §4.4).
type Sample struct {
	Target            models.PermissionTarget
	Data              models.AlertData
	Level             models.AlertLevel
	MaintenanceActive bool
	SendAlerts        bool
	Now               time.Time
}

// Engine holds the per-(target,variant[,path]) debounce buffer and the
// open-alert map; both are process-local in-memory caches reconstructed
// at startup (spec.md §9).
type Engine struct {
	mu      sync.Mutex
	buffer  map[string]bool // key -> armed (one offending sample seen, awaiting confirmation)
	open    map[string]*models.Alert
	store   Store
	notify  Notifier
	newID   func() string
	// ShouldClose lets callers apply metric-specific hysteresis before
	// resolving; defaults to "always close on an Ok sample".
	ShouldClose func(open *models.Alert, sample Sample) bool
}

func New(store Store, notifier Notifier, newID func() string) *Engine {
	return &Engine{
		buffer: make(map[string]bool),
		open:   make(map[string]*models.Alert),
		store:  store,
		notify: notifier,
		newID:  newID,
	}
}

// OpenAlerts returns a snapshot of currently-open alerts.
func (e *Engine) OpenAlerts() []*models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.Alert, 0, len(e.open))
	for _, a := range e.open {
		out = append(out, a)
	}
	return out
}

// Process evaluates one sample against the current buffer/open-alert state
// and applies the transition table from spec.md §4.4.
func (e *Engine) Process(sample Sample) {
	key := sample.Data.Key(sample.Target)

	e.mu.Lock()
	open := e.open[key]

	switch {
	case sample.Level != models.AlertOk && open == nil:
		e.handleNewOffending(key, sample)

	case sample.Level != models.AlertOk && open != nil:
		e.handleEscalation(open, sample)

	case sample.Level == models.AlertOk && open != nil:
		e.handlePossibleClose(key, open, sample)

	default: // Ok, no open alert
		delete(e.buffer, key)
	}
	e.mu.Unlock()
}

// handleNewOffending implements the two-tick debounce: the first offending
// sample only arms the buffer; the second (while still armed) opens a new
// alert, provided maintenance is not active. Maintenance freezes the
// buffer entirely so that once the window ends, a fresh consecutive pair
// is required (spec.md §8 scenario 3).
func (e *Engine) handleNewOffending(key string, sample Sample) {
	if sample.MaintenanceActive {
		return
	}
	if !e.buffer[key] {
		e.buffer[key] = true
		return
	}

	alert := &models.Alert{
		ID:     e.newID(),
		Ts:     sample.Now,
		Target: sample.Target,
		Level:  sample.Level,
		Data:   sample.Data,
	}
	e.open[key] = alert
	delete(e.buffer, key)
	e.persistAndNotify(alert, sample.SendAlerts, func() error { return e.store.Open(*alert) })
}

// handleEscalation updates an already-open alert's level/payload when the
// new sample is strictly more severe, while maintenance is inactive.
// Severity can never decrease outside of resolution (spec.md §4.4).
func (e *Engine) handleEscalation(open *models.Alert, sample Sample) {
	if sample.MaintenanceActive {
		return
	}
	if !sample.Level.Greater(open.Level) {
		return
	}
	open.Level = sample.Level
	open.Data = sample.Data
	e.persistAndNotify(nil, false, func() error { return e.store.UpdateAlert(*open) })
}

func (e *Engine) handlePossibleClose(key string, open *models.Alert, sample Sample) {
	shouldClose := e.ShouldClose
	if shouldClose == nil {
		shouldClose = func(*models.Alert, Sample) bool { return true }
	}
	if !shouldClose(open, sample) {
		return
	}
	resolvedTs := sample.Now
	open.Resolved = true
	open.ResolvedTs = &resolvedTs
	open.Level = models.AlertOk
	delete(e.open, key)
	delete(e.buffer, key)
	e.persistAndNotify(open, sample.SendAlerts, func() error { return e.store.Resolve(*open) })
}

// ResolveMissingDiskPaths resolves any open ServerDisk alert for server
// whose mount path is no longer reported (spec.md §4.4).
func (e *Engine) ResolveMissingDiskPaths(server models.PermissionTarget, reportedPaths map[string]bool, now time.Time) {
	e.mu.Lock()
	var toClose []string
	for key, alert := range e.open {
		if alert.Target != server || alert.Data.Variant != models.VariantServerDisk {
			continue
		}
		if !reportedPaths[alert.Data.Path] {
			toClose = append(toClose, key)
		}
	}
	for _, key := range toClose {
		alert := e.open[key]
		resolvedTs := now
		alert.Resolved = true
		alert.ResolvedTs = &resolvedTs
		alert.Level = models.AlertOk
		delete(e.open, key)
		e.persistAndNotify(alert, false, func() error { return e.store.Resolve(*alert) })
	}
	e.mu.Unlock()
}

// EmitStackStateChange records a level-triggered, immediately-resolved
// historical alert when a stack's observed state changes (spec.md §4.4).
// Per spec.md's stated current behavior (and SPEC_FULL.md §6 Open Question
// #3), these are NOT suppressed by maintenance — only by an in-progress
// deploy.
func (e *Engine) EmitStackStateChange(target models.PermissionTarget, from, to string, deploying bool, sendAlerts bool, now time.Time) {
	if deploying || from == to || from == "Unknown" || to == "Unknown" || from == "" {
		return
	}
	resolvedTs := now
	alert := &models.Alert{
		ID:     e.newID(),
		Ts:     now,
		Target: target,
		Level:  models.AlertOk,
		Data: models.AlertData{
			Variant: models.VariantStackStateChange,
			Fields:  map[string]interface{}{"from": from, "to": to},
		},
		Resolved:   true,
		ResolvedTs: &resolvedTs,
	}
	e.persistAndNotify(alert, sendAlerts, func() error { return e.store.Open(*alert) })
}

// persistAndNotify runs the store write and the notification dispatch in
// parallel, logging either failure without letting it block the other
// (spec.md §4.4, §5 "Ordering").
func (e *Engine) persistAndNotify(alert *models.Alert, sendAlerts bool, persist func() error) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := persist(); err != nil {
			log.Error().Err(err).Msg("alertengine: persistence failed")
		}
	}()

	if sendAlerts && alert != nil && e.notify != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.notify.Notify(*alert)
		}()
	}
	wg.Wait()
}
