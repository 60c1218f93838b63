package alertengine

import (
	"sync"
	"testing"
	"time"

	"github.com/komodo-run/komodo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	opened   []models.Alert
	updated  []models.Alert
	resolved []models.Alert
}

func (s *fakeStore) Open(a models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, a)
	return nil
}

func (s *fakeStore) UpdateAlert(a models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, a)
	return nil
}

func (s *fakeStore) Resolve(a models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, a)
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	notified []models.Alert
}

func (n *fakeNotifier) Notify(a models.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, a)
}

func newTestEngine() (*Engine, *fakeStore, *fakeNotifier) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	n := 0
	e := New(store, notifier, func() string {
		n++
		return "alert-" + string(rune('0'+n))
	})
	return e, store, notifier
}

func cpuSample(target models.PermissionTarget, level models.AlertLevel, maintenance bool) Sample {
	return Sample{
		Target:            target,
		Data:              models.AlertData{Variant: models.VariantServerCpu},
		Level:              level,
		MaintenanceActive: maintenance,
		SendAlerts:        true,
		Now:               time.Now(),
	}
}

func TestProcess_SingleOffendingSampleOnlyArmsBuffer(t *testing.T) {
	e, store, _ := newTestEngine()
	target := models.PermissionTarget{Kind: models.KindServer, ID: "s1"}

	e.Process(cpuSample(target, models.AlertCritical, false))

	assert.Empty(t, store.opened)
	assert.Empty(t, e.OpenAlerts())
}

func TestProcess_SecondConsecutiveOffendingSampleOpensAlert(t *testing.T) {
	e, store, notifier := newTestEngine()
	target := models.PermissionTarget{Kind: models.KindServer, ID: "s1"}

	e.Process(cpuSample(target, models.AlertCritical, false))
	e.Process(cpuSample(target, models.AlertCritical, false))

	require.Len(t, store.opened, 1)
	assert.Equal(t, models.AlertCritical, store.opened[0].Level)
	require.Len(t, notifier.notified, 1)
	assert.Len(t, e.OpenAlerts(), 1)
}

func TestProcess_MaintenanceSuppressesNewAlert(t *testing.T) {
	e, store, _ := newTestEngine()
	target := models.PermissionTarget{Kind: models.KindServer, ID: "s1"}

	e.Process(cpuSample(target, models.AlertCritical, true))
	e.Process(cpuSample(target, models.AlertCritical, true))
	e.Process(cpuSample(target, models.AlertCritical, true))

	assert.Empty(t, store.opened)

	// After the window ends, a fresh consecutive pair is required.
	e.Process(cpuSample(target, models.AlertCritical, false))
	assert.Empty(t, store.opened)
	e.Process(cpuSample(target, models.AlertCritical, false))
	assert.Len(t, store.opened, 1)
}

func TestProcess_EscalationUpdatesOpenAlertWithoutNotify(t *testing.T) {
	e, store, notifier := newTestEngine()
	target := models.PermissionTarget{Kind: models.KindServer, ID: "s1"}

	e.Process(cpuSample(target, models.AlertWarning, false))
	e.Process(cpuSample(target, models.AlertWarning, false))
	require.Len(t, store.opened, 1)

	e.Process(cpuSample(target, models.AlertCritical, false))
	require.Len(t, store.updated, 1)
	assert.Equal(t, models.AlertCritical, store.updated[0].Level)
	// Escalation does not notify again in this model.
	assert.Len(t, notifier.notified, 1)
	assert.Equal(t, models.AlertCritical, e.OpenAlerts()[0].Level)
}

func TestProcess_LowerSeverityWhileOpenIsNoop(t *testing.T) {
	e, store, _ := newTestEngine()
	target := models.PermissionTarget{Kind: models.KindServer, ID: "s1"}

	e.Process(cpuSample(target, models.AlertCritical, false))
	e.Process(cpuSample(target, models.AlertCritical, false))
	require.Len(t, store.opened, 1)

	e.Process(cpuSample(target, models.AlertWarning, false))
	assert.Empty(t, store.updated)
	assert.Equal(t, models.AlertCritical, e.OpenAlerts()[0].Level)
}

func TestProcess_OkSampleResolvesOpenAlert(t *testing.T) {
	e, store, _ := newTestEngine()
	target := models.PermissionTarget{Kind: models.KindServer, ID: "s1"}

	e.Process(cpuSample(target, models.AlertCritical, false))
	e.Process(cpuSample(target, models.AlertCritical, false))
	require.Len(t, store.opened, 1)

	e.Process(cpuSample(target, models.AlertOk, false))
	require.Len(t, store.resolved, 1)
	assert.True(t, store.resolved[0].Resolved)
	assert.Empty(t, e.OpenAlerts())
}

func TestResolveMissingDiskPaths_ClosesAlertForVanishedMount(t *testing.T) {
	e, store, _ := newTestEngine()
	target := models.PermissionTarget{Kind: models.KindServer, ID: "s1"}
	diskSample := func(path string, level models.AlertLevel) Sample {
		return Sample{
			Target: target,
			Data:   models.AlertData{Variant: models.VariantServerDisk, Path: path},
			Level:  level,
			Now:    time.Now(),
		}
	}

	e.Process(diskSample("/data", models.AlertCritical))
	e.Process(diskSample("/data", models.AlertCritical))
	require.Len(t, e.OpenAlerts(), 1)

	e.ResolveMissingDiskPaths(target, map[string]bool{"/other": true}, time.Now())

	assert.Empty(t, e.OpenAlerts())
	require.Len(t, store.resolved, 1)
}

func TestEmitStackStateChange_SkippedWhileDeploying(t *testing.T) {
	e, store, _ := newTestEngine()
	target := models.PermissionTarget{Kind: models.KindStack, ID: "st1"}

	e.EmitStackStateChange(target, "Running", "Stopped", true, true, time.Now())
	assert.Empty(t, store.opened)
}

func TestEmitStackStateChange_RecordsResolvedHistoricalAlert(t *testing.T) {
	e, store, notifier := newTestEngine()
	target := models.PermissionTarget{Kind: models.KindStack, ID: "st1"}

	e.EmitStackStateChange(target, "Running", "Stopped", false, true, time.Now())

	require.Len(t, store.opened, 1)
	assert.True(t, store.opened[0].Resolved)
	assert.NotNil(t, store.opened[0].ResolvedTs)
	require.Len(t, notifier.notified, 1)
	assert.Empty(t, e.OpenAlerts())
}

func TestEmitStackStateChange_SameStateIsNoop(t *testing.T) {
	e, store, _ := newTestEngine()
	target := models.PermissionTarget{Kind: models.KindStack, ID: "st1"}

	e.EmitStackStateChange(target, "Running", "Running", false, true, time.Now())
	assert.Empty(t, store.opened)
}
