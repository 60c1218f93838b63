package coreapp

import (
	"time"

	"github.com/komodo-run/komodo/internal/alertengine"
	"github.com/komodo-run/komodo/internal/models"
	"github.com/komodo-run/komodo/internal/monitor"
)

// Threshold percentages for CPU/mem/disk alerts. Not specified by
// SPEC_FULL.md's invariants (only that thresholds exist); chosen as
// reasonable operator defaults, matching the shape of Pulse's own
// default threshold constants.
const (
	warningPct  = 75.0
	criticalPct = 90.0
)

func levelForPct(pct float64) models.AlertLevel {
	switch {
	case pct >= criticalPct:
		return models.AlertCritical
	case pct >= warningPct:
		return models.AlertWarning
	default:
		return models.AlertOk
	}
}

// handleSample turns one poll outcome into the alertengine.Sample calls
// spec.md §4.4 describes: unreachable, cpu, mem, and per-disk-path
// samples, plus disk-path reaping for mounts no longer reported.
func handleSample(engine *alertengine.Engine, server monitor.Server, snap monitor.Snapshot, polledAt time.Time) {
	target := models.PermissionTarget{Kind: models.KindServer, ID: server.ID}

	unreachableLevel := models.AlertOk
	if snap.Curr.State == monitor.ServerNotOk {
		unreachableLevel = models.AlertCritical
	}
	engine.Process(alertengine.Sample{
		Target:     target,
		Data:       models.AlertData{Variant: models.VariantServerUnreachable},
		Level:      unreachableLevel,
		SendAlerts: true,
		Now:        polledAt,
	})

	if snap.Curr.State != monitor.ServerOk {
		return
	}

	engine.Process(alertengine.Sample{
		Target:     target,
		Data:       models.AlertData{Variant: models.VariantServerCpu, Fields: map[string]interface{}{"pct": snap.Curr.CpuPct}},
		Level:      levelForPct(snap.Curr.CpuPct),
		SendAlerts: true,
		Now:        polledAt,
	})

	engine.Process(alertengine.Sample{
		Target:     target,
		Data:       models.AlertData{Variant: models.VariantServerMem, Fields: map[string]interface{}{"pct": snap.Curr.MemPct}},
		Level:      levelForPct(snap.Curr.MemPct),
		SendAlerts: true,
		Now:        polledAt,
	})

	reported := make(map[string]bool, len(snap.Curr.Disks))
	for _, d := range snap.Curr.Disks {
		reported[d.Path] = true
		usedPct := 0.0
		if d.TotalGiB > 0 {
			usedPct = d.UsedGiB / d.TotalGiB * 100
		}
		engine.Process(alertengine.Sample{
			Target: target,
			Data: models.AlertData{
				Variant: models.VariantServerDisk,
				Path:    d.Path,
				Fields:  map[string]interface{}{"used_pct": usedPct},
			},
			Level:      levelForPct(usedPct),
			SendAlerts: true,
			Now:        polledAt,
		})
	}
	engine.ResolveMissingDiskPaths(target, reported, polledAt)
}
