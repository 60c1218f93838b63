// Package sysstats collects the host metrics Periphery reports back to
// Core for the periodic poll (spec.md §4.4 "what a poll gathers"):
// CPU/mem percentages and per-mount disk usage. Grounded on
// _examples/rcourtman-Pulse/cmd/pulse-agent/main.go's use of
// github.com/shirou/gopsutil/v4 for host metrics collection — the pack's
// answer to "which library reads host stats" rather than hand-parsing
// /proc ourselves.
package sysstats

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// DiskUsage mirrors internal/monitor.DiskUsage's shape without importing
// it, keeping periphery independent of Core's internal packages.
type DiskUsage struct {
	Path     string
	TotalGiB float64
	UsedGiB  float64
}

const bytesPerGiB = 1024 * 1024 * 1024

// ExcludedFsTypes skips virtual/pseudo filesystems that clutter disk
// reporting with zero-capacity or duplicate mounts.
var excludedFsTypes = map[string]bool{
	"tmpfs": true, "devtmpfs": true, "proc": true, "sysfs": true,
	"cgroup": true, "cgroup2": true, "overlay": true, "squashfs": true,
	"devpts": true, "mqueue": true, "debugfs": true, "tracefs": true,
}

// Collect gathers CPU percent, memory percent and disk usage in one pass.
// A partial-error path (e.g. disk stat permission failure on one mount)
// does not abort the whole collection — it just omits that mount.
func Collect(ctx context.Context) (cpuPct, memPct float64, disks []DiskUsage, err error) {
	cpuPercents, cerr := cpu.PercentWithContext(ctx, 0, false)
	if cerr != nil {
		return 0, 0, nil, cerr
	}
	if len(cpuPercents) > 0 {
		cpuPct = cpuPercents[0]
	}

	vm, merr := mem.VirtualMemoryWithContext(ctx)
	if merr != nil {
		return 0, 0, nil, merr
	}
	memPct = vm.UsedPercent

	partitions, perr := disk.PartitionsWithContext(ctx, false)
	if perr != nil {
		return cpuPct, memPct, nil, perr
	}

	for _, part := range partitions {
		if excludedFsTypes[strings.ToLower(part.Fstype)] {
			continue
		}
		usage, uerr := disk.UsageWithContext(ctx, part.Mountpoint)
		if uerr != nil {
			continue
		}
		if usage.Total == 0 {
			continue
		}
		disks = append(disks, DiskUsage{
			Path:     part.Mountpoint,
			TotalGiB: float64(usage.Total) / bytesPerGiB,
			UsedGiB:  float64(usage.Used) / bytesPerGiB,
		})
	}

	return cpuPct, memPct, disks, nil
}
