// Package monitor implements the fixed-cadence status/stat poller
// (spec.md §4.3): a fan-out over all servers, per-kind status caches for
// edge detection, and alert-sample derivation feeding internal/alertengine.
package monitor

import "sync"

// ServerState is the outcome of one poll of a server.
type ServerState string

const (
	ServerOk       ServerState = "Ok"
	ServerNotOk    ServerState = "NotOk"
	ServerDisabled ServerState = "Disabled"
	ServerUnknown  ServerState = "Unknown"
)

// DeploymentState mirrors a container's observed lifecycle state, joined
// onto a deployment by container name.
type DeploymentState string

const (
	DeploymentRunning     DeploymentState = "Running"
	DeploymentExited      DeploymentState = "Exited"
	DeploymentRestarting  DeploymentState = "Restarting"
	DeploymentNotDeployed DeploymentState = "NotDeployed"
	DeploymentUnknown     DeploymentState = "Unknown"
)

// ServerStatus is one poll outcome for a server: version, per-disk usage,
// cpu/mem percentages and the container list, or just the failure state
// when unreachable.
type ServerStatus struct {
	State     ServerState
	Version   string // "unknown" when the server could not be reached
	CpuPct    float64
	MemPct    float64
	Disks     []DiskUsage
	Containers []ContainerSummary
}

type DiskUsage struct {
	Path      string
	TotalGiB  float64
	UsedGiB   float64
}

type ContainerSummary struct {
	Name  string
	State DeploymentState
}

// Snapshot is a cache slot: curr is the latest poll outcome, prev is the
// previous curr — used for edge detection (spec.md §3 ResourceStatusCache).
type Snapshot struct {
	Prev ServerStatus
	Curr ServerStatus
}

// StatusCache is the process-wide per-server cache; a plain
// mutex-protected map per spec.md §9's "process-wide caches" guidance.
// pollOnce fans Update calls out across an errgroup bounded by
// MaxConcurrentPolls, so Get/Update must be safe for concurrent use.
type StatusCache struct {
	mu   sync.Mutex
	rows map[string]Snapshot
}

func NewStatusCache() *StatusCache {
	return &StatusCache{rows: make(map[string]Snapshot)}
}

func (c *StatusCache) Get(serverID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.rows[serverID]
	return s, ok
}

// Update shifts curr into prev and stores the new curr, returning the
// resulting snapshot. Cache update strictly precedes alert evaluation so
// edge detection sees the latest sample (spec.md §4.3 "Ordering").
func (c *StatusCache) Update(serverID string, curr ServerStatus) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.rows[serverID].Curr
	snap := Snapshot{Prev: prev, Curr: curr}
	c.rows[serverID] = snap
	return snap
}

// DeploymentSnapshot is the joined state for one deployment, derived in
// step 4 of the poll cycle by matching its container name against the
// server's container list.
type DeploymentSnapshot struct {
	DeploymentID string
	ServerID     string
	State        DeploymentState
}

// JoinDeployments matches each deployment's configured container name
// against the server's freshly-polled container list.
func JoinDeployments(deployments []Deployment, containers []ContainerSummary) []DeploymentSnapshot {
	byName := make(map[string]ContainerSummary, len(containers))
	for _, c := range containers {
		byName[c.Name] = c
	}

	out := make([]DeploymentSnapshot, 0, len(deployments))
	for _, d := range deployments {
		state := DeploymentNotDeployed
		if c, ok := byName[d.ContainerName]; ok {
			state = c.State
		}
		out = append(out, DeploymentSnapshot{DeploymentID: d.ID, ServerID: d.ServerID, State: state})
	}
	return out
}

// Deployment is the minimal view the poller needs to join container state.
type Deployment struct {
	ID            string
	ServerID      string
	ContainerName string
}
