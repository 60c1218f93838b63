package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// PeripheryClient is the subset of bridge calls the poller needs per
// server; production wires this to the bridge package's HTTP client.
type PeripheryClient interface {
	GetVersion(ctx context.Context, serverID string) (string, error)
	GetAllSystemStats(ctx context.Context, serverID string) (cpuPct, memPct float64, disks []DiskUsage, err error)
	GetContainerList(ctx context.Context, serverID string) ([]ContainerSummary, error)
}

// Server is the minimal view of a Server resource the poller needs.
type Server struct {
	ID       string
	Disabled bool
}

// ServerLister supplies the current set of servers each poll; the
// resource engine's ListForUser(poller user) stands behind this in
// production.
type ServerLister func() []Server

// SampleSink receives one ServerStatus snapshot per server per poll, after
// the cache update, to drive alert evaluation and stats recording (spec.md
// §4.3 step 5). Implementations own converting this into alertengine
// Samples per metric category.
type SampleSink func(server Server, snap Snapshot, polledAt time.Time)

// MaxConcurrentPolls bounds the fan-out per tick so a large fleet does not
// open unbounded concurrent connections to Periphery.
const MaxConcurrentPolls = 16

// Poller runs the fixed-cadence status loop.
type Poller struct {
	Interval time.Duration
	Client   PeripheryClient
	List     ServerLister
	Cache    *StatusCache
	Sink     SampleSink
	Now      func() time.Time
}

func New(client PeripheryClient, list ServerLister, sink SampleSink) *Poller {
	return &Poller{
		Interval: 5 * time.Second,
		Client:   client,
		List:     list,
		Cache:    NewStatusCache(),
		Sink:     sink,
		Now:      time.Now,
	}
}

// Run loops until ctx is cancelled, polling once per Interval. A transient
// failure for one server never halts the loop (spec.md §7 "Background
// loops ... log and continue").
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	servers := p.List()
	polledAt := p.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentPolls)

	for _, server := range servers {
		server := server
		g.Go(func() error {
			status := p.pollServer(gctx, server)
			snap := p.Cache.Update(server.ID, status)
			if p.Sink != nil {
				p.Sink(server, snap, polledAt)
			}
			return nil
		})
	}

	// errgroup.Wait never returns a non-nil error here since pollServer
	// swallows its own failures into a NotOk status.
	_ = g.Wait()
}

func (p *Poller) pollServer(ctx context.Context, server Server) ServerStatus {
	if server.Disabled {
		return ServerStatus{State: ServerDisabled, Version: "unknown"}
	}

	version, err := p.Client.GetVersion(ctx, server.ID)
	if err != nil {
		log.Warn().Err(err).Str("server", server.ID).Msg("monitor: GetVersion failed")
		return ServerStatus{State: ServerNotOk, Version: "unknown"}
	}

	cpuPct, memPct, disks, err := p.Client.GetAllSystemStats(ctx, server.ID)
	if err != nil {
		log.Warn().Err(err).Str("server", server.ID).Msg("monitor: GetAllSystemStats failed")
		return ServerStatus{State: ServerNotOk, Version: "unknown"}
	}

	containers, err := p.Client.GetContainerList(ctx, server.ID)
	if err != nil {
		log.Warn().Err(err).Str("server", server.ID).Msg("monitor: GetContainerList failed")
		return ServerStatus{State: ServerNotOk, Version: "unknown"}
	}

	return ServerStatus{
		State:      ServerOk,
		Version:    version,
		CpuPct:     cpuPct,
		MemPct:     memPct,
		Disks:      disks,
		Containers: containers,
	}
}
