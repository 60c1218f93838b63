// Package handlers wires Periphery's concrete request handlers into a
// periphery/dispatch.Dispatcher: version/stats/container reporting
// (spec.md §4.4) and the compose action / deploy entry points
// (spec.md §4.7, §4.11).
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/komodo-run/komodo/internal/command"
	"github.com/komodo-run/komodo/internal/models"
	"github.com/komodo-run/komodo/internal/stackaction"
	"github.com/komodo-run/komodo/periphery/containers"
	"github.com/komodo-run/komodo/periphery/dispatch"
	"github.com/komodo-run/komodo/periphery/stackdeploy"
	"github.com/komodo-run/komodo/periphery/sysstats"
)

// Register binds every Periphery request variant to dispatcher.
func Register(dispatcher *dispatch.Dispatcher, version, stacksRoot string, pipeline *stackdeploy.Pipeline) {
	dispatcher.Register("GetVersion", func(r *http.Request, _ json.RawMessage) (interface{}, error) {
		return getVersion(version)
	})
	dispatcher.Register("GetSystemStats", func(r *http.Request, _ json.RawMessage) (interface{}, error) {
		return getSystemStats(r.Context())
	})
	dispatcher.Register("GetContainerList", func(r *http.Request, _ json.RawMessage) (interface{}, error) {
		return getContainerList(r.Context())
	})
	dispatcher.Register("ComposeAction", func(r *http.Request, params json.RawMessage) (interface{}, error) {
		return composeAction(r.Context(), stacksRoot, params)
	})
	dispatcher.Register("DeployStack", func(r *http.Request, params json.RawMessage) (interface{}, error) {
		return deployStack(r.Context(), pipeline, params)
	})
}

type versionResponse struct {
	Version string `json:"version"`
}

func getVersion(version string) (interface{}, error) {
	return versionResponse{Version: version}, nil
}

type diskResponse struct {
	Path     string  `json:"path"`
	TotalGiB float64 `json:"total_gib"`
	UsedGiB  float64 `json:"used_gib"`
}

type systemStatsResponse struct {
	CPUPercent float64        `json:"cpu_percent"`
	MemPercent float64        `json:"mem_percent"`
	Disks      []diskResponse `json:"disks"`
}

func getSystemStats(ctx context.Context) (interface{}, error) {
	cpuPct, memPct, disks, err := sysstats.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("handlers: collect system stats: %w", err)
	}
	out := systemStatsResponse{CPUPercent: cpuPct, MemPercent: memPct}
	for _, d := range disks {
		out.Disks = append(out.Disks, diskResponse{Path: d.Path, TotalGiB: d.TotalGiB, UsedGiB: d.UsedGiB})
	}
	return out, nil
}

type containerListResponse struct {
	Containers []containers.Summary `json:"containers"`
}

func getContainerList(ctx context.Context) (interface{}, error) {
	list, err := containers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("handlers: list containers: %w", err)
	}
	return containerListResponse{Containers: list}, nil
}

type composeActionRequest struct {
	Directory string                    `json:"directory"`
	Command   stackaction.ComposeCommand `json:"command"`
}

type composeActionResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

func composeAction(ctx context.Context, stacksRoot string, raw json.RawMessage) (interface{}, error) {
	var req composeActionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("handlers: decode ComposeAction params: %w", err)
	}

	dir := req.Directory
	if dir == "" {
		dir = stacksRoot
	}

	cmdLine := "docker compose " + strings.Join(req.Command.Args(), " ")
	result := command.Run(ctx, dir, cmdLine)
	return composeActionResponse{Stdout: result.Stdout, Stderr: result.Stderr, ExitCode: result.ExitCode}, nil
}

func deployStack(ctx context.Context, pipeline *stackdeploy.Pipeline, raw json.RawMessage) (interface{}, error) {
	var spec stackdeploy.Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("handlers: decode DeployStack params: %w", err)
	}

	startTs := time.Now()
	update := &models.Update{
		ID:        spec.Name,
		Operation: "Deploy",
		Target:    models.PermissionTarget{Kind: models.KindStack, ID: spec.Name},
		StartTs:   startTs,
		Status:    "InProgress",
	}

	err := pipeline.Deploy(ctx, spec, update)
	end := time.Now()
	update.EndTs = &end
	update.Status = "Complete"
	update.Success = update.AllLogsSucceeded()

	return update, err
}
