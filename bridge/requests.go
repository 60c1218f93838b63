package bridge

import (
	"context"
)

// DiskUsage mirrors periphery/sysstats.DiskUsage on the wire.
type DiskUsage struct {
	Path     string  `json:"path"`
	TotalGiB float64 `json:"total_gib"`
	UsedGiB  float64 `json:"used_gib"`
}

type systemStatsResponse struct {
	CPUPercent float64     `json:"cpu_percent"`
	MemPercent float64     `json:"mem_percent"`
	Disks      []DiskUsage `json:"disks"`
}

// GetAllSystemStats calls Periphery's GetSystemStats request variant,
// satisfying internal/monitor.PeripheryClient.
func (c *Client) GetAllSystemStats(ctx context.Context) (cpuPct, memPct float64, disks []DiskUsage, err error) {
	var out systemStatsResponse
	if err := c.Call(ctx, "GetSystemStats", struct{}{}, &out); err != nil {
		return 0, 0, nil, err
	}
	return out.CPUPercent, out.MemPercent, out.Disks, nil
}

// ContainerSummary mirrors periphery/containers.Summary on the wire.
type ContainerSummary struct {
	Name  string `json:"Name"`
	State string `json:"State"`
}

type containerListResponse struct {
	Containers []ContainerSummary `json:"containers"`
}

// GetContainerList calls Periphery's GetContainerList request variant.
func (c *Client) GetContainerList(ctx context.Context) ([]ContainerSummary, error) {
	var out containerListResponse
	if err := c.Call(ctx, "GetContainerList", struct{}{}, &out); err != nil {
		return nil, err
	}
	return out.Containers, nil
}

// ComposeActionRequest is the wire shape periphery/handlers.composeAction
// decodes.
type ComposeActionRequest struct {
	Directory string      `json:"directory"`
	Command   interface{} `json:"command"`
}

type composeActionResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// ComposeAction calls Periphery's ComposeAction request variant.
func (c *Client) ComposeAction(ctx context.Context, directory string, command interface{}) (stdout, stderr string, err error) {
	var out composeActionResponse
	if callErr := c.Call(ctx, "ComposeAction", ComposeActionRequest{Directory: directory, Command: command}, &out); callErr != nil {
		return "", "", callErr
	}
	if out.ExitCode != 0 {
		err = errExitCode(out.ExitCode)
	}
	return out.Stdout, out.Stderr, err
}

type errExitCode int

func (e errExitCode) Error() string {
	return "bridge: compose action exited non-zero"
}
