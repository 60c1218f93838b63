// Package containers enumerates the containers running on a Periphery
// host for the poll response (spec.md §4.4). Grounded on DESIGN.md's
// dropped-dependency note: original_source shells out to the docker CLI
// rather than linking the Engine API, so this drives `docker ps` through
// internal/command the same way periphery/stackdeploy drives
// `docker compose`.
package containers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/komodo-run/komodo/internal/command"
)

// Summary is one running-or-stopped container as reported by `docker ps`.
type Summary struct {
	Name  string
	State string
}

type psLine struct {
	Names string `json:"Names"`
	State string `json:"State"`
}

// List runs `docker ps -a` and parses its newline-delimited JSON output.
func List(ctx context.Context) ([]Summary, error) {
	result := command.Run(ctx, "", `docker ps -a --format '{{json .}}'`)
	if !result.Success {
		return nil, fmt.Errorf("containers: docker ps: exit %d: %s", result.ExitCode, result.Stderr)
	}

	var out []Summary
	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var parsed psLine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		out = append(out, Summary{Name: parsed.Names, State: parsed.State})
	}
	return out, nil
}
