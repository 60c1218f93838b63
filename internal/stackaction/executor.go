// Package stackaction implements the stack action executor (spec.md
// §4.11): ActionState guard acquisition, the Periphery compose call,
// cache refresh, and Update finalization, for Deploy/Start/Restart/
// Pause/Unpause/Stop/Destroy. Grounded on the generalized ordering from
// original_source/bin/core/src/stack/execute.rs — guard before call,
// cache refresh after call, Update finalization last.
package stackaction

import (
	"context"
	"fmt"
	"time"

	"github.com/komodo-run/komodo/internal/actionstate"
	"github.com/komodo-run/komodo/internal/models"
	"github.com/rs/zerolog/log"
)

// Action is one of the seven stack lifecycle operations.
type Action string

const (
	ActionDeploy   Action = "Deploy"
	ActionStart    Action = "Start"
	ActionRestart  Action = "Restart"
	ActionPause    Action = "Pause"
	ActionUnpause  Action = "Unpause"
	ActionStop     Action = "Stop"
	ActionDestroy  Action = "Destroy"
)

// flagFor maps an Action to the ActionState flag it holds while running.
func flagFor(a Action) models.ActionFlag {
	switch a {
	case ActionDeploy:
		return models.ActionDeploying
	case ActionStart:
		return models.ActionStarting
	case ActionRestart:
		return models.ActionRestarting
	case ActionPause:
		return models.ActionPausing
	case ActionUnpause:
		return models.ActionUnpausing
	case ActionStop:
		return models.ActionStopping
	default:
		return models.ActionDestroying
	}
}

// ComposeCommand is the constructed invocation handed to the Periphery
// compose endpoint: services joined with spaces, --timeout and
// --remove-orphans only present when requested.
type ComposeCommand struct {
	Project        string
	Action         Action
	Services       []string
	TimeoutSeconds int  // 0 means omit --timeout
	RemoveOrphans  bool
}

// Args renders the docker compose CLI arguments for this command, the
// same shape Periphery's compose pipeline expects to receive.
func (c ComposeCommand) Args() []string {
	args := []string{"-p", c.Project}

	switch c.Action {
	case ActionDeploy:
		args = append(args, "up", "-d")
		if c.RemoveOrphans {
			args = append(args, "--remove-orphans")
		}
	case ActionStart:
		args = append(args, "start")
	case ActionRestart:
		args = append(args, "restart")
	case ActionPause:
		args = append(args, "pause")
	case ActionUnpause:
		args = append(args, "unpause")
	case ActionStop:
		args = append(args, "stop")
		if c.TimeoutSeconds > 0 {
			args = append(args, "--timeout", fmt.Sprint(c.TimeoutSeconds))
		}
	case ActionDestroy:
		args = append(args, "down")
		if c.TimeoutSeconds > 0 {
			args = append(args, "--timeout", fmt.Sprint(c.TimeoutSeconds))
		}
		if c.RemoveOrphans {
			args = append(args, "--remove-orphans")
		}
	}

	args = append(args, c.Services...)
	return args
}

// PeripheryCaller invokes the compose action on the target server.
type PeripheryCaller interface {
	ComposeAction(ctx context.Context, serverID string, cmd ComposeCommand) (stdout, stderr string, err error)
}

// CacheRefresher refreshes the monitor status cache for a server so the
// UI reflects the new state immediately (spec.md §4.11 step 5).
type CacheRefresher func(serverID string)

// UpdateStore persists the in-progress and finalized Update record.
type UpdateStore interface {
	Save(update models.Update) error
}

// Executor runs stack actions under the shared ActionState guard map.
type Executor struct {
	Guards    *actionstate.Map
	Periphery PeripheryCaller
	Refresh   CacheRefresher
	Updates   UpdateStore
	Now       func() time.Time
	NewID     func() string
}

// Request is one action invocation, permission-checked by the caller
// before Execute is called (mirrors internal/resource's Get-then-mutate
// split: the engine resolves + checks permission, stackaction only runs
// the guarded pipeline).
type Request struct {
	StackID    string
	ServerID   string
	OperatorID string
	Command    ComposeCommand
}

// Execute runs the full guarded pipeline and always returns a finalized
// Update, even on failure; the guard is released on every exit path.
func (e *Executor) Execute(ctx context.Context, action Action, req Request) (models.Update, error) {
	flag := flagFor(action)
	release, err := e.Guards.Acquire(req.StackID, flag)
	if err != nil {
		return models.Update{}, err
	}
	defer release()

	update := models.Update{
		ID:         e.NewID(),
		Operation:  string(action),
		Target:     models.PermissionTarget{Kind: models.KindStack, ID: req.StackID},
		StartTs:    e.Now(),
		Status:     "InProgress",
		OperatorID: req.OperatorID,
	}
	if err := e.Updates.Save(update); err != nil {
		log.Error().Err(err).Str("stack", req.StackID).Msg("stackaction: failed to persist in-progress update")
	}

	stdout, stderr, callErr := e.Periphery.ComposeAction(ctx, req.ServerID, req.Command)
	logEntry := models.UpdateLog{
		Stage:   string(action),
		Command: fmt.Sprintf("docker compose %v", req.Command.Args()),
		Stdout:  stdout,
		Stderr:  stderr,
		Success: callErr == nil,
		Start:   update.StartTs,
		End:     e.Now(),
	}
	update.AddLog(logEntry)

	if e.Refresh != nil {
		e.Refresh(req.ServerID)
	}

	end := e.Now()
	update.EndTs = &end
	update.Status = "Complete"
	update.Success = update.AllLogsSucceeded()

	if err := e.Updates.Save(update); err != nil {
		log.Error().Err(err).Str("stack", req.StackID).Msg("stackaction: failed to persist finalized update")
	}

	return update, callErr
}
