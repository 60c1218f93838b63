package stackaction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/komodo-run/komodo/internal/actionstate"
	"github.com/komodo-run/komodo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeriphery struct {
	mu      sync.Mutex
	calls   int
	failing bool
}

func (f *fakePeriphery) ComposeAction(ctx context.Context, serverID string, cmd ComposeCommand) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failing {
		return "", "compose failed", assert.AnError
	}
	return "done", "", nil
}

type fakeUpdateStore struct {
	mu    sync.Mutex
	saved []models.Update
}

func (s *fakeUpdateStore) Save(u models.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, u)
	return nil
}

func newTestExecutor(periphery *fakePeriphery) (*Executor, *fakeUpdateStore, *[]string) {
	updates := &fakeUpdateStore{}
	refreshed := []string{}
	n := 0
	e := &Executor{
		Guards:    actionstate.New(),
		Periphery: periphery,
		Refresh:   func(serverID string) { refreshed = append(refreshed, serverID) },
		Updates:   updates,
		Now:       time.Now,
		NewID: func() string {
			n++
			return "update-" + string(rune('0'+n))
		},
	}
	return e, updates, &refreshed
}

func TestExecute_DeploySucceedsAndRefreshesCache(t *testing.T) {
	periphery := &fakePeriphery{}
	e, updates, refreshed := newTestExecutor(periphery)

	update, err := e.Execute(context.Background(), ActionDeploy, Request{
		StackID: "st1", ServerID: "srv1", OperatorID: "u1",
		Command: ComposeCommand{Project: "proj", Action: ActionDeploy, Services: []string{"web"}},
	})

	require.NoError(t, err)
	assert.True(t, update.Success)
	assert.Equal(t, "Complete", update.Status)
	assert.Equal(t, []string{"srv1"}, *refreshed)
	assert.False(t, e.Guards.Busy("st1"))
	require.Len(t, updates.saved, 2) // in-progress + finalized
}

func TestExecute_FailureStillFinalizesAndReleasesGuard(t *testing.T) {
	periphery := &fakePeriphery{failing: true}
	e, _, _ := newTestExecutor(periphery)

	update, err := e.Execute(context.Background(), ActionStop, Request{
		StackID: "st1", ServerID: "srv1",
		Command: ComposeCommand{Project: "proj", Action: ActionStop},
	})

	require.Error(t, err)
	assert.False(t, update.Success)
	assert.False(t, e.Guards.Busy("st1"))
}

func TestExecute_ConcurrentActionOnSameStackFailsBusy(t *testing.T) {
	periphery := &fakePeriphery{}
	e, _, _ := newTestExecutor(periphery)

	release, err := e.Guards.Acquire("st1", models.ActionDeploying)
	require.NoError(t, err)
	defer release()

	_, err = e.Execute(context.Background(), ActionDeploy, Request{
		StackID: "st1", ServerID: "srv1",
		Command: ComposeCommand{Project: "proj", Action: ActionDeploy},
	})
	require.Error(t, err)
}

func TestComposeCommand_Args_DeployWithRemoveOrphans(t *testing.T) {
	cmd := ComposeCommand{Project: "proj", Action: ActionDeploy, Services: []string{"web", "db"}, RemoveOrphans: true}
	assert.Equal(t, []string{"-p", "proj", "up", "-d", "--remove-orphans", "web", "db"}, cmd.Args())
}

func TestComposeCommand_Args_StopWithTimeout(t *testing.T) {
	cmd := ComposeCommand{Project: "proj", Action: ActionStop, TimeoutSeconds: 30}
	assert.Equal(t, []string{"-p", "proj", "stop", "--timeout", "30"}, cmd.Args())
}

func TestComposeCommand_Args_OmitsTimeoutWhenZero(t *testing.T) {
	cmd := ComposeCommand{Project: "proj", Action: ActionDestroy}
	assert.Equal(t, []string{"-p", "proj", "down"}, cmd.Args())
}
