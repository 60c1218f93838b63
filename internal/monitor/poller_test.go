package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu       sync.Mutex
	failFor  map[string]bool
	versions map[string]string
}

func (c *fakeClient) GetVersion(ctx context.Context, serverID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFor[serverID] {
		return "", assert.AnError
	}
	return c.versions[serverID], nil
}

func (c *fakeClient) GetAllSystemStats(ctx context.Context, serverID string) (float64, float64, []DiskUsage, error) {
	return 10, 20, []DiskUsage{{Path: "/data", TotalGiB: 100, UsedGiB: 10}}, nil
}

func (c *fakeClient) GetContainerList(ctx context.Context, serverID string) ([]ContainerSummary, error) {
	return []ContainerSummary{{Name: "web", State: DeploymentRunning}}, nil
}

func TestPollOnce_DisabledServerSkipsClient(t *testing.T) {
	client := &fakeClient{failFor: map[string]bool{}, versions: map[string]string{}}
	var captured []ServerState
	var mu sync.Mutex
	p := New(client, func() []Server {
		return []Server{{ID: "s1", Disabled: true}}
	}, func(server Server, snap Snapshot, polledAt time.Time) {
		mu.Lock()
		captured = append(captured, snap.Curr.State)
		mu.Unlock()
	})

	p.pollOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, captured, 1)
	assert.Equal(t, ServerDisabled, captured[0])
}

func TestPollOnce_FailureMarksNotOkAndContinues(t *testing.T) {
	client := &fakeClient{
		failFor:  map[string]bool{"bad": true},
		versions: map[string]string{"good": "1.0.0"},
	}
	results := make(map[string]ServerState)
	var mu sync.Mutex
	p := New(client, func() []Server {
		return []Server{{ID: "bad"}, {ID: "good"}}
	}, func(server Server, snap Snapshot, polledAt time.Time) {
		mu.Lock()
		results[server.ID] = snap.Curr.State
		mu.Unlock()
	})

	p.pollOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ServerNotOk, results["bad"])
	assert.Equal(t, ServerOk, results["good"])
}

func TestStatusCache_UpdateShiftsCurrIntoPrev(t *testing.T) {
	cache := NewStatusCache()
	first := cache.Update("s1", ServerStatus{State: ServerOk, Version: "1.0.0"})
	assert.Equal(t, ServerStatus{}, first.Prev)
	assert.Equal(t, ServerOk, first.Curr.State)

	second := cache.Update("s1", ServerStatus{State: ServerNotOk, Version: "unknown"})
	assert.Equal(t, ServerOk, second.Prev.State)
	assert.Equal(t, ServerNotOk, second.Curr.State)
}

func TestJoinDeployments_MissingContainerIsNotDeployed(t *testing.T) {
	deployments := []Deployment{
		{ID: "d1", ServerID: "s1", ContainerName: "web"},
		{ID: "d2", ServerID: "s1", ContainerName: "missing"},
	}
	containers := []ContainerSummary{{Name: "web", State: DeploymentRunning}}

	out := JoinDeployments(deployments, containers)

	require.Len(t, out, 2)
	assert.Equal(t, DeploymentRunning, out[0].State)
	assert.Equal(t, DeploymentNotDeployed, out[1].State)
}
