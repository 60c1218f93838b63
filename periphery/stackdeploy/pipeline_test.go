package stackdeploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/komodo-run/komodo/internal/models"
	"github.com/komodo-run/komodo/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline() *Pipeline {
	p := New(nil)
	p.Now = time.Now
	return p
}

func TestDeploy_UIDefinedMode_WritesComposeFileAndUpSucceeds(t *testing.T) {
	dir := t.TempDir()
	p := newTestPipeline()
	spec := Spec{
		Name:         "stack1",
		StackDir:     dir,
		Mode:         ModeUIDefined,
		UIFileContents: "services:\n  web:\n    image: nginx\n",
		ComposeFiles: []string{"compose.yaml"},
		Project:      "stack1",
	}

	update := &models.Update{}
	err := p.Deploy(context.Background(), spec, update)

	require.NoError(t, err)
	assert.True(t, update.Success)

	written, readErr := os.ReadFile(filepath.Join(dir, "stack1", "compose.yaml"))
	require.NoError(t, readErr)
	assert.Contains(t, string(written), "nginx")
}

func TestDeploy_MissingComposeFileAbortsAtValidateFiles(t *testing.T) {
	dir := t.TempDir()
	p := newTestPipeline()
	spec := Spec{
		Name:         "stack1",
		StackDir:     dir,
		Mode:         ModeFilesOnHost,
		ComposeFiles: []string{"compose.yaml"},
		Project:      "stack1",
	}

	update := &models.Update{}
	err := p.Deploy(context.Background(), spec, update)

	require.Error(t, err)
	assert.False(t, update.Success)
	// materialize succeeds (no-op for files-on-host), validate_files fails,
	// nothing after it runs.
	var stages []string
	for _, l := range update.Logs {
		stages = append(stages, l.Stage)
	}
	assert.Equal(t, []string{"materialize", "validate_files"}, stages)
}

func TestDeploy_PreDeployHookFailureAbortsBeforeUp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "stack1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stack1", "compose.yaml"), []byte("services: {}\n"), 0o644))

	p := newTestPipeline()
	spec := Spec{
		Name:         "stack1",
		StackDir:     dir,
		Mode:         ModeFilesOnHost,
		ComposeFiles: []string{"compose.yaml"},
		Project:      "stack1",
		PreDeploy:    &Hook{Command: "exit 1"},
	}

	update := &models.Update{}
	err := p.Deploy(context.Background(), spec, update)

	require.Error(t, err)
	var stages []string
	for _, l := range update.Logs {
		stages = append(stages, l.Stage)
	}
	assert.Contains(t, stages, "pre_deploy")
	assert.NotContains(t, stages, "up")
}

func TestDeploy_SecretsRedactedFromLogs(t *testing.T) {
	dir := t.TempDir()
	p := New([]secrets.Replacer{{Name: "API_KEY", Value: "super-secret-value"}})
	spec := Spec{
		Name:     "stack1",
		StackDir: dir,
		Mode:     ModeUIDefined,
		UIFileContents: "services:\n  web:\n    environment:\n      KEY: [[API_KEY]]\n",
		ComposeFiles: []string{"compose.yaml"},
		Project:      "stack1",
		PreDeploy:    &Hook{Command: "echo super-secret-value"},
	}

	update := &models.Update{}
	_ = p.Deploy(context.Background(), spec, update)

	for _, l := range update.Logs {
		assert.NotContains(t, l.Stdout, "super-secret-value")
		assert.NotContains(t, l.Stderr, "super-secret-value")
	}
}

func TestEnumerateServices_FansOutReplicas(t *testing.T) {
	yamlOut := "services:\n  web:\n    deploy:\n      replicas: 3\n  db:\n    image: postgres\n"
	services, err := enumerateServices(yamlOut)
	require.NoError(t, err)
	assert.Contains(t, services, "web-1")
	assert.Contains(t, services, "web-2")
	assert.Contains(t, services, "web-3")
	assert.Contains(t, services, "db")
}

func TestComposeCommandArgs_IncludesComposeFiles(t *testing.T) {
	p := newTestPipeline()
	args := p.composeArgs(Spec{Project: "proj", ComposeFiles: []string{"a.yaml", "b.yaml"}}, "config")
	assert.Equal(t, []string{"-p", "proj", "-f", "a.yaml", "-f", "b.yaml", "config"}, args)
}
