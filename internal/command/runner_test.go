package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_CapturesStdout(t *testing.T) {
	r := Run(context.Background(), "", "echo hello")
	assert.True(t, r.Success)
	assert.Equal(t, 0, r.ExitCode)
	assert.Equal(t, "hello\n", r.Stdout)
}

func TestRun_CapturesNonZeroExit(t *testing.T) {
	r := Run(context.Background(), "", "exit 3")
	assert.False(t, r.Success)
	assert.Equal(t, 3, r.ExitCode)
}

func TestRun_CapturesStderr(t *testing.T) {
	r := Run(context.Background(), "", "echo oops 1>&2")
	assert.Equal(t, "oops\n", r.Stderr)
}

func TestRun_RespectsWorkingDirectory(t *testing.T) {
	r := Run(context.Background(), "/tmp", "pwd")
	assert.Contains(t, r.Stdout, "/tmp")
}
