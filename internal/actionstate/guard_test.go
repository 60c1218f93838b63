package actionstate

import (
	"testing"

	"github.com/komodo-run/komodo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SecondAcquireFailsBusy(t *testing.T) {
	m := New()
	release, err := m.Acquire("s1", models.ActionDeploying)
	require.NoError(t, err)
	defer release()

	_, err = m.Acquire("s1", models.ActionDeploying)
	require.Error(t, err)
	var busyErr *ErrBusy
	assert.ErrorAs(t, err, &busyErr)
}

func TestAcquire_DifferentFlagsOnSameResourceBothSucceed(t *testing.T) {
	m := New()
	release1, err := m.Acquire("s1", models.ActionDeploying)
	require.NoError(t, err)
	defer release1()

	release2, err := m.Acquire("s1", models.ActionRenaming)
	require.NoError(t, err)
	defer release2()

	assert.True(t, m.Busy("s1"))
}

func TestRelease_ClearsFlagAndAllowsReacquire(t *testing.T) {
	m := New()
	release, err := m.Acquire("s1", models.ActionDeploying)
	require.NoError(t, err)
	release()

	assert.False(t, m.Busy("s1"))

	_, err = m.Acquire("s1", models.ActionDeploying)
	assert.NoError(t, err)
}

func TestRelease_IsIdempotent(t *testing.T) {
	m := New()
	release, err := m.Acquire("s1", models.ActionDeploying)
	require.NoError(t, err)
	release()
	assert.NotPanics(t, func() { release() })
}
