package resource

import (
	"testing"

	"github.com/komodo-run/komodo/internal/models"
	"github.com/komodo-run/komodo/internal/permission"
	"github.com/komodo-run/komodo/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Image    string `json:"image"`
	Replicas int    `json:"replicas"`
}

func newTestEngine(t *testing.T) *Engine[testConfig] {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	docs, err := store.NewSQLiteDocs[Instance[testConfig]](db, "test_kind")
	require.NoError(t, err)

	return &Engine[testConfig]{
		Kind:  models.KindDeployment,
		Store: docs,
		Perms: permission.Resolver{},
	}
}

func adminUser() models.User { return models.User{ID: "admin", Admin: true} }

func TestCreate_RejectsObjectIDName(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Create("507f1f77bcf86cd799439011", testConfig{}, "", adminUser())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreate_RejectsDuplicateName(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Create("svc1", testConfig{Image: "a"}, "", adminUser())
	require.NoError(t, err)
	_, err = e.Create("svc1", testConfig{Image: "b"}, "", adminUser())
	require.Error(t, err)
}

func TestUpdate_EmptyDiffIsNoop(t *testing.T) {
	e := newTestEngine(t)
	inst, err := e.Create("svc1", testConfig{Image: "nginx", Replicas: 2}, "", adminUser())
	require.NoError(t, err)

	_, diff, err := e.Update(inst.ID, map[string]interface{}{"image": "nginx"}, adminUser(), nil)
	require.NoError(t, err)
	assert.True(t, diff.Empty())
}

func TestUpdate_PartialOnlyTouchesGivenFields(t *testing.T) {
	e := newTestEngine(t)
	inst, err := e.Create("svc1", testConfig{Image: "nginx", Replicas: 2}, "", adminUser())
	require.NoError(t, err)

	updated, diff, err := e.Update(inst.ID, map[string]interface{}{"image": "nginx:1.27"}, adminUser(), nil)
	require.NoError(t, err)
	require.False(t, diff.Empty())
	assert.Equal(t, "nginx:1.27", updated.TypedConfig.Image)
	assert.Equal(t, 2, updated.TypedConfig.Replicas) // sibling field untouched
}

func TestUpdate_RefusesWhenBusy(t *testing.T) {
	e := newTestEngine(t)
	e.Hooks.Busy = func(id string) bool { return true }
	inst, err := e.Create("svc1", testConfig{Image: "nginx"}, "", adminUser())
	require.NoError(t, err)

	_, _, err = e.Update(inst.ID, map[string]interface{}{"image": "x"}, adminUser(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestGetCheckPermissions_DeniesNonAdminWithoutRights(t *testing.T) {
	e := newTestEngine(t)
	inst, err := e.Create("svc1", testConfig{}, "", adminUser())
	require.NoError(t, err)

	_, err = e.GetCheckPermissions(inst.ID, models.User{ID: "u2"}, nil, models.PermissionRead)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRenameThenGetByNewName(t *testing.T) {
	e := newTestEngine(t)
	inst, err := e.Create("svc1", testConfig{}, "", adminUser())
	require.NoError(t, err)
	id := inst.ID

	_, err = e.Rename(inst.ID, "svc2", adminUser(), nil)
	require.NoError(t, err)

	got, err := e.Get("svc2")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}

func TestDelete_RefusesWhenBusy(t *testing.T) {
	e := newTestEngine(t)
	e.Hooks.Busy = func(id string) bool { return true }
	inst, err := e.Create("svc1", testConfig{}, "", adminUser())
	require.NoError(t, err)

	err = e.Delete(inst.ID, adminUser(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)
}
