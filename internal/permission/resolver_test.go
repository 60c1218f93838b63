package permission

import (
	"testing"

	"github.com/komodo-run/komodo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffective_NonAdminNoPermTransparentFalse(t *testing.T) {
	r := Resolver{Transparent: false}
	user := models.User{ID: "u1"}
	level := r.Effective(user, nil, models.KindStack, "s1", models.PermissionNone, nil)
	require.Equal(t, models.PermissionNone, level)
}

func TestEffective_TransparentGrantsRead(t *testing.T) {
	r := Resolver{Transparent: true}
	user := models.User{ID: "u1"}
	level := r.Effective(user, nil, models.KindStack, "s1", models.PermissionNone, nil)
	assert.Equal(t, models.PermissionRead, level)
}

func TestEffective_AdminShortcutsToWrite(t *testing.T) {
	r := Resolver{}
	user := models.User{ID: "u1", Admin: true}
	level := r.Effective(user, nil, models.KindStack, "s1", models.PermissionNone, nil)
	assert.Equal(t, models.PermissionWrite, level)
}

func TestEffective_DisabledUserAlwaysNone(t *testing.T) {
	r := Resolver{Transparent: true}
	user := models.User{ID: "u1", Disabled: true}
	level := r.Effective(user, nil, models.KindStack, "s1", models.PermissionWrite, nil)
	assert.Equal(t, models.PermissionNone, level)
}

func TestEffective_BasePermissionFloor(t *testing.T) {
	r := Resolver{}
	user := models.User{ID: "u1"}
	level := r.Effective(user, nil, models.KindStack, "s1", models.PermissionExecute, nil)
	assert.Equal(t, models.PermissionExecute, level)
}

func TestEffective_UserAllMap(t *testing.T) {
	r := Resolver{}
	user := models.User{ID: "u1", All: map[models.ResourceKind]models.PermissionLevel{
		models.KindStack: models.PermissionExecute,
	}}
	level := r.Effective(user, nil, models.KindStack, "s1", models.PermissionNone, nil)
	assert.Equal(t, models.PermissionExecute, level)
}

func TestEffective_GroupAllMapAndEveryone(t *testing.T) {
	r := Resolver{}
	user := models.User{ID: "u1"}
	groups := []models.UserGroup{
		{ID: "g1", Users: []string{"someone-else"}, All: map[models.ResourceKind]models.PermissionLevel{models.KindStack: models.PermissionWrite}},
		{ID: "g2", Everyone: true, All: map[models.ResourceKind]models.PermissionLevel{models.KindStack: models.PermissionRead}},
	}
	level := r.Effective(user, groups, models.KindStack, "s1", models.PermissionNone, nil)
	assert.Equal(t, models.PermissionRead, level)
}

func TestEffective_ExplicitPermissionRowForUserAndGroup(t *testing.T) {
	r := Resolver{}
	user := models.User{ID: "u1"}
	groups := []models.UserGroup{{ID: "g1", Users: []string{"u1"}}}
	rows := []models.Permission{
		{Subject: models.PermissionSubject{Kind: models.SubjectUser, ID: "u1"}, Target: models.PermissionTarget{Kind: models.KindStack, ID: "s1"}, Level: models.PermissionExecute},
		{Subject: models.PermissionSubject{Kind: models.SubjectUserGroup, ID: "g1"}, Target: models.PermissionTarget{Kind: models.KindStack, ID: "s1"}, Level: models.PermissionWrite},
	}
	level := r.Effective(user, groups, models.KindStack, "s1", models.PermissionNone, rows)
	assert.Equal(t, models.PermissionWrite, level)
}

func TestEffective_RowForDifferentTargetIgnored(t *testing.T) {
	r := Resolver{}
	user := models.User{ID: "u1"}
	rows := []models.Permission{
		{Subject: models.PermissionSubject{Kind: models.SubjectUser, ID: "u1"}, Target: models.PermissionTarget{Kind: models.KindStack, ID: "other"}, Level: models.PermissionWrite},
	}
	level := r.Effective(user, nil, models.KindStack, "s1", models.PermissionNone, rows)
	assert.Equal(t, models.PermissionNone, level)
}

func TestSpecificsUnion_MergesAcrossMatchingRows(t *testing.T) {
	user := models.User{ID: "u1"}
	groups := []models.UserGroup{{ID: "g1", Users: []string{"u1"}}}
	rows := []models.Permission{
		{Subject: models.PermissionSubject{Kind: models.SubjectUser, ID: "u1"}, Target: models.PermissionTarget{Kind: models.KindServer, ID: "srv"}, Specifics: []string{"terminal"}},
		{Subject: models.PermissionSubject{Kind: models.SubjectUserGroup, ID: "g1"}, Target: models.PermissionTarget{Kind: models.KindServer, ID: "srv"}, Specifics: []string{"terminal", "logs"}},
	}
	out := SpecificsUnion(rows, user, groups, models.KindServer, "srv")
	assert.ElementsMatch(t, []string{"terminal", "logs"}, out)
}
