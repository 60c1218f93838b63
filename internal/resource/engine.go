// Package resource implements the uniform CRUD/diff engine shared by every
// resource kind (spec.md §4.1), parameterized on a kind's Config type so
// each kind package (server, stack, deployment, ...) supplies its own
// Config/Hooks without the engine knowing about kind-specific fields — the
// "capability interface parameterized on per-kind types" design note
// (spec.md §9), keeping the sum type only at the request-API boundary.
package resource

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/komodo-run/komodo/internal/models"
	"github.com/komodo-run/komodo/internal/permission"
	"github.com/komodo-run/komodo/internal/store"
)

// Diff is a field-by-field description of what an update changed, keyed by
// top-level config field name, produced by MinimizePartial/Diff below.
type Diff map[string]FieldChange

type FieldChange struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

func (d Diff) Empty() bool { return len(d) == 0 }

// Hooks are the kind-specific extension points spec.md §4.1 names:
// validate_create_config, post_create, post_update, pre_delete, post_delete,
// plus the kind-level create-permission check and busy predicate.
type Hooks[C any] struct {
	UserCanCreate        func(user models.User) bool
	ValidateCreateConfig func(cfg C) error
	PostCreate           func(res *Instance[C]) error
	PostUpdate           func(res *Instance[C], diff Diff) error
	PreDelete            func(res *Instance[C]) error
	PostDelete           func(id string) error
	// Busy reports whether the resource is currently mid-mutation
	// (spec.md §3 "a resource marked busy cannot be updated or deleted").
	Busy func(id string) bool
}

// Instance pairs the kind-agnostic Resource envelope with its decoded,
// typed Config.
type Instance[C any] struct {
	models.Resource
	TypedConfig C
}

func (i *Instance[C]) RowID() string   { return i.ID }
func (i *Instance[C]) RowName() string { return i.Name }
func (i *Instance[C]) RowTags() string {
	out := ""
	for _, t := range i.TagIDs {
		out += t + ","
	}
	return out
}

// Engine is the generic resource engine for one kind.
type Engine[C any] struct {
	Kind     models.ResourceKind
	Store    *store.SQLiteDocs[Instance[C]]
	Perms    permission.Resolver
	Hooks    Hooks[C]
	NowMs    func() int64
	NewID    func() string
	Perm     func() []models.Permission // returns the live permission-row set
	InsertPermission func(models.Permission) error
	DeletePermissionsForTarget func(kind models.ResourceKind, id string) error
}

func now() int64 { return time.Now().UnixMilli() }

func newID() string { return uuid.NewString() }

// isObjectID reports whether name parses as a 24-hex Mongo-style object id
// (spec.md §8: "For all names N that parse as a 24-hex object id: create(N,…)
// fails BadRequest").
func isObjectID(name string) bool {
	if len(name) != 24 {
		return false
	}
	for _, c := range name {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// Get resolves id_or_name by id first, then by name (spec.md §4.1).
func (e *Engine[C]) Get(idOrName string) (*Instance[C], error) {
	if inst, ok := e.Store.Get(idOrName); ok {
		return &inst, nil
	}
	if inst, ok := e.Store.GetByName(idOrName); ok {
		return &inst, nil
	}
	return nil, fmt.Errorf("%s %q: %w", e.Kind, idOrName, ErrNotFound)
}

var ErrNotFound = fmt.Errorf("not found")
var ErrPermissionDenied = fmt.Errorf("permission denied")
var ErrBusy = fmt.Errorf("resource busy")
var ErrValidation = fmt.Errorf("validation error")

// GetCheckPermissions resolves idOrName and fails with ErrPermissionDenied
// unless the user's effective level on it is >= required.
func (e *Engine[C]) GetCheckPermissions(idOrName string, user models.User, groups []models.UserGroup, required models.PermissionLevel) (*Instance[C], error) {
	inst, err := e.Get(idOrName)
	if err != nil {
		return nil, err
	}
	level := e.Perms.Effective(user, groups, e.Kind, inst.ID, inst.BasePermission, e.permRows())
	if level < required {
		return nil, fmt.Errorf("user does not have required permissions on this %s: %w", e.Kind, ErrPermissionDenied)
	}
	return inst, nil
}

func (e *Engine[C]) permRows() []models.Permission {
	if e.Perm == nil {
		return nil
	}
	return e.Perm()
}

// ListForUser returns every resource of this kind the user may read,
// per spec.md §4.1's short-circuit/union rule.
func (e *Engine[C]) ListForUser(user models.User, groups []models.UserGroup) ([]*Instance[C], error) {
	all, err := e.Store.List()
	if err != nil {
		return nil, err
	}

	if user.Admin || e.Perms.Transparent {
		out := make([]*Instance[C], len(all))
		for i := range all {
			out[i] = &all[i]
		}
		return out, nil
	}
	if v, ok := user.All[e.Kind]; ok && v > models.PermissionNone {
		out := make([]*Instance[C], len(all))
		for i := range all {
			out[i] = &all[i]
		}
		return out, nil
	}
	for _, g := range groups {
		if !g.Contains(user.ID) {
			continue
		}
		if v, ok := g.All[e.Kind]; ok && v > models.PermissionNone {
			out := make([]*Instance[C], len(all))
			for i := range all {
				out[i] = &all[i]
			}
			return out, nil
		}
	}

	rows := e.permRows()
	memberGroups := map[string]bool{}
	for _, g := range groups {
		if g.Contains(user.ID) {
			memberGroups[g.ID] = true
		}
	}
	explicit := map[string]bool{}
	for _, row := range rows {
		if row.Target.Kind != e.Kind {
			continue
		}
		if (row.Subject.Kind == models.SubjectUser && row.Subject.ID == user.ID) ||
			(row.Subject.Kind == models.SubjectUserGroup && memberGroups[row.Subject.ID]) {
			explicit[row.Target.ID] = true
		}
	}

	var out []*Instance[C]
	for i := range all {
		inst := &all[i]
		if explicit[inst.ID] || inst.BasePermission > models.PermissionNone {
			out = append(out, inst)
		}
	}
	return out, nil
}

// Create validates and inserts a new resource, granting the creator Write
// permission on it (spec.md §4.1).
func (e *Engine[C]) Create(name string, cfg C, description string, user models.User) (*Instance[C], error) {
	if name == "" {
		return nil, fmt.Errorf("name must not be empty: %w", ErrValidation)
	}
	if isObjectID(name) {
		return nil, fmt.Errorf("name %q must not be a valid object id: %w", name, ErrValidation)
	}
	if _, ok := e.Store.GetByName(name); ok {
		return nil, fmt.Errorf("%s named %q already exists: %w", e.Kind, name, ErrValidation)
	}
	if e.Hooks.UserCanCreate != nil && !e.Hooks.UserCanCreate(user) && !user.Admin {
		return nil, fmt.Errorf("user cannot create %s: %w", e.Kind, ErrValidation)
	}
	if e.Hooks.ValidateCreateConfig != nil {
		if err := e.Hooks.ValidateCreateConfig(cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	idFn := e.NewID
	if idFn == nil {
		idFn = newID
	}
	nowFn := e.NowMs
	if nowFn == nil {
		nowFn = now
	}

	inst := &Instance[C]{
		Resource: models.Resource{
			ID:          idFn(),
			Kind:        e.Kind,
			Name:        name,
			Description: description,
			UpdatedAtMs: nowFn(),
		},
		TypedConfig: cfg,
	}
	if err := e.Store.Insert(inst, *inst); err != nil {
		return nil, err
	}
	if e.InsertPermission != nil {
		_ = e.InsertPermission(models.Permission{
			ID:      newID(),
			Subject: models.PermissionSubject{Kind: models.SubjectUser, ID: user.ID},
			Target:  models.PermissionTarget{Kind: e.Kind, ID: inst.ID},
			Level:   models.PermissionWrite,
		})
	}
	if e.Hooks.PostCreate != nil {
		if err := e.Hooks.PostCreate(inst); err != nil {
			return inst, err
		}
	}
	return inst, nil
}

// DiffConfig computes the field-by-field diff between the current config
// and a partial config update, where absent fields in partial are
// unchanged and present-equal fields are stripped (spec.md §4.1 "Diff
// semantics"). Both configs are compared via their JSON representation
// since C's concrete shape is opaque to the engine.
func DiffConfig[C any](current C, partial map[string]interface{}) (Diff, error) {
	curBytes, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	var curMap map[string]interface{}
	if err := json.Unmarshal(curBytes, &curMap); err != nil {
		return nil, err
	}

	diff := Diff{}
	for k, newVal := range partial {
		oldVal := curMap[k]
		oldBytes, _ := json.Marshal(oldVal)
		newBytes, _ := json.Marshal(newVal)
		if string(oldBytes) == string(newBytes) {
			continue // present-equal fields are stripped
		}
		diff[k] = FieldChange{From: oldVal, To: newVal}
	}
	return diff, nil
}

// MergeConfig applies a partial config onto the current config's JSON
// representation and decodes the merged result back into C, implementing
// the "flattened update documents" rule: only the keys present in partial
// are overwritten, sibling fields are untouched.
func MergeConfig[C any](current C, partial map[string]interface{}) (C, error) {
	var zero C
	curBytes, err := json.Marshal(current)
	if err != nil {
		return zero, err
	}
	var curMap map[string]interface{}
	if err := json.Unmarshal(curBytes, &curMap); err != nil {
		return zero, err
	}
	for k, v := range partial {
		curMap[k] = v
	}
	mergedBytes, err := json.Marshal(curMap)
	if err != nil {
		return zero, err
	}
	var merged C
	if err := json.Unmarshal(mergedBytes, &merged); err != nil {
		return zero, err
	}
	return merged, nil
}

// Update requires Write, refuses if busy, computes the diff and rejects an
// empty one, applies the minimized partial, and runs post_update
// (spec.md §4.1).
func (e *Engine[C]) Update(idOrName string, partial map[string]interface{}, user models.User, groups []models.UserGroup) (*Instance[C], Diff, error) {
	inst, err := e.GetCheckPermissions(idOrName, user, groups, models.PermissionWrite)
	if err != nil {
		return nil, nil, err
	}
	if e.Hooks.Busy != nil && e.Hooks.Busy(inst.ID) {
		return nil, nil, fmt.Errorf("%s %q is busy: %w", e.Kind, inst.Name, ErrBusy)
	}

	diff, err := DiffConfig(inst.TypedConfig, partial)
	if err != nil {
		return nil, nil, err
	}
	if diff.Empty() {
		return inst, diff, nil // "no changes", row is not modified
	}

	merged, err := MergeConfig(inst.TypedConfig, partial)
	if err != nil {
		return nil, nil, err
	}
	inst.TypedConfig = merged
	nowFn := e.NowMs
	if nowFn == nil {
		nowFn = now
	}
	inst.UpdatedAtMs = nowFn()

	if err := e.Store.Replace(inst, *inst); err != nil {
		return nil, nil, err
	}
	if e.Hooks.PostUpdate != nil {
		if err := e.Hooks.PostUpdate(inst, diff); err != nil {
			return inst, diff, err
		}
	}
	return inst, diff, nil
}

// Rename is a specialized minimal update of only the name field.
func (e *Engine[C]) Rename(idOrName, newName string, user models.User, groups []models.UserGroup) (*Instance[C], error) {
	inst, err := e.GetCheckPermissions(idOrName, user, groups, models.PermissionWrite)
	if err != nil {
		return nil, err
	}
	if e.Hooks.Busy != nil && e.Hooks.Busy(inst.ID) {
		return nil, fmt.Errorf("%s %q is busy: %w", e.Kind, inst.Name, ErrBusy)
	}
	if newName == "" {
		return nil, fmt.Errorf("name must not be empty: %w", ErrValidation)
	}
	if isObjectID(newName) {
		return nil, fmt.Errorf("name %q must not be a valid object id: %w", newName, ErrValidation)
	}
	if existing, ok := e.Store.GetByName(newName); ok && existing.ID != inst.ID {
		return nil, fmt.Errorf("%s named %q already exists: %w", e.Kind, newName, ErrValidation)
	}
	inst.Name = newName
	if err := e.Store.Replace(inst, *inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// UpdateDescription is a specialized minimal update of only description.
func (e *Engine[C]) UpdateDescription(idOrName, description string, user models.User, groups []models.UserGroup) (*Instance[C], error) {
	inst, err := e.GetCheckPermissions(idOrName, user, groups, models.PermissionWrite)
	if err != nil {
		return nil, err
	}
	inst.Description = description
	if err := e.Store.Replace(inst, *inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// UpdateTags resolves tag strings to ids (creating tags on demand via
// resolveTag) and replaces the resource's tag set.
func (e *Engine[C]) UpdateTags(idOrName string, tagNames []string, user models.User, groups []models.UserGroup, resolveTag func(name string) (string, error)) (*Instance[C], error) {
	inst, err := e.GetCheckPermissions(idOrName, user, groups, models.PermissionWrite)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tagNames))
	for _, t := range tagNames {
		id, err := resolveTag(t)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	inst.TagIDs = ids
	if err := e.Store.Replace(inst, *inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Delete requires Write, refuses if busy, runs pre_delete, removes every
// Permission targeting the resource, deletes the row, then runs
// post_delete (spec.md §4.1).
func (e *Engine[C]) Delete(idOrName string, user models.User, groups []models.UserGroup) error {
	inst, err := e.GetCheckPermissions(idOrName, user, groups, models.PermissionWrite)
	if err != nil {
		return err
	}
	if e.Hooks.Busy != nil && e.Hooks.Busy(inst.ID) {
		return fmt.Errorf("%s %q is busy: %w", e.Kind, inst.Name, ErrBusy)
	}
	if e.Hooks.PreDelete != nil {
		if err := e.Hooks.PreDelete(inst); err != nil {
			return err
		}
	}
	if e.DeletePermissionsForTarget != nil {
		if err := e.DeletePermissionsForTarget(e.Kind, inst.ID); err != nil {
			return err
		}
	}
	if err := e.Store.Delete(inst.ID); err != nil {
		return err
	}
	if e.Hooks.PostDelete != nil {
		if err := e.Hooks.PostDelete(inst.ID); err != nil {
			return err
		}
	}
	return nil
}
