package models

import "time"

// Resource is the unit of authorization shared by every kind the resource
// engine manages. Config and Info are kind-specific and carried as opaque
// JSON-ish maps at this layer; kind packages decode them into typed structs.
type Resource struct {
	ID             string                 `json:"id"`
	Kind           ResourceKind           `json:"kind"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	TagIDs         []string               `json:"tag_ids"`
	BasePermission PermissionLevel        `json:"base_permission"`
	Config         map[string]interface{} `json:"config"`
	Info           map[string]interface{} `json:"info"`
	UpdatedAtMs    int64                  `json:"updated_at"`
}

// HasTag reports whether the resource carries the given tag id.
func (r *Resource) HasTag(tagID string) bool {
	for _, id := range r.TagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}

// PermissionTarget is (kind, id) — what a Permission row grants access to.
type PermissionTarget struct {
	Kind ResourceKind `json:"kind"`
	ID   string       `json:"id"`
}

// SubjectKind distinguishes a User from a UserGroup as a Permission subject.
type SubjectKind string

const (
	SubjectUser      SubjectKind = "User"
	SubjectUserGroup SubjectKind = "UserGroup"
)

// PermissionSubject identifies who a Permission row applies to.
type PermissionSubject struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

// Permission is a (subject, target, level, specifics) tuple. At most one
// Permission exists per (subject, target) pair.
type Permission struct {
	ID        string            `json:"id"`
	Subject   PermissionSubject `json:"subject"`
	Target    PermissionTarget  `json:"target"`
	Level     PermissionLevel   `json:"level"`
	Specifics []string          `json:"specifics"`
}

// User is the minimal identity the permission resolver needs.
type User struct {
	ID      string                          `json:"id"`
	Admin   bool                            `json:"admin"`
	Disabled bool                           `json:"disabled"`
	All     map[ResourceKind]PermissionLevel `json:"all"`
}

// UserGroup is a named set of user ids plus a per-kind "all" permission map.
type UserGroup struct {
	ID       string                          `json:"id"`
	Name     string                          `json:"name"`
	Users    []string                        `json:"users"`
	Everyone bool                            `json:"everyone"`
	All      map[ResourceKind]PermissionLevel `json:"all"`
}

// Contains reports whether the given user id belongs to the group, either
// by explicit membership or the `everyone` flag.
func (g *UserGroup) Contains(userID string) bool {
	if g.Everyone {
		return true
	}
	for _, id := range g.Users {
		if id == userID {
			return true
		}
	}
	return false
}

// UpdateLog is one entry in an Update's ordered log list. A pipeline gates
// subsequent steps on the first success=false entry.
type UpdateLog struct {
	Stage   string    `json:"stage"`
	Command string    `json:"command,omitempty"`
	Stdout  string    `json:"stdout,omitempty"`
	Stderr  string    `json:"stderr,omitempty"`
	Success bool      `json:"success"`
	Start   time.Time `json:"start_ts"`
	End     time.Time `json:"end_ts"`
}

// Update is the audit/progress record emitted by mutating operations.
type Update struct {
	ID          string       `json:"id"`
	Operation   string       `json:"operation"`
	Target      PermissionTarget `json:"target"`
	StartTs     time.Time    `json:"start_ts"`
	EndTs       *time.Time   `json:"end_ts,omitempty"`
	Status      string       `json:"status"` // InProgress, Complete
	Success     bool         `json:"success"`
	Logs        []UpdateLog  `json:"logs"`
	OperatorID  string       `json:"operator_id"`
}

// AllLogsSucceeded reports whether every log recorded so far succeeded,
// the "all previous logs succeeded" gate used throughout the deploy
// pipeline (spec.md §4.7) and error-handling design (§7).
func (u *Update) AllLogsSucceeded() bool {
	for _, l := range u.Logs {
		if !l.Success {
			return false
		}
	}
	return true
}

// AddLog appends a log entry; pipelines call this after every shell
// invocation or hook, in insertion order.
func (u *Update) AddLog(log UpdateLog) {
	u.Logs = append(u.Logs, log)
}
