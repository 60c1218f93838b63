package models

import "time"

// AlertLevel is the severity of an alert sample or open alert row.
type AlertLevel string

const (
	AlertOk       AlertLevel = "Ok"
	AlertWarning  AlertLevel = "Warning"
	AlertCritical AlertLevel = "Critical"
)

// Greater reports whether a is a strictly higher severity than b, with
// Ok < Warning < Critical.
func (a AlertLevel) Greater(b AlertLevel) bool {
	return rank(a) > rank(b)
}

func rank(l AlertLevel) int {
	switch l {
	case AlertCritical:
		return 2
	case AlertWarning:
		return 1
	default:
		return 0
	}
}

// AlertVariant names the tagged-union kind of AlertData, used as half of the
// uniqueness key for unresolved alerts (spec.md §3, §8).
type AlertVariant string

const (
	VariantServerUnreachable    AlertVariant = "ServerUnreachable"
	VariantServerVersionMismatch AlertVariant = "ServerVersionMismatch"
	VariantServerCpu            AlertVariant = "ServerCpu"
	VariantServerMem            AlertVariant = "ServerMem"
	VariantServerDisk           AlertVariant = "ServerDisk"
	VariantStackStateChange     AlertVariant = "StackStateChange"
)

// AlertData is the tagged-variant payload of an Alert. Path is only set for
// ServerDisk, which is keyed by (target, path) rather than (target, variant).
type AlertData struct {
	Variant AlertVariant           `json:"variant"`
	Path    string                 `json:"path,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Key returns the uniqueness key for this alert's (target, variant[, path]).
func (d AlertData) Key(target PermissionTarget) string {
	if d.Variant == VariantServerDisk {
		return string(target.Kind) + "|" + target.ID + "|" + string(d.Variant) + "|" + d.Path
	}
	return string(target.Kind) + "|" + target.ID + "|" + string(d.Variant)
}

// Alert is a persisted alert row. At most one unresolved Alert exists per
// the key returned by AlertData.Key.
type Alert struct {
	ID         string     `json:"id"`
	Ts         time.Time  `json:"ts"`
	Target     PermissionTarget `json:"target"`
	Level      AlertLevel `json:"level"`
	Data       AlertData  `json:"data"`
	Resolved   bool       `json:"resolved"`
	ResolvedTs *time.Time `json:"resolved_ts,omitempty"`
}
