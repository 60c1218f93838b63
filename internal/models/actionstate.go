package models

// ActionFlag names one of the mutually-exclusive in-flight operations a
// resource can be busy with (spec.md §3 ActionState, §4.11).
type ActionFlag string

const (
	ActionDeploying ActionFlag = "deploying"
	ActionPulling   ActionFlag = "pulling"
	ActionStopping  ActionFlag = "stopping"
	ActionStarting  ActionFlag = "starting"
	ActionRestarting ActionFlag = "restarting"
	ActionPausing   ActionFlag = "pausing"
	ActionUnpausing ActionFlag = "unpausing"
	ActionDestroying ActionFlag = "destroying"
	ActionRenaming  ActionFlag = "renaming"
	ActionUpdating  ActionFlag = "updating"
)
