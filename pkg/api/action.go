package api

import (
	"maps"
	"slices"
)

// ActionKind names one remote automation action performed by the agent
type ActionKind string

const (
	ActionVisit       ActionKind = "visit"
	ActionConnect     ActionKind = "connect"
	ActionMessage     ActionKind = "message"
	ActionInMail      ActionKind = "inmail"
	ActionViewProfile ActionKind = "view_profile"
	ActionTag         ActionKind = "tag"
	ActionFollow      ActionKind = "follow"
	ActionEndorse     ActionKind = "endorse"
	ActionSaveAsLead  ActionKind = "save_as_lead"

	// ActionNone marks a follow-up slot that is skipped entirely
	ActionNone ActionKind = "none"
)

var (
	actionKinds = map[ActionKind]bool{
		ActionVisit:       true,
		ActionConnect:     true,
		ActionMessage:     true,
		ActionInMail:      true,
		ActionViewProfile: true,
		ActionTag:         true,
		ActionFollow:      true,
		ActionEndorse:     true,
		ActionSaveAsLead:  true,
	}

	initialKinds = map[ActionKind]bool{
		ActionVisit:       true,
		ActionConnect:     true,
		ActionMessage:     true,
		ActionInMail:      true,
		ActionViewProfile: true,
	}
)

// ActionKinds returns every kind the agent accepts, in name order
func ActionKinds() []ActionKind {
	return slices.Sorted(maps.Keys(actionKinds))
}

// IsValid reports whether the kind can be submitted to the agent
func (k ActionKind) IsValid() bool {
	return actionKinds[k]
}

// IsInitial reports whether the kind may open a sequence
func (k ActionKind) IsInitial() bool {
	return initialKinds[k]
}

// IsMessage reports whether the action delivers a written message
func (k ActionKind) IsMessage() bool {
	return k == ActionMessage || k == ActionInMail
}
