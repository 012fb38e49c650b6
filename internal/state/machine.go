package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/kode4food/cadence/internal/util"
	"github.com/kode4food/cadence/pkg/api"
)

type (
	// Event is a lifecycle signal applied to one enrollment
	Event string

	// Effect is the follow-up work a transition asks the caller to do
	Effect string

	// Outcome describes the result of applying one Event. Changed reports
	// whether the row was modified and needs saving
	Outcome struct {
		Transition *api.ContactTransition
		From       api.ContactStatus
		To         api.ContactStatus
		Effect     Effect
		Changed    bool
	}

	// Machine applies Events to enrollments
	Machine struct {
		now         func() time.Time
		stopOnReply bool
	}
)

const (
	EventSubmitted       Event = "submitted"
	EventAccepted        Event = "accepted"
	EventDeclined        Event = "declined"
	EventMessageReceived Event = "message_received"
	EventBlacklisted     Event = "blacklisted"
	EventStepConfirmed   Event = "step_confirmed"
	EventExhausted       Event = "exhausted"
)

const (
	EffectNone          Effect = "none"
	EffectScheduleNext  Effect = "schedule_next"
	EffectCancelPending Effect = "cancel_pending"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNilEnrollment     = errors.New("enrollment is nil")
)

var (
	transitions = util.StateTransitions[api.ContactStatus]{
		api.StatusEnrolled: util.SetOf(
			api.StatusActive,
			api.StatusBlacklisted,
		),
		api.StatusActive: util.SetOf(
			api.StatusAccepted,
			api.StatusNotAccepted,
			api.StatusResponded,
			api.StatusBlacklisted,
			api.StatusCompleted,
		),
		api.StatusAccepted: util.SetOf(
			api.StatusResponded,
			api.StatusBlacklisted,
			api.StatusCompleted,
		),
		api.StatusResponded: util.SetOf(
			api.StatusBlacklisted,
			api.StatusCompleted,
		),
		api.StatusNotAccepted: {},
		api.StatusBlacklisted: {},
		api.StatusCompleted:   {},
	}

	targets = map[Event]api.ContactStatus{
		EventSubmitted:       api.StatusActive,
		EventAccepted:        api.StatusAccepted,
		EventDeclined:        api.StatusNotAccepted,
		EventMessageReceived: api.StatusResponded,
		EventBlacklisted:     api.StatusBlacklisted,
		EventExhausted:       api.StatusCompleted,
	}

	confirmable = util.SetOf(
		api.StatusActive,
		api.StatusAccepted,
		api.StatusResponded,
	)
)

// NewMachine creates a Machine. A nil clock uses time.Now
func NewMachine(stopOnReply bool, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		now:         now,
		stopOnReply: stopOnReply,
	}
}

// CanTransition reports whether a status change is allowed
func CanTransition(from, to api.ContactStatus) bool {
	return transitions.CanTransition(from, to)
}

// IsKnown reports whether ev is an Event the Machine understands
func IsKnown(ev Event) bool {
	_, ok := targets[ev]
	return ok || ev == EventStepConfirmed
}

// Apply moves cc according to ev, stamping its timestamps. An event that
// yields the current status is a no-op. A stale or invalid event leaves
// cc untouched and returns ErrInvalidTransition alongside a no-op outcome
func (m *Machine) Apply(cc *api.CampaignContact, ev Event) (*Outcome, error) {
	if cc == nil {
		return nil, ErrNilEnrollment
	}
	from := cc.Status
	noop := &Outcome{From: from, To: from, Effect: EffectNone}

	if ev == EventStepConfirmed {
		if !confirmable.Contains(from) {
			return noop, m.invalid(from, ev)
		}
		if from == api.StatusResponded && m.stopOnReply {
			return noop, nil
		}
		noop.Effect = EffectScheduleNext
		return noop, nil
	}

	to, ok := targets[ev]
	if !ok {
		return noop, fmt.Errorf("%w: %q", api.ErrUnknownEvent, ev)
	}

	now := m.now()
	if from == to {
		return noop, nil
	}
	if ev == EventMessageReceived && from == api.StatusCompleted {
		if cc.RepliedAt != nil {
			return noop, nil
		}
		cc.RepliedAt = &now
		cc.UpdatedAt = now
		noop.Changed = true
		return noop, nil
	}
	if !transitions.CanTransition(from, to) {
		return noop, m.invalid(from, ev)
	}

	cc.Status = to
	cc.StatusChangedAt = now
	cc.UpdatedAt = now
	stamp(cc, to, now)

	return &Outcome{
		From:    from,
		To:      to,
		Effect:  m.effectOf(ev, to),
		Changed: true,
		Transition: &api.ContactTransition{
			At:           now,
			EnrollmentID: cc.ID,
			From:         from,
			To:           to,
			Event:        string(ev),
		},
	}, nil
}

func (m *Machine) effectOf(ev Event, to api.ContactStatus) Effect {
	switch {
	case to.IsTerminal():
		return EffectCancelPending
	case ev == EventAccepted:
		return EffectScheduleNext
	case ev == EventMessageReceived && m.stopOnReply:
		return EffectCancelPending
	case ev == EventMessageReceived:
		return EffectScheduleNext
	default:
		return EffectNone
	}
}

func (m *Machine) invalid(from api.ContactStatus, ev Event) error {
	return fmt.Errorf("%w: %s from %s (allowed %v)",
		ErrInvalidTransition, ev, from, util.NextStates(transitions, from))
}

func stamp(cc *api.CampaignContact, to api.ContactStatus, now time.Time) {
	switch to {
	case api.StatusActive:
		cc.ActivatedAt = &now
	case api.StatusAccepted:
		cc.AcceptedAt = &now
	case api.StatusResponded:
		cc.RepliedAt = &now
	case api.StatusBlacklisted:
		cc.BlacklistedAt = &now
	case api.StatusCompleted:
		cc.CompletedAt = &now
	}
}
