package reconcile

import (
	"github.com/kode4food/cadence/internal/state"
	"github.com/kode4food/cadence/internal/util"
	"github.com/kode4food/cadence/pkg/api"
)

// Mapping is what one webhook (type, event) pair means for an enrollment.
// Confirms limits a step confirmation to the action kinds it can confirm;
// an empty set confirms any kind
type Mapping struct {
	Confirms  util.Set[api.ActionKind]
	Event     state.Event
	Direction api.Direction
}

var (
	accepted    = Mapping{Event: state.EventAccepted}
	declined    = Mapping{Event: state.EventDeclined}
	blacklisted = Mapping{Event: state.EventBlacklisted}

	received = Mapping{
		Event:     state.EventMessageReceived,
		Direction: api.DirectionReceived,
	}

	visited = Mapping{
		Event:    state.EventStepConfirmed,
		Confirms: util.SetOf(api.ActionVisit, api.ActionViewProfile),
	}

	completed = Mapping{Event: state.EventStepConfirmed}

	mappings = map[string]map[string]Mapping{
		api.WebhookTypeAction: {
			"accepted":             accepted,
			"connection_accepted":  accepted,
			"declined":             declined,
			"connection_declined":  declined,
			"invitation_withdrawn": declined,
			"blacklisted":          blacklisted,
		},
		api.WebhookTypeMessage: {
			"message_received": received,
			"reply":            received,
			"replied":          received,
			"blacklisted":      blacklisted,
			"message_sent": {
				Event:     state.EventStepConfirmed,
				Direction: api.DirectionSent,
				Confirms:  util.SetOf(api.ActionMessage),
			},
			"inmail_sent": {
				Event:     state.EventStepConfirmed,
				Direction: api.DirectionSent,
				Confirms:  util.SetOf(api.ActionInMail),
			},
		},
		api.WebhookTypeVisit: {
			"profile_visited": visited,
			"visited":         visited,
		},
		api.WebhookTypeRCCommand: {
			"command_completed": completed,
			"completed":         completed,
		},
	}
)

// Classify maps a webhook type and event name to its Mapping
func Classify(typ, name string) (Mapping, bool) {
	m, ok := mappings[typ][name]
	return m, ok
}

// ConfirmsKind reports whether a step confirmation covers kind
func (m Mapping) ConfirmsKind(kind api.ActionKind) bool {
	return m.Confirms.IsEmpty() || m.Confirms.Contains(kind)
}
