package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/cadence/internal/assert/helpers"
	"github.com/kode4food/cadence/internal/state"
	"github.com/kode4food/cadence/pkg/api"
)

func enrollment(status api.ContactStatus) *api.CampaignContact {
	return &api.CampaignContact{
		ID:         "enr-1",
		CampaignID: "camp-1",
		ContactID:  "ct-1",
		Status:     status,
	}
}

func TestHappyPath(t *testing.T) {
	clock := helpers.NewFakeClock()
	m := state.NewMachine(true, clock.Now)
	cc := enrollment(api.StatusEnrolled)

	out, err := m.Apply(cc, state.EventSubmitted)
	assert.NoError(t, err)
	assert.Equal(t, api.StatusActive, out.To)
	assert.Equal(t, state.EffectNone, out.Effect)
	assert.True(t, out.Changed)
	assert.Equal(t, clock.Now(), *cc.ActivatedAt)

	clock.Advance(api.Day)
	out, err = m.Apply(cc, state.EventAccepted)
	assert.NoError(t, err)
	assert.Equal(t, api.StatusAccepted, cc.Status)
	assert.Equal(t, state.EffectScheduleNext, out.Effect)
	assert.Equal(t, clock.Now(), *cc.AcceptedAt)
	if assert.NotNil(t, out.Transition) {
		assert.Equal(t, api.EnrollmentID("enr-1"), out.Transition.EnrollmentID)
		assert.Equal(t, api.StatusActive, out.Transition.From)
		assert.Equal(t, api.StatusAccepted, out.Transition.To)
		assert.Equal(t, "accepted", out.Transition.Event)
	}

	clock.Advance(api.Day)
	out, err = m.Apply(cc, state.EventMessageReceived)
	assert.NoError(t, err)
	assert.Equal(t, api.StatusResponded, cc.Status)
	assert.Equal(t, state.EffectCancelPending, out.Effect)
	assert.Equal(t, clock.Now(), *cc.RepliedAt)
	assert.Equal(t, clock.Now(), cc.StatusChangedAt)

	out, err = m.Apply(cc, state.EventExhausted)
	assert.NoError(t, err)
	assert.Equal(t, api.StatusCompleted, cc.Status)
	assert.NotNil(t, cc.CompletedAt)
	assert.True(t, cc.Status.IsTerminal())
	assert.Equal(t, state.EffectCancelPending, out.Effect)
}

func TestDuplicateEventIsNoop(t *testing.T) {
	m := state.NewMachine(true, nil)
	cc := enrollment(api.StatusAccepted)

	out, err := m.Apply(cc, state.EventAccepted)
	assert.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Nil(t, out.Transition)
	assert.Equal(t, state.EffectNone, out.Effect)
	assert.Nil(t, cc.AcceptedAt)
}

func TestInvalidTransitions(t *testing.T) {
	cases := []struct {
		from api.ContactStatus
		ev   state.Event
	}{
		{api.StatusEnrolled, state.EventDeclined},
		{api.StatusEnrolled, state.EventAccepted},
		{api.StatusEnrolled, state.EventMessageReceived},
		{api.StatusEnrolled, state.EventStepConfirmed},
		{api.StatusResponded, state.EventAccepted},
		{api.StatusAccepted, state.EventDeclined},
		{api.StatusNotAccepted, state.EventAccepted},
		{api.StatusBlacklisted, state.EventSubmitted},
		{api.StatusCompleted, state.EventBlacklisted},
		{api.StatusCompleted, state.EventStepConfirmed},
	}

	m := state.NewMachine(true, nil)
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.ev), func(t *testing.T) {
			cc := enrollment(tc.from)
			out, err := m.Apply(cc, tc.ev)
			assert.ErrorIs(t, err, state.ErrInvalidTransition)
			assert.False(t, out.Changed)
			assert.Equal(t, tc.from, cc.Status)
		})
	}
}

func TestBlacklistFromAnyNonTerminal(t *testing.T) {
	m := state.NewMachine(true, nil)
	for _, from := range []api.ContactStatus{
		api.StatusEnrolled, api.StatusActive,
		api.StatusAccepted, api.StatusResponded,
	} {
		cc := enrollment(from)
		out, err := m.Apply(cc, state.EventBlacklisted)
		assert.NoError(t, err)
		assert.Equal(t, api.StatusBlacklisted, cc.Status)
		assert.Equal(t, state.EffectCancelPending, out.Effect)
		assert.NotNil(t, cc.BlacklistedAt)
	}
}

func TestDeclined(t *testing.T) {
	m := state.NewMachine(true, nil)
	cc := enrollment(api.StatusActive)
	out, err := m.Apply(cc, state.EventDeclined)
	assert.NoError(t, err)
	assert.Equal(t, api.StatusNotAccepted, cc.Status)
	assert.Equal(t, state.EffectCancelPending, out.Effect)
}

func TestReplyWithoutStop(t *testing.T) {
	m := state.NewMachine(false, nil)
	cc := enrollment(api.StatusActive)

	out, err := m.Apply(cc, state.EventMessageReceived)
	assert.NoError(t, err)
	assert.Equal(t, state.EffectScheduleNext, out.Effect)

	out, err = m.Apply(cc, state.EventStepConfirmed)
	assert.NoError(t, err)
	assert.Equal(t, state.EffectScheduleNext, out.Effect)
	assert.False(t, out.Changed)
}

func TestStepConfirmedAfterReplyWithStop(t *testing.T) {
	m := state.NewMachine(true, nil)
	cc := enrollment(api.StatusResponded)
	out, err := m.Apply(cc, state.EventStepConfirmed)
	assert.NoError(t, err)
	assert.Equal(t, state.EffectNone, out.Effect)
}

func TestReplyAfterCompletion(t *testing.T) {
	clock := helpers.NewFakeClock()
	m := state.NewMachine(true, clock.Now)
	cc := enrollment(api.StatusCompleted)

	out, err := m.Apply(cc, state.EventMessageReceived)
	assert.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Nil(t, out.Transition)
	assert.Equal(t, api.StatusCompleted, cc.Status)
	assert.Equal(t, clock.Now(), *cc.RepliedAt)

	clock.Advance(api.Day)
	out, err = m.Apply(cc, state.EventMessageReceived)
	assert.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, helpers.DefaultTestTime, *cc.RepliedAt)
}

func TestUnknownEvent(t *testing.T) {
	m := state.NewMachine(true, nil)
	cc := enrollment(api.StatusActive)
	out, err := m.Apply(cc, state.Event("teleported"))
	assert.ErrorIs(t, err, api.ErrUnknownEvent)
	assert.False(t, out.Changed)
	assert.False(t, state.IsKnown("teleported"))
	assert.True(t, state.IsKnown(state.EventStepConfirmed))

	_, err = m.Apply(nil, state.EventAccepted)
	assert.ErrorIs(t, err, state.ErrNilEnrollment)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, state.CanTransition(api.StatusActive, api.StatusResponded))
	assert.False(t, state.CanTransition(api.StatusEnrolled, api.StatusResponded))
	assert.False(t, state.CanTransition(api.StatusResponded, api.StatusActive))
}
