package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/cadence/pkg/api"
)

func TestSequenceValidate(t *testing.T) {
	seq := &api.SequenceDefinition{
		Initial: api.SequenceAction{Kind: api.ActionConnect},
		FollowUps: []api.SequenceAction{
			{Kind: api.ActionMessage, DelayDays: 3},
			{Kind: api.ActionNone},
			{Kind: api.ActionVisit, DelayDays: 1, RandomDelay: true},
		},
	}
	assert.NoError(t, seq.Validate())

	t.Run("initial_kind", func(t *testing.T) {
		bad := *seq
		bad.Initial = api.SequenceAction{Kind: api.ActionEndorse}
		err := bad.Validate()
		assert.ErrorIs(t, err, api.ErrInvalidSequence)
		assert.ErrorIs(t, err, api.ErrInvalidInitialKind)
	})

	t.Run("too_many_follow_ups", func(t *testing.T) {
		bad := *seq
		bad.FollowUps = append(bad.FollowUps, api.SequenceAction{
			Kind: api.ActionMessage,
		})
		assert.ErrorIs(t, bad.Validate(), api.ErrInvalidSequence)
	})

	t.Run("unknown_follow_up_kind", func(t *testing.T) {
		bad := *seq
		bad.FollowUps = []api.SequenceAction{{Kind: "wave"}}
		assert.ErrorIs(t, bad.Validate(), api.ErrInvalidSequence)
	})

	t.Run("negative_delay", func(t *testing.T) {
		bad := *seq
		bad.FollowUps = []api.SequenceAction{
			{Kind: api.ActionMessage, DelayDays: -1},
		}
		assert.ErrorIs(t, bad.Validate(), api.ErrInvalidSequence)
	})
}

func TestSequenceStep(t *testing.T) {
	seq := &api.SequenceDefinition{
		Initial:   api.SequenceAction{Kind: api.ActionVisit},
		FollowUps: []api.SequenceAction{{Kind: api.ActionMessage}},
	}
	assert.Equal(t, 2, seq.Len())

	step, ok := seq.Step(0)
	assert.True(t, ok)
	assert.Equal(t, api.ActionVisit, step.Kind)

	step, ok = seq.Step(1)
	assert.True(t, ok)
	assert.Equal(t, api.ActionMessage, step.Kind)

	_, ok = seq.Step(2)
	assert.False(t, ok)
	_, ok = seq.Step(-1)
	assert.False(t, ok)
}

func TestSequenceActionDelay(t *testing.T) {
	a := api.SequenceAction{Kind: api.ActionMessage, DelayDays: 3}
	assert.Equal(t, 72*time.Hour, a.Delay())
	assert.False(t, a.IsSkipped())
	assert.True(t, (&api.SequenceAction{Kind: api.ActionNone}).IsSkipped())
}

func TestActionKinds(t *testing.T) {
	assert.True(t, api.ActionConnect.IsInitial())
	assert.True(t, api.ActionViewProfile.IsInitial())
	assert.False(t, api.ActionTag.IsInitial())
	assert.True(t, api.ActionTag.IsValid())
	assert.False(t, api.ActionNone.IsValid())
	assert.True(t, api.ActionInMail.IsMessage())
	assert.False(t, api.ActionConnect.IsMessage())
}
