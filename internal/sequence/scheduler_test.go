package sequence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/cadence/internal/assert/helpers"
	"github.com/kode4food/cadence/internal/sequence"
	"github.com/kode4food/cadence/pkg/api"
)

func noJitter(time.Duration) time.Duration { return 0 }

func fixture() (*api.Campaign, *api.Contact, *api.CampaignContact) {
	camp := &api.Campaign{
		ID:        "camp-1",
		AccountID: "acct-1",
		Name:      "Spring",
		Sequence: api.SequenceDefinition{
			Initial: api.SequenceAction{
				Kind:    api.ActionConnect,
				Message: "Hi {first_name}, I work at {company}",
			},
			FollowUps: []api.SequenceAction{
				{Kind: api.ActionMessage, Message: "Thanks {first_name}", DelayDays: 3},
				{Kind: api.ActionNone},
				{
					Kind:        api.ActionInMail,
					Subject:     "About {company}",
					Message:     "Ping",
					DelayDays:   1,
					RandomDelay: true,
				},
			},
		},
	}
	contact := &api.Contact{
		ID:         "ct-1",
		ProfileURL: "https://social.example.com/in/ana",
		FirstName:  "Ana",
		Company:    "Acme",
	}
	cc := &api.CampaignContact{
		ID:         "enr-1",
		CampaignID: camp.ID,
		ContactID:  contact.ID,
		AccountID:  camp.AccountID,
		Status:     api.StatusEnrolled,
	}
	return camp, contact, cc
}

func TestScheduleInitial(t *testing.T) {
	s := sequence.NewScheduler(sequence.Policy{MaxRetries: 5}, noJitter)
	camp, contact, cc := fixture()

	cmd, err := s.ScheduleInitial(camp, contact, cc)
	assert.NoError(t, err)
	if assert.NotNil(t, cmd) {
		assert.Equal(t, api.ActionConnect, cmd.Kind)
		assert.Equal(t, 0, cmd.Step)
		assert.True(t, cmd.RunAfter.IsZero())
		assert.Equal(t, contact.ProfileURL, cmd.TargetURL)
		assert.Equal(t, api.AccountID("acct-1"), cmd.AccountID)
		assert.Equal(t, 5, cmd.MaxRetries)
		assert.Equal(t,
			"Hi Ana, I work at Acme", cmd.Params[api.ParamMessage],
		)
		assert.Empty(t, cmd.Unresolved)
		assert.NoError(t, cmd.Validate())
	}

	cc.Status = api.StatusActive
	cc.SequenceStep = 1
	cmd, err = s.ScheduleInitial(camp, contact, cc)
	assert.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestScheduleInitialUnresolved(t *testing.T) {
	s := sequence.NewScheduler(sequence.Policy{}, noJitter)
	camp, contact, cc := fixture()
	camp.Sequence.Initial.Kind = api.ActionInMail
	camp.Sequence.Initial.Subject = "{job_title} at {company}"
	camp.Sequence.Initial.Message = "Hi {first_name} in {location}"

	cmd, err := s.ScheduleInitial(camp, contact, cc)
	assert.NoError(t, err)
	if assert.NotNil(t, cmd) {
		assert.Equal(t,
			"Hi Ana in {location}", cmd.Params[api.ParamMessage],
		)
		assert.Equal(t,
			"{job_title} at Acme", cmd.Params[api.ParamSubject],
		)
		assert.Equal(t,
			[]string{"{location}", "{job_title}"}, cmd.Unresolved,
		)
	}
}

func TestScheduleInitialInvalid(t *testing.T) {
	s := sequence.NewScheduler(sequence.Policy{}, noJitter)

	t.Run("initial_kind", func(t *testing.T) {
		camp, contact, cc := fixture()
		camp.Sequence.Initial.Kind = api.ActionTag
		_, err := s.ScheduleInitial(camp, contact, cc)
		assert.ErrorIs(t, err, api.ErrInvalidInitialKind)
	})

	t.Run("campaign_mismatch", func(t *testing.T) {
		camp, contact, cc := fixture()
		cc.CampaignID = "other"
		_, err := s.ScheduleInitial(camp, contact, cc)
		assert.ErrorIs(t, err, sequence.ErrCampaignMismatch)
	})

	t.Run("contact_mismatch", func(t *testing.T) {
		camp, contact, cc := fixture()
		cc.ContactID = "other"
		_, err := s.ScheduleInitial(camp, contact, cc)
		assert.ErrorIs(t, err, sequence.ErrContactMismatch)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := s.ScheduleInitial(nil, nil, nil)
		assert.ErrorIs(t, err, sequence.ErrMissingInput)
	})

	t.Run("no_profile", func(t *testing.T) {
		camp, contact, cc := fixture()
		contact.ProfileURL = ""
		_, err := s.ScheduleInitial(camp, contact, cc)
		assert.ErrorIs(t, err, sequence.ErrMissingProfileLink)
	})
}

func TestScheduleFollowUpDelay(t *testing.T) {
	s := sequence.NewScheduler(sequence.Policy{}, noJitter)
	camp, contact, cc := fixture()
	cc.Status = api.StatusAccepted
	cc.SequenceStep = 1
	ref := helpers.DefaultTestTime

	cmd, err := s.ScheduleFollowUp(camp, contact, cc, 1, ref)
	assert.NoError(t, err)
	if assert.NotNil(t, cmd) {
		assert.Equal(t, 1, cmd.Step)
		assert.Equal(t, api.ActionMessage, cmd.Kind)
		assert.Equal(t, ref.Add(72*time.Hour), cmd.RunAfter)
		assert.Equal(t, "Thanks Ana", cmd.Params[api.ParamMessage])
	}
}

func TestScheduleFollowUpSkipsEmptySlots(t *testing.T) {
	var asked time.Duration
	jitter := func(max time.Duration) time.Duration {
		asked = max
		return 5 * time.Hour
	}
	s := sequence.NewScheduler(sequence.Policy{}, jitter)
	camp, contact, cc := fixture()
	cc.Status = api.StatusAccepted
	cc.SequenceStep = 2
	ref := helpers.DefaultTestTime

	cmd, err := s.ScheduleFollowUp(camp, contact, cc, 2, ref)
	assert.NoError(t, err)
	if assert.NotNil(t, cmd) {
		assert.Equal(t, 3, cmd.Step)
		assert.Equal(t, api.ActionInMail, cmd.Kind)
		assert.Equal(t, ref.Add(29*time.Hour), cmd.RunAfter)
		assert.Equal(t, "About Acme", cmd.Params[api.ParamSubject])
	}
	assert.Equal(t, sequence.MaxJitter, asked)
}

func TestScheduleFollowUpExhausted(t *testing.T) {
	s := sequence.NewScheduler(sequence.Policy{}, noJitter)
	camp, contact, cc := fixture()
	camp.Sequence.FollowUps = camp.Sequence.FollowUps[:2]
	cc.Status = api.StatusAccepted
	cc.SequenceStep = 2

	cmd, err := s.ScheduleFollowUp(camp, contact, cc, 2, helpers.DefaultTestTime)
	assert.NoError(t, err)
	assert.Nil(t, cmd)
	assert.True(t, sequence.Exhausted(&camp.Sequence, 2))
	assert.False(t, sequence.Exhausted(&camp.Sequence, 1))
}

func TestScheduleFollowUpSuppressed(t *testing.T) {
	ref := helpers.DefaultTestTime

	for _, status := range []api.ContactStatus{
		api.StatusNotAccepted, api.StatusBlacklisted, api.StatusCompleted,
	} {
		t.Run(string(status), func(t *testing.T) {
			s := sequence.NewScheduler(sequence.Policy{}, noJitter)
			camp, contact, cc := fixture()
			cc.Status = status
			cc.SequenceStep = 1
			cmd, err := s.ScheduleFollowUp(camp, contact, cc, 1, ref)
			assert.NoError(t, err)
			assert.Nil(t, cmd)
		})
	}

	t.Run("stop_on_reply", func(t *testing.T) {
		s := sequence.NewScheduler(sequence.Policy{StopOnReply: true}, noJitter)
		camp, contact, cc := fixture()
		cc.Status = api.StatusResponded
		cc.SequenceStep = 1
		cmd, err := s.ScheduleFollowUp(camp, contact, cc, 1, ref)
		assert.NoError(t, err)
		assert.Nil(t, cmd)
	})

	t.Run("continue_on_reply", func(t *testing.T) {
		s := sequence.NewScheduler(sequence.Policy{}, noJitter)
		camp, contact, cc := fixture()
		cc.Status = api.StatusResponded
		cc.SequenceStep = 1
		cmd, err := s.ScheduleFollowUp(camp, contact, cc, 1, ref)
		assert.NoError(t, err)
		assert.NotNil(t, cmd)
	})
}

func TestScheduleFollowUpIdempotent(t *testing.T) {
	s := sequence.NewScheduler(sequence.Policy{}, noJitter)
	camp, contact, cc := fixture()
	cc.Status = api.StatusAccepted
	ref := helpers.DefaultTestTime

	cc.SequenceStep = 2
	cmd, err := s.ScheduleFollowUp(camp, contact, cc, 1, ref)
	assert.NoError(t, err)
	assert.Nil(t, cmd)

	cc.SequenceStep = 1
	cc.SetPending(1, ref.Add(72*time.Hour))
	cmd, err = s.ScheduleFollowUp(camp, contact, cc, 1, ref)
	assert.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestScheduleFollowUpInvalidStep(t *testing.T) {
	s := sequence.NewScheduler(sequence.Policy{}, noJitter)
	camp, contact, cc := fixture()
	cc.Status = api.StatusActive
	cc.SequenceStep = 1
	ref := helpers.DefaultTestTime

	_, err := s.ScheduleFollowUp(camp, contact, cc, 0, ref)
	assert.ErrorIs(t, err, sequence.ErrInvalidStep)

	_, err = s.ScheduleFollowUp(camp, contact, cc, 4, ref)
	assert.ErrorIs(t, err, sequence.ErrInvalidStep)

	_, err = s.ScheduleFollowUp(camp, contact, cc, 2, ref)
	assert.ErrorIs(t, err, sequence.ErrStepOutOfOrder)
}

func TestBuildStep(t *testing.T) {
	s := sequence.NewScheduler(sequence.Policy{}, noJitter)
	camp, contact, _ := fixture()
	at := helpers.DefaultTestTime

	cmd, err := s.BuildStep(camp, contact, 3, at)
	assert.NoError(t, err)
	assert.Equal(t, api.ActionInMail, cmd.Kind)
	assert.Equal(t, at, cmd.RunAfter)

	_, err = s.BuildStep(camp, contact, 2, at)
	assert.ErrorIs(t, err, sequence.ErrInvalidStep)

	_, err = s.BuildStep(camp, contact, 9, at)
	assert.ErrorIs(t, err, sequence.ErrInvalidStep)
}

func TestTriggerFor(t *testing.T) {
	camp, _, _ := fixture()
	seq := &camp.Sequence
	assert.Equal(t, sequence.TriggerAccepted, sequence.TriggerFor(seq, 0))
	assert.Equal(t, sequence.TriggerConfirmed, sequence.TriggerFor(seq, 1))
	assert.Equal(t, sequence.TriggerConfirmed, sequence.TriggerFor(seq, 9))
}

func TestRandomJitter(t *testing.T) {
	assert.Zero(t, sequence.RandomJitter(0))
	for range 200 {
		d := sequence.RandomJitter(sequence.MaxJitter)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, sequence.MaxJitter)
	}
}
