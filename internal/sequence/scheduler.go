package sequence

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	// Jitter returns a random duration in [0, max)
	Jitter func(max time.Duration) time.Duration

	// Trigger names the confirmation that unlocks the step after another
	Trigger string

	// Policy holds the scheduling choices that are configuration, not
	// sequence data
	Policy struct {
		StopOnReply bool
		MaxRetries  int
	}

	// Scheduler turns a campaign's sequence and one contact into
	// personalized Commands. Follow-ups are computed one at a time, only
	// after the previous step is confirmed
	Scheduler struct {
		jitter Jitter
		policy Policy
	}
)

const (
	// TriggerAccepted unlocks the step after a connect
	TriggerAccepted Trigger = "accepted"

	// TriggerConfirmed unlocks the step after any other action, once the
	// agent confirms it was performed
	TriggerConfirmed Trigger = "confirmed"

	// MaxJitter bounds the random delay added to a follow-up
	MaxJitter = 24 * time.Hour
)

var (
	ErrMissingInput       = errors.New("campaign, contact and enrollment required")
	ErrCampaignMismatch   = errors.New("enrollment belongs to another campaign")
	ErrContactMismatch    = errors.New("enrollment belongs to another contact")
	ErrInvalidStep        = errors.New("invalid follow-up step")
	ErrStepOutOfOrder     = errors.New("previous step has not been executed")
	ErrMissingProfileLink = errors.New("contact has no profile reference")
)

// NewScheduler creates a scheduler. A nil jitter uses a uniform random
// source
func NewScheduler(policy Policy, jitter Jitter) *Scheduler {
	if jitter == nil {
		jitter = RandomJitter
	}
	return &Scheduler{
		jitter: jitter,
		policy: policy,
	}
}

// RandomJitter returns a uniformly random duration in [0, max)
func RandomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// Policy returns the scheduler's policy
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// ScheduleInitial builds the sequence's opening command. It returns nil
// when the initial step has already been executed
func (s *Scheduler) ScheduleInitial(
	camp *api.Campaign, contact *api.Contact, cc *api.CampaignContact,
) (*api.Command, error) {
	if err := checkInputs(camp, contact, cc); err != nil {
		return nil, err
	}
	if cc.Status != api.StatusEnrolled || cc.SequenceStep > 0 {
		return nil, nil
	}
	if err := camp.Sequence.Validate(); err != nil {
		return nil, err
	}
	return s.build(camp, contact, 0, &camp.Sequence.Initial, time.Time{})
}

// ScheduleFollowUp builds follow-up step (1-based) with its run-after
// anchored at ref, the time the previous step was confirmed. Slots with
// no action are skipped forward. It returns nil when the contact is
// suppressed, the step was already executed or is pending, or the
// sequence is exhausted
func (s *Scheduler) ScheduleFollowUp(
	camp *api.Campaign, contact *api.Contact, cc *api.CampaignContact,
	step int, ref time.Time,
) (*api.Command, error) {
	if err := checkInputs(camp, contact, cc); err != nil {
		return nil, err
	}
	if step < 1 || step > api.MaxFollowUps {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStep, step)
	}
	if s.Suppressed(cc.Status) {
		return nil, nil
	}
	if step < cc.SequenceStep || cc.HasPending() {
		return nil, nil
	}
	if step > cc.SequenceStep {
		return nil, fmt.Errorf("%w: step %d, executed %d",
			ErrStepOutOfOrder, step, cc.SequenceStep)
	}

	next, ok := NextStep(&camp.Sequence, step)
	if !ok {
		return nil, nil
	}
	action, _ := camp.Sequence.Step(next)
	runAfter := ref.Add(action.Delay())
	if action.RandomDelay {
		runAfter = runAfter.Add(s.jitter(MaxJitter))
	}
	return s.build(camp, contact, next, action, runAfter)
}

// BuildStep rebuilds the command for a step that was already scheduled,
// used when a deferred follow-up becomes due
func (s *Scheduler) BuildStep(
	camp *api.Campaign, contact *api.Contact, step int, runAfter time.Time,
) (*api.Command, error) {
	action, ok := camp.Sequence.Step(step)
	if !ok || action.IsSkipped() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStep, step)
	}
	return s.build(camp, contact, step, action, runAfter)
}

// Suppressed reports whether no further follow-up may be scheduled for a
// contact in status
func (s *Scheduler) Suppressed(status api.ContactStatus) bool {
	if status.IsTerminal() {
		return true
	}
	return status == api.StatusResponded && s.policy.StopOnReply
}

// NextStep returns the first slot at or after from that has an action
func NextStep(seq *api.SequenceDefinition, from int) (int, bool) {
	if from < 0 {
		from = 0
	}
	for i := from; i < seq.Len(); i++ {
		action, _ := seq.Step(i)
		if !action.IsSkipped() {
			return i, true
		}
	}
	return 0, false
}

// Exhausted reports whether no slot with an action remains at or after from
func Exhausted(seq *api.SequenceDefinition, from int) bool {
	_, ok := NextStep(seq, from)
	return !ok
}

// TriggerFor returns the confirmation that unlocks the step following the
// executed one
func TriggerFor(seq *api.SequenceDefinition, executed int) Trigger {
	action, ok := seq.Step(executed)
	if ok && action.Kind == api.ActionConnect {
		return TriggerAccepted
	}
	return TriggerConfirmed
}

func (s *Scheduler) build(
	camp *api.Campaign, contact *api.Contact, step int,
	action *api.SequenceAction, runAfter time.Time,
) (*api.Command, error) {
	if contact.ProfileURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingProfileLink, contact.ID)
	}

	params := map[string]any{}
	unresolved := append(
		Unresolved(action.Message, contact),
		Unresolved(action.Subject, contact)...,
	)
	if msg := Personalize(action.Message, contact); msg != "" {
		params[api.ParamMessage] = msg
	}
	if subj := Personalize(action.Subject, contact); subj != "" {
		params[api.ParamSubject] = subj
	}

	return &api.Command{
		Kind:       action.Kind,
		TargetURL:  contact.ProfileURL,
		AccountID:  camp.AccountID,
		CampaignID: camp.ID,
		ContactID:  contact.ID,
		Step:       step,
		RunAfter:   runAfter,
		Params:     params,
		Unresolved: unresolved,
		Force:      camp.Force,
		MaxRetries: s.policy.MaxRetries,
	}, nil
}

func checkInputs(
	camp *api.Campaign, contact *api.Contact, cc *api.CampaignContact,
) error {
	if camp == nil || contact == nil || cc == nil {
		return ErrMissingInput
	}
	if cc.CampaignID != camp.ID {
		return fmt.Errorf("%w: %s", ErrCampaignMismatch, cc.CampaignID)
	}
	if cc.ContactID != contact.ID {
		return fmt.Errorf("%w: %s", ErrContactMismatch, cc.ContactID)
	}
	return nil
}
