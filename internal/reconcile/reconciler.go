package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kode4food/cadence/internal/sequence"
	"github.com/kode4food/cadence/internal/state"
	"github.com/kode4food/cadence/internal/store"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

type (
	// Claimer deduplicates deliveries by event id
	Claimer interface {
		Claim(context.Context, string, time.Duration) (bool, error)
		Release(context.Context, string) error
	}

	// Archiver keeps raw payloads out of the database
	Archiver interface {
		Put(context.Context, *api.WebhookEvent, []byte) (string, error)
	}

	// Dependencies are the collaborators of a Reconciler. Archive may be
	// nil, in which case payloads are stored inline
	Dependencies struct {
		Store     store.Repository
		Claims    Claimer
		Archive   Archiver
		Scheduler *sequence.Scheduler
		Machine   *state.Machine
		Clock     func() time.Time
		Logger    *slog.Logger
	}

	// Reconciler applies webhook deliveries to enrollments
	Reconciler struct {
		Dependencies
		dedupTTL time.Duration
	}

	rowResult struct {
		changed   bool
		scheduled bool
		messages  int
	}
)

var (
	ErrMissingDependency = errors.New("reconciler dependency missing")
	ErrResolve           = errors.New("failed to resolve webhook references")
	ErrApply             = errors.New("failed to apply webhook")
	ErrClaim             = errors.New("failed to claim webhook event")
	ErrLookup            = errors.New("failed to look up webhook event")
)

// New creates a Reconciler. Deliveries with the same event id within
// dedupTTL are reported as duplicates
func New(deps Dependencies, dedupTTL time.Duration) (*Reconciler, error) {
	if deps.Store == nil || deps.Claims == nil ||
		deps.Scheduler == nil || deps.Machine == nil {
		return nil, ErrMissingDependency
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Reconciler{
		Dependencies: deps,
		dedupTTL:     dedupTTL,
	}, nil
}

// Reconcile parses and applies one raw webhook payload
func (r *Reconciler) Reconcile(
	ctx context.Context, raw []byte,
) (*api.ReconcileResult, error) {
	d, err := Parse(raw, r.Clock())
	if err != nil {
		return nil, err
	}
	return r.ReconcileEvent(ctx, d)
}

// ReconcileEvent applies an already parsed delivery. On failure the dedup
// claim is released so that a redelivery can be processed
func (r *Reconciler) ReconcileEvent(
	ctx context.Context, d *Delivery,
) (res *api.ReconcileResult, err error) {
	ev := d.Event
	res = &api.ReconcileResult{
		EventID: ev.ID,
		Type:    ev.Type,
		Event:   ev.Name,
	}

	claimed, err := r.Claims.Claim(ctx, ev.ID, r.dedupTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClaim, err)
	}
	if !claimed {
		res.Duplicate = true
		res.Outcome = api.OutcomeDuplicate
		r.Logger.Debug("Duplicate webhook ignored", log.EventID(ev.ID))
		return res, nil
	}
	defer func() {
		if err == nil {
			return
		}
		if rerr := r.Claims.Release(context.WithoutCancel(ctx), ev.ID); rerr != nil {
			r.Logger.Error("Failed to release webhook claim",
				log.EventID(ev.ID), log.Error(rerr))
		}
	}()

	done, err := r.processed(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	if done {
		res.Duplicate = true
		res.Outcome = api.OutcomeDuplicate
		r.Logger.Debug("Webhook already processed", log.EventID(ev.ID))
		return res, nil
	}

	m, ok := Classify(ev.Type, ev.Name)
	if !ok {
		r.Logger.Warn("Unknown webhook event",
			log.EventID(ev.ID),
			slog.String("type", ev.Type),
			slog.String("event", ev.Name),
			log.Error(api.ErrUnknownEvent))
		res.Outcome = api.OutcomeIgnored
		return res, r.record(ctx, d, res)
	}

	rows, err := r.resolve(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolve, err)
	}
	res.Matched = len(rows)
	if len(rows) == 0 {
		r.Logger.Info("Webhook matched no enrollment",
			log.EventID(ev.ID),
			slog.String("profile", ev.Profile),
			log.AccountID(ev.AccountID))
		res.Outcome = api.OutcomeUnmatched
		return res, r.record(ctx, d, res)
	}

	for _, cc := range rows {
		rr, err := r.apply(ctx, cc.ID, m, d)
		if err != nil {
			r.Logger.Error("Failed to apply webhook",
				log.EventID(ev.ID),
				log.EnrollmentID(cc.ID),
				log.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrApply, err)
		}
		if rr.changed {
			res.Changed++
		}
		if rr.scheduled {
			res.Scheduled++
		}
		res.Messages += rr.messages
	}

	res.Outcome = api.OutcomeApplied
	return res, r.record(ctx, d, res)
}

// processed reports whether the event was already applied and recorded,
// which covers redeliveries arriving after the dedup claim expired
func (r *Reconciler) processed(ctx context.Context, id string) (bool, error) {
	ev, err := r.Store.GetWebhookEvent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ev.Processed, nil
}

func (r *Reconciler) resolve(
	ctx context.Context, ev *api.WebhookEvent,
) ([]*api.CampaignContact, error) {
	contact, err := r.findContact(ctx, ev)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ev.ContactID = contact.ID

	var rows []*api.CampaignContact
	if ev.CampaignID != "" {
		cc, err := r.Store.GetCampaignContact(ctx, ev.CampaignID, contact.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		rows = []*api.CampaignContact{cc}
	} else {
		rows, err = r.Store.ListForContact(ctx, contact.ID, ev.AccountID)
		if err != nil {
			return nil, err
		}
	}

	if ev.AccountID == "" {
		return rows, nil
	}
	res := rows[:0]
	for _, cc := range rows {
		if cc.AccountID == ev.AccountID {
			res = append(res, cc)
		}
	}
	return res, nil
}

func (r *Reconciler) findContact(
	ctx context.Context, ev *api.WebhookEvent,
) (*api.Contact, error) {
	if ev.ContactID != "" {
		return r.Store.GetContact(ctx, ev.ContactID)
	}
	if ev.Profile != "" {
		return r.Store.FindContactByProfile(ctx, ev.Profile)
	}
	return nil, store.ErrNotFound
}

func (r *Reconciler) apply(
	ctx context.Context, id api.EnrollmentID, m Mapping, d *Delivery,
) (*rowResult, error) {
	res := &rowResult{}
	err := r.Store.Update(ctx, func(tx store.Repository) error {
		*res = rowResult{}
		cc, err := tx.GetEnrollment(ctx, id)
		if err != nil {
			return err
		}

		if m.Direction != "" {
			inserted, err := tx.AddMessage(ctx, &api.Message{
				At:           d.Event.Timestamp,
				EnrollmentID: cc.ID,
				CampaignID:   cc.CampaignID,
				ContactID:    cc.ContactID,
				Direction:    m.Direction,
				ExternalID:   d.messageKey(),
				Subject:      d.Subject,
				Body:         d.Body,
			})
			if err != nil {
				return err
			}
			if inserted {
				res.messages++
			}
		}

		out, err := r.Machine.Apply(cc, m.Event)
		if errors.Is(err, state.ErrInvalidTransition) {
			r.Logger.Info("Stale webhook event",
				log.EventID(d.Event.ID),
				log.EnrollmentID(cc.ID),
				log.Status(cc.Status),
				log.Error(err))
			return nil
		}
		if err != nil {
			return err
		}
		if err := addTransition(ctx, tx, out); err != nil {
			return err
		}
		dirty := out.Changed

		switch out.Effect {
		case state.EffectCancelPending:
			if cc.HasPending() {
				cc.ClearPending()
				dirty = true
			}
		case state.EffectScheduleNext:
			changed, err := r.scheduleNext(ctx, tx, cc, m, d.Event.Timestamp)
			if err != nil {
				return err
			}
			res.scheduled = changed && cc.HasPending()
			dirty = dirty || changed
		}

		if !dirty {
			return nil
		}
		res.changed = true
		return tx.SaveCampaignContact(ctx, cc)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// scheduleNext computes the follow-up unlocked by m, or completes the
// enrollment when no step remains. It reports whether cc was modified
func (r *Reconciler) scheduleNext(
	ctx context.Context, tx store.Repository, cc *api.CampaignContact,
	m Mapping, ref time.Time,
) (bool, error) {
	executed := cc.SequenceStep - 1
	if executed < 0 {
		return false, nil
	}

	camp, err := tx.GetCampaign(ctx, cc.CampaignID)
	if err != nil {
		return false, err
	}
	seq := &camp.Sequence
	if !unlocks(seq, executed, m) {
		return false, nil
	}

	if sequence.Exhausted(seq, cc.SequenceStep) {
		if cc.HasPending() {
			return false, nil
		}
		out, err := r.Machine.Apply(cc, state.EventExhausted)
		if err != nil {
			if errors.Is(err, state.ErrInvalidTransition) {
				return false, nil
			}
			return false, err
		}
		if err := addTransition(ctx, tx, out); err != nil {
			return false, err
		}
		return out.Changed, nil
	}

	contact, err := tx.GetContact(ctx, cc.ContactID)
	if err != nil {
		return false, err
	}
	cmd, err := r.Scheduler.ScheduleFollowUp(
		camp, contact, cc, cc.SequenceStep, ref,
	)
	if err != nil || cmd == nil {
		return false, err
	}
	cc.SetPending(cmd.Step, cmd.RunAfter)
	r.Logger.Info("Follow-up scheduled",
		log.EnrollmentID(cc.ID),
		log.Step(cmd.Step),
		log.Kind(cmd.Kind),
		slog.Time("run_after", cmd.RunAfter))
	return true, nil
}

// unlocks reports whether m is the confirmation the executed step waits
// for. A connect is unlocked by acceptance or a reply, never by a plain
// step confirmation
func unlocks(seq *api.SequenceDefinition, executed int, m Mapping) bool {
	action, ok := seq.Step(executed)
	if !ok {
		return false
	}
	switch sequence.TriggerFor(seq, executed) {
	case sequence.TriggerAccepted:
		return m.Event == state.EventAccepted ||
			m.Event == state.EventMessageReceived
	default:
		return m.Event == state.EventStepConfirmed &&
			m.ConfirmsKind(action.Kind)
	}
}

func (r *Reconciler) record(
	ctx context.Context, d *Delivery, res *api.ReconcileResult,
) error {
	ev := d.Event
	ev.Outcome = res.Outcome
	ev.Matched = res.Matched
	ev.Processed = true

	if r.Archive != nil {
		key, err := r.Archive.Put(ctx, ev, d.Raw)
		if err == nil {
			ev.ArchiveKey = key
		} else {
			r.Logger.Warn("Failed to archive webhook, storing inline",
				log.EventID(ev.ID), log.Error(err))
		}
	}
	if ev.ArchiveKey == "" {
		ev.Payload = string(d.Raw)
	}
	return r.Store.SaveWebhookEvent(ctx, ev)
}

func addTransition(
	ctx context.Context, tx store.Repository, out *state.Outcome,
) error {
	if out.Transition == nil {
		return nil
	}
	return tx.AddTransition(ctx, out.Transition)
}
