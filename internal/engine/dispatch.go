package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kode4food/cadence/internal/backoff"
	"github.com/kode4food/cadence/internal/client"
	"github.com/kode4food/cadence/internal/ledger"
	"github.com/kode4food/cadence/internal/store"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

var ErrRetriesExhausted = errors.New("follow-up retries exhausted")

// DispatchDue executes pending follow-ups whose run-after time has passed.
// Transient failures are rescheduled with backoff until the retry budget
// is spent, after which the pending slot is cleared with the last error.
// An authentication failure leaves the slot in place for a later run
func (e *Engine) DispatchDue(ctx context.Context) (*api.BatchSummary, error) {
	rows, err := e.Store.ListDue(ctx, e.Clock(), e.config.DispatchBatchSize)
	if err != nil {
		return nil, err
	}

	camps := map[api.CampaignID]*api.Campaign{}
	groups := map[api.AccountID][]work{}
	for _, cc := range rows {
		camp, ok := camps[cc.CampaignID]
		if !ok {
			camp, err = e.loadCampaign(ctx, cc.CampaignID)
			if err != nil {
				e.Logger.Error("Failed to load campaign for follow-up",
					log.EnrollmentID(cc.ID), log.Error(err))
				continue
			}
			camps[cc.CampaignID] = camp
		}
		groups[cc.AccountID] = append(groups[cc.AccountID], work{
			camp: camp,
			cc:   cc,
		})
	}
	return e.fanOut(ctx, groups, e.dispatchOne), nil
}

func (e *Engine) dispatchOne(
	ctx context.Context, acct *api.Account, cl *client.AccountClient, w work,
) api.BatchItem {
	if err := e.claimFresh(ctx, &w); err != nil {
		if errors.Is(err, ErrInFlight) {
			return skippedItem(w, err)
		}
		return failedItem(w, api.ErrorServer, err)
	}
	defer e.release(w.cc.ID)

	cc := w.cc
	if !cc.HasPending() || cc.PendingRunAfter.After(e.Clock()) {
		return skippedItem(w, ErrNotDue)
	}
	step := *cc.PendingStep

	if e.Scheduler.Suppressed(cc.Status) {
		e.clearPending(ctx, w, step, "")
		return skippedItem(w, fmt.Errorf("%w: %s", ErrExcluded, cc.Status))
	}

	contact, err := e.Store.GetContact(ctx, cc.ContactID)
	if err != nil {
		return failedItem(w, api.ErrorValidation, err)
	}
	if contact.DoNotContact && !w.camp.Force {
		e.clearPending(ctx, w, step, ErrExcluded.Error())
		return skippedItem(w, ErrExcluded)
	}

	cmd, err := e.Scheduler.BuildStep(w.camp, contact, step, *cc.PendingRunAfter)
	if err != nil {
		e.clearPending(ctx, w, step, err.Error())
		return failedItem(w, api.ErrorValidation, err)
	}
	cmd.RetryCount = cc.Attempts
	e.warnUnresolved(cmd)

	now := e.Clock()
	reserved, err := e.reserve(ctx, acct, cmd, now)
	if errors.Is(err, ledger.ErrCapReached) {
		e.reschedule(ctx, w, step, nextDay(now), cc.Attempts, err.Error())
		return deferredItem(w, err)
	}
	if err != nil {
		return failedItem(w, api.ErrorServer, err)
	}

	res := cl.Execute(ctx, cmd)
	if !res.Success {
		if reserved {
			e.refund(ctx, acct, cmd, now)
		}
		return e.followUpFailed(ctx, w, cmd, res)
	}

	wctx := context.WithoutCancel(ctx)
	err = e.Store.Update(wctx, func(tx store.Repository) error {
		cc, err := tx.GetEnrollment(wctx, w.cc.ID)
		if err != nil {
			return err
		}
		if cc.PendingStep == nil || *cc.PendingStep != step {
			return nil
		}
		cc.SequenceStep = step + 1
		cc.ClearPending()
		cc.Attempts = 0
		cc.LastMessageID = res.MessageID
		cc.LastError = ""
		if err := recordSent(wctx, tx, cc, cmd, res); err != nil {
			return err
		}
		w.cc = cc
		return tx.SaveCampaignContact(wctx, cc)
	})
	if err != nil {
		e.Logger.Error("Failed to record follow-up",
			log.EnrollmentID(w.cc.ID), log.Error(err))
		return failedItem(w, api.ErrorServer, err)
	}

	e.Logger.Info("Follow-up executed",
		log.AccountID(acct.ID),
		log.EnrollmentID(w.cc.ID),
		log.Step(step),
		log.Kind(cmd.Kind),
		slog.String("message_id", res.MessageID))

	item := newItem(w)
	item.Step = step
	item.Status = api.ItemSucceeded
	item.MessageID = res.MessageID
	return item
}

func (e *Engine) followUpFailed(
	ctx context.Context, w work, cmd *api.Command, res *api.ExecutionResult,
) api.BatchItem {
	msg := res.Err().Error()
	item := failedItem(w, res.Kind(), res.Err())
	item.Step = cmd.Step

	if res.Kind() == api.ErrorAuthentication {
		e.Logger.Error("Follow-up failed, account credentials rejected",
			log.EnrollmentID(w.cc.ID),
			log.Step(cmd.Step),
			log.ErrorString(msg))
		e.updatePending(ctx, w, cmd.Step, func(cc *api.CampaignContact) {
			cc.LastError = msg
		})
		return item
	}

	retry := e.config.Retry
	attempts := w.cc.Attempts + 1
	transient := res.Failure != nil && res.Failure.IsTransient()
	if transient && attempts <= retry.MaxRetries {
		delay := backoff.Delay(
			retry.BackoffType, retry.InitBackoff, retry.MaxBackoff, attempts-1,
		)
		at := e.Clock().Add(delay)
		e.Logger.Warn("Follow-up failed, rescheduling",
			log.EnrollmentID(w.cc.ID),
			log.Step(cmd.Step),
			log.Kind(res.Kind()),
			slog.Int("attempt", attempts),
			slog.Time("run_after", at),
			log.ErrorString(msg))
		e.reschedule(ctx, w, cmd.Step, at, attempts, msg)
		item.Status = api.ItemDeferred
		return item
	}

	if transient {
		msg = fmt.Sprintf("%s: %s", ErrRetriesExhausted, msg)
	}
	e.Logger.Error("Follow-up failed",
		log.EnrollmentID(w.cc.ID),
		log.Step(cmd.Step),
		log.Kind(res.Kind()),
		log.ErrorString(msg))
	e.clearPending(ctx, w, cmd.Step, msg)
	return item
}

// reschedule moves the pending follow-up to at, if it is still the one
// that was dispatched
func (e *Engine) reschedule(
	ctx context.Context, w work, step int, at time.Time, attempts int,
	msg string,
) {
	e.updatePending(ctx, w, step, func(cc *api.CampaignContact) {
		cc.SetPending(step, at)
		cc.Attempts = attempts
		cc.LastError = msg
	})
}

// clearPending drops the pending follow-up, recording msg as the last
// error when it is not empty
func (e *Engine) clearPending(
	ctx context.Context, w work, step int, msg string,
) {
	e.updatePending(ctx, w, step, func(cc *api.CampaignContact) {
		cc.ClearPending()
		if msg != "" {
			cc.LastError = msg
		}
	})
}

func (e *Engine) updatePending(
	ctx context.Context, w work, step int, fn func(*api.CampaignContact),
) {
	wctx := context.WithoutCancel(ctx)
	err := e.Store.Update(wctx, func(tx store.Repository) error {
		cc, err := tx.GetEnrollment(wctx, w.cc.ID)
		if err != nil {
			return err
		}
		if cc.PendingStep == nil || *cc.PendingStep != step {
			return nil
		}
		fn(cc)
		return tx.SaveCampaignContact(wctx, cc)
	})
	if err != nil {
		e.Logger.Error("Failed to update pending follow-up",
			log.EnrollmentID(w.cc.ID), log.Step(step), log.Error(err))
	}
}

func nextDay(t time.Time) time.Time {
	return t.UTC().Truncate(api.Day).Add(api.Day)
}
