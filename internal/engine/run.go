package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kode4food/cadence/internal/client"
	"github.com/kode4food/cadence/internal/ledger"
	"github.com/kode4food/cadence/internal/state"
	"github.com/kode4food/cadence/internal/store"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

// RunCampaigns executes the initial step for every contact still in
// enrolled status across the given campaigns. One contact's failure never
// aborts the batch, except that an authentication failure stops the rest
// of that account's contacts
func (e *Engine) RunCampaigns(
	ctx context.Context, ids ...api.CampaignID,
) (*api.BatchSummary, error) {
	if len(ids) == 0 {
		return nil, ErrNoCampaigns
	}

	groups := map[api.AccountID][]work{}
	for _, id := range ids {
		camp, err := e.loadCampaign(ctx, id)
		if err != nil {
			return nil, err
		}
		rows, err := e.Store.ListForCampaign(ctx, id, api.StatusEnrolled)
		if err != nil {
			return nil, err
		}
		for _, cc := range rows {
			groups[camp.AccountID] = append(groups[camp.AccountID], work{
				camp: camp,
				cc:   cc,
			})
		}
	}

	sum := e.fanOut(ctx, groups, e.runContact)
	e.Logger.Info("Campaigns run",
		slog.Any("campaigns", ids),
		slog.Int("total", sum.Total),
		slog.Int("succeeded", sum.Succeeded),
		slog.Int("failed", sum.Failed),
		slog.Int("skipped", sum.Skipped),
		slog.Int("deferred", sum.Deferred))
	return sum, nil
}

func (e *Engine) runContact(
	ctx context.Context, acct *api.Account, cl *client.AccountClient, w work,
) api.BatchItem {
	if err := e.claimFresh(ctx, &w); err != nil {
		if errors.Is(err, ErrInFlight) {
			return skippedItem(w, err)
		}
		return failedItem(w, api.ErrorServer, err)
	}
	defer e.release(w.cc.ID)

	contact, err := e.Store.GetContact(ctx, w.cc.ContactID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = ErrContactNotFound
		}
		return failedItem(w, api.ErrorValidation, err)
	}
	if contact.DoNotContact && !w.camp.Force {
		return skippedItem(w, ErrExcluded)
	}

	cmd, err := e.Scheduler.ScheduleInitial(w.camp, contact, w.cc)
	if err != nil {
		return failedItem(w, api.ErrorValidation, err)
	}
	if cmd == nil {
		return skippedItem(w, ErrAlreadyStarted)
	}
	e.warnUnresolved(cmd)

	now := e.Clock()
	reserved, err := e.reserve(ctx, acct, cmd, now)
	if errors.Is(err, ledger.ErrCapReached) {
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
		return e.initialFailed(ctx, w, res)
	}

	// the agent performed the action; record it even if ctx is cancelled
	wctx := context.WithoutCancel(ctx)
	err = e.Store.Update(wctx, func(tx store.Repository) error {
		cc, err := tx.GetEnrollment(wctx, w.cc.ID)
		if err != nil {
			return err
		}
		out, err := e.Machine.Apply(cc, state.EventSubmitted)
		if err != nil {
			return err
		}
		if out.Transition != nil {
			if err := tx.AddTransition(wctx, out.Transition); err != nil {
				return err
			}
		}
		cc.SequenceStep = cmd.Step + 1
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
		e.Logger.Error("Failed to record initial step",
			log.EnrollmentID(w.cc.ID), log.Error(err))
		return failedItem(w, api.ErrorServer, err)
	}

	e.Logger.Info("Initial step executed",
		log.AccountID(acct.ID),
		log.CampaignID(w.camp.ID),
		log.ContactID(contact.ID),
		log.Kind(cmd.Kind),
		slog.String("message_id", res.MessageID))

	item := newItem(w)
	item.Step = cmd.Step
	item.Status = api.ItemSucceeded
	item.MessageID = res.MessageID
	return item
}

func (e *Engine) initialFailed(
	ctx context.Context, w work, res *api.ExecutionResult,
) api.BatchItem {
	msg := res.Err().Error()
	e.Logger.Warn("Initial step failed",
		log.AccountID(w.cc.AccountID),
		log.CampaignID(w.cc.CampaignID),
		log.ContactID(w.cc.ContactID),
		log.Kind(res.Kind()),
		log.ErrorString(msg))

	wctx := context.WithoutCancel(ctx)
	err := e.Store.Update(wctx, func(tx store.Repository) error {
		cc, err := tx.GetEnrollment(wctx, w.cc.ID)
		if err != nil {
			return err
		}
		cc.LastError = msg
		cc.Attempts++
		return tx.SaveCampaignContact(wctx, cc)
	})
	if err != nil {
		e.Logger.Error("Failed to record initial failure",
			log.EnrollmentID(w.cc.ID), log.Error(err))
	}

	item := failedItem(w, res.Kind(), res.Err())
	item.Step = 0
	return item
}
