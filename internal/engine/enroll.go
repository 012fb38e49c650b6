package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kode4food/cadence/internal/store"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

// Enroll adds contacts to a campaign. A contact that is already enrolled
// is reported as skipped; the store's unique index decides
func (e *Engine) Enroll(
	ctx context.Context, id api.CampaignID, contacts []api.ContactID,
) (*api.BatchSummary, error) {
	camp, err := e.loadCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := camp.Sequence.Validate(); err != nil {
		return nil, err
	}

	sum := &api.BatchSummary{Items: []api.BatchItem{}}
	for _, contactID := range contacts {
		sum.Add(e.enrollOne(ctx, camp, contactID))
	}
	e.Logger.Info("Contacts enrolled",
		log.CampaignID(id),
		log.AccountID(camp.AccountID),
		slog.Int("succeeded", sum.Succeeded),
		slog.Int("skipped", sum.Skipped),
		slog.Int("failed", sum.Failed))
	return sum, nil
}

func (e *Engine) enrollOne(
	ctx context.Context, camp *api.Campaign, contactID api.ContactID,
) api.BatchItem {
	now := e.Clock()
	cc := &api.CampaignContact{
		EnrolledAt:      now,
		StatusChangedAt: now,
		CampaignID:      camp.ID,
		ContactID:       contactID,
		AccountID:       camp.AccountID,
		Status:          api.StatusEnrolled,
	}
	w := work{camp: camp, cc: cc}

	if _, err := e.Store.GetContact(ctx, contactID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrContactNotFound, contactID)
		}
		return failedItem(w, api.ErrorValidation, err)
	}

	err := e.Store.Enroll(ctx, cc)
	switch {
	case errors.Is(err, store.ErrAlreadyEnrolled):
		return skippedItem(w, err)
	case err != nil:
		e.Logger.Error("Failed to enroll contact",
			log.CampaignID(camp.ID), log.ContactID(contactID), log.Error(err))
		return failedItem(w, api.ErrorServer, err)
	}

	item := newItem(w)
	item.Status = api.ItemSucceeded
	return item
}

func (e *Engine) loadCampaign(
	ctx context.Context, id api.CampaignID,
) (*api.Campaign, error) {
	camp, err := e.Store.GetCampaign(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	return camp, err
}
