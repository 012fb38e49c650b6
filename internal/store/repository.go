package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	// AccountStore persists automation accounts
	AccountStore interface {
		GetAccount(context.Context, api.AccountID) (*api.Account, error)
		SaveAccount(context.Context, *api.Account) error
		ListAccounts(context.Context) ([]*api.Account, error)
	}

	// CampaignStore persists campaigns and their sequences
	CampaignStore interface {
		GetCampaign(context.Context, api.CampaignID) (*api.Campaign, error)
		SaveCampaign(context.Context, *api.Campaign) error
	}

	// ContactStore persists contacts
	ContactStore interface {
		GetContact(context.Context, api.ContactID) (*api.Contact, error)
		SaveContact(context.Context, *api.Contact) error
		FindContactByProfile(context.Context, string) (*api.Contact, error)
	}

	// CampaignContactStore persists enrollments and their transitions
	CampaignContactStore interface {
		Enroll(context.Context, *api.CampaignContact) error
		GetEnrollment(
			context.Context, api.EnrollmentID,
		) (*api.CampaignContact, error)
		GetCampaignContact(
			context.Context, api.CampaignID, api.ContactID,
		) (*api.CampaignContact, error)
		SaveCampaignContact(context.Context, *api.CampaignContact) error
		ListForCampaign(
			context.Context, api.CampaignID, ...api.ContactStatus,
		) ([]*api.CampaignContact, error)
		ListForContact(
			context.Context, api.ContactID, api.AccountID,
		) ([]*api.CampaignContact, error)
		ListDue(
			context.Context, time.Time, int,
		) ([]*api.CampaignContact, error)
		AddTransition(context.Context, *api.ContactTransition) error
		ListTransitions(
			context.Context, api.EnrollmentID,
		) ([]*api.ContactTransition, error)
	}

	// MessageStore keeps the append-only message history and the received
	// webhook events
	MessageStore interface {
		AddMessage(context.Context, *api.Message) (bool, error)
		ListMessages(context.Context, api.EnrollmentID) ([]*api.Message, error)
		SaveWebhookEvent(context.Context, *api.WebhookEvent) error
		GetWebhookEvent(context.Context, string) (*api.WebhookEvent, error)
	}

	// Repository is the full persistence surface used by the engine
	Repository interface {
		AccountStore
		CampaignStore
		ContactStore
		CampaignContactStore
		MessageStore

		// Update runs fn in a single transaction
		Update(context.Context, func(Repository) error) error
	}
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyEnrolled = errors.New("contact already enrolled in campaign")
)

var _ Repository = (*Store)(nil)

func (s *Store) GetAccount(
	ctx context.Context, id api.AccountID,
) (*api.Account, error) {
	var res api.Account
	if err := s.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &res, nil
}

func (s *Store) SaveAccount(ctx context.Context, a *api.Account) error {
	return s.db.WithContext(ctx).Save(a).Error
}

func (s *Store) ListAccounts(ctx context.Context) ([]*api.Account, error) {
	var res []*api.Account
	err := s.db.WithContext(ctx).Order("id").Find(&res).Error
	return res, err
}

func (s *Store) GetCampaign(
	ctx context.Context, id api.CampaignID,
) (*api.Campaign, error) {
	var res api.Campaign
	if err := s.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &res, nil
}

func (s *Store) SaveCampaign(ctx context.Context, c *api.Campaign) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *Store) GetContact(
	ctx context.Context, id api.ContactID,
) (*api.Contact, error) {
	var res api.Contact
	if err := s.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &res, nil
}

func (s *Store) SaveContact(ctx context.Context, c *api.Contact) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *Store) FindContactByProfile(
	ctx context.Context, profile string,
) (*api.Contact, error) {
	var res api.Contact
	err := s.db.WithContext(ctx).
		First(&res, "profile_url = ?", profile).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &res, nil
}

// Enroll inserts a new enrollment. The unique (campaign, contact) index
// is authoritative: a second insert yields ErrAlreadyEnrolled
func (s *Store) Enroll(ctx context.Context, cc *api.CampaignContact) error {
	if cc.ID == "" {
		cc.ID = api.EnrollmentID(uuid.NewString())
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(cc)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyEnrolled
	}
	return nil
}

func (s *Store) GetEnrollment(
	ctx context.Context, id api.EnrollmentID,
) (*api.CampaignContact, error) {
	var res api.CampaignContact
	if err := s.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &res, nil
}

func (s *Store) GetCampaignContact(
	ctx context.Context, campaignID api.CampaignID, contactID api.ContactID,
) (*api.CampaignContact, error) {
	var res api.CampaignContact
	err := s.db.WithContext(ctx).
		Where("campaign_id = ? AND contact_id = ?", campaignID, contactID).
		First(&res).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &res, nil
}

func (s *Store) SaveCampaignContact(
	ctx context.Context, cc *api.CampaignContact,
) error {
	return s.db.WithContext(ctx).Save(cc).Error
}

// ListForCampaign returns the campaign's enrollments, optionally limited
// to the given statuses, in enrollment order
func (s *Store) ListForCampaign(
	ctx context.Context, id api.CampaignID, statuses ...api.ContactStatus,
) ([]*api.CampaignContact, error) {
	var res []*api.CampaignContact
	q := s.db.WithContext(ctx).Where("campaign_id = ?", id)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Order("enrolled_at, id").Find(&res).Error
	return res, err
}

// ListForContact returns every enrollment of a contact, optionally limited
// to campaigns run by one account
func (s *Store) ListForContact(
	ctx context.Context, id api.ContactID, acct api.AccountID,
) ([]*api.CampaignContact, error) {
	var res []*api.CampaignContact
	q := s.db.WithContext(ctx).Where("contact_id = ?", id)
	if acct != "" {
		q = q.Where("account_id = ?", acct)
	}
	err := q.Order("enrolled_at, id").Find(&res).Error
	return res, err
}

// ListDue returns enrollments whose pending follow-up is runnable at now,
// oldest first
func (s *Store) ListDue(
	ctx context.Context, now time.Time, limit int,
) ([]*api.CampaignContact, error) {
	var res []*api.CampaignContact
	q := s.db.WithContext(ctx).
		Where("pending_step IS NOT NULL").
		Where("pending_run_after <= ?", now).
		Order("pending_run_after, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&res).Error
	return res, err
}

func (s *Store) AddTransition(
	ctx context.Context, t *api.ContactTransition,
) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *Store) ListTransitions(
	ctx context.Context, id api.EnrollmentID,
) ([]*api.ContactTransition, error) {
	var res []*api.ContactTransition
	err := s.db.WithContext(ctx).
		Where("enrollment_id = ?", id).
		Order("id").Find(&res).Error
	return res, err
}

// AddMessage appends to the message history. It reports false when the
// message was already recorded under the same external id
func (s *Store) AddMessage(ctx context.Context, m *api.Message) (bool, error) {
	if m.ExternalID == "" {
		m.ExternalID = uuid.NewString()
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListMessages(
	ctx context.Context, id api.EnrollmentID,
) ([]*api.Message, error) {
	var res []*api.Message
	err := s.db.WithContext(ctx).
		Where("enrollment_id = ?", id).
		Order("at, id").Find(&res).Error
	return res, err
}

func (s *Store) SaveWebhookEvent(
	ctx context.Context, ev *api.WebhookEvent,
) error {
	return s.db.WithContext(ctx).Save(ev).Error
}

func (s *Store) GetWebhookEvent(
	ctx context.Context, id string,
) (*api.WebhookEvent, error) {
	var res api.WebhookEvent
	if err := s.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &res, nil
}
