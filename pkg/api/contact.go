package api

import "time"

type (
	// ContactID identifies a contact record
	ContactID string

	// EnrollmentID identifies one campaign/contact pairing
	EnrollmentID string

	// ContactStatus is the outreach status of one campaign/contact pairing
	ContactStatus string

	// Contact is the person being reached. Only the fields used for
	// personalization and exclusion are modeled here
	Contact struct {
		CreatedAt    time.Time `json:"created_at"`
		ID           ContactID `json:"id" gorm:"primaryKey;type:varchar(64)"`
		ProfileURL   string    `json:"profile_url" gorm:"uniqueIndex;not null"`
		FirstName    string    `json:"first_name,omitempty"`
		LastName     string    `json:"last_name,omitempty"`
		Company      string    `json:"company,omitempty"`
		JobTitle     string    `json:"job_title,omitempty"`
		Location     string    `json:"location,omitempty"`
		Industry     string    `json:"industry,omitempty"`
		DoNotContact bool      `json:"do_not_contact,omitempty"`
	}

	// CampaignContact carries the outreach state of one contact within one
	// campaign. SequenceStep is the index of the next slot to consider; the
	// pending fields describe a follow-up waiting for its run-after time
	CampaignContact struct {
		EnrolledAt      time.Time     `json:"enrolled_at"`
		StatusChangedAt time.Time     `json:"status_changed_at"`
		UpdatedAt       time.Time     `json:"updated_at"`
		ActivatedAt     *time.Time    `json:"activated_at,omitempty"`
		AcceptedAt      *time.Time    `json:"accepted_at,omitempty"`
		RepliedAt       *time.Time    `json:"replied_at,omitempty"`
		BlacklistedAt   *time.Time    `json:"blacklisted_at,omitempty"`
		CompletedAt     *time.Time    `json:"completed_at,omitempty"`
		PendingRunAfter *time.Time    `json:"pending_run_after,omitempty" gorm:"index"`
		PendingStep     *int          `json:"pending_step,omitempty"`
		ID              EnrollmentID  `json:"id" gorm:"primaryKey;type:varchar(36)"`
		CampaignID      CampaignID    `json:"campaign_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_campaign_contact,priority:1"`
		ContactID       ContactID     `json:"contact_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_campaign_contact,priority:2;index"`
		AccountID       AccountID     `json:"account_id" gorm:"type:varchar(64);not null;index"`
		Status          ContactStatus `json:"status" gorm:"type:varchar(32);not null;index"`
		LastError       string        `json:"last_error,omitempty"`
		LastMessageID   string        `json:"last_message_id,omitempty"`
		SequenceStep    int           `json:"sequence_step"`
		Attempts        int           `json:"attempts,omitempty"`
	}

	// ContactTransition is one timestamped status change
	ContactTransition struct {
		At           time.Time     `json:"at"`
		EnrollmentID EnrollmentID  `json:"enrollment_id" gorm:"type:varchar(36);index;not null"`
		From         ContactStatus `json:"from" gorm:"type:varchar(32)"`
		To           ContactStatus `json:"to" gorm:"type:varchar(32)"`
		Event        string        `json:"event"`
		ID           uint          `json:"id" gorm:"primaryKey"`
	}
)

const (
	StatusEnrolled    ContactStatus = "enrolled"
	StatusActive      ContactStatus = "active"
	StatusAccepted    ContactStatus = "accepted"
	StatusResponded   ContactStatus = "responded"
	StatusNotAccepted ContactStatus = "not_accepted"
	StatusBlacklisted ContactStatus = "blacklisted"
	StatusCompleted   ContactStatus = "completed"
)

// Personalization placeholder names
const (
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldCompany   = "company"
	FieldJobTitle  = "job_title"
	FieldLocation  = "location"
	FieldIndustry  = "industry"
)

// IsTerminal reports whether no further transition may leave the status
func (s ContactStatus) IsTerminal() bool {
	switch s {
	case StatusNotAccepted, StatusBlacklisted, StatusCompleted:
		return true
	default:
		return false
	}
}

// Field returns the personalization value for a placeholder name
func (c *Contact) Field(name string) (string, bool) {
	switch name {
	case FieldFirstName:
		return c.FirstName, true
	case FieldLastName:
		return c.LastName, true
	case FieldCompany:
		return c.Company, true
	case FieldJobTitle:
		return c.JobTitle, true
	case FieldLocation:
		return c.Location, true
	case FieldIndustry:
		return c.Industry, true
	default:
		return "", false
	}
}

// HasPending reports whether a follow-up is waiting to be dispatched
func (cc *CampaignContact) HasPending() bool {
	return cc.PendingStep != nil
}

// SetPending records a follow-up step to dispatch at runAfter
func (cc *CampaignContact) SetPending(step int, runAfter time.Time) {
	cc.PendingStep = &step
	cc.PendingRunAfter = &runAfter
}

// ClearPending drops any waiting follow-up
func (cc *CampaignContact) ClearPending() {
	cc.PendingStep = nil
	cc.PendingRunAfter = nil
	cc.Attempts = 0
}
