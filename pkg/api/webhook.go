package api

import "time"

type (
	// WebhookEvent is one notification received from the agent, along with
	// the references it resolved to and whether it was processed
	WebhookEvent struct {
		Timestamp  time.Time  `json:"timestamp"`
		ReceivedAt time.Time  `json:"received_at"`
		ID         string     `json:"id" gorm:"primaryKey;type:varchar(191)"`
		Type       string     `json:"type" gorm:"type:varchar(32);index"`
		Name       string     `json:"event" gorm:"type:varchar(64)"`
		Profile    string     `json:"profile,omitempty"`
		AccountID  AccountID  `json:"userid,omitempty" gorm:"type:varchar(64);index"`
		CampaignID CampaignID `json:"campaign_id,omitempty" gorm:"type:varchar(64)"`
		ContactID  ContactID  `json:"contact_id,omitempty" gorm:"type:varchar(64)"`
		Payload    string     `json:"payload,omitempty" gorm:"type:text"`
		ArchiveKey string     `json:"archive_key,omitempty"`
		Outcome    string     `json:"outcome,omitempty"`
		Matched    int        `json:"matched"`
		Processed  bool       `json:"processed"`
	}

	// ReconcileResult summarizes what one webhook delivery changed
	ReconcileResult struct {
		EventID   string `json:"event_id"`
		Type      string `json:"type"`
		Event     string `json:"event"`
		Outcome   string `json:"outcome"`
		Matched   int    `json:"matched"`
		Changed   int    `json:"changed"`
		Scheduled int    `json:"scheduled"`
		Messages  int    `json:"messages"`
		Duplicate bool   `json:"duplicate,omitempty"`
	}
)

// Webhook payload types sent by the agent
const (
	WebhookTypeVisit     = "visit"
	WebhookTypeMessage   = "message"
	WebhookTypeAction    = "action"
	WebhookTypeRCCommand = "rccommand"
)

// Reconcile outcomes recorded on the WebhookEvent
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeUnmatched = "unmatched"
)
