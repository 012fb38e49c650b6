package api

import "time"

type (
	// Direction tells whether a message was sent or received
	Direction string

	// Message is an append-only record of one message exchanged with a
	// contact. ExternalID is the agent's message id, used for dedup
	Message struct {
		At           time.Time    `json:"at"`
		EnrollmentID EnrollmentID `json:"enrollment_id" gorm:"type:varchar(36);not null;uniqueIndex:ux_message_external,priority:1"`
		CampaignID   CampaignID   `json:"campaign_id" gorm:"type:varchar(64);index"`
		ContactID    ContactID    `json:"contact_id" gorm:"type:varchar(64);index"`
		Direction    Direction    `json:"direction" gorm:"type:varchar(16);not null;uniqueIndex:ux_message_external,priority:3"`
		ExternalID   string       `json:"external_id" gorm:"type:varchar(191);not null;uniqueIndex:ux_message_external,priority:2"`
		Subject      string       `json:"subject,omitempty"`
		Body         string       `json:"body,omitempty" gorm:"type:text"`
		ID           uint         `json:"id" gorm:"primaryKey"`
	}
)

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)
