package api

import "time"

type (
	// CampaignID identifies a campaign
	CampaignID string

	// Campaign runs one sequence on behalf of one account. Force bypasses
	// the contact exclusion rules for every command it produces
	Campaign struct {
		CreatedAt time.Time          `json:"created_at"`
		Sequence  SequenceDefinition `json:"sequence" gorm:"serializer:json;type:text"`
		ID        CampaignID         `json:"id" gorm:"primaryKey;type:varchar(64)"`
		AccountID AccountID          `json:"account_id" gorm:"type:varchar(64);not null;index"`
		Name      string             `json:"name,omitempty"`
		Force     bool               `json:"force,omitempty"`
	}
)
