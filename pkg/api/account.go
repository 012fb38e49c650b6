package api

import "time"

type (
	// AccountID identifies a credentialed account. It is sent to the agent
	// as the userid of every request
	AccountID string

	// Account is a credentialed identity whose commands are signed and
	// rate-limited independently of every other account
	Account struct {
		CreatedAt    time.Time          `json:"created_at"`
		DailyCaps    map[ActionKind]int `json:"daily_caps,omitempty" gorm:"serializer:json;type:text"`
		ID           AccountID          `json:"id" gorm:"primaryKey;type:varchar(64)"`
		Name         string             `json:"name,omitempty"`
		SecretKey    string             `json:"-" gorm:"not null"`
		RequestDelay time.Duration      `json:"request_delay,omitempty"`
	}
)

// DefaultRequestDelay is the minimum spacing between two requests of the
// same account when the account does not configure its own
const DefaultRequestDelay = time.Second

// DelayOr returns the account's request delay, or def when none is set
func (a *Account) DelayOr(def time.Duration) time.Duration {
	if a.RequestDelay > 0 {
		return a.RequestDelay
	}
	return def
}

// DailyCap returns the per-day limit for kind, with zero meaning unlimited
func (a *Account) DailyCap(kind ActionKind) int {
	if a.DailyCaps == nil {
		return 0
	}
	return a.DailyCaps[kind]
}
