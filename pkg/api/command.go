package api

import (
	"errors"
	"time"
)

type (
	// Command describes one automation action for the agent, optionally
	// deferred until RunAfter. Unresolved lists template placeholders the
	// contact had no value for
	Command struct {
		RunAfter   time.Time      `json:"run_after,omitzero"`
		Params     map[string]any `json:"params,omitempty"`
		Unresolved []string       `json:"unresolved,omitempty"`
		Kind       ActionKind     `json:"kind" validate:"required,action"`
		TargetURL  string         `json:"target_url" validate:"required,url"`
		AccountID  AccountID      `json:"account_id" validate:"required"`
		CampaignID CampaignID     `json:"campaign_id,omitempty"`
		ContactID  ContactID      `json:"contact_id,omitempty"`
		Step       int            `json:"step" validate:"min=0,max=3"`
		RetryCount int            `json:"retry_count,omitempty" validate:"min=0"`
		MaxRetries int            `json:"max_retries,omitempty" validate:"min=0"`
		Force      bool           `json:"force,omitempty"`
	}

	// CommandEnvelope is the JSON body POSTed to the agent's queue endpoint
	CommandEnvelope struct {
		Params      map[string]any `json:"params"`
		Command     ActionKind     `json:"command"`
		TargetURL   string         `json:"targeturl"`
		UserID      AccountID      `json:"userid"`
		TimestampMS int64          `json:"timestamp_ms"`
	}
)

// Command parameter keys understood by the agent
const (
	ParamMessage = "message"
	ParamSubject = "subject"
	ParamForce   = "force"
)

var ErrInvalidCommand = errors.New("invalid command")

// Validate checks the command is complete enough to be submitted
func (c *Command) Validate() error {
	if err := validate.Struct(c); err != nil {
		return validationError(ErrInvalidCommand, err)
	}
	return nil
}

// IsDue reports whether the command may run at now
func (c *Command) IsDue(now time.Time) bool {
	return c.RunAfter.IsZero() || !now.Before(c.RunAfter)
}

// CanRetry reports whether another attempt is permitted
func (c *Command) CanRetry() bool {
	return c.RetryCount < c.MaxRetries
}

// Envelope builds the wire form of the command for the given account
func (c *Command) Envelope(userID AccountID, at time.Time) *CommandEnvelope {
	params := make(map[string]any, len(c.Params)+1)
	for k, v := range c.Params {
		params[k] = v
	}
	if c.Force {
		params[ParamForce] = true
	}
	return &CommandEnvelope{
		Command:     c.Kind,
		TargetURL:   c.TargetURL,
		UserID:      userID,
		TimestampMS: at.UnixMilli(),
		Params:      params,
	}
}
