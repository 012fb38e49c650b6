package api

import (
	"errors"
	"fmt"
	"time"
)

type (
	// SequenceDefinition is one initial action plus up to three follow-ups
	SequenceDefinition struct {
		Initial   SequenceAction   `json:"initial"`
		FollowUps []SequenceAction `json:"follow_ups,omitempty" validate:"max=3,dive"`
	}

	// SequenceAction is one slot of a sequence. DelayDays and RandomDelay
	// are ignored for the initial action
	SequenceAction struct {
		Kind        ActionKind `json:"kind" validate:"required,followup"`
		Message     string     `json:"message,omitempty"`
		Subject     string     `json:"subject,omitempty"`
		DelayDays   int        `json:"delay_days,omitempty" validate:"min=0,max=365"`
		RandomDelay bool       `json:"random_delay,omitempty"`
	}
)

const (
	// MaxFollowUps is the number of follow-up slots a sequence may define
	MaxFollowUps = 3

	Day = 24 * time.Hour
)

var (
	ErrInvalidSequence    = errors.New("invalid sequence")
	ErrInvalidInitialKind = errors.New("invalid initial action kind")
)

// Validate checks the sequence shape and the initial action kind
func (s *SequenceDefinition) Validate() error {
	if !s.Initial.Kind.IsInitial() {
		return fmt.Errorf("%w: %w: %q",
			ErrInvalidSequence, ErrInvalidInitialKind, s.Initial.Kind)
	}
	if err := validate.Struct(s); err != nil {
		return validationError(ErrInvalidSequence, err)
	}
	return nil
}

// Len returns the number of slots, including the initial action
func (s *SequenceDefinition) Len() int {
	return 1 + len(s.FollowUps)
}

// Step returns the slot at index, where zero is the initial action
func (s *SequenceDefinition) Step(index int) (*SequenceAction, bool) {
	switch {
	case index == 0:
		return &s.Initial, true
	case index > 0 && index <= len(s.FollowUps):
		return &s.FollowUps[index-1], true
	default:
		return nil, false
	}
}

// Delay returns the configured delay before the slot becomes runnable
func (a *SequenceAction) Delay() time.Duration {
	return time.Duration(a.DelayDays) * Day
}

// IsSkipped reports whether the slot has no action
func (a *SequenceAction) IsSkipped() bool {
	return a.Kind == ActionNone || a.Kind == ""
}
