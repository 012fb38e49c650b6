package assert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/cadence/internal/config"
	"github.com/kode4food/cadence/pkg/api"
)

// Wrapper wraps testify assertions with sequencing-specific helpers
type Wrapper struct {
	*testing.T
	*assert.Assertions
	Require *assert.Assertions
}

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 10 * time.Millisecond

// New creates a new test assertion wrapper with both assert and require from
// testify plus sequencing-specific helpers
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
		Require:    assert.New(t),
	}
}

// SequenceValid asserts that a sequence definition is valid
func (w *Wrapper) SequenceValid(s *api.SequenceDefinition) {
	w.Helper()
	w.NoError(s.Validate())
	w.True(s.Initial.Kind.IsInitial())
	w.LessOrEqual(len(s.FollowUps), api.MaxFollowUps)
}

// SequenceInvalid asserts that a sequence definition is invalid and returns
// the validation error
func (w *Wrapper) SequenceInvalid(
	s *api.SequenceDefinition, expectedErrorContains string,
) error {
	w.Helper()
	err := s.Validate()
	w.ErrorIs(err, api.ErrInvalidSequence)
	if err != nil && expectedErrorContains != "" {
		w.Contains(err.Error(), expectedErrorContains)
	}
	return err
}

// EnrollmentStatus asserts the status of an enrollment
func (w *Wrapper) EnrollmentStatus(
	cc *api.CampaignContact, expected api.ContactStatus,
) {
	w.Helper()
	w.Equal(expected, cc.Status)
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= config.MaxTCPPort)
	w.True(cfg.DispatchInterval > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if err != nil && contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}
