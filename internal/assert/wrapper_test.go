package assert_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/kode4food/cadence/internal/assert"
	"github.com/kode4food/cadence/internal/assert/helpers"
	"github.com/kode4food/cadence/pkg/api"
)

func TestSequenceHelpers(t *testing.T) {
	as := assert.New(t)

	seq := helpers.DefaultSequence()
	as.SequenceValid(&seq)

	bad := api.SequenceDefinition{
		Initial: api.SequenceAction{Kind: api.ActionFollow},
	}
	err := as.SequenceInvalid(&bad, "initial action kind")
	as.ErrorIs(err, api.ErrInvalidInitialKind)
}

func TestEnrollmentStatus(t *testing.T) {
	as := assert.New(t)
	as.EnrollmentStatus(&api.CampaignContact{
		Status: api.StatusAccepted,
	}, api.StatusAccepted)
}

func TestConfigHelpers(t *testing.T) {
	as := assert.New(t)

	cfg := helpers.NewTestConfig()
	as.ConfigValid(cfg)

	cfg.APIPort = 0
	as.ConfigInvalid(cfg, "invalid API port")
}

func TestEventually(t *testing.T) {
	as := assert.New(t)

	var calls atomic.Int32
	as.Eventually(func() bool {
		return calls.Add(1) >= 3
	}, time.Second, "condition should pass on the third call")
	as.Equal(int32(3), calls.Load())
}
