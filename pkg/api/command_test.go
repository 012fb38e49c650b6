package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/cadence/pkg/api"
)

func validCommand() *api.Command {
	return &api.Command{
		Kind:       api.ActionConnect,
		TargetURL:  "https://www.linkedin.com/in/ana",
		AccountID:  "acct-1",
		CampaignID: "camp-1",
		ContactID:  "contact-1",
	}
}

func TestCommandValidate(t *testing.T) {
	assert.NoError(t, validCommand().Validate())

	tests := []struct {
		name   string
		mod    func(*api.Command)
		expect string
	}{
		{
			name:   "missing_target",
			mod:    func(c *api.Command) { c.TargetURL = "" },
			expect: "target_url",
		},
		{
			name:   "malformed_target",
			mod:    func(c *api.Command) { c.TargetURL = "not a url" },
			expect: "target_url",
		},
		{
			name:   "unknown_kind",
			mod:    func(c *api.Command) { c.Kind = "poke" },
			expect: "kind",
		},
		{
			name:   "none_kind",
			mod:    func(c *api.Command) { c.Kind = api.ActionNone },
			expect: "kind",
		},
		{
			name:   "missing_account",
			mod:    func(c *api.Command) { c.AccountID = "" },
			expect: "account_id",
		},
		{
			name:   "step_out_of_range",
			mod:    func(c *api.Command) { c.Step = 4 },
			expect: "step",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := validCommand()
			tt.mod(cmd)
			err := cmd.Validate()
			assert.ErrorIs(t, err, api.ErrInvalidCommand)
			assert.Contains(t, err.Error(), tt.expect)
		})
	}
}

func TestCommandEnvelope(t *testing.T) {
	cmd := validCommand()
	cmd.Params = map[string]any{api.ParamMessage: "hello"}
	cmd.Force = true

	at := time.UnixMilli(1_700_000_000_123)
	env := cmd.Envelope("acct-1", at)

	assert.Equal(t, api.ActionConnect, env.Command)
	assert.Equal(t, cmd.TargetURL, env.TargetURL)
	assert.Equal(t, api.AccountID("acct-1"), env.UserID)
	assert.Equal(t, int64(1_700_000_000_123), env.TimestampMS)
	assert.Equal(t, "hello", env.Params[api.ParamMessage])
	assert.Equal(t, true, env.Params[api.ParamForce])
	assert.NotContains(t, cmd.Params, api.ParamForce)
}

func TestCommandIsDue(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cmd := validCommand()
	assert.True(t, cmd.IsDue(now))

	cmd.RunAfter = now.Add(time.Minute)
	assert.False(t, cmd.IsDue(now))
	assert.True(t, cmd.IsDue(now.Add(time.Minute)))
}

func TestCommandCanRetry(t *testing.T) {
	cmd := validCommand()
	cmd.MaxRetries = 2
	assert.True(t, cmd.CanRetry())
	cmd.RetryCount = 2
	assert.False(t, cmd.CanRetry())
}
