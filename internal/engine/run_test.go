package engine_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/cadence/internal/assert/helpers"
	"github.com/kode4food/cadence/internal/engine"
	"github.com/kode4food/cadence/pkg/api"
)

func TestRunCampaigns(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedDefault(t, "c1", "c2")
		ctx := context.Background()

		sum, err := env.Engine.RunCampaigns(ctx, helpers.TestCampaignID)
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Total)
		assert.Equal(t, 2, sum.Succeeded)
		assert.Empty(t, sum.Aborted)

		for _, id := range []api.ContactID{"c1", "c2"} {
			cc := env.Enrollment(t, helpers.TestCampaignID, id)
			assert.Equal(t, api.StatusActive, cc.Status)
			assert.Equal(t, 1, cc.SequenceStep)
			assert.NotEmpty(t, cc.LastMessageID)
			assert.NotNil(t, cc.ActivatedAt)
			assert.False(t, cc.HasPending())
		}

		cmds := env.Agent.Commands()
		require.Len(t, cmds, 2)
		for _, cmd := range cmds {
			assert.Equal(t, api.ActionConnect, cmd.Command)
			assert.Equal(t, helpers.TestAccountID, cmd.UserID)
			assert.Equal(t,
				"Hi Ana, I work at Acme", cmd.Params[api.ParamMessage],
			)
		}

		sum, err = env.Engine.RunCampaigns(ctx, helpers.TestCampaignID)
		require.NoError(t, err)
		assert.Zero(t, sum.Total)
		assert.Len(t, env.Agent.Commands(), 2)
	})
}

func TestRunCampaignsErrors(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		ctx := context.Background()

		_, err := env.Engine.RunCampaigns(ctx)
		assert.ErrorIs(t, err, engine.ErrNoCampaigns)

		_, err = env.Engine.RunCampaigns(ctx, "nope")
		assert.ErrorIs(t, err, engine.ErrCampaignNotFound)
	})
}

func TestRunDoNotContact(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedDefault(t, "c1")
		ctx := context.Background()

		ct, err := env.Store.GetContact(ctx, "c1")
		require.NoError(t, err)
		ct.DoNotContact = true
		require.NoError(t, env.Store.SaveContact(ctx, ct))

		sum, err := env.Engine.RunCampaigns(ctx, helpers.TestCampaignID)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Skipped)
		assert.Equal(t, engine.ErrExcluded.Error(), sum.Items[0].Error)
		assert.Zero(t, env.Agent.Hits("queue"))
	})
}

func TestRunForcedCampaign(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedDefault(t, "c1")
		ctx := context.Background()

		ct, err := env.Store.GetContact(ctx, "c1")
		require.NoError(t, err)
		ct.DoNotContact = true
		require.NoError(t, env.Store.SaveContact(ctx, ct))

		camp, err := env.Store.GetCampaign(ctx, helpers.TestCampaignID)
		require.NoError(t, err)
		camp.Force = true
		require.NoError(t, env.Store.SaveCampaign(ctx, camp))

		sum, err := env.Engine.RunCampaigns(ctx, helpers.TestCampaignID)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Succeeded)

		cmds := env.Agent.Commands()
		require.Len(t, cmds, 1)
		assert.Equal(t, true, cmds[0].Params[api.ParamForce])
	})
}

func TestRunDailyCap(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		ctx := context.Background()
		env.SeedAccount(t, helpers.TestAccountID,
			map[api.ActionKind]int{api.ActionConnect: 1},
		)
		env.SeedCampaign(t, helpers.TestCampaignID, helpers.TestAccountID,
			helpers.DefaultSequence(),
		)
		env.SeedContact(t, "c1", "Ana", "Acme")
		env.SeedContact(t, "c2", "Bo", "Beta")
		_, err := env.Engine.Enroll(ctx, helpers.TestCampaignID,
			[]api.ContactID{"c1", "c2"},
		)
		require.NoError(t, err)

		sum, err := env.Engine.RunCampaigns(ctx, helpers.TestCampaignID)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Succeeded)
		assert.Equal(t, 1, sum.Deferred)
		assert.Equal(t, 1, env.Agent.Hits("queue"))

		n, err := env.Ledger.Count(ctx,
			helpers.TestAccountID, api.ActionConnect, env.Clock.Now(),
		)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		rows, err := env.Store.ListForCampaign(ctx,
			helpers.TestCampaignID, api.StatusEnrolled,
		)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})
}

func TestRunAuthenticationAborts(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedDefault(t, "c1", "c2", "c3")
		env.Agent.SetDefault("queue", helpers.AgentResponse{
			Status: http.StatusUnauthorized,
			Body:   `{"error":"bad signature"}`,
		})
		ctx := context.Background()

		sum, err := env.Engine.RunCampaigns(ctx, helpers.TestCampaignID)
		require.NoError(t, err)
		assert.Equal(t, 3, sum.Total)
		assert.Equal(t, 1, sum.Failed)
		assert.Equal(t, 2, sum.Skipped)
		assert.Equal(t, []api.AccountID{helpers.TestAccountID}, sum.Aborted)
		assert.Equal(t, 1, env.Agent.Hits("queue"))

		require.Len(t, sum.Errors(), 1)
		assert.Equal(t, api.ErrorAuthentication, sum.Errors()[0].Kind)
		for _, item := range sum.Items {
			if item.Status == api.ItemSkipped {
				assert.Equal(t, engine.ErrAccountAborted.Error(), item.Error)
			}
		}

		reports := env.Reporter.Reports()
		require.Len(t, reports, 1)
		assert.Equal(t,
			string(helpers.TestAccountID), reports[0].Tags["account_id"],
		)
		assert.Equal(t,
			string(api.ErrorAuthentication), reports[0].Tags["kind"],
		)

		n, err := env.Ledger.Count(ctx,
			helpers.TestAccountID, api.ActionConnect, env.Clock.Now(),
		)
		require.NoError(t, err)
		assert.Zero(t, n)

		rows, err := env.Store.ListForCampaign(ctx,
			helpers.TestCampaignID, api.StatusEnrolled,
		)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})
}

func TestRunValidationFailure(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedDefault(t, "c1")
		env.Agent.Script("queue", helpers.AgentResponse{
			Status: http.StatusOK,
			Body:   `{"success":false,"error":"profile not found"}`,
		})

		sum, err := env.Engine.RunCampaigns(
			context.Background(), helpers.TestCampaignID,
		)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Failed)
		assert.Equal(t, api.ErrorValidation, sum.Items[0].Kind)

		cc := env.Enrollment(t, helpers.TestCampaignID, "c1")
		assert.Equal(t, api.StatusEnrolled, cc.Status)
		assert.Equal(t, 1, cc.Attempts)
		assert.Contains(t, cc.LastError, "profile not found")
	})
}

func TestRunServerErrorRetried(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedDefault(t, "c1")
		env.Agent.Script("queue",
			helpers.AgentResponse{Status: http.StatusBadGateway, Body: `{}`},
			helpers.AgentResponse{Status: http.StatusServiceUnavailable},
		)

		sum, err := env.Engine.RunCampaigns(
			context.Background(), helpers.TestCampaignID,
		)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Succeeded)
		assert.Equal(t, 3, env.Agent.Hits("queue"))

		cc := env.Enrollment(t, helpers.TestCampaignID, "c1")
		assert.Equal(t, api.StatusActive, cc.Status)
		assert.Zero(t, cc.Attempts)
	})
}

func TestRunAccountsInParallel(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		ctx := context.Background()
		env.SeedAccount(t, "acct-1", nil)
		env.SeedAccount(t, "acct-2", nil)
		env.SeedCampaign(t, "camp-1", "acct-1", helpers.DefaultSequence())
		env.SeedCampaign(t, "camp-2", "acct-2", helpers.DefaultSequence())
		env.SeedContact(t, "c1", "Ana", "Acme")
		env.SeedContact(t, "c2", "Bo", "Beta")

		_, err := env.Engine.Enroll(ctx, "camp-1", []api.ContactID{"c1"})
		require.NoError(t, err)
		_, err = env.Engine.Enroll(ctx, "camp-2", []api.ContactID{"c2"})
		require.NoError(t, err)

		sum, err := env.Engine.RunCampaigns(ctx, "camp-1", "camp-2")
		require.NoError(t, err)
		require.Equal(t, 2, sum.Succeeded)
		assert.Equal(t, api.AccountID("acct-1"), sum.Items[0].AccountID)
		assert.Equal(t, api.AccountID("acct-2"), sum.Items[1].AccountID)

		accts := map[api.AccountID]int{}
		for _, r := range env.Agent.Requests() {
			accts[r.AccountID]++
		}
		assert.Equal(t, map[api.AccountID]int{"acct-1": 1, "acct-2": 1}, accts)
	})
}

func TestRunCampaignsConcurrent(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedDefault(t, "c1")
		ctx := context.Background()

		var wg sync.WaitGroup
		for range 4 {
			wg.Go(func() {
				_, err := env.Engine.RunCampaigns(ctx, helpers.TestCampaignID)
				assert.NoError(t, err)
			})
		}
		wg.Wait()

		assert.Len(t, env.Agent.Commands(), 1)
		cc := env.Enrollment(t, helpers.TestCampaignID, "c1")
		assert.Equal(t, api.StatusActive, cc.Status)
		assert.Equal(t, 1, cc.SequenceStep)
	})
}
