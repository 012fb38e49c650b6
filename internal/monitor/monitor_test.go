package monitor_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cassert "github.com/kode4food/cadence/internal/assert"
	"github.com/kode4food/cadence/internal/assert/helpers"
	"github.com/kode4food/cadence/internal/monitor"
	"github.com/kode4food/cadence/pkg/api"
)

func TestCheckHealthy(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedAccount(t, helpers.TestAccountID, nil)
		env.Agent.SetDefault("queue/size", helpers.AgentResponse{
			Status: http.StatusOK, Body: `{"size":4}`,
		})
		env.Agent.SetDefault("queue/items", helpers.AgentResponse{
			Status: http.StatusOK, Body: `[{"command":"connect"}]`,
		})
		env.Agent.SetDefault("profile", helpers.AgentResponse{
			Status: http.StatusOK, Body: `{"name":"Sales Bot"}`,
		})

		health, err := env.Monitor.Check(context.Background())
		require.NoError(t, err)
		require.Len(t, health, 1)

		h := health[helpers.TestAccountID]
		require.NotNil(t, h)
		assert.Equal(t, api.HealthHealthy, h.Status)
		assert.Empty(t, h.Error)
		require.NotNil(t, h.Queue)
		assert.Equal(t, int64(4), h.Queue.Size)
		assert.JSONEq(t, `[{"command":"connect"}]`, string(h.Queue.Items))
		assert.JSONEq(t, `{"name":"Sales Bot"}`, string(h.Profile))
		assert.Equal(t, int64(3), h.Stats.Requests)
		assert.Zero(t, h.Stats.Errors)
		assert.Equal(t, env.Clock.Now(), h.CheckedAt)

		got, ok := env.Monitor.Health(helpers.TestAccountID)
		assert.True(t, ok)
		assert.Equal(t, h, got)
	})
}

func TestCheckUnhealthyProfile(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedAccount(t, helpers.TestAccountID, nil)
		env.Agent.SetDefault("queue/size", helpers.AgentResponse{
			Status: http.StatusOK, Body: `3`,
		})
		env.Agent.SetDefault("profile", helpers.AgentResponse{
			Status: http.StatusUnauthorized, Body: `{"error":"expired"}`,
		})

		health, err := env.Monitor.Check(context.Background())
		require.NoError(t, err)

		h := health[helpers.TestAccountID]
		require.NotNil(t, h)
		assert.Equal(t, api.HealthUnhealthy, h.Status)
		assert.Contains(t, h.Error, "expired")
		require.NotNil(t, h.Queue)
		assert.Equal(t, int64(3), h.Queue.Size)
		assert.Equal(t, int64(1), h.Stats.Errors)
	})
}

func TestCheckMissingQueueSize(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedAccount(t, helpers.TestAccountID, nil)

		h := env.Monitor.CheckAccount(context.Background(), &api.Account{
			ID:        helpers.TestAccountID,
			SecretKey: helpers.TestSecret,
		})
		assert.Equal(t, api.HealthUnhealthy, h.Status)
		assert.Equal(t, monitor.ErrQueueSize.Error(), h.Error)
		assert.Nil(t, h.Queue)
	})
}

func TestCheckIsolatesAccounts(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedAccount(t, "acct-1", nil)
		env.SeedAccount(t, "acct-2", nil)
		env.Agent.SetDefault("queue/size", helpers.AgentResponse{
			Status: http.StatusOK, Body: `{"data":{"size":1}}`,
		})

		health, err := env.Monitor.Check(context.Background())
		require.NoError(t, err)
		require.Len(t, health, 2)
		for _, id := range []api.AccountID{"acct-1", "acct-2"} {
			assert.Equal(t, api.HealthHealthy, health[id].Status)
			assert.Equal(t, id, health[id].Stats.AccountID)
		}
	})
}

func TestQueueHealth(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		ctx := context.Background()
		acct := env.SeedAccount(t, helpers.TestAccountID, nil)
		env.Clients.Get(acct)

		for body, want := range map[string]int64{
			`7`:                   7,
			`{"count":2}`:         2,
			`{"queue_size":9}`:    9,
			`{"data":{"size":5}}`: 5,
		} {
			env.Agent.Script("queue/size", helpers.AgentResponse{
				Status: http.StatusOK, Body: body,
			})
			q, err := env.Monitor.QueueHealth(ctx, helpers.TestAccountID)
			require.NoError(t, err)
			assert.Equal(t, want, q.Size, body)
		}
	})
}

func TestUnknownAccount(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		_, err := env.Monitor.Stats(context.Background(), "nope")
		assert.ErrorIs(t, err, monitor.ErrUnknownAccount)

		_, err = env.Monitor.QueueHealth(context.Background(), "nope")
		assert.ErrorIs(t, err, monitor.ErrUnknownAccount)

		_, ok := env.Monitor.Health("nope")
		assert.False(t, ok)
	})
}

func TestStats(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedDefault(t, "c1")
		_, err := env.Engine.RunCampaigns(
			context.Background(), helpers.TestCampaignID,
		)
		require.NoError(t, err)

		stats, err := env.Monitor.Stats(
			context.Background(), helpers.TestAccountID,
		)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Requests)
		assert.Equal(t, 1.0, stats.SuccessRate)
		assert.Equal(t,
			map[api.ActionKind]int64{api.ActionConnect: 1}, stats.DailyUsage,
		)
	})
}

func TestStatsBeforeFirstCall(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		env.SeedAccount(t, helpers.TestAccountID, nil)

		stats, err := env.Monitor.Stats(
			context.Background(), helpers.TestAccountID,
		)
		require.NoError(t, err)
		assert.Equal(t, helpers.TestAccountID, stats.AccountID)
		assert.Zero(t, stats.Requests)
		assert.Zero(t, stats.SuccessRate)
		assert.Nil(t, stats.DailyUsage)
		assert.Zero(t, env.Clients.Len())
	})
}

func TestStartStop(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEnv) {
		as := cassert.New(t)
		env.SeedAccount(t, helpers.TestAccountID, nil)
		env.Agent.SetDefault("queue/size", helpers.AgentResponse{
			Status: http.StatusOK, Body: `0`,
		})

		env.Monitor.Start()
		as.Eventually(func() bool {
			_, ok := env.Monitor.Health(helpers.TestAccountID)
			return ok
		}, 5*time.Second, "first health pass should run on start")
		env.Monitor.Stop()

		h, ok := env.Monitor.Health(helpers.TestAccountID)
		as.True(ok)
		as.Equal(api.HealthHealthy, h.Status)
	})
}
