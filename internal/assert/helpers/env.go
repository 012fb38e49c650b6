package helpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/cadence/internal/client"
	"github.com/kode4food/cadence/internal/config"
	"github.com/kode4food/cadence/internal/engine"
	"github.com/kode4food/cadence/internal/ledger"
	"github.com/kode4food/cadence/internal/monitor"
	"github.com/kode4food/cadence/internal/reconcile"
	"github.com/kode4food/cadence/internal/sequence"
	"github.com/kode4food/cadence/internal/state"
	"github.com/kode4food/cadence/internal/store"
	"github.com/kode4food/cadence/pkg/api"
)

type (
	// TestEnv holds a fully wired engine over in-memory backends: sqlite,
	// miniredis, a mock agent and a fake clock
	TestEnv struct {
		Config     *config.Config
		Clock      *FakeClock
		Agent      *MockAgent
		Redis      *miniredis.Miniredis
		Store      *store.Store
		Ledger     *ledger.Ledger
		Clients    *client.Registry
		Scheduler  *sequence.Scheduler
		Machine    *state.Machine
		Engine     *engine.Engine
		Reconciler *reconcile.Reconciler
		Monitor    *monitor.Monitor
		Reporter   *RecordingReporter
		Cleanup    func()
	}

	// RecordingReporter keeps every reported failure for inspection
	RecordingReporter struct {
		reports []Report
		mu      sync.Mutex
	}

	// Report is one failure captured by a RecordingReporter
	Report struct {
		Err  error
		Tags map[string]string
	}
)

const (
	TestAccountID  api.AccountID  = "acct-1"
	TestCampaignID api.CampaignID = "camp-1"
	TestSecret                    = "test-secret"
)

// NoJitter is a scheduler jitter source that never delays
func NoJitter(time.Duration) time.Duration {
	return 0
}

// NewTestConfig creates a default configuration with debug logging and
// in-memory stores
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.DSN = ":memory:"
	cfg.Redis.Prefix = "test"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// NewTestEnv wires every component against fresh in-memory backends
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	ctx := context.Background()

	clock := NewFakeClock()
	agent := NewMockAgent()
	agent.UseClock(clock.Now)
	server := miniredis.RunT(t)

	cfg := NewTestConfig()
	cfg.Agent.BaseURL = agent.URL()
	cfg.Redis.Addr = server.Addr()

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, nil)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))

	ldg, err := ledger.Open(ctx, ledger.Config{
		Addr:   cfg.Redis.Addr,
		Prefix: cfg.Redis.Prefix,
	})
	require.NoError(t, err)

	clients := client.NewRegistry(cfg.Agent, client.Dependencies{
		Clock: clock.Now,
		Sleep: clock.Sleep,
	})
	sched := sequence.NewScheduler(sequence.Policy{
		StopOnReply: cfg.StopOnReply,
		MaxRetries:  cfg.Retry.MaxRetries,
	}, NoJitter)
	machine := state.NewMachine(cfg.StopOnReply, clock.Now)
	rep := &RecordingReporter{}

	eng, err := engine.New(engine.Dependencies{
		Store:     st,
		Clients:   clients,
		Caps:      ldg,
		Scheduler: sched,
		Machine:   machine,
		Reporter:  rep,
		Clock:     clock.Now,
	}, cfg)
	require.NoError(t, err)

	rec, err := reconcile.New(reconcile.Dependencies{
		Store:     st,
		Claims:    ldg,
		Scheduler: sched,
		Machine:   machine,
		Clock:     clock.Now,
	}, cfg.DedupTTL)
	require.NoError(t, err)

	mon := monitor.New(monitor.Dependencies{
		Clients:  clients,
		Accounts: st,
		Usage:    ldg,
		Clock:    clock.Now,
	}, cfg.HealthInterval)

	env := &TestEnv{
		Config:     cfg,
		Clock:      clock,
		Agent:      agent,
		Redis:      server,
		Store:      st,
		Ledger:     ldg,
		Clients:    clients,
		Scheduler:  sched,
		Machine:    machine,
		Engine:     eng,
		Reconciler: rec,
		Monitor:    mon,
		Reporter:   rep,
	}
	env.Cleanup = func() {
		_ = eng.Stop()
		clients.Close()
		_ = ldg.Close()
		_ = st.Close()
		agent.Close()
	}
	return env
}

// WithTestEnv creates an environment, runs fn with it, and cleans up
func WithTestEnv(t *testing.T, fn func(*TestEnv)) {
	t.Helper()
	env := NewTestEnv(t)
	defer env.Cleanup()
	fn(env)
}

// DefaultSequence is a connect followed by a message three days later and
// an InMail one day after that
func DefaultSequence() api.SequenceDefinition {
	return api.SequenceDefinition{
		Initial: api.SequenceAction{
			Kind:    api.ActionConnect,
			Message: "Hi {first_name}, I work at {company}",
		},
		FollowUps: []api.SequenceAction{
			{
				Kind:      api.ActionMessage,
				Message:   "Thanks for connecting, {first_name}",
				DelayDays: 3,
			},
			{
				Kind:      api.ActionInMail,
				Subject:   "About {company}",
				Message:   "One more thing",
				DelayDays: 1,
			},
		},
	}
}

// SeedAccount stores an account with the test secret
func (e *TestEnv) SeedAccount(
	t *testing.T, id api.AccountID, caps map[api.ActionKind]int,
) *api.Account {
	t.Helper()
	acct := &api.Account{
		CreatedAt: e.Clock.Now(),
		DailyCaps: caps,
		ID:        id,
		Name:      string(id),
		SecretKey: TestSecret,
	}
	require.NoError(t, e.Store.SaveAccount(context.Background(), acct))
	return acct
}

// SeedCampaign stores a campaign for an account
func (e *TestEnv) SeedCampaign(
	t *testing.T, id api.CampaignID, acct api.AccountID,
	seq api.SequenceDefinition,
) *api.Campaign {
	t.Helper()
	camp := &api.Campaign{
		CreatedAt: e.Clock.Now(),
		Sequence:  seq,
		ID:        id,
		AccountID: acct,
		Name:      string(id),
	}
	require.NoError(t, e.Store.SaveCampaign(context.Background(), camp))
	return camp
}

// SeedContact stores a contact whose profile URL derives from its id
func (e *TestEnv) SeedContact(
	t *testing.T, id api.ContactID, first, company string,
) *api.Contact {
	t.Helper()
	ct := &api.Contact{
		CreatedAt:  e.Clock.Now(),
		ID:         id,
		ProfileURL: ProfileURL(id),
		FirstName:  first,
		Company:    company,
	}
	require.NoError(t, e.Store.SaveContact(context.Background(), ct))
	return ct
}

// SeedDefault stores the test account, a campaign with DefaultSequence and
// the given contacts, all enrolled
func (e *TestEnv) SeedDefault(t *testing.T, contacts ...api.ContactID) {
	t.Helper()
	e.SeedAccount(t, TestAccountID, nil)
	e.SeedCampaign(t, TestCampaignID, TestAccountID, DefaultSequence())
	for _, id := range contacts {
		e.SeedContact(t, id, "Ana", "Acme")
	}
	sum, err := e.Engine.Enroll(context.Background(), TestCampaignID, contacts)
	require.NoError(t, err)
	require.Equal(t, len(contacts), sum.Succeeded)
}

// Enrollment loads the enrollment of a contact in a campaign
func (e *TestEnv) Enrollment(
	t *testing.T, camp api.CampaignID, ct api.ContactID,
) *api.CampaignContact {
	t.Helper()
	cc, err := e.Store.GetCampaignContact(context.Background(), camp, ct)
	require.NoError(t, err)
	return cc
}

// ProfileURL returns the profile URL SeedContact assigns to id
func ProfileURL(id api.ContactID) string {
	return fmt.Sprintf("https://social.example.com/in/%s", id)
}

// Report records a failure
func (r *RecordingReporter) Report(
	_ context.Context, err error, tags map[string]string,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Err: err, Tags: tags})
}

// Flush is a no-op
func (r *RecordingReporter) Flush(time.Duration) bool {
	return true
}

// Reports returns every recorded failure
func (r *RecordingReporter) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Report, len(r.reports))
	copy(res, r.reports)
	return res
}
