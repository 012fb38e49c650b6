package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kode4food/cadence/internal/client"
	"github.com/kode4food/cadence/internal/store"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

type (
	// AccountSource lists the accounts to poll
	AccountSource interface {
		ListAccounts(context.Context) ([]*api.Account, error)
		GetAccount(context.Context, api.AccountID) (*api.Account, error)
	}

	// UsageCounter reads the daily cap units an account has used
	UsageCounter interface {
		Count(
			context.Context, api.AccountID, api.ActionKind, time.Time,
		) (int64, error)
	}

	// Dependencies are the collaborators of a Monitor. Usage may be nil, in
	// which case stats carry no daily usage
	Dependencies struct {
		Clients  *client.Registry
		Accounts AccountSource
		Usage    UsageCounter
		Clock    func() time.Time
		Logger   *slog.Logger
	}

	// Monitor tracks per-account health. A failure polling one account is
	// recorded on that account and never affects the others
	Monitor struct {
		clients  *client.Registry
		accounts AccountSource
		usage    UsageCounter
		now      func() time.Time
		logger   *slog.Logger
		ctx      context.Context
		cancel   context.CancelFunc
		health   map[api.AccountID]*api.AccountHealth
		interval time.Duration
		wg       sync.WaitGroup
		mu       sync.RWMutex
	}
)

var (
	ErrUnknownAccount = errors.New("unknown account")
	ErrQueueSize      = errors.New("queue size missing from response")
)

var sizePaths = []string{"size", "data.size", "count", "queue_size"}

// New creates a Monitor polling every interval once started
func New(deps Dependencies, interval time.Duration) *Monitor {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		clients:  deps.Clients,
		accounts: deps.Accounts,
		usage:    deps.Usage,
		now:      deps.Clock,
		logger:   deps.Logger,
		ctx:      ctx,
		cancel:   cancel,
		health:   map[api.AccountID]*api.AccountHealth{},
		interval: interval,
	}
}

// Start begins polling. The first pass runs immediately
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop ends polling and waits for an in-progress pass
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Stats returns the request counters of an account's client and its
// daily cap usage. A stored account whose client has not been created yet
// reports zero counters
func (m *Monitor) Stats(
	ctx context.Context, id api.AccountID,
) (api.AccountStats, error) {
	res := api.NewAccountStats(id, 0, 0)
	if cl, ok := m.clients.Lookup(id); ok {
		res = cl.Stats()
	} else if _, err := m.accounts.GetAccount(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrUnknownAccount, id)
		}
		return api.AccountStats{}, err
	}

	if m.usage == nil {
		return res, nil
	}
	now := m.now()
	for _, kind := range api.ActionKinds() {
		n, err := m.usage.Count(ctx, id, kind, now)
		if err != nil {
			return api.AccountStats{}, err
		}
		if n == 0 {
			continue
		}
		if res.DailyUsage == nil {
			res.DailyUsage = map[api.ActionKind]int64{}
		}
		res.DailyUsage[kind] = n
	}
	return res, nil
}

// QueueHealth reads the remote queue depth and items of an account
func (m *Monitor) QueueHealth(
	ctx context.Context, id api.AccountID,
) (*api.QueueHealth, error) {
	cl, ok := m.clients.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	return queueHealth(ctx, cl)
}

// Check polls every known account in parallel and records the results
func (m *Monitor) Check(
	ctx context.Context,
) (map[api.AccountID]*api.AccountHealth, error) {
	accts, err := m.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	for _, acct := range accts {
		wg.Go(func() {
			m.CheckAccount(ctx, acct)
		})
	}
	wg.Wait()
	return m.Snapshot(), nil
}

// CheckAccount polls one account and records its health
func (m *Monitor) CheckAccount(
	ctx context.Context, acct *api.Account,
) *api.AccountHealth {
	cl := m.clients.Get(acct)
	res := &api.AccountHealth{
		HealthState: api.HealthState{Status: api.HealthHealthy},
	}

	q, err := queueHealth(ctx, cl)
	if err != nil {
		res.Status = api.HealthUnhealthy
		res.Error = err.Error()
	} else {
		res.Queue = q
	}

	profile := cl.Get(ctx, client.EndpointProfile)
	if profile.Success {
		res.Profile = profile.Payload
	} else if res.Error == "" {
		res.Status = api.HealthUnhealthy
		res.Error = profile.Err().Error()
	}

	res.Stats = cl.Stats()
	res.CheckedAt = m.now()
	if res.Status == api.HealthUnhealthy {
		m.logger.Warn("Account unhealthy",
			log.AccountID(acct.ID), log.ErrorString(res.Error))
	}

	m.mu.Lock()
	m.health[acct.ID] = res
	m.mu.Unlock()
	return res
}

// Snapshot returns the last recorded health of every account
func (m *Monitor) Snapshot() map[api.AccountID]*api.AccountHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.health)
}

// Health returns the last recorded health of one account
func (m *Monitor) Health(id api.AccountID) (*api.AccountHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.health[id]
	return h, ok
}

func (m *Monitor) run() {
	defer m.wg.Done()
	m.logger.Info("Health monitor started",
		slog.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.checkAll()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkAll()
		}
	}
}

func (m *Monitor) checkAll() {
	if _, err := m.Check(m.ctx); err != nil {
		m.logger.Error("Failed to list accounts for health check",
			log.Error(err))
	}
}

func queueHealth(
	ctx context.Context, cl *client.AccountClient,
) (*api.QueueHealth, error) {
	size := cl.Get(ctx, client.EndpointQueueSize)
	if !size.Success {
		return nil, size.Err()
	}
	n, ok := readSize(size.Payload)
	if !ok {
		return nil, ErrQueueSize
	}

	res := &api.QueueHealth{Size: n}
	items := cl.Get(ctx, client.EndpointQueueItems)
	if !items.Success {
		return nil, items.Err()
	}
	res.Items = items.Payload
	return res, nil
}

func readSize(payload []byte) (int64, bool) {
	doc := gjson.ParseBytes(payload)
	if doc.Type == gjson.Number {
		return doc.Int(), true
	}
	for _, p := range sizePaths {
		if v := doc.Get(p); v.Exists() {
			return v.Int(), true
		}
	}
	return 0, false
}
