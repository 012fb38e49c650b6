package client

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	// Dependencies are the injectable collaborators of every account client.
	// Zero values are replaced with production defaults
	Dependencies struct {
		HTTPClient *http.Client
		Logger     *slog.Logger
		Clock      Clock
		Sleep      Sleeper
	}

	// Registry owns one long-lived client per account, created on demand.
	// Callers acting for the same account always share its client
	Registry struct {
		clients map[api.AccountID]*AccountClient
		retired map[api.AccountID]*Limiter
		deps    Dependencies
		cfg     api.AgentConfig
		mu      sync.Mutex
	}
)

const keepAlive = 30 * time.Second

// NewRegistry creates an empty registry for the given agent configuration
func NewRegistry(cfg api.AgentConfig, deps Dependencies) *Registry {
	if deps.HTTPClient == nil {
		deps.HTTPClient = NewHTTPClient(cfg.ConnectTimeout, cfg.RequestTimeout)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = SleepContext
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.RequestDelay <= 0 {
		cfg.RequestDelay = api.DefaultRequestDelay
	}
	return &Registry{
		clients: map[api.AccountID]*AccountClient{},
		retired: map[api.AccountID]*Limiter{},
		deps:    deps,
		cfg:     cfg,
	}
}

// NewHTTPClient builds an HTTP client with separate connect and overall
// request timeouts
func NewHTTPClient(connect, overall time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connect,
		KeepAlive: keepAlive,
	}).DialContext
	transport.TLSHandshakeTimeout = connect
	return &http.Client{
		Transport: transport,
		Timeout:   overall,
	}
}

// Get returns the account's client, creating it on first use
func (r *Registry) Get(acct *api.Account) *AccountClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[acct.ID]; ok {
		return c
	}
	c := newAccountClient(acct, r.cfg, r.deps, r.limiterFor(acct))
	r.clients[acct.ID] = c
	return c
}

// limiterFor hands a removed client's limiter to its successor so spacing
// survives the swap. When the delay changed, a new limiter starts from the
// old one's last call. The caller must hold r.mu
func (r *Registry) limiterFor(acct *api.Account) *Limiter {
	delay := acct.DelayOr(r.cfg.RequestDelay)
	old, ok := r.retired[acct.ID]
	delete(r.retired, acct.ID)
	if ok && old.Delay() == delay {
		return old
	}
	res := NewLimiter(delay, r.deps.Clock, r.deps.Sleep)
	if ok {
		res.Resume(old.LastCall())
	}
	return res
}

// Lookup returns the account's client if one has been created
func (r *Registry) Lookup(id api.AccountID) (*AccountClient, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// Remove disposes of the account's client. A later Get creates a fresh
// client, picking up rotated credentials or a new delay. With an unchanged
// delay the fresh client keeps the old limiter, so calls still in flight
// on the removed client stay serialized with new ones. With a new delay
// only the last call time carries over
func (r *Registry) Remove(id api.AccountID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return false
	}
	delete(r.clients, id)
	r.retired[id] = c.limiter
	return true
}

// Accounts returns the ids of every account with a live client
func (r *Registry) Accounts() []api.AccountID {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]api.AccountID, 0, len(r.clients))
	for id := range r.clients {
		res = append(res, id)
	}
	slices.Sort(res)
	return res
}

// Len returns the number of live clients
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close disposes of every client and releases idle connections
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.clients)
	clear(r.retired)
	r.deps.HTTPClient.CloseIdleConnections()
}
