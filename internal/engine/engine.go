package engine

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kode4food/cadence/internal/client"
	"github.com/kode4food/cadence/internal/config"
	"github.com/kode4food/cadence/internal/report"
	"github.com/kode4food/cadence/internal/sequence"
	"github.com/kode4food/cadence/internal/state"
	"github.com/kode4food/cadence/internal/store"
	"github.com/kode4food/cadence/internal/util"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

type (
	// CapLedger counts actions against per-account daily caps
	CapLedger interface {
		Reserve(
			context.Context, api.AccountID, api.ActionKind, time.Time, int,
		) (int64, error)
		Refund(
			context.Context, api.AccountID, api.ActionKind, time.Time,
		) error
	}

	// Dependencies are the collaborators of an Engine. Caps may be nil to
	// disable daily caps
	Dependencies struct {
		Store     store.Repository
		Clients   *client.Registry
		Caps      CapLedger
		Scheduler *sequence.Scheduler
		Machine   *state.Machine
		Reporter  report.Reporter
		Clock     func() time.Time
		Logger    *slog.Logger
	}

	// Engine runs campaigns. Accounts are processed in parallel and the
	// contacts of one account sequentially through its shared client. An
	// enrollment is worked by at most one batch at a time
	Engine struct {
		Dependencies
		config   *config.Config
		ctx      context.Context
		cancel   context.CancelFunc
		inflight util.Set[api.EnrollmentID]
		wg       sync.WaitGroup
		claimMu  sync.Mutex
		start    sync.Once
		stop     sync.Once
	}

	work struct {
		camp *api.Campaign
		cc   *api.CampaignContact
	}

	stepFunc func(
		context.Context, *api.Account, *client.AccountClient, work,
	) api.BatchItem
)

var (
	ErrMissingDependency = errors.New("engine dependency missing")
	ErrShutdownTimeout   = errors.New("shutdown timeout exceeded")
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrContactNotFound   = errors.New("contact not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountAborted    = errors.New("account batch aborted")
	ErrExcluded          = errors.New("contact is excluded")
	ErrAlreadyStarted    = errors.New("sequence already started")
	ErrInFlight          = errors.New("enrollment is being processed")
	ErrNotDue            = errors.New("follow-up no longer due")
	ErrNoCampaigns       = errors.New("no campaigns requested")
)

// New creates an Engine
func New(deps Dependencies, cfg *config.Config) (*Engine, error) {
	if deps.Store == nil || deps.Clients == nil ||
		deps.Scheduler == nil || deps.Machine == nil || cfg == nil {
		return nil, ErrMissingDependency
	}
	if deps.Reporter == nil {
		deps.Reporter = report.NewLogger(deps.Logger)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		Dependencies: deps,
		config:       cfg,
		ctx:          ctx,
		cancel:       cancel,
		inflight:     util.Set[api.EnrollmentID]{},
	}, nil
}

// Start begins the background dispatch loop
func (e *Engine) Start() {
	e.start.Do(func() {
		e.Logger.Info("Engine starting",
			slog.Duration("dispatch_interval", e.config.DispatchInterval))
		e.wg.Add(1)
		go e.run()
	})
}

// Stop cancels the dispatch loop and waits for in-progress work
func (e *Engine) Stop() error {
	var err error
	e.stop.Do(func() {
		e.cancel()

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			e.Logger.Info("Engine stopped")
		case <-time.After(e.config.ShutdownTimeout):
			err = ErrShutdownTimeout
		}
	})
	return err
}

func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.dispatchTick()
		}
	}
}

func (e *Engine) dispatchTick() {
	sum, err := e.DispatchDue(e.ctx)
	if err != nil {
		e.Logger.Error("Dispatch failed", log.Error(err))
		return
	}
	if sum.Total == 0 {
		return
	}
	e.Logger.Info("Dispatched follow-ups",
		slog.Int("total", sum.Total),
		slog.Int("succeeded", sum.Succeeded),
		slog.Int("failed", sum.Failed),
		slog.Int("deferred", sum.Deferred))
}

// fanOut runs each account's work in its own goroutine and merges the
// per-account summaries in account order
func (e *Engine) fanOut(
	ctx context.Context, groups map[api.AccountID][]work, fn stepFunc,
) *api.BatchSummary {
	ids := slices.Sorted(maps.Keys(groups))
	results := make([]*api.BatchSummary, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Go(func() {
			results[i] = e.runGroup(ctx, id, groups[id], fn)
		})
	}
	wg.Wait()

	sum := &api.BatchSummary{Items: []api.BatchItem{}}
	for _, r := range results {
		sum.Merge(r)
	}
	return sum
}

func (e *Engine) runGroup(
	ctx context.Context, id api.AccountID, items []work, fn stepFunc,
) *api.BatchSummary {
	sum := &api.BatchSummary{}
	acct, err := e.Store.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = ErrAccountNotFound
		}
		e.Logger.Error("Failed to load account",
			log.AccountID(id), log.Error(err))
		for _, w := range items {
			sum.Add(failedItem(w, api.ErrorValidation, err))
		}
		return sum
	}

	cl := e.Clients.Get(acct)
	for i, w := range items {
		if ctx.Err() != nil {
			sum.Cancelled = true
			e.Logger.Warn("Account batch cancelled",
				log.AccountID(id),
				slog.Int("remaining", len(items)-i))
			break
		}

		item := fn(ctx, acct, cl, w)
		sum.Add(item)
		if item.Kind != api.ErrorAuthentication {
			continue
		}

		sum.Aborted = append(sum.Aborted, id)
		e.Logger.Error("Authentication failed, aborting account batch",
			log.AccountID(id),
			log.CampaignID(w.camp.ID),
			slog.Int("remaining", len(items)-i-1),
			log.ErrorString(item.Error))
		e.Reporter.Report(ctx, errors.New(item.Error), map[string]string{
			"account_id":  string(id),
			"campaign_id": string(w.camp.ID),
			"kind":        string(item.Kind),
		})
		for _, rest := range items[i+1:] {
			sum.Add(skippedItem(rest, ErrAccountAborted))
		}
		break
	}
	return sum
}

// claim marks an enrollment as being worked, reporting false when another
// batch already holds it. The holder must re-read the row after claiming.
// Claims are held in this process only, so one database must not be
// dispatched by more than one engine instance. Spanning instances would
// take a Redis SetNX claim per enrollment, as the reconciler does for
// webhook ids
func (e *Engine) claim(id api.EnrollmentID) bool {
	e.claimMu.Lock()
	defer e.claimMu.Unlock()
	if e.inflight.Contains(id) {
		return false
	}
	e.inflight.Add(id)
	return true
}

func (e *Engine) release(id api.EnrollmentID) {
	e.claimMu.Lock()
	defer e.claimMu.Unlock()
	delete(e.inflight, id)
}

// claimFresh claims w's enrollment and replaces the listed row with the
// current one
func (e *Engine) claimFresh(ctx context.Context, w *work) error {
	if !e.claim(w.cc.ID) {
		return ErrInFlight
	}
	cc, err := e.Store.GetEnrollment(ctx, w.cc.ID)
	if err != nil {
		e.release(w.cc.ID)
		return err
	}
	w.cc = cc
	return nil
}

func (e *Engine) warnUnresolved(cmd *api.Command) {
	if len(cmd.Unresolved) == 0 {
		return
	}
	e.Logger.Warn("Template placeholders left unresolved",
		log.CampaignID(cmd.CampaignID),
		log.ContactID(cmd.ContactID),
		log.Step(cmd.Step),
		slog.Any("placeholders", cmd.Unresolved))
}

// reserve takes a daily cap unit for cmd. It reports whether a unit was
// taken and must be refunded when the command is not performed
func (e *Engine) reserve(
	ctx context.Context, acct *api.Account, cmd *api.Command, at time.Time,
) (bool, error) {
	if e.Caps == nil {
		return false, nil
	}
	_, err := e.Caps.Reserve(ctx, acct.ID, cmd.Kind, at, acct.DailyCap(cmd.Kind))
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) refund(
	ctx context.Context, acct *api.Account, cmd *api.Command, at time.Time,
) {
	err := e.Caps.Refund(context.WithoutCancel(ctx), acct.ID, cmd.Kind, at)
	if err != nil {
		e.Logger.Warn("Failed to refund daily cap",
			log.AccountID(acct.ID), log.Kind(cmd.Kind), log.Error(err))
	}
}

// recordSent appends the message a successful message command delivered
func recordSent(
	ctx context.Context, tx store.Repository, cc *api.CampaignContact,
	cmd *api.Command, res *api.ExecutionResult,
) error {
	if !cmd.Kind.IsMessage() {
		return nil
	}
	body, _ := cmd.Params[api.ParamMessage].(string)
	subject, _ := cmd.Params[api.ParamSubject].(string)
	_, err := tx.AddMessage(ctx, &api.Message{
		At:           res.Timestamp,
		EnrollmentID: cc.ID,
		CampaignID:   cc.CampaignID,
		ContactID:    cc.ContactID,
		Direction:    api.DirectionSent,
		ExternalID:   res.MessageID,
		Subject:      subject,
		Body:         body,
	})
	return err
}

func newItem(w work) api.BatchItem {
	return api.BatchItem{
		CampaignID: w.cc.CampaignID,
		ContactID:  w.cc.ContactID,
		AccountID:  w.cc.AccountID,
		Step:       w.cc.SequenceStep,
	}
}

func failedItem(w work, kind api.ErrorKind, err error) api.BatchItem {
	item := newItem(w)
	item.Status = api.ItemFailed
	item.Kind = kind
	item.Error = err.Error()
	return item
}

func skippedItem(w work, err error) api.BatchItem {
	item := newItem(w)
	item.Status = api.ItemSkipped
	item.Error = err.Error()
	return item
}

func deferredItem(w work, err error) api.BatchItem {
	item := newItem(w)
	item.Status = api.ItemDeferred
	item.Error = err.Error()
	return item
}
