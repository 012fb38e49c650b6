package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kode4food/cadence/internal/backoff"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

type (
	// Client executes commands and reads endpoints on behalf of one account
	Client interface {
		AccountID() api.AccountID
		Execute(context.Context, *api.Command) *api.ExecutionResult
		Get(context.Context, string) *api.ExecutionResult
		Stats() api.AccountStats
	}

	// AccountClient is the signed, rate-limited client of one account. It
	// exclusively owns the account's limiter and counters
	AccountClient struct {
		http     *http.Client
		limiter  *Limiter
		logger   *slog.Logger
		now      Clock
		sleep    Sleeper
		cfg      api.AgentConfig
		id       api.AccountID
		secret   string
		requests atomic.Int64
		errors   atomic.Int64
	}
)

// Agent endpoints, relative to the account's base path
const (
	EndpointQueue      = "queue"
	EndpointQueueSize  = "queue/size"
	EndpointQueueItems = "queue/items"
	EndpointSettings   = "settings"
	EndpointProfile    = "profile"
	EndpointSignal     = "signal"
	EndpointReset      = "reset"
)

const (
	maxResponseBytes = 4 << 20
	maxDetailRunes   = 200
)

var endpoints = map[string]bool{
	EndpointQueue:      true,
	EndpointQueueSize:  true,
	EndpointQueueItems: true,
	EndpointSettings:   true,
	EndpointProfile:    true,
	EndpointSignal:     true,
	EndpointReset:      true,
}

var (
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	ErrAccountMismatch = errors.New("command belongs to another account")
	ErrNilCommand      = errors.New("command is required")
)

var _ Client = (*AccountClient)(nil)

func newAccountClient(
	acct *api.Account, cfg api.AgentConfig, deps Dependencies, lim *Limiter,
) *AccountClient {
	return &AccountClient{
		http:    deps.HTTPClient,
		limiter: lim,
		logger:  deps.Logger,
		now:     deps.Clock,
		sleep:   deps.Sleep,
		cfg:     cfg,
		id:      acct.ID,
		secret:  acct.SecretKey,
	}
}

// AccountID returns the account this client acts for
func (c *AccountClient) AccountID() api.AccountID {
	return c.id
}

// Limiter exposes the account's limiter for inspection
func (c *AccountClient) Limiter() *Limiter {
	return c.limiter
}

// Execute validates the command and POSTs it to the agent's queue
func (c *AccountClient) Execute(
	ctx context.Context, cmd *api.Command,
) *api.ExecutionResult {
	start := c.now()
	if cmd == nil {
		return c.reject(start, ErrNilCommand)
	}
	if err := cmd.Validate(); err != nil {
		return c.reject(start, err)
	}
	if cmd.AccountID != c.id {
		return c.reject(start, ErrAccountMismatch)
	}

	body, err := json.Marshal(cmd.Envelope(c.id, start))
	if err != nil {
		return c.reject(start, err)
	}
	return c.call(ctx, http.MethodPost, EndpointQueue, body, start)
}

// Get reads one of the agent's endpoints
func (c *AccountClient) Get(
	ctx context.Context, endpoint string,
) *api.ExecutionResult {
	start := c.now()
	if !endpoints[endpoint] {
		return c.reject(start, ErrUnknownEndpoint)
	}
	return c.call(ctx, http.MethodGet, endpoint, nil, start)
}

// Stats returns the account's request counters
func (c *AccountClient) Stats() api.AccountStats {
	return api.NewAccountStats(c.id, c.requests.Load(), c.errors.Load())
}

// URL returns the full agent URL of an endpoint for this account
func (c *AccountClient) URL(endpoint string) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	return base + "/" + url.PathEscape(string(c.id)) + "/" + endpoint
}

func (c *AccountClient) call(
	ctx context.Context, method, endpoint string, body []byte, start time.Time,
) *api.ExecutionResult {
	target := c.URL(endpoint)
	signed := body
	if method == http.MethodGet {
		signed = []byte(target)
	}
	sig := Sign(c.secret, signed)

	res := &api.ExecutionResult{}
	if err := c.limiter.Lock(ctx); err != nil {
		return c.fail(res, start, api.NewFailure(
			api.ErrorNetwork, 0, "waiting for rate limiter: %v", err,
		))
	}
	defer c.limiter.Unlock()

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.fail(res, start, api.NewFailure(
				api.ErrorNetwork, 0, "waiting for rate limiter: %v", err,
			))
		}

		status, payload, err := c.send(ctx, method, target, body, sig)
		c.limiter.Mark()
		c.requests.Add(1)
		res.Attempts = attempt + 1
		res.StatusCode = status

		if err != nil {
			c.errors.Add(1)
			return c.fail(res, start, api.NewFailure(
				api.ErrorNetwork, 0, "%v", err,
			))
		}

		kind, retryable := classify(status)
		if kind == "" {
			if f := agentRejection(payload); f != nil {
				c.errors.Add(1)
				f.StatusCode = status
				return c.fail(res, start, f)
			}
			return c.succeed(res, start, payload)
		}

		c.errors.Add(1)
		failure := api.NewFailure(kind, status, "%s", describe(status, payload))
		if !retryable || res.Attempts >= c.maxAttempts() {
			if kind == api.ErrorAuthentication {
				c.logger.Error("Agent rejected credentials",
					log.AccountID(c.id),
					slog.Int("status_code", status))
			}
			return c.fail(res, start, failure)
		}

		delay := c.backoffFor(kind, attempt)
		c.logger.Warn("Agent call failed, retrying",
			log.AccountID(c.id),
			log.Kind(kind),
			slog.String("endpoint", endpoint),
			slog.Int("status_code", status),
			slog.Int("attempt", res.Attempts),
			slog.Duration("backoff", delay))

		if err := c.sleep(ctx, delay); err != nil {
			return c.fail(res, start, api.NewFailure(
				kind, status, "retry abandoned: %v", err,
			))
		}
	}
}

func (c *AccountClient) send(
	ctx context.Context, method, target string, body []byte, sig string,
) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	// in-flight calls are bounded by the client timeout, not by ctx
	req, err := http.NewRequestWithContext(
		context.WithoutCancel(ctx), method, target, rdr,
	)
	if err != nil {
		return 0, nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set(SignatureHeader, sig)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, payload, nil
}

func (c *AccountClient) maxAttempts() int {
	if c.cfg.MaxAttempts < 1 {
		return 1
	}
	return c.cfg.MaxAttempts
}

func (c *AccountClient) backoffFor(kind api.ErrorKind, attempt int) time.Duration {
	base := c.cfg.ServerBackoff
	if kind == api.ErrorRateLimit {
		base = c.cfg.RateLimitBackoff
	}
	return backoff.Delay(c.cfg.BackoffType, base, c.cfg.MaxBackoff, attempt)
}

func (c *AccountClient) succeed(
	res *api.ExecutionResult, start time.Time, payload []byte,
) *api.ExecutionResult {
	res.Success = true
	res.Payload = normalizePayload(payload)
	res.MessageID = messageID(payload)
	return c.finish(res, start)
}

func (c *AccountClient) fail(
	res *api.ExecutionResult, start time.Time, f *api.Failure,
) *api.ExecutionResult {
	res.Success = false
	res.Failure = f
	return c.finish(res, start)
}

func (c *AccountClient) reject(start time.Time, err error) *api.ExecutionResult {
	return c.fail(&api.ExecutionResult{}, start, api.NewFailure(
		api.ErrorValidation, 0, "%v", err,
	))
}

func (c *AccountClient) finish(
	res *api.ExecutionResult, start time.Time,
) *api.ExecutionResult {
	now := c.now()
	res.Timestamp = now
	res.Latency = now.Sub(start)
	return res
}

func classify(status int) (api.ErrorKind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return api.ErrorAuthentication, false
	case status == http.StatusTooManyRequests:
		return api.ErrorRateLimit, true
	case status >= 500:
		return api.ErrorServer, true
	default:
		return api.ErrorValidation, false
	}
}

func agentRejection(payload []byte) *api.Failure {
	if !gjson.ValidBytes(payload) {
		return nil
	}
	ok := gjson.GetBytes(payload, "success")
	if !ok.Exists() || ok.Bool() {
		return nil
	}
	msg := firstString(payload, "error", "message")
	if msg == "" {
		msg = "agent reported success=false"
	}
	return api.NewFailure(api.ErrorValidation, 0, "%s", msg)
}

func describe(status int, payload []byte) string {
	if gjson.ValidBytes(payload) {
		if msg := firstString(payload, "error", "message"); msg != "" {
			return msg
		}
	}
	if body := strings.TrimSpace(string(payload)); body != "" {
		if r := []rune(body); len(r) > maxDetailRunes {
			body = string(r[:maxDetailRunes])
		}
		return body
	}
	return http.StatusText(status)
}

func messageID(payload []byte) string {
	if !gjson.ValidBytes(payload) {
		return ""
	}
	return firstString(payload, "message_id", "id", "data.message_id")
}

func normalizePayload(payload []byte) json.RawMessage {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if gjson.ValidBytes(payload) {
		return json.RawMessage(payload)
	}
	quoted, _ := json.Marshal(string(payload))
	return quoted
}

func firstString(payload []byte, paths ...string) string {
	for _, res := range gjson.GetManyBytes(payload, paths...) {
		if s := res.String(); s != "" {
			return s
		}
	}
	return ""
}
