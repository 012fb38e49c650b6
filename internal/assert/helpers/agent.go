package helpers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	// MockAgent is an httptest stand-in for the automation agent. It records
	// every request and replies from per-endpoint scripts
	MockAgent struct {
		server    *httptest.Server
		scripts   map[string][]AgentResponse
		defaults  map[string]AgentResponse
		requests  []AgentRequest
		clock     func() time.Time
		messageID int
		mu        sync.Mutex
	}

	// AgentResponse is one scripted reply
	AgentResponse struct {
		Body   string
		Status int
	}

	// AgentRequest is one recorded request
	AgentRequest struct {
		At        time.Time
		Method    string
		AccountID api.AccountID
		Endpoint  string
		URL       string
		Signature string
		Body      []byte
	}
)

// NewMockAgent starts a mock agent. Unscripted queue calls succeed with a
// generated message id; other endpoints return an empty JSON object
func NewMockAgent() *MockAgent {
	a := &MockAgent{
		scripts:  map[string][]AgentResponse{},
		defaults: map[string]AgentResponse{},
		clock:    time.Now,
	}
	a.server = httptest.NewServer(http.HandlerFunc(a.handle))
	return a
}

// URL returns the base URL to configure as the agent endpoint
func (a *MockAgent) URL() string {
	return a.server.URL
}

// Close shuts the server down
func (a *MockAgent) Close() {
	a.server.Close()
}

// UseClock stamps recorded requests with the given clock
func (a *MockAgent) UseClock(clock func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clock = clock
}

// Script queues replies for an endpoint, consumed one per request
func (a *MockAgent) Script(endpoint string, responses ...AgentResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[endpoint] = append(a.scripts[endpoint], responses...)
}

// SetDefault sets the reply used once an endpoint's script is exhausted
func (a *MockAgent) SetDefault(endpoint string, resp AgentResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.defaults[endpoint] = resp
}

// Requests returns every recorded request
func (a *MockAgent) Requests() []AgentRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	res := make([]AgentRequest, len(a.requests))
	copy(res, a.requests)
	return res
}

// Commands decodes every command envelope POSTed to the queue endpoint
func (a *MockAgent) Commands() []api.CommandEnvelope {
	var res []api.CommandEnvelope
	for _, r := range a.Requests() {
		if r.Method != http.MethodPost || r.Endpoint != "queue" {
			continue
		}
		var env api.CommandEnvelope
		if err := json.Unmarshal(r.Body, &env); err == nil {
			res = append(res, env)
		}
	}
	return res
}

// Hits counts the requests made to an endpoint
func (a *MockAgent) Hits(endpoint string) int {
	n := 0
	for _, r := range a.Requests() {
		if r.Endpoint == endpoint {
			n++
		}
	}
	return n
}

func (a *MockAgent) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	account, endpoint, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	a.mu.Lock()
	a.requests = append(a.requests, AgentRequest{
		At:        a.clock(),
		Method:    r.Method,
		AccountID: api.AccountID(account),
		Endpoint:  endpoint,
		URL:       "http://" + r.Host + r.URL.RequestURI(),
		Signature: r.Header.Get("X-Signature"),
		Body:      body,
	})
	resp := a.next(endpoint)
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write([]byte(resp.Body))
}

func (a *MockAgent) next(endpoint string) AgentResponse {
	if script := a.scripts[endpoint]; len(script) > 0 {
		a.scripts[endpoint] = script[1:]
		return script[0]
	}
	if resp, ok := a.defaults[endpoint]; ok {
		return resp
	}
	if endpoint == "queue" {
		a.messageID++
		return AgentResponse{
			Status: http.StatusOK,
			Body: fmt.Sprintf(
				`{"success":true,"message_id":"msg-%d"}`, a.messageID,
			),
		}
	}
	return AgentResponse{Status: http.StatusOK, Body: `{}`}
}
