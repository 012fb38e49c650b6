package api

import "time"

type (
	// AgentConfig describes how to reach the automation agent
	AgentConfig struct {
		BaseURL          string        `json:"base_url"`
		UserAgent        string        `json:"user_agent,omitempty"`
		RequestDelay     time.Duration `json:"request_delay"`
		ConnectTimeout   time.Duration `json:"connect_timeout"`
		RequestTimeout   time.Duration `json:"request_timeout"`
		RateLimitBackoff time.Duration `json:"rate_limit_backoff"`
		ServerBackoff    time.Duration `json:"server_backoff"`
		MaxBackoff       time.Duration `json:"max_backoff"`
		BackoffType      string        `json:"backoff_type"`
		MaxAttempts      int           `json:"max_attempts"`
	}

	// RetryConfig governs redelivery of a deferred follow-up that failed
	// with a transient error
	RetryConfig struct {
		BackoffType string        `json:"backoff_type"`
		InitBackoff time.Duration `json:"init_backoff"`
		MaxBackoff  time.Duration `json:"max_backoff"`
		MaxRetries  int           `json:"max_retries"`
	}
)

const (
	BackoffTypeFixed       = "fixed"
	BackoffTypeLinear      = "linear"
	BackoffTypeExponential = "exponential"
)
