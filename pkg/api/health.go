package api

import (
	"encoding/json"
	"time"
)

type (
	// HealthStatus represents the health of an account's agent session
	HealthStatus string

	// HealthState contains a health status and the error behind it
	HealthState struct {
		Status HealthStatus `json:"status"`
		Error  string       `json:"error,omitempty"`
	}

	// AccountStats are the request counters of an account's client
	AccountStats struct {
		AccountID   AccountID `json:"account_id"`
		Requests    int64     `json:"requests"`
		Errors      int64     `json:"errors"`
		SuccessRate float64   `json:"success_rate"`

		// DailyUsage counts today's (UTC) capped actions by kind
		DailyUsage map[ActionKind]int64 `json:"daily_usage,omitempty"`
	}

	// QueueHealth is the remote queue depth reported by the agent
	QueueHealth struct {
		Items json.RawMessage `json:"items,omitempty"`
		Size  int64           `json:"size"`
	}

	// AccountHealth is the last polled health of one account
	AccountHealth struct {
		CheckedAt time.Time       `json:"checked_at"`
		Queue     *QueueHealth    `json:"queue,omitempty"`
		Profile   json.RawMessage `json:"profile,omitempty"`
		Stats     AccountStats    `json:"stats"`
		HealthState
	}
)

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// NewAccountStats derives the success rate from raw counters. An account
// that has made no requests reports a rate of zero
func NewAccountStats(id AccountID, requests, errors int64) AccountStats {
	res := AccountStats{
		AccountID: id,
		Requests:  requests,
		Errors:    errors,
	}
	if requests > 0 {
		res.SuccessRate = float64(requests-errors) / float64(requests)
	}
	return res
}
