// Package monitor polls each account's agent for queue depth and profile
// health and exposes the last results alongside the client's counters
package monitor
