// Package state implements the per-enrollment contact state machine. It is
// pure: it mutates the CampaignContact it is handed and reports the effect
// the caller must carry out, but performs no I/O
package state
