// Package api defines the core data types shared by the sequencing engine
//
// This package contains accounts, commands, sequence definitions, campaign
// contact state, webhook events, execution results, and the HTTP messages
// exchanged with the engine's operational endpoints
package api
