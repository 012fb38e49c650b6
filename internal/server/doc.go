// Package server implements the HTTP API of the sequencing engine
//
// This package provides the agent webhook receiver, service and account
// health endpoints, and operations for enrolling, running and dispatching
package server
