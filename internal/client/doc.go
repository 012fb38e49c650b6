// Package client implements the signed, rate-limited client for the
// automation agent's control surface
//
// Every account gets exactly one AccountClient from the Registry. Requests
// are signed with HMAC-SHA1, spaced by the account's minimum delay, and
// retried with backoff on 429 and 5xx responses
package client
