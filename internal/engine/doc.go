// Package engine implements campaign execution. It enrolls contacts, runs
// the initial step of each sequence through the account's client, and
// dispatches follow-ups once they become due
package engine
