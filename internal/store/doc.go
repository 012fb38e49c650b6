// Package store implements the gorm persistence layer for accounts,
// campaigns, contacts, enrollments, messages and webhook events
package store
