// Package sequence implements the per-contact sequence scheduler
package sequence
