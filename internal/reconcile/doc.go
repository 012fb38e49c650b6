// Package reconcile applies agent webhook notifications to enrollments.
// Deliveries are deduplicated by event id, resolved to every matching
// enrollment, and applied one store transaction per enrollment
package reconcile
