// Package retry runs an operation under a bounded retry policy: a fixed
// number of attempts with a fixed delay between them, interrupted by
// context cancellation.
package retry
